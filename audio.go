package projectm

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// analyzer extracts the audio features equations react to: bass, mid and
// treble band energies normalized against their own slow-moving average (so a
// quiet recording still produces values around 1.0), plus attenuated variants
// smoothed with a frame-rate corrected one-pole filter.
//
// The engine performs its own windowed frequency analysis from the raw PCM
// window the host supplies each frame; it never accepts precomputed spectra.
type analyzer struct {
	fftSize int
	hann    []float64
	buf     []float64

	// spectrum holds normalized magnitudes for the lower half of the FFT,
	// reused by spectrum waveform modes.
	spectrum []float64

	longAvg [3]float64
	att     [3]float64
	started bool
}

// audioFeatures is one frame's extracted feature set.
type audioFeatures struct {
	Bass, Mid, Treb          float64
	BassAtt, MidAtt, TrebAtt float64
	Vol                      float64
}

const defaultFFTSize = 512

func newAnalyzer(fftSize int) *analyzer {
	if fftSize <= 0 {
		fftSize = defaultFFTSize
	}
	// Round down to a power of two; go-dsp's radix-2 path and the band split
	// both want one.
	n := 1
	for n*2 <= fftSize {
		n *= 2
	}
	return &analyzer{
		fftSize:  n,
		hann:     window.Hann(n),
		buf:      make([]float64, n),
		spectrum: make([]float64, n/2),
	}
}

// analyze computes this frame's features from the PCM window. Short windows
// are zero-padded; extra samples beyond the FFT size are ignored. dt corrects
// the smoothing constants so feature response is frame-rate independent.
func (a *analyzer) analyze(pcm []float32, dt float64) audioFeatures {
	n := a.fftSize
	for i := 0; i < n; i++ {
		if i < len(pcm) {
			a.buf[i] = float64(pcm[i]) * a.hann[i]
		} else {
			a.buf[i] = 0
		}
	}

	spec := fft.FFTReal(a.buf)
	half := n / 2
	for i := 0; i < half; i++ {
		a.spectrum[i] = cmplx.Abs(spec[i]) / float64(n)
	}

	// Three bands over the lower spectrum: the bottom sixteenth, up to a
	// quarter, and the rest. With 44.1kHz input and a 512 FFT that is
	// roughly 0-1.3kHz, 1.3-5.5kHz, 5.5-22kHz.
	imm := [3]float64{
		bandMean(a.spectrum, 1, half/16),
		bandMean(a.spectrum, half/16, half/4),
		bandMean(a.spectrum, half/4, half),
	}

	if !a.started {
		a.started = true
		for i := range imm {
			a.longAvg[i] = math.Max(imm[i], 1e-6)
			a.att[i] = 1
		}
	}

	// Frame-rate corrected smoothing factors. The long average tracks over
	// ~15s so band values hover around 1.0 regardless of recording level;
	// the attenuated values follow the normalized bands over ~150ms.
	longK := 1 - math.Exp(-dt/15.0)
	attK := 1 - math.Exp(-dt/0.15)

	var f audioFeatures
	rel := [3]float64{}
	for i := range imm {
		a.longAvg[i] += (imm[i] - a.longAvg[i]) * longK
		denom := math.Max(a.longAvg[i], 1e-6)
		rel[i] = imm[i] / denom
		a.att[i] += (rel[i] - a.att[i]) * attK
	}
	f.Bass, f.Mid, f.Treb = rel[0], rel[1], rel[2]
	f.BassAtt, f.MidAtt, f.TrebAtt = a.att[0], a.att[1], a.att[2]
	f.Vol = (rel[0] + rel[1] + rel[2]) / 3
	return f
}

func bandMean(spectrum []float64, lo, hi int) float64 {
	if lo < 0 {
		lo = 0
	}
	if hi > len(spectrum) {
		hi = len(spectrum)
	}
	if hi <= lo {
		return 0
	}
	sum := 0.0
	for i := lo; i < hi; i++ {
		sum += spectrum[i]
	}
	return sum / float64(hi-lo)
}
