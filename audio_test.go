package projectm

import (
	"math"
	"testing"
)

const testSampleRate = 44100

// sineWindow synthesizes n samples of a pure tone at freq Hz.
func sineWindow(freq float64, n int) []float32 {
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / testSampleRate))
	}
	return pcm
}

func TestAnalyzerBandSeparation(t *testing.T) {
	a := newAnalyzer(512)
	half := 512 / 2

	// ~345 Hz lands in bin 4, inside the bass band [1, half/16).
	a.analyze(sineWindow(345, 512), 1.0/60)
	bass := bandMean(a.spectrum, 1, half/16)
	mid := bandMean(a.spectrum, half/16, half/4)
	treb := bandMean(a.spectrum, half/4, half)
	if bass <= mid*10 || bass <= treb*10 {
		t.Errorf("bass tone: bands = (%v, %v, %v), want bass dominant", bass, mid, treb)
	}

	// ~8.6 kHz lands in bin 100, inside the treble band [half/4, half).
	a.analyze(sineWindow(8613, 512), 1.0/60)
	bass = bandMean(a.spectrum, 1, half/16)
	treb = bandMean(a.spectrum, half/4, half)
	if treb <= bass*10 {
		t.Errorf("treble tone: bands = (%v, %v), want treble dominant", bass, treb)
	}
}

func TestAnalyzerLevelNormalization(t *testing.T) {
	// A steady tone at any amplitude settles near 1.0 once the long average
	// catches up; the first frame seeds the average so it starts there.
	for _, amp := range []float32{1.0, 0.01} {
		a := newAnalyzer(512)
		pcm := sineWindow(345, 512)
		for i := range pcm {
			pcm[i] *= amp
		}
		f := a.analyze(pcm, 1.0/60)
		if math.Abs(f.Bass-1.0) > 0.05 {
			t.Errorf("amp %v: first-frame bass = %v, want ~1.0", amp, f.Bass)
		}
	}
}

func TestAnalyzerAttenuatedFollowsSlowly(t *testing.T) {
	a := newAnalyzer(512)
	pcm := sineWindow(345, 512)
	var f audioFeatures
	for i := 0; i < 30; i++ {
		f = a.analyze(pcm, 1.0/60)
	}
	if math.Abs(f.BassAtt-f.Bass) > 0.1 {
		t.Fatalf("steady signal: att = %v, bass = %v, want converged", f.BassAtt, f.Bass)
	}

	// Cut to silence: the immediate value collapses, the attenuated one decays.
	f = a.analyze(make([]float32, 512), 1.0/60)
	if f.Bass > 0.1 {
		t.Errorf("silence: bass = %v, want near 0", f.Bass)
	}
	if f.BassAtt < 0.5 {
		t.Errorf("silence: att = %v, want gradual decay", f.BassAtt)
	}
}

func TestAnalyzerSilenceIsFinite(t *testing.T) {
	a := newAnalyzer(512)
	for i := 0; i < 5; i++ {
		f := a.analyze(nil, 1.0/60)
		for name, v := range map[string]float64{
			"bass": f.Bass, "mid": f.Mid, "treb": f.Treb,
			"bass_att": f.BassAtt, "mid_att": f.MidAtt, "treb_att": f.TrebAtt,
			"vol": f.Vol,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("frame %d: %s = %v on silence", i, name, v)
			}
		}
	}
}

func TestAnalyzerShortWindowZeroPadded(t *testing.T) {
	a := newAnalyzer(512)
	f := a.analyze(sineWindow(345, 100), 1.0/60)
	if math.IsNaN(f.Bass) {
		t.Fatal("short window produced NaN")
	}
}

func TestAnalyzerSizeRounding(t *testing.T) {
	cases := []struct{ in, want int }{
		{512, 512}, {513, 512}, {1000, 512}, {1024, 1024}, {0, 512}, {-1, 512},
	}
	for _, c := range cases {
		a := newAnalyzer(c.in)
		if a.fftSize != c.want {
			t.Errorf("newAnalyzer(%d).fftSize = %d, want %d", c.in, a.fftSize, c.want)
		}
	}
}

func TestBandMeanBounds(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	if got := bandMean(s, 0, 4); got != 2.5 {
		t.Errorf("full mean = %v, want 2.5", got)
	}
	if got := bandMean(s, 2, 100); got != 3.5 {
		t.Errorf("clamped mean = %v, want 3.5", got)
	}
	if got := bandMean(s, 3, 3); got != 0 {
		t.Errorf("empty band = %v, want 0", got)
	}
	if got := bandMean(s, -5, 1); got != 1 {
		t.Errorf("negative lo = %v, want 1", got)
	}
}
