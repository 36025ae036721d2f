package projectm

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// maxCustomWaves is the number of custom waveform slots a preset may declare.
const maxCustomWaves = 4

// waveDef is one custom waveform: a per-frame program adjusting wave
// parameters and a per-point program evaluated once per sample point with the
// PCM (or spectrum) value bound, emitting a position and color per point.
type waveDef struct {
	enabled bool

	env       *env
	refs      *waveRefs
	defaults  []slotValue
	frameProg *program
	pointProg *program
}

type waveRefs struct {
	// Read-only built-ins.
	time, frame, fps         int
	bass, mid, treb          int
	bassAtt, midAtt, trebAtt int
	sample, value1, value2   int
	// Writable wave parameters.
	samples, sep, scaling, smoothing   int
	spectrum, useDots, thick, additive int
	x, y, r, g, b, a                   int
	q [qRegisterCount]int
}

var waveScalarDefaults = []struct {
	name  string
	value float64
}{
	{"samples", 512}, {"sep", 0}, {"scaling", 1}, {"smoothing", 0.5},
	{"spectrum", 0}, {"usedots", 0}, {"thick", 0}, {"additive", 0},
	{"x", 0.5}, {"y", 0.5},
	{"r", 1}, {"g", 1}, {"b", 1}, {"a", 1},
}

func newWaveEnv() (*env, *waveRefs) {
	e := newEnv()
	r := &waveRefs{
		time:    e.declare("time", true),
		frame:   e.declare("frame", true),
		fps:     e.declare("fps", true),
		bass:    e.declare("bass", true),
		mid:     e.declare("mid", true),
		treb:    e.declare("treb", true),
		bassAtt: e.declare("bass_att", true),
		midAtt:  e.declare("mid_att", true),
		trebAtt: e.declare("treb_att", true),
		sample:  e.declare("sample", true),
		value1:  e.declare("value1", true),
		value2:  e.declare("value2", true),

		samples:   e.declare("samples", false),
		sep:       e.declare("sep", false),
		scaling:   e.declare("scaling", false),
		smoothing: e.declare("smoothing", false),
		spectrum:  e.declare("spectrum", false),
		useDots:   e.declare("usedots", false),
		thick:     e.declare("thick", false),
		additive:  e.declare("additive", false),
		x:         e.declare("x", false),
		y:         e.declare("y", false),
		r:         e.declare("r", false),
		g:         e.declare("g", false),
		b:         e.declare("b", false),
		a:         e.declare("a", false),
	}
	for i := 0; i < qRegisterCount; i++ {
		r.q[i] = e.declare("q"+string(rune('1'+i)), false)
	}
	return e, r
}

// buildWave assembles wave slot i from parsed preset source. Waves are off by
// default; enabling requires wavecode_I_enabled=1.
func buildWave(p *Preset, i int, src *presetSource, failures *[]*SectionError) waveDef {
	scalars := src.waveScalars[i]
	frameText := src.waveFrame[i].join()
	pointText := src.wavePoint[i].join()
	if len(scalars) == 0 && frameText == "" && pointText == "" {
		return waveDef{}
	}

	w := waveDef{}
	w.env, w.refs = newWaveEnv()

	values := make(map[int]float64, len(waveScalarDefaults))
	for _, d := range waveScalarDefaults {
		slot, _ := w.env.lookup(d.name)
		values[slot] = d.value
	}
	for name, v := range scalars {
		if name == "enabled" {
			w.enabled = v != 0
			continue
		}
		slot := w.env.bind(name)
		if !w.env.isReadOnly(slot) {
			values[slot] = v
		}
	}
	w.defaults = make([]slotValue, 0, len(values))
	for slot, v := range values {
		w.defaults = append(w.defaults, slotValue{slot: slot, value: v})
	}
	for _, d := range w.defaults {
		w.env.slots[d.slot] = d.value
	}

	w.frameProg = parseSection(p, waveSectionName(i, "per_frame"), frameText, w.env, failures)
	w.pointProg = parseSection(p, waveSectionName(i, "per_point"), pointText, w.env, failures)
	return w
}

func waveSectionName(i int, kind string) string {
	return "wave_" + string(rune('0'+i)) + "_" + kind
}

func (w *waveDef) resetParams() {
	for _, d := range w.defaults {
		w.env.slots[d.slot] = d.value
	}
}

// wavePoint is one evaluated waveform point in normalized [0,1] coordinates.
type wavePointOut struct {
	x, y  float64
	color Color
}

// evaluate runs the wave's per-frame program, then its per-point program for
// each sample, returning the point list. audio supplies the source samples
// (time-domain PCM or spectrum magnitudes per the spectrum flag).
func (w *waveDef) evaluate(pcm []float32, spectrum []float64, out []wavePointOut) ([]wavePointOut, waveStyle) {
	w.resetParams()
	w.frameProg.run(w.env)
	r := w.refs

	count := int(clampFinite(w.env.get(r.samples), 2, 512, 512))
	useSpectrum := w.env.get(r.spectrum) != 0
	sep := int(clampFinite(w.env.get(r.sep), 0, 256, 0))
	scaling := finite(w.env.get(r.scaling))
	smoothing := clampUnit(w.env.get(r.smoothing))

	style := waveStyle{
		dots:     w.env.get(r.useDots) != 0,
		thick:    w.env.get(r.thick) != 0,
		additive: w.env.get(r.additive) != 0,
	}

	var source func(i int) float64
	n := count
	if useSpectrum {
		source = func(i int) float64 {
			if len(spectrum) == 0 {
				return 0
			}
			return spectrum[i*(len(spectrum)-1)/maxInt(n-1, 1)]
		}
	} else {
		source = func(i int) float64 {
			if len(pcm) == 0 {
				return 0
			}
			return float64(pcm[i*(len(pcm)-1)/maxInt(n-1, 1)])
		}
	}

	out = out[:0]
	prev := 0.0
	for i := 0; i < count; i++ {
		v1 := source(i) * scaling
		j := i + sep
		if j >= count {
			j = count - 1
		}
		v2 := source(j) * scaling
		// One-pole smoothing along the wave.
		if i > 0 {
			v1 = v1*(1-smoothing) + prev*smoothing
		}
		prev = v1

		w.env.save()
		w.env.set(r.sample, float64(i)/float64(count-1))
		w.env.set(r.value1, v1)
		w.env.set(r.value2, v2)
		w.pointProg.run(w.env)
		pt := wavePointOut{
			x: clampFinite(w.env.get(r.x), -1, 2, 0.5),
			y: clampFinite(w.env.get(r.y), -1, 2, 0.5),
			color: Color{
				R: clampUnit(w.env.get(r.r)),
				G: clampUnit(w.env.get(r.g)),
				B: clampUnit(w.env.get(r.b)),
				A: clampUnit(w.env.get(r.a)),
			},
		}
		w.env.restore()
		out = append(out, pt)
	}
	return out, style
}

type waveStyle struct {
	dots     bool
	thick    bool
	additive bool
}

// drawWavePoints strokes or dots the evaluated points onto dst.
func drawWavePoints(dst *ebiten.Image, pts []wavePointOut, style waveStyle) {
	if len(pts) == 0 {
		return
	}
	b := dst.Bounds()
	w, h := float32(b.Dx()), float32(b.Dy())
	width := float32(1)
	if style.thick {
		width = 3
	}
	blend := ebiten.BlendSourceOver
	if style.additive {
		blend = ebiten.BlendLighter
	}
	if style.dots {
		for _, p := range pts {
			vector.DrawFilledCircle(dst, float32(p.x)*w, (1-float32(p.y))*h, width+1, p.color.toRGBA(), true)
		}
		return
	}
	for i := 1; i < len(pts); i++ {
		p0, p1 := pts[i-1], pts[i]
		var sop vector.StrokeOptions
		sop.Width = width
		path := vector.Path{}
		path.MoveTo(float32(p0.x)*w, (1-float32(p0.y))*h)
		path.LineTo(float32(p1.x)*w, (1-float32(p1.y))*h)
		vs, is := path.AppendVerticesAndIndicesForStroke(nil, nil, &sop)
		for j := range vs {
			a := float32(p1.color.A)
			vs[j].ColorR = float32(p1.color.R) * a
			vs[j].ColorG = float32(p1.color.G) * a
			vs[j].ColorB = float32(p1.color.B) * a
			vs[j].ColorA = a
		}
		top := &ebiten.DrawTrianglesOptions{Blend: blend, AntiAlias: true}
		dst.DrawTriangles(vs, is, WhitePixel, top)
	}
}

// --- Built-in waveform ---

// builtinWave renders the preset's primary waveform per its wave_* frame
// outputs. Modes are a closed set: 0 oscilloscope line, 1 centered spectrum,
// 2 dot wave, 3 double line; other values fall back to mode 0.
func builtinWave(dst *ebiten.Image, pcm []float32, spectrum []float64, refs *slotRefs, e *env) {
	mode := int(clampFinite(e.get(refs.waveMode), 0, 7, 0))
	col := Color{
		R: clampUnit(e.get(refs.waveR)),
		G: clampUnit(e.get(refs.waveG)),
		B: clampUnit(e.get(refs.waveB)),
		A: clampUnit(e.get(refs.waveA)),
	}
	if col.A == 0 || len(pcm) == 0 {
		return
	}
	wx := clampFinite(e.get(refs.waveX), 0, 1, 0.5)
	wy := clampFinite(e.get(refs.waveY), 0, 1, 0.5)
	scale := clampFinite(e.get(refs.waveScale), 0, 10, 1)
	additive := e.get(refs.waveAdditive) != 0

	const pointCount = 256
	pts := make([]wavePointOut, 0, pointCount)
	switch mode {
	case 1: // centered spectrum
		for i := 0; i < pointCount; i++ {
			f := float64(i) / (pointCount - 1)
			mag := 0.0
			if len(spectrum) > 0 {
				mag = spectrum[i*(len(spectrum)-1)/(pointCount-1)]
			}
			pts = append(pts, wavePointOut{x: f, y: wy + 0.25*scale*clampFinite(mag, 0, 1, 0), color: col})
		}
	case 2: // dot wave
		for i := 0; i < pointCount; i++ {
			f := float64(i) / (pointCount - 1)
			s := float64(pcm[i*(len(pcm)-1)/(pointCount-1)])
			pts = append(pts, wavePointOut{x: f, y: wy + 0.2*scale*float64(s), color: col})
		}
		drawWavePoints(dst, pts, waveStyle{dots: true, additive: additive})
		return
	case 3: // double line
		for pass := 0; pass < 2; pass++ {
			pts = pts[:0]
			off := 0.04 * scale * float64(1-2*pass)
			for i := 0; i < pointCount; i++ {
				f := float64(i) / (pointCount - 1)
				s := float64(pcm[i*(len(pcm)-1)/(pointCount-1)])
				pts = append(pts, wavePointOut{x: f, y: wy + off + 0.2*scale*s, color: col})
			}
			drawWavePoints(dst, pts, waveStyle{additive: additive})
		}
		return
	default: // oscilloscope line
		for i := 0; i < pointCount; i++ {
			f := float64(i) / (pointCount - 1)
			s := float64(pcm[i*(len(pcm)-1)/(pointCount-1)])
			pts = append(pts, wavePointOut{x: wx - 0.5 + f, y: wy + 0.2*scale*s, color: col})
		}
	}
	drawWavePoints(dst, pts, waveStyle{additive: additive})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
