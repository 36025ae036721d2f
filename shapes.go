package projectm

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// maxCustomShapes is the number of custom shape slots a preset may declare.
const maxCustomShapes = 4

// shapeDef is one custom shape: an n-sided polygon drawn as a triangle fan
// with a center color, an edge color, and an optional border, re-evaluated
// each frame by its per-frame equations. Shapes form a closed variant set
// consumed uniformly by the renderer; there is no open shape hierarchy.
type shapeDef struct {
	enabled bool
	texture string // symbolic texture reference, "" means untextured or feedback

	env       *env
	refs      *shapeRefs
	defaults  []slotValue
	frameProg *program
}

// shapeRefs caches slot indices for the shape-scoped environment.
type shapeRefs struct {
	// Read-only built-ins mirrored from the frame environment.
	time, frame, fps         int
	bass, mid, treb          int
	bassAtt, midAtt, trebAtt int
	instance                 int
	// Writable shape parameters.
	sides, instances   int
	x, y, rad, ang     int
	r, g, b, a         int
	r2, g2, b2, a2     int
	borderR, borderG   int
	borderB, borderA   int
	textured, additive int
	thickOutline       int
	q [qRegisterCount]int
}

var shapeScalarDefaults = []struct {
	name  string
	value float64
}{
	{"sides", 4}, {"instances", 1},
	{"x", 0.5}, {"y", 0.5}, {"rad", 0.1}, {"ang", 0},
	{"r", 1}, {"g", 0}, {"b", 0}, {"a", 1},
	{"r2", 0}, {"g2", 1}, {"b2", 0}, {"a2", 0},
	{"border_r", 1}, {"border_g", 1}, {"border_b", 1}, {"border_a", 0.1},
	{"textured", 0}, {"additive", 0}, {"thickoutline", 0},
}

func newShapeEnv() (*env, *shapeRefs) {
	e := newEnv()
	r := &shapeRefs{
		time:     e.declare("time", true),
		frame:    e.declare("frame", true),
		fps:      e.declare("fps", true),
		bass:     e.declare("bass", true),
		mid:      e.declare("mid", true),
		treb:     e.declare("treb", true),
		bassAtt:  e.declare("bass_att", true),
		midAtt:   e.declare("mid_att", true),
		trebAtt:  e.declare("treb_att", true),
		instance: e.declare("instance", true),

		sides:        e.declare("sides", false),
		instances:    e.declare("instances", false),
		x:            e.declare("x", false),
		y:            e.declare("y", false),
		rad:          e.declare("rad", false),
		ang:          e.declare("ang", false),
		r:            e.declare("r", false),
		g:            e.declare("g", false),
		b:            e.declare("b", false),
		a:            e.declare("a", false),
		r2:           e.declare("r2", false),
		g2:           e.declare("g2", false),
		b2:           e.declare("b2", false),
		a2:           e.declare("a2", false),
		borderR:      e.declare("border_r", false),
		borderG:      e.declare("border_g", false),
		borderB:      e.declare("border_b", false),
		borderA:      e.declare("border_a", false),
		textured:     e.declare("textured", false),
		additive:     e.declare("additive", false),
		thickOutline: e.declare("thickoutline", false),
	}
	for i := 0; i < qRegisterCount; i++ {
		r.q[i] = e.declare("q"+string(rune('1'+i)), false)
	}
	return e, r
}

// buildShape assembles shape slot i from parsed preset source. A shape with
// no declared scalars and no equations stays disabled.
func buildShape(p *Preset, i int, src *presetSource, failures *[]*SectionError) shapeDef {
	scalars := src.shapeScalars[i]
	eqText := src.shapeFrame[i].join()
	if len(scalars) == 0 && eqText == "" && src.shapeTex[i] == "" {
		return shapeDef{}
	}

	s := shapeDef{texture: src.shapeTex[i]}
	s.env, s.refs = newShapeEnv()

	values := make(map[int]float64, len(shapeScalarDefaults))
	for _, d := range shapeScalarDefaults {
		slot, _ := s.env.lookup(d.name)
		values[slot] = d.value
	}
	enabled := true
	for name, v := range scalars {
		if name == "enabled" {
			enabled = v != 0
			continue
		}
		slot := s.env.bind(name)
		if !s.env.isReadOnly(slot) {
			values[slot] = v
		}
	}
	s.enabled = enabled
	s.defaults = make([]slotValue, 0, len(values))
	for slot, v := range values {
		s.defaults = append(s.defaults, slotValue{slot: slot, value: v})
	}
	for _, d := range s.defaults {
		s.env.slots[d.slot] = d.value
	}

	s.frameProg = parseSection(p, shapeSectionName(i), eqText, s.env, failures)
	return s
}

func shapeSectionName(i int) string {
	return "shape_" + string(rune('0'+i)) + "_per_frame"
}

// resetParams restores all shape parameters to their declared defaults before
// the per-frame equations run.
func (s *shapeDef) resetParams() {
	for _, d := range s.defaults {
		s.env.slots[d.slot] = d.value
	}
}

// shapeInstance is one evaluated shape ready to draw.
type shapeInstance struct {
	sides          int
	x, y, rad, ang float64
	center, edge   Color
	border         Color
	textured       bool
	additive       bool
	thickOutline   bool
}

// evaluate runs the shape's per-frame equations for instance n and reads the
// resulting parameters, clamped to drawable ranges.
func (s *shapeDef) evaluate(n int) shapeInstance {
	s.env.set(s.refs.instance, float64(n))
	s.resetParams()
	s.frameProg.run(s.env)

	r := s.refs
	sides := int(clampFinite(s.env.get(r.sides), 3, 100, 4))
	return shapeInstance{
		sides: sides,
		x:     clampFinite(s.env.get(r.x), -1, 2, 0.5),
		y:     clampFinite(s.env.get(r.y), -1, 2, 0.5),
		rad:   clampFinite(s.env.get(r.rad), 0, 4, 0.1),
		ang:   finite(s.env.get(r.ang)),
		center: Color{
			R: clampUnit(s.env.get(r.r)),
			G: clampUnit(s.env.get(r.g)),
			B: clampUnit(s.env.get(r.b)),
			A: clampUnit(s.env.get(r.a)),
		},
		edge: Color{
			R: clampUnit(s.env.get(r.r2)),
			G: clampUnit(s.env.get(r.g2)),
			B: clampUnit(s.env.get(r.b2)),
			A: clampUnit(s.env.get(r.a2)),
		},
		border: Color{
			R: clampUnit(s.env.get(r.borderR)),
			G: clampUnit(s.env.get(r.borderG)),
			B: clampUnit(s.env.get(r.borderB)),
			A: clampUnit(s.env.get(r.borderA)),
		},
		textured:     s.env.get(r.textured) != 0,
		additive:     s.env.get(r.additive) != 0,
		thickOutline: s.env.get(r.thickOutline) != 0,
	}
}

// instanceCount returns the declared instance count, bounded to keep draw
// cost proportional to preset intent.
func (s *shapeDef) instanceCount() int {
	n := int(clampFinite(s.env.get(s.refs.instances), 1, 64, 1))
	return n
}

// buildShapeFan fills verts/inds with a triangle fan for the instance, in
// pixel coordinates for a w x h target. Vertex colors are premultiplied the
// way ebiten expects. When the shape is textured, UVs map the unit circle
// around the shape onto the texture's bounds.
func buildShapeFan(inst shapeInstance, w, h int, tex *ebiten.Image, verts []ebiten.Vertex, inds []uint16) ([]ebiten.Vertex, []uint16) {
	cxp := inst.x * float64(w)
	cyp := (1 - inst.y) * float64(h)
	// Radius is relative to the smaller dimension, matching rad in [0,1]
	// covering roughly half the screen at rad=1.
	radius := inst.rad * 0.5 * math.Min(float64(w), float64(h))

	tw, th := 1, 1
	if tex != nil {
		b := tex.Bounds()
		tw, th = b.Dx(), b.Dy()
	}

	base := uint16(len(verts))
	verts = append(verts, shapeVertex(float32(cxp), float32(cyp), float32(tw)/2, float32(th)/2, inst.center))
	for k := 0; k <= inst.sides; k++ {
		theta := inst.ang + 2*math.Pi*float64(k)/float64(inst.sides) - math.Pi/2
		px := cxp + radius*math.Cos(theta)
		py := cyp + radius*math.Sin(theta)
		u := float32(tw) * float32(0.5+0.5*math.Cos(theta))
		v := float32(th) * float32(0.5+0.5*math.Sin(theta))
		verts = append(verts, shapeVertex(float32(px), float32(py), u, v, inst.edge))
	}
	for k := 0; k < inst.sides; k++ {
		inds = append(inds, base, base+1+uint16(k), base+2+uint16(k))
	}
	return verts, inds
}

// borderPoints returns the outline vertices of the instance in pixel space,
// for stroking the shape border.
func borderPoints(inst shapeInstance, w, h int) []float32 {
	cxp := inst.x * float64(w)
	cyp := (1 - inst.y) * float64(h)
	radius := inst.rad * 0.5 * math.Min(float64(w), float64(h))
	pts := make([]float32, 0, (inst.sides+1)*2)
	for k := 0; k <= inst.sides; k++ {
		theta := inst.ang + 2*math.Pi*float64(k)/float64(inst.sides) - math.Pi/2
		pts = append(pts, float32(cxp+radius*math.Cos(theta)), float32(cyp+radius*math.Sin(theta)))
	}
	return pts
}

// strokeShapeBorder draws the instance outline with the border color.
func strokeShapeBorder(dst *ebiten.Image, inst shapeInstance, w, h int) {
	pts := borderPoints(inst, w, h)
	if len(pts) < 4 {
		return
	}
	var path vector.Path
	path.MoveTo(pts[0], pts[1])
	for i := 2; i < len(pts); i += 2 {
		path.LineTo(pts[i], pts[i+1])
	}
	var sop vector.StrokeOptions
	sop.Width = 1
	if inst.thickOutline {
		sop.Width = 3
	}
	vs, is := path.AppendVerticesAndIndicesForStroke(nil, nil, &sop)
	a := float32(inst.border.A)
	for j := range vs {
		vs[j].ColorR = float32(inst.border.R) * a
		vs[j].ColorG = float32(inst.border.G) * a
		vs[j].ColorB = float32(inst.border.B) * a
		vs[j].ColorA = a
	}
	op := &ebiten.DrawTrianglesOptions{AntiAlias: true}
	dst.DrawTriangles(vs, is, WhitePixel, op)
}

func shapeVertex(x, y, u, v float32, c Color) ebiten.Vertex {
	a := float32(c.A)
	return ebiten.Vertex{
		DstX: x, DstY: y,
		SrcX: u, SrcY: v,
		ColorR: float32(c.R) * a,
		ColorG: float32(c.G) * a,
		ColorB: float32(c.B) * a,
		ColorA: a,
	}
}

// clampFinite clamps v into [lo, hi], substituting def for non-finite input.
func clampFinite(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampUnit clamps to [0,1] with non-finite values treated as 0.
func clampUnit(v float64) float64 {
	return clampFinite(v, 0, 1, 0)
}
