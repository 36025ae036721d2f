package projectm

import (
	"math/rand"
	"strings"
	"time"
)

// env is the variable environment equations evaluate against: a flat table of
// float64 slots addressed by index. Identifiers are resolved to indices once,
// at parse time, so per-frame and per-vertex evaluation never touches the name
// map.
//
// Three lifetimes coexist in the table: per-frame built-ins overwritten by the
// engine before evaluation, persistent q registers that survive for the life
// of one loaded preset, and per-vertex outputs recomputed for every mesh
// vertex. Per-vertex evaluation snapshots the whole slot slice and restores it
// afterwards, so writes made while evaluating one vertex never leak into the
// next vertex or into frame state.
type env struct {
	names    map[string]int
	slots    []float64
	readonly []bool
	saved    []float64 // snapshot buffer, high-water mark
	rng      *rand.Rand
}

func newEnv() *env {
	return &env{
		names: make(map[string]int),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// declare adds a named slot, or returns the existing one. Names are
// case-insensitive; the canonical form is lowercase.
func (e *env) declare(name string, readonly bool) int {
	name = strings.ToLower(name)
	if i, ok := e.names[name]; ok {
		return i
	}
	i := len(e.slots)
	e.names[name] = i
	e.slots = append(e.slots, 0)
	e.readonly = append(e.readonly, readonly)
	return i
}

// bind resolves an identifier for preset code. Unknown names are auto-declared
// as writable slots, matching the preset language's bare-variable semantics.
func (e *env) bind(name string) int {
	return e.declare(name, false)
}

// lookup returns the slot index for name without declaring it.
func (e *env) lookup(name string) (int, bool) {
	i, ok := e.names[strings.ToLower(name)]
	return i, ok
}

func (e *env) get(i int) float64     { return e.slots[i] }
func (e *env) set(i int, v float64)  { e.slots[i] = v }
func (e *env) isReadOnly(i int) bool { return e.readonly[i] }

// save snapshots all slot values. Paired with restore around per-vertex and
// per-point evaluation.
func (e *env) save() {
	if cap(e.saved) < len(e.slots) {
		e.saved = make([]float64, len(e.slots))
	}
	e.saved = e.saved[:len(e.slots)]
	copy(e.saved, e.slots)
}

// restore rolls every slot back to the last save.
func (e *env) restore() {
	copy(e.slots, e.saved)
}

// qRegisterCount is the number of general-purpose persistent registers
// (q1..q8) each preset carries across frames.
const qRegisterCount = 8

// slotRefs caches the slot indices of every standard variable so the engine
// and renderer can read and write them without name lookups.
type slotRefs struct {
	// Read-only per-frame built-ins.
	time, frame, fps         int
	bass, mid, treb          int
	bassAtt, midAtt, trebAtt int
	progress                 int
	meshX, meshY             int
	pixelsX, pixelsY         int
	aspectX, aspectY         int
	// Read-only per-vertex built-ins.
	x, y, rad, ang int
	// Writable frame outputs, reset to preset defaults each frame.
	zoom, zoomExp, rot         int
	cx, cy, dx, dy, sx, sy     int
	warp, decay, gamma         int
	echoZoom, echoAlpha        int
	waveMode                   int
	waveR, waveG, waveB, waveA int
	waveX, waveY, waveScale    int
	waveAdditive               int
	// Persistent registers q1..q8.
	q [qRegisterCount]int
}

// newPresetEnv builds an environment with the standard variable schema
// declared, and returns it with the baked slot indices.
func newPresetEnv() (*env, *slotRefs) {
	e := newEnv()
	r := &slotRefs{
		time:     e.declare("time", true),
		frame:    e.declare("frame", true),
		fps:      e.declare("fps", true),
		bass:     e.declare("bass", true),
		mid:      e.declare("mid", true),
		treb:     e.declare("treb", true),
		bassAtt:  e.declare("bass_att", true),
		midAtt:   e.declare("mid_att", true),
		trebAtt:  e.declare("treb_att", true),
		progress: e.declare("progress", true),
		meshX:    e.declare("meshx", true),
		meshY:    e.declare("meshy", true),
		pixelsX:  e.declare("pixelsx", true),
		pixelsY:  e.declare("pixelsy", true),
		aspectX:  e.declare("aspectx", true),
		aspectY:  e.declare("aspecty", true),

		x:   e.declare("x", true),
		y:   e.declare("y", true),
		rad: e.declare("rad", true),
		ang: e.declare("ang", true),

		zoom:         e.declare("zoom", false),
		zoomExp:      e.declare("zoomexp", false),
		rot:          e.declare("rot", false),
		cx:           e.declare("cx", false),
		cy:           e.declare("cy", false),
		dx:           e.declare("dx", false),
		dy:           e.declare("dy", false),
		sx:           e.declare("sx", false),
		sy:           e.declare("sy", false),
		warp:         e.declare("warp", false),
		decay:        e.declare("decay", false),
		gamma:        e.declare("gamma", false),
		echoZoom:     e.declare("echo_zoom", false),
		echoAlpha:    e.declare("echo_alpha", false),
		waveMode:     e.declare("wave_mode", false),
		waveR:        e.declare("wave_r", false),
		waveG:        e.declare("wave_g", false),
		waveB:        e.declare("wave_b", false),
		waveA:        e.declare("wave_a", false),
		waveX:        e.declare("wave_x", false),
		waveY:        e.declare("wave_y", false),
		waveScale:    e.declare("wave_scale", false),
		waveAdditive: e.declare("wave_additive", false),
	}
	for i := 0; i < qRegisterCount; i++ {
		r.q[i] = e.declare("q"+string(rune('1'+i)), false)
	}
	return e, r
}
