package projectm

// Preset is a parsed, self-contained visual specification: equation programs,
// optional shader sources, custom shape and waveform definitions, and declared
// default values. A Preset is immutable after a successful load; editing a
// preset means loading a new instance. Its persistent state (q registers and
// preset-declared variables) lives in its own env, so two loaded presets never
// share interpreter state.
type Preset struct {
	// Name is the identifier given at load time, used in diagnostics.
	Name string

	// Warnings lists the non-required sections that failed to parse. The
	// preset is still usable; each failed section is disabled.
	Warnings []*SectionError

	env  *env
	refs *slotRefs

	initProg   *program
	frameProg  *program
	vertexProg *program

	// warpSrc and compSrc are Kage fragment shader sources, empty if the
	// preset declares none. Compilation happens on the render thread at
	// activation; a driver rejection falls back to the default pass.
	warpSrc string
	compSrc string

	shapes [maxCustomShapes]shapeDef
	waves  [maxCustomWaves]waveDef

	// textures maps symbolic names used by shapes to host-resolvable
	// references. Unresolvable entries draw with a placeholder.
	textures map[string]string

	// defaults holds the declared per-frame output defaults, restored into
	// the env at the top of every frame. q registers are snapshotted
	// separately at load and reset only on (re)activation.
	defaults  []slotValue
	qDefaults [qRegisterCount]float64

	initDone bool
}

type slotValue struct {
	slot  int
	value float64
}

// outputSlotDefaults is the built-in default for every per-frame output,
// applied before any preset-declared scalar overrides.
var outputSlotDefaults = []struct {
	name  string
	value float64
}{
	{"zoom", 1}, {"zoomexp", 1}, {"rot", 0},
	{"cx", 0.5}, {"cy", 0.5},
	{"dx", 0}, {"dy", 0}, {"sx", 1}, {"sy", 1},
	{"warp", 1}, {"decay", 0.98}, {"gamma", 1},
	{"echo_zoom", 1}, {"echo_alpha", 0},
	{"wave_mode", 0},
	{"wave_r", 1}, {"wave_g", 1}, {"wave_b", 1}, {"wave_a", 0.8},
	{"wave_x", 0.5}, {"wave_y", 0.5}, {"wave_scale", 1}, {"wave_additive", 0},
}

// resetFrameOutputs restores every per-frame output slot to its declared
// default. Persistent registers and preset-declared variables are untouched.
func (p *Preset) resetFrameOutputs() {
	for _, d := range p.defaults {
		p.env.slots[d.slot] = d.value
	}
}

// resetRegisters restores q1..q8 to their declared initial values and arms the
// init program to run again. Called when the preset (re)enters the engine.
func (p *Preset) resetRegisters() {
	for i, s := range p.refs.q {
		p.env.slots[s] = p.qDefaults[i]
	}
	p.initDone = false
}

// runInitOnce evaluates the init program on the first frame after activation.
func (p *Preset) runInitOnce() {
	if p.initDone {
		return
	}
	p.initDone = true
	p.initProg.run(p.env)
}

// HasWarpShader reports whether the preset declares its own warp shader.
func (p *Preset) HasWarpShader() bool { return p.warpSrc != "" }

// HasCompositeShader reports whether the preset declares its own composite shader.
func (p *Preset) HasCompositeShader() bool { return p.compSrc != "" }
