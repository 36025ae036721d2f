package projectm

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// Config controls engine construction. The zero value is usable: 640x480
// viewport, 32x24 evaluation mesh, 512-point FFT, 2.7s cross-fades.
type Config struct {
	// ViewportWidth and ViewportHeight size the output image in pixels.
	ViewportWidth, ViewportHeight int
	// MeshWidth and MeshHeight size the coarse per-vertex evaluation grid.
	MeshWidth, MeshHeight int
	// FFTSize is the audio analysis window; rounded down to a power of two.
	FFTSize int
	// TransitionDuration is the default cross-fade length in seconds.
	TransitionDuration float64
	// TextureResolver resolves symbolic texture references from presets.
	// Nil means every reference draws with the placeholder texture.
	TextureResolver TextureResolverFunc
}

const defaultTransitionDuration = 2.7

func (c *Config) applyDefaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 640
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 480
	}
	if c.MeshWidth <= 0 {
		c.MeshWidth = defaultMeshWidth
	}
	if c.MeshHeight <= 0 {
		c.MeshHeight = defaultMeshHeight
	}
	if c.FFTSize <= 0 {
		c.FFTSize = defaultFFTSize
	}
	if c.TransitionDuration <= 0 {
		c.TransitionDuration = defaultTransitionDuration
	}
}

// Engine is the preset execution engine. The embedding host calls RenderFrame
// once per output frame with the current PCM window and frame delta, and
// receives the composited image.
//
// Everything GPU-facing (RenderFrame, SetActivePreset, SetViewport,
// SetMeshSize) must be called from the goroutine that owns the graphics
// context. Preset parsing has no graphics dependency: LoadPresetFromText may
// run anywhere, and LoadPresetAsync parses on its own goroutine, delivering
// the result at the next frame boundary.
type Engine struct {
	cfg      Config
	cache    *ResourceCache
	analyzer *analyzer
	renderer *renderer
	diag     *diagnosticLog
	ts       transitionState
	fps      fpsMeter

	// runs maps presets in play to their renderer state.
	runs map[*Preset]*presetRun

	loadCh chan loadResult

	time  float64
	frame int
}

type loadResult struct {
	preset *Preset
	err    error
	name   string
}

// NewEngine creates an engine. Must be called with a valid graphics context
// (it allocates the output image and compiles the built-in shaders).
func NewEngine(cfg Config) *Engine {
	cfg.applyDefaults()
	cache := NewResourceCache()
	diag := newDiagnosticLog()
	e := &Engine{
		cfg:      cfg,
		cache:    cache,
		analyzer: newAnalyzer(cfg.FFTSize),
		diag:     diag,
		runs:     make(map[*Preset]*presetRun),
		loadCh:   make(chan loadResult, 4),
	}
	e.renderer = newRenderer(cache, diag, cfg.ViewportWidth, cfg.ViewportHeight, cfg.MeshWidth, cfg.MeshHeight)
	e.renderer.resolver = cfg.TextureResolver
	return e
}

// LoadPresetFromText parses preset text into a Preset, or returns a
// *LoadError describing which sections failed. A load failure never disturbs
// whatever is currently rendering.
func (e *Engine) LoadPresetFromText(name, text string) (*Preset, error) {
	p, err := ParsePreset(name, text)
	if err != nil {
		return nil, err
	}
	if len(p.Warnings) > 0 {
		logger.WithFields(logFields{
			"preset":   name,
			"warnings": len(p.Warnings),
		}).Info("preset loaded with disabled sections")
	}
	return p, nil
}

// LoadPresetAsync parses text on a worker goroutine. On success the preset is
// switched in with the default cross-fade at the next RenderFrame boundary;
// on failure the error is recorded in the diagnostic log and the current
// state is untouched. Activation always happens on the render thread.
func (e *Engine) LoadPresetAsync(name, text string) {
	go func() {
		p, err := ParsePreset(name, text)
		e.loadCh <- loadResult{preset: p, err: err, name: name}
	}()
}

// SetActivePreset requests a switch to p. From steady state this starts a
// transition; if a transition is already in flight, its incoming preset is
// discarded in favor of p and the active preset continues unaffected.
func (e *Engine) SetActivePreset(p *Preset, kind TransitionKind, duration float64) {
	if p == nil {
		return
	}
	if duration <= 0 {
		duration = e.cfg.TransitionDuration
	}
	discarded := e.ts.begin(p, kind, duration)
	e.releasePreset(discarded)
	if _, ok := e.runs[p]; !ok {
		e.runs[p] = e.renderer.activate(p, e.frame)
	}
	logger.WithFields(logFields{
		"preset": p.Name,
		"cut":    kind == TransitionCut,
	}).Debug("preset switch requested")
}

// ActivePreset returns the currently active preset, nil before the first
// switch.
func (e *Engine) ActivePreset() *Preset { return e.ts.active }

// Transitioning reports whether a cross-fade is in flight.
func (e *Engine) Transitioning() bool { return !e.ts.Steady() }

// RenderFrame runs the full per-frame pipeline: audio feature extraction,
// frame and per-vertex equation evaluation for every preset in play, the GPU
// passes, and transition blending. It always returns a valid image, even when
// a preset faults mid-frame.
//
// pcm is this frame's mono PCM window; dt is the frame delta in seconds.
func (e *Engine) RenderFrame(pcm []float32, dt float64) *ebiten.Image {
	e.drainLoads()

	if dt < 0 {
		dt = 0
	}
	e.time += dt
	e.frame++
	fps := e.fps.tick(dt)

	feats := e.analyzer.analyze(pcm, dt)

	// Advance the transition before rendering so a completed fade retires
	// the old preset without drawing it one extra frame.
	if retired := e.ts.tick(dt); retired != nil {
		e.releasePreset(retired)
	}

	in := frameInputs{
		features: feats,
		time:     e.time,
		frame:    e.frame,
		fps:      fps,
		pcm:      pcm,
		spectrum: e.analyzer.spectrum,
	}

	activeRun := e.runs[e.ts.active]
	var incomingRun *presetRun
	if e.ts.incoming != nil {
		incomingRun = e.runs[e.ts.incoming]
	}

	incomingFaulted := e.renderer.renderFrame(activeRun, incomingRun, e.ts.progress, in)
	if incomingFaulted {
		// The incoming preset faulted during evaluation: abort the
		// transition and stay on the proven active preset.
		name := e.ts.incoming.Name
		e.releasePreset(e.ts.abort())
		e.diag.add(e.frame, FaultTransition, name, "incoming preset faulted, transition aborted")
	}

	return e.renderer.output
}

// drainLoads consumes async parse results at the frame boundary and applies
// successful ones as switch requests.
func (e *Engine) drainLoads() {
	for {
		select {
		case res := <-e.loadCh:
			if res.err != nil {
				logger.WithField("preset", res.name).WithError(res.err).Warn("async preset load failed")
				e.diag.add(e.frame, FaultResource, res.name, "async load failed: "+res.err.Error())
				continue
			}
			e.SetActivePreset(res.preset, TransitionCrossfade, e.cfg.TransitionDuration)
		default:
			return
		}
	}
}

// releasePreset drops the renderer state for a preset no longer in play.
func (e *Engine) releasePreset(p *Preset) {
	if p == nil {
		return
	}
	if run, ok := e.runs[p]; ok {
		e.renderer.release(run)
		delete(e.runs, p)
	}
}

// SetViewport resizes the output image. Feedback history is reset.
func (e *Engine) SetViewport(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	e.renderer.setViewport(w, h)
	for _, run := range e.runs {
		e.renderer.resizeRun(run)
	}
}

// SetMeshSize resizes the coarse per-vertex evaluation grid.
func (e *Engine) SetMeshSize(w, h int) {
	e.renderer.setMeshSize(w, h)
}

// SetTextureResolver replaces the texture resolver. Affects presets activated
// after the call; already-acquired textures keep their resolution.
func (e *Engine) SetTextureResolver(fn TextureResolverFunc) {
	e.renderer.resolver = fn
}

// Diagnostics returns the recovered faults recorded so far, oldest first.
func (e *Engine) Diagnostics() []Diagnostic {
	return e.diag.snapshot()
}

// Output returns the last composited frame without rendering a new one.
func (e *Engine) Output() *ebiten.Image {
	return e.renderer.output
}
