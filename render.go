package projectm

import (
	"fmt"
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

// TextureResolverFunc resolves a symbolic texture reference from a preset
// into a decoded pixel buffer. Supplied by the embedding host; the engine
// does no file or image decoding of its own. Returning an error substitutes
// a placeholder texture.
type TextureResolverFunc func(name string) (image.Image, error)

// presetRun is the renderer-side state of one preset in play: its feedback
// canvas pair, compiled shaders, and acquired textures. Created when a preset
// becomes active or incoming, destroyed when it is fully faded out.
type presetRun struct {
	preset *Preset

	// prev is read and curr written each frame; swapped afterwards. The
	// previous frame's composited output feeds the next frame's warp pass.
	prev, curr *ebiten.Image

	warpShader *Resource
	compShader *Resource
	textures   map[string]*Resource

	activated bool
}

// renderer executes the per-frame pipeline for one or two presets and owns
// every GPU-side object involved: feedback canvases, the warp mesh buffers,
// the offscreen target pool, and the final output image.
type renderer struct {
	width, height int
	mesh          *warpMesh
	pool          renderTargetPool
	comp          *compositor
	cache         *ResourceCache
	resolver      TextureResolverFunc
	diag          *diagnosticLog

	output *ebiten.Image

	// Scratch buffers for shape fans, reused across frames.
	shapeVerts []ebiten.Vertex
	shapeInds  []uint16
	wavePts    []wavePointOut
}

// frameInputs carries one frame's evaluated audio features and timing into
// the pipeline.
type frameInputs struct {
	features audioFeatures
	time     float64
	frame    int
	fps      float64
	progress float64 // transition progress seen by this preset's equations
	pcm      []float32
	spectrum []float64
}

func newRenderer(cache *ResourceCache, diag *diagnosticLog, w, h, meshW, meshH int) *renderer {
	return &renderer{
		width:  w,
		height: h,
		mesh:   newWarpMesh(meshW, meshH),
		comp:   newCompositor(),
		cache:  cache,
		diag:   diag,
		output: ebiten.NewImage(w, h),
	}
}

func (r *renderer) setViewport(w, h int) {
	if w == r.width && h == r.height {
		return
	}
	r.width = w
	r.height = h
	r.output.Deallocate()
	r.output = ebiten.NewImage(w, h)
	r.pool.Drain()
}

func (r *renderer) setMeshSize(w, h int) {
	r.mesh = newWarpMesh(w, h)
}

// activate builds the GPU-side state for a preset: feedback canvases, shader
// compilation through the cache, and texture acquisition. Shader compile
// rejections are resource faults: the preset falls back to the default pass
// and the fault is recorded, never returned.
func (r *renderer) activate(p *Preset, frame int) *presetRun {
	run := &presetRun{
		preset:   p,
		prev:     ebiten.NewImage(r.width, r.height),
		curr:     ebiten.NewImage(r.width, r.height),
		textures: make(map[string]*Resource),
	}
	run.prev.Fill(Color{0, 0, 0, 1}.toRGBA())
	run.curr.Fill(Color{0, 0, 0, 1}.toRGBA())

	if p.HasWarpShader() {
		res, err := r.cache.AcquireShader(p.warpSrc)
		if err != nil {
			r.diag.add(frame, FaultResource, p.Name, fmt.Sprintf("warp shader rejected: %v", err))
		} else {
			run.warpShader = res
		}
	}
	if p.HasCompositeShader() {
		res, err := r.cache.AcquireShader(p.compSrc)
		if err != nil {
			r.diag.add(frame, FaultResource, p.Name, fmt.Sprintf("composite shader rejected: %v", err))
		} else {
			run.compShader = res
		}
	}

	for name, ref := range p.textures {
		run.textures[name] = r.acquireTexture(ref, p.Name, frame)
	}

	p.resetRegisters()
	return run
}

// acquireTexture resolves one symbolic reference through the host resolver,
// caching by reference so presets sharing a texture share one GPU upload.
// Unresolvable references share a single placeholder entry.
func (r *renderer) acquireTexture(ref, presetName string, frame int) *Resource {
	if r.resolver != nil {
		res, err := r.cache.AcquireTexture("tex:"+ref, func() (*ebiten.Image, error) {
			src, err := r.resolver(ref)
			if err != nil {
				return nil, err
			}
			return ebiten.NewImageFromImage(src), nil
		})
		if err == nil {
			return res
		}
		r.diag.add(frame, FaultResource, presetName, fmt.Sprintf("texture %q unresolved: %v", ref, err))
	}
	res, _ := r.cache.AcquireTexture("tex:placeholder", func() (*ebiten.Image, error) {
		return placeholderTexture(), nil
	})
	return res
}

// resizeRun reallocates a run's feedback canvases for the current viewport.
// The feedback history is lost, which matches a resolution change visually.
func (r *renderer) resizeRun(run *presetRun) {
	run.prev.Deallocate()
	run.curr.Deallocate()
	run.prev = ebiten.NewImage(r.width, r.height)
	run.curr = ebiten.NewImage(r.width, r.height)
	run.prev.Fill(Color{0, 0, 0, 1}.toRGBA())
	run.curr.Fill(Color{0, 0, 0, 1}.toRGBA())
}

// release frees a run's GPU state. The preset itself may be reactivated
// later; its interpreter state is reset at that point, not here.
func (r *renderer) release(run *presetRun) {
	if run == nil {
		return
	}
	run.prev.Deallocate()
	run.curr.Deallocate()
	r.cache.Release(run.warpShader)
	r.cache.Release(run.compShader)
	for _, res := range run.textures {
		r.cache.Release(res)
	}
	run.textures = nil
}

// renderRun executes pipeline steps 2-6 for one preset into dst. A panic
// anywhere in evaluation or drawing is recovered into a neutral frame: the
// previous canvas is copied through unchanged and a runtime fault recorded.
// A frame is always produced. Returns false if the run faulted.
func (r *renderer) renderRun(run *presetRun, in frameInputs, dst *ebiten.Image) (ok bool) {
	ok = true
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			r.diag.add(in.frame, FaultRuntime, run.preset.Name, fmt.Sprintf("evaluation fault: %v", rec))
			r.neutralFrame(run, dst)
		}
	}()

	p := run.preset
	r.bindBuiltins(p, in)
	p.resetFrameOutputs()
	p.runInitOnce()
	p.frameProg.run(p.env)

	// Per-vertex pass over the coarse grid, then upsample and warp.
	r.mesh.evaluate(p)
	decay := clampFinite(p.env.get(p.refs.decay), 0, 1, 0.98)
	srcB := run.prev.Bounds()
	verts, inds := r.mesh.buildVertices(r.width, r.height, srcB.Dx(), srcB.Dy(), Color{decay, decay, decay, 1})

	run.curr.Clear()
	warpPass(run.curr, run.prev, verts, inds, run.warpShader.Shader(), r.uniforms(p, in))

	// Overlay passes: built-in waveform, custom waves, custom shapes.
	builtinWave(run.curr, in.pcm, in.spectrum, p.refs, p.env)
	r.drawCustomWaves(run, in)
	r.drawShapes(run, in)

	// Composite into the destination.
	gamma := clampFinite(p.env.get(p.refs.gamma), 0.1, 8, 1)
	uniforms := r.uniforms(p, in)
	uniforms["Gamma"] = float32(gamma)
	r.comp.apply(dst, run.curr, run.compShader.Shader(), uniforms)

	// The composited output becomes next frame's feedback input.
	run.prev, run.curr = run.curr, run.prev
	return ok
}

// neutralFrame substitutes an identity contribution for a faulted preset.
// The previous canvas passes through the warp mesh with identity UVs and no
// decay or shader, so the output matches a preset whose equations did nothing
// this frame.
func (r *renderer) neutralFrame(run *presetRun, dst *ebiten.Image) {
	r.mesh.evaluateIdentity()
	srcB := run.prev.Bounds()
	verts, inds := r.mesh.buildVertices(r.width, r.height, srcB.Dx(), srcB.Dy(), ColorWhite)
	warpPass(dst, run.prev, verts, inds, nil, nil)
}

// bindBuiltins writes this frame's read-only built-ins into the preset env.
func (r *renderer) bindBuiltins(p *Preset, in frameInputs) {
	e, ref := p.env, p.refs
	f := in.features
	e.slots[ref.time] = in.time
	e.slots[ref.frame] = float64(in.frame)
	e.slots[ref.fps] = in.fps
	e.slots[ref.bass] = f.Bass
	e.slots[ref.mid] = f.Mid
	e.slots[ref.treb] = f.Treb
	e.slots[ref.bassAtt] = f.BassAtt
	e.slots[ref.midAtt] = f.MidAtt
	e.slots[ref.trebAtt] = f.TrebAtt
	e.slots[ref.progress] = in.progress
	e.slots[ref.meshX] = float64(r.mesh.gridW)
	e.slots[ref.meshY] = float64(r.mesh.gridH)
	e.slots[ref.pixelsX] = float64(r.width)
	e.slots[ref.pixelsY] = float64(r.height)
	aspect := float64(r.width) / float64(r.height)
	if aspect >= 1 {
		e.slots[ref.aspectX] = 1
		e.slots[ref.aspectY] = 1 / aspect
	} else {
		e.slots[ref.aspectX] = aspect
		e.slots[ref.aspectY] = 1
	}
}

// uniforms builds the standard uniform set bound to preset shaders.
func (r *renderer) uniforms(p *Preset, in frameInputs) map[string]any {
	return map[string]any{
		"Time":     float32(in.time),
		"Gamma":    float32(clampFinite(p.env.get(p.refs.gamma), 0.1, 8, 1)),
		"Bass":     float32(in.features.Bass),
		"Mid":      float32(in.features.Mid),
		"Treb":     float32(in.features.Treb),
		"Progress": float32(in.progress),
	}
}

// drawCustomWaves evaluates and draws every enabled custom waveform.
func (r *renderer) drawCustomWaves(run *presetRun, in frameInputs) {
	p := run.preset
	for i := range p.waves {
		w := &p.waves[i]
		if !w.enabled {
			continue
		}
		r.bindOverlayBuiltins(w.env, []overlaySlot{
			{w.refs.time, in.time}, {w.refs.frame, float64(in.frame)}, {w.refs.fps, in.fps},
			{w.refs.bass, in.features.Bass}, {w.refs.mid, in.features.Mid}, {w.refs.treb, in.features.Treb},
			{w.refs.bassAtt, in.features.BassAtt}, {w.refs.midAtt, in.features.MidAtt}, {w.refs.trebAtt, in.features.TrebAtt},
		})
		copyQRegisters(p, w.env, w.refs.q)
		var style waveStyle
		r.wavePts, style = w.evaluate(in.pcm, in.spectrum, r.wavePts)
		drawWavePoints(run.curr, r.wavePts, style)
	}
}

// drawShapes evaluates and draws every enabled custom shape, instance by
// instance.
func (r *renderer) drawShapes(run *presetRun, in frameInputs) {
	p := run.preset
	for i := range p.shapes {
		s := &p.shapes[i]
		if !s.enabled {
			continue
		}
		r.bindOverlayBuiltins(s.env, []overlaySlot{
			{s.refs.time, in.time}, {s.refs.frame, float64(in.frame)}, {s.refs.fps, in.fps},
			{s.refs.bass, in.features.Bass}, {s.refs.mid, in.features.Mid}, {s.refs.treb, in.features.Treb},
			{s.refs.bassAtt, in.features.BassAtt}, {s.refs.midAtt, in.features.MidAtt}, {s.refs.trebAtt, in.features.TrebAtt},
		})
		copyQRegisters(p, s.env, s.refs.q)

		instances := s.instanceCount()
		for n := 0; n < instances; n++ {
			inst := s.evaluate(n)

			var tex *ebiten.Image
			if inst.textured {
				tex = run.prev
				if s.texture != "" {
					if res, ok := run.textures[s.texture]; ok {
						tex = res.Image()
					}
				}
			}
			src := tex
			if src == nil {
				src = WhitePixel
			}

			r.shapeVerts = r.shapeVerts[:0]
			r.shapeInds = r.shapeInds[:0]
			r.shapeVerts, r.shapeInds = buildShapeFan(inst, r.width, r.height, tex, r.shapeVerts, r.shapeInds)

			op := &ebiten.DrawTrianglesOptions{}
			if inst.additive {
				op.Blend = ebiten.BlendLighter
			}
			run.curr.DrawTriangles(r.shapeVerts, r.shapeInds, src, op)

			if inst.border.A > 0 {
				strokeShapeBorder(run.curr, inst, r.width, r.height)
			}
		}
	}
}

type overlaySlot struct {
	slot  int
	value float64
}

func (r *renderer) bindOverlayBuiltins(e *env, vals []overlaySlot) {
	for _, v := range vals {
		e.slots[v.slot] = v.value
	}
}

// copyQRegisters mirrors the preset's persistent registers into an overlay
// environment so shape and wave code reads the values frame code computed.
func copyQRegisters(p *Preset, dst *env, dstQ [qRegisterCount]int) {
	for i, s := range p.refs.q {
		dst.slots[dstQ[i]] = p.env.slots[s]
	}
}

// renderFrame renders the current transition state into the output image.
// Steady state renders the active preset directly; a transition renders both
// presets into pooled offscreen targets and linear-blends by progress.
// Returns whether the incoming preset (if any) faulted this frame.
func (r *renderer) renderFrame(active, incoming *presetRun, progress float64, in frameInputs) (incomingFaulted bool) {
	if active == nil {
		r.output.Clear()
		return false
	}

	if incoming == nil {
		inA := in
		inA.progress = 0
		r.output.Clear()
		r.renderRun(active, inA, r.output)
		return false
	}

	a := r.pool.Acquire(r.width, r.height)
	b := r.pool.Acquire(r.width, r.height)

	inA := in
	inA.progress = 0
	r.renderRun(active, inA, a)

	inB := in
	inB.progress = progress
	okB := r.renderRun(incoming, inB, b)

	// out = (1-p)*A + p*B. A is opaque, so drawing B over it with alpha p
	// under source-over blending yields exactly the linear blend.
	r.output.Clear()
	var opA ebiten.DrawImageOptions
	r.output.DrawImage(subTarget(a, r.width, r.height), &opA)
	var opB ebiten.DrawImageOptions
	opB.ColorScale.ScaleAlpha(float32(progress))
	r.output.DrawImage(subTarget(b, r.width, r.height), &opB)

	r.pool.Release(a)
	r.pool.Release(b)
	return !okB
}

// subTarget crops a pooled power-of-two target to the viewport.
func subTarget(img *ebiten.Image, w, h int) *ebiten.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	return img.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Min.X+w, b.Min.Y+h)).(*ebiten.Image)
}
