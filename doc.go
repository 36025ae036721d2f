// Package projectm is a real-time, audio-reactive visual synthesis engine for
// [Ebitengine]. It consumes a live PCM window and declarative preset scripts,
// and produces a continuous stream of rendered frames whose geometry, color,
// and motion are driven by per-frame evaluation of the preset's equations.
//
// The engine is embedded by a host application (a media player, a standalone
// viewer) that owns the window and game loop and supplies an audio buffer and
// frame delta each frame:
//
//	engine := projectm.NewEngine(projectm.Config{
//		ViewportWidth: 800, ViewportHeight: 600,
//	})
//	preset, err := engine.LoadPresetFromText("plasma", presetText)
//	if err != nil {
//		// structured load error; the engine keeps rendering whatever
//		// it had before
//	}
//	engine.SetActivePreset(preset, projectm.TransitionCut, 0)
//
//	// each frame, on the render goroutine:
//	frame := engine.RenderFrame(pcmWindow, dt)
//	screen.DrawImage(frame, nil)
//
// # Presets
//
// A preset is a text blob of key=value lines: scalar defaults, init_N and
// per_frame_N equations, per_vertex_N warp equations, optional Kage shader
// sources (warp_N, comp_N), and custom shape and waveform blocks. Presets are
// untrusted input: a syntax error in one section disables that section only,
// and only a missing or unparsable per_frame section fails the load. Runtime
// faults during rendering are recovered per-frame and recorded in a
// diagnostic log the host may query; a frame is always produced.
//
// # Equation language
//
// Expressions over float64 with standard arithmetic precedence, unary
// minus/not, assignment, and a fixed function library (trigonometric,
// exponential, conditional if, rand, clamp, comparison helpers). There are no
// loops: evaluation time is bounded by tree size. Division by zero and other
// domain faults yield 0 rather than trapping. if(c, a, b) evaluates exactly
// one branch, so assignments in the untaken branch never run.
//
// # Transitions
//
// Preset switches are hard cuts or timed cross-fades. During a fade both
// presets render into offscreen targets and are linear-blended by progress;
// an incoming preset that faults mid-fade is dropped and the proven active
// preset retained.
//
// # Threading
//
// Rendering, expression evaluation, and the resource cache all run on the
// goroutine that owns the graphics context. Preset parsing has no graphics
// dependency and may run anywhere; LoadPresetAsync delivers its result at the
// next frame boundary on the render goroutine.
//
// [Ebitengine]: https://ebitengine.org
package projectm
