package projectm

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TransitionKind selects how an incoming preset replaces the active one.
type TransitionKind uint8

const (
	// TransitionCut swaps on the very next frame with no blending.
	TransitionCut TransitionKind = iota
	// TransitionCrossfade blends the two presets' outputs over a duration.
	TransitionCrossfade
)

// transitionState owns the currently active preset, an optional incoming
// preset, and the blend progress between them. Two states exist: steady
// (incoming == nil) and transitioning. A switch request while already
// transitioning discards the in-flight incoming preset in favor of the new
// target; the active preset is never interrupted mid-frame.
type transitionState struct {
	active   *Preset
	incoming *Preset
	tween    *gween.Tween
	progress float64
}

// Steady reports whether no transition is in flight.
func (t *transitionState) Steady() bool { return t.incoming == nil }

// begin starts a switch to p. The returned preset is the discarded in-flight
// incoming preset, if any, so the caller can release its resources.
func (t *transitionState) begin(p *Preset, kind TransitionKind, duration float64) (discarded *Preset) {
	if p == t.active {
		// Re-selecting the active preset: there is nothing to fade to, and
		// the preset must never end up as its own incoming. Any in-flight
		// fade toward a different preset is dropped.
		return t.abort()
	}
	discarded = t.incoming
	if t.active == nil {
		// First preset: no transition to run, activate directly.
		t.active = p
		t.incoming = nil
		t.tween = nil
		t.progress = 0
		return discarded
	}
	t.incoming = p
	t.progress = 0
	if kind == TransitionCut || duration <= 0 {
		// Hard cut: progress jumps straight to 1 on the next tick.
		t.tween = gween.New(0, 1, 1e-9, ease.Linear)
		return discarded
	}
	t.tween = gween.New(0, 1, float32(duration), ease.InOutQuad)
	return discarded
}

// tick advances blend progress by the frame delta. When progress reaches 1
// the incoming preset becomes active; the returned preset is the retired
// previous active preset (nil if the transition is still running or steady).
func (t *transitionState) tick(dt float64) (retired *Preset) {
	if t.incoming == nil || t.tween == nil {
		return nil
	}
	v, done := t.tween.Update(float32(dt))
	t.progress = float64(v)
	if !done {
		return nil
	}
	retired = t.active
	t.active = t.incoming
	t.incoming = nil
	t.tween = nil
	t.progress = 0
	if retired == t.active {
		// Degenerate fade onto itself: the preset stays active, nothing
		// retires.
		return nil
	}
	return retired
}

// abort cancels the in-flight transition, keeping the current active preset.
// Used when the incoming preset faults after activation: the engine falls
// back to steady state rather than propagating the failure. Returns the
// discarded incoming preset for resource release.
func (t *transitionState) abort() (discarded *Preset) {
	discarded = t.incoming
	t.incoming = nil
	t.tween = nil
	t.progress = 0
	return discarded
}
