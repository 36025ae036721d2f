package projectm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

func TestTransitionFirstPresetActivatesDirectly(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	discarded := ts.begin(a, TransitionCrossfade, 2)
	assert.Nil(t, discarded)
	assert.True(t, ts.Steady())
	assert.Same(t, a, ts.active)
}

func TestTransitionCrossfade(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	b := &Preset{Name: "b"}
	ts.begin(a, TransitionCrossfade, 2)
	ts.begin(b, TransitionCrossfade, 2)
	assert.False(t, ts.Steady())
	assert.Same(t, a, ts.active)
	assert.Same(t, b, ts.incoming)

	retired := ts.tick(1)
	assert.Nil(t, retired, "half way through, nothing retires")
	assert.InDelta(t, 0.5, ts.progress, 1e-6, "ease in-out is 0.5 at the midpoint")

	retired = ts.tick(1.5)
	assert.Same(t, a, retired)
	assert.True(t, ts.Steady())
	assert.Same(t, b, ts.active)
	assert.Equal(t, 0.0, ts.progress)
}

func TestTransitionProgressMonotonic(t *testing.T) {
	ts := &transitionState{}
	ts.begin(&Preset{Name: "a"}, TransitionCut, 0)
	ts.begin(&Preset{Name: "b"}, TransitionCrossfade, 1)
	last := 0.0
	for i := 0; i < 10; i++ {
		if ts.tick(0.1) != nil {
			break
		}
		assert.GreaterOrEqual(t, ts.progress, last)
		last = ts.progress
	}
}

func TestTransitionCutCompletesNextTick(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	b := &Preset{Name: "b"}
	ts.begin(a, TransitionCut, 0)
	ts.begin(b, TransitionCut, 0)
	retired := ts.tick(1.0 / 60)
	assert.Same(t, a, retired)
	assert.Same(t, b, ts.active)
	assert.True(t, ts.Steady())
}

// A switch while a transition is in flight drops the old incoming preset and
// retargets; the active preset keeps rendering uninterrupted.
func TestTransitionRetarget(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	b := &Preset{Name: "b"}
	c := &Preset{Name: "c"}
	ts.begin(a, TransitionCrossfade, 2)
	ts.begin(b, TransitionCrossfade, 2)
	ts.tick(0.5)

	discarded := ts.begin(c, TransitionCrossfade, 2)
	assert.Same(t, b, discarded)
	assert.Same(t, a, ts.active)
	assert.Same(t, c, ts.incoming)
	assert.Equal(t, 0.0, ts.progress, "retarget restarts the blend")
}

// Re-selecting the active preset must leave it untouched: it never becomes
// its own incoming, and completing such a request must never retire it.
func TestTransitionReselectActiveIsNoOp(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	ts.begin(a, TransitionCut, 0)

	discarded := ts.begin(a, TransitionCrossfade, 1)
	assert.Nil(t, discarded)
	assert.True(t, ts.Steady())
	assert.Same(t, a, ts.active)
	assert.Nil(t, ts.tick(5), "nothing ever retires")
	assert.Same(t, a, ts.active)
}

func TestTransitionReselectActiveCancelsFade(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	b := &Preset{Name: "b"}
	ts.begin(a, TransitionCut, 0)
	ts.begin(b, TransitionCrossfade, 2)
	ts.tick(0.5)

	discarded := ts.begin(a, TransitionCrossfade, 2)
	assert.Same(t, b, discarded)
	assert.True(t, ts.Steady())
	assert.Same(t, a, ts.active)
	assert.Nil(t, ts.tick(5))
	assert.Same(t, a, ts.active)
}

func TestTransitionCompletionNeverRetiresActive(t *testing.T) {
	// Even with the state forced into incoming == active, completion must not
	// hand the still-active preset back for release.
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	ts.begin(a, TransitionCut, 0)
	ts.incoming = a
	ts.tween = gween.New(0, 1, 0.1, ease.Linear)

	retired := ts.tick(1)
	assert.Nil(t, retired)
	assert.Same(t, a, ts.active)
	assert.True(t, ts.Steady())
}

func TestTransitionAbort(t *testing.T) {
	ts := &transitionState{}
	a := &Preset{Name: "a"}
	b := &Preset{Name: "b"}
	ts.begin(a, TransitionCrossfade, 2)
	ts.begin(b, TransitionCrossfade, 2)
	ts.tick(0.5)

	discarded := ts.abort()
	assert.Same(t, b, discarded)
	assert.True(t, ts.Steady())
	assert.Same(t, a, ts.active)
	assert.Nil(t, ts.tick(1), "aborted state ticks as steady")
}
