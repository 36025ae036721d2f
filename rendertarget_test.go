package projectm

import "testing"

func TestCeilPow2(t *testing.T) {
	tests := []struct {
		input, want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{640, 1024},
		{1024, 1024},
		{1025, 2048},
	}
	for _, tt := range tests {
		if got := ceilPow2(tt.input); got != tt.want {
			t.Errorf("ceilPow2(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestRenderTargetPoolReuse(t *testing.T) {
	var p renderTargetPool

	a := p.Acquire(640, 480)
	b := a.Bounds()
	if b.Dx() != 1024 || b.Dy() != 512 {
		t.Fatalf("target size = %dx%d, want 1024x512", b.Dx(), b.Dy())
	}
	p.Release(a)

	// Close-enough sizes round to the same bucket and reuse the image.
	if got := p.Acquire(600, 400); got != a {
		t.Error("expected the released target to be reused")
	}
}

func TestRenderTargetPoolDrain(t *testing.T) {
	var p renderTargetPool
	p.Release(p.Acquire(320, 240))
	p.Release(p.Acquire(800, 600))

	p.Drain()
	if len(p.free) != 0 {
		t.Errorf("pool holds %d buckets after drain, want 0", len(p.free))
	}
}
