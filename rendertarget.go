package projectm

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

type poolSize struct {
	w, h int
}

// renderTargetPool recycles offscreen images for transition rendering. Each
// crossfading frame needs two scratch targets, one per preset, blended and
// returned before the frame ends. Sizes round up to powers of two so targets
// survive small viewport changes; once the pool is warm no frame allocates.
type renderTargetPool struct {
	free map[poolSize][]*ebiten.Image
}

// Acquire returns a cleared offscreen image of at least w by h pixels. The
// caller owns it until Release.
func (p *renderTargetPool) Acquire(w, h int) *ebiten.Image {
	size := poolSize{ceilPow2(w), ceilPow2(h)}

	if imgs := p.free[size]; len(imgs) > 0 {
		img := imgs[len(imgs)-1]
		p.free[size] = imgs[:len(imgs)-1]
		img.Clear()
		return img
	}

	return ebiten.NewImageWithOptions(
		image.Rect(0, 0, size.w, size.h),
		&ebiten.NewImageOptions{Unmanaged: true},
	)
}

// Release hands an image back for reuse. Clearing happens on the next
// Acquire rather than here, so a release followed by an immediate re-acquire
// clears only once.
func (p *renderTargetPool) Release(img *ebiten.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()
	size := poolSize{b.Dx(), b.Dy()}
	if p.free == nil {
		p.free = make(map[poolSize][]*ebiten.Image)
	}
	p.free[size] = append(p.free[size], img)
}

// Drain deallocates every pooled image. Called on viewport changes so
// wrong-sized targets do not sit on the GPU.
func (p *renderTargetPool) Drain() {
	for size, imgs := range p.free {
		for _, img := range imgs {
			img.Deallocate()
		}
		delete(p.free, size)
	}
}

// ceilPow2 returns the smallest power of two that is >= n, minimum 1.
func ceilPow2(n int) int {
	v := 1
	for v < n {
		v <<= 1
	}
	return v
}
