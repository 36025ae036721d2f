package projectm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

// ResourceCache owns GPU-side objects shared across presets: decoded textures
// and compiled shaders, keyed by content identity and reference counted.
// Two presets acquiring the same key share one GPU object; an entry is freed
// only when its last reference is released.
//
// The cache must only be touched from the thread that owns the graphics
// context. It performs no locking; single-owner discipline is the caller's
// contract (see Engine).
type ResourceCache struct {
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	key    string
	refs   int
	image  *ebiten.Image
	shader *ebiten.Shader
}

// Resource is a shared handle into the cache. Release it through the cache
// that produced it.
type Resource struct {
	entry *cacheEntry
}

// Image returns the texture held by this resource, or nil for shader entries.
func (r *Resource) Image() *ebiten.Image {
	if r == nil || r.entry == nil {
		return nil
	}
	return r.entry.image
}

// Shader returns the compiled shader held by this resource, or nil for
// texture entries.
func (r *Resource) Shader() *ebiten.Shader {
	if r == nil || r.entry == nil {
		return nil
	}
	return r.entry.shader
}

// Key returns the content key the resource was acquired under.
func (r *Resource) Key() string {
	if r == nil || r.entry == nil {
		return ""
	}
	return r.entry.key
}

func NewResourceCache() *ResourceCache {
	return &ResourceCache{entries: make(map[string]*cacheEntry)}
}

// AcquireTexture returns a shared texture for key, invoking build only on the
// first acquisition. The reference count is incremented either way.
func (c *ResourceCache) AcquireTexture(key string, build func() (*ebiten.Image, error)) (*Resource, error) {
	if e, ok := c.entries[key]; ok {
		e.refs++
		return &Resource{entry: e}, nil
	}
	img, err := build()
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", key, err)
	}
	e := &cacheEntry{key: key, refs: 1, image: img}
	c.entries[key] = e
	return &Resource{entry: e}, nil
}

// AcquireShader compiles src as a Kage shader, sharing the compiled object
// across presets whose source hashes identically. A driver/compiler rejection
// is returned to the caller; the cache stores nothing for failed compiles so
// a later retry with fixed source is possible.
func (c *ResourceCache) AcquireShader(src string) (*Resource, error) {
	key := "shader:" + hashSource(src)
	if e, ok := c.entries[key]; ok {
		e.refs++
		return &Resource{entry: e}, nil
	}
	sh, err := ebiten.NewShader([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("shader compile: %w", err)
	}
	e := &cacheEntry{key: key, refs: 1, shader: sh}
	c.entries[key] = e
	return &Resource{entry: e}, nil
}

// Release decrements the resource's reference count, freeing the GPU object
// when it reaches zero. Releasing nil or an already-freed handle is a no-op.
func (c *ResourceCache) Release(r *Resource) {
	if r == nil || r.entry == nil {
		return
	}
	e := r.entry
	r.entry = nil
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(c.entries, e.key)
	if e.image != nil {
		e.image.Deallocate()
	}
	if e.shader != nil {
		e.shader.Deallocate()
	}
}

// RefCount reports the current reference count for key, 0 if not resident.
func (c *ResourceCache) RefCount(key string) int {
	if e, ok := c.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len reports how many entries are resident.
func (c *ResourceCache) Len() int { return len(c.entries) }

func hashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:8])
}

// placeholderTexture builds the checkerboard drawn for texture references the
// host could not resolve. Unresolved references are warnings, never load
// failures; the preset still renders.
func placeholderTexture() *ebiten.Image {
	const size = 32
	const cell = 8
	img := ebiten.NewImage(size, size)
	light := color.RGBA{R: 180, G: 180, B: 180, A: 255}
	dark := color.RGBA{R: 60, G: 60, B: 60, A: 255}
	for y := 0; y < size; y += cell {
		for x := 0; x < size; x += cell {
			c := light
			if ((x/cell)+(y/cell))%2 == 1 {
				c = dark
			}
			cellImg := img.SubImage(image.Rect(x, y, x+cell, y+cell)).(*ebiten.Image)
			cellImg.Fill(c)
		}
	}
	return img
}
