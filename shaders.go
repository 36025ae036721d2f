package projectm

import "github.com/hajimehoshi/ebiten/v2"

// --- Kage shader sources ---
// All shaders use //kage:unit pixels as required by Ebitengine.
// Ebitengine uses premultiplied alpha; shaders un-premultiply before
// processing and re-premultiply output where needed.

// defaultCompositeShaderSrc is the built-in composite pass: gamma correction
// on the fed-back image. Presets may replace it with their own comp_N source;
// a rejected compile falls back to this one, and if even this fails to
// compile the composite pass degrades to a plain copy.
const defaultCompositeShaderSrc = `//kage:unit pixels
package main

var Gamma float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	if c.a > 0 {
		c.rgb /= c.a
	}
	g := max(Gamma, 0.01)
	c.r = pow(clamp(c.r, 0, 1), 1/g)
	c.g = pow(clamp(c.g, 0, 1), 1/g)
	c.b = pow(clamp(c.b, 0, 1), 1/g)
	return vec4(c.r*c.a, c.g*c.a, c.b*c.a, c.a)
}
`

// compositor runs the final per-preset pass: source canvas to destination
// through the preset's composite shader, the default gamma shader, or a plain
// copy when no shader is available.
type compositor struct {
	fallback *ebiten.Shader
}

func newCompositor() *compositor {
	sh, err := ebiten.NewShader([]byte(defaultCompositeShaderSrc))
	if err != nil {
		// A driver that rejects the built-in shader still gets frames,
		// just without gamma correction.
		logger.WithError(err).Warn("built-in composite shader rejected, using plain copy")
		sh = nil
	}
	return &compositor{fallback: sh}
}

// apply renders src into dst. gamma is bound for the default shader; custom
// shaders receive Gamma plus the standard uniform set bound by the renderer.
func (c *compositor) apply(dst, src *ebiten.Image, custom *ebiten.Shader, uniforms map[string]any) {
	sh := custom
	if sh == nil {
		sh = c.fallback
	}
	if sh == nil {
		var op ebiten.DrawImageOptions
		dst.DrawImage(src, &op)
		return
	}
	b := src.Bounds()
	op := &ebiten.DrawRectShaderOptions{}
	op.Images[0] = src
	op.Uniforms = uniforms
	dst.DrawRectShader(b.Dx(), b.Dy(), sh, op)
}

// warpPass draws the previous frame's canvas through the warp mesh into dst,
// optionally through the preset's warp shader. The mesh vertices carry the
// decay tint; the shader, when present, additionally receives the standard
// uniforms.
func warpPass(dst, src *ebiten.Image, verts []ebiten.Vertex, inds []uint16, custom *ebiten.Shader, uniforms map[string]any) {
	if custom != nil {
		op := &ebiten.DrawTrianglesShaderOptions{}
		op.Images[0] = src
		op.Uniforms = uniforms
		dst.DrawTrianglesShader(verts, inds, custom, op)
		return
	}
	op := &ebiten.DrawTrianglesOptions{}
	dst.DrawTriangles(verts, inds, src, op)
}
