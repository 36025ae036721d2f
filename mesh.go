package projectm

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"
)

// warpMesh is the coarse-to-fine grid that displaces the feedback image each
// frame. Per-vertex equations run once per coarse grid point (evaluating at
// full pixel resolution every frame would be prohibitively expensive); the
// results are bilinearly upsampled onto a denser render grid whose triangles
// the GPU then interpolates across.
//
// The mesh is owned by the renderer and recreated only when the grid size
// changes. Vertex and index buffers grow to a high-water mark and are reused
// every frame.
type warpMesh struct {
	gridW, gridH int // coarse cells horizontally / vertically
	upsample     int // render grid density multiplier

	// Warped source UVs per coarse grid point, in [0,1] texture space.
	// Row-major, (gridW+1) x (gridH+1).
	coarseU []float32
	coarseV []float32

	verts []ebiten.Vertex
	inds  []uint16
}

const (
	defaultMeshWidth  = 32
	defaultMeshHeight = 24
	meshUpsample      = 2

	// The index buffer is uint16, so the upsampled render grid may address at
	// most 65536 vertices.
	maxWarpVertices = 1 << 16
)

func newWarpMesh(gridW, gridH int) *warpMesh {
	if gridW < 2 {
		gridW = defaultMeshWidth
	}
	if gridH < 2 {
		gridH = defaultMeshHeight
	}
	// Shrink oversized grids until the render grid fits the index space.
	for (gridW*meshUpsample+1)*(gridH*meshUpsample+1) > maxWarpVertices {
		if gridW >= gridH && gridW > 2 {
			gridW--
		} else {
			gridH--
		}
	}
	n := (gridW + 1) * (gridH + 1)
	return &warpMesh{
		gridW:    gridW,
		gridH:    gridH,
		upsample: meshUpsample,
		coarseU:  make([]float32, n),
		coarseV:  make([]float32, n),
	}
}

// evaluate runs the preset's per-vertex program at every coarse grid point
// and stores the warped source UV for each. The environment is snapshotted
// around each vertex so writes made while evaluating one vertex never leak
// into the next, and frame state is left untouched.
//
// A vertex whose result is non-finite is clamped to the identity warp for
// that point; neighbors interpolate against the clamped value, so a single
// bad vertex cannot poison the mesh.
func (m *warpMesh) evaluate(p *Preset) {
	e := p.env
	r := p.refs
	t := e.get(r.time)

	for gy := 0; gy <= m.gridH; gy++ {
		fy := float64(gy) / float64(m.gridH)
		for gx := 0; gx <= m.gridW; gx++ {
			fx := float64(gx) / float64(m.gridW)

			e.save()
			// Vertex built-ins: normalized position, radius from center,
			// angle. Read-only to preset code, written here by the engine.
			dx0 := fx - 0.5
			dy0 := fy - 0.5
			e.slots[r.x] = fx
			e.slots[r.y] = fy
			e.slots[r.rad] = math.Sqrt(dx0*dx0+dy0*dy0) * 2
			e.slots[r.ang] = math.Atan2(dy0, dx0)

			p.vertexProg.run(e)
			u, v := warpUV(e, r, fx, fy, t)
			e.restore()

			i := gy*(m.gridW+1) + gx
			m.coarseU[i] = u
			m.coarseV[i] = v
		}
	}
}

// evaluateIdentity fills the coarse grid with the unwarped UVs. Used when a
// preset's contribution must be neutral for a frame (runtime fault recovery).
func (m *warpMesh) evaluateIdentity() {
	for gy := 0; gy <= m.gridH; gy++ {
		for gx := 0; gx <= m.gridW; gx++ {
			i := gy*(m.gridW+1) + gx
			m.coarseU[i] = float32(gx) / float32(m.gridW)
			m.coarseV[i] = float32(gy) / float32(m.gridH)
		}
	}
}

// warpUV computes the warped source UV for one vertex from the evaluated
// environment. The classic feedback transform: per-radius zoom, stretch about
// the center point, animated sine warp, rotation, then translation.
func warpUV(e *env, r *slotRefs, x, y, t float64) (float32, float32) {
	zoom := e.get(r.zoom)
	zoomExp := e.get(r.zoomExp)
	rad := e.get(r.rad)
	warp := e.get(r.warp)
	rot := e.get(r.rot)
	cx := e.get(r.cx)
	cy := e.get(r.cy)
	sx := e.get(r.sx)
	sy := e.get(r.sy)
	dx := e.get(r.dx)
	dy := e.get(r.dy)

	zoomCoef := math.Pow(zoom, math.Pow(zoomExp, rad*2-1))
	if zoomCoef == 0 || math.IsNaN(zoomCoef) || math.IsInf(zoomCoef, 0) {
		zoomCoef = 1
	}
	u := (x-0.5)/zoomCoef + 0.5
	v := (y-0.5)/zoomCoef + 0.5

	if sx != 0 {
		u = (u-cx)/sx + cx
	}
	if sy != 0 {
		v = (v-cy)/sy + cy
	}

	if warp != 0 {
		f0 := 11.68 + 4.0*math.Cos(t*1.413+10)
		f1 := 8.77 + 3.0*math.Cos(t*1.113+7)
		f2 := 10.54 + 3.0*math.Cos(t*1.233+3)
		f3 := 11.49 + 4.0*math.Cos(t*0.933+5)
		amp := warp * 0.0035
		u += amp * math.Sin(t*0.333+(x*f0-y*f3))
		v += amp * math.Cos(t*0.375-(x*f2+y*f1))
		u += amp * math.Cos(t*0.753-(x*f1-y*f2))
		v += amp * math.Sin(t*0.825+(x*f0+y*f3))
	}

	if rot != 0 {
		p := mgl32.Rotate2D(float32(-rot)).Mul2x1(mgl32.Vec2{float32(u - cx), float32(v - cy)})
		u = float64(p.X()) + cx
		v = float64(p.Y()) + cy
	}

	u -= dx
	v -= dy

	// Non-finite results clamp to the identity warp for this vertex.
	if math.IsNaN(u) || math.IsInf(u, 0) {
		u = x
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = y
	}
	return float32(clamp01(u)), float32(clamp01(v))
}

// coarseAt returns the bilinearly interpolated coarse UV at normalized
// position (fx, fy).
func (m *warpMesh) coarseAt(fx, fy float32) (float32, float32) {
	gx := fx * float32(m.gridW)
	gy := fy * float32(m.gridH)
	x0 := int(gx)
	y0 := int(gy)
	if x0 >= m.gridW {
		x0 = m.gridW - 1
	}
	if y0 >= m.gridH {
		y0 = m.gridH - 1
	}
	tx := gx - float32(x0)
	ty := gy - float32(y0)

	stride := m.gridW + 1
	i00 := y0*stride + x0
	i10 := i00 + 1
	i01 := i00 + stride
	i11 := i01 + 1

	u := lerp32(lerp32(m.coarseU[i00], m.coarseU[i10], tx), lerp32(m.coarseU[i01], m.coarseU[i11], tx), ty)
	v := lerp32(lerp32(m.coarseV[i00], m.coarseV[i10], tx), lerp32(m.coarseV[i01], m.coarseV[i11], tx), ty)
	return u, v
}

func lerp32(a, b, t float32) float32 { return a + (b-a)*t }

// buildVertices upsamples the coarse grid onto the render grid and fills the
// vertex/index buffers for a w x h destination sampling a srcW x srcH source
// texture. tint is the decay color applied by the warp pass.
func (m *warpMesh) buildVertices(w, h, srcW, srcH int, tint Color) ([]ebiten.Vertex, []uint16) {
	rw := m.gridW * m.upsample
	rh := m.gridH * m.upsample
	nv := (rw + 1) * (rh + 1)

	if cap(m.verts) < nv {
		m.verts = make([]ebiten.Vertex, nv)
	}
	m.verts = m.verts[:nv]

	a := float32(tint.A)
	cr := float32(tint.R) * a
	cg := float32(tint.G) * a
	cb := float32(tint.B) * a

	for gy := 0; gy <= rh; gy++ {
		fy := float32(gy) / float32(rh)
		for gx := 0; gx <= rw; gx++ {
			fx := float32(gx) / float32(rw)
			u, v := m.coarseAt(fx, fy)
			m.verts[gy*(rw+1)+gx] = ebiten.Vertex{
				DstX:   fx * float32(w),
				DstY:   fy * float32(h),
				SrcX:   u * float32(srcW),
				SrcY:   v * float32(srcH),
				ColorR: cr,
				ColorG: cg,
				ColorB: cb,
				ColorA: a,
			}
		}
	}

	ni := rw * rh * 6
	if cap(m.inds) < ni {
		m.inds = make([]uint16, 0, ni)
		for gy := 0; gy < rh; gy++ {
			for gx := 0; gx < rw; gx++ {
				i := uint16(gy*(rw+1) + gx)
				j := i + uint16(rw) + 1
				m.inds = append(m.inds, i, i+1, j, i+1, j+1, j)
			}
		}
	}
	return m.verts, m.inds[:ni]
}
