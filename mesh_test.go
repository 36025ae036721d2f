package projectm

import (
	"math"
	"testing"
)

func near32(a, b float32, eps float64) bool {
	return math.Abs(float64(a)-float64(b)) <= eps
}

// neutralWarpEnv builds a preset env with every warp input at its neutral
// value: zoom 1, no stretch, no rotation, no translation, warp amount 0.
func neutralWarpEnv() (*env, *slotRefs) {
	e, r := newPresetEnv()
	e.slots[r.zoom] = 1
	e.slots[r.zoomExp] = 1
	e.slots[r.sx] = 1
	e.slots[r.sy] = 1
	e.slots[r.cx] = 0.5
	e.slots[r.cy] = 0.5
	return e, r
}

func TestWarpUVIdentity(t *testing.T) {
	e, r := neutralWarpEnv()
	cases := [][2]float64{{0, 0}, {0.25, 0.75}, {0.5, 0.5}, {1, 1}}
	for _, c := range cases {
		u, v := warpUV(e, r, c[0], c[1], 0)
		if !near32(u, float32(c[0]), 1e-6) || !near32(v, float32(c[1]), 1e-6) {
			t.Errorf("warpUV(%v, %v) = (%v, %v), want identity", c[0], c[1], u, v)
		}
	}
}

func TestWarpUVZoom(t *testing.T) {
	e, r := neutralWarpEnv()
	e.slots[r.zoom] = 2
	u, _ := warpUV(e, r, 1, 0.5, 0)
	// Zoom 2 pulls the sampled point halfway toward the center.
	if !near32(u, 0.75, 1e-6) {
		t.Errorf("u = %v, want 0.75", u)
	}
}

func TestWarpUVTranslation(t *testing.T) {
	e, r := neutralWarpEnv()
	e.slots[r.dx] = 0.1
	u, v := warpUV(e, r, 0.5, 0.5, 0)
	if !near32(u, 0.4, 1e-6) || !near32(v, 0.5, 1e-6) {
		t.Errorf("got (%v, %v), want (0.4, 0.5)", u, v)
	}
}

func TestWarpUVRotationAboutCenter(t *testing.T) {
	e, r := neutralWarpEnv()
	e.slots[r.rot] = math.Pi / 2
	u, v := warpUV(e, r, 0.75, 0.5, 0)
	// A quarter turn about (0.5, 0.5) moves (0.75, 0.5) to (0.5, 0.25).
	if !near32(u, 0.5, 1e-5) || !near32(v, 0.25, 1e-5) {
		t.Errorf("got (%v, %v), want (0.5, 0.25)", u, v)
	}
}

func TestWarpUVNonFiniteClampsToIdentity(t *testing.T) {
	e, r := neutralWarpEnv()
	e.slots[r.dx] = math.NaN()
	u, v := warpUV(e, r, 0.25, 0.75, 0)
	if !near32(u, 0.25, 1e-6) || !near32(v, 0.75, 1e-6) {
		t.Errorf("got (%v, %v), want identity fallback", u, v)
	}

	e.slots[r.dx] = 0
	e.slots[r.zoom] = 0 // zoomCoef would be 0, guard kicks in
	u, v = warpUV(e, r, 0.25, 0.75, 0)
	if !near32(u, 0.25, 1e-6) || !near32(v, 0.75, 1e-6) {
		t.Errorf("zoom 0: got (%v, %v), want identity fallback", u, v)
	}
}

func TestWarpUVClampedToUnit(t *testing.T) {
	e, r := neutralWarpEnv()
	e.slots[r.dx] = 5
	u, _ := warpUV(e, r, 0.5, 0.5, 0)
	if u != 0 {
		t.Errorf("u = %v, want clamp to 0", u)
	}
}

func TestMeshIdentity(t *testing.T) {
	m := newWarpMesh(8, 6)
	m.evaluateIdentity()
	u, v := m.coarseAt(0.5, 0.5)
	if !near32(u, 0.5, 1e-6) || !near32(v, 0.5, 1e-6) {
		t.Errorf("center = (%v, %v), want (0.5, 0.5)", u, v)
	}
	u, v = m.coarseAt(1, 1)
	if !near32(u, 1, 1e-6) || !near32(v, 1, 1e-6) {
		t.Errorf("corner = (%v, %v), want (1, 1)", u, v)
	}
}

func TestMeshCoarseAtInterpolates(t *testing.T) {
	m := newWarpMesh(2, 2)
	m.evaluateIdentity()
	// Shift one corner and sample between it and its neighbor.
	m.coarseU[0] = 0.2
	u, _ := m.coarseAt(0.25, 0)
	// Halfway between coarseU[0]=0.2 and coarseU[1]=0.5.
	if !near32(u, 0.35, 1e-6) {
		t.Errorf("u = %v, want 0.35", u)
	}
}

func TestMeshBuildVertices(t *testing.T) {
	m := newWarpMesh(4, 3)
	m.evaluateIdentity()
	verts, inds := m.buildVertices(640, 480, 640, 480, Color{1, 1, 1, 1})

	rw := 4 * meshUpsample
	rh := 3 * meshUpsample
	if len(verts) != (rw+1)*(rh+1) {
		t.Fatalf("len(verts) = %d, want %d", len(verts), (rw+1)*(rh+1))
	}
	if len(inds) != rw*rh*6 {
		t.Fatalf("len(inds) = %d, want %d", len(inds), rw*rh*6)
	}

	last := verts[len(verts)-1]
	if last.DstX != 640 || last.DstY != 480 {
		t.Errorf("last vertex dst = (%v, %v), want (640, 480)", last.DstX, last.DstY)
	}
	if !near32(last.SrcX, 640, 1e-3) || !near32(last.SrcY, 480, 1e-3) {
		t.Errorf("last vertex src = (%v, %v), want (640, 480)", last.SrcX, last.SrcY)
	}
	for _, i := range inds {
		if int(i) >= len(verts) {
			t.Fatalf("index %d out of range (%d vertices)", i, len(verts))
		}
	}
}

func TestMeshGridClampedToIndexSpace(t *testing.T) {
	m := newWarpMesh(200, 150)
	rw := m.gridW * m.upsample
	rh := m.gridH * m.upsample
	if nv := (rw + 1) * (rh + 1); nv > 1<<16 {
		t.Fatalf("render grid has %d vertices, exceeds uint16 index space", nv)
	}

	m.evaluateIdentity()
	verts, inds := m.buildVertices(1920, 1080, 1920, 1080, ColorWhite)
	for _, i := range inds {
		if int(i) >= len(verts) {
			t.Fatalf("index %d out of range (%d vertices)", i, len(verts))
		}
	}

	// Grids that already fit are left alone.
	m = newWarpMesh(defaultMeshWidth, defaultMeshHeight)
	if m.gridW != defaultMeshWidth || m.gridH != defaultMeshHeight {
		t.Errorf("grid = %dx%d, want %dx%d", m.gridW, m.gridH, defaultMeshWidth, defaultMeshHeight)
	}
}

func TestMeshBuffersReused(t *testing.T) {
	m := newWarpMesh(4, 3)
	m.evaluateIdentity()
	v1, i1 := m.buildVertices(320, 240, 320, 240, ColorWhite)
	v2, i2 := m.buildVertices(320, 240, 320, 240, ColorWhite)
	if &v1[0] != &v2[0] || &i1[0] != &i2[0] {
		t.Error("vertex/index buffers must be reused across frames")
	}
}

func TestMeshEvaluateUsesVertexEquations(t *testing.T) {
	p, err := ParsePreset("mesh", `
per_frame_1=zoom = 1;
per_vertex_1=warp = 0; dx = 0.25;
`)
	if err != nil {
		t.Fatal(err)
	}
	m := newWarpMesh(4, 4)
	m.evaluate(p)
	u, v := m.coarseAt(0.5, 0.5)
	if !near32(u, 0.25, 1e-6) || !near32(v, 0.5, 1e-6) {
		t.Errorf("center = (%v, %v), want (0.25, 0.5)", u, v)
	}
}

func TestMeshEvaluateDoesNotLeakVertexWrites(t *testing.T) {
	p, err := ParsePreset("leak", `
per_frame_1=zoom = 1;
per_vertex_1=q1 = 99; dx = x;
`)
	if err != nil {
		t.Fatal(err)
	}
	m := newWarpMesh(4, 4)
	m.evaluate(p)
	if got := p.env.get(p.refs.q[0]); got != 0 {
		t.Errorf("q1 = %v after mesh evaluation, want 0 (vertex writes restored)", got)
	}
	if got := p.env.get(p.refs.dx); got != 0 {
		t.Errorf("dx = %v after mesh evaluation, want 0", got)
	}
}
