package bvh

import (
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/chewxy/math32"
)

const (
	// TriAxisBits masks the dominant normal axis stored in TriAccel.CI.
	TriAxisBits uint32 = 0x3
	// TriDegenerateBit marks a zero-area triangle that can never be hit.
	TriDegenerateBit uint32 = 1 << 2
)

// TriAccel is a triangle precomputed for projection-based intersection: the supporting
// plane expressed along the dominant normal axis, the first vertex projected onto the other
// two axes, and the inverse edge basis used to recover barycentrics.
type TriAccel struct {
	NU, NV, NP float32
	PU, PV     float32
	CI         uint32
	E0U, E0V   float32
	E1U, E1V   float32
}

// NewTriAccel precomputes the triangle (a, b, c).
//
// Parameters:
//   - a, b, c: the triangle vertices
//
// Returns:
//   - TriAccel: the precomputed triangle, flagged degenerate if it has no area
func NewTriAccel(a, b, c [3]float32) TriAccel {
	e0 := common.Sub3(b, a)
	e1 := common.Sub3(c, a)
	n := common.Cross3(e0, e1)

	k := 0
	if math32.Abs(n[1]) > math32.Abs(n[k]) {
		k = 1
	}
	if math32.Abs(n[2]) > math32.Abs(n[k]) {
		k = 2
	}
	u, v := (k+1)%3, (k+2)%3

	det := e0[u]*e1[v] - e0[v]*e1[u]
	if n[k] == 0 || det == 0 {
		return TriAccel{CI: uint32(k) | TriDegenerateBit}
	}

	return TriAccel{
		NU:  n[u] / n[k],
		NV:  n[v] / n[k],
		NP:  common.Dot3(n, a) / n[k],
		PU:  a[u],
		PV:  a[v],
		CI:  uint32(k),
		E0U: e1[v] / det,
		E0V: -e1[u] / det,
		E1U: -e0[v] / det,
		E1V: e0[u] / det,
	}
}

// Intersect tests a ray against the triangle.
//
// Parameters:
//   - o: ray origin
//   - d: ray direction
//   - tMax: the far limit of the ray
//
// Returns:
//   - float32: hit distance
//   - [2]float32: barycentrics of the second and third vertex
//   - bool: true on a hit in (0, tMax)
func (t TriAccel) Intersect(o, d [3]float32, tMax float32) (float32, [2]float32, bool) {
	if t.CI&TriDegenerateBit != 0 {
		return 0, [2]float32{}, false
	}
	k := int(t.CI & TriAxisBits)
	u, v := (k+1)%3, (k+2)%3

	denom := d[k] + t.NU*d[u] + t.NV*d[v]
	if denom == 0 {
		return 0, [2]float32{}, false
	}
	dist := (t.NP - o[k] - t.NU*o[u] - t.NV*o[v]) / denom
	if !(dist > 0 && dist < tMax) {
		return 0, [2]float32{}, false
	}

	hu := o[u] + dist*d[u] - t.PU
	hv := o[v] + dist*d[v] - t.PV
	beta := hu*t.E0U + hv*t.E0V
	gamma := hu*t.E1U + hv*t.E1V
	if beta < 0 || gamma < 0 || beta+gamma > 1 {
		return 0, [2]float32{}, false
	}
	return dist, [2]float32{beta, gamma}, true
}

// PreprocessMesh precomputes every triangle of an indexed mesh and builds its hierarchy.
//
// Parameters:
//   - attrs: interleaved vertex attributes with the position in the first three floats
//   - stride: floats per vertex
//   - indices: three vertex indices per triangle
//   - s: the build settings
//
// Returns:
//   - []TriAccel: one precomputed record per triangle, in input order
//   - []Node: the hierarchy
//   - []uint32: the triangle references of the leaves
func PreprocessMesh(attrs []float32, stride int, indices []uint32, s Settings) ([]TriAccel, []Node, []uint32) {
	count := len(indices) / 3
	tris := make([]TriAccel, count)
	verts := make([][3][3]float32, count)
	prims := make([]Prim, count)

	for i := 0; i < count; i++ {
		for j := 0; j < 3; j++ {
			base := int(indices[i*3+j]) * stride
			verts[i][j] = [3]float32{attrs[base], attrs[base+1], attrs[base+2]}
		}
		tris[i] = NewTriAccel(verts[i][0], verts[i][1], verts[i][2])

		b := common.EmptyBoundingBox()
		b.ExtendPoint(verts[i][0])
		b.ExtendPoint(verts[i][1])
		b.ExtendPoint(verts[i][2])
		prims[i] = Prim{Bounds: b, Triangle: &verts[i]}
	}

	nodes, refs := Build(prims, s)
	return tris, nodes, refs
}
