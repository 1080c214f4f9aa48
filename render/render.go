// Package render writes reconstructed surfaces to mesh file formats
// and rasterizes preview images of them.
package render

import (
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut"
)

// Triangle3 is a triangle in 3D space. Vertices are ordered so the
// surface normal points out of the reconstructed volume.
type Triangle3 struct {
	V [3]r3.Vec
}

// Normal returns the unit normal of the triangle.
func (t Triangle3) Normal() r3.Vec {
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	return r3.Unit(r3.Cross(e1, e2))
}

// Area returns the surface area of the triangle.
func (t Triangle3) Area() float64 {
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	return 0.5 * r3.Norm(r3.Cross(e1, e2))
}

// Renderer is a stream of triangles. ReadTriangles follows io.Reader
// conventions: it fills t with up to len(t) triangles and returns
// io.EOF once the stream is exhausted.
type Renderer interface {
	ReadTriangles(t []Triangle3) (int, error)
}

type meshRenderer struct {
	m    fusecut.Mesh
	next int
}

// NewMeshRenderer streams the triangles of a reconstructed surface.
func NewMeshRenderer(m fusecut.Mesh) Renderer {
	return &meshRenderer{m: m}
}

func (mr *meshRenderer) ReadTriangles(dst []Triangle3) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(dst) && mr.next < len(mr.m.Tris) {
		dst[n] = Triangle3{V: mr.m.Triangle(mr.next)}
		mr.next++
		n++
	}
	if mr.next == len(mr.m.Tris) && n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}
