package fusecut

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is the extracted surface: triangle corners index Pts directly
// with the complex's global vertex numbering. Renumbering and
// serialization are left to downstream mesh utilities.
type Mesh struct {
	Pts  []r3.Vec
	Tris [][3]int
}

// Triangle returns the corner positions of triangle i.
func (m *Mesh) Triangle(i int) [3]r3.Vec {
	t := m.Tris[i]
	return [3]r3.Vec{m.Pts[t[0]], m.Pts[t[1]], m.Pts[t[2]]}
}

// CreateMesh extracts the surface between full and empty cells: one
// triangle per facet whose two incident cells disagree in label,
// oriented with the normal pointing from the full side to the empty
// side. Facets of infinite cells never contribute. With filterHelper
// set, triangles touching camera-center or lattice helper vertices are
// discarded as anchoring artifacts.
func (gc *GraphCut) CreateMesh(filterHelper bool) Mesh {
	if !gc.labeled {
		panic("fusecut: CreateMesh before Maxflow")
	}
	mesh := Mesh{Pts: append([]r3.Vec(nil), gc.verts...)}
	for ci := 0; ci < gc.NumCells(); ci++ {
		if !gc.cellIsFull[ci] || gc.tetr.IsInfiniteCell(ci) {
			continue
		}
		for k := 0; k < 4; k++ {
			f := Facet{Cell: ci, Opp: k}
			m, ok := gc.MirrorFacet(f)
			if !ok || gc.tetr.IsInfiniteCell(m.Cell) || gc.cellIsFull[m.Cell] {
				continue
			}
			tri, ok := gc.facetTriangle(f, filterHelper)
			if ok {
				mesh.Tris = append(mesh.Tris, tri)
			}
		}
	}
	return mesh
}

// facetTriangle emits the facet as an outward-oriented triangle. The
// facet belongs to the full cell; outward means away from that cell's
// opposite vertex.
func (gc *GraphCut) facetTriangle(f Facet, filterHelper bool) ([3]int, bool) {
	v0 := gc.FacetVertex(f, 0)
	v1 := gc.FacetVertex(f, 1)
	v2 := gc.FacetVertex(f, 2)
	if v0 < 0 || v1 < 0 || v2 < 0 {
		return [3]int{}, false
	}
	if filterHelper {
		for _, vi := range [3]int{v0, v1, v2} {
			a := &gc.vertAttrs[vi]
			if a.Helper || a.OnInfiniteSphere {
				return [3]int{}, false
			}
		}
	}
	opp := gc.OppositeVertex(f)
	if opp < 0 {
		return [3]int{}, false
	}
	p0, p1, p2 := gc.verts[v0], gc.verts[v1], gc.verts[v2]
	n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	inward := r3.Sub(gc.verts[opp], p0)
	if r3.Dot(n, inward) > 0 {
		v1, v2 = v2, v1
	}
	return [3]int{v0, v1, v2}, true
}

// CreateTetrahedralMesh emits every facet of every full cell as
// triangles, a debugging view of the labeling rather than a surface.
func (gc *GraphCut) CreateTetrahedralMesh() Mesh {
	if !gc.labeled {
		panic("fusecut: CreateTetrahedralMesh before Maxflow")
	}
	mesh := Mesh{Pts: append([]r3.Vec(nil), gc.verts...)}
	for ci := 0; ci < gc.NumCells(); ci++ {
		if !gc.cellIsFull[ci] || gc.tetr.IsInfiniteCell(ci) {
			continue
		}
		for k := 0; k < 4; k++ {
			tri, ok := gc.facetTriangle(Facet{Cell: ci, Opp: k}, false)
			if ok {
				mesh.Tris = append(mesh.Tris, tri)
			}
		}
	}
	return mesh
}
