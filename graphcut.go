package fusecut

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut/internal/d3"
	"github.com/voxreco/fusecut/internal/maxflow"
)

// AddToInfiniteSw biases every infinite cell toward the empty side by
// adding sW to its outside terminal weight.
func (gc *GraphCut) AddToInfiniteSw(sW float32) {
	if sW <= 0 {
		return
	}
	for ci := 0; ci < gc.NumCells(); ci++ {
		if gc.tetr.IsInfiniteCell(ci) {
			gc.cellAttrs[ci].sWeight.Add(sW)
		}
	}
}

// Maxflow builds the flow network over the cells and computes the
// minimum cut, labeling every cell full or empty. Source is the empty
// side, sink the full side. Cells tied at zero residual capacity land
// on the full side (sink); infinite cells are forced empty regardless.
// Returns the cut value. Degenerate inputs (all capacities zero) leave
// every finite cell on the full side, which is valid output.
func (gc *GraphCut) Maxflow() float64 {
	nc := gc.NumCells()
	g := maxflow.New(nc)
	for ci := 0; ci < nc; ci++ {
		a := &gc.cellAttrs[ci]
		g.AddTerminal(ci, float64(a.sWeight.Load()), float64(a.tWeight.Load()))
	}
	nedges := 0
	for ci := 0; ci < nc; ci++ {
		for k := 0; k < 4; k++ {
			f := Facet{Cell: ci, Opp: k}
			m, ok := gc.MirrorFacet(f)
			if !ok || m.Cell < ci {
				continue // boundary, or already added from the mirror side
			}
			var fw float64
			if !gc.tetr.IsInfiniteCell(ci) && !gc.tetr.IsInfiniteCell(m.Cell) {
				fw = float64(gc.params.FaceWeightMult) * gc.FaceWeight(f)
			}
			capF := float64(gc.cellAttrs[ci].gEdgeVisWeight[k].Load()) + fw
			capR := float64(gc.cellAttrs[m.Cell].gEdgeVisWeight[m.Opp].Load()) + fw
			g.AddEdge(ci, m.Cell, capF, capR)
			nedges++
		}
	}
	gc.log.Logf("flow network: %d cells, %d facet edges", nc, nedges)

	flow := g.Solve()
	gc.cellIsFull = make([]bool, nc)
	for ci := 0; ci < nc; ci++ {
		gc.cellIsFull[ci] = !g.SourceSide(ci)
		if gc.tetr.IsInfiniteCell(ci) {
			gc.cellIsFull[ci] = false
		}
	}
	gc.labeled = true
	return flow
}

// FaceWeight is the geometric cost of cutting through facet f: the
// facet area scaled by a shape-quality factor derived from the angle
// between the facet normal and the directions to the two incident
// cells' circumcenters. Well-shaped facets cost less to cut than
// slivers of equal area; MinAngleThreshold floors the factor.
func (gc *GraphCut) FaceWeight(f Facet) float64 {
	m, ok := gc.MirrorFacet(f)
	if !ok {
		return 0
	}
	pts := gc.FacetPoints(f)
	mid := r3.Scale(1.0/3.0, r3.Add(pts[0], r3.Add(pts[1], pts[2])))
	n := r3.Cross(r3.Sub(pts[1], pts[0]), r3.Sub(pts[2], pts[0]))
	area := 0.5 * r3.Norm(n)
	if area == 0 {
		return 0
	}
	n = r3.Scale(1/(2*area), n)

	c1, ok1 := gc.cellCircumcenter(f.Cell)
	c2, ok2 := gc.cellCircumcenter(m.Cell)
	if !ok1 || !ok2 {
		return area // degenerate neighbor: full cut cost
	}
	a1 := math.Abs(r3.Dot(n, unitOrZero(r3.Sub(c1, mid))))
	a2 := math.Abs(r3.Dot(n, unitOrZero(r3.Sub(c2, mid))))
	q := 1 - math.Min(a1, a2)
	if q < gc.params.MinAngleThreshold {
		q = gc.params.MinAngleThreshold
	}
	return area * q
}

func unitOrZero(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return v
	}
	return r3.Scale(1/n, v)
}

// cellCircumcenter returns the circumcenter of cell ci; ok is false
// for degenerate or infinite cells.
func (gc *GraphCut) cellCircumcenter(ci int) (r3.Vec, bool) {
	var v [4]r3.Vec
	for k := 0; k < 4; k++ {
		vi := gc.tetr.CellVertex(ci, k)
		if vi < 0 {
			return r3.Vec{}, false
		}
		v[k] = gc.verts[vi]
	}
	u := r3.Sub(v[1], v[0])
	w := r3.Sub(v[2], v[0])
	x := r3.Sub(v[3], v[0])
	det := u.X*(w.Y*x.Z-w.Z*x.Y) - u.Y*(w.X*x.Z-w.Z*x.X) + u.Z*(w.X*x.Y-w.Y*x.X)
	scale := r3.Norm(u) * r3.Norm(w) * r3.Norm(x)
	if scale == 0 || math.Abs(det) < 1e-12*scale {
		return r3.Vec{}, false
	}
	ru := 0.5 * r3.Norm2(u)
	rw := 0.5 * r3.Norm2(w)
	rx := 0.5 * r3.Norm2(x)
	inv := 1 / det
	o := r3.Vec{
		X: inv * (ru*(w.Y*x.Z-w.Z*x.Y) - rw*(u.Y*x.Z-u.Z*x.Y) + rx*(u.Y*w.Z-u.Z*w.Y)),
		Y: inv * (-ru*(w.X*x.Z-w.Z*x.X) + rw*(u.X*x.Z-u.Z*x.X) - rx*(u.X*w.Z-u.Z*w.X)),
		Z: inv * (ru*(w.X*x.Y-w.Y*x.X) - rw*(u.X*x.Y-u.Y*x.X) + rx*(u.X*w.Y-u.Y*w.X)),
	}
	return r3.Add(v[0], o), true
}

// FacetMaxEdgeLength returns the longest edge of the facet triangle.
func (gc *GraphCut) FacetMaxEdgeLength(f Facet) float64 {
	pts := gc.FacetPoints(f)
	d01 := r3.Norm(r3.Sub(pts[0], pts[1]))
	d12 := r3.Norm(r3.Sub(pts[1], pts[2]))
	d20 := r3.Norm(r3.Sub(pts[2], pts[0]))
	return math.Max(d01, math.Max(d12, d20))
}

// MaxEdgeLength returns the longest facet edge over all finite cells.
func (gc *GraphCut) MaxEdgeLength() float64 {
	var max float64
	for ci := 0; ci < gc.NumCells(); ci++ {
		if gc.tetr.IsInfiniteCell(ci) {
			continue
		}
		for k := 0; k < 4; k++ {
			if l := gc.FacetMaxEdgeLength(Facet{Cell: ci, Opp: k}); l > max {
				max = l
			}
		}
	}
	return max
}

// FreeUnwantedFullCells relabels empty every full cell whose barycenter
// falls outside the region of interest. The 8 corners are reduced to
// their axis-aligned bounding box, so a rotated hexahedron is tested
// against its AABB. Returns how many cells changed.
func (gc *GraphCut) FreeUnwantedFullCells(hexah [8]r3.Vec) int {
	if !gc.labeled {
		panic("fusecut: FreeUnwantedFullCells before Maxflow")
	}
	box := d3.Box{Min: hexah[0], Max: hexah[0]}
	for _, c := range hexah[1:] {
		box = box.Include(c)
	}
	n := 0
	for ci := 0; ci < gc.NumCells(); ci++ {
		if gc.cellIsFull[ci] && !box.Contains(gc.cellBarycenter(ci)) {
			gc.cellIsFull[ci] = false
			n++
		}
	}
	if n > 0 {
		gc.log.Logf("freed %d full cells outside the region of interest", n)
	}
	return n
}
