package fusecut

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// baryEps is the barycentric slack of the ray/triangle test. Walks
// along facet edges would otherwise fall between two triangles.
const baryEps = 1e-9

// rayTriangle intersects the ray orig+t*dir with triangle abc and
// returns the ray parameter. Moller-Trumbore with barycentric slack.
func rayTriangle(orig, dir, a, b, c r3.Vec) (float64, bool) {
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	pv := r3.Cross(dir, e2)
	det := r3.Dot(e1, pv)
	scale := r3.Norm(e1) * r3.Norm(e2) * r3.Norm(dir)
	if scale == 0 || math.Abs(det) < 1e-15*scale {
		return 0, false
	}
	inv := 1 / det
	tv := r3.Sub(orig, a)
	u := r3.Dot(tv, pv) * inv
	if u < -baryEps || u > 1+baryEps {
		return 0, false
	}
	qv := r3.Cross(tv, e1)
	v := r3.Dot(dir, qv) * inv
	if v < -baryEps || u+v > 1+baryEps {
		return 0, false
	}
	return r3.Dot(e2, qv) * inv, true
}

// walkEnd tells why a ray walk stopped.
type walkEnd uint8

const (
	walkActive walkEnd = iota
	// walkExited left the triangulation through the outer boundary.
	walkExited
	// walkDegenerate found no crossable facet or exceeded the step
	// cap; the walk is abandoned as a local anomaly.
	walkDegenerate
)

// rayWalker crosses the cell complex along a straight ray. At every
// state f is the facet through which the ray leaves cell f.Cell, x the
// intersection point and t its ray parameter.
type rayWalker struct {
	gc   *GraphCut
	orig r3.Vec
	dir  r3.Vec
	f    Facet
	x    r3.Vec
	t    float64
	step int
	end  walkEnd
}

// walkFromVertex starts a walk leaving the star of vertex vi along
// dir. The returned walker's facet is the facet of an incident cell
// through which the ray first exits that cell.
func (gc *GraphCut) walkFromVertex(vi int, dir r3.Vec) (rayWalker, bool) {
	orig := gc.verts[vi]
	w := rayWalker{gc: gc, orig: orig, dir: dir}
	for _, ci := range gc.NeighboringCells(vi) {
		cell := int(ci)
		for k := 0; k < 4; k++ {
			if gc.tetr.CellVertex(cell, k) != vi {
				continue
			}
			f := Facet{Cell: cell, Opp: k}
			pts := gc.FacetPoints(f)
			t, ok := rayTriangle(orig, dir, pts[0], pts[1], pts[2])
			if ok && t > baryEps {
				w.f = f
				w.t = t
				w.x = r3.Add(orig, r3.Scale(t, dir))
				return w, true
			}
		}
	}
	atomic.AddInt64(&gc.abandonedRays, 1)
	return w, false
}

// cell returns the cell the walker is currently inside.
func (w *rayWalker) cell() int { return w.f.Cell }

// next crosses the current facet into the neighboring cell and finds
// the facet through which the ray leaves it. Returns false when the
// walk is over; end tells why.
func (w *rayWalker) next() bool {
	if w.end != walkActive {
		return false
	}
	w.step++
	if w.step > w.gc.params.MaxRaySteps {
		w.abandon()
		return false
	}
	m, ok := w.gc.MirrorFacet(w.f)
	if !ok {
		w.end = walkExited
		return false
	}
	// Ray exits the entered cell through one of its 3 other facets.
	best := NoFacet
	bestT := math.MaxFloat64
	for k := 0; k < 4; k++ {
		if k == m.Opp {
			continue
		}
		f := Facet{Cell: m.Cell, Opp: k}
		pts := w.gc.FacetPoints(f)
		t, hit := rayTriangle(w.orig, w.dir, pts[0], pts[1], pts[2])
		if hit && t > w.t-1e-12 && t < bestT {
			best = f
			bestT = t
		}
	}
	if !best.Valid() {
		w.abandon()
		return false
	}
	w.f = best
	w.t = bestT
	w.x = r3.Add(w.orig, r3.Scale(bestT, w.dir))
	return true
}

func (w *rayWalker) abandon() {
	w.end = walkDegenerate
	atomic.AddInt64(&w.gc.abandonedRays, 1)
}

// cellHasVertex reports whether cell ci references global vertex vi.
func (gc *GraphCut) cellHasVertex(ci, vi int) bool {
	for k := 0; k < 4; k++ {
		if gc.tetr.CellVertex(ci, k) == vi {
			return true
		}
	}
	return false
}

// AbandonedRays returns how many ray walks were abandoned on
// degenerate geometry during voting. Diagnostics only.
func (gc *GraphCut) AbandonedRays() int64 {
	return atomic.LoadInt64(&gc.abandonedRays)
}
