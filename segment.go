package fusecut

// Pre-cut filtering of isolated point segments. Vertices connected by
// triangulation edges and mutually consistent (close relative to their
// pixel sizes, or co-observed) are grouped with a union-find; points
// in tiny groups are noise and get dropped before voting.

import "gonum.org/v1/gonum/spatial/r3"

type unionFind struct {
	parent []int32
	size   []int32
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int32, n), size: make([]int32, n)}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int32) int32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int32) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// ComputeVerticesSegSize groups real vertices into segments and stores
// each vertex's segment size and id in its attributes. Two endpoint
// vertices of a triangulation edge join the same segment when their
// distance is below alpha times their mean pixel size; with alpha <= 0
// sharing at least one observing camera joins them instead.
func (gc *GraphCut) ComputeVerticesSegSize(alpha float32) {
	nv := len(gc.verts)
	uf := newUnionFind(nv)
	for ci := 0; ci < gc.NumCells(); ci++ {
		for a := 0; a < 4; a++ {
			va := gc.tetr.CellVertex(ci, a)
			if !gc.isRealVertex(va) {
				continue
			}
			for b := a + 1; b < 4; b++ {
				vb := gc.tetr.CellVertex(ci, b)
				if !gc.isRealVertex(vb) {
					continue
				}
				if gc.consistentEdge(va, vb, alpha) {
					uf.union(int32(va), int32(vb))
				}
			}
		}
	}
	for vi := 0; vi < nv; vi++ {
		attr := &gc.vertAttrs[vi]
		if !gc.isRealVertex(vi) {
			attr.SegSize = 0
			attr.segID = -1
			continue
		}
		root := uf.find(int32(vi))
		attr.SegSize = uf.size[root]
		attr.segID = root
	}
}

func (gc *GraphCut) isRealVertex(vi int) bool {
	if vi < 0 || vi >= len(gc.vertAttrs) {
		return false
	}
	a := &gc.vertAttrs[vi]
	return !a.Helper && !a.OnInfiniteSphere
}

func (gc *GraphCut) consistentEdge(va, vb int, alpha float32) bool {
	aa, ab := &gc.vertAttrs[va], &gc.vertAttrs[vb]
	if alpha <= 0 {
		for _, c := range aa.Cams {
			if ab.HasCam(int(c)) {
				return true
			}
		}
		return false
	}
	pix := 0.5 * (aa.PixSize() + ab.PixSize())
	if pix <= 0 {
		return false
	}
	d := r3.Norm(r3.Sub(gc.verts[va], gc.verts[vb]))
	return d <= float64(alpha)*pix
}

// RemoveSmallSegs marks for removal every real vertex in a segment
// smaller than minSegSize. The complex itself is untouched: the caller
// must re-ingest the surviving points and re-triangulate. Returns the
// number of marked points.
func (gc *GraphCut) RemoveSmallSegs(minSegSize int) int {
	n := 0
	for vi := range gc.inputIdx {
		attr := &gc.vertAttrs[vi]
		if attr.SegSize > 0 && int(attr.SegSize) < minSegSize {
			gc.removedInput[gc.inputIdx[vi]] = true
			n++
		}
	}
	return n
}
