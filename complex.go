package fusecut

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// NoCell marks a missing cell reference.
	NoCell = -1
	// NoVertex marks a missing vertex reference.
	NoVertex = -1
)

// Facet is an oriented triangular face of a cell, identified by the
// cell and the local index (0..3) of the cell vertex NOT on the face.
type Facet struct {
	Cell int
	Opp  int
}

// NoFacet is the invalid facet.
var NoFacet = Facet{Cell: NoCell, Opp: NoVertex}

// Valid reports whether the facet references a cell.
func (f Facet) Valid() bool { return f.Cell != NoCell }

// VertexAttr carries the per-vertex reconstruction state.
type VertexAttr struct {
	// Cams are the indices of the cameras observing this point.
	Cams []int32
	// NVotes counts observation events accumulated on the vertex.
	NVotes int32
	// PixSizeSum accumulates pixel-size estimates; the effective
	// pixel size is PixSizeSum/NVotes.
	PixSizeSum float32
	// OnInfiniteSphere marks backend far-boundary sentinels.
	OnInfiniteSphere bool
	// Helper marks synthetic camera-center and lattice vertices.
	Helper bool
	// SegSize and segID label the vertex during small-segment
	// filtering.
	SegSize int32
	segID   int32
}

// PixSize returns the mean pixel-size estimate of the vertex.
func (a *VertexAttr) PixSize() float64 {
	if a.NVotes == 0 {
		return 0
	}
	return float64(a.PixSizeSum) / float64(a.NVotes)
}

// HasCam reports whether camera c observes the vertex.
func (a *VertexAttr) HasCam(c int) bool {
	for _, ci := range a.Cams {
		if int(ci) == c {
			return true
		}
	}
	return false
}

// atomicF32 is a float32 accumulated with compare-and-swap adds so
// that concurrent voters need no lock. Votes only add, so accumulation
// is order independent.
type atomicF32 struct{ bits uint32 }

func (a *atomicF32) Add(v float32) {
	for {
		old := atomic.LoadUint32(&a.bits)
		nw := math.Float32bits(math.Float32frombits(old) + v)
		if atomic.CompareAndSwapUint32(&a.bits, old, nw) {
			return
		}
	}
}

func (a *atomicF32) Load() float32 {
	return math.Float32frombits(atomic.LoadUint32(&a.bits))
}

// cellAttr carries the per-cell vote accumulators. All weights are
// non-negative and only ever increase.
type cellAttr struct {
	// sWeight links the cell to the empty/outside terminal.
	sWeight atomicF32
	// tWeight links the cell to the full/inside terminal.
	tWeight atomicF32
	// gEdgeVisWeight accumulates the directional visibility weight of
	// each of the 4 facets.
	gEdgeVisWeight [4]atomicF32
	// emptinessScore and on track ray traversals for the gradient
	// pass and diagnostics.
	emptinessScore atomicF32
	on             atomicF32
}

// GraphCut owns one cell complex for the duration of a reconstruction:
// vertex coordinates and attributes, per-cell vote weights, the
// full/empty labeling and the derived vertex-to-cells index. It is not
// safe for concurrent use from outside the pipeline.
type GraphCut struct {
	params   Params
	log      Logger
	strategy WeightStrategy

	tetr Tetrahedralization

	verts     []r3.Vec
	vertAttrs []VertexAttr
	cellAttrs []cellAttr
	// cellIsFull is defined only after Maxflow.
	cellIsFull []bool
	labeled    bool

	cams         []Camera
	camsVertexes []int

	// vertex -> incident cells, CSR layout. Invalid until
	// BuildVertexToCellIndex runs, and again after any structural
	// change.
	vertCellsOff []int32
	vertCellsIdx []int32
	indexBuilt   bool

	// original input retained for re-triangulation after segment
	// filtering. inputIdx maps a real vertex back to its input point.
	input        []Point
	removedInput []bool
	inputIdx     []int32

	// abandonedRays counts walks abandoned on degenerate geometry.
	abandonedRays int64
}

// NumVertices returns the vertex count of the current complex,
// backend sentinels included.
func (gc *GraphCut) NumVertices() int { return len(gc.verts) }

// NumCells returns the cell count of the current complex.
func (gc *GraphCut) NumCells() int {
	if gc.tetr == nil {
		return 0
	}
	return gc.tetr.NumCells()
}

// VertexPos returns the coordinates of vertex vi.
func (gc *GraphCut) VertexPos(vi int) r3.Vec {
	gc.checkVertex(vi)
	return gc.verts[vi]
}

// VertexAttrs returns the attributes of vertex vi.
func (gc *GraphCut) VertexAttrs(vi int) *VertexAttr {
	gc.checkVertex(vi)
	return &gc.vertAttrs[vi]
}

// CellFullWeight returns the accumulated full (inside) weight of ci.
func (gc *GraphCut) CellFullWeight(ci int) float32 {
	gc.checkCell(ci)
	return gc.cellAttrs[ci].tWeight.Load()
}

// CellEmptyWeight returns the accumulated empty (outside) weight of ci.
func (gc *GraphCut) CellEmptyWeight(ci int) float32 {
	gc.checkCell(ci)
	return gc.cellAttrs[ci].sWeight.Load()
}

// CellIsFull reports the label of ci. Panics before Maxflow has
// labeled the complex.
func (gc *GraphCut) CellIsFull(ci int) bool {
	if !gc.labeled {
		panic("fusecut: CellIsFull before Maxflow")
	}
	gc.checkCell(ci)
	return gc.cellIsFull[ci]
}

// IsInfiniteCell reports whether ci touches a point-at-infinity
// sentinel vertex. Infinite cells are unbounded empty space.
func (gc *GraphCut) IsInfiniteCell(ci int) bool {
	gc.checkCell(ci)
	return gc.tetr.IsInfiniteCell(ci)
}

// IsInvalidOrInfiniteCell reports whether ci is missing or infinite.
func (gc *GraphCut) IsInvalidOrInfiniteCell(ci int) bool {
	return ci == NoCell || ci < 0 || ci >= gc.NumCells() || gc.tetr.IsInfiniteCell(ci)
}

// FacetVertex returns the global index of the i'th (0..2) vertex on
// facet f, walking the cell's vertices from the one opposite the face.
func (gc *GraphCut) FacetVertex(f Facet, i int) int {
	return gc.tetr.CellVertex(f.Cell, (f.Opp+i+1)%4)
}

// OppositeVertex returns the global index of the cell vertex not on
// facet f.
func (gc *GraphCut) OppositeVertex(f Facet) int {
	return gc.tetr.CellVertex(f.Cell, f.Opp)
}

// FacetPoints returns the coordinates of the facet's 3 vertices.
func (gc *GraphCut) FacetPoints(f Facet) [3]r3.Vec {
	return [3]r3.Vec{
		gc.verts[gc.FacetVertex(f, 0)],
		gc.verts[gc.FacetVertex(f, 1)],
		gc.verts[gc.FacetVertex(f, 2)],
	}
}

// MirrorFacet returns the same triangle seen from the neighboring
// cell: the facet of the adjacent cell whose opposite vertex is the
// one absent from f's three vertices. ok is false at the outer
// boundary or when no such vertex exists (degenerate adjacency).
func (gc *GraphCut) MirrorFacet(f Facet) (Facet, bool) {
	v0 := gc.FacetVertex(f, 0)
	v1 := gc.FacetVertex(f, 1)
	v2 := gc.FacetVertex(f, 2)
	adj := gc.tetr.CellAdjacent(f.Cell, f.Opp)
	if adj == NoCell {
		return NoFacet, false
	}
	for k := 0; k < 4; k++ {
		vi := gc.tetr.CellVertex(adj, k)
		if vi != v0 && vi != v1 && vi != v2 {
			return Facet{Cell: adj, Opp: k}, true
		}
	}
	return NoFacet, false
}

// BuildVertexToCellIndex rebuilds the vertex-to-incident-cells index.
// It must run after every structural change of the triangulation and
// before any NeighboringCells query.
func (gc *GraphCut) BuildVertexToCellIndex() {
	nv := len(gc.verts)
	nc := gc.NumCells()
	off := make([]int32, nv+1)
	invalid := 0
	for ci := 0; ci < nc; ci++ {
		for k := 0; k < 4; k++ {
			vi := gc.tetr.CellVertex(ci, k)
			if vi < 0 || vi >= nv {
				invalid++
				continue
			}
			off[vi+1]++
		}
	}
	for i := 0; i < nv; i++ {
		off[i+1] += off[i]
	}
	idx := make([]int32, off[nv])
	next := make([]int32, nv)
	copy(next, off[:nv])
	for ci := 0; ci < nc; ci++ {
		for k := 0; k < 4; k++ {
			vi := gc.tetr.CellVertex(ci, k)
			if vi < 0 || vi >= nv {
				continue
			}
			idx[next[vi]] = int32(ci)
			next[vi]++
		}
	}
	gc.vertCellsOff = off
	gc.vertCellsIdx = idx
	gc.indexBuilt = true
	if invalid > 0 {
		gc.log.Logf("vertex-to-cell index: %d invalid vertex references", invalid)
	}
}

// NeighboringCells returns the cells incident to vertex vi, each
// exactly once. It panics if the index has not been built: querying a
// stale or missing index is a usage bug, not an empty result.
func (gc *GraphCut) NeighboringCells(vi int) []int32 {
	if !gc.indexBuilt {
		panic("fusecut: NeighboringCells before BuildVertexToCellIndex")
	}
	gc.checkVertex(vi)
	return gc.vertCellsIdx[gc.vertCellsOff[vi]:gc.vertCellsOff[vi+1]]
}

// NearestVertex returns the vertex of cell ci closest to p.
func (gc *GraphCut) NearestVertex(ci int, p r3.Vec) int {
	gc.checkCell(ci)
	best := NoVertex
	bestD := math.MaxFloat64
	for k := 0; k < 4; k++ {
		vi := gc.tetr.CellVertex(ci, k)
		if vi < 0 {
			continue
		}
		if d := r3.Norm2(r3.Sub(gc.verts[vi], p)); d < bestD {
			bestD = d
			best = vi
		}
	}
	return best
}

// LocateNearestVertex scans for the complex vertex closest to p.
func (gc *GraphCut) LocateNearestVertex(p r3.Vec) int {
	best := NoVertex
	bestD := math.MaxFloat64
	for vi := range gc.verts {
		if d := r3.Norm2(r3.Sub(gc.verts[vi], p)); d < bestD {
			bestD = d
			best = vi
		}
	}
	return best
}

// cellBarycenter returns the mean of the cell's vertex positions.
func (gc *GraphCut) cellBarycenter(ci int) r3.Vec {
	var s r3.Vec
	n := 0
	for k := 0; k < 4; k++ {
		vi := gc.tetr.CellVertex(ci, k)
		if vi < 0 {
			continue
		}
		s = r3.Add(s, gc.verts[vi])
		n++
	}
	if n == 0 {
		return s
	}
	return r3.Scale(1/float64(n), s)
}
