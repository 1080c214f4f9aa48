package fusecut

import (
	"math"
	"math/rand"

	geo "github.com/golang/geo/r3"
	"github.com/markus-wa/quickhull-go/v2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut/internal/d3"
)

// BoundingHexa derives the 8-corner region of interest from the cloud
// and the camera centers: the convex hull of both is computed and its
// axis-aligned bounds scaled by the given factor about their center.
// Corner ordering follows d3.Box.Vertices.
func BoundingHexa(points []Point, cams []Camera, scale float64) [8]r3.Vec {
	pts := make([]r3.Vec, 0, len(points)+len(cams))
	for i := range points {
		pts = append(pts, points[i].P)
	}
	for i := range cams {
		pts = append(pts, cams[i].Center)
	}
	if len(pts) == 0 {
		return d3.Box{Min: d3.Elem(-1), Max: d3.Elem(1)}.Vertices()
	}
	box := d3.BoxOf(hullPoints(pts))
	if scale > 0 {
		box = box.ScaleAboutCenter(scale)
	}
	return box.Vertices()
}

// hullPoints returns the convex hull vertices of pts, or pts itself
// when the hull cannot be computed (degenerate input).
func hullPoints(pts []r3.Vec) []r3.Vec {
	if len(pts) < 4 {
		return pts
	}
	gpts := make([]geo.Vector, len(pts))
	for i, p := range pts {
		gpts[i] = geo.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}
	qh := new(quickhull.QuickHull)
	hull := qh.ConvexHull(gpts, true, false, 1e-9)
	if len(hull.Vertices) < 4 {
		return pts
	}
	out := make([]r3.Vec, len(hull.Vertices))
	for i, v := range hull.Vertices {
		out[i] = r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
	}
	return out
}

// initComplex ingests the inputs and triangulates. Ordering matters:
// real points first, then camera centers, singularity guards and the
// helper lattice, then one tetrahedralization over all of them.
func (gc *GraphCut) initComplex(points []Point, cams []Camera, hexah [8]r3.Vec) error {
	gc.verts = gc.verts[:0]
	gc.vertAttrs = gc.vertAttrs[:0]
	gc.cellAttrs = nil
	gc.cellIsFull = nil
	gc.labeled = false
	gc.indexBuilt = false
	gc.tetr = nil
	gc.cams = cams
	gc.input = points
	gc.removedInput = make([]bool, len(points))
	gc.inputIdx = gc.inputIdx[:0]

	gc.addPointsFromCloud(points)
	nreal := len(gc.verts)
	if nreal < 4 {
		return ErrTooFewPoints
	}

	box := d3.Box{Min: hexah[0], Max: hexah[6]}
	for _, c := range hexah {
		box = box.Include(c)
	}
	// The helper lattice needs a volume; pad the axes a flat input
	// collapses.
	if sz := box.Size(); sz.X == 0 || sz.Y == 0 || sz.Z == 0 {
		box = box.Enlarge(d3.Elem(r3.Norm(sz) / 100))
	}
	minDist := r3.Norm(box.Size()) / 1000

	grid := newPointGrid(minDist)
	for vi, p := range gc.verts {
		grid.add(int32(vi), p)
	}

	gc.addPointsFromCameraCenters(cams, minDist, grid)
	gc.addPointsToPreventSingularities(hexah, minDist, grid)
	gc.addHelperPoints(gc.params.HelperPointsGridDim, box, minDist, grid)
	gc.log.Logf("ingested %d points (%d real, %d helpers)", len(gc.verts), nreal, len(gc.verts)-nreal)

	tetr, err := gc.params.backend()(gc.verts)
	if err != nil {
		return err
	}
	gc.tetr = tetr
	if d, ok := tetr.(backendDiag); ok {
		if nd, nf := d.DuplicatePoints(), d.FailedPoints(); nd > 0 || nf > 0 {
			gc.log.Logf("backend dropped points: %d duplicate, %d failed", nd, nf)
		}
	}

	// The backend may have nudged points it had to reinsert; adopt its
	// coordinates so facet geometry matches the cell structure.
	for vi := range gc.verts {
		gc.verts[vi] = tetr.Vertex(vi)
	}
	// It may also close space with extra sentinel vertices; mirror them
	// into the complex as infinite-sphere helpers.
	for vi := len(gc.verts); vi < tetr.NumVertices(); vi++ {
		gc.verts = append(gc.verts, tetr.Vertex(vi))
		gc.vertAttrs = append(gc.vertAttrs, VertexAttr{OnInfiniteSphere: true, Helper: true})
	}

	gc.cellAttrs = make([]cellAttr, tetr.NumCells())
	gc.BuildVertexToCellIndex()

	// A vertex in no cell was dropped by the backend; its rays will be
	// abandoned rather than walked.
	lost := 0
	for vi := 0; vi < nreal; vi++ {
		if len(gc.NeighboringCells(vi)) == 0 {
			lost++
		}
	}
	if lost > 0 {
		gc.log.Logf("%d real points are in no cell after triangulation", lost)
	}
	gc.log.Logf("triangulated: %d cells", tetr.NumCells())
	return nil
}

// backendDiag is optionally implemented by triangulation backends that
// can report dropped input points.
type backendDiag interface {
	DuplicatePoints() int
	FailedPoints() int
}

// addPointsFromCloud appends the fused points, subsampling above
// MaxInputPoints and dropping points below the MinVis observation
// threshold.
func (gc *GraphCut) addPointsFromCloud(points []Point) {
	step := 1
	if gc.params.MaxInputPoints > 0 && len(points) > gc.params.MaxInputPoints {
		step = (len(points) + gc.params.MaxInputPoints - 1) / gc.params.MaxInputPoints
	}
	dropped := 0
	for i := 0; i < len(points); i += step {
		p := &points[i]
		if gc.params.MinVis > 0 && len(p.Cams) < gc.params.MinVis {
			gc.removedInput[i] = true
			dropped++
			continue
		}
		nvotes := int32(len(p.Cams))
		if nvotes == 0 {
			nvotes = 1
		}
		cams := make([]int32, len(p.Cams))
		for k, c := range p.Cams {
			cams[k] = int32(c)
		}
		gc.verts = append(gc.verts, p.P)
		gc.vertAttrs = append(gc.vertAttrs, VertexAttr{
			Cams:       cams,
			NVotes:     nvotes,
			PixSizeSum: float32(p.PixSize) * float32(nvotes),
		})
		gc.inputIdx = append(gc.inputIdx, int32(i))
	}
	if step > 1 || dropped > 0 {
		gc.log.Logf("cloud subsampling step %d, %d under-observed points dropped", step, dropped)
	}
}

// addPointsFromCameraCenters anchors free space with one helper vertex
// per camera. Cameras sharing a center (within minDist) share the
// vertex.
func (gc *GraphCut) addPointsFromCameraCenters(cams []Camera, minDist float64, grid *pointGrid) {
	gc.camsVertexes = make([]int, len(cams))
	for i := range cams {
		c := cams[i].Center
		if prev := gc.camVertexNear(c, minDist, i); prev != NoVertex {
			gc.camsVertexes[i] = prev
			continue
		}
		vi := len(gc.verts)
		gc.verts = append(gc.verts, c)
		gc.vertAttrs = append(gc.vertAttrs, VertexAttr{Helper: true})
		grid.add(int32(vi), c)
		gc.camsVertexes[i] = vi
	}
}

func (gc *GraphCut) camVertexNear(c r3.Vec, minDist float64, upto int) int {
	for j := 0; j < upto; j++ {
		vj := gc.camsVertexes[j]
		if r3.Norm2(r3.Sub(gc.verts[vj], c)) <= minDist*minDist {
			return vj
		}
	}
	return NoVertex
}

// addPointsToPreventSingularities pushes the 8 volume corners slightly
// outward and inserts them, keeping coplanar and cospherical real
// configurations from producing degenerate cells.
func (gc *GraphCut) addPointsToPreventSingularities(hexah [8]r3.Vec, minDist float64, grid *pointGrid) {
	var center r3.Vec
	for _, c := range hexah {
		center = r3.Add(center, c)
	}
	center = r3.Scale(1.0/8.0, center)
	for _, c := range hexah {
		p := r3.Add(center, r3.Scale(1.05, r3.Sub(c, center)))
		gc.addHelperVertex(p, minDist, grid)
	}
}

// addHelperPoints seeds a jittered lattice of gridDim+1 points per
// axis inside the bounding volume, keeping minDist from every vertex
// already present.
func (gc *GraphCut) addHelperPoints(gridDim int, box d3.Box, minDist float64, grid *pointGrid) {
	if gridDim <= 0 {
		return
	}
	rnd := rand.New(rand.NewSource(gc.params.Seed))
	sz := box.Size()
	step := r3.Vec{X: sz.X / float64(gridDim), Y: sz.Y / float64(gridDim), Z: sz.Z / float64(gridDim)}
	added := 0
	for ix := 0; ix <= gridDim; ix++ {
		for iy := 0; iy <= gridDim; iy++ {
			for iz := 0; iz <= gridDim; iz++ {
				p := r3.Vec{
					X: box.Min.X + (float64(ix)+0.6*(rnd.Float64()-0.5))*step.X,
					Y: box.Min.Y + (float64(iy)+0.6*(rnd.Float64()-0.5))*step.Y,
					Z: box.Min.Z + (float64(iz)+0.6*(rnd.Float64()-0.5))*step.Z,
				}
				if gc.addHelperVertex(p, minDist, grid) {
					added++
				}
			}
		}
	}
	gc.log.Logf("helper lattice: %d of %d candidates inserted", added, (gridDim+1)*(gridDim+1)*(gridDim+1))
}

func (gc *GraphCut) addHelperVertex(p r3.Vec, minDist float64, grid *pointGrid) bool {
	if grid.hasWithin(p, minDist, gc.verts) {
		return false
	}
	vi := len(gc.verts)
	gc.verts = append(gc.verts, p)
	gc.vertAttrs = append(gc.vertAttrs, VertexAttr{Helper: true})
	grid.add(int32(vi), p)
	return true
}

// pointGrid is a coarse spatial hash for minimum-distance checks
// during ingestion.
type pointGrid struct {
	cell float64
	m    map[[3]int32][]int32
}

func newPointGrid(cell float64) *pointGrid {
	if cell <= 0 {
		cell = 1e-9
	}
	return &pointGrid{cell: cell, m: make(map[[3]int32][]int32)}
}

func (g *pointGrid) key(p r3.Vec) [3]int32 {
	return [3]int32{
		int32(math.Floor(p.X / g.cell)),
		int32(math.Floor(p.Y / g.cell)),
		int32(math.Floor(p.Z / g.cell)),
	}
}

func (g *pointGrid) add(vi int32, p r3.Vec) {
	k := g.key(p)
	g.m[k] = append(g.m[k], vi)
}

// hasWithin reports whether a stored vertex lies within d of p.
func (g *pointGrid) hasWithin(p r3.Vec, d float64, verts []r3.Vec) bool {
	k := g.key(p)
	reach := int32(math.Ceil(d/g.cell)) + 1
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				for _, vi := range g.m[[3]int32{k[0] + dx, k[1] + dy, k[2] + dz}] {
					if r3.Norm2(r3.Sub(verts[vi], p)) <= d*d {
						return true
					}
				}
			}
		}
	}
	return false
}
