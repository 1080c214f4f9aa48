// Package fusecut reconstructs a watertight triangle mesh from a fused
// point cloud with per-point camera visibility. Space is partitioned by
// a Delaunay tetrahedralization of the points; camera-to-point rays
// vote cells empty or full, a minimum s-t cut labels every cell, and
// the surface is extracted from facets separating full from empty.
package fusecut

import (
	"errors"
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut/delaunay"
)

var (
	// ErrTooFewPoints is returned when fewer than 4 usable points
	// remain after filtering; tetrahedralization is impossible.
	ErrTooFewPoints = errors.New("fusecut: fewer than 4 usable points")
	// ErrNoCameras is returned for an empty camera set.
	ErrNoCameras = errors.New("fusecut: empty camera set")
)

// Point is one fused input point with the cameras that observed it and
// an estimate of its footprint (pixel size) in scene units.
type Point struct {
	P       r3.Vec
	Cams    []int
	PixSize float64
}

// Camera is consumed opaquely as an optical center position.
type Camera struct {
	Center r3.Vec
}

// Logger receives progress and diagnostic events from the pipeline.
// The zero value of Params logs nothing.
type Logger interface {
	Logf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Logf(string, ...interface{}) {}

// Tetrahedralization is the triangulation backend contract. Cells are
// tetrahedra addressed by index; CellVertex returns -1 for an invalid
// reference and CellAdjacent returns -1 at the outer boundary. The
// backend may append vertices of its own (far/boundary sentinels)
// beyond the input points; cells touching them are infinite.
type Tetrahedralization interface {
	NumCells() int
	NumVertices() int
	Vertex(vi int) r3.Vec
	CellVertex(ci, lvi int) int
	CellAdjacent(ci, lfi int) int
	IsInfiniteCell(ci int) bool
}

// Tetrahedralizer produces a Tetrahedralization from a point set.
type Tetrahedralizer func(pts []r3.Vec) (Tetrahedralization, error)

// Params is the single configuration value for a reconstruction. All
// fields have working defaults from DefaultParams.
type Params struct {
	// MaxInputPoints caps the raw points ingested; beyond it the
	// input is subsampled with a regular step.
	MaxInputPoints int
	// MaxPoints caps the points retained after fusion upstream.
	// Carried for the fusion collaborator; ingestion enforces only
	// MaxInputPoints.
	MaxPoints int
	// MinStep is the minimal depth-map sampling step of the upstream
	// fusion pass.
	MinStep int
	// MinVis drops points observed by fewer cameras.
	MinVis int

	// Similarity and angle confidence factors of the upstream
	// refinement fusion. Retained so one Params value configures the
	// whole chain.
	SimFactor   float32
	AngleFactor float32
	// Pixel-size margin coefficients of the fusion pass.
	PixSizeMarginInitCoef  float64
	PixSizeMarginFinalCoef float64
	// VoteMarginFactor scales the distance behind a point over which
	// full votes keep contributing.
	VoteMarginFactor float32
	// ContributeMarginFactor scales the distance in front of a point
	// over which empty votes decay.
	ContributeMarginFactor float32
	// Gaussian falloff sizes of the vote decay envelope.
	SimGaussianSizeInit float32
	SimGaussianSize     float32
	// MinAngleThreshold floors the facet quality factor entering the
	// geometric face weight.
	MinAngleThreshold float64
	// RefineFuse requests the upstream refinement fusion pass.
	RefineFuse bool

	// NPixelSizeBehind scales (by each point's pixel size) how far
	// behind a point full votes reach.
	NPixelSizeBehind float32
	// FixedSigma interprets NPixelSizeBehind as an absolute distance
	// instead of a pixel-size multiple.
	FixedSigma bool
	// LabatutWeights switches vote magnitudes to a constant instead
	// of the per-point observation count.
	LabatutWeights bool
	// DistFcnHeight in [0,1] controls the decay depth of the vote
	// envelope; 0 disables decay inside the vote extent.
	DistFcnHeight float32
	// ForceTEdges enables the gradient-consistency pass that
	// strengthens full votes right behind observed points.
	ForceTEdges bool
	// MaxRaySteps caps cell crossings per ray walk.
	MaxRaySteps int
	// InfiniteCellBias is added to the empty-side capacity of every
	// infinite cell before the cut.
	InfiniteCellBias float32
	// FaceWeightMult scales the geometric face weight added to every
	// facet capacity.
	FaceWeightMult float32

	// RemoveSmallSegments filters isolated point segments and
	// re-triangulates before voting. MinSegSize is the survival
	// threshold, SegAlpha the distance factor (in pixel sizes) under
	// which neighboring points join a segment.
	RemoveSmallSegments bool
	MinSegSize          int
	SegAlpha            float32

	// Post-cut repair knobs.
	InvertSmallLabelsSize int
	MinDustSize           int
	KeepLargestFullOnly   bool

	// HelperPointsGridDim is the per-axis resolution of the helper
	// lattice seeded inside the bounding volume.
	HelperPointsGridDim int
	// FilterHelperPointsTriangles drops surface triangles touching
	// camera-center or lattice helper vertices.
	FilterHelperPointsTriangles bool

	// Seed drives helper-point jitter.
	Seed int64
	// Workers bounds the ray-voting parallelism. 0 means GOMAXPROCS.
	Workers int

	// Logger receives progress events. Nil logs nothing.
	Logger Logger
	// Strategy computes per-ray vote deltas. Nil selects the
	// visibility-walk strategy.
	Strategy WeightStrategy
	// Backend builds the tetrahedralization. Nil selects the
	// incremental Delaunay backend.
	Backend Tetrahedralizer
}

// DefaultParams returns the parameter set used when a field is not
// explicitly tuned.
func DefaultParams() Params {
	return Params{
		MaxInputPoints:         50000000,
		MaxPoints:              5000000,
		MinStep:                2,
		MinVis:                 2,
		SimFactor:              15,
		AngleFactor:            15,
		PixSizeMarginInitCoef:  2,
		PixSizeMarginFinalCoef: 1,
		VoteMarginFactor:       4,
		ContributeMarginFactor: 2,
		SimGaussianSizeInit:    10,
		SimGaussianSize:        10,
		MinAngleThreshold:      0.1,
		RefineFuse:             true,

		NPixelSizeBehind: 4,
		DistFcnHeight:    0,
		ForceTEdges:      true,
		MaxRaySteps:      1000,
		InfiniteCellBias: 1000,
		FaceWeightMult:   32,

		RemoveSmallSegments: false,
		MinSegSize:          10,
		SegAlpha:            9,

		InvertSmallLabelsSize: 10,
		MinDustSize:           100,

		HelperPointsGridDim:         10,
		FilterHelperPointsTriangles: true,
	}
}

func (p *Params) logger() Logger {
	if p.Logger == nil {
		return nopLogger{}
	}
	return p.Logger
}

func (p *Params) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Params) backend() Tetrahedralizer {
	if p.Backend != nil {
		return p.Backend
	}
	return func(pts []r3.Vec) (Tetrahedralization, error) {
		dt, err := delaunay.Tetrahedralize(pts)
		if err != nil {
			if err == delaunay.ErrTooFewPoints {
				return nil, ErrTooFewPoints
			}
			return nil, err
		}
		return dt, nil
	}
}

// Reconstruct runs the full pipeline: ingestion, tetrahedralization,
// optional small-segment filtering, visibility voting, graph cut,
// topology repair and surface extraction. hexah is the 8-corner region
// of interest; pass nil to derive it from the inputs (BoundingHexa).
// The labeled complex stays queryable on gc afterwards.
func (gc *GraphCut) Reconstruct(points []Point, cams []Camera, hexah *[8]r3.Vec) (Mesh, error) {
	if len(cams) == 0 {
		return Mesh{}, ErrNoCameras
	}
	var hx [8]r3.Vec
	if hexah != nil {
		hx = *hexah
	} else {
		hx = BoundingHexa(points, cams, 1.2)
	}

	if err := gc.initComplex(points, cams, hx); err != nil {
		return Mesh{}, err
	}
	if gc.params.RemoveSmallSegments {
		gc.ComputeVerticesSegSize(gc.params.SegAlpha)
		if n := gc.RemoveSmallSegs(gc.params.MinSegSize); n > 0 {
			gc.log.Logf("removed %d points in small segments, re-triangulating", n)
			if err := gc.initComplex(gc.keptInput(), cams, hx); err != nil {
				return Mesh{}, err
			}
		}
	}

	gc.log.Logf("voting: %d vertices, %d cells, %d cameras", gc.NumVertices(), gc.NumCells(), len(cams))
	gc.FillGraph(gc.params.FixedSigma, gc.params.NPixelSizeBehind, gc.params.LabatutWeights, true, gc.params.DistFcnHeight)
	if gc.params.ForceTEdges {
		gc.ForceTEdgesByGradient(gc.params.FixedSigma, gc.params.NPixelSizeBehind)
	}
	gc.AddToInfiniteSw(gc.params.InfiniteCellBias)

	flow := gc.Maxflow()
	gc.log.Logf("graph cut flow: %g", flow)

	gc.InvertFullStatusForSmallLabels(gc.params.InvertSmallLabelsSize)
	gc.RemoveBubbles()
	gc.RemoveDust(gc.params.MinDustSize)
	if gc.params.KeepLargestFullOnly {
		gc.LeaveLargestFullSegmentOnly()
	}
	gc.FreeUnwantedFullCells(hx)

	mesh := gc.CreateMesh(gc.params.FilterHelperPointsTriangles)
	gc.log.Logf("surface: %d triangles over %d vertices", len(mesh.Tris), len(mesh.Pts))
	return mesh, nil
}

// NewGraphCut returns a reconstruction engine configured by params.
func NewGraphCut(params Params) *GraphCut {
	gc := &GraphCut{
		params: params,
		log:    params.logger(),
	}
	if params.Strategy == nil {
		gc.strategy = visibilityStrategy{}
	} else {
		gc.strategy = params.Strategy
	}
	return gc
}

// keptInput returns the input points that survived segment filtering.
func (gc *GraphCut) keptInput() []Point {
	kept := make([]Point, 0, len(gc.input))
	for i := range gc.input {
		if !gc.removedInput[i] {
			kept = append(kept, gc.input[i])
		}
	}
	return kept
}

func (gc *GraphCut) checkCell(ci int) {
	if ci < 0 || ci >= gc.NumCells() {
		panic(fmt.Sprintf("fusecut: cell index %d out of range [0,%d)", ci, gc.NumCells()))
	}
}

func (gc *GraphCut) checkVertex(vi int) {
	if vi < 0 || vi >= gc.NumVertices() {
		panic(fmt.Sprintf("fusecut: vertex index %d out of range [0,%d)", vi, gc.NumVertices()))
	}
}
