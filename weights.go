package fusecut

import (
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"
)

// VoteKind selects the accumulator a VoteDelta targets.
type VoteKind uint8

const (
	// VoteOutside adds to a cell's empty/outside terminal weight.
	VoteOutside VoteKind = iota
	// VoteInside adds to a cell's full/inside terminal weight.
	VoteInside
	// VoteFacetVis adds to the visibility weight of one facet of the
	// cell, and marks the cell as traversed.
	VoteFacetVis
)

// VoteDelta is one weight increment produced by a strategy. Weights
// must be non-negative: accumulation only ever adds.
type VoteDelta struct {
	Cell       int
	LocalFacet int
	Kind       VoteKind
	Weight     float32
}

// VoteOptions parameterize one voting pass.
type VoteOptions struct {
	// FixedSigma interprets NPixelSizeBehind as an absolute distance.
	FixedSigma bool
	// NPixelSizeBehind scales the behind-the-point vote extent.
	NPixelSizeBehind float32
	// LabatutWeights selects constant vote magnitudes.
	LabatutWeights bool
	// FillOut enables the camera-side empty votes.
	FillOut bool
	// DistFcnHeight is the decay depth of the distance envelope.
	DistFcnHeight float32
}

// WeightStrategy turns one (vertex, camera) observation into per-cell
// weight deltas. Implementations must be safe for concurrent calls on
// disjoint pairs; they may read but never mutate the complex.
type WeightStrategy interface {
	AccumulateVotes(gc *GraphCut, vertex, cam int, opt VoteOptions, buf []VoteDelta) []VoteDelta
}

// weightFcn maps a vertex's accumulated observation count to the base
// magnitude of its votes. ncams is the total camera count, kept for
// strategies that normalize by it.
func weightFcn(nrc float32, labatutWeights bool, ncams int) float32 {
	if labatutWeights {
		return 32
	}
	_ = ncams
	return nrc
}

// distFcn is the distance-decay envelope of a vote: 1 at zero
// distance, a smooth Gaussian-like decay controlled by height in
// [0,1], and exactly 0 at and beyond maxDist.
func distFcn(maxDist, dist, height float32) float32 {
	if maxDist <= 0 || dist >= maxDist {
		return 0
	}
	if height <= 0 {
		return 1
	}
	sigma := maxDist / 4
	return (1 - height) + height*math32.Exp(-dist*dist/(2*sigma*sigma))
}

// FillGraph runs the voting pass over every (vertex, observing camera)
// pair, accumulating empty weight along camera-to-point rays and full
// weight behind the points. Pairs are processed concurrently; all
// accumulation is associative and order independent.
func (gc *GraphCut) FillGraph(fixedSigma bool, nPixelSizeBehind float32, labatutWeights, fillOut bool, distFcnHeight float32) {
	opt := VoteOptions{
		FixedSigma:       fixedSigma,
		NPixelSizeBehind: nPixelSizeBehind,
		LabatutWeights:   labatutWeights,
		FillOut:          fillOut,
		DistFcnHeight:    distFcnHeight,
	}
	gc.forEachVertexCam(func(vi, cam int, buf []VoteDelta) []VoteDelta {
		buf = gc.strategy.AccumulateVotes(gc, vi, cam, opt, buf)
		for _, d := range buf {
			gc.applyVote(d)
		}
		return buf
	})
}

// forEachVertexCam fans (vertex, camera) pairs out to the worker pool.
func (gc *GraphCut) forEachVertexCam(fn func(vi, cam int, buf []VoteDelta) []VoteDelta) {
	nw := gc.params.workers()
	var next int64
	var wg sync.WaitGroup
	nv := int64(len(gc.verts))
	for w := 0; w < nw; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]VoteDelta, 0, 256)
			for {
				vi := atomic.AddInt64(&next, 1) - 1
				if vi >= nv {
					return
				}
				attr := &gc.vertAttrs[vi]
				if attr.Helper || len(attr.Cams) == 0 {
					continue
				}
				for _, cam := range attr.Cams {
					buf = fn(int(vi), int(cam), buf[:0])
				}
			}
		}()
	}
	wg.Wait()
}

func (gc *GraphCut) applyVote(d VoteDelta) {
	if d.Weight < 0 {
		panic("fusecut: negative vote weight")
	}
	a := &gc.cellAttrs[d.Cell]
	switch d.Kind {
	case VoteOutside:
		a.sWeight.Add(d.Weight)
	case VoteInside:
		a.tWeight.Add(d.Weight)
	case VoteFacetVis:
		a.gEdgeVisWeight[d.LocalFacet].Add(d.Weight)
		a.emptinessScore.Add(d.Weight)
		a.on.Add(1)
	}
}

// visibilityStrategy is the default weighting: walk the ray from the
// camera center to the point, voting traversed cells empty, then keep
// walking behind the point voting full.
type visibilityStrategy struct{}

func (visibilityStrategy) AccumulateVotes(gc *GraphCut, vertex, cam int, opt VoteOptions, buf []VoteDelta) []VoteDelta {
	attr := &gc.vertAttrs[vertex]
	p := gc.verts[vertex]
	c := gc.cams[cam].Center
	toPoint := r3.Sub(p, c)
	dist := r3.Norm(toPoint)
	if dist == 0 {
		return buf
	}
	dir := r3.Scale(1/dist, toPoint)
	w := weightFcn(float32(attr.NVotes), opt.LabatutWeights, len(gc.cams))
	if w <= 0 {
		return buf
	}
	maxBehind := opt.NPixelSizeBehind
	if !opt.FixedSigma {
		maxBehind *= float32(attr.PixSize())
	}

	if opt.FillOut {
		buf = frontVotes(gc, vertex, cam, w, dist, opt.DistFcnHeight, buf)
	}
	buf = behindVotes(gc, vertex, dir, w, maxBehind, opt.DistFcnHeight, buf)
	return buf
}

// frontVotes walks camera -> point. The cell holding the camera gets
// outside weight; every crossed facet gets visibility weight decayed
// over the ray length.
func frontVotes(gc *GraphCut, vertex, cam int, w float32, dist float64, height float32, buf []VoteDelta) []VoteDelta {
	camVi := gc.camsVertexes[cam]
	if camVi == vertex {
		return buf
	}
	c := gc.verts[camVi]
	dir := r3.Scale(1/dist, r3.Sub(gc.verts[vertex], c))
	wk, ok := gc.walkFromVertex(camVi, dir)
	if !ok {
		return buf
	}
	buf = append(buf, VoteDelta{Cell: wk.cell(), Kind: VoteOutside, Weight: w})
	for {
		d := w * distFcn(float32(dist), float32(wk.t), height)
		if d > 0 {
			buf = append(buf, VoteDelta{Cell: wk.f.Cell, LocalFacet: wk.f.Opp, Kind: VoteFacetVis, Weight: d})
		}
		if !wk.next() {
			return buf
		}
		// Arrived at the star of the observed point.
		if gc.cellHasVertex(wk.cell(), vertex) {
			return buf
		}
	}
}

// behindVotes walks point -> away from camera, voting traversed cells
// full up to maxBehind, with a final anchoring vote on the last cell.
func behindVotes(gc *GraphCut, vertex int, dir r3.Vec, w, maxBehind, height float32, buf []VoteDelta) []VoteDelta {
	if maxBehind <= 0 {
		return buf
	}
	p := gc.verts[vertex]
	wk, ok := gc.walkFromVertex(vertex, dir)
	if !ok {
		return buf
	}
	last := wk.cell()
	for {
		behind := float32(r3.Norm(r3.Sub(wk.x, p)))
		if behind > maxBehind {
			break
		}
		d := w * distFcn(maxBehind, behind, height)
		if d > 0 {
			buf = append(buf, VoteDelta{Cell: wk.cell(), Kind: VoteInside, Weight: d})
		}
		last = wk.cell()
		if !wk.next() {
			break
		}
	}
	buf = append(buf, VoteDelta{Cell: last, Kind: VoteInside, Weight: w})
	return buf
}

// ForceTEdgesByGradient strengthens the full vote right behind each
// observed point when the emptiness accumulated in front of the point
// clearly exceeds the emptiness behind it. This sharpens the cut at
// surfaces that received consistent see-through evidence. The probe
// depth on both sides is nPixelSizeBehind pixel sizes, or an absolute
// distance when fixedSigma is set.
func (gc *GraphCut) ForceTEdgesByGradient(fixedSigma bool, nPixelSizeBehind float32) {
	gc.forEachVertexCam(func(vi, cam int, buf []VoteDelta) []VoteDelta {
		attr := &gc.vertAttrs[vi]
		p := gc.verts[vi]
		c := gc.cams[cam].Center
		toCam := r3.Sub(c, p)
		dist := r3.Norm(toCam)
		if dist == 0 {
			return buf
		}
		maxDist := nPixelSizeBehind
		if !fixedSigma {
			maxDist *= float32(attr.PixSize())
		}
		if maxDist <= 0 {
			return buf
		}
		toCamDir := r3.Scale(1/dist, toCam)

		eFront, _, okF := gc.probeEmptiness(vi, toCamDir, maxDist)
		eBehind, target, okB := gc.probeEmptiness(vi, r3.Scale(-1, toCamDir), maxDist)
		if !okF || !okB {
			return buf
		}
		grad := eFront - eBehind
		minGrad := float32(gc.params.MinVis) * weightFcn(float32(attr.NVotes), gc.params.LabatutWeights, len(gc.cams))
		if grad <= minGrad {
			return buf
		}
		gc.applyVote(VoteDelta{Cell: target, Kind: VoteInside, Weight: grad - minGrad})
		return buf
	})
}

// probeEmptiness walks up to maxDist from vertex vi along dir and
// returns the minimum emptiness score over the traversed cells and the
// deepest cell reached within range.
func (gc *GraphCut) probeEmptiness(vi int, dir r3.Vec, maxDist float32) (minEmpty float32, deepest int, ok bool) {
	p := gc.verts[vi]
	wk, ok := gc.walkFromVertex(vi, dir)
	if !ok {
		return 0, NoCell, false
	}
	minEmpty = gc.cellAttrs[wk.cell()].emptinessScore.Load()
	deepest = wk.cell()
	for {
		if float32(r3.Norm(r3.Sub(wk.x, p))) > maxDist {
			break
		}
		if e := gc.cellAttrs[wk.cell()].emptinessScore.Load(); e < minEmpty {
			minEmpty = e
		}
		deepest = wk.cell()
		if !wk.next() {
			break
		}
	}
	return minEmpty, deepest, true
}
