package fusecut

// Topology repair over the cell adjacency graph restricted to one
// label. All operations are idempotent for a stable labeling.

// SegmentFullOrFree flood-fills connected components of cells carrying
// the given label, crossing only facets whose mirror cell shares it.
// Returns a per-cell component id (-1 for cells of the other label)
// and the component count.
func (gc *GraphCut) SegmentFullOrFree(full bool) ([]int32, int) {
	if !gc.labeled {
		panic("fusecut: SegmentFullOrFree before Maxflow")
	}
	nc := gc.NumCells()
	colors := make([]int32, nc)
	for i := range colors {
		colors[i] = -1
	}
	var queue []int32
	nseg := 0
	for seed := 0; seed < nc; seed++ {
		if gc.cellIsFull[seed] != full || colors[seed] >= 0 {
			continue
		}
		id := int32(nseg)
		nseg++
		colors[seed] = id
		queue = append(queue[:0], int32(seed))
		for len(queue) > 0 {
			ci := int(queue[len(queue)-1])
			queue = queue[:len(queue)-1]
			for k := 0; k < 4; k++ {
				nb := gc.tetr.CellAdjacent(ci, k)
				if nb == NoCell || colors[nb] >= 0 || gc.cellIsFull[nb] != full {
					continue
				}
				colors[nb] = id
				queue = append(queue, int32(nb))
			}
		}
	}
	return colors, nseg
}

// segmentSizes tallies the cell count of each component.
func segmentSizes(colors []int32, nseg int) []int {
	sizes := make([]int, nseg)
	for _, c := range colors {
		if c >= 0 {
			sizes[c]++
		}
	}
	return sizes
}

// RemoveDust relabels empty every full component smaller than minSize
// cells. Isolated full clusters are reconstruction noise, not
// structure. Returns the number of relabeled cells.
func (gc *GraphCut) RemoveDust(minSize int) int {
	colors, nseg := gc.SegmentFullOrFree(true)
	sizes := segmentSizes(colors, nseg)
	n := 0
	for ci, c := range colors {
		if c >= 0 && sizes[c] < minSize {
			gc.cellIsFull[ci] = false
			n++
		}
	}
	if n > 0 {
		gc.log.Logf("dust: %d cells relabeled empty", n)
	}
	return n
}

// RemoveBubbles relabels full every empty component with no path to
// unbounded space (no infinite cell and no outer-boundary facet).
// Interior voids from sampling gaps are not real cavities. Returns the
// number of filled components.
func (gc *GraphCut) RemoveBubbles() int {
	colors, nseg := gc.SegmentFullOrFree(false)
	outside := make([]bool, nseg)
	for ci := 0; ci < gc.NumCells(); ci++ {
		c := colors[ci]
		if c < 0 {
			continue
		}
		if gc.tetr.IsInfiniteCell(ci) {
			outside[c] = true
			continue
		}
		for k := 0; k < 4; k++ {
			if gc.tetr.CellAdjacent(ci, k) == NoCell {
				outside[c] = true
				break
			}
		}
	}
	nfilled := 0
	for c := 0; c < nseg; c++ {
		if !outside[c] {
			nfilled++
		}
	}
	if nfilled > 0 {
		for ci, c := range colors {
			if c >= 0 && !outside[c] {
				gc.cellIsFull[ci] = true
			}
		}
		gc.log.Logf("bubbles: %d enclosed empty components filled", nfilled)
	}
	return nfilled
}

// LeaveLargestFullSegmentOnly keeps the biggest full component and
// relabels all other full cells empty. An aggressive single-object
// assumption, applied only on request.
func (gc *GraphCut) LeaveLargestFullSegmentOnly() {
	colors, nseg := gc.SegmentFullOrFree(true)
	if nseg <= 1 {
		return
	}
	sizes := segmentSizes(colors, nseg)
	largest := int32(0)
	for c := 1; c < nseg; c++ {
		if sizes[c] > sizes[largest] {
			largest = int32(c)
		}
	}
	n := 0
	for ci, c := range colors {
		if c >= 0 && c != largest {
			gc.cellIsFull[ci] = false
			n++
		}
	}
	gc.log.Logf("kept largest full segment (%d cells), dropped %d cells", sizes[largest], n)
}

// InvertFullStatusForSmallLabels flips cells belonging to components
// smaller than minSize, both full and empty, catching thin mislabeled
// slivers before the coarser dust/bubble passes. Components touching
// unbounded space are never flipped: infinite cells stay empty.
func (gc *GraphCut) InvertFullStatusForSmallLabels(minSize int) int {
	if minSize <= 0 {
		return 0
	}
	flipped := 0
	for _, full := range []bool{true, false} {
		colors, nseg := gc.SegmentFullOrFree(full)
		sizes := segmentSizes(colors, nseg)
		protected := make([]bool, nseg)
		if !full {
			for ci := 0; ci < gc.NumCells(); ci++ {
				if c := colors[ci]; c >= 0 && gc.tetr.IsInfiniteCell(ci) {
					protected[c] = true
				}
			}
		}
		for ci, c := range colors {
			if c >= 0 && sizes[c] < minSize && !protected[c] {
				gc.cellIsFull[ci] = !full
				flipped++
			}
		}
	}
	if flipped > 0 {
		gc.log.Logf("small labels: %d cells inverted", flipped)
	}
	return flipped
}
