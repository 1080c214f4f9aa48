package fusecut

import "testing"

// emptyAdj returns an adjacency table with every face on the boundary.
func emptyAdj(nc int) [][4]int {
	adj := make([][4]int, nc)
	for i := range adj {
		adj[i] = [4]int{NoCell, NoCell, NoCell, NoCell}
	}
	return adj
}

// chain links cells[i] and cells[i+1] through one shared face each.
func chain(adj [][4]int, cells ...int) {
	for i := 0; i+1 < len(cells); i++ {
		adj[cells[i]][1] = cells[i+1]
		adj[cells[i+1]][0] = cells[i]
	}
}

func TestSegmentFullOrFree(t *testing.T) {
	adj := emptyAdj(5)
	chain(adj, 0, 1, 2)
	full := []bool{true, true, true, false, true}
	gc := newLabeledGC(adj, make([]bool, 5), full)

	colors, nseg := gc.SegmentFullOrFree(true)
	if nseg != 2 {
		t.Fatalf("found %d full components, want 2", nseg)
	}
	if colors[0] != colors[1] || colors[1] != colors[2] {
		t.Error("chained cells split across components")
	}
	if colors[3] != -1 {
		t.Error("empty cell assigned to a full component")
	}
	if colors[4] == colors[0] {
		t.Error("disconnected full cells merged")
	}
	sizes := segmentSizes(colors, nseg)
	if sizes[colors[0]] != 3 || sizes[colors[4]] != 1 {
		t.Errorf("component sizes %v, want 3 and 1", sizes)
	}
}

func TestSegmentFullOrFreePanicsBeforeMaxflow(t *testing.T) {
	gc := twoTetGC()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic before labeling")
		}
	}()
	gc.SegmentFullOrFree(true)
}

func TestRemoveDust(t *testing.T) {
	// Two full components: a chain of 3 and a chain of 10.
	adj := emptyAdj(13)
	chain(adj, 0, 1, 2)
	chain(adj, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	full := make([]bool, 13)
	for i := range full {
		full[i] = true
	}
	gc := newLabeledGC(adj, make([]bool, 13), full)

	if n := gc.RemoveDust(5); n != 3 {
		t.Fatalf("removed %d cells, want 3", n)
	}
	for ci := 0; ci < 3; ci++ {
		if gc.CellIsFull(ci) {
			t.Errorf("dust cell %d still full", ci)
		}
	}
	for ci := 3; ci < 13; ci++ {
		if !gc.CellIsFull(ci) {
			t.Errorf("cell %d of the large component relabeled", ci)
		}
	}
	// Stable labelings are a fixed point.
	if n := gc.RemoveDust(5); n != 0 {
		t.Errorf("second pass removed %d cells, want 0", n)
	}
}

func TestRemoveBubbles(t *testing.T) {
	// Cell 0 is an empty pocket with full cells on all four faces.
	// Cell 5 is the unbounded outside, reachable from cell 1.
	adj := emptyAdj(6)
	for k := 0; k < 4; k++ {
		adj[0][k] = k + 1
		adj[k+1][0] = 0
	}
	adj[1][1] = 5
	adj[5][0] = 1
	inf := make([]bool, 6)
	inf[5] = true
	full := []bool{false, true, true, true, true, false}
	gc := newLabeledGC(adj, inf, full)

	if n := gc.RemoveBubbles(); n != 1 {
		t.Fatalf("filled %d components, want 1", n)
	}
	if !gc.CellIsFull(0) {
		t.Error("enclosed pocket not filled")
	}
	if gc.CellIsFull(5) {
		t.Error("unbounded outside filled")
	}
	if n := gc.RemoveBubbles(); n != 0 {
		t.Errorf("second pass filled %d components, want 0", n)
	}
}

func TestRemoveBubblesKeepsBoundaryVoids(t *testing.T) {
	// An empty component touching the outer boundary (a NoCell face)
	// is connected to unbounded space and must not be filled.
	adj := emptyAdj(2)
	chain(adj, 0, 1)
	full := []bool{false, true}
	gc := newLabeledGC(adj, make([]bool, 2), full)

	if n := gc.RemoveBubbles(); n != 0 {
		t.Fatalf("filled %d components, want 0", n)
	}
	if gc.CellIsFull(0) {
		t.Error("boundary void filled")
	}
}

func TestLeaveLargestFullSegmentOnly(t *testing.T) {
	adj := emptyAdj(13)
	chain(adj, 0, 1, 2)
	chain(adj, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	full := make([]bool, 13)
	for i := range full {
		full[i] = true
	}
	gc := newLabeledGC(adj, make([]bool, 13), full)

	gc.LeaveLargestFullSegmentOnly()
	for ci := 0; ci < 3; ci++ {
		if gc.CellIsFull(ci) {
			t.Errorf("smaller component cell %d kept", ci)
		}
	}
	for ci := 3; ci < 13; ci++ {
		if !gc.CellIsFull(ci) {
			t.Errorf("largest component cell %d dropped", ci)
		}
	}
}

func TestInvertFullStatusForSmallLabels(t *testing.T) {
	// A 2-cell full sliver attached to a large protected empty region.
	adj := emptyAdj(5)
	chain(adj, 0, 1, 2, 3, 4)
	inf := make([]bool, 5)
	inf[2] = true
	full := []bool{true, true, false, false, false}
	gc := newLabeledGC(adj, inf, full)

	if n := gc.InvertFullStatusForSmallLabels(3); n != 2 {
		t.Fatalf("inverted %d cells, want 2", n)
	}
	for ci := 0; ci < 5; ci++ {
		if gc.CellIsFull(ci) {
			t.Errorf("cell %d still full", ci)
		}
	}
}

func TestInvertFullStatusProtectsInfiniteEmpties(t *testing.T) {
	// A single empty infinite cell below the size threshold stays
	// empty: unbounded space is never inverted.
	adj := emptyAdj(2)
	chain(adj, 0, 1)
	inf := []bool{false, true}
	full := []bool{true, false}
	gc := newLabeledGC(adj, inf, full)

	// The full cell 0 is small and flips; the empty infinite cell 1
	// is protected even though its component is also small.
	n := gc.InvertFullStatusForSmallLabels(2)
	if gc.CellIsFull(1) {
		t.Fatal("infinite empty cell inverted")
	}
	if n == 0 {
		t.Fatal("small full component not inverted")
	}
	if gc.CellIsFull(0) {
		t.Error("small full cell kept its label")
	}
}
