package fusecut

import "testing"

func TestComputeVerticesSegSizeByCamera(t *testing.T) {
	gc := twoTetGC()
	// With alpha <= 0, vertices join a segment when they share a
	// camera. {0,1,2} share camera 0; the apexes are observed alone.
	gc.vertAttrs[0].Cams = []int32{0}
	gc.vertAttrs[1].Cams = []int32{0, 1}
	gc.vertAttrs[2].Cams = []int32{1}
	gc.vertAttrs[3].Cams = []int32{2}
	gc.vertAttrs[4].Cams = []int32{3}

	gc.ComputeVerticesSegSize(0)
	for _, vi := range []int{0, 1, 2} {
		if got := gc.vertAttrs[vi].SegSize; got != 3 {
			t.Errorf("vertex %d segment size = %d, want 3", vi, got)
		}
	}
	if gc.vertAttrs[0].segID != gc.vertAttrs[2].segID {
		t.Error("transitively connected vertices split across segments")
	}
	for _, vi := range []int{3, 4} {
		if got := gc.vertAttrs[vi].SegSize; got != 1 {
			t.Errorf("vertex %d segment size = %d, want 1", vi, got)
		}
	}
}

func TestComputeVerticesSegSizeByDistance(t *testing.T) {
	gc := twoTetGC()
	for vi := 0; vi < 5; vi++ {
		gc.vertAttrs[vi].NVotes = 1
	}
	// Pixel size 1: with alpha 2 every edge of length <= 2 joins, so
	// the whole complex is one segment.
	for vi := 0; vi < 5; vi++ {
		gc.vertAttrs[vi].PixSizeSum = 1
	}
	gc.ComputeVerticesSegSize(2)
	if got := gc.vertAttrs[0].SegSize; got != 5 {
		t.Errorf("segment size = %d, want 5", got)
	}

	// Pixel size 0.01: no edge is short enough.
	for vi := 0; vi < 5; vi++ {
		gc.vertAttrs[vi].PixSizeSum = 0.01
	}
	gc.ComputeVerticesSegSize(2)
	if got := gc.vertAttrs[0].SegSize; got != 1 {
		t.Errorf("segment size = %d, want 1", got)
	}
}

func TestComputeVerticesSegSizeSkipsHelpers(t *testing.T) {
	gc := twoTetGC()
	gc.vertAttrs[3].Helper = true
	gc.vertAttrs[4].OnInfiniteSphere = true
	for vi := 0; vi < 5; vi++ {
		gc.vertAttrs[vi].Cams = []int32{0}
	}
	gc.ComputeVerticesSegSize(0)
	if got := gc.vertAttrs[0].SegSize; got != 3 {
		t.Errorf("segment size = %d, want 3 real vertices", got)
	}
	if gc.vertAttrs[3].SegSize != 0 || gc.vertAttrs[4].SegSize != 0 {
		t.Error("helper vertices assigned a segment size")
	}
}

func TestRemoveSmallSegs(t *testing.T) {
	gc := twoTetGC()
	gc.vertAttrs[0].Cams = []int32{0}
	gc.vertAttrs[1].Cams = []int32{0}
	gc.vertAttrs[2].Cams = []int32{0}
	gc.vertAttrs[3].Cams = []int32{1}
	gc.vertAttrs[4].Cams = []int32{2}
	gc.input = make([]Point, 5)
	gc.removedInput = make([]bool, 5)
	gc.inputIdx = []int32{0, 1, 2, 3, 4}

	gc.ComputeVerticesSegSize(0)
	if n := gc.RemoveSmallSegs(2); n != 2 {
		t.Fatalf("marked %d points, want the 2 singleton apexes", n)
	}
	want := []bool{false, false, false, true, true}
	for i, w := range want {
		if gc.removedInput[i] != w {
			t.Errorf("removedInput[%d] = %v, want %v", i, gc.removedInput[i], w)
		}
	}
	if kept := gc.keptInput(); len(kept) != 3 {
		t.Errorf("keptInput returned %d points, want 3", len(kept))
	}
}
