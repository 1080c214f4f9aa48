package fusecut

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestCreateMeshSingleFacet(t *testing.T) {
	gc := twoTetGC()
	gc.cellIsFull = []bool{true, false}
	gc.labeled = true

	mesh := gc.CreateMesh(false)
	if len(mesh.Tris) != 1 {
		t.Fatalf("extracted %d triangles, want 1 (the shared face)", len(mesh.Tris))
	}
	want := map[int]bool{0: true, 1: true, 2: true}
	for _, vi := range mesh.Tris[0] {
		if !want[vi] {
			t.Fatalf("triangle references vertex %d, want the shared face {0,1,2}", vi)
		}
	}
	// The normal points from the full cell toward the empty cell, that
	// is toward the lower apex.
	v := mesh.Triangle(0)
	n := r3.Cross(r3.Sub(v[1], v[0]), r3.Sub(v[2], v[0]))
	toEmpty := r3.Sub(gc.verts[4], v[0])
	if r3.Dot(n, toEmpty) <= 0 {
		t.Error("surface normal points into the full cell")
	}
}

func TestCreateMeshLabelSwap(t *testing.T) {
	gc := twoTetGC()
	gc.cellIsFull = []bool{false, true}
	gc.labeled = true

	mesh := gc.CreateMesh(false)
	if len(mesh.Tris) != 1 {
		t.Fatalf("extracted %d triangles, want 1", len(mesh.Tris))
	}
	v := mesh.Triangle(0)
	n := r3.Cross(r3.Sub(v[1], v[0]), r3.Sub(v[2], v[0]))
	toEmpty := r3.Sub(gc.verts[3], v[0])
	if r3.Dot(n, toEmpty) <= 0 {
		t.Error("surface normal does not flip with the labels")
	}
}

func TestCreateMeshAllFull(t *testing.T) {
	gc := twoTetGC()
	gc.cellIsFull = []bool{true, true}
	gc.labeled = true
	if mesh := gc.CreateMesh(false); len(mesh.Tris) != 0 {
		t.Fatalf("uniform labeling produced %d triangles, want 0", len(mesh.Tris))
	}
}

func TestCreateMeshSkipsInfiniteNeighbors(t *testing.T) {
	gc := twoTetGC()
	gc.tetr.(*staticTetra).inf[1] = true
	gc.cellIsFull = []bool{true, false}
	gc.labeled = true
	if mesh := gc.CreateMesh(false); len(mesh.Tris) != 0 {
		t.Fatalf("facet against an infinite cell produced %d triangles", len(mesh.Tris))
	}
}

func TestCreateMeshFiltersHelpers(t *testing.T) {
	gc := twoTetGC()
	gc.cellIsFull = []bool{true, false}
	gc.labeled = true
	gc.vertAttrs[1].Helper = true

	if mesh := gc.CreateMesh(true); len(mesh.Tris) != 0 {
		t.Fatalf("helper-touching triangle kept: %d triangles", len(mesh.Tris))
	}
	if mesh := gc.CreateMesh(false); len(mesh.Tris) != 1 {
		t.Fatal("unfiltered extraction must keep the triangle")
	}
}

func TestCreateMeshPanicsBeforeMaxflow(t *testing.T) {
	gc := twoTetGC()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic before labeling")
		}
	}()
	gc.CreateMesh(false)
}

func TestCreateTetrahedralMesh(t *testing.T) {
	gc := twoTetGC()
	gc.cellIsFull = []bool{true, false}
	gc.labeled = true

	mesh := gc.CreateTetrahedralMesh()
	if len(mesh.Tris) != 4 {
		t.Fatalf("got %d triangles, want the 4 faces of the full cell", len(mesh.Tris))
	}
}
