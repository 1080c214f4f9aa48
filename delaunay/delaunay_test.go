package delaunay

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func cubePoints() []r3.Vec {
	return []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1},
		{X: 1, Y: 0.1, Z: 1.05}, // perturbed to avoid cospherical input
		{X: 1, Y: 1, Z: 0.95},
		{X: 0.05, Y: 1, Z: 1},
		{X: 0.5, Y: 0.5, Z: 0.5},
	}
}

func TestTooFewPoints(t *testing.T) {
	_, err := Tetrahedralize([]r3.Vec{{}, {X: 1}, {Y: 1}})
	if err != ErrTooFewPoints {
		t.Fatalf("err = %v, want ErrTooFewPoints", err)
	}
}

func TestCube(t *testing.T) {
	dt, err := Tetrahedralize(cubePoints())
	if err != nil {
		t.Fatal(err)
	}
	checkStructure(t, dt)

	// Every input point must appear in at least one cell.
	seen := make([]bool, dt.NumInputPoints())
	for ci := 0; ci < dt.NumCells(); ci++ {
		for k := 0; k < 4; k++ {
			if vi := dt.CellVertex(ci, k); vi < dt.NumInputPoints() {
				seen[vi] = true
			}
		}
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("input point %d appears in no cell", i)
		}
	}
}

func TestRandomDelaunayProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	pts := make([]r3.Vec, 60)
	for i := range pts {
		pts[i] = r3.Vec{X: rnd.Float64(), Y: rnd.Float64(), Z: rnd.Float64()}
	}
	dt, err := Tetrahedralize(pts)
	if err != nil {
		t.Fatal(err)
	}
	checkStructure(t, dt)
	if dt.FailedPoints() != 0 {
		t.Fatalf("%d points failed to insert", dt.FailedPoints())
	}

	// Empty circumsphere property for finite cells against input points.
	for ci := 0; ci < dt.NumCells(); ci++ {
		if dt.IsInfiniteCell(ci) {
			continue
		}
		var v [4]r3.Vec
		var vi [4]int
		for k := 0; k < 4; k++ {
			vi[k] = dt.CellVertex(ci, k)
			v[k] = dt.Vertex(vi[k])
		}
		cc, r2, ok := circumsphere(v[0], v[1], v[2], v[3])
		if !ok {
			t.Fatalf("cell %d degenerate", ci)
		}
		for pi, p := range pts {
			if pi == vi[0] || pi == vi[1] || pi == vi[2] || pi == vi[3] {
				continue
			}
			if r3.Norm2(r3.Sub(p, cc)) < r2*(1-1e-9) {
				t.Fatalf("point %d strictly inside circumsphere of cell %d", pi, ci)
			}
		}
	}
}

// reconstructionCloud mimics the point mix a reconstruction feeds the
// backend: a dense jittered sphere surface, a ring of camera centers
// and a coarse interior lattice.
func reconstructionCloud(seed int64) []r3.Vec {
	rnd := rand.New(rand.NewSource(seed))
	var pts []r3.Vec
	for len(pts) < 300 {
		v := r3.Vec{X: rnd.NormFloat64(), Y: rnd.NormFloat64(), Z: rnd.NormFloat64()}
		n := r3.Norm(v)
		if n == 0 {
			continue
		}
		pts = append(pts, r3.Scale((1+0.02*rnd.Float64())/n, v))
	}
	for k := 0; k < 6; k++ {
		a := 2 * math.Pi * float64(k) / 6
		pts = append(pts, r3.Vec{X: 4 * math.Cos(a), Y: 4 * math.Sin(a), Z: 0.3})
	}
	for ix := -2; ix <= 2; ix++ {
		for iy := -2; iy <= 2; iy++ {
			for iz := -2; iz <= 2; iz++ {
				pts = append(pts, r3.Vec{
					X: float64(ix) + 0.1*rnd.Float64(),
					Y: float64(iy) + 0.1*rnd.Float64(),
					Z: float64(iz) + 0.1*rnd.Float64(),
				})
			}
		}
	}
	return pts
}

// Dense surface clouds mixed with helper points used to orphan a few
// percent of the surface vertices when later cavities carved away their
// whole star. Every distinct point must survive into some cell.
func TestReconstructionCloudKeepsAllPoints(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		pts := reconstructionCloud(seed)
		dt, err := Tetrahedralize(pts)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		checkStructure(t, dt)
		if dt.DuplicatePoints() != 0 {
			t.Errorf("seed %d: %d points reported duplicate", seed, dt.DuplicatePoints())
		}
		if dt.FailedPoints() != 0 {
			t.Errorf("seed %d: %d points failed to insert", seed, dt.FailedPoints())
		}
		seen := make([]bool, dt.NumInputPoints())
		for ci := 0; ci < dt.NumCells(); ci++ {
			for k := 0; k < 4; k++ {
				if vi := dt.CellVertex(ci, k); vi < dt.NumInputPoints() {
					seen[vi] = true
				}
			}
		}
		orphans := 0
		for _, ok := range seen {
			if !ok {
				orphans++
			}
		}
		if orphans != 0 {
			t.Errorf("seed %d: %d input points appear in no cell", seed, orphans)
		}
		// Recovery may nudge a vertex, never move it noticeably.
		for i, p := range pts {
			if r3.Norm(r3.Sub(dt.Vertex(i), p)) > 1e-3 {
				t.Fatalf("seed %d: point %d moved by %g", seed, i, r3.Norm(r3.Sub(dt.Vertex(i), p)))
			}
		}
	}
}

func TestDuplicatesSkipped(t *testing.T) {
	pts := cubePoints()
	pts = append(pts, pts[0], pts[3])
	dt, err := Tetrahedralize(pts)
	if err != nil {
		t.Fatal(err)
	}
	if dt.DuplicatePoints() != 2 {
		t.Errorf("DuplicatePoints = %d, want 2", dt.DuplicatePoints())
	}
}

// checkStructure verifies adjacency symmetry and shared facets.
func checkStructure(t *testing.T, dt *Tetrahedralization) {
	t.Helper()
	for ci := 0; ci < dt.NumCells(); ci++ {
		for lf := 0; lf < 4; lf++ {
			nb := dt.CellAdjacent(ci, lf)
			if nb == NoCell {
				continue
			}
			back := false
			for k := 0; k < 4; k++ {
				if dt.CellAdjacent(nb, k) == ci {
					back = true
				}
			}
			if !back {
				t.Fatalf("adjacency not symmetric: cell %d face %d -> %d", ci, lf, nb)
			}
			// The two cells must share exactly the 3 facet vertices.
			shared := 0
			for a := 0; a < 4; a++ {
				if a == lf {
					continue
				}
				for k := 0; k < 4; k++ {
					if dt.CellVertex(ci, a) == dt.CellVertex(nb, k) {
						shared++
					}
				}
			}
			if shared != 3 {
				t.Fatalf("cells %d and %d share %d vertices, want 3", ci, nb, shared)
			}
		}
	}
}

func BenchmarkTetrahedralize(b *testing.B) {
	rnd := rand.New(rand.NewSource(1))
	pts := make([]r3.Vec, 500)
	for i := range pts {
		pts[i] = r3.Vec{X: rnd.Float64(), Y: rnd.Float64(), Z: rnd.Float64()}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Tetrahedralize(pts); err != nil {
			b.Fatal(err)
		}
	}
}
