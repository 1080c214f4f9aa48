package d3

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxOfIncludeContains(t *testing.T) {
	pts := []r3.Vec{
		{X: 1, Y: -2, Z: 0.5},
		{X: -1, Y: 3, Z: 2},
		{X: 0, Y: 0, Z: -1},
	}
	b := BoxOf(pts)
	for _, p := range pts {
		if !b.Contains(p) {
			t.Errorf("box %v does not contain %v", b, p)
		}
	}
	if b.Contains(r3.Vec{X: 5}) {
		t.Error("box contains a point outside its bounds")
	}
	b2 := b.Include(r3.Vec{X: 5})
	if !b2.Contains(r3.Vec{X: 5}) {
		t.Error("Include did not grow the box")
	}
}

func TestScaleAboutCenter(t *testing.T) {
	b := NewBox(Elem(1), Elem(2))
	s := b.ScaleAboutCenter(3)
	if !EqualWithin(s.Center(), b.Center(), 1e-12) {
		t.Errorf("center moved from %v to %v", b.Center(), s.Center())
	}
	if !EqualWithin(s.Size(), Elem(6), 1e-12) {
		t.Errorf("size = %v, want %v", s.Size(), Elem(6))
	}
	e := b.Enlarge(Elem(2))
	if !EqualWithin(e.Size(), Elem(4), 1e-12) {
		t.Errorf("enlarged size = %v, want %v", e.Size(), Elem(4))
	}
}

func TestVerticesOrdering(t *testing.T) {
	b := Box{Min: Elem(-1), Max: Elem(1)}
	v := b.Vertices()
	if v[0] != b.Min || v[6] != b.Max {
		t.Errorf("corner 0 = %v and corner 6 = %v, want Min and Max", v[0], v[6])
	}
	for i, c := range v {
		wantZ := b.Min.Z
		if i >= 4 {
			wantZ = b.Max.Z
		}
		if c.Z != wantZ {
			t.Errorf("corner %d at z=%g, want %g", i, c.Z, wantZ)
		}
	}
}

func TestRandomInBox(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	b := Box{Min: r3.Vec{X: -2, Y: 0, Z: 1}, Max: r3.Vec{X: 2, Y: 1, Z: 3}}
	for i := 0; i < 100; i++ {
		if p := b.Random(rnd); !b.Contains(p) {
			t.Fatalf("random point %v outside box", p)
		}
	}
}
