package render_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut"
	"github.com/voxreco/fusecut/internal/d3"
	"github.com/voxreco/fusecut/render"
)

// tetraMesh is a closed tetrahedron with outward-facing triangles.
func tetraMesh() fusecut.Mesh {
	return fusecut.Mesh{
		Pts: []r3.Vec{
			{X: 0, Y: 0, Z: 0},
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1},
		},
		Tris: [][3]int{
			{0, 2, 1},
			{0, 1, 3},
			{0, 3, 2},
			{1, 2, 3},
		},
	}
}

func TestMeshRendererStreams(t *testing.T) {
	m := tetraMesh()
	// A buffer smaller than the triangle count forces multiple reads.
	r := render.NewMeshRenderer(m)
	got, err := render.RenderAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(m.Tris) {
		t.Fatalf("got %d triangles, want %d", len(got), len(m.Tris))
	}
	for i := range got {
		want := render.Triangle3{V: m.Triangle(i)}
		if diff := cmp.Diff(want, got[i]); diff != "" {
			t.Errorf("triangle %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSTLRoundTrip(t *testing.T) {
	m := tetraMesh()
	tris, err := render.RenderAll(render.NewMeshRenderer(m))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := render.WriteSTL(&buf, tris); err != nil {
		t.Fatal(err)
	}
	back, err := render.ReadSTL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(tris) {
		t.Fatalf("round trip lost triangles: got %d, want %d", len(back), len(tris))
	}
	const tol = 1e-6
	for i := range tris {
		for k := 0; k < 3; k++ {
			if !d3.EqualWithin(tris[i].V[k], back[i].V[k], tol) {
				t.Errorf("triangle %d vertex %d drifted: %v became %v", i, k, tris[i].V[k], back[i].V[k])
			}
		}
	}
}

func TestWriteSTLEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := render.WriteSTL(&buf, nil); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestCreateSTL(t *testing.T) {
	m := tetraMesh()
	path := filepath.Join(t.TempDir(), "tetra.stl")
	if err := render.CreateSTL(path, render.NewMeshRenderer(m)); err != nil {
		t.Fatal(err)
	}
	fp, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	back, err := render.ReadSTL(fp)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != len(m.Tris) {
		t.Fatalf("got %d triangles, want %d", len(back), len(m.Tris))
	}
}

func TestWriteOBJ(t *testing.T) {
	m := tetraMesh()
	var buf bytes.Buffer
	if err := render.WriteOBJ(&buf, m); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var nv, nf int
	for _, ln := range lines {
		switch {
		case strings.HasPrefix(ln, "v "):
			nv++
		case strings.HasPrefix(ln, "f "):
			nf++
		default:
			t.Errorf("unexpected OBJ line %q", ln)
		}
	}
	if nv != len(m.Pts) || nf != len(m.Tris) {
		t.Fatalf("got %d vertices and %d faces, want %d and %d", nv, nf, len(m.Pts), len(m.Tris))
	}
	if !strings.Contains(buf.String(), "f 1 3 2") {
		t.Error("OBJ face indices are not 1-based")
	}
}

func TestTriangleNormalArea(t *testing.T) {
	tri := render.Triangle3{V: [3]r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}}
	n := tri.Normal()
	if d := r3.Norm(r3.Sub(n, r3.Vec{Z: 1})); d > 1e-12 {
		t.Errorf("normal off by %g", d)
	}
	if a := tri.Area(); math.Abs(a-0.5) > 1e-12 {
		t.Errorf("area = %g, want 0.5", a)
	}
}

func TestPreviewImage(t *testing.T) {
	m := tetraMesh()
	img, err := render.PreviewImage(m, render.ViewConfig{
		Up:     r3.Vec{Z: 1},
		Eyepos: r3.Vec{X: 3, Y: 3, Z: 3},
		Near:   1,
		Far:    10,
	})
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 1920 || b.Dy() != 1080 {
		t.Fatalf("preview image is %dx%d, want 1920x1080", b.Dx(), b.Dy())
	}
}

func TestPreviewEmptyMesh(t *testing.T) {
	_, err := render.PreviewImage(fusecut.Mesh{}, render.ViewConfig{})
	if err == nil {
		t.Fatal("expected error for empty mesh")
	}
}

func BenchmarkWriteSTL(b *testing.B) {
	tris, err := render.RenderAll(render.NewMeshRenderer(tetraMesh()))
	if err != nil {
		b.Fatal(err)
	}
	model := make([]render.Triangle3, 0, 4096)
	for len(model) < 4096 {
		model = append(model, tris...)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := render.WriteSTL(&buf, model); err != nil {
			b.Fatal(err)
		}
	}
}
