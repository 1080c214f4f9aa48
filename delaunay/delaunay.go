// Package delaunay provides an incremental Bowyer-Watson 3D Delaunay
// tetrahedralization. Unbounded space is closed off by four far corner
// vertices appended after the input points; cells touching a far vertex
// are reported as infinite.
package delaunay

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut/internal/d3"
)

const (
	// NoCell marks a missing cell reference (outer boundary).
	NoCell = -1
	// NoVertex marks a missing vertex reference.
	NoVertex = -1

	defaultEps = 1e-12
	// farScale sizes the enclosing tetrahedron relative to the point
	// cloud extent. Large enough that far vertices never interfere
	// with circumspheres of interior cells.
	farScale = 1e3
	// maxLocateSteps caps the visibility walk before falling back to
	// a linear scan. Numerical noise can make the walk cycle.
	maxLocateSteps = 10000
)

var (
	// ErrTooFewPoints is returned when fewer than 4 points are given.
	ErrTooFewPoints = errors.New("delaunay: fewer than 4 input points")
)

// Tetrahedralization is the result of Tetrahedralize. Vertex indices
// 0..NumInputPoints-1 refer to the input points in order; the last 4
// vertices are the far corners.
type Tetrahedralization struct {
	verts []r3.Vec
	npts  int
	cells [][4]int32
	adj   [][4]int32
	ndup  int
	nfail int
}

// Options configure Tetrahedralize.
type Options struct {
	Eps float64
}

// Option mutates Options.
type Option func(*Options)

// WithEps sets the geometric tolerance used for duplicate detection
// and circumsphere tests.
func WithEps(eps float64) Option {
	if eps <= 0 {
		panic("delaunay: eps must be positive")
	}
	return func(o *Options) { o.Eps = eps }
}

// NumCells returns the number of tetrahedra, infinite ones included.
func (t *Tetrahedralization) NumCells() int { return len(t.cells) }

// NumVertices returns the total vertex count, far corners included.
func (t *Tetrahedralization) NumVertices() int { return len(t.verts) }

// NumInputPoints returns the number of input points.
func (t *Tetrahedralization) NumInputPoints() int { return t.npts }

// DuplicatePoints returns how many input points were skipped as
// duplicates of an earlier point.
func (t *Tetrahedralization) DuplicatePoints() int { return t.ndup }

// FailedPoints returns how many input points could not be inserted for
// numerical reasons. They appear in no cell.
func (t *Tetrahedralization) FailedPoints() int { return t.nfail }

// Vertex returns vertex coordinates by global index.
func (t *Tetrahedralization) Vertex(vi int) r3.Vec {
	if vi < 0 || vi >= len(t.verts) {
		panic("delaunay: Vertex index out of range")
	}
	return t.verts[vi]
}

// CellVertex returns the global index of the lvi'th (0..3) vertex of
// cell ci, or NoVertex for an out-of-range cell.
func (t *Tetrahedralization) CellVertex(ci, lvi int) int {
	if ci < 0 || ci >= len(t.cells) || lvi < 0 || lvi > 3 {
		return NoVertex
	}
	return int(t.cells[ci][lvi])
}

// CellAdjacent returns the cell sharing the facet of ci opposite its
// lfi'th vertex, or NoCell at the outer boundary.
func (t *Tetrahedralization) CellAdjacent(ci, lfi int) int {
	if ci < 0 || ci >= len(t.adj) || lfi < 0 || lfi > 3 {
		return NoCell
	}
	return int(t.adj[ci][lfi])
}

// IsFarVertex reports whether vi is one of the enclosing far corners.
func (t *Tetrahedralization) IsFarVertex(vi int) bool {
	return vi >= t.npts && vi < len(t.verts)
}

// IsInfiniteCell reports whether cell ci touches a far corner vertex.
func (t *Tetrahedralization) IsInfiniteCell(ci int) bool {
	if ci < 0 || ci >= len(t.cells) {
		return true
	}
	for _, v := range t.cells[ci] {
		if int(v) >= t.npts {
			return true
		}
	}
	return false
}

// tet is the mutable construction-time tetrahedron. n[i] is the
// neighbor across the face opposite v[i].
type tet struct {
	v    [4]int32
	n    [4]int32
	dead bool
}

type builder struct {
	verts []r3.Vec
	tets  []tet
	eps   float64
	hint  int32
	span  float64
	dup   []bool
	nfail int
	ndup  int
}

// Tetrahedralize computes the Delaunay tetrahedralization of pts.
// Duplicate points (within eps) are skipped; they end up in no cell.
// A point whose insertion fails or whose cells are later carved away is
// reinserted, nudged by at most a few 1e-9 fractions of the cloud
// extent; Vertex reports the nudged coordinates.
func Tetrahedralize(pts []r3.Vec, setters ...Option) (*Tetrahedralization, error) {
	opts := Options{Eps: defaultEps}
	for _, set := range setters {
		set(&opts)
	}
	if len(pts) < 4 {
		return nil, ErrTooFewPoints
	}

	b := &builder{eps: opts.Eps}
	b.verts = make([]r3.Vec, len(pts), len(pts)+4)
	copy(b.verts, pts)
	b.appendFarCorners(pts)
	n := len(pts)
	b.dup = make([]bool, n)

	// Initial tetrahedron from the 4 far corners encloses every point.
	f0, f1, f2, f3 := int32(n), int32(n+1), int32(n+2), int32(n+3)
	first := tet{v: [4]int32{f0, f1, f2, f3}, n: [4]int32{NoCell, NoCell, NoCell, NoCell}}
	if orient3d(b.verts[f0], b.verts[f1], b.verts[f2], b.verts[f3]) < 0 {
		first.v[0], first.v[1] = first.v[1], first.v[0]
	}
	b.tets = append(b.tets, first)

	for i := range pts {
		// Failures are retried by recoverLost once the rest of the
		// cloud is in.
		_ = b.insert(int32(i))
	}
	b.recoverLost(n)

	t := b.compact()
	t.npts = n
	if t.NumCells() == 0 {
		return nil, fmt.Errorf("delaunay: no cells produced from %d points", n)
	}
	return t, nil
}

func (b *builder) appendFarCorners(pts []r3.Vec) {
	min, max := pts[0], pts[0]
	for _, p := range pts[1:] {
		min = r3.Vec{X: math.Min(min.X, p.X), Y: math.Min(min.Y, p.Y), Z: math.Min(min.Z, p.Z)}
		max = r3.Vec{X: math.Max(max.X, p.X), Y: math.Max(max.Y, p.Y), Z: math.Max(max.Z, p.Z)}
	}
	c := r3.Scale(0.5, r3.Add(min, max))
	r := 0.5*r3.Norm(r3.Sub(max, min)) + 1
	b.span = r
	k := farScale * r
	b.verts = append(b.verts,
		r3.Add(c, r3.Vec{X: k, Y: k, Z: k}),
		r3.Add(c, r3.Vec{X: k, Y: -k, Z: -k}),
		r3.Add(c, r3.Vec{X: -k, Y: k, Z: -k}),
		r3.Add(c, r3.Vec{X: -k, Y: -k, Z: k}),
	)
}

func (b *builder) insert(pi int32) error {
	p := b.verts[pi]
	loc, err := b.locate(p)
	if err != nil {
		return err
	}
	// Skip near-duplicates of already inserted vertices.
	for _, v := range b.tets[loc].v {
		d := r3.Sub(b.verts[v], p)
		if r3.Norm2(d) <= b.eps*b.eps {
			b.ndup++
			b.dup[pi] = true
			return errDuplicate
		}
	}

	bad := b.carveCavity(loc, p)
	if len(bad) == 0 {
		return fmt.Errorf("delaunay: empty cavity for point %d", pi)
	}
	return b.fillCavity(pi, bad)
}

var errDuplicate = errors.New("delaunay: duplicate point")

// locate finds a tetrahedron containing p via a visibility walk from
// the last insertion site, falling back to a linear scan.
func (b *builder) locate(p r3.Vec) (int32, error) {
	ti := b.hint
	if int(ti) >= len(b.tets) || b.tets[ti].dead {
		ti = b.anyAlive()
	}
	for step := 0; step < maxLocateSteps; step++ {
		t := &b.tets[ti]
		moved := false
		for i := 0; i < 4; i++ {
			a, c, d := b.faceVerts(t, i)
			sp := orient3d(a, c, d, p)
			sv := orient3d(a, c, d, b.verts[t.v[i]])
			if sv == 0 {
				continue // degenerate face plane, try another
			}
			if sp != 0 && (sp > 0) != (sv > 0) {
				if t.n[i] == NoCell {
					return ti, nil // outer boundary, settle here
				}
				ti = t.n[i]
				moved = true
				break
			}
		}
		if !moved {
			return ti, nil
		}
	}
	// Walk cycled. Scan for any tetrahedron whose circumsphere holds p.
	for i := range b.tets {
		if !b.tets[i].dead && b.inSphere(&b.tets[i], p) {
			return int32(i), nil
		}
	}
	return 0, errors.New("delaunay: point location failed")
}

func (b *builder) anyAlive() int32 {
	for i := range b.tets {
		if !b.tets[i].dead {
			return int32(i)
		}
	}
	panic("delaunay: no live tetrahedra")
}

// faceVerts returns the coordinates of the face of t opposite local
// vertex i.
func (b *builder) faceVerts(t *tet, i int) (r3.Vec, r3.Vec, r3.Vec) {
	var f [3]int32
	k := 0
	for j := 0; j < 4; j++ {
		if j != i {
			f[k] = t.v[j]
			k++
		}
	}
	return b.verts[f[0]], b.verts[f[1]], b.verts[f[2]]
}

func (b *builder) faceVertIndices(t *tet, i int) [3]int32 {
	var f [3]int32
	k := 0
	for j := 0; j < 4; j++ {
		if j != i {
			f[k] = t.v[j]
			k++
		}
	}
	return f
}

// carveCavity flood-fills the set of tetrahedra whose circumsphere
// contains p, starting from seed, and marks them dead.
func (b *builder) carveCavity(seed int32, p r3.Vec) []int32 {
	if !b.inSphere(&b.tets[seed], p) {
		return nil
	}
	bad := []int32{seed}
	b.tets[seed].dead = true
	for qi := 0; qi < len(bad); qi++ {
		t := &b.tets[bad[qi]]
		for i := 0; i < 4; i++ {
			nb := t.n[i]
			if nb == NoCell || b.tets[nb].dead {
				continue
			}
			if b.inSphere(&b.tets[nb], p) {
				b.tets[nb].dead = true
				bad = append(bad, nb)
			}
		}
	}
	return bad
}

// fillCavity retriangulates the cavity boundary against the new point.
func (b *builder) fillCavity(pi int32, bad []int32) error {
	type boundary struct {
		face    [3]int32
		outside int32 // neighbor beyond the cavity, NoCell at world edge
	}
	var walls []boundary
	for _, bi := range bad {
		t := &b.tets[bi]
		for i := 0; i < 4; i++ {
			nb := t.n[i]
			if nb != NoCell && b.tets[nb].dead {
				continue
			}
			walls = append(walls, boundary{face: b.faceVertIndices(t, i), outside: nb})
		}
	}
	if len(walls) < 4 {
		return fmt.Errorf("delaunay: cavity with %d walls", len(walls))
	}

	p := b.verts[pi]
	created := make([]int32, 0, len(walls))
	// Edge of the cavity boundary -> (new tet, local face) awaiting its
	// twin across that edge.
	type halfFace struct {
		tet  int32
		face int
	}
	open := make(map[[2]int32]halfFace, len(walls)*3)

	for _, w := range walls {
		v0, v1, v2 := w.face[0], w.face[1], w.face[2]
		if orient3d(b.verts[v0], b.verts[v1], b.verts[v2], p) < 0 {
			v0, v1 = v1, v0
		}
		nt := tet{
			v: [4]int32{v0, v1, v2, pi},
			n: [4]int32{NoCell, NoCell, NoCell, w.outside},
		}
		ni := int32(len(b.tets))
		// Rewire the outside neighbor's back pointer from the dead
		// tetrahedron to the new one. The matching local face is the
		// one opposite the outside vertex absent from the shared face.
		if w.outside != NoCell {
			out := &b.tets[w.outside]
			for i := 0; i < 4; i++ {
				if out.v[i] != v0 && out.v[i] != v1 && out.v[i] != v2 {
					out.n[i] = ni
					break
				}
			}
		}
		b.tets = append(b.tets, nt)
		created = append(created, ni)

		// Stitch the three faces containing p to sibling new tets.
		face := [3]int32{v0, v1, v2}
		for i := 0; i < 3; i++ {
			e := edgeKey(face[(i+1)%3], face[(i+2)%3])
			if tw, ok := open[e]; ok {
				b.tets[ni].n[i] = tw.tet
				b.tets[tw.tet].n[tw.face] = ni
				delete(open, e)
			} else {
				open[e] = halfFace{tet: ni, face: i}
			}
		}
	}
	if len(open) != 0 {
		return fmt.Errorf("delaunay: %d unmatched cavity faces", len(open))
	}
	b.hint = created[len(created)-1]
	return nil
}

func edgeKey(a, b int32) [2]int32 {
	if a > b {
		a, b = b, a
	}
	return [2]int32{a, b}
}

// recoverLost reinserts input points that ended up in no live
// tetrahedron. A later insertion's cavity can swallow the whole star of
// an earlier vertex without that vertex landing on the cavity boundary,
// orphaning it; near-degenerate cavities also fail insertion outright.
// Reinsertion can orphan another vertex the same way, so the pass
// repeats until nothing is lost or no retry makes progress.
func (b *builder) recoverLost(n int) {
	for round := 0; round < 8; round++ {
		lost := b.lostPoints(n)
		if len(lost) == 0 {
			b.nfail = 0
			return
		}
		recovered := 0
		for _, pi := range lost {
			if b.reinsert(pi) {
				recovered++
			}
		}
		if recovered == 0 {
			break
		}
	}
	b.nfail = len(b.lostPoints(n))
}

// lostPoints returns the input points that are neither duplicates nor
// referenced by any live tetrahedron.
func (b *builder) lostPoints(n int) []int32 {
	inCell := make([]bool, n)
	for i := range b.tets {
		if b.tets[i].dead {
			continue
		}
		for _, v := range b.tets[i].v {
			if int(v) < n {
				inCell[v] = true
			}
		}
	}
	var lost []int32
	for pi := 0; pi < n; pi++ {
		if !inCell[pi] && !b.dup[pi] {
			lost = append(lost, int32(pi))
		}
	}
	return lost
}

// reinsert retries a lost point, first unperturbed, then nudged by a
// growing random offset. The offset starts at 1e-9 of the cloud extent,
// far below any real point spacing.
func (b *builder) reinsert(pi int32) bool {
	orig := b.verts[pi]
	rnd := rand.New(rand.NewSource(int64(pi)))
	step := b.span * 1e-9
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			b.verts[pi] = d3.NewBox(orig, d3.Elem(2*step)).Random(rnd)
			step *= 16
		}
		switch b.insert(pi) {
		case nil:
			return true
		case errDuplicate:
			// The nudge landed within eps of an existing vertex; the
			// point is recorded as a duplicate instead.
			b.verts[pi] = orig
			return true
		}
	}
	b.verts[pi] = orig
	return false
}

// inSphere reports whether p lies inside the circumsphere of t.
// Degenerate (flat) tetrahedra report true so that cavity carving
// removes them on contact.
func (b *builder) inSphere(t *tet, p r3.Vec) bool {
	cc, r2, ok := circumsphere(b.verts[t.v[0]], b.verts[t.v[1]], b.verts[t.v[2]], b.verts[t.v[3]])
	if !ok {
		return true
	}
	d := r3.Sub(p, cc)
	return r3.Norm2(d) <= r2*(1+1e-10)
}

// circumsphere returns the circumcenter and squared circumradius of
// the tetrahedron abcd. ok is false when the points are near-coplanar.
func circumsphere(a, bb, c, d r3.Vec) (center r3.Vec, r2 float64, ok bool) {
	u := r3.Sub(bb, a)
	v := r3.Sub(c, a)
	w := r3.Sub(d, a)
	det := u.X*(v.Y*w.Z-v.Z*w.Y) - u.Y*(v.X*w.Z-v.Z*w.X) + u.Z*(v.X*w.Y-v.Y*w.X)
	scale := r3.Norm(u) * r3.Norm(v) * r3.Norm(w)
	if scale == 0 || math.Abs(det) < 1e-12*scale {
		return r3.Vec{}, 0, false
	}
	ru := 0.5 * r3.Norm2(u)
	rv := 0.5 * r3.Norm2(v)
	rw := 0.5 * r3.Norm2(w)
	// Cramer's rule for 2(B-A)x = |B-A|^2, etc.
	inv := 1 / det
	o := r3.Vec{
		X: inv * (ru*(v.Y*w.Z-v.Z*w.Y) - rv*(u.Y*w.Z-u.Z*w.Y) + rw*(u.Y*v.Z-u.Z*v.Y)),
		Y: inv * (-ru*(v.X*w.Z-v.Z*w.X) + rv*(u.X*w.Z-u.Z*w.X) - rw*(u.X*v.Z-u.Z*v.X)),
		Z: inv * (ru*(v.X*w.Y-v.Y*w.X) - rv*(u.X*w.Y-u.Y*w.X) + rw*(u.X*v.Y-u.Y*v.X)),
	}
	center = r3.Add(a, o)
	return center, r3.Norm2(o), true
}

// orient3d returns the sign of the signed volume of tetrahedron abcd:
// +1 when d is on the positive side of plane abc.
func orient3d(a, b, c, d r3.Vec) int {
	u := r3.Sub(b, a)
	v := r3.Sub(c, a)
	w := r3.Sub(d, a)
	det := u.X*(v.Y*w.Z-v.Z*w.Y) - u.Y*(v.X*w.Z-v.Z*w.X) + u.Z*(v.X*w.Y-v.Y*w.X)
	scale := r3.Norm(u) * r3.Norm(v) * r3.Norm(w)
	if scale == 0 || math.Abs(det) <= 1e-14*scale {
		return 0
	}
	if det > 0 {
		return 1
	}
	return -1
}

// compact drops dead tetrahedra and renumbers the adjacency.
func (b *builder) compact() *Tetrahedralization {
	remap := make([]int32, len(b.tets))
	nalive := int32(0)
	for i := range b.tets {
		if b.tets[i].dead {
			remap[i] = NoCell
		} else {
			remap[i] = nalive
			nalive++
		}
	}
	t := &Tetrahedralization{
		verts: b.verts,
		cells: make([][4]int32, 0, nalive),
		adj:   make([][4]int32, 0, nalive),
		ndup:  b.ndup,
		nfail: b.nfail,
	}
	for i := range b.tets {
		if b.tets[i].dead {
			continue
		}
		var adj [4]int32
		for k := 0; k < 4; k++ {
			nb := b.tets[i].n[k]
			if nb == NoCell {
				adj[k] = NoCell
			} else {
				adj[k] = remap[nb]
			}
		}
		t.cells = append(t.cells, b.tets[i].v)
		t.adj = append(t.adj, adj)
	}
	return t
}
