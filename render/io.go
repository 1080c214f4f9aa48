package render

import (
	"bufio"
	"fmt"
	"io"

	"github.com/voxreco/fusecut"
)

// RenderAll drains a Renderer and returns every triangle read. It does
// not return io.EOF, like the io.ReadAll implementation.
func RenderAll(r Renderer) ([]Triangle3, error) {
	var err error
	var nt int
	result := make([]Triangle3, 0, 1<<12)
	buf := make([]Triangle3, 1024)
	for {
		nt, err = r.ReadTriangles(buf)
		result = append(result, buf[:nt]...)
		if err != nil {
			break
		}
	}
	if err == io.EOF {
		return result, nil
	}
	return result, err
}

// WriteOBJ writes a surface to w in Wavefront OBJ format. The shared
// vertex list is preserved, unlike STL which flattens it.
func WriteOBJ(w io.Writer, m fusecut.Mesh) error {
	bw := bufio.NewWriter(w)
	for _, p := range m.Pts {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	// OBJ indices are 1-based.
	for _, t := range m.Tris {
		if _, err := fmt.Fprintf(bw, "f %d %d %d\n", t[0]+1, t[1]+1, t[2]+1); err != nil {
			return err
		}
	}
	return bw.Flush()
}
