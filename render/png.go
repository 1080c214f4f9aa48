package render

import (
	"errors"
	"image"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/voxreco/fusecut"
)

// ViewConfig places the preview camera.
type ViewConfig struct {
	// what position (point) to look at
	Lookat r3.Vec
	// which way is up (direction)
	Up r3.Vec
	// where the camera/eye is located at (point)
	Eyepos r3.Vec
	Far    float64
	Near   float64
}

// PreviewImage rasterizes a shaded preview of the surface. The mesh is
// fit to a bi-unit cube centered on the origin before rendering, so
// the view configuration is independent of the model's scale.
func PreviewImage(m fusecut.Mesh, view ViewConfig) (image.Image, error) {
	if len(m.Tris) == 0 {
		return nil, errors.New("cannot preview empty mesh")
	}
	const (
		width, height = 1920, 1080
		scale         = 1 // optional supersampling
		fovy          = 30
	)
	tris := make([]*fauxgl.Triangle, len(m.Tris))
	for i := range m.Tris {
		v := m.Triangle(i)
		tris[i] = fauxgl.NewTriangleForPoints(fglV(v[0]), fglV(v[1]), fglV(v[2]))
	}
	mesh := fauxgl.NewTriangleMesh(tris)
	mesh.BiUnitCube()

	var (
		eye    = fglV(view.Eyepos)
		center = fglV(view.Lookat)
		up     = fglV(view.Up)
		light  = fauxgl.V(-0.75, 1, 0.25).Normalize()
		color  = fauxgl.HexColor("#468966")
	)
	context := fauxgl.NewContext(width*scale, height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor("#FFF8E3"))
	aspect := float64(width) / float64(height)
	matrix := fauxgl.LookAt(eye, center, up).Perspective(fovy, aspect, view.Near, view.Far)
	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = color
	context.Shader = shader
	context.DrawMesh(mesh)
	// downsample for antialiasing
	img := resize.Resize(width, height, context.Image(), resize.Bilinear)
	return img, nil
}

// SavePNG renders a preview of the surface and writes it to path.
func SavePNG(path string, m fusecut.Mesh, view ViewConfig) error {
	img, err := PreviewImage(m, view)
	if err != nil {
		return err
	}
	return fauxgl.SavePNG(path, img)
}

func fglV(v r3.Vec) fauxgl.Vector {
	return fauxgl.V(v.X, v.Y, v.Z)
}
