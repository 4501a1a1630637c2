package photo

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/campusquest/companion/internal/campus"
)

const (
	MinScale = 0.5
	MaxScale = 3.0
)

// ClampScale bounds a zoom factor to [MinScale, MaxScale].
func ClampScale(s float64) float64 {
	if math.IsNaN(s) {
		return 1
	}
	return math.Max(MinScale, math.Min(MaxScale, s))
}

// PinchScale is the zoom for a two-finger gesture that started at
// startScale with fingers startDist apart and is now curDist apart.
func PinchScale(startScale, startDist, curDist float64) float64 {
	if startDist <= 0 {
		return ClampScale(startScale)
	}
	return ClampScale(startScale * curDist / startDist)
}

func distance(a, b campus.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Editor holds one pan/zoom session over an image. Offsets are in display
// pixels; displayWidth maps them onto the natural image when baking.
type Editor struct {
	img          campus.CapturedImage
	src          image.Image
	displayWidth float64
	t            campus.Transform

	panFrom    *campus.Point
	pinchDist  float64
	pinchScale float64
}

func NewEditor(img campus.CapturedImage, displayWidth float64) (*Editor, error) {
	src, err := Decode(img.DataURI)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	if displayWidth <= 0 {
		displayWidth = float64(b.Dx())
	}
	return &Editor{img: img, src: src, displayWidth: displayWidth, t: campus.Identity}, nil
}

func (e *Editor) Transform() campus.Transform {
	return e.t
}

// Pan moves the image by a pointer delta.
func (e *Editor) Pan(dx, dy float64) {
	e.t.X += dx
	e.t.Y += dy
}

// Zoom sets the scale directly, clamped.
func (e *Editor) Zoom(scale float64) {
	e.t.Scale = ClampScale(scale)
}

// TouchStart begins a gesture: one point pans, two points pinch.
func (e *Editor) TouchStart(pts []campus.Point) {
	e.panFrom = nil
	e.pinchDist = 0
	switch len(pts) {
	case 1:
		p := pts[0]
		e.panFrom = &p
	case 2:
		e.pinchDist = distance(pts[0], pts[1])
		e.pinchScale = e.t.Scale
	}
}

func (e *Editor) TouchMove(pts []campus.Point) {
	switch {
	case len(pts) == 1 && e.panFrom != nil:
		p := pts[0]
		e.Pan(p.X-e.panFrom.X, p.Y-e.panFrom.Y)
		e.panFrom = &p
	case len(pts) == 2 && e.pinchDist > 0:
		e.t.Scale = PinchScale(e.pinchScale, e.pinchDist, distance(pts[0], pts[1]))
	}
}

func (e *Editor) TouchEnd() {
	e.panFrom = nil
	e.pinchDist = 0
}

// Save bakes the transform into a new image at the natural size and resets
// the editor to identity over the baked result.
func (e *Editor) Save() (campus.CapturedImage, error) {
	ratio := float64(e.src.Bounds().Dx()) / e.displayWidth
	baked := Bake(e.src, e.t, ratio)

	uri, err := EncodeDataURI(baked)
	if err != nil {
		return campus.CapturedImage{}, fmt.Errorf("baking edit: %w", err)
	}

	out := e.img
	out.DataURI = uri
	out.Baked = uri
	out.Transform = campus.Identity

	e.img = out
	e.src = baked
	e.t = campus.Identity
	e.TouchEnd()
	return out, nil
}

// Bake renders src under t onto a canvas of src's size. Scaling is about
// the image center; offsets are multiplied by ratio.
func Bake(src image.Image, t campus.Transform, ratio float64) *image.RGBA {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	s := t.Scale
	if s == 0 {
		s = 1
	}
	cx, cy := w/2, h/2
	tx := cx*(1-s) + t.X*ratio - s*float64(b.Min.X)
	ty := cy*(1-s) + t.Y*ratio - s*float64(b.Min.Y)
	m := f64.Aff3{
		s, 0, tx,
		0, s, ty,
	}
	draw.BiLinear.Transform(dst, m, src, b, draw.Over, nil)
	return dst
}
