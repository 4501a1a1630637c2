package qrscan

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/campusquest/companion/internal/campus"
)

// OverlayColor is the stroke used for detection boxes.
var OverlayColor = color.RGBA{R: 0xff, G: 0x3b, B: 0x58, A: 0xff}

// Overlay receives the detection box for a frame of the given size.
type Overlay interface {
	Mark(frame image.Rectangle, q [4]campus.Point)
}

// Canvas is an Overlay that sizes itself to the annotated frame.
type Canvas struct {
	mu  sync.Mutex
	img *image.RGBA
}

func (c *Canvas) Mark(frame image.Rectangle, q [4]campus.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := frame.Size()
	if c.img == nil || c.img.Bounds().Size() != size {
		c.img = image.NewRGBA(image.Rectangle{Max: size})
	}
	DrawOverlay(c.img, q)
}

// Image returns a copy of the canvas, or nil if nothing was marked.
func (c *Canvas) Image() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return nil
	}
	cp := image.NewRGBA(c.img.Bounds())
	copy(cp.Pix, c.img.Pix)
	return cp
}

// DrawOverlay clears dst and strokes the detection quadrilateral on it.
func DrawOverlay(dst draw.Image, q [4]campus.Point) {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	for i := range q {
		a, b := q[i], q[(i+1)%len(q)]
		line(dst, a, b, 4, OverlayColor)
	}
}

// line strokes a segment by stamping a square brush along it.
func line(dst draw.Image, a, b campus.Point, width int, c color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	half := width / 2
	src := image.NewUniform(c)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(a.X + t*dx))
		y := int(math.Round(a.Y + t*dy))
		r := image.Rect(x-half, y-half, x-half+width, y-half+width)
		draw.Draw(dst, r.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}
