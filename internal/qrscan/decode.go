package qrscan

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/campusquest/companion/internal/campus"
)

// Decoder finds a QR code in a frame.
type Decoder interface {
	Decode(img image.Image) (campus.ScanResult, bool)
}

// ZXing decodes with the gozxing QR reader.
type ZXing struct {
	TryHarder bool
}

func (z ZXing) Decode(img image.Image) (campus.ScanResult, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return campus.ScanResult{}, false
	}

	var hints map[gozxing.DecodeHintType]interface{}
	if z.TryHarder {
		hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}

	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return campus.ScanResult{}, false
	}

	return campus.ScanResult{
		Text:    res.GetText(),
		Corners: corners(res.GetResultPoints()),
	}, true
}

// corners turns the reader's finder pattern centers (bottom-left, top-left,
// top-right) into a quadrilateral, completing the parallelogram for the
// bottom-right corner.
func corners(pts []gozxing.ResultPoint) [4]campus.Point {
	var q [4]campus.Point
	if len(pts) < 3 {
		return q
	}
	bl := campus.Point{X: pts[0].GetX(), Y: pts[0].GetY()}
	tl := campus.Point{X: pts[1].GetX(), Y: pts[1].GetY()}
	tr := campus.Point{X: pts[2].GetX(), Y: pts[2].GetY()}
	br := campus.Point{X: tr.X + bl.X - tl.X, Y: tr.Y + bl.Y - tl.Y}
	return [4]campus.Point{tl, tr, br, bl}
}
