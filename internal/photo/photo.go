// Package photo captures commemorative pictures and applies pan/zoom edits.
package photo

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
)

const (
	JPEGQuality = 80
	dataPrefix  = "data:image/jpeg;base64,"
)

var ErrNoFrame = errors.New("camera produced no frame")

// TakePicture grabs one frame from a freshly opened stream and encodes it
// as a JPEG data URI. The stream is stopped on every path.
func TakePicture(ctx context.Context, cam device.Camera, readyTimeout time.Duration) (campus.CapturedImage, error) {
	stream, err := cam.Open(ctx)
	if err != nil {
		return campus.CapturedImage{}, fmt.Errorf("opening camera: %w", err)
	}
	defer stream.Stop()

	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	w, h, err := stream.Ready(readyCtx)
	if err != nil {
		return campus.CapturedImage{}, fmt.Errorf("waiting for camera: %w", err)
	}

	frame, ok := stream.Frame()
	if !ok {
		return campus.CapturedImage{}, ErrNoFrame
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), frame, frame.Bounds().Min, draw.Src)

	return fromImage(canvas)
}

// Load accepts raw JPEG/PNG bytes or a data URI and normalizes it to a
// JPEG data URI.
func Load(data []byte) (campus.CapturedImage, error) {
	if bytes.HasPrefix(data, []byte("data:")) {
		raw, err := decodeDataURI(string(data))
		if err != nil {
			return campus.CapturedImage{}, err
		}
		data = raw
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return campus.CapturedImage{}, fmt.Errorf("decoding image: %w", err)
	}
	return fromImage(img)
}

// Decode returns the pixels behind a data URI.
func Decode(uri string) (image.Image, error) {
	raw, err := decodeDataURI(uri)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// EncodeDataURI serializes img as a JPEG data URI.
func EncodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encoding jpeg: %w", err)
	}
	return dataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func fromImage(img image.Image) (campus.CapturedImage, error) {
	uri, err := EncodeDataURI(img)
	if err != nil {
		return campus.CapturedImage{}, err
	}
	b := img.Bounds()
	return campus.CapturedImage{
		DataURI:   uri,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Transform: campus.Identity,
	}, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("malformed data uri")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return raw, nil
}
