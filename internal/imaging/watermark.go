// Package imaging stamps uploaded avatars with the service watermark.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	"image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	svcErr "github.com/oggyb/matchmaker/internal/errors"
)

// Processor transforms avatar bytes before they are stored.
type Processor interface {
	Stamp(avatar []byte) ([]byte, error)
}

// Watermarker scales the watermark to a quarter of the avatar's width and
// height and pastes it into the bottom-right corner. Output is always PNG.
type Watermarker struct {
	mark image.Image
}

// NewWatermarker loads the watermark from path. An empty path falls back to
// a generated mark.
func NewWatermarker(path string) (*Watermarker, error) {
	if path == "" {
		return &Watermarker{mark: defaultMark()}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watermark: %w", err)
	}
	defer f.Close()

	mark, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode watermark %s: %w", path, err)
	}
	return &Watermarker{mark: mark}, nil
}

// NewWatermarkerFromImage is used by tests and callers that already hold a decoded mark.
func NewWatermarkerFromImage(mark image.Image) *Watermarker {
	return &Watermarker{mark: mark}
}

func (w *Watermarker) Stamp(avatar []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(avatar))
	if err != nil {
		return nil, svcErr.Validation("avatar is not a supported image: %v", err)
	}

	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)

	mw, mh := b.Dx()/4, b.Dy()/4
	if mw > 0 && mh > 0 {
		dst := image.Rect(b.Dx()-mw, b.Dy()-mh, b.Dx(), b.Dy())
		draw.CatmullRom.Scale(out, dst, w.mark, w.mark.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

// defaultMark is a translucent white square with a darker border.
func defaultMark() image.Image {
	const size = 64
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	fill := color.NRGBA{R: 255, G: 255, B: 255, A: 128}
	edge := color.NRGBA{R: 40, G: 40, B: 40, A: 160}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x < 4 || y < 4 || x >= size-4 || y >= size-4 {
				img.SetNRGBA(x, y, edge)
			} else {
				img.SetNRGBA(x, y, fill)
			}
		}
	}
	return img
}
