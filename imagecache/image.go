// Package imagecache fetches remote images into display targets, keeping a
// disk cache of fetched bytes.
package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"

	_ "golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is an encoded image together with what was learned decoding it.
// Source is the URL it came from, or the name of a bundled placeholder.
type Image struct {
	Source      string
	Format      string
	ContentType string
	Width       int
	Height      int
	Data        []byte
}

func (i Image) Empty() bool { return len(i.Data) == 0 }

// Decode checks that data is one of the accepted formats.
func Decode(source string, data []byte) (Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%s: %w", source, ErrUnsupportedFormat)
	}
	return Image{
		Source:      source,
		Format:      format,
		ContentType: "image/" + format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Data:        data,
	}, nil
}

// Solid renders a single-colour PNG, used for bundled placeholder and error
// images.
func Solid(name string, w, h int, c color.Color) Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return Image{Source: name, Format: "png", ContentType: "image/png", Width: w, Height: h, Data: buf.Bytes()}
}

var (
	ProductPlaceholder = Solid("product_placeholder", 64, 64, color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff})
	ProductError       = Solid("product_error", 64, 64, color.RGBA{R: 0xcc, G: 0x33, B: 0x33, A: 0xff})
	ProfilePlaceholder = Solid("profile_image", 64, 64, color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff})
)

// Target is anything that displays an image.
type Target interface {
	SetImage(img Image)
}

// Buffer is an in-memory Target that remembers what it showed.
type Buffer struct {
	mu      sync.Mutex
	current Image
	shown   []string
}

func (b *Buffer) SetImage(img Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = img
	b.shown = append(b.shown, img.Source)
}

func (b *Buffer) Image() Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Shown lists the sources of every image set so far, oldest first.
func (b *Buffer) Shown() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.shown...)
}
