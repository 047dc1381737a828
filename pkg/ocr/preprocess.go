package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrImageTooLarge is returned for images whose pixel count exceeds
// Config.MaxPixels.
var ErrImageTooLarge = errors.New("image too large")

// Prepare decodes data, converts it to the colour model the engine reads
// best and re-encodes it as PNG. Small images are upscaled when
// cfg.UpscaleBelow is set.
//
// Dimensions are read from the header before any pixels are decoded, so an
// image over cfg.MaxPixels (DefaultMaxPixels when unset) costs no more than
// its header.
func Prepare(data []byte, cfg Config) ([]byte, error) {
	limit := int64(cfg.MaxPixels)
	if limit <= 0 {
		limit = DefaultMaxPixels
	}

	hdr, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if px := int64(hdr.Width) * int64(hdr.Height); px > limit {
		return nil, fmt.Errorf("%w: %s %dx%d exceeds %d pixels", ErrImageTooLarge, format, hdr.Width, hdr.Height, limit)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}
	dst := image.Rect(0, 0, b.Dx(), b.Dy())
	if cfg.UpscaleBelow > 0 && b.Dx() < cfg.UpscaleBelow {
		dst = image.Rect(0, 0, b.Dx()*2, b.Dy()*2)
		if int64(dst.Dx())*int64(dst.Dy()) > limit {
			dst = image.Rect(0, 0, b.Dx(), b.Dy())
		}
	}

	var out draw.Image
	if cfg.Grayscale {
		out = image.NewGray(dst)
	} else {
		out = image.NewRGBA(dst)
	}
	if dst.Size() == b.Size() {
		draw.Draw(out, dst, src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(out, dst, src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), nil
}
