package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
)

// DecodeError reports input bytes that could not be decoded into a raster buffer.
type DecodeError struct {
	Format string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode turns transportable bytes into an NRGBA buffer. Every component
// downstream of the codec operates on *image.NRGBA only; this is the single
// place raw bytes are interpreted.
func Decode(data []byte) (*image.NRGBA, error) {
	img, _, err := DecodeWithFormat(data)
	return img, err
}

// DecodeWithFormat is Decode plus the name of the wire format the bytes
// arrived in ("png", "jpeg"). Callers that must re-encode non-alpha formats
// need to know what they were handed.
func DecodeWithFormat(data []byte) (*image.NRGBA, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	return ToNRGBA(img), format, nil
}

// EncodePNG serializes a buffer to PNG, the alpha-capable transport format.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG serializes a buffer to JPEG at the given quality. JPEG drops
// the alpha channel, so callers needing transparency must use EncodePNG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ToNRGBA normalizes any decoded image to NRGBA so pixel loops can index
// Pix directly.
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Clone returns an independent copy of the buffer. Stages hand buffers
// forward linearly; cloning is only needed when a stage must keep the
// original intact while producing a derived buffer.
func Clone(img *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(img.Bounds())
	copy(dst.Pix, img.Pix)
	return dst
}
