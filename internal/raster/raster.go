package raster

import (
	"image"

	"github.com/nfnt/resize"
)

// Luminance computes perceived brightness on the 0-255 scale using the
// standard Rec. 601 weights.
func Luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// ClampSize scales the buffer down so its longest side is at most maxSize.
// Buffers already within the bound are returned unchanged.
func ClampSize(img *image.NRGBA, maxSize int) *image.NRGBA {
	if maxSize <= 0 {
		return img
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return ToNRGBA(resized)
}

// HasTransparency reports whether any pixel carries an alpha below 255.
// Generated results are frequently flattened to full opacity; that case is
// what the compositor's secondary removal pass exists for.
func HasTransparency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// LooksLikeFlatBackground samples the border of the buffer and reports
// whether it resembles a flat, bright, near-gray backdrop. It is a pure
// predicate so it can be tested against synthetic buffers directly.
func LooksLikeFlatBackground(img *image.NRGBA) bool {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w < 4 || h < 4 {
		return false
	}

	border := w / 20
	if border < 1 {
		border = 1
	}

	var sum, count float64
	bright := 0
	gray := 0
	sample := func(x, y int) {
		i := y*img.Stride + x*4
		r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
		lum := Luminance(r, g, b)
		sum += lum
		count++
		if lum > 200 {
			bright++
		}
		if channelSpread(r, g, b) < 24 {
			gray++
		}
	}

	for y := 0; y < h; y++ {
		onEdge := y < border || y >= h-border
		for x := 0; x < w; x++ {
			if onEdge || x < border || x >= w-border {
				sample(x, y)
			}
		}
	}
	if count == 0 {
		return false
	}

	// A flat backdrop is mostly bright and mostly achromatic.
	return float64(bright)/count > 0.8 && float64(gray)/count > 0.8
}

func channelSpread(r, g, b uint8) int {
	lo, hi := int(r), int(r)
	for _, c := range []int{int(g), int(b)} {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return hi - lo
}
