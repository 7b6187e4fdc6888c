package removal

import (
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/example/fitroom/internal/raster"
)

// brightnessThreshold is the exclusive luminance bound above which a pixel
// is treated as background. 240 keeps near-white studio backdrops out while
// leaving bright garment fabric alone.
const brightnessThreshold = 240

// LocalRemover is the deterministic fallback: pixels brighter than the
// threshold have their alpha cleared. It is intentionally crude and known
// to be inferior to the remote service; its job is to be always available.
type LocalRemover struct {
	// FeatherSigma, when positive, softens the mask edge with a Gaussian
	// blur. Zero keeps the hard threshold rule.
	FeatherSigma float64
}

// NewLocalRemover returns a remover with the hard threshold rule.
func NewLocalRemover() *LocalRemover {
	return &LocalRemover{}
}

// Name identifies the strategy in diagnostics.
func (l *LocalRemover) Name() string {
	return "local"
}

// Remove clears the alpha of every pixel with perceived brightness above
// the threshold. The input buffer is not mutated.
func (l *LocalRemover) Remove(ctx context.Context, img *image.NRGBA) (*StrategyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.FeatherSigma > 0 {
		return &StrategyResult{Buffer: l.removeFeathered(img)}, nil
	}

	out := raster.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		if raster.Luminance(out.Pix[i], out.Pix[i+1], out.Pix[i+2]) > brightnessThreshold {
			out.Pix[i+3] = 0
		}
	}
	return &StrategyResult{Buffer: out}, nil
}

// removeFeathered builds a hard background mask, blurs it, and folds the
// blurred mask into the alpha channel for a soft transition.
func (l *LocalRemover) removeFeathered(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	mask := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if raster.Luminance(c.R, c.G, c.B) > brightnessThreshold {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	blurred := imaging.Blur(mask, l.FeatherSigma)

	out := raster.Clone(img)
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			m := blurred.NRGBAAt(x, y).R
			i := y*out.Stride + x*4
			cut := 255 - m
			if out.Pix[i+3] > cut {
				out.Pix[i+3] = cut
			}
		}
	}
	return out
}
