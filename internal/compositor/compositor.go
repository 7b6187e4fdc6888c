// Package compositor places a generated try-on result onto a chosen
// backdrop, re-isolating the subject first when the generation service
// returned a flattened, opaque image.
package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/example/fitroom/internal/raster"
	"github.com/example/fitroom/internal/removal"
)

// Remover is the slice of the removal coordinator used for the secondary
// isolation pass on opaque foregrounds.
type Remover interface {
	Remove(ctx context.Context, img *image.NRGBA) (*removal.Result, error)
}

// CompositingError reports a failed composite. It is non-fatal for the
// overall request: the caller falls back to the uncomposited foreground.
type CompositingError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *CompositingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compositing: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("compositing: %s", e.Reason)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CompositingError) Unwrap() error {
	return e.Err
}

// Result is the compositor's output.
type Result struct {
	Buffer   []byte
	Success  bool
	Err      error
	Warnings []string
}

// flatFillColor is the solid backdrop used for flat-fill and for degraded
// missing-template requests.
var flatFillColor = color.NRGBA{R: 245, G: 245, B: 245, A: 255}

// Compositor draws a backdrop behind a transparent foreground.
type Compositor struct {
	remover Remover
	store   *Store
	logger  *zap.Logger
}

// NewCompositor wires the compositor to the backdrop store and the removal
// chain used for opaque foregrounds.
func NewCompositor(remover Remover, store *Store, logger *zap.Logger) *Compositor {
	return &Compositor{
		remover: remover,
		store:   store,
		logger:  logger.Named("compositor"),
	}
}

// Composite decodes the foreground, ensures it carries transparency
// (re-running background removal when it does not), scales the named
// backdrop cover-fit to the foreground's canvas, and draws the foreground
// centered on top. Failures come back in the result, never as a panic or a
// silent fallback.
func (c *Compositor) Composite(ctx context.Context, foreground []byte, backdropName string) *Result {
	result := &Result{}
	fg, err := raster.Decode(foreground)
	if err != nil {
		return failed(result, "decode foreground", err)
	}
	if !raster.HasTransparency(fg) {
		// Generation services frequently flatten their output. Isolate
		// the subject again before putting anything behind it.
		if raster.LooksLikeFlatBackground(fg) {
			result.Warnings = append(result.Warnings, "opaque foreground with flat background, re-running removal")
		} else {
			result.Warnings = append(result.Warnings, "opaque foreground, re-running removal")
		}

		removed, err := c.remover.Remove(ctx, fg)
		if removed != nil {
			result.Warnings = append(result.Warnings, removed.Warnings...)
		}
		if err != nil || removed == nil || !removed.Success {
			return failed(result, "secondary background removal", err)
		}
		fg = removed.Buffer
	}

	backdrop := c.renderBackdrop(backdropName, fg.Bounds(), result)

	canvas := image.NewNRGBA(fg.Bounds())
	draw.Draw(canvas, canvas.Bounds(), backdrop, image.Point{}, draw.Src)
	drawCentered(canvas, fg)

	encoded, err := raster.EncodePNG(canvas)
	if err != nil {
		return failed(result, "encode composite", err)
	}
	result.Buffer = encoded
	result.Success = true
	return result
}

// renderBackdrop returns a backdrop image matching the target bounds:
// either the named template scaled cover-fit (aspect preserved, overflow
// cropped) or a solid fill. Unknown names degrade to the flat fill.
func (c *Compositor) renderBackdrop(name string, bounds image.Rectangle, result *Result) image.Image {
	if name == "" || name == FlatFill {
		return flatFill(bounds)
	}

	template, ok := c.store.Get(name)
	if !ok {
		c.logger.Warn("unknown backdrop, degrading to flat fill", zap.String("backdrop", name))
		result.Warnings = append(result.Warnings, fmt.Sprintf("backdrop %q not found, using flat fill", name))
		return flatFill(bounds)
	}

	return imaging.Fill(template.Image, bounds.Dx(), bounds.Dy(), imaging.Center, imaging.Lanczos)
}

func flatFill(bounds image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(bounds)
	draw.Draw(img, bounds, &image.Uniform{C: flatFillColor}, image.Point{}, draw.Src)
	return img
}

// drawCentered draws src over dst, centered. With matching canvas sizes
// this is a plain overlay; a cropped foreground still lands in the middle.
func drawCentered(dst *image.NRGBA, src *image.NRGBA) {
	offset := image.Pt(
		(dst.Bounds().Dx()-src.Bounds().Dx())/2,
		(dst.Bounds().Dy()-src.Bounds().Dy())/2,
	)
	target := src.Bounds().Add(offset)
	draw.Draw(dst, target, src, src.Bounds().Min, draw.Over)
}

// failed marks the in-flight result as unsuccessful while keeping any
// warnings already accumulated on it.
func failed(result *Result, reason string, err error) *Result {
	result.Success = false
	result.Err = &CompositingError{Reason: reason, Err: err}
	return result
}
