package garment

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/example/fitroom/internal/raster"
)

// Mode selects how the segmenter isolates the garment region.
type Mode string

const (
	// ModeFullImage passes the buffer through untouched. This is the
	// policy for every declared type; the classifier's output is recorded
	// but does not change the decision.
	ModeFullImage Mode = "full-image"
	// ModeBandCrop physically crops a vertical band: the top 60% of the
	// canvas for tops, the bottom 60% for bottoms.
	ModeBandCrop Mode = "band-crop"
	// ModeBandMask clears alpha outside the band while keeping the full
	// canvas, for consumers that need matching dimensions across images.
	ModeBandMask Mode = "band-mask"
)

// bandFraction is the share of the canvas height a band covers. Two bands
// overlap by 20% in the middle of the image.
const bandFraction = 0.6

// SegmentationError reports a segmentation failure, which is fatal for the
// image being processed.
type SegmentationError struct {
	Reason string
}

// Error implements the error interface.
func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segmentation: %s", e.Reason)
}

// SegmentationResult records what the segmenter decided and produced.
type SegmentationResult struct {
	Buffer   *image.NRGBA
	Decision Mode
	Region   *image.Rectangle
	Success  bool
}

// Segmenter decides, per declared garment type, whether to pass the image
// through unchanged or apply a fallback band crop/mask.
type Segmenter struct{}

// NewSegmenter returns a segmenter with the pass-through default policy.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Segment applies the requested mode. The zero Mode means full-image
// pass-through. Band modes only have defined regions for top and bottom
// types; other types always pass through.
func (s *Segmenter) Segment(img *image.NRGBA, declared Type, mode Mode) (*SegmentationResult, error) {
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, &SegmentationError{Reason: "empty buffer"}
	}

	if mode == "" || mode == ModeFullImage {
		return &SegmentationResult{Buffer: img, Decision: ModeFullImage, Success: true}, nil
	}
	if declared != TypeTop && declared != TypeBottom {
		return &SegmentationResult{Buffer: img, Decision: ModeFullImage, Success: true}, nil
	}

	band := bandRect(img.Bounds(), declared)
	if band.Empty() {
		return nil, &SegmentationError{Reason: fmt.Sprintf("degenerate band for %dx%d image", img.Bounds().Dx(), img.Bounds().Dy())}
	}

	switch mode {
	case ModeBandCrop:
		dst := image.NewNRGBA(image.Rect(0, 0, band.Dx(), band.Dy()))
		draw.Draw(dst, dst.Bounds(), img, band.Min, draw.Src)
		return &SegmentationResult{Buffer: dst, Decision: ModeBandCrop, Region: &band, Success: true}, nil
	case ModeBandMask:
		dst := raster.Clone(img)
		for y := 0; y < dst.Bounds().Dy(); y++ {
			if y >= band.Min.Y && y < band.Max.Y {
				continue
			}
			row := y * dst.Stride
			for x := 0; x < dst.Bounds().Dx(); x++ {
				dst.Pix[row+x*4+3] = 0
			}
		}
		return &SegmentationResult{Buffer: dst, Decision: ModeBandMask, Region: &band, Success: true}, nil
	default:
		return nil, &SegmentationError{Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
}

// bandRect computes the vertical band for a declared type: tops take the
// top 60% of the height, bottoms the bottom 60%.
func bandRect(bounds image.Rectangle, declared Type) image.Rectangle {
	h := bounds.Dy()
	bandHeight := int(float64(h) * bandFraction)
	if declared == TypeTop {
		return image.Rect(0, 0, bounds.Dx(), bandHeight)
	}
	return image.Rect(0, h-bandHeight, bounds.Dx(), h)
}
