package garment

import "image"

// AspectClass is the shape category suggested by the width/height ratio
// alone. Tops tend to be wider than tall, bottoms taller than wide.
type AspectClass string

const (
	LikelyTop      AspectClass = "likelyTop"
	LikelyBottom   AspectClass = "likelyBottom"
	LikelyFullBody AspectClass = "likelyFullBody"
)

// Aspect ratio bounds separating the three shape classes.
const (
	topAspectBound    = 1.2
	bottomAspectBound = 0.8
)

// gradientThreshold is the magnitude above which a pixel counts as an edge.
const gradientThreshold = 30

// ClassificationResult carries both heuristic signals plus the combined
// confidence. It is purely diagnostic for the current segmentation policy;
// nothing downstream gates on it.
type ClassificationResult struct {
	AspectRatio       float64     `json:"aspect_ratio"`
	AspectClass       AspectClass `json:"aspect_ratio_class"`
	TopEdgeDensity    float64     `json:"top_edge_density"`
	BottomEdgeDensity float64     `json:"bottom_edge_density"`
	Confidence        float64     `json:"confidence"`
	IsSingleGarment   bool        `json:"is_single_garment"`
}

// Classify scores how likely the image already contains a single isolated
// garment of the declared type. It is a pure function of the buffer and the
// declared type; any internal failure degrades to zero confidence rather
// than propagating.
func Classify(img *image.NRGBA, declared Type) ClassificationResult {
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return ClassificationResult{}
	}

	// Full-body and complete-outfit requests never need isolation checks.
	if declared == TypeFullBody || declared == TypeCompleteOutfit {
		return ClassificationResult{
			AspectRatio:     aspectRatio(img),
			AspectClass:     classifyAspect(aspectRatio(img)),
			Confidence:      1.0,
			IsSingleGarment: true,
		}
	}

	ratio := aspectRatio(img)
	class := classifyAspect(ratio)
	topDensity, bottomDensity := edgeDensities(img)

	result := ClassificationResult{
		AspectRatio:       ratio,
		AspectClass:       class,
		TopEdgeDensity:    topDensity,
		BottomEdgeDensity: bottomDensity,
	}

	switch declared {
	case TypeTop:
		result.Confidence = combineSignals(class == LikelyTop, topDensity-bottomDensity)
		result.IsSingleGarment = result.Confidence > 0.6 && class == LikelyTop
	case TypeBottom:
		result.Confidence = combineSignals(class == LikelyBottom, bottomDensity-topDensity)
		result.IsSingleGarment = result.Confidence > 0.6 && class == LikelyBottom
	default:
		// Unknown declared type: stay conservative.
		return ClassificationResult{AspectRatio: ratio, AspectClass: class}
	}
	return result
}

// combineSignals folds the two independent signals into one bounded score:
// a matching aspect class is worth 0.3, and a positive edge-density skew
// toward the declared half contributes up to 0.7.
func combineSignals(aspectMatches bool, densitySkew float64) float64 {
	confidence := 0.0
	if aspectMatches {
		confidence += 0.3
	}
	if densitySkew > 0 {
		edge := densitySkew * 2
		if edge > 0.7 {
			edge = 0.7
		}
		confidence += edge
	}
	return confidence
}

func aspectRatio(img *image.NRGBA) float64 {
	return float64(img.Bounds().Dx()) / float64(img.Bounds().Dy())
}

func classifyAspect(ratio float64) AspectClass {
	switch {
	case ratio > topAspectBound:
		return LikelyTop
	case ratio < bottomAspectBound:
		return LikelyBottom
	default:
		return LikelyFullBody
	}
}

// edgeDensities approximates gradient magnitude with finite differences of
// the RGB channels against the right and lower neighbors, then normalizes
// edge counts by pixel count separately for the top and bottom halves.
func edgeDensities(img *image.NRGBA) (top, bottom float64) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w < 2 || h < 2 {
		return 0, 0
	}

	var topEdges, bottomEdges int
	for y := 0; y < h-1; y++ {
		row := y * img.Stride
		next := (y + 1) * img.Stride
		for x := 0; x < w-1; x++ {
			i := row + x*4
			gx := channelDiff(img.Pix[i:i+3], img.Pix[i+4:i+7])
			gy := channelDiff(img.Pix[i:i+3], img.Pix[next+x*4:next+x*4+3])
			if (gx+gy)/2 > gradientThreshold {
				if y < h/2 {
					topEdges++
				} else {
					bottomEdges++
				}
			}
		}
	}

	halfPixels := float64(w * (h / 2))
	if halfPixels == 0 {
		return 0, 0
	}
	return float64(topEdges) / halfPixels, float64(bottomEdges) / halfPixels
}

// channelDiff is the mean absolute difference across the RGB channels of
// two adjacent pixels.
func channelDiff(a, b []uint8) float64 {
	sum := 0
	for c := 0; c < 3; c++ {
		d := int(a[c]) - int(b[c])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / 3
}
