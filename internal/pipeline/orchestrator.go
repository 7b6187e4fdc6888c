// Package pipeline sequences background removal, classification and
// segmentation over a person/garment image pair and guarantees that no
// unverified image ever leaves it.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/example/fitroom/internal/garment"
	"github.com/example/fitroom/internal/logging"
	"github.com/example/fitroom/internal/raster"
	"github.com/example/fitroom/internal/removal"
)

// Remover is the slice of the removal coordinator the pipeline needs.
type Remover interface {
	Remove(ctx context.Context, img *image.NRGBA) (*removal.Result, error)
}

// Request describes one preprocessing run. Both images arrive as
// transportable bytes; decoding is the pipeline's first stage.
type Request struct {
	PersonImage  []byte
	GarmentImage []byte
	GarmentType  garment.Type

	RemovePersonBackground  bool
	RemoveGarmentBackground bool
	SegmentGarment          bool
	// SegmentMode selects the advanced band crop/mask paths. Empty means
	// the default full-image policy.
	SegmentMode garment.Mode

	Debug bool
}

// Steps records which requested transformations actually completed. The
// bundle is only successful when every requested flag is true.
type Steps struct {
	PersonBackgroundRemoved  bool `json:"person_background_removed"`
	GarmentBackgroundRemoved bool `json:"garment_background_removed"`
	GarmentSegmented         bool `json:"garment_segmented"`
}

// Bundle is the orchestrator's sole output and the only thing the
// generation collaborator is allowed to receive.
type Bundle struct {
	PersonImage    []byte
	GarmentImage   []byte
	Steps          Steps
	Classification *garment.ClassificationResult
	RemovalMethods map[string]string
	Success        bool
	Err            error
	Trace          *Trace
}

// Orchestrator runs the strictly sequential preprocessing state machine:
// decode, person removal, garment removal, classify+segment, verify, encode.
type Orchestrator struct {
	remover      Remover
	segmenter    *garment.Segmenter
	maxDimension int
	logger       *zap.Logger
}

// NewOrchestrator wires the pipeline. maxDimension clamps decoded uploads;
// zero disables the clamp.
func NewOrchestrator(remover Remover, maxDimension int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		remover:      remover,
		segmenter:    garment.NewSegmenter(),
		maxDimension: maxDimension,
		logger:       logger.Named("pipeline"),
	}
}

// Run executes the pipeline. The returned bundle is always non-nil so
// callers can inspect the trace of completed stages even after a failure;
// the error mirrors Bundle.Err.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Bundle, error) {
	trace := NewTrace()
	bundle := &Bundle{Trace: trace, RemovalMethods: map[string]string{}}
	logger := o.logger.With(zap.String("trace_id", trace.TraceID))

	personBuf, err := o.decode(trace, "decode-person", req.PersonImage)
	if err != nil {
		return o.fail(bundle, logger, "decode-person", err)
	}
	garmentBuf, err := o.decode(trace, "decode-garment", req.GarmentImage)
	if err != nil {
		return o.fail(bundle, logger, "decode-garment", err)
	}

	if req.RemovePersonBackground {
		personBuf, err = o.removeBackground(ctx, trace, bundle, "person", personBuf)
		if err != nil {
			return o.fail(bundle, logger, "person-background-removal", err)
		}
		bundle.Steps.PersonBackgroundRemoved = true
	}

	if req.RemoveGarmentBackground {
		garmentBuf, err = o.removeBackground(ctx, trace, bundle, "garment", garmentBuf)
		if err != nil {
			return o.fail(bundle, logger, "garment-background-removal", err)
		}
		bundle.Steps.GarmentBackgroundRemoved = true
	}

	if req.SegmentGarment {
		start := time.Now()
		// The classifier runs for diagnostics; the current policy never
		// consults it for the segmentation decision.
		classification := garment.Classify(garmentBuf, req.GarmentType)
		bundle.Classification = &classification
		trace.Record("classify-garment", start, fmt.Sprintf("confidence=%.2f class=%s",
			classification.Confidence, classification.AspectClass))

		start = time.Now()
		seg, err := o.segmenter.Segment(garmentBuf, req.GarmentType, req.SegmentMode)
		if err != nil {
			return o.fail(bundle, logger, "segment-garment", err)
		}
		garmentBuf = seg.Buffer
		bundle.Steps.GarmentSegmented = seg.Success
		trace.Record("segment-garment", start, string(seg.Decision))
	}

	if err := o.verify(req, bundle.Steps); err != nil {
		return o.fail(bundle, logger, "verification", err)
	}

	start := time.Now()
	if bundle.PersonImage, err = raster.EncodePNG(personBuf); err != nil {
		return o.fail(bundle, logger, "encode-person", err)
	}
	if bundle.GarmentImage, err = raster.EncodePNG(garmentBuf); err != nil {
		return o.fail(bundle, logger, "encode-garment", err)
	}
	trace.Record("encode", start, "png")

	bundle.Success = true
	if req.Debug {
		logger.Debug("preprocessing complete",
			zap.Int("stages", len(trace.Stages)),
			zap.Strings("warnings", trace.Warnings))
	}
	return bundle, nil
}

// decode is the only stage touching raw bytes. Decoded buffers are clamped
// so pathological upload sizes cannot stall the pixel loops downstream.
func (o *Orchestrator) decode(trace *Trace, stage string, data []byte) (*image.NRGBA, error) {
	start := time.Now()
	buf, err := raster.Decode(data)
	if err != nil {
		return nil, err
	}
	buf = raster.ClampSize(buf, o.maxDimension)
	trace.Record(stage, start, fmt.Sprintf("%dx%d", buf.Bounds().Dx(), buf.Bounds().Dy()))
	return buf, nil
}

// removeBackground runs the coordinator for one image and folds its
// diagnostics into the trace. A result that is not successful is treated
// exactly like an error: the original buffer must never continue as a
// silent substitute.
func (o *Orchestrator) removeBackground(ctx context.Context, trace *Trace, bundle *Bundle, subject string, buf *image.NRGBA) (*image.NRGBA, error) {
	start := time.Now()
	result, err := o.remover.Remove(ctx, buf)
	if result != nil {
		trace.Warn(result.Warnings...)
	}
	if err != nil {
		return nil, err
	}
	if !result.Success || result.Buffer == nil {
		return nil, removal.ErrFallbackExhausted
	}
	bundle.RemovalMethods[subject] = result.MethodUsed
	trace.Record("remove-background-"+subject, start, result.MethodUsed)
	return result.Buffer, nil
}

// verify is the gate between processing and the outside world: a requested
// step whose flag is down aborts the run.
func (o *Orchestrator) verify(req Request, steps Steps) error {
	if req.RemovePersonBackground && !steps.PersonBackgroundRemoved {
		return &VerificationError{Step: "person_background_removed"}
	}
	if req.RemoveGarmentBackground && !steps.GarmentBackgroundRemoved {
		return &VerificationError{Step: "garment_background_removed"}
	}
	if req.SegmentGarment && !steps.GarmentSegmented {
		return &VerificationError{Step: "garment_segmented"}
	}
	return nil
}

func (o *Orchestrator) fail(bundle *Bundle, logger *zap.Logger, stage string, err error) (*Bundle, error) {
	wrapped := &StageError{Stage: stage, Err: err}
	bundle.Success = false
	bundle.Err = wrapped
	logging.WithStage(logger, stage, "").Warn("preprocessing aborted", zap.Error(err))
	return bundle, wrapped
}
