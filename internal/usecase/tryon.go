// Package usecase coordinates the preprocessing pipeline, the generation
// collaborator, persistence and caching behind the HTTP surface. Image
// pixels flow through it in memory only; Redis and Postgres see nothing
// but JSON outcome summaries and metadata rows.
package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/fitroom/internal/compositor"
	"github.com/example/fitroom/internal/generation"
	"github.com/example/fitroom/internal/logging"
	"github.com/example/fitroom/internal/pipeline"
	"github.com/example/fitroom/internal/repository"
)

// ProcessingRepository defines the persistence operations needed by the use case.
type ProcessingRepository interface {
	SaveLog(ctx context.Context, log *repository.ProcessingLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.ProcessingLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Orchestrator is the preprocessing entry point the use case drives.
type Orchestrator interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Bundle, error)
}

// Compositing places a processed garment or result onto a backdrop.
type Compositing interface {
	Composite(ctx context.Context, foreground []byte, backdropName string) *compositor.Result
}

// TryOnUseCase encapsulates business logic for the try-on flow.
type TryOnUseCase struct {
	repo           ProcessingRepository
	cache          Cache
	orchestrator   Orchestrator
	generator      generation.Client
	compose        Compositing
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// cachedOutcome is the JSON summary stored in Redis. It deliberately
// carries no image bytes.
type cachedOutcome struct {
	RequestID      string            `json:"request_id"`
	UserID         string            `json:"user_id"`
	GarmentType    string            `json:"garment_type"`
	Steps          pipeline.Steps    `json:"steps"`
	RemovalMethods map[string]string `json:"removal_methods"`
	Warnings       []string          `json:"warnings,omitempty"`
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	DurationMs     int64             `json:"duration_ms"`
	PersonHash     string            `json:"person_sha1"`
	GarmentHash    string            `json:"garment_sha1"`
	CreatedAt      time.Time         `json:"created_at"`
}

// PreprocessOutcome is the use case's answer for a preprocessing request:
// the processed images plus the summary that was persisted.
type PreprocessOutcome struct {
	RequestID      string
	PersonImage    []byte
	GarmentImage   []byte
	Steps          pipeline.Steps
	Classification interface{}
	RemovalMethods map[string]string
	Warnings       []string
	DurationMs     int64
}

// TryOnOutcome extends a preprocessing outcome with the generated image.
type TryOnOutcome struct {
	RequestID  string
	ImageData  []byte
	MIMEType   string
	Text       string
	Composited bool
	Warnings   []string
	Preprocess *PreprocessOutcome
}

// NewTryOnUseCase constructs a new use case instance.
func NewTryOnUseCase(repo ProcessingRepository, cache Cache, orchestrator Orchestrator, generator generation.Client, compose Compositing, logger *zap.Logger) *TryOnUseCase {
	return &TryOnUseCase{
		repo:           repo,
		cache:          cache,
		orchestrator:   orchestrator,
		generator:      generator,
		compose:        compose,
		logger:         logger.Named("tryon_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Preprocess runs the pipeline for one person/garment pair, persists the
// outcome and caches a JSON summary keyed by the request ID. The processed
// images are returned but never stored.
func (uc *TryOnUseCase) Preprocess(ctx context.Context, userID string, req pipeline.Request) (string, *PreprocessOutcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.preprocess", requestID)

	cacheKey := fmt.Sprintf("tryon:%s", requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	started := time.Now()
	bundle, runErr := uc.orchestrator.Run(ctx, req)
	duration := time.Since(started).Milliseconds()

	log := &repository.ProcessingLog{
		RequestID:        requestID,
		UserID:           userID,
		GarmentType:      string(req.GarmentType),
		PersonBgRemoved:  bundle.Steps.PersonBackgroundRemoved,
		GarmentBgRemoved: bundle.Steps.GarmentBackgroundRemoved,
		GarmentSegmented: bundle.Steps.GarmentSegmented,
		DurationMs:       duration,
		Success:          bundle.Success,
		PersonSHA1:       hashBytes(req.PersonImage),
		GarmentSHA1:      hashBytes(req.GarmentImage),
		CreatedAt:        time.Now().UTC(),
	}
	log.PersonRemovalMethod = bundle.RemovalMethods["person"]
	log.GarmentRemovalMethod = bundle.RemovalMethods["garment"]
	if runErr != nil {
		log.Error = runErr.Error()
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist processing log", zap.Error(wrapped))
		return "", nil, wrapped
	}

	summary := cachedOutcome{
		RequestID:      requestID,
		UserID:         userID,
		GarmentType:    log.GarmentType,
		Steps:          bundle.Steps,
		RemovalMethods: bundle.RemovalMethods,
		Success:        bundle.Success,
		Error:          log.Error,
		DurationMs:     duration,
		PersonHash:     log.PersonSHA1,
		GarmentHash:    log.GarmentSHA1,
		CreatedAt:      log.CreatedAt,
	}
	if bundle.Trace != nil {
		summary.Warnings = bundle.Trace.Warnings
	}
	serialized, err := json.Marshal(summary)
	if err != nil {
		opLogger.Error("failed to serialize outcome summary", zap.Error(err))
		return "", nil, err
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), 0)
	}); err != nil {
		opLogger.Error("failed to cache outcome summary", zap.Error(err))
		return "", nil, err
	}

	if runErr != nil {
		return requestID, nil, runErr
	}
	outcome := &PreprocessOutcome{
		RequestID:      requestID,
		PersonImage:    bundle.PersonImage,
		GarmentImage:   bundle.GarmentImage,
		Steps:          bundle.Steps,
		Classification: bundle.Classification,
		RemovalMethods: bundle.RemovalMethods,
		Warnings:       summary.Warnings,
		DurationMs:     duration,
	}
	return requestID, outcome, nil
}

// TryOn runs preprocessing and, if the bundle verifies, forwards the
// processed pair to the generation service. Only verified bundles ever
// reach the collaborator. An optional backdrop name composites the
// generated image before it is returned; a compositing failure falls
// back to the uncomposited image with a warning.
func (uc *TryOnUseCase) TryOn(ctx context.Context, userID string, req pipeline.Request, instruction, backdrop string) (*TryOnOutcome, error) {
	requestID, preprocessed, err := uc.Preprocess(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.tryon", requestID)

	generated, err := uc.generator.Generate(ctx, preprocessed.PersonImage, preprocessed.GarmentImage, instruction)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.generate", requestID, err)
		opLogger.Error("generation failed", zap.Error(wrapped))
		return nil, wrapped
	}

	outcome := &TryOnOutcome{
		RequestID:  requestID,
		ImageData:  generated.ImageData,
		MIMEType:   generated.MIMEType,
		Text:       generated.Text,
		Preprocess: preprocessed,
	}
	if !generated.HasImage() {
		opLogger.Warn("generation returned text only", zap.String("text", generated.Text))
		return outcome, nil
	}

	if backdrop != "" {
		composited := uc.compose.Composite(ctx, generated.ImageData, backdrop)
		if composited == nil || !composited.Success {
			// Compositing is cosmetic; the generated image still answers
			// the request, so return it uncomposited with a warning.
			err := compositeErr(composited)
			opLogger.Warn("compositing failed, returning uncomposited image", zap.Error(err))
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("compositing onto %q failed: %v", backdrop, err))
			if composited != nil {
				outcome.Warnings = append(outcome.Warnings, composited.Warnings...)
			}
			return outcome, nil
		}
		outcome.ImageData = composited.Buffer
		outcome.MIMEType = "image/png"
		outcome.Composited = true
		outcome.Warnings = append(outcome.Warnings, composited.Warnings...)
	}
	return outcome, nil
}

// Composite places an already generated image onto a named backdrop
// without running the pipeline again.
func (uc *TryOnUseCase) Composite(ctx context.Context, foreground []byte, backdrop string) (*compositor.Result, error) {
	result := uc.compose.Composite(ctx, foreground, backdrop)
	if result == nil || !result.Success {
		return nil, compositeErr(result)
	}
	return result, nil
}

// GetResult retrieves a cached outcome summary or loads from persistence.
func (uc *TryOnUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.ProcessingLog, error) {
	cacheKey := fmt.Sprintf("tryon:%s", requestID)
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey); err == nil {
		var payload cachedOutcome
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.RequestID != "" {
			log := &repository.ProcessingLog{
				RequestID:        payload.RequestID,
				UserID:           userID,
				GarmentType:      payload.GarmentType,
				PersonBgRemoved:  payload.Steps.PersonBackgroundRemoved,
				GarmentBgRemoved: payload.Steps.GarmentBackgroundRemoved,
				GarmentSegmented: payload.Steps.GarmentSegmented,
				DurationMs:       payload.DurationMs,
				Success:          payload.Success,
				Error:            payload.Error,
				PersonSHA1:       payload.PersonHash,
				GarmentSHA1:      payload.GarmentHash,
				CreatedAt:        payload.CreatedAt,
			}
			if payload.UserID != "" {
				log.UserID = payload.UserID
			}
			log.PersonRemovalMethod = payload.RemovalMethods["person"]
			log.GarmentRemovalMethod = payload.RemovalMethods["garment"]
			return log, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (uc *TryOnUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *TryOnUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

func hashBytes(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func compositeErr(result *compositor.Result) error {
	if result == nil {
		return errors.New("compositor returned no result")
	}
	if result.Err != nil {
		return result.Err
	}
	return errors.New("compositing did not succeed")
}
