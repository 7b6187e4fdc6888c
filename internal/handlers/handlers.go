package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/fitroom/internal/auth"
	"github.com/example/fitroom/internal/compositor"
	"github.com/example/fitroom/internal/garment"
	"github.com/example/fitroom/internal/pipeline"
	"github.com/example/fitroom/internal/raster"
	"github.com/example/fitroom/internal/removal"
	"github.com/example/fitroom/internal/usecase"
)

// MaxUploadSize bounds a single uploaded image file.
const MaxUploadSize = 10 << 20

// RegisterRoutes wires the HTTP handlers to the Gin router. The auth
// middleware guards everything under /api/v1; health stays public.
func RegisterRoutes(router *gin.Engine, uc *usecase.TryOnUseCase, store *compositor.Store, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", authMiddleware)

	api.POST("/preprocess", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}
		req, ok := bindPipelineRequest(c)
		if !ok {
			return
		}

		requestID, outcome, err := uc.Preprocess(c.Request.Context(), userID, req)
		if err != nil {
			status, message := mapPipelineError(err)
			c.JSON(status, gin.H{"error": message, "request_id": requestID})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":      requestID,
			"steps":           outcome.Steps,
			"classification":  outcome.Classification,
			"removal_methods": outcome.RemovalMethods,
			"warnings":        outcome.Warnings,
			"duration_ms":     outcome.DurationMs,
			"person_image":    base64.StdEncoding.EncodeToString(outcome.PersonImage),
			"garment_image":   base64.StdEncoding.EncodeToString(outcome.GarmentImage),
		})
	})

	api.POST("/tryon", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}
		req, ok := bindPipelineRequest(c)
		if !ok {
			return
		}
		instruction := c.PostForm("instruction")
		if instruction == "" {
			instruction = "Dress the person in the provided garment."
		}
		backdrop := c.PostForm("backdrop")

		outcome, err := uc.TryOn(c.Request.Context(), userID, req, instruction, backdrop)
		if err != nil {
			status, message := mapPipelineError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}
		if len(outcome.ImageData) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"request_id": outcome.RequestID,
				"text":       outcome.Text,
			})
			return
		}
		c.Header("X-Request-Id", outcome.RequestID)
		c.Data(http.StatusOK, outcome.MIMEType, outcome.ImageData)
	})

	api.POST("/composite", func(c *gin.Context) {
		data, ok := readImageFile(c, "image")
		if !ok {
			return
		}
		backdrop := c.PostForm("backdrop")

		result, err := uc.Composite(c.Request.Context(), data, backdrop)
		if err != nil {
			status, message := mapPipelineError(err)
			c.JSON(status, gin.H{"error": message})
			return
		}
		c.Data(http.StatusOK, "image/png", result.Buffer)
	})

	api.GET("/result/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := uc.GetResult(c.Request.Context(), userID, requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":             log.RequestID,
			"user_id":                log.UserID,
			"garment_type":           log.GarmentType,
			"person_bg_removed":      log.PersonBgRemoved,
			"garment_bg_removed":     log.GarmentBgRemoved,
			"garment_segmented":      log.GarmentSegmented,
			"person_removal_method":  log.PersonRemovalMethod,
			"garment_removal_method": log.GarmentRemovalMethod,
			"duration_ms":            log.DurationMs,
			"success":                log.Success,
			"error":                  log.Error,
			"created_at":             log.CreatedAt,
		})
	})

	api.GET("/metrics", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.GET("/backdrops", func(c *gin.Context) {
		names := store.Names()
		entries := make([]gin.H, 0, len(names))
		for _, name := range names {
			entry := gin.H{"name": name}
			if b, ok := store.Get(name); ok && len(b.Preview) > 0 {
				entry["preview"] = base64.StdEncoding.EncodeToString(b.Preview)
			}
			entries = append(entries, entry)
		}
		c.JSON(http.StatusOK, gin.H{"backdrops": entries})
	})
}

// bindPipelineRequest reads both image files and the processing flags from
// the multipart form. On a validation failure it writes the error response
// and reports false.
func bindPipelineRequest(c *gin.Context) (pipeline.Request, bool) {
	var req pipeline.Request

	person, ok := readImageFile(c, "person")
	if !ok {
		return req, false
	}
	garmentData, ok := readImageFile(c, "garment")
	if !ok {
		return req, false
	}

	garmentType, err := garment.ParseType(c.DefaultPostForm("garment_type", string(garment.TypeTop)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}

	req.PersonImage = person
	req.GarmentImage = garmentData
	req.GarmentType = garmentType
	req.RemovePersonBackground = formBool(c, "remove_person_background", true)
	req.RemoveGarmentBackground = formBool(c, "remove_garment_background", true)
	req.SegmentGarment = formBool(c, "segment_garment", true)
	req.SegmentMode = garment.Mode(c.PostForm("segment_mode"))
	req.Debug = formBool(c, "debug", false)
	return req, true
}

// readImageFile extracts one uploaded file, enforcing the size limit and
// that the declared content type is an image.
func readImageFile(c *gin.Context, field string) ([]byte, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
		return nil, false
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds upload limit"})
		return nil, false
	}
	if contentType := file.Header.Get("Content-Type"); contentType != "" && !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": field + " must be an image"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open " + field})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read " + field})
		return nil, false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds upload limit"})
		return nil, false
	}
	return data, true
}

func formBool(c *gin.Context, field string, fallback bool) bool {
	raw := c.PostForm(field)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

// mapPipelineError translates internal failures into HTTP semantics:
// malformed uploads are the client's fault, a failed verification gate is
// unprocessable, and an exhausted removal chain is an upstream failure.
func mapPipelineError(err error) (int, string) {
	var decodeErr *raster.DecodeError
	if errors.As(err, &decodeErr) {
		return http.StatusBadRequest, decodeErr.Error()
	}
	var verr *pipeline.VerificationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, verr.Error()
	}
	if errors.Is(err, removal.ErrFallbackExhausted) {
		return http.StatusBadGateway, "background removal unavailable"
	}
	var cerr *compositor.CompositingError
	if errors.As(err, &cerr) {
		return http.StatusUnprocessableEntity, cerr.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
