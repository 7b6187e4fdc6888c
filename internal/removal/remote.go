package removal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/example/fitroom/internal/raster"
)

const defaultRemoteTimeout = 30 * time.Second

// RemoteRemover uploads the image to an external removal service and expects
// an alpha-preserving raster back. Any failure (network, auth, quota, or a
// response that cannot be decoded) surfaces as a *ServiceError so the
// coordinator can fall back locally.
type RemoteRemover struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewRemoteRemover builds a client for the removal service. An empty
// endpoint or API key is reported at call time as a missing-credentials
// failure rather than at construction, so the fallback chain stays uniform.
func NewRemoteRemover(endpoint, apiKey string, timeout time.Duration) *RemoteRemover {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemoteRemover{
		endpoint:   endpoint,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Name identifies the strategy in diagnostics.
func (r *RemoteRemover) Name() string {
	return "remote"
}

// Remove sends the buffer to the remote service. The call carries an
// explicit deadline; hitting it is indistinguishable from any other remote
// failure. Success payloads in a non-alpha encoding are re-encoded to PNG
// before being accepted.
func (r *RemoteRemover) Remove(ctx context.Context, img *image.NRGBA) (*StrategyResult, error) {
	if r.endpoint == "" {
		return nil, &ServiceError{Message: "endpoint not configured"}
	}
	if r.apiKey == "" {
		return nil, &ServiceError{Message: "missing credentials"}
	}

	payload, err := raster.EncodePNG(img)
	if err != nil {
		return nil, &ServiceError{Message: "encode upload", Err: err}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, &ServiceError{Message: "build multipart form", Err: err}
	}
	if _, err := part.Write(payload); err != nil {
		return nil, &ServiceError{Message: "write multipart form", Err: err}
	}
	_ = writer.WriteField("format", "png")
	_ = writer.Close()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return nil, &ServiceError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Api-Key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: remoteErrorMessage(data)}
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: remoteErrorMessage(data)}
	}

	buf, format, err := raster.DecodeWithFormat(data)
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "undecodable response", Err: err}
	}

	var warnings []string
	if format != "png" {
		// The service answered in a format that cannot carry alpha.
		// Round-trip through PNG so transparency capability is never
		// silently lost downstream.
		reencoded, err := raster.EncodePNG(buf)
		if err != nil {
			return nil, &ServiceError{Message: "re-encode response", Err: err}
		}
		if buf, err = raster.Decode(reencoded); err != nil {
			return nil, &ServiceError{Message: "re-decode response", Err: err}
		}
		warnings = append(warnings, fmt.Sprintf("remote returned %s, re-encoded to png", format))
	}

	return &StrategyResult{Buffer: buf, Warnings: warnings}, nil
}

// remoteErrorMessage extracts the service's {"error": ...} payload when
// present, falling back to a trimmed copy of the raw body.
func remoteErrorMessage(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "unexpected response"
	}
	return msg
}
