package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultGenerateTimeout = 60 * time.Second

// RESTClient calls the generation service's HTTP API with inline base64
// image parts. The official SDKs for these services cannot return inline
// image bytes, so the REST surface is used directly.
type RESTClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRESTClient builds a client for the generation endpoint. A zero
// timeout falls back to a generous default since image generation is slow.
func NewRESTClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *RESTClient {
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type inlinePart struct {
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
	Text     string `json:"text,omitempty"`
}

type generateRequest struct {
	Model string       `json:"model"`
	Parts []inlinePart `json:"parts"`
}

type generateResponse struct {
	Image *inlinePart `json:"image,omitempty"`
	Text  string      `json:"text,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Generate submits both processed images and the instruction text,
// returning the inline image the service produced. A response carrying
// only text is returned as a text Result rather than an error; callers
// decide whether that is acceptable.
func (c *RESTClient) Generate(ctx context.Context, person, garment []byte, instruction string) (*Result, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("generation service not configured")
	}
	if len(person) == 0 || len(garment) == 0 {
		return nil, fmt.Errorf("generation requires both person and garment images")
	}

	payload := generateRequest{
		Model: c.model,
		Parts: []inlinePart{
			{Text: instruction},
			{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(person)},
			{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(garment)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("generation service returned unparseable response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("generation service error (status %d): %s", resp.StatusCode, msg)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("generation service error: %s", decoded.Error)
	}

	result := &Result{Text: decoded.Text}
	if decoded.Image != nil && decoded.Image.Data != "" {
		data, err := base64.StdEncoding.DecodeString(decoded.Image.Data)
		if err != nil {
			return nil, fmt.Errorf("decode generated image: %w", err)
		}
		result.ImageData = data
		result.MIMEType = decoded.Image.MIMEType
		if result.MIMEType == "" {
			result.MIMEType = "image/png"
		}
	}
	if !result.HasImage() && result.Text == "" {
		return nil, fmt.Errorf("generation service returned neither image nor text")
	}
	c.logger.Debug("generation completed",
		zap.Bool("has_image", result.HasImage()),
		zap.Int("image_bytes", len(result.ImageData)))
	return result, nil
}
