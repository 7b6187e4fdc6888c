package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGenerateReturnsInlineImage(t *testing.T) {
	generated := []byte("png-bytes-from-service")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "tryon-1" {
			t.Errorf("expected model tryon-1, got %q", req.Model)
		}
		if len(req.Parts) != 3 {
			t.Fatalf("expected instruction plus two images, got %d parts", len(req.Parts))
		}
		if req.Parts[0].Text == "" {
			t.Error("expected first part to carry the instruction text")
		}
		for _, part := range req.Parts[1:] {
			if part.MIMEType != "image/png" || part.Data == "" {
				t.Errorf("expected inline png part, got %+v", part)
			}
		}
		json.NewEncoder(w).Encode(generateResponse{
			Image: &inlinePart{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(generated)},
		})
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "secret", "tryon-1", time.Second, zap.NewNop())
	result, err := client.Generate(context.Background(), []byte("person"), []byte("garment"), "wear it")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !result.HasImage() {
		t.Fatal("expected an inline image")
	}
	if string(result.ImageData) != string(generated) {
		t.Error("image bytes did not round-trip")
	}
	if result.MIMEType != "image/png" {
		t.Errorf("expected image/png, got %q", result.MIMEType)
	}
}

func TestGenerateTextOnlyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Text: "cannot render this garment"})
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "", "tryon-1", time.Second, nil)
	result, err := client.Generate(context.Background(), []byte("p"), []byte("g"), "wear it")
	if err != nil {
		t.Fatalf("text-only answers are not errors: %v", err)
	}
	if result.HasImage() {
		t.Error("expected no image")
	}
	if result.Text != "cannot render this garment" {
		t.Errorf("unexpected text %q", result.Text)
	}
}

func TestGenerateServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(generateResponse{Error: "rate limited"})
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "k", "m", time.Second, nil)
	_, err := client.Generate(context.Background(), []byte("p"), []byte("g"), "i")
	if err == nil {
		t.Fatal("expected an error for non-2xx status")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected service message in error, got %v", err)
	}
}

func TestGenerateEmptyResponseRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "k", "m", time.Second, nil)
	if _, err := client.Generate(context.Background(), []byte("p"), []byte("g"), "i"); err == nil {
		t.Fatal("expected an error when the service returns neither image nor text")
	}
}

func TestGenerateRequiresBothImages(t *testing.T) {
	client := NewRESTClient("http://unused", "k", "m", time.Second, nil)
	if _, err := client.Generate(context.Background(), nil, []byte("g"), "i"); err == nil {
		t.Fatal("expected an error for a missing person image")
	}
	if _, err := client.Generate(context.Background(), []byte("p"), nil, "i"); err == nil {
		t.Fatal("expected an error for a missing garment image")
	}
}

func TestGenerateUnconfigured(t *testing.T) {
	client := NewRESTClient("", "", "", time.Second, nil)
	if _, err := client.Generate(context.Background(), []byte("p"), []byte("g"), "i"); err == nil {
		t.Fatal("expected an error when no base URL is configured")
	}
}
