package removal

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/fitroom/internal/raster"
)

func transparentPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 0})
	data, err := raster.EncodePNG(img)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return data
}

func TestRemoteRemoverAcceptsRasterResponse(t *testing.T) {
	payload := transparentPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, _, err := r.FormFile("image"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	remover := NewRemoteRemover(server.URL, "key", time.Second)
	result, err := remover.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.Buffer.NRGBAAt(0, 0).A != 0 {
		t.Fatal("alpha from the service response was lost")
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("png response should not warn, got %v", result.Warnings)
	}
}

func TestRemoteRemoverReencodesNonAlphaFormat(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	jpegData, err := raster.EncodeJPEG(img, 90)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegData)
	}))
	defer server.Close()

	remover := NewRemoteRemover(server.URL, "key", time.Second)
	result, err := remover.Remove(context.Background(), img)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected a re-encode warning, got %v", result.Warnings)
	}
}

func TestRemoteRemoverMapsJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": "monthly quota exceeded"}`))
	}))
	defer server.Close()

	remover := NewRemoteRemover(server.URL, "key", time.Second)
	_, err := remover.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if svcErr.Message != "monthly quota exceeded" {
		t.Fatalf("unexpected message: %s", svcErr.Message)
	}
	if svcErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("unexpected status: %d", svcErr.StatusCode)
	}
}

func TestRemoteRemoverRejectsJSONBodyOnSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "model warming up"}`))
	}))
	defer server.Close()

	remover := NewRemoteRemover(server.URL, "key", time.Second)
	_, err := remover.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
}

func TestRemoteRemoverReportsMissingCredentials(t *testing.T) {
	remover := NewRemoteRemover("http://removal.invalid", "", time.Second)
	_, err := remover.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if svcErr.Message != "missing credentials" {
		t.Fatalf("unexpected message: %s", svcErr.Message)
	}
}

func TestRemoteRemoverTimesOut(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	remover := NewRemoteRemover(server.URL, "key", 50*time.Millisecond)
	_, err := remover.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError on timeout, got %T", err)
	}
}
