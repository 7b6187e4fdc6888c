package compositor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/example/fitroom/internal/raster"
	"github.com/example/fitroom/internal/removal"
)

type stubRemover struct {
	result *removal.Result
	err    error
	calls  int
}

func (s *stubRemover) Remove(ctx context.Context, img *image.NRGBA) (*removal.Result, error) {
	s.calls++
	return s.result, s.err
}

func emptyStore(t *testing.T) *Store {
	t.Helper()
	store, err := LoadStore(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return store
}

func storeWithTemplate(t *testing.T, name string, img *image.NRGBA) *Store {
	t.Helper()
	dir := t.TempDir()
	data, err := raster.EncodePNG(img)
	if err != nil {
		t.Fatalf("encode template: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".png"), data, 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	store, err := LoadStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return store
}

func opaqueStudioShot(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 250, G: 250, B: 250, A: 255}
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				c = color.NRGBA{R: 180, G: 20, B: 20, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func transparentForeground(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 30, B: 200, A: 255})
		}
	}
	return img
}

func TestCompositeOpaqueInputTriggersSecondaryRemoval(t *testing.T) {
	// A fully opaque generated result against the "studio" backdrop:
	// the compositor must re-isolate the subject, and the output border
	// must differ from the raw opaque input where the backdrop shows.
	raw := opaqueStudioShot(500, 500)
	rawBytes, err := raster.EncodePNG(raw)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	blue := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			blue.SetNRGBA(x, y, color.NRGBA{R: 10, G: 10, B: 120, A: 255})
		}
	}
	store := storeWithTemplate(t, "studio", blue)

	remover := removal.NewCoordinator(zap.NewNop(), removal.NewLocalRemover())
	c := NewCompositor(remover, store, zap.NewNop())

	result := c.Composite(context.Background(), rawBytes, "studio")
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}

	out, err := raster.Decode(result.Buffer)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.NRGBAAt(5, 5) == raw.NRGBAAt(5, 5) {
		t.Fatal("border must show the backdrop, not the original white background")
	}
	if out.NRGBAAt(250, 250).R != 180 {
		t.Fatalf("subject center must survive, got %+v", out.NRGBAAt(250, 250))
	}
}

func TestCompositeTransparentInputSkipsRemoval(t *testing.T) {
	fg, err := raster.EncodePNG(transparentForeground(100, 100))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	remover := &stubRemover{}
	c := NewCompositor(remover, emptyStore(t), zap.NewNop())

	result := c.Composite(context.Background(), fg, FlatFill)
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if remover.calls != 0 {
		t.Fatalf("transparent foreground must not trigger removal, saw %d calls", remover.calls)
	}

	out, err := raster.Decode(result.Buffer)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got := out.NRGBAAt(2, 2); got != flatFillColor {
		t.Fatalf("expected flat fill at the border, got %+v", got)
	}
	if got := out.NRGBAAt(50, 50); got.B != 200 {
		t.Fatalf("foreground must draw on top, got %+v", got)
	}
}

func TestCompositeUnknownBackdropDegradesToFlatFill(t *testing.T) {
	fg, err := raster.EncodePNG(transparentForeground(60, 60))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	c := NewCompositor(&stubRemover{}, emptyStore(t), zap.NewNop())

	result := c.Composite(context.Background(), fg, "fitting-room")
	if !result.Success {
		t.Fatalf("expected degraded success, got %v", result.Err)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("degradation must be surfaced as a warning")
	}
}

func TestCompositeCoverFitMatchesForegroundCanvas(t *testing.T) {
	// Wide template, tall foreground: cover-fit must fill the whole
	// canvas with template pixels (no fill color visible).
	template := image.NewNRGBA(image.Rect(0, 0, 400, 100))
	for i := 0; i < len(template.Pix); i += 4 {
		template.Pix[i] = 10
		template.Pix[i+1] = 200
		template.Pix[i+2] = 10
		template.Pix[i+3] = 255
	}
	store := storeWithTemplate(t, "studio", template)

	fg, err := raster.EncodePNG(transparentForeground(100, 300))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	c := NewCompositor(&stubRemover{}, store, zap.NewNop())

	result := c.Composite(context.Background(), fg, "studio")
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}
	out, err := raster.Decode(result.Buffer)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 300 {
		t.Fatalf("output canvas must match the foreground, got %v", out.Bounds())
	}
	corner := out.NRGBAAt(1, 1)
	if corner.G < 150 {
		t.Fatalf("cover-fit backdrop must reach the corners, got %+v", corner)
	}
}

func TestCompositeFailsOnUndecodableForeground(t *testing.T) {
	c := NewCompositor(&stubRemover{}, emptyStore(t), zap.NewNop())
	result := c.Composite(context.Background(), []byte("junk"), FlatFill)
	if result.Success {
		t.Fatal("expected failure")
	}
	var compErr *CompositingError
	if !errors.As(result.Err, &compErr) {
		t.Fatalf("expected CompositingError, got %T", result.Err)
	}
}

func TestCompositeFailsWhenSecondaryRemovalExhausted(t *testing.T) {
	raw, err := raster.EncodePNG(opaqueStudioShot(50, 50))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	remover := &stubRemover{
		result: &removal.Result{Success: false, Warnings: []string{"remote: quota exceeded"}},
		err:    removal.ErrFallbackExhausted,
	}
	c := NewCompositor(remover, emptyStore(t), zap.NewNop())

	result := c.Composite(context.Background(), raw, FlatFill)
	if result.Success {
		t.Fatal("expected failure when the subject cannot be isolated")
	}
	var compErr *CompositingError
	if !errors.As(result.Err, &compErr) {
		t.Fatalf("expected CompositingError, got %T", result.Err)
	}
	// The opaque-foreground note and the removal chain's own warnings
	// must survive on the failed result.
	if len(result.Warnings) < 2 {
		t.Fatalf("expected accumulated warnings on the failed result, got %v", result.Warnings)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "remote: quota exceeded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the removal warning to be preserved, got %v", result.Warnings)
	}
}

func TestStoreNamesIncludeFlatFillFirst(t *testing.T) {
	store := storeWithTemplate(t, "studio", transparentForeground(10, 10))
	names := store.Names()
	if len(names) != 2 || names[0] != FlatFill || names[1] != "studio" {
		t.Fatalf("unexpected names: %v", names)
	}
	backdrop, ok := store.Get("studio")
	if !ok {
		t.Fatal("template must be retrievable")
	}
	if len(backdrop.Preview) == 0 {
		t.Fatal("template must carry a preview thumbnail")
	}
}
