package compositor

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/example/fitroom/internal/raster"
)

// FlatFill is the reserved backdrop name for a solid-color fill. It needs
// no template asset and is the degradation target when a named template is
// missing.
const FlatFill = "flat-fill"

// previewMaxSize bounds the longest side of generated preview thumbnails.
const previewMaxSize = 160

// Backdrop is one named template plus its preview thumbnail.
type Backdrop struct {
	Name    string
	Image   *image.NRGBA
	Preview []byte
}

// Store holds the static backdrop templates. Loaded once at boot and only
// read afterwards, it is safe to share across requests.
type Store struct {
	backdrops map[string]*Backdrop
	logger    *zap.Logger
}

// LoadStore reads every decodable raster file in dir as a template named
// after its base filename ("studio.png" becomes "studio") and renders a
// preview thumbnail for each. A missing or empty directory is not an
// error; the store then only offers the flat fill.
func LoadStore(dir string, logger *zap.Logger) (*Store, error) {
	store := &Store{
		backdrops: map[string]*Backdrop{},
		logger:    logger.Named("backdrops"),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			store.logger.Warn("backdrop directory missing, only flat-fill available", zap.String("dir", dir))
			return store, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if name == "" || name == FlatFill {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			store.logger.Warn("skipping unreadable backdrop", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		img, err := raster.Decode(data)
		if err != nil {
			store.logger.Warn("skipping undecodable backdrop", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		preview, err := renderPreview(img)
		if err != nil {
			store.logger.Warn("preview rendering failed", zap.String("file", entry.Name()), zap.Error(err))
		}
		store.backdrops[name] = &Backdrop{Name: name, Image: img, Preview: preview}
	}

	store.logger.Info("backdrop templates loaded", zap.Int("count", len(store.backdrops)))
	return store, nil
}

// Get returns the named template. The flat fill and unknown names return
// (nil, false); the compositor degrades those to a solid fill.
func (s *Store) Get(name string) (*Backdrop, bool) {
	b, ok := s.backdrops[name]
	return b, ok
}

// Names lists every available backdrop, flat fill first, templates sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.backdrops)+1)
	for name := range s.backdrops {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{FlatFill}, names...)
}

func renderPreview(img *image.NRGBA) ([]byte, error) {
	thumb := resize.Thumbnail(previewMaxSize, previewMaxSize, img, resize.Lanczos3)
	return raster.EncodePNG(thumb)
}
