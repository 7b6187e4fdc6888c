// Package generation is the client boundary to the external try-on
// generation service: two processed images plus a text instruction in, an
// inline generated image (or a text refusal) out. The service itself is a
// collaborator; only verified pipeline bundles may ever be sent to it.
package generation

import "context"

// Result holds the generation service's answer. Exactly one of ImageData
// and Text is normally set; a text-only answer means the service declined
// to produce an image.
type Result struct {
	ImageData []byte
	MIMEType  string
	Text      string
}

// HasImage reports whether the service produced an inline image.
func (r *Result) HasImage() bool {
	return r != nil && len(r.ImageData) > 0
}

// Client exposes the subset of the generation service used by the try-on flow.
type Client interface {
	Generate(ctx context.Context, person, garment []byte, instruction string) (*Result, error)
}
