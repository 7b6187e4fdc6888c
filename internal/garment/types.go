// Package garment holds the pure heuristics that decide whether an uploaded
// garment image can be used as-is: a classifier scoring how likely the image
// already contains a single isolated garment, and a segmenter that can fall
// back to a vertical band crop or mask.
package garment

import "fmt"

// Type is the declared classification of which body region a garment covers.
type Type string

const (
	TypeTop            Type = "top"
	TypeBottom         Type = "bottom"
	TypeFullBody       Type = "fullBody"
	TypeCompleteOutfit Type = "completeOutfit"
)

// ParseType validates a wire-level garment type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeTop, TypeBottom, TypeFullBody, TypeCompleteOutfit:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown garment type %q", s)
}
