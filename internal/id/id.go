package id

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultLength gives roughly 126 bits of entropy with the URL-safe alphabet,
	// enough for handles that are not enumerable.
	DefaultLength = 21
	minLength     = 12
)

// Generator produces unique, URL-safe identifiers.
type Generator struct {
	length int
}

// New returns a Generator with the provided length. Lengths below the minimum
// are raised to DefaultLength.
func New(length int) *Generator {
	if length < minLength {
		length = DefaultLength
	}
	return &Generator{length: length}
}

// Length reports the number of characters in generated ids.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new identifier.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return gonanoid.New(g.length)
}
