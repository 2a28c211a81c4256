// Package llm defines the provider-agnostic surface the application needs
// from a generative AI backend: one vision call that reads an image and one
// text call that takes a system instruction and a prompt. Implementations
// live in subpackages (see gemini).
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the provider answered without any usable
// text candidate, typically after safety filtering.
var ErrEmptyResponse = errors.New("llm: empty response from provider")

// Client is the generative AI surface used by the extraction and analysis
// services.
type Client interface {
	// GenerateVision sends the instruction together with one inline image
	// and returns the model's text reply.
	GenerateVision(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)

	// GenerateText sends a system instruction and a user prompt and returns
	// the model's text reply.
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}
