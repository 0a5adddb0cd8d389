// Package ai defines the seam between the pipeline and a language model.
package ai

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single prompt round trip.
const DefaultTimeout = 2 * time.Minute

// Connector sends a prompt to a language model and returns its full answer.
type Connector interface {
	Prompt(ctx context.Context, prompt string) (string, error)
	IsAvailable(ctx context.Context) bool
}
