package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"newsloom/internal/core"
)

// Disabled is a Completer for runs without an API key. Every call fails
// with a transient error, so extraction degrades to empty entity sets and
// synthesis degrades to the fallback composer.
type Disabled struct{}

// NewDisabled returns the no-model completer.
func NewDisabled() Disabled {
	return Disabled{}
}

// ModelName identifies the disabled client in logs.
func (Disabled) ModelName() string {
	return "disabled"
}

// Complete always fails.
func (Disabled) Complete(ctx context.Context, prompt string, schema *genai.Schema, timeout time.Duration) (string, error) {
	return "", &core.TransientGenerationError{Op: "complete", Err: fmt.Errorf("no generation model configured")}
}
