package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	wrapped := fmt.Errorf("run failed: %w", &StoreUnavailableError{Op: "commit", Err: cause})

	var unavailable *StoreUnavailableError
	if !errors.As(wrapped, &unavailable) {
		t.Fatal("Expected StoreUnavailableError in chain")
	}
	if unavailable.Op != "commit" {
		t.Errorf("Expected op commit, got %s", unavailable.Op)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("Unwrap should reach the root cause")
	}
}

func TestSchemaParseErrorMessage(t *testing.T) {
	err := &SchemaParseError{Op: "synthesize", Raw: "not json", Err: errors.New("bad token")}
	if err.Error() == "" {
		t.Error("Error message should not be empty")
	}
	if !errors.Is(err, err.Err) {
		t.Error("Unwrap should expose the parse error")
	}
}
