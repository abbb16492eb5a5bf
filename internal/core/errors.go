package core

import "fmt"

// TransientGenerationError marks a timeout or transport failure talking to
// the text-generation service. Callers get one bounded repair attempt and
// then fall back; the run itself is never aborted by one of these.
type TransientGenerationError struct {
	Op  string // operation that failed, e.g. "synthesize", "extract-entities"
	Err error
}

func (e *TransientGenerationError) Error() string {
	return fmt.Sprintf("transient generation failure during %s: %v", e.Op, e.Err)
}

func (e *TransientGenerationError) Unwrap() error { return e.Err }

// SchemaParseError marks structured model output that did not match the
// requested schema. One repair pass is attempted before falling back.
type SchemaParseError struct {
	Op  string
	Raw string // offending raw output, truncated for logs
	Err error
}

func (e *SchemaParseError) Error() string {
	return fmt.Sprintf("schema parse failure during %s: %v", e.Op, e.Err)
}

func (e *SchemaParseError) Unwrap() error { return e.Err }

// StoreUnavailableError is fatal to a run: the persisting stage aborts with
// no partial commits and the run reports Failed.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("story store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }
