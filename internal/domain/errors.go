package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput      = errors.New("message text is empty")
	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrSessionNotFound = errors.New("session not found")
)

// InvalidPhaseError reports a step value outside the known phases.
type InvalidPhaseError struct {
	Value int
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("invalid phase value %d", e.Value)
}

// ProviderError wraps a network or provider-side failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedResponseError reports provider text that is not the expected JSON object.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed completion response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// DiagramSyntaxError is a validation failure of diagram source. Its message
// is shown to the user as is.
type DiagramSyntaxError struct {
	Message   string
	RawSource string
}

func (e *DiagramSyntaxError) Error() string {
	return "diagram syntax error: " + e.Message
}
