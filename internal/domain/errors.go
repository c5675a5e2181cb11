package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedInput marks requests rejected before any state changes:
	// unknown file types, dimension mismatches, malformed arguments.
	ErrUnsupportedInput = errors.New("unsupported input")
	// ErrProviderFailure marks a failed embedding or completion call.
	ErrProviderFailure = errors.New("provider failure")
	// ErrIndexCorruption marks a persisted index whose artifacts disagree or
	// cannot be read.
	ErrIndexCorruption = errors.New("index corruption")
	// ErrNotFound marks a missing catalog record.
	ErrNotFound = errors.New("not found")
)

// ProviderError wraps a failure of an external embedding or completion
// provider. It matches ErrProviderFailure with errors.Is.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }

// WrapProvider returns err as a *ProviderError unless it already is one.
func WrapProvider(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
