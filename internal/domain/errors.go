package domain

import (
	"errors"
	"fmt"
)

// TransportError wraps a failed transport send. Rejected marks a permanent
// markup-parsing rejection; everything else is treated as transient and
// eligible for retry.
type TransportError struct {
	Rejected bool
	Err      error
}

func (e *TransportError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("transport rejected message: %v", e.Err)
	}
	return fmt.Sprintf("transport send failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportRejected reports whether err is a markup rejection by the
// transport, as opposed to a transient network failure.
func IsTransportRejected(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Rejected
}

// GenerationError wraps a failed generation-backend call.
type GenerationError struct {
	Model   string
	Timeout bool
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("generation timed out (model %s): %v", e.Model, e.Err)
	}
	return fmt.Sprintf("generation failed (model %s): %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
