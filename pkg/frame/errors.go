package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed matches every *DecodeError via errors.Is.
	ErrMalformed = errors.New("malformed frame")
	ErrNilFrame  = errors.New("nil frame")
)

// DecodeError reports bytes that are not a valid frame.
type DecodeError struct {
	Offset int
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame: decode at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("frame: decode at offset %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformed) true for any decode failure.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}

func decodeErr(offset int, reason string, err error) *DecodeError {
	return &DecodeError{Offset: offset, Reason: reason, Err: err}
}
