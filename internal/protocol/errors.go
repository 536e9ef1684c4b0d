package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned for a frame that is not a JSON object
	// of the expected shape.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrFrameTooLarge is returned when a line exceeds the decoder's limit.
	// The stream cannot be resynchronized after it.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// RequestError reports a request field that failed validation.
type RequestError struct {
	// Field is the JSON name of the offending field.
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsRequestError reports whether err is (or wraps) a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
