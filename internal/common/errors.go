package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline error so the retry policy can decide
// what to do with it without inspecting provider-specific details.
type ErrorKind string

const (
	// KindTransient covers network failures, rate limits, 5xx responses
	// and timeouts. Retryable within the attempt budget.
	KindTransient ErrorKind = "TRANSIENT"
	// KindPermanent covers bad input, policy rejections and model/
	// dimension mismatches. Never retried.
	KindPermanent ErrorKind = "PERMANENT"
	// KindImageDecode means the source bytes are not a readable image.
	KindImageDecode ErrorKind = "IMAGE_DECODE"
	// KindImageTooLarge means the prepared image cannot meet the byte
	// budget even at the quality floor.
	KindImageTooLarge ErrorKind = "IMAGE_TOO_LARGE"
	// KindStorage covers database failures. Retryable, but on its own
	// budget distinct from the API budget.
	KindStorage ErrorKind = "STORAGE"
	// KindSchemaValidation means the model returned JSON that does not
	// match the response schema. Distinct from transport errors.
	KindSchemaValidation ErrorKind = "SCHEMA_VALIDATION"
)

// ProcessingError carries an ErrorKind through the pipeline.
type ProcessingError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError builds a classified error.
func NewProcessingError(kind ErrorKind, message string, cause error) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: message, Cause: cause}
}

func Transientf(cause error, format string, args ...any) *ProcessingError {
	return NewProcessingError(KindTransient, fmt.Sprintf(format, args...), cause)
}

func Permanentf(cause error, format string, args ...any) *ProcessingError {
	return NewProcessingError(KindPermanent, fmt.Sprintf(format, args...), cause)
}

// KindOf extracts the ErrorKind from err. Unclassified errors are
// treated as permanent: retrying an unknown failure hides bugs.
func KindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindPermanent
}

// IsRetryable reports whether err may be retried at all.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindStorage:
		return true
	default:
		return false
	}
}

// Common sentinel errors for request handling.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// WrapError annotates err with message, preserving nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
