package insight

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a generation ended in failure.
type ErrorKind string

const (
	// ErrKindHTTP indicates a non-2xx initial response.
	ErrKindHTTP ErrorKind = "http"

	// ErrKindProducer indicates an explicit error frame from the server.
	ErrKindProducer ErrorKind = "producer"

	// ErrKindStream indicates the request or body could not be read.
	ErrKindStream ErrorKind = "stream"

	// ErrKindCanceled indicates the request was superseded or its context ended.
	ErrKindCanceled ErrorKind = "canceled"
)

// User-facing fallback messages.
const (
	MsgRequestFailed = "Failed to generate insights. Please try again."
	MsgStreamFailed  = "An error occurred while generating insights."
	MsgCanceled      = "Insight generation was canceled."
)

// ErrSuperseded is the cause attached when a newer Generate call replaced this one.
var ErrSuperseded = errors.New("superseded by a newer request")

// Error is the terminal error of a generation. Message is what the user sees.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int   // Only for ErrKindHTTP
	Cause      error // Underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("insight %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("insight %s error: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("insight %s error: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var insightErr *Error
	return errors.As(err, &insightErr) && insightErr.Kind == kind
}
