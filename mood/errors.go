package mood

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned before any stage runs when the text is blank.
	ErrEmptyInput = errors.New("missing input")

	// ErrUpstream marks failures that leave the caller without a usable reply.
	// Callers fall back to ClassifyLocal when they see it.
	ErrUpstream = errors.New("AI request failed")

	// ErrStreamStarted marks a generation failure after fragments were delivered.
	ErrStreamStarted = errors.New("stream already started")

	// ErrEmptyReply is returned when a stream ends without any content.
	ErrEmptyReply = errors.New("empty reply")

	ErrMetaAlreadySent  = errors.New("meta event already sent")
	ErrContentAfterMeta = errors.New("content event after meta")
)

// HTTPError is a non-2xx answer from the analysis service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis service: status %d", e.StatusCode)
	}
	return fmt.Sprintf("analysis service: status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error { return ErrUpstream }
