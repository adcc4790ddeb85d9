package delivery

import "errors"

var (
	// ErrStreamClosed is returned by Next after the stream is cancelled.
	// It marks an expected terminal condition, not a failure.
	ErrStreamClosed = errors.New("delivery: stream closed")
)
