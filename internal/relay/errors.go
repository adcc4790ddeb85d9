package relay

import "errors"

// Domain-specific errors for bridge operations.
var (
	// ErrEmptyTopic is returned when an operation is given an empty topic.
	ErrEmptyTopic = errors.New("relay: topic cannot be empty")
)
