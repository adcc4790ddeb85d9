package service

import "errors"

var (
	// ErrEmptyTopic is returned when a mutation is given an empty topic.
	ErrEmptyTopic = errors.New("service: topic cannot be empty")
)
