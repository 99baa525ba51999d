package service

import "errors"

var (
	// ErrEngineNotReady is returned when no engine is loaded for the requested index kind.
	ErrEngineNotReady = errors.New("query engine is not ready; build or load the index first")
	// ErrInvalidFilename is returned for upload names that are empty or not a plain file name.
	ErrInvalidFilename = errors.New("invalid filename")
)
