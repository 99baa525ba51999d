package indexer

import (
	"errors"

	"github.com/hyperjump/rulebook/internal/models"
)

var (
	// ErrPersist wraps failures to write the built index to disk.
	ErrPersist = errors.New("persist index")
	// ErrUnknownIndexKind is returned for an index kind with no build mode.
	ErrUnknownIndexKind = models.ErrUnknownIndexKind
)
