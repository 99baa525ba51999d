// Package storage persists index nodes and whole index directories.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/rulebook/internal/models"
)

// ErrNotFound is returned when a document or node does not exist.
var ErrNotFound = errors.New("not found")

// NodeStore defines document and node persistence operations.
type NodeStore interface {
	InsertDocuments(ctx context.Context, docs []*models.Document) error
	InsertNodes(ctx context.Context, nodes []*models.Node) error
	GetNode(ctx context.Context, id string) (*models.Node, error)
	ListNodes(ctx context.Context) ([]*models.Node, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountNodes(ctx context.Context) (int64, error)
	Close() error
}
