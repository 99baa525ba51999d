package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/rulebook/internal/models"
)

// SQLiteStorage implements NodeStore using SQLite. Document text is not stored;
// nodes carry the text that retrieval returns.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		path TEXT,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		tier INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		parent_id TEXT,
		prev_id TEXT,
		next_id TEXT,
		metadata TEXT,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_document_id ON nodes(document_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent_id ON nodes(parent_id);

	CREATE TABLE IF NOT EXISTS node_children (
		parent_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (parent_id, position)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// InsertDocuments stores document descriptors in a transaction.
func (s *SQLiteStorage) InsertDocuments(ctx context.Context, docs []*models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, filename, path, metadata) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Filename, doc.Path, string(metadataJSON)); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// InsertNodes stores nodes and their child links in a transaction. Insertion order is kept.
func (s *SQLiteStorage) InsertNodes(ctx context.Context, nodes []*models.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var base int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM nodes`).Scan(&base); err != nil {
		return err
	}

	nodeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (id, document_id, text, tier, chunk_index, parent_id, prev_id, next_id, metadata, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()

	childStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO node_children (parent_id, child_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer childStmt.Close()

	for i, n := range nodes {
		metadataJSON, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := nodeStmt.ExecContext(ctx,
			n.ID, n.DocumentID, n.Text, n.Tier, n.ChunkIndex,
			nullable(n.ParentID), nullable(n.PrevID), nullable(n.NextID),
			string(metadataJSON), base+int64(i),
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
		for pos, child := range n.ChildIDs {
			if _, err := childStmt.ExecContext(ctx, n.ID, child, pos); err != nil {
				return fmt.Errorf("insert child link %s: %w", n.ID, err)
			}
		}
	}
	return tx.Commit()
}

const nodeColumns = `id, document_id, text, tier, chunk_index, parent_id, prev_id, next_id, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		n                        models.Node
		parent, prev, next, meta sql.NullString
	)
	if err := row.Scan(&n.ID, &n.DocumentID, &n.Text, &n.Tier, &n.ChunkIndex, &parent, &prev, &next, &meta); err != nil {
		return nil, err
	}
	n.ParentID, n.PrevID, n.NextID = parent.String, prev.String, next.String
	if meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for node %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

// GetNode returns a node with its child links.
func (s *SQLiteStorage) GetNode(ctx context.Context, id string) (*models.Node, error) {
	n, err := scanNode(s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT child_id FROM node_children WHERE parent_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		n.ChildIDs = append(n.ChildIDs, child)
	}
	return n, rows.Err()
}

// ListNodes returns every node in insertion order, with child links.
func (s *SQLiteStorage) ListNodes(ctx context.Context) ([]*models.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*models.Node
	byID := make(map[string]*models.Node)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
		byID[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := s.db.QueryContext(ctx,
		`SELECT parent_id, child_id FROM node_children ORDER BY parent_id, position`)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var parent, child string
		if err := links.Scan(&parent, &child); err != nil {
			return nil, err
		}
		if n, ok := byID[parent]; ok {
			n.ChildIDs = append(n.ChildIDs, child)
		}
	}
	return nodes, links.Err()
}

// ListDocuments returns the stored document descriptors ordered by filename. Text is empty.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, path, metadata FROM documents ORDER BY filename, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var (
			doc        models.Document
			path, meta sql.NullString
		)
		if err := rows.Scan(&doc.ID, &doc.Filename, &path, &meta); err != nil {
			return nil, err
		}
		doc.Path = path.String
		if meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for document %s: %w", doc.ID, err)
			}
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountNodes returns the total number of nodes.
func (s *SQLiteStorage) CountNodes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
