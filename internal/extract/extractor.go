// Package extract loads source files into documents. Paged formats yield one document per
// page (PDF, form-feed separated text, DOCX with page breaks) and workbooks one per sheet.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/rulebook/internal/fileid"
	"github.com/hyperjump/rulebook/internal/models"
)

// ErrUnsupported is returned for extensions with no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Loader turns one file into documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]*models.Document, error)
}

// Part is one page or sheet of a source file. Number is 1-based; zero marks a format
// without pages, whose single part covers the whole file.
type Part struct {
	Number int
	Label  string
	Text   string
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Load reads the file at path and returns one document per non-empty part. Unpaged files keep
// the path-derived document ID; paged files get a page-scoped ID. Metadata carries the
// filename, path and page label. A file with no text yields no documents and no error.
func (e *Extractor) Load(ctx context.Context, path string) ([]*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	name := filepath.Base(absPath)
	parts, err := e.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	docs := make([]*models.Document, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		id := fileid.FileDocID(absPath)
		if p.Number > 0 {
			id = fileid.PartDocID(absPath, p.Number)
		}
		doc := &models.Document{
			ID:       id,
			Filename: name,
			Path:     absPath,
			Text:     p.Text,
		}
		doc.Metadata.Filename = name
		doc.Metadata.FilePath = absPath
		doc.Metadata.PageLabel = p.Label
		docs = append(docs, doc)
	}
	return docs, nil
}

// Extract reads the file at path and returns its parts in document order.
func (e *Extractor) Extract(path string) ([]Part, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".rtf" || ext == ".odt" {
		return extractWithCat(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts parts from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are treated as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]Part, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".rtf", ".odt":
		return nil, fmt.Errorf("%s needs a file path: %w", ext, ErrUnsupported)
	default:
		return extractPlain(content)
	}
}
