package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/embedding"
	"github.com/hyperjump/rulebook/internal/extract"
	"github.com/hyperjump/rulebook/internal/metadata"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulebookText = `Volume 2: Islamic Banking
MODULE CA: Capital Adequacy
CHAPTER CA-3: Credit Risk
Section CA-3.1: Page 4 of 12
Updated July 2023. Licensees must hold capital and shall report under CA-3.1.1 and CA-3.1.2.
The CBB Law Article 44 applies to every islamic bank.`

type failingLoader struct {
	extract.Loader
	fail string
}

func (f failingLoader) Load(ctx context.Context, path string) ([]*models.Document, error) {
	if filepath.Base(path) == f.fail {
		return nil, errors.New("corrupt file")
	}
	return f.Loader.Load(ctx, path)
}

func testConfig() config.IndexConfig {
	return config.IndexConfig{
		ChunkSizes:      []int{16, 8},
		ChunkOverlap:    2,
		Extensions:      []string{".txt"},
		RulebookPattern: "rulebook",
		Workers:         3,
	}
}

func newTestBuilder(loader extract.Loader) *Builder {
	clock := metadata.FixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	return NewBuilder(loader, embedding.NewMockEmbedder(8), storage.NewIndexStore(nil), testConfig(), WithClock(clock))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestBuildHierarchical(t *testing.T) {
	dataDir := t.TempDir()
	indexPath := filepath.Join(t.TempDir(), "hier")
	writeFile(t, dataDir, "rulebook_vol2.txt", rulebookText)
	writeFile(t, dataDir, "circular.txt", "A circular about capital for all licensees.")
	writeFile(t, dataDir, "broken.txt", "x")
	writeFile(t, dataDir, "empty.txt", "  \n ")
	writeFile(t, dataDir, "ignored.pdf", "not listed")

	b := newTestBuilder(failingLoader{Loader: extract.NewExtractor(), fail: "broken.txt"})
	report, err := b.BuildHierarchical(context.Background(), dataDir, indexPath)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, report.Status)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Files, 4)
	assert.Equal(t, "broken.txt", report.Files[0].Filename)
	assert.Equal(t, FileFailed, report.Files[0].Status)
	assert.Error(t, report.Files[0].Err)

	ix, err := storage.NewIndexStore(nil).Load(context.Background(), indexPath)
	require.NoError(t, err)
	defer ix.Close()
	assert.Equal(t, report.Nodes, len(ix.Nodes))
	assert.Equal(t, []string{"circular.txt", "rulebook_vol2.txt"}, ix.Manifest.Files)
	assert.Equal(t, []int{16, 8}, ix.Manifest.ChunkSizes)

	var ruleNode, circularNode *models.Node
	for _, n := range ix.Nodes {
		if n.Tier != 0 || n.ChunkIndex != 0 {
			continue
		}
		switch n.Metadata.Filename {
		case "rulebook_vol2.txt":
			ruleNode = n
		case "circular.txt":
			circularNode = n
		}
	}
	require.NotNil(t, ruleNode)
	require.NotNil(t, circularNode)

	m := ruleNode.Metadata
	assert.Equal(t, "2", m.VolumeNumber)
	assert.Equal(t, "Islamic Banking", m.VolumeType)
	assert.Equal(t, "CA", m.ModuleCode)
	assert.Equal(t, "Prudential", m.ModuleCategory)
	assert.Equal(t, models.LevelSection, m.HierarchyLevel)
	assert.Equal(t, "Islamic Banks", m.AppliesTo)
	assert.Contains(t, m.SearchTags, "Capital")
	assert.Equal(t, 0.8, m.RegulatoryImportance)
	assert.Equal(t, ruleNode.ID, m.NodeID)
	assert.NotEmpty(t, ruleNode.ChildIDs)

	assert.Equal(t, "circular.txt", circularNode.Metadata.Filename)
	assert.Empty(t, circularNode.Metadata.FilePath)
	assert.Empty(t, circularNode.Metadata.HierarchyLevel)
	assert.Empty(t, circularNode.Metadata.SearchTags)
	assert.NotEmpty(t, circularNode.Metadata.NodeContentType)
}

func TestBuildTraditional(t *testing.T) {
	dataDir := t.TempDir()
	indexPath := filepath.Join(t.TempDir(), "trad")
	writeFile(t, dataDir, "rulebook_vol2.txt", rulebookText)
	writeFile(t, dataDir, "b.txt", strings.Repeat("word ", 100))

	report, err := newTestBuilder(extract.NewExtractor()).BuildTraditional(context.Background(), dataDir, indexPath)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, report.Status)
	assert.Equal(t, 2, report.Nodes)

	ix, err := storage.NewIndexStore(nil).Load(context.Background(), indexPath)
	require.NoError(t, err)
	defer ix.Close()
	require.Len(t, ix.Nodes, 2)
	for _, n := range ix.Nodes {
		assert.Empty(t, n.ParentID)
		assert.Empty(t, n.ChildIDs)
		assert.Empty(t, n.Metadata.VolumeNumber, "traditional nodes carry loader metadata only")
		assert.NotEmpty(t, n.Metadata.FilePath)
	}
	assert.Empty(t, ix.Manifest.ChunkSizes)
}

const twoPageRulebook = `Volume 2: Islamic Banking
MODULE CA: Capital Adequacy
CHAPTER CA-A: Application
Section CA-A.1: Page 1 of 412
Licensees must apply this module.` + "\f" + `MODULE CA: Capital Adequacy
CHAPTER CA-3: Credit Risk
Section CA-3.2: Page 412 of 412
Risk weights for exposures.` + "\f"

func TestBuild_PerPageMetadata(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "rulebook_vol2.txt", twoPageRulebook)
	b := newTestBuilder(extract.NewExtractor())

	indexPath := filepath.Join(t.TempDir(), "hier")
	report, err := b.BuildHierarchical(context.Background(), dataDir, indexPath)
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, report.Status)
	assert.Equal(t, 2, report.Files[0].Documents)

	ix, err := storage.NewIndexStore(nil).Load(context.Background(), indexPath)
	require.NoError(t, err)
	defer ix.Close()

	byPage := map[string]*models.Node{}
	for _, n := range ix.Nodes {
		if n.Tier == 0 && n.ChunkIndex == 0 {
			byPage[n.Metadata.PageLabel] = n
		}
	}
	require.Len(t, byPage, 2)
	first, last := byPage["1"], byPage["2"]
	require.NotNil(t, first)
	require.NotNil(t, last)
	assert.NotEqual(t, first.DocumentID, last.DocumentID)
	assert.Equal(t, "CA-A", first.Metadata.ChapterReference)
	assert.Equal(t, "CA-A.1", first.Metadata.SectionReference)
	assert.Equal(t, 1, first.Metadata.PageNumber)
	assert.Equal(t, "CA-3", last.Metadata.ChapterReference)
	assert.Equal(t, "CA-3.2", last.Metadata.SectionReference)
	assert.Equal(t, 412, last.Metadata.PageNumber)
	for _, n := range ix.Nodes {
		if n.DocumentID == last.DocumentID {
			assert.Equal(t, "CA-3.2", n.Metadata.SectionReference, "child nodes inherit their own page")
		}
	}

	tradPath := filepath.Join(t.TempDir(), "trad")
	trad, err := b.BuildTraditional(context.Background(), dataDir, tradPath)
	require.NoError(t, err)
	assert.Equal(t, 2, trad.Nodes, "one traditional node per page")
}

func TestBuild_NoDocumentsSkipsAndKeepsPreviousIndex(t *testing.T) {
	dataDir := t.TempDir()
	indexPath := filepath.Join(t.TempDir(), "hier")
	writeFile(t, dataDir, "rulebook_vol1.txt", rulebookText)
	b := newTestBuilder(extract.NewExtractor())

	first, err := b.BuildHierarchical(context.Background(), dataDir, indexPath)
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, first.Status)

	require.NoError(t, os.Remove(filepath.Join(dataDir, "rulebook_vol1.txt")))
	report, err := b.BuildHierarchical(context.Background(), dataDir, indexPath)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, report.Status)
	assert.Zero(t, report.Nodes)

	ix, err := storage.NewIndexStore(nil).Load(context.Background(), indexPath)
	require.NoError(t, err)
	defer ix.Close()
	assert.Len(t, ix.Nodes, first.Nodes)
}

func TestBuild_MissingDataDir(t *testing.T) {
	_, err := newTestBuilder(extract.NewExtractor()).BuildTraditional(context.Background(),
		filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "idx"))
	assert.Error(t, err)
}

func TestBuild_PersistFailure(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "rulebook_vol1.txt", rulebookText)
	blocker := filepath.Join(t.TempDir(), "file")
	writeFile(t, filepath.Dir(blocker), "file", "not a directory")

	_, err := newTestBuilder(extract.NewExtractor()).BuildHierarchical(context.Background(), dataDir, filepath.Join(blocker, "idx"))
	assert.ErrorIs(t, err, ErrPersist)
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := newTestBuilder(extract.NewExtractor()).Build(context.Background(), "graph", t.TempDir(), t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownIndexKind)
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".pdf", []string{".pdf"}, true},
		{".PDF", []string{"pdf"}, true},
		{".txt", []string{".pdf"}, false},
		{".txt", nil, true},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
