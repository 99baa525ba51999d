package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/models"
)

type recordingRebuilder struct {
	mu    sync.Mutex
	kinds []models.IndexKind
	err   error
}

func (r *recordingRebuilder) Rebuild(ctx context.Context, kind models.IndexKind) (*indexer.BuildReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	if r.err != nil {
		return nil, r.err
	}
	return &indexer.BuildReport{Kind: kind, Status: indexer.StatusBuilt}, nil
}

func (r *recordingRebuilder) calls() []models.IndexKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.IndexKind(nil), r.kinds...)
}

func startWatcher(t *testing.T, dir string, rb Rebuilder, kinds ...models.IndexKind) *Watcher {
	t.Helper()
	w := NewWatcher(dir, []string{".txt"}, kinds, rb, WithDebounce(150*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_BurstCollapsesToOneRebuild(t *testing.T) {
	dir := t.TempDir()
	rb := &recordingRebuilder{}
	startWatcher(t, dir, rb, models.IndexHierarchical)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := writeFile(filepath.Join(dir, name), "hello"); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return len(rb.calls()) > 0 })
	time.Sleep(400 * time.Millisecond)
	if got := rb.calls(); len(got) != 1 || got[0] != models.IndexHierarchical {
		t.Errorf("rebuilds = %v, want one hierarchical", got)
	}
}

func TestWatcher_RebuildsEveryKind(t *testing.T) {
	dir := t.TempDir()
	rb := &recordingRebuilder{}
	startWatcher(t, dir, rb, models.IndexHierarchical, models.IndexTraditional)

	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rb.calls()) == 2 })
	got := rb.calls()
	if got[0] != models.IndexHierarchical || got[1] != models.IndexTraditional {
		t.Errorf("rebuild order = %v", got)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rb := &recordingRebuilder{}
	startWatcher(t, dir, rb, models.IndexHierarchical)

	if err := writeFile(filepath.Join(dir, "notes.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, ".upload-123"), "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if got := rb.calls(); len(got) != 0 {
		t.Errorf("unexpected rebuilds: %v", got)
	}
}

func TestWatcher_RemoveTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := writeFile(path, "hello"); err != nil {
		t.Fatal(err)
	}
	rb := &recordingRebuilder{}
	startWatcher(t, dir, rb, models.IndexTraditional)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rb.calls()) == 1 })
}

func TestWatcher_RebuildErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	rb := &recordingRebuilder{err: errors.New("boom")}
	w := startWatcher(t, dir, rb, models.IndexHierarchical)

	w.Trigger()
	waitFor(t, func() bool { return len(rb.calls()) == 1 })
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(rb.calls()) == 2 })
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	rb := &recordingRebuilder{}
	w := NewWatcher(dir, nil, []models.IndexKind{models.IndexHierarchical}, rb, WithDebounce(200*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Trigger()
	w.Stop()
	w.Stop()
	time.Sleep(400 * time.Millisecond)
	if got := rb.calls(); len(got) != 0 {
		t.Errorf("rebuild ran after Stop: %v", got)
	}
	w.Trigger()
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.pdf", []string{"pdf"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
