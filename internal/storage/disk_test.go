package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(manifest, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	kw := filepath.Join(dir, KeywordDir)
	if err := os.MkdirAll(filepath.Join(kw, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(kw, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(kw, "store", "b"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"file", []string{manifest}, 5},
		{"nested dir", []string{kw}, 3},
		{"file and dir", []string{manifest, kw}, 8},
		{"missing skipped", []string{manifest, filepath.Join(dir, "nonexistent"), kw}, 8},
		{"empty skipped", []string{"", manifest}, 5},
		{"whole index", []string{dir}, 8},
	}
	for _, tt := range tests {
		got, err := DiskUsageBytes(tt.paths...)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %d bytes, want %d", tt.name, got, tt.want)
		}
	}
}
