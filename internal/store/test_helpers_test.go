package store

import (
	"path/filepath"
	"testing"

	"github.com/flxnaf/beamestraight/internal/corpus"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with two projects.
func createTestRun(id, outputDir string) Run {
	return Run{
		ID:          id,
		Mode:        "obb",
		Seed:        42,
		InputDir:    "Training Data",
		OutputDir:   outputDir,
		Classes:     []string{"teeth"},
		Fingerprint: "f00d",
		Images:      3,
		Accepted:    4,
		Rejected:    1,
		Projects: []corpus.ProjectStats{
			{Name: "alpha", Images: 2, Accepted: 3},
			{Name: "beta", Images: 1, SkippedImages: 1, Accepted: 1, Rejected: 1, Rejections: map[string]int{"geometry_invalid": 1}},
		},
	}
}
