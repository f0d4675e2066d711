package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flxnaf/beamestraight/internal/archive"
	"github.com/flxnaf/beamestraight/internal/export"
)

// ScanEntry describes one recognized export.
type ScanEntry struct {
	Project     string        `json:"project"`
	File        string        `json:"file"`
	Schema      export.Schema `json:"schema"`
	Images      int           `json:"images"`
	Annotations int           `json:"annotations"`
	Unlabeled   int           `json:"unlabeled_tasks,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ScanReport lists what a conversion of the same input would read.
type ScanReport struct {
	Exports         []ScanEntry `json:"exports"`
	SkippedArchives []string    `json:"skipped_archives,omitempty"`
}

// Scan extracts input into a temporary directory and reports every
// recognized export without resolving images or writing output.
func Scan(ctx context.Context, input string, logger *slog.Logger) (*ScanReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if info, err := os.Stat(input); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", input, ErrInputNotFound)
	}

	workDir, err := os.MkdirTemp("", "labelprep-scan-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	extracted, err := archive.Extract(ctx, input, workDir, logger)
	if err != nil {
		return nil, err
	}
	report := &ScanReport{}
	for _, s := range extracted.Skipped {
		report.SkippedArchives = append(report.SkippedArchives, filepath.Base(s.Archive))
	}

	exports, err := export.Locate(extracted.Roots(), logger)
	if err != nil {
		return nil, err
	}

	for _, e := range exports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := ScanEntry{Project: e.Name, Schema: e.Schema, File: e.Path}
		if rel, err := filepath.Rel(e.Root, e.Path); err == nil {
			entry.File = filepath.ToSlash(rel)
		}

		p, err := export.Parse(e)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Images = len(p.Images)
			entry.Annotations = p.Annotations()
			entry.Unlabeled = p.Unlabeled
		}
		report.Exports = append(report.Exports, entry)
	}
	return report, nil
}
