// Package archive unpacks per-project source archives into isolated
// working directories so that identically named files from different
// projects never meet before the merge stage.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrArchiveCorrupt marks an archive that could not be read or unpacked.
var ErrArchiveCorrupt = errors.New("archive corrupt")

// ExtractionError describes a per-archive failure. The archive is skipped;
// other archives are still extracted.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", filepath.Base(e.Archive), e.Err)
}

// Unwrap exposes both ErrArchiveCorrupt and the underlying cause.
func (e *ExtractionError) Unwrap() []error {
	return []error{ErrArchiveCorrupt, e.Err}
}

// Project is one unpacked (or already unpacked) source project.
type Project struct {
	Name   string
	Source string // archive path, or the directory itself
	Dir    string
	Files  int
}

// Result lists the extracted projects in source-name order.
type Result struct {
	Projects []Project
	Skipped  []*ExtractionError
}

// Roots returns the project directories.
func (r *Result) Roots() []string {
	roots := make([]string, len(r.Projects))
	for i, p := range r.Projects {
		roots[i] = p.Dir
	}
	return roots
}

// Extract unpacks every *.zip in srcDir into workDir/<archive stem>/.
// Sub-directories of srcDir are taken as already extracted projects and
// used in place. Corrupt archives are logged and recorded in
// Result.Skipped. The context is checked between archives.
func Extract(ctx context.Context, srcDir, workDir string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	res := &Result{}
	used := make(map[string]bool)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := e.Name()
		src := filepath.Join(srcDir, name)
		switch {
		case e.IsDir():
			if strings.HasPrefix(name, ".") || name == "__MACOSX" {
				continue
			}
			res.Projects = append(res.Projects, Project{Name: uniqueStem(name, used), Source: src, Dir: src})
			logger.Debug("using extracted project", "dir", src)

		case strings.EqualFold(filepath.Ext(name), ".zip"):
			stem := uniqueStem(strings.TrimSuffix(name, filepath.Ext(name)), used)
			dest := filepath.Join(workDir, stem)

			n, err := unzip(src, dest)
			if err != nil {
				xerr := &ExtractionError{Archive: src, Err: err}
				logger.Warn("skipping archive", "archive", name, "error", err)
				res.Skipped = append(res.Skipped, xerr)
				_ = os.RemoveAll(dest)
				continue
			}
			res.Projects = append(res.Projects, Project{Name: stem, Source: src, Dir: dest, Files: n})
			logger.Info("extracted archive", "archive", name, "files", n)
		}
	}
	return res, nil
}

func uniqueStem(stem string, used map[string]bool) string {
	candidate := stem
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		candidate = stem + "_" + strconv.Itoa(i)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// unzip extracts src into dest and returns the number of files written.
func unzip(src, dest string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	files := 0
	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		if isResourceFork(f.Name) {
			continue
		}
		target := filepath.Join(dest, name)
		if !within(dest, target) {
			return files, fmt.Errorf("entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return files, fmt.Errorf("entry %q: %w", f.Name, err)
		}
		files++
	}
	return files, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isResourceFork(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(filepath.Base(name), "._")
}

func within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
