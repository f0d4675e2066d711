// Package dataset writes a converted corpus to disk as a training dataset
// (per-split image and label directories plus a data.yaml descriptor) and
// verifies existing datasets.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/geom"
	"github.com/flxnaf/beamestraight/internal/split"
	"github.com/flxnaf/beamestraight/internal/workpool"
)

const (
	imagesDir = "images"
	labelsDir = "labels"
	labelExt  = ".txt"
)

var (
	// ErrOutputExists is returned when the output directory already holds
	// files and cleaning was not requested.
	ErrOutputExists = errors.New("output directory is not empty")

	// ErrInvalidInstance is returned when an instance reaching the writer
	// breaks the label format (coordinate outside [0,1], wrong point count).
	ErrInvalidInstance = errors.New("invalid label instance")
)

// CheckOutput reports whether root can receive a dataset without touching
// it: root must be missing or empty, or clean must be set.
func CheckOutput(root string, clean bool) error {
	if _, err := outputEntries(root, clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PrepareOutput makes root an empty directory. An existing non-empty root
// is removed first when clean is set and rejected otherwise.
func PrepareOutput(root string, clean bool) error {
	n, err := outputEntries(root, clean)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.MkdirAll(root, 0o755)
	case err != nil:
		return err
	case n == 0:
		return nil
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("clean output directory: %w", err)
	}
	return os.MkdirAll(root, 0o755)
}

// outputEntries counts the entries of root. A missing root is returned as
// os.ErrNotExist.
func outputEntries(root string, clean bool) (int, error) {
	entries, err := os.ReadDir(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return 0, err
	case err != nil:
		return 0, fmt.Errorf("inspect output directory: %w", err)
	case len(entries) > 0 && !clean:
		return 0, fmt.Errorf("%w: %s", ErrOutputExists, root)
	}
	return len(entries), nil
}

// FormatLine renders one instance as "<class> x1 y1 ... xn yn" with six
// decimals. Every coordinate is re-checked against [0,1].
func FormatLine(class int, pts []geom.Point) (string, error) {
	if class < 0 {
		return "", fmt.Errorf("%w: negative class %d", ErrInvalidInstance, class)
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(class))
	for i, p := range pts {
		for _, v := range [2]float64{p.X, p.Y} {
			if !(v >= 0 && v <= 1) {
				return "", fmt.Errorf("%w: point %d (%g, %g) outside [0,1]", ErrInvalidInstance, i, p.X, p.Y)
			}
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
		}
	}
	return b.String(), nil
}

// FormatLabel renders the label file for one image. Images without
// instances yield an empty file.
func FormatLabel(mode corpus.Mode, instances []corpus.Instance) ([]byte, error) {
	var b strings.Builder
	for _, inst := range instances {
		if err := checkShape(mode, inst.Points); err != nil {
			return nil, fmt.Errorf("instance %d: %w", inst.ID, err)
		}
		line, err := FormatLine(inst.Class, inst.Points)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", inst.ID, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func checkShape(mode corpus.Mode, pts []geom.Point) error {
	switch {
	case mode == corpus.ModeOBB && len(pts) != 4:
		return fmt.Errorf("%w: oriented box has %d corners", ErrInvalidInstance, len(pts))
	case len(pts) < geom.MinPolygonPoints:
		return fmt.Errorf("%w: polygon has %d points", ErrInvalidInstance, len(pts))
	}
	return nil
}

// LabelName returns the label file name for an output image name.
func LabelName(outputName string) string {
	return strings.TrimSuffix(outputName, filepath.Ext(outputName)) + labelExt
}

// Writer emits a corpus under Root.
type Writer struct {
	Root    string
	Mode    corpus.Mode
	Workers int
	Logger  *slog.Logger
}

// Result describes a written dataset.
type Result struct {
	ManifestPath string
	Manifest     *Manifest
	Fingerprint  string
	Counts       map[string]int
	Instances    int
}

type writeJob struct {
	subset string
	image  *corpus.Image
}

type writeResult struct {
	entry     Entry
	instances int
	err       error
}

// Write copies every assigned image into <root>/<subset>/images, writes its
// label into <root>/<subset>/labels and finally writes data.yaml. Each job
// owns exactly one image and one label path.
func (w *Writer) Write(ctx context.Context, c *corpus.Corpus, a split.Assignment) (*Result, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}

	byID := c.ByID()
	subsets := a.Names()
	var jobs []writeJob
	for _, name := range subsets {
		for _, dir := range []string{imagesDir, labelsDir} {
			if err := os.MkdirAll(filepath.Join(root, name, dir), 0o755); err != nil {
				return nil, fmt.Errorf("create %s/%s: %w", name, dir, err)
			}
		}
		for _, id := range a[name] {
			img, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("subset %s references unknown image %d", name, id)
			}
			jobs = append(jobs, writeJob{subset: name, image: img})
		}
	}

	results, err := workpool.Map(ctx, w.Workers, jobs, func(_ context.Context, j writeJob) writeResult {
		return w.writeImage(root, j)
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Counts: a.Counts()}
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		entries = append(entries, r.entry)
		res.Instances += r.instances
	}
	res.Fingerprint = Fingerprint(c.Mode, c.Classes, entries)

	res.Manifest = NewManifest(root, c.Classes, subsets)
	res.ManifestPath = filepath.Join(root, ManifestName)
	if err := WriteManifest(res.ManifestPath, res.Manifest); err != nil {
		return nil, err
	}
	logger.Info("dataset written", "root", root, "images", len(jobs), "instances", res.Instances)
	return res, nil
}

func (w *Writer) writeImage(root string, j writeJob) writeResult {
	img := j.image
	label, err := FormatLabel(w.Mode, img.Instances)
	if err != nil {
		return writeResult{err: fmt.Errorf("label for %s: %w", img.OutputName, err)}
	}

	dst := filepath.Join(root, j.subset, imagesDir, img.OutputName)
	if err := copyFile(img.SourcePath, dst); err != nil {
		return writeResult{err: fmt.Errorf("copy %s: %w", img.OutputName, err)}
	}
	labelPath := filepath.Join(root, j.subset, labelsDir, LabelName(img.OutputName))
	if err := os.WriteFile(labelPath, label, 0o644); err != nil {
		return writeResult{err: fmt.Errorf("write label %s: %w", labelPath, err)}
	}

	return writeResult{
		entry:     Entry{Subset: j.subset, Name: img.OutputName, Label: label},
		instances: len(img.Instances),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
