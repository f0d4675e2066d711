// Package pipeline runs a conversion end to end: extract archives, locate
// and parse exports, resolve and normalize every image on a worker pool,
// merge projects, split, and write the dataset.
//
// Per-item failures (a corrupt archive, a missing image, a degenerate
// polygon) are logged and counted. Only configuration errors, an input
// with no exports, an empty corpus and write failures abort a run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flxnaf/beamestraight/internal/archive"
	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/dataset"
	"github.com/flxnaf/beamestraight/internal/export"
	"github.com/flxnaf/beamestraight/internal/split"
	"github.com/flxnaf/beamestraight/internal/store"
	"github.com/flxnaf/beamestraight/internal/workpool"
)

// Summary describes a finished run.
type Summary struct {
	RunID           string                `json:"run_id"`
	Mode            corpus.Mode           `json:"mode"`
	InputDir        string                `json:"input_dir"`
	OutputDir       string                `json:"output_dir"`
	Classes         []string              `json:"classes"`
	Projects        []corpus.ProjectStats `json:"projects"`
	Totals          corpus.ProjectStats   `json:"totals"`
	Unlabeled       int                   `json:"unlabeled_tasks"`
	Splits          map[string]int        `json:"splits"`
	Instances       int                   `json:"instances"`
	Fingerprint     string                `json:"fingerprint"`
	ManifestPath    string                `json:"manifest"`
	SkippedArchives []string              `json:"skipped_archives,omitempty"`
	SkippedExports  []string              `json:"skipped_exports,omitempty"`
	WorkDir         string                `json:"work_dir,omitempty"`
	LedgerSeq       int64                 `json:"ledger_seq,omitempty"`
}

// Run converts every export under opts.InputDir into a dataset at
// opts.OutputDir. Nothing is written to the output directory unless the
// merged corpus holds at least one image.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := opts.logger()
	if err := opts.Ratios.Validate(); err != nil {
		return nil, err
	}
	if info, err := os.Stat(opts.InputDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", opts.InputDir, ErrInputNotFound)
	}
	if err := dataset.CheckOutput(opts.OutputDir, opts.Clean); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "labelprep-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	sum := &Summary{
		RunID:     opts.ids().Generate(),
		Mode:      opts.Mode,
		InputDir:  opts.InputDir,
		OutputDir: opts.OutputDir,
	}
	if opts.KeepWork {
		sum.WorkDir = workDir
		logger.Info("keeping work directory", "dir", workDir)
	} else {
		defer os.RemoveAll(workDir)
	}

	logger.Info("conversion started", "run", sum.RunID, "mode", opts.Mode, "input", opts.InputDir)

	c, err := collect(ctx, &opts, workDir, sum)
	if err != nil {
		return nil, err
	}

	assignment, err := split.Split(c.IDs(), opts.Ratios, opts.Seed)
	if err != nil {
		return nil, err
	}

	if err := dataset.PrepareOutput(opts.OutputDir, opts.Clean); err != nil {
		return nil, err
	}
	w := &dataset.Writer{Root: opts.OutputDir, Mode: opts.Mode, Workers: opts.Workers, Logger: logger}
	res, err := w.Write(ctx, c, assignment)
	if err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}

	sum.Classes = c.Classes
	sum.Projects = c.Projects
	sum.Totals = c.Totals()
	sum.Splits = res.Counts
	sum.Instances = res.Instances
	sum.Fingerprint = res.Fingerprint
	sum.ManifestPath = res.ManifestPath

	if opts.Ledger != nil {
		seq, err := opts.Ledger.WriteRun(ctx, ledgerRun(&opts, sum), placements(c, assignment))
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		sum.LedgerSeq = seq
	}

	logger.Info("conversion complete",
		"run", sum.RunID,
		"images", sum.Totals.Images,
		"accepted", sum.Totals.Accepted,
		"rejected", sum.Totals.Rejected,
		"fingerprint", sum.Fingerprint,
	)
	return sum, nil
}

// collect extracts, parses and merges every export. It returns
// split.ErrEmptyCorpus when no image survives.
func collect(ctx context.Context, opts *Options, workDir string, sum *Summary) (*corpus.Corpus, error) {
	logger := opts.logger()

	extracted, err := archive.Extract(ctx, opts.InputDir, workDir, logger)
	if err != nil {
		return nil, err
	}
	for _, s := range extracted.Skipped {
		sum.SkippedArchives = append(sum.SkippedArchives, filepath.Base(s.Archive))
	}

	exports, err := export.Locate(extracted.Roots(), logger)
	if err != nil {
		return nil, err
	}

	merger := corpus.NewMerger(opts.Mode, corpus.MergeOptions{
		Classes:     opts.Classes,
		Policy:      opts.ClassPolicy,
		FoldUnknown: opts.FoldUnknown,
		DropEmpty:   opts.DropEmpty,
	}, logger)

	for _, e := range exports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		project, err := export.Parse(e)
		if err != nil {
			logger.Warn("skipping export", "export", e.Name, "error", err)
			sum.SkippedExports = append(sum.SkippedExports, e.Name)
			continue
		}
		processed, err := processProject(ctx, opts, project)
		if err != nil {
			return nil, err
		}
		stats := merger.Add(processed)
		sum.Unlabeled += project.Unlabeled
		logger.Info("project merged",
			"project", stats.Name,
			"schema", e.Schema,
			"images", stats.Images,
			"accepted", stats.Accepted,
			"rejected", stats.Rejected,
		)
	}

	c := merger.Corpus()
	if len(c.Images) == 0 {
		return nil, split.ErrEmptyCorpus
	}
	return c, nil
}

// processProject resolves and encodes a project's images on the worker
// pool. Results keep export order.
func processProject(ctx context.Context, opts *Options, p *export.Project) (corpus.ProcessedProject, error) {
	logger := opts.logger()
	r := newImageProcessor(opts.Mode, p)

	images, err := workpool.Map(ctx, opts.Workers, p.Images, func(_ context.Context, rec corpus.ImageRecord) corpus.ProcessedImage {
		return r.process(rec)
	})
	if err != nil {
		return corpus.ProcessedProject{}, err
	}

	for _, pi := range images {
		if pi.Err != nil {
			logger.Warn("image skipped",
				"project", p.Name(), "image", pi.Record.Ref, "reason", corpus.Reason(pi.Err), "error", pi.Err)
			continue
		}
		for _, s := range pi.Shapes {
			if s.Err != nil {
				logger.Warn("instance rejected",
					"project", p.Name(), "image", pi.Record.Ref, "reason", corpus.Reason(s.Err), "error", s.Err)
			}
		}
	}
	return corpus.ProcessedProject{Name: p.Name(), Images: images}, nil
}

func ledgerRun(opts *Options, sum *Summary) store.Run {
	return store.Run{
		ID:          sum.RunID,
		Mode:        string(sum.Mode),
		Seed:        opts.Seed,
		InputDir:    sum.InputDir,
		OutputDir:   sum.OutputDir,
		Classes:     sum.Classes,
		Fingerprint: sum.Fingerprint,
		Images:      sum.Totals.Images,
		Accepted:    sum.Totals.Accepted,
		Rejected:    sum.Totals.Rejected,
		Projects:    sum.Projects,
	}
}

func placements(c *corpus.Corpus, a split.Assignment) []store.Placement {
	byID := c.ByID()
	var out []store.Placement
	for _, name := range a.Names() {
		for _, id := range a[name] {
			out = append(out, store.Placement{ImageID: id, Split: name, OutputName: byID[id].OutputName})
		}
	}
	return out
}
