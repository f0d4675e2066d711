package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flxnaf/beamestraight/internal/config"
	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/pipeline"
	"github.com/flxnaf/beamestraight/internal/split"
	"github.com/flxnaf/beamestraight/internal/store"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Mode            string
	Input           string
	Output          string
	Train           float64
	Test            float64
	Seed            uint64
	Workers         int
	Classes         []string
	DiscoverClasses bool
	FoldUnknown     bool
	DropEmpty       bool
	Clean           bool
	KeepWork        bool
	Database        string

	// IDs allows overriding the run id generator (for testing).
	// If nil, defaults to store.UUIDv7Generator.
	IDs store.IDGenerator
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert annotation archives into a dataset",
		Long: `Convert every annotation archive in the input directory into one dataset.

Settings come from the defaults, then the --config file, then any flag given
on the command line.

Example:
  labelprep convert --mode obb --input "Training Data"
  labelprep convert --mode seg --output datasets/seg --train 0.7 --test 0.1
  labelprep convert --config labelprep.yaml --db runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Mode, "mode", def.Mode, "encoding: obb (oriented boxes) or seg (polygons)")
	f.StringVarP(&opts.Input, "input", "i", def.Input, "directory holding export archives")
	f.StringVarP(&opts.Output, "output", "o", "", "dataset directory (default datasets/teeth-<mode>)")
	f.Float64Var(&opts.Train, "train", def.TrainRatio, "train fraction")
	f.Float64Var(&opts.Test, "test", def.TestRatio, "test fraction; validation receives the rest")
	f.Uint64Var(&opts.Seed, "seed", def.Seed, "split seed")
	f.IntVar(&opts.Workers, "workers", def.Workers, "parallel image workers (0 = number of CPUs)")
	f.StringSliceVar(&opts.Classes, "class", def.Classes, "class names in index order (repeatable)")
	f.BoolVar(&opts.DiscoverClasses, "discover-classes", false, "append unseen labels to the class table")
	f.BoolVar(&opts.FoldUnknown, "fold-unknown", def.FoldUnknown, "map labels outside a fixed class table to class 0")
	f.BoolVar(&opts.DropEmpty, "drop-empty", def.DropEmpty, "omit images left without instances")
	f.BoolVar(&opts.Clean, "clean", def.Clean, "empty the output directory first")
	f.BoolVar(&opts.KeepWork, "keep-work", def.KeepWork, "keep the extraction directory")
	f.StringVar(&opts.Database, "db", "", "record the run in this SQLite ledger")

	return cmd
}

// settings merges defaults, the config file and explicitly set flags.
func (opts *ConvertOptions) settings(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Mode = opts.Mode
	}
	if f.Changed("input") {
		cfg.Input = opts.Input
	}
	if f.Changed("output") {
		cfg.Output = opts.Output
	}
	if f.Changed("train") {
		cfg.TrainRatio = opts.Train
	}
	if f.Changed("test") {
		cfg.TestRatio = opts.Test
	}
	if f.Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if f.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if f.Changed("class") {
		cfg.Classes = opts.Classes
	}
	if f.Changed("discover-classes") && opts.DiscoverClasses {
		cfg.ClassPolicy = string(corpus.ClassDiscover)
	}
	if f.Changed("fold-unknown") {
		cfg.FoldUnknown = opts.FoldUnknown
	}
	if f.Changed("drop-empty") {
		cfg.DropEmpty = opts.DropEmpty
	}
	if f.Changed("clean") {
		cfg.Clean = opts.Clean
	}
	if f.Changed("keep-work") {
		cfg.KeepWork = opts.KeepWork
	}
	if f.Changed("db") {
		cfg.DB = opts.Database
	}
	return cfg, cfg.Validate()
}

func runConvert(opts *ConvertOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := opts.settings(cmd)
	if err != nil {
		return fail(formatter, err)
	}
	runOpts, err := pipeline.FromConfig(cfg)
	if err != nil {
		return fail(formatter, err)
	}
	runOpts.IDs = opts.IDs
	runOpts.Logger = logger

	if cfg.DB != "" {
		logger.Debug("opening ledger", "path", cfg.DB)
		st, err := store.Open(cfg.DB)
		if err != nil {
			return fail(formatter, fmt.Errorf("%w: %v", errLedger, err))
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()
		runOpts.Ledger = st
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	sum, err := pipeline.Run(ctx, runOpts)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Success(convertResult{sum})
}

// convertResult renders a run summary.
type convertResult struct {
	*pipeline.Summary
}

func (r convertResult) WriteText(w io.Writer, verbose bool) {
	s := r.Summary
	fmt.Fprintf(w, "Converted %d image(s) into %s (%s)\n", s.Totals.Images, s.OutputDir, s.Mode)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Projects ===")
	width := len(s.Totals.Name)
	for _, p := range s.Projects {
		width = max(width, len(p.Name))
	}
	for _, p := range s.Projects {
		writeStats(w, width, p)
	}
	writeStats(w, width, s.Totals)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Splits ===")
	for _, name := range []string{split.Train, split.Val, split.Test} {
		fmt.Fprintf(w, "  %-5s %d\n", name+":", s.Splits[name])
	}
	fmt.Fprintln(w)

	if len(s.SkippedArchives) > 0 {
		fmt.Fprintf(w, "Skipped archives: %s\n", strings.Join(s.SkippedArchives, ", "))
	}
	if len(s.SkippedExports) > 0 {
		fmt.Fprintf(w, "Skipped exports:  %s\n", strings.Join(s.SkippedExports, ", "))
	}
	if s.Unlabeled > 0 {
		fmt.Fprintf(w, "Unlabeled tasks:  %d\n", s.Unlabeled)
	}
	fmt.Fprintf(w, "Classes:     %s\n", strings.Join(s.Classes, ", "))
	fmt.Fprintf(w, "Manifest:    %s\n", s.ManifestPath)
	fmt.Fprintf(w, "Fingerprint: %s\n", s.Fingerprint)
	if verbose {
		fmt.Fprintf(w, "Run:         %s\n", s.RunID)
		if s.WorkDir != "" {
			fmt.Fprintf(w, "Work dir:    %s\n", s.WorkDir)
		}
	}
}

func writeStats(w io.Writer, width int, p corpus.ProjectStats) {
	fmt.Fprintf(w, "  %-*s  images=%d skipped=%d empty=%d accepted=%d rejected=%d",
		width, p.Name, p.Images, p.SkippedImages, p.EmptyImages, p.Accepted, p.Rejected)
	if len(p.Rejections) > 0 {
		reasons := make([]string, 0, len(p.Rejections))
		for reason, n := range p.Rejections {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Fprintf(w, " (%s)", strings.Join(reasons, " "))
	}
	fmt.Fprintln(w)
}
