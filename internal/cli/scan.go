package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flxnaf/beamestraight/internal/config"
	"github.com/flxnaf/beamestraight/internal/pipeline"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Input string
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the annotation exports an input directory holds",
		Long: `Extract the input directory into a temporary location and list every
recognized annotation export with its schema and counts. Nothing is written.

Example:
  labelprep scan --input "Training Data"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", config.Default().Input, "directory holding export archives")

	return cmd
}

func runScan(opts *ScanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	input := opts.Input
	if !cmd.Flags().Changed("input") {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return fail(formatter, err)
		}
		input = cfg.Input
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	report, err := pipeline.Scan(ctx, input, logger)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Success(scanResult{report})
}

type scanResult struct {
	*pipeline.ScanReport
}

func (r scanResult) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Found %d export(s)\n", len(r.Exports))
	fmt.Fprintln(w)
	for _, e := range r.Exports {
		fmt.Fprintf(w, "  %s [%s] %s\n", e.Project, e.Schema, e.File)
		if e.Error != "" {
			fmt.Fprintf(w, "       error: %s\n", e.Error)
			continue
		}
		fmt.Fprintf(w, "       images=%d annotations=%d", e.Images, e.Annotations)
		if e.Unlabeled > 0 {
			fmt.Fprintf(w, " unlabeled=%d", e.Unlabeled)
		}
		fmt.Fprintln(w)
	}
	for _, a := range r.SkippedArchives {
		fmt.Fprintf(w, "  %s [skipped: unreadable archive]\n", a)
	}
}
