package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/flxnaf/beamestraight/internal/config"
	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/dataset"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Mode string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <data.yaml>",
		Short: "Check a written dataset",
		Long: `Check a dataset against its manifest: every image has a label file and
every label line is a class below nc followed by coordinates in [0,1].
With --mode obb each line must hold exactly four corners.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "expected encoding (obb|seg); empty accepts any polygon")

	return cmd
}

func runVerify(opts *VerifyOptions, manifestPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var mode corpus.Mode
	if opts.Mode != "" {
		m, err := corpus.ParseMode(opts.Mode)
		if err != nil {
			return fail(formatter, &config.Error{Field: "mode", Message: err.Error()})
		}
		mode = m
	}

	formatter.VerboseLog("Verifying %s", manifestPath)
	report, err := dataset.Verify(manifestPath, mode)
	if err != nil {
		return fail(formatter, err)
	}

	if err := report.Err(); err != nil {
		code, exit := classify(err)
		if ferr := formatter.Failure(code, err.Error(), verifyResult{report}); ferr != nil {
			return ferr
		}
		return WrapExitError(exit, code, err)
	}
	return formatter.Success(verifyResult{report})
}

type verifyResult struct {
	*dataset.Report
}

func (r verifyResult) WriteText(w io.Writer, verbose bool) {
	if r.OK() {
		fmt.Fprintln(w, "✓ Dataset valid")
	} else {
		fmt.Fprintln(w, "✗ Dataset has problems")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Classes: %v\n", r.Classes)
	for _, s := range r.Subsets {
		fmt.Fprintf(w, "  %-5s images=%d instances=%d empty=%d missing_labels=%d\n",
			s.Name, s.Images, s.Instances, s.EmptyLabels, s.MissingLabels)
		if verbose {
			fmt.Fprintf(w, "        %s\n", s.ImagesDir)
		}
	}

	if len(r.Problems) > 0 {
		fmt.Fprintln(w)
		for _, p := range r.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
		if hidden := r.ProblemCount - len(r.Problems); hidden > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", hidden)
		}
	}
}
