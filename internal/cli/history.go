package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flxnaf/beamestraight/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Output   string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in a ledger",
		Long: `List conversion runs recorded with convert --db, oldest first.

Example:
  labelprep history --db runs.db
  labelprep history --db runs.db --output datasets/teeth-obb`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite ledger (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "only runs that wrote to this directory")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Open creates missing databases; history only reads existing ones.
	if _, err := os.Stat(opts.Database); err != nil {
		return fail(formatter, fmt.Errorf("%w: %v", errLedger, err))
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return fail(formatter, fmt.Errorf("%w: %v", errLedger, err))
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Output)
	if err != nil {
		return fail(formatter, err)
	}

	result := historyResult{Runs: make([]historyRun, len(runs))}
	for i, r := range runs {
		result.Runs[i] = historyRun{Run: r}
		if created := r.Created(); !created.IsZero() {
			result.Runs[i].Created = created.Format(time.RFC3339)
		}
	}
	return formatter.Success(result)
}

type historyRun struct {
	store.Run
	Created string `json:"created,omitempty"`
}

type historyResult struct {
	Runs []historyRun `json:"runs"`
}

func (r historyResult) WriteText(w io.Writer, verbose bool) {
	if len(r.Runs) == 0 {
		fmt.Fprintln(w, "(no runs recorded)")
		return
	}
	for _, run := range r.Runs {
		fmt.Fprintf(w, "[%d] %s %s -> %s\n", run.Seq, run.Mode, run.InputDir, run.OutputDir)
		if run.Created != "" {
			fmt.Fprintf(w, "    created:     %s\n", run.Created)
		}
		fmt.Fprintf(w, "    images=%d accepted=%d rejected=%d seed=%d\n", run.Images, run.Accepted, run.Rejected, run.Seed)
		fmt.Fprintf(w, "    fingerprint: %s\n", run.Fingerprint)
		if verbose {
			fmt.Fprintf(w, "    id:          %s\n", run.ID)
			for _, p := range run.Projects {
				fmt.Fprintf(w, "    - %s images=%d accepted=%d rejected=%d\n", p.Name, p.Images, p.Accepted, p.Rejected)
			}
		}
	}
}
