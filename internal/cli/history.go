package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/store"
)

// HistoryOptions holds flags for the history commands.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// RunDetail is the JSON payload of history show.
type RunDetail struct {
	Run     RunRow           `json:"run"`
	Reports []*engine.Report `json:"reports"`
}

// RunRow is one recorded run.
type RunRow struct {
	ID     string `json:"id"`
	Seq    int64  `json:"seq"`
	Suite  string `json:"suite"`
	Status string `json:"status"`
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded in the history database.

Examples:
  conform history list --limit 5
  conform history show 01936f0e-...
  conform history audit`,
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List recent runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return historyList(ctx, opts, st, cmd)
			})
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show the reports of one run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return historyShow(ctx, opts, st, args[0], cmd)
			})
		},
	}

	audit := &cobra.Command{
		Use:   "audit",
		Short: "Find traces whose outcome changed between runs",
		Long: `Find traces that were replayed more than once against the same test and
did not always end the same way. Replaying a trace must be deterministic, so
any result points at hidden state in a driver or implementation.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(ctx context.Context, st *store.Store) error {
				return historyAudit(ctx, opts, st, cmd)
			})
		},
	}

	cmd.AddCommand(list, show, audit)
	return cmd
}

// withStore loads the configuration and opens the existing history
// database for fn.
func withStore(opts *HistoryOptions, cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	if err := opts.load(cmd); err != nil {
		return err
	}
	st, err := openStore(opts.Config.DB.Path, false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, st)
}

func historyList(ctx context.Context, opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = runRow(r)
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Respond(rows, nil)
	}

	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-6s %-36s %-8s %s\n", "SEQ", "RUN", "STATUS", "SUITE")
	for _, r := range rows {
		fmt.Fprintf(w, "%-6s %-36s %-8s %s\n", strconv.FormatInt(r.Seq, 10), r.ID, r.Status, r.Suite)
	}
	return nil
}

func historyShow(ctx context.Context, opts *HistoryOptions, st *store.Store, runID string, cmd *cobra.Command) error {
	run, reports, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Respond(RunDetail{Run: runRow(run), Reports: reports}, nil)
	}

	w := cmd.OutOrStdout()
	rep := NewConsoleReporter(w, opts.Verbose)
	fmt.Fprintf(w, "Run %s (seq %d) suite %s: %s\n", run.ID, run.Seq, run.Suite, run.Status)
	for _, r := range reports {
		p, f, e := r.Counts()
		mark, c := markPass, rep.ok
		if !r.Passed() {
			mark, c = markFail, rep.fail
		}
		c.Fprintf(w, "%s %s", mark, r.Test)
		fmt.Fprintf(w, " (%d passed, %d failed, %d errored)\n", p, f, e)
		if r.Reason != "" {
			fmt.Fprintf(w, "  %s\n", r.Reason)
		}
		if r.FirstFailure != nil {
			rep.trace(*r.FirstFailure)
		}
	}
	return nil
}

func historyAudit(ctx context.Context, opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	divergent, err := st.FindNondeterministic(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to audit runs", err)
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		var cliErr *CLIError
		if len(divergent) > 0 {
			cliErr = &CLIError{Code: "E_NONDETERMINISTIC", Message: fmt.Sprintf("%d trace(s) changed outcome", len(divergent))}
		}
		if divergent == nil {
			divergent = []store.Divergence{}
		}
		if err := out.Respond(divergent, cliErr); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if len(divergent) == 0 {
			fmt.Fprintf(w, "%s All replays deterministic\n", markPass)
		}
		for _, d := range divergent {
			fmt.Fprintf(w, "%s %s trace %s\n", markFail, d.Test, d.Fingerprint)
			for _, o := range d.Outcomes {
				fmt.Fprintf(w, "  seq %d run %s: %s step %d\n", o.Seq, o.RunID, o.Status, o.StepIndex)
			}
		}
	}

	if len(divergent) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d trace(s) changed outcome between runs", len(divergent)))
	}
	return nil
}

func runRow(r store.Run) RunRow {
	return RunRow{ID: r.ID, Seq: r.Seq, Suite: r.Suite, Status: string(r.Status)}
}
