package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/metrics"
	"github.com/roach88/conform/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Tests     []string // run only these tests
	NoHistory bool     // do not record the run
}

// SuiteSummary is the JSON payload of run and check.
type SuiteSummary struct {
	RunID  string                 `json:"run_id"`
	Seq    int64                  `json:"seq"`
	Suite  string                 `json:"suite"`
	Status string                 `json:"status"`
	OK     bool                   `json:"ok"`
	Tests  []harness.TestSnapshot `json:"tests"`
	Failed []string               `json:"failed,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <suite.yaml>",
		Short: "Run a conformance suite",
		Long: `Run every test of a suite: sample traces, replay each against a fresh
driver and compare participant states after every step.

Runs are recorded in the history database unless --no-history is set.

Exit codes:
  0 - All tests met their expectations
  1 - One or more tests diverged or errored
  2 - Command error (invalid suite, unknown driver, etc.)

Examples:
  conform run conform/suite.yaml
  conform run conform/suite.yaml --test decides --parallelism 8
  conform run conform/suite.yaml --format json --no-history`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuiteFile(opts, args[0], cmd)
		},
	}

	addRunFlags(cmd)
	cmd.Flags().StringSliceVar(&opts.Tests, "test", nil, "run only the named tests (repeatable)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record the run")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

// addRunFlags adds the executor flags shared by run and check.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("parallelism", 0, "concurrent traces per test")
	cmd.Flags().Bool("fail-fast", false, "stop a test after its first failing trace")
	cmd.Flags().Int("max-samples", 0, "generated traces per test when the suite does not say")
	cmd.Flags().String("quint", "", "quint executable for model tests")
}

func runSuiteFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	if err := opts.load(cmd); err != nil {
		return err
	}

	suite, err := harness.LoadSuite(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load suite", err)
	}
	suite, err = suite.Select(opts.Tests...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --test", err)
	}
	opts.formatter(cmd).VerboseLog("Loaded suite %s (%d tests) from %s", suite.Name, len(suite.Tests), path)

	var st *store.Store
	if !opts.NoHistory && opts.Config.DB.Path != "" {
		st, err = openStore(opts.Config.DB.Path, true)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				opts.Logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	return executeSuite(opts.RootOptions, suite, st, cmd)
}

// executeSuite runs suite with the resolved configuration and prints the
// result.
func executeSuite(opts *RootOptions, suite *harness.Suite, st *store.Store, cmd *cobra.Command) error {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if addr := opts.Config.Metrics.Addr; addr != "" {
		go func() {
			if err := m.Serve(ctx, addr, opts.Logger); err != nil {
				opts.Logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	runnerOpts := []harness.Option{
		harness.WithLogger(opts.Logger),
		harness.WithParallelism(opts.Config.Run.Parallelism),
		harness.WithMaxSamples(opts.Config.Run.MaxSamples),
		harness.WithFailFast(opts.Config.Run.FailFast),
		harness.WithQuint(opts.Config.Run.Quint),
		harness.WithHooks(m.Hooks()),
	}
	if st != nil {
		runnerOpts = append(runnerOpts, harness.WithStore(st))
	}
	if opts.RunIDs != nil {
		runnerOpts = append(runnerOpts, harness.WithRunIDs(opts.RunIDs))
	}

	res, err := harness.NewRunner(opts.Registry, runnerOpts...).RunSuite(ctx, suite)
	if err != nil {
		return WrapExitError(ExitCommandError, "suite run failed", err)
	}

	out := opts.formatter(cmd)
	failures := res.Failures()
	if out.JSON() {
		summary := summarize(res)
		var cliErr *CLIError
		if len(failures) > 0 {
			cliErr = &CLIError{Code: "E_DIVERGED", Message: fmt.Sprintf("%d test(s) failed", len(failures))}
		}
		if err := out.Respond(summary, cliErr); err != nil {
			return err
		}
	} else {
		NewConsoleReporter(cmd.OutOrStdout(), opts.Verbose).Suite(res)
	}

	if len(failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d test(s) failed", len(failures)))
	}
	return nil
}

func summarize(res *harness.SuiteResult) SuiteSummary {
	snap := harness.Snapshot(res)
	summary := SuiteSummary{
		RunID:  res.RunID,
		Seq:    res.Seq,
		Suite:  res.Suite,
		Status: string(res.Status),
		OK:     snap.OK,
		Tests:  snap.Tests,
	}
	for _, o := range res.Failures() {
		summary.Failed = append(summary.Failed, o.Report.Test)
	}
	return summary
}

// openStore opens the history database. With create false a missing file
// is a command error rather than a new empty history.
func openStore(path string, create bool) (*store.Store, error) {
	if create {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
