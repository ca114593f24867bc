package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/harness"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Manifest string
	Driver   string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <trace.itf.json>...",
		Short: "Replay trace files against a driver",
		Long: `Replay ITF trace files against a registered driver without a suite.
Arguments may be files or glob patterns. Checks are not recorded in history.

Example:
  conform check --manifest ballot.cue --driver ballot traces/*.itf.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	addRunFlags(cmd)
	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "model manifest (required)")
	cmd.Flags().StringVarP(&opts.Driver, "driver", "d", "", "registered driver name (required)")
	_ = cmd.MarkFlagRequired("manifest")
	_ = cmd.MarkFlagRequired("driver")

	return cmd
}

func runCheck(opts *CheckOptions, traces []string, cmd *cobra.Command) error {
	if err := opts.load(cmd); err != nil {
		return err
	}

	suite := &harness.Suite{
		Name: "check",
		Tests: []harness.TestSpec{{
			Name:     "check",
			Manifest: opts.Manifest,
			Driver:   opts.Driver,
			Traces:   traces,
		}},
	}
	if err := suite.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid check", err)
	}
	return executeSuite(opts.RootOptions, suite, nil, cmd)
}
