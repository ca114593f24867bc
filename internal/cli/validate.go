package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/manifest"
	"github.com/roach88/conform/internal/trace"
)

// ManifestSummary describes a valid manifest.
type ManifestSummary struct {
	Module       string   `json:"module"`
	Model        string   `json:"model,omitempty"`
	StateRoot    string   `json:"state_root"`
	Participants []string `json:"participants"`
	Transitions  []string `json:"transitions"`
}

// TraceCheck lists the problems of one trace file.
type TraceCheck struct {
	Path     string   `json:"path"`
	Steps    int      `json:"steps"`
	Problems []string `json:"problems"`
}

// ValidateResult is the JSON payload of validate.
type ValidateResult struct {
	Manifest ManifestSummary `json:"manifest"`
	Traces   []TraceCheck    `json:"traces"`
	Problems int             `json:"problems"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest.cue> [trace.itf.json...]",
		Short: "Validate a manifest and check traces against it",
		Long: `Validate a model manifest and, optionally, check that trace files use
only its variables, participants and transitions. No driver is run.

Exit codes:
  0 - Manifest valid and every trace compatible
  1 - One or more traces incompatible with the manifest
  2 - Invalid manifest or unreadable trace

Example:
  conform validate ballot.cue traces/*.itf.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1:], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, manifestPath string, tracePaths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		_ = out.Error("E_MANIFEST", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid manifest", err)
	}

	out.VerboseLog("Loaded manifest %s from %s", m.Module, manifestPath)

	result := ValidateResult{Manifest: summarizeManifest(m), Traces: []TraceCheck{}}
	for _, path := range tracePaths {
		tr, err := trace.ReadFile(path)
		if err != nil {
			_ = out.Error("E_TRACE", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read trace", err)
		}
		problems, err := m.CheckTrace(tr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to check trace", err)
		}

		check := TraceCheck{Path: path, Steps: tr.Len(), Problems: []string{}}
		for _, p := range problems {
			check.Problems = append(check.Problems, p.String())
		}
		result.Traces = append(result.Traces, check)
		result.Problems += len(problems)
	}

	if out.JSON() {
		var cliErr *CLIError
		if result.Problems > 0 {
			cliErr = &CLIError{Code: "E_INVALID", Message: fmt.Sprintf("%d problem(s)", result.Problems)}
		}
		if err := out.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		printValidate(cmd, result)
	}

	if result.Problems > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", result.Problems))
	}
	return nil
}

func summarizeManifest(m *manifest.Manifest) ManifestSummary {
	s := ManifestSummary{
		Module:       m.Module,
		Model:        m.Model,
		StateRoot:    m.StateRoot,
		Participants: m.Participants,
	}
	for _, t := range m.Transitions {
		s.Transitions = append(s.Transitions, fmt.Sprintf("%s (%s)", t.Name, t.Target))
	}
	return s
}

func printValidate(cmd *cobra.Command, r ValidateResult) {
	w := cmd.OutOrStdout()
	rep := NewConsoleReporter(w, false)

	rep.ok.Fprintf(w, "%s %s", markPass, r.Manifest.Module)
	fmt.Fprintf(w, ": %d participants, %d transitions\n", len(r.Manifest.Participants), len(r.Manifest.Transitions))

	for _, tc := range r.Traces {
		if len(tc.Problems) == 0 {
			rep.ok.Fprintf(w, "%s %s", markPass, tc.Path)
			fmt.Fprintf(w, " (%d steps)\n", tc.Steps)
			continue
		}
		rep.fail.Fprintf(w, "%s %s", markFail, tc.Path)
		fmt.Fprintf(w, " (%d problems)\n", len(tc.Problems))
		for _, p := range tc.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}
