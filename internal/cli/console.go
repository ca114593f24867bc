package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/harness"
)

const (
	markPass = "\u2713"
	markFail = "\u2717"
)

// ConsoleReporter prints suite results for a terminal. Colors are dropped
// automatically when the output is not a terminal.
type ConsoleReporter struct {
	w       io.Writer
	verbose bool

	ok   *color.Color
	fail *color.Color
	dim  *color.Color
}

// NewConsoleReporter creates a reporter writing to w. Verbose lists every
// trace, not only failing ones.
func NewConsoleReporter(w io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{
		w:       w,
		verbose: verbose,
		ok:      color.New(color.FgGreen),
		fail:    color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}
}

// Suite prints one line per test, details of unexpected outcomes and a
// summary.
func (c *ConsoleReporter) Suite(res *harness.SuiteResult) {
	for _, o := range res.Outcomes {
		c.outcome(o)
	}

	failed := len(res.Failures())
	passed := len(res.Outcomes) - failed
	fmt.Fprintln(c.w)
	fmt.Fprintf(c.w, "Summary: %d passed, %d failed, %d total\n", passed, failed, len(res.Outcomes))
	c.dim.Fprintf(c.w, "run %s (seq %d)\n", res.RunID, res.Seq)
	if failed == 0 {
		c.ok.Fprintf(c.w, "%s All tests passed\n", markPass)
	}
}

func (c *ConsoleReporter) outcome(o harness.Outcome) {
	rep := o.Report
	p, f, e := rep.Counts()
	counts := fmt.Sprintf("%d passed, %d failed, %d errored", p, f, e)

	switch {
	case o.OK() && o.Expect != nil && !rep.Passed():
		c.ok.Fprintf(c.w, "%s %s", markPass, rep.Test)
		fmt.Fprintf(c.w, " (%s as expected%s)\n", rep.Status, failurePoint(rep.FirstFailure))
	case o.OK():
		c.ok.Fprintf(c.w, "%s %s", markPass, rep.Test)
		fmt.Fprintf(c.w, " (%s)\n", counts)
	default:
		c.fail.Fprintf(c.w, "%s %s", markFail, rep.Test)
		fmt.Fprintf(c.w, " (%s)\n", counts)
		if rep.Reason != "" {
			fmt.Fprintf(c.w, "  %s\n", rep.Reason)
		}
		if o.Err != nil {
			c.indent(o.Err.Error(), "  ")
		}
		if ff := rep.FirstFailure; ff != nil && o.Err == nil {
			c.trace(*ff)
		}
	}

	if c.verbose {
		for _, tr := range rep.Traces {
			c.dim.Fprintf(c.w, "    [%d] %s %s, %d steps\n", tr.Index, tr.Name, tr.Status, tr.Steps)
		}
	}
}

// trace prints the failing step of a trace.
func (c *ConsoleReporter) trace(tr engine.TraceResult) {
	fmt.Fprintf(c.w, "  trace %d (%s): %s%s\n", tr.Index, tr.Name, tr.Code, failurePoint(&tr))
	if tr.Expected != "" || tr.Actual != "" {
		fmt.Fprintf(c.w, "    expected: %s\n", tr.Expected)
		fmt.Fprintf(c.w, "    actual:   %s\n", tr.Actual)
		return
	}
	c.indent(tr.Reason, "    ")
}

func (c *ConsoleReporter) indent(text, prefix string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(c.w, "%s%s\n", prefix, line)
	}
}

// failurePoint renders " at step N (participant)" for a failing trace.
func failurePoint(tr *engine.TraceResult) string {
	if tr == nil || tr.StepIndex < 0 {
		return ""
	}
	s := fmt.Sprintf(" at step %d", tr.StepIndex)
	if tr.Participant != "" {
		s += " (" + tr.Participant + ")"
	}
	return s
}
