package harness

import (
	"github.com/roach88/conform/internal/engine"
)

// Outcome is the result of one declared test: its report and, when the test
// declares an expectation, whether the report met it.
type Outcome struct {
	Report *engine.Report `json:"report"`

	// Expect is the test's declared expectation, or nil.
	Expect *Expectation `json:"expect,omitempty"`

	// Err is an *AssertionError when the report did not meet Expect.
	Err error `json:"-"`
}

// OK reports whether the test met its expectation. Without one, every trace
// must have passed.
func (o Outcome) OK() bool {
	if o.Expect == nil {
		return o.Report.Passed()
	}
	return o.Err == nil
}

// SuiteResult is the outcome of a suite run.
type SuiteResult struct {
	RunID string `json:"run_id"`
	Seq   int64  `json:"seq"`
	Suite string `json:"suite"`

	// Status is the status of the first test that did not pass, in declared
	// order, or passed.
	Status engine.TraceStatus `json:"status"`

	Outcomes []Outcome `json:"outcomes"`
}

// OK reports whether every test met its expectation.
func (r *SuiteResult) OK() bool {
	for _, o := range r.Outcomes {
		if !o.OK() {
			return false
		}
	}
	return true
}

// Reports returns the test reports in declared order.
func (r *SuiteResult) Reports() []*engine.Report {
	reports := make([]*engine.Report, len(r.Outcomes))
	for i, o := range r.Outcomes {
		reports[i] = o.Report
	}
	return reports
}

// Failures returns the outcomes that did not meet their expectation.
func (r *SuiteResult) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// suiteStatus derives the suite status from reports in declared order.
func suiteStatus(reports []*engine.Report) engine.TraceStatus {
	for _, rep := range reports {
		if !rep.Passed() {
			return rep.Status
		}
	}
	return engine.StatusPassed
}
