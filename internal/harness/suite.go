package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Suite is a list of declared conformance tests.
//
//	name: ballot
//	tests:
//	  - name: ballot-decides
//	    manifest: ballot.cue
//	    driver: ballot
//	    traces: ["traces/*.itf.json"]
//	  - name: ballot-sampled
//	    model: ballot.qnt
//	    main: ballot
//	    manifest: ballot.cue
//	    driver: ballot
//	    max_samples: 20
//	  - name: buggy-quorum
//	    manifest: ballot.cue
//	    driver: ballot-buggy
//	    traces: ["traces/late_quorum.itf.json"]
//	    expect: {status: failed, step: 7, participant: p1}
//
// Paths are relative to the suite file.
type Suite struct {
	// Name identifies the suite in run history.
	Name string `yaml:"name"`

	// Description explains what the suite covers.
	Description string `yaml:"description,omitempty"`

	Tests []TestSpec `yaml:"tests"`

	// Dir is the directory paths are resolved against. Set by LoadSuite.
	Dir string `yaml:"-"`
}

// TestSpec declares one test: where its traces come from and which driver
// replays them.
type TestSpec struct {
	// Name uniquely identifies the test within the suite.
	Name string `yaml:"name"`

	// Model is the Quint model file. When neither Traces nor Command is set,
	// traces are generated from it with quint.
	Model string `yaml:"model,omitempty"`

	// Test is the Quint test (run) to sample. Empty samples the model's
	// step action with `quint run`.
	Test string `yaml:"test,omitempty"`

	// Main is the Quint main module.
	Main string `yaml:"main,omitempty"`

	// Manifest is the CUE manifest of the model. Required.
	Manifest string `yaml:"manifest"`

	// Driver names a registered driver. Required.
	Driver string `yaml:"driver"`

	// MaxSamples bounds the sampled traces. Zero takes the runner default:
	// every matching file for Traces, one sample for a command.
	MaxSamples int `yaml:"max_samples,omitempty"`

	// Traces lists glob patterns of ITF files.
	Traces []string `yaml:"traces,omitempty"`

	// Command is an external trace generator (see trace.CommandSampler).
	Command []string `yaml:"command,omitempty"`

	// Seed is the base seed for generated traces.
	Seed int64 `yaml:"seed,omitempty"`

	// FailFast overrides the runner default.
	FailFast *bool `yaml:"fail_fast,omitempty"`

	// Expect declares the expected outcome. Nil expects every trace to pass.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// Expectation is the expected outcome of a test whose traces are meant to
// diverge, such as a deliberately faulty driver.
type Expectation struct {
	// Status is the expected report status: passed, failed or errored.
	Status string `yaml:"status"`

	// Step is the expected failing step of the first failing trace.
	Step *int `yaml:"step,omitempty"`

	// Participant is the expected participant of the first failing trace.
	Participant string `yaml:"participant,omitempty"`

	// Code is the expected error code of the first failing trace.
	Code string `yaml:"code,omitempty"`
}

// PathNotFoundError is returned when a suite references a file that does
// not exist.
type PathNotFoundError struct {
	Test         string
	Field        string
	Path         string
	ResolvedPath string
}

// Error implements the error interface.
func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf(
		"test %q: %s %q does not exist (resolved to: %s)",
		e.Test,
		e.Field,
		e.Path,
		e.ResolvedPath,
	)
}

// LoadSuite reads and parses a suite YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	suite, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	suite.Dir = filepath.Dir(path)

	if err := suite.checkPaths(); err != nil {
		return nil, err
	}
	return suite, nil
}

// ParseSuite decodes suite YAML with strict field validation.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return &suite, nil
}

// Validate checks required fields and conflicting options.
func (s *Suite) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite: name is required")
	}
	if len(s.Tests) == 0 {
		return fmt.Errorf("suite %q: no tests declared", s.Name)
	}

	seen := make(map[string]bool, len(s.Tests))
	for i, t := range s.Tests {
		if t.Name == "" {
			return fmt.Errorf("suite %q: test %d: name is required", s.Name, i)
		}
		if seen[t.Name] {
			return fmt.Errorf("suite %q: duplicate test %q", s.Name, t.Name)
		}
		seen[t.Name] = true

		if err := t.validate(); err != nil {
			return fmt.Errorf("suite %q: test %q: %w", s.Name, t.Name, err)
		}
	}
	return nil
}

func (t TestSpec) validate() error {
	switch {
	case t.Manifest == "":
		return fmt.Errorf("manifest is required")
	case t.Driver == "":
		return fmt.Errorf("driver is required")
	case t.MaxSamples < 0:
		return fmt.Errorf("max_samples must not be negative")
	case len(t.Traces) > 0 && len(t.Command) > 0:
		return fmt.Errorf("traces and command are mutually exclusive")
	case len(t.Traces) == 0 && len(t.Command) == 0 && t.Model == "":
		return fmt.Errorf("one of traces, command or model is required")
	}
	if t.Expect != nil {
		switch t.Expect.Status {
		case "passed", "failed", "errored":
		default:
			return fmt.Errorf("expect.status must be passed, failed or errored, got %q", t.Expect.Status)
		}
	}
	return nil
}

// checkPaths verifies that referenced manifest and model files exist.
func (s *Suite) checkPaths() error {
	for _, t := range s.Tests {
		for field, p := range map[string]string{"manifest": t.Manifest, "model": t.Model} {
			if p == "" {
				continue
			}
			resolved := s.Resolve(p)
			if _, err := os.Stat(resolved); os.IsNotExist(err) {
				return &PathNotFoundError{Test: t.Name, Field: field, Path: p, ResolvedPath: resolved}
			}
		}
	}
	return nil
}

// Resolve resolves p against the suite directory.
func (s *Suite) Resolve(p string) string {
	if filepath.IsAbs(p) || s.Dir == "" {
		return p
	}
	return filepath.Join(s.Dir, p)
}

// Lookup returns the test named name.
func (s *Suite) Lookup(name string) (TestSpec, bool) {
	for _, t := range s.Tests {
		if t.Name == name {
			return t, true
		}
	}
	return TestSpec{}, false
}

// Select returns a copy of the suite restricted to the named tests, in
// declared order. No names selects every test.
func (s *Suite) Select(names ...string) (*Suite, error) {
	if len(names) == 0 {
		return s, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := s.Lookup(n); !ok {
			return nil, fmt.Errorf("suite %q: no test named %q", s.Name, n)
		}
		want[n] = true
	}

	out := *s
	out.Tests = nil
	for _, t := range s.Tests {
		if want[t.Name] {
			out.Tests = append(out.Tests, t)
		}
	}
	return &out, nil
}
