package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/itf"
	"github.com/roach88/conform/internal/trace"
)

// Variable names written by Quint's --mbt mode.
const (
	NondetPicksVar = "mbt::nondetPicks"
	ActionTakenVar = "mbt::actionTaken"
)

// TraceBuilder builds ITF traces step by step.
//
//	tr := testutil.NewTrace(t, "ballot::state").
//	    Init(system).
//	    Transition("p3", "Timeout", nil, next).
//	    Trace()
//
// System states are Go values converted with itf.From; a participant's
// state is usually the same struct the driver decodes.
type TraceBuilder struct {
	t     testing.TB
	root  string
	steps []trace.Step
}

// NewTrace starts a trace whose system map lives at [stateRoot, "system"].
func NewTrace(t testing.TB, stateRoot string) *TraceBuilder {
	return &TraceBuilder{t: t, root: stateRoot}
}

// Init appends a step with no transition pick.
func (b *TraceBuilder) Init(system map[string]any) *TraceBuilder {
	return b.Raw(b.state(system, "init", InitPicks()))
}

// Transition appends a step whose picks name participant (empty for none)
// and the label variant with params (nil for unit).
func (b *TraceBuilder) Transition(participant, label string, params any, system map[string]any) *TraceBuilder {
	return b.Raw(b.state(system, label, Picks(b.t, participant, label, params)))
}

// Raw appends a step with an arbitrary state.
func (b *TraceBuilder) Raw(state itf.Record) *TraceBuilder {
	b.steps = append(b.steps, trace.Step{Index: len(b.steps), State: state})
	return b
}

// Steps returns the steps built so far.
func (b *TraceBuilder) Steps() []trace.Step {
	return b.steps
}

// Step returns step i.
func (b *TraceBuilder) Step(i int) trace.Step {
	b.t.Helper()
	require.Less(b.t, i, len(b.steps), "no step %d", i)
	return b.steps[i]
}

// Trace returns the steps as a fingerprinted trace.
func (b *TraceBuilder) Trace() *trace.Trace {
	b.t.Helper()
	states := make([]itf.Record, len(b.steps))
	for i, s := range b.steps {
		states[i] = s.State
	}
	fp, err := itf.Fingerprint(states)
	require.NoError(b.t, err)
	return &trace.Trace{
		Meta:        trace.Meta{Format: "ITF", Source: "testutil"},
		Vars:        []string{b.root, ActionTakenVar, NondetPicksVar},
		Steps:       b.steps,
		Fingerprint: fp,
		Name:        b.t.Name(),
	}
}

// WriteFile encodes the trace as an ITF file under dir and returns its path.
func (b *TraceBuilder) WriteFile(dir, name string) string {
	b.t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(b.t, err)
	defer f.Close()
	require.NoError(b.t, b.Trace().Encode(f))
	return path
}

func (b *TraceBuilder) state(system map[string]any, action string, picks itf.Record) itf.Record {
	b.t.Helper()
	return itf.Record{
		b.root:         itf.Record{"system": System(b.t, system)},
		ActionTakenVar: itf.Str(action),
		NondetPicksVar: picks,
	}
}

// System converts per-participant states into an ITF map keyed by id.
func System(t testing.TB, states map[string]any) itf.Map {
	t.Helper()
	entries := make([]itf.Entry, 0, len(states))
	for id, s := range states {
		entries = append(entries, itf.Entry{Key: itf.Str(id), Value: From(t, s)})
	}
	return itf.NewMap(entries...)
}

// From converts a Go value with itf.From, failing the test on error.
func From(t testing.TB, v any) itf.Value {
	t.Helper()
	out, err := itf.From(v)
	require.NoError(t, err)
	return out
}

// InitPicks returns the picks record of an init step.
func InitPicks() itf.Record {
	return itf.Record{
		"process":    itf.None(),
		"transition": itf.None(),
	}
}

// Picks returns the picks record of a transition step.
func Picks(t testing.TB, participant, label string, params any) itf.Record {
	t.Helper()
	process := itf.Value(itf.None())
	if participant != "" {
		process = itf.Some(itf.Str(participant))
	}
	var payload itf.Value = itf.Unit
	if params != nil {
		payload = From(t, params)
	}
	return itf.Record{
		"process":    process,
		"transition": itf.Some(itf.Record{"label": itf.Variant(label, payload)}),
	}
}
