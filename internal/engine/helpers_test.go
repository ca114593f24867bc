package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/testutil"
	"github.com/roach88/conform/internal/trace"
)

const counterRoot = "counter::state"

// counter is a minimal system under test: three participants, each holding
// an integer.
type counter struct {
	n int64
}

type counterState struct {
	N int64 `itf:"n"`
}

func projectCounter(c *counter) counterState {
	return counterState{N: c.n}
}

func counterVocab() *Vocabulary {
	return MustVocabulary([]string{"a", "b", "c"},
		Transition{Name: "Incr", Target: TargetOne, Params: []string{"by"}},
		Transition{Name: "Reset", Target: TargetAll},
		Transition{Name: "Tick", Target: TargetNone},
	)
}

func counterHandlers() map[string]Handler[*counter] {
	return map[string]Handler[*counter]{
		ActionInit: InitEach(func(string, Call) (*counter, error) {
			return &counter{}, nil
		}),
		"Incr": EachTarget(func(_ string, c *counter, call Call) error {
			by, err := Param[int64](call.Picks)
			if err != nil {
				return err
			}
			c.n += by
			return nil
		}),
		"Reset": EachTarget(func(_ string, c *counter, _ Call) error {
			c.n = 0
			return nil
		}),
		"Tick": NoOp[*counter],
	}
}

func newCounterMachine(t testing.TB, handlers map[string]Handler[*counter]) *Machine[counterState, *counter] {
	t.Helper()
	vocab := counterVocab()
	sw, err := NewSwitch(vocab, handlers)
	require.NoError(t, err)
	return NewMachine(NewResolver(vocab), sw, Comparator[counterState, *counter]{
		StateRoot: counterRoot,
		Project:   projectCounter,
	})
}

func counterFactory(t testing.TB, handlers map[string]Handler[*counter]) Factory {
	return func() (Driver, error) {
		return newCounterMachine(t, handlers), nil
	}
}

// counters returns the system map for the given values of a, b and c.
func counters(a, b, c int64) map[string]any {
	return map[string]any{
		"a": counterState{N: a},
		"b": counterState{N: b},
		"c": counterState{N: c},
	}
}

// counterTrace is init followed by Incr a by 2, Tick and Reset.
func counterTrace(t testing.TB) *testutil.TraceBuilder {
	return testutil.NewTrace(t, counterRoot).
		Init(counters(0, 0, 0)).
		Transition("a", "Incr", int64(2), counters(2, 0, 0)).
		Transition("", "Tick", nil, counters(2, 0, 0)).
		Transition("b", "Reset", nil, counters(0, 0, 0))
}

// stepAll applies and checks every step, stopping at the first error.
func stepAll(d Driver, steps []trace.Step) error {
	for _, s := range steps {
		if err := d.Step(s); err != nil {
			return err
		}
		if err := d.Check(s); err != nil {
			return err
		}
	}
	return nil
}
