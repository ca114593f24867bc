package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/itf"
	"github.com/roach88/conform/internal/testutil"
	"github.com/roach88/conform/internal/trace"
)

func counterPool(t *testing.T, values map[string]int64) *Pool[*counter] {
	t.Helper()
	p := NewPool[*counter]()
	for id, n := range values {
		require.NoError(t, p.Put(id, &counter{n: n}))
	}
	return p
}

var counterCmp = Comparator[counterState, *counter]{StateRoot: counterRoot, Project: projectCounter}

func TestCheck_Match(t *testing.T) {
	step := testutil.NewTrace(t, counterRoot).Init(counters(1, 2, 3)).Step(0)
	pool := counterPool(t, map[string]int64{"a": 1, "b": 2, "c": 3})
	assert.NoError(t, counterCmp.Check(step, pool))
}

func TestCheck_CollectsAllMismatches(t *testing.T) {
	step := testutil.NewTrace(t, counterRoot).Init(counters(1, 2, 3)).Step(0)
	pool := counterPool(t, map[string]int64{"a": 1, "b": 7, "c": 8})

	err := counterCmp.Check(step, pool)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	require.Len(t, me.Mismatches, 2)

	primary := me.Primary()
	assert.Equal(t, "b", primary.Participant)
	assert.Equal(t, counterState{N: 2}, primary.Expected)
	assert.Equal(t, counterState{N: 7}, primary.Actual)
	assert.Equal(t, "c", me.Mismatches[1].Participant)

	assert.Equal(t,
		`state mismatch at step 0 for participant b: expected {"n":{"#bigint":"2"}}, actual {"n":{"#bigint":"7"}} (also: c)`,
		err.Error())
}

func TestCheck_ParticipantSets(t *testing.T) {
	step := testutil.NewTrace(t, counterRoot).Init(counters(0, 0, 0)).Step(0)

	t.Run("missing in driver", func(t *testing.T) {
		err := counterCmp.Check(step, counterPool(t, map[string]int64{"a": 0, "b": 0}))
		var ue *UnknownParticipantError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "c", ue.Participant)
		assert.Equal(t, MissingInDriver, ue.MissingIn)
	})

	t.Run("missing in model", func(t *testing.T) {
		err := counterCmp.Check(step, counterPool(t, map[string]int64{"a": 0, "b": 0, "c": 0, "d": 0}))
		var ue *UnknownParticipantError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "d", ue.Participant)
		assert.Equal(t, MissingInModel, ue.MissingIn)
	})
}

func TestCheck_LookupErrors(t *testing.T) {
	pool := counterPool(t, map[string]int64{"a": 0})

	t.Run("no system", func(t *testing.T) {
		step := trace.Step{Index: 2, State: itf.Record{counterRoot: itf.Record{}}}
		err := counterCmp.Check(step, pool)
		var mf *trace.MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, []string{counterRoot, "system"}, mf.Path)
		assert.Equal(t, 2, mf.Step)
	})

	t.Run("system not a map", func(t *testing.T) {
		step := trace.Step{State: itf.Record{counterRoot: itf.Record{"system": itf.Str("x")}}}
		assert.True(t, trace.IsTypeMismatch(counterCmp.Check(step, pool)))
	})

	t.Run("state of wrong shape", func(t *testing.T) {
		step := trace.Step{State: itf.Record{counterRoot: itf.Record{
			"system": itf.Record{"a": itf.Record{"n": itf.Str("zero")}},
		}}}
		assert.True(t, trace.IsTypeMismatch(counterCmp.Check(step, pool)))
	})

	t.Run("state without a declared field", func(t *testing.T) {
		step := trace.Step{Index: 3, State: itf.Record{counterRoot: itf.Record{
			"system": itf.Record{"a": itf.Record{}},
		}}}
		err := counterCmp.Check(step, pool)
		var mf *trace.MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, []string{counterRoot, "system", "a", "n"}, mf.Path)
		assert.Equal(t, 3, mf.Step)
		assert.False(t, IsMismatch(err))

		status, code := Classify(err)
		assert.Equal(t, StatusErrored, status)
		assert.Equal(t, ErrCodeMissingField, code)
	})

	t.Run("state with an undeclared field", func(t *testing.T) {
		step := trace.Step{State: itf.Record{counterRoot: itf.Record{
			"system": itf.Record{"a": itf.Record{"n": itf.NewInt(0), "extra": itf.Bool(true)}},
		}}}
		err := counterCmp.Check(step, pool)
		assert.True(t, trace.IsTypeMismatch(err))
		assert.False(t, IsMismatch(err))
		assert.Contains(t, err.Error(), "unexpected field extra")
	})
}

func TestCheck_CustomSystemFieldAndEqual(t *testing.T) {
	step := trace.Step{State: itf.Record{counterRoot: itf.Record{
		"nodes": testutil.System(t, map[string]any{"a": counterState{N: 10}}),
	}}}
	cmp := Comparator[counterState, *counter]{
		StateRoot:   counterRoot,
		SystemField: "nodes",
		Project:     projectCounter,
		Equal: func(expected, actual counterState) bool {
			return expected.N/10 == actual.N/10
		},
	}
	assert.NoError(t, cmp.Check(step, counterPool(t, map[string]int64{"a": 13})))
}

func TestCheck_NilProjection(t *testing.T) {
	err := Comparator[counterState, *counter]{StateRoot: counterRoot}.Check(trace.Step{}, NewPool[*counter]())
	assert.Error(t, err)
}

func TestStatesEqual(t *testing.T) {
	type s struct {
		Votes []string `itf:"votes"`
	}
	assert.True(t, StatesEqual(s{}, s{Votes: []string{}}), "nil and empty slices render alike")
	assert.False(t, StatesEqual(s{Votes: []string{"a"}}, s{}))

	type opaque struct{ Ch chan int }
	ch := make(chan int)
	assert.True(t, StatesEqual(opaque{Ch: ch}, opaque{Ch: ch}))
}

func TestRender(t *testing.T) {
	assert.Equal(t, `{"n":{"#bigint":"3"}}`, Render(counterState{N: 3}))
	assert.Equal(t, "<nil>", Render(nil))
}

func TestParticipantIDs(t *testing.T) {
	step := testutil.NewTrace(t, counterRoot).Init(counters(0, 0, 0)).Step(0)
	ids, err := ParticipantIDs(step, counterRoot, "system")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
