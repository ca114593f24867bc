package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/testutil"
	"github.com/roach88/conform/internal/trace"
)

func TestNewSwitch_Exhaustive(t *testing.T) {
	handlers := counterHandlers()
	delete(handlers, "Tick")
	handlers["Decr"] = NoOp[*counter]

	_, err := NewSwitch(counterVocab(), handlers)
	var se *SwitchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"Tick"}, se.Missing)
	assert.Equal(t, []string{"Decr"}, se.Undeclared)
	assert.True(t, IsUnhandled(err))
	assert.Equal(t, "incomplete dispatch: no handler for Tick; handler for undeclared Decr", err.Error())
}

func TestNewSwitch_RequiresInit(t *testing.T) {
	handlers := counterHandlers()
	delete(handlers, ActionInit)

	_, err := NewSwitch(counterVocab(), handlers)
	var se *SwitchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{ActionInit}, se.Missing)
}

func TestNewSwitch_NilVocabulary(t *testing.T) {
	_, err := NewSwitch[*counter](nil, counterHandlers())
	assert.Error(t, err)
}

func dispatch(t *testing.T, sw *Switch[*counter], pool *Pool[*counter], step trace.Step) error {
	t.Helper()
	picks, err := NewResolver(sw.Vocabulary()).Resolve(step)
	require.NoError(t, err)
	return sw.Dispatch(pool, step, picks)
}

func TestDispatch_Targets(t *testing.T) {
	var calls []Call
	record := func(_ *Pool[*counter], call Call) error {
		calls = append(calls, call)
		return nil
	}
	handlers := counterHandlers()
	handlers["Incr"] = record
	handlers["Reset"] = record
	handlers["Tick"] = record

	sw, err := NewSwitch(counterVocab(), handlers)
	require.NoError(t, err)
	pool := NewPool[*counter]()

	steps := counterTrace(t).Steps()
	for _, s := range steps {
		require.NoError(t, dispatch(t, sw, pool, s))
	}

	require.Len(t, calls, 3)
	assert.Equal(t, []string{"a"}, calls[0].Targets, "one")
	assert.Empty(t, calls[1].Targets, "none")
	assert.Equal(t, []string{"a", "b", "c"}, calls[2].Targets, "all")
	assert.Equal(t, 3, calls[2].Step.Index)
}

func TestDispatch_InitResetsPool(t *testing.T) {
	sw, err := NewSwitch(counterVocab(), counterHandlers())
	require.NoError(t, err)
	pool := NewPool[*counter]()
	require.NoError(t, pool.Put("stale", &counter{n: 9}))

	b := counterTrace(t)
	require.NoError(t, dispatch(t, sw, pool, b.Step(0)))
	assert.Equal(t, []string{"a", "b", "c"}, pool.IDs())

	require.NoError(t, dispatch(t, sw, pool, b.Step(1)))
	a, _ := pool.Get("a")
	assert.Equal(t, int64(2), a.n)

	require.NoError(t, dispatch(t, sw, pool, b.Step(0)))
	a, _ = pool.Get("a")
	assert.Equal(t, int64(0), a.n, "a second init starts from fresh instances")
}

func TestDispatch_Errors(t *testing.T) {
	sw, err := NewSwitch(counterVocab(), counterHandlers())
	require.NoError(t, err)

	t.Run("missing participant pick", func(t *testing.T) {
		pool := NewPool[*counter]()
		b := testutil.NewTrace(t, counterRoot).
			Init(counters(0, 0, 0)).
			Transition("", "Incr", int64(1), counters(0, 0, 0))
		require.NoError(t, dispatch(t, sw, pool, b.Step(0)))

		err := dispatch(t, sw, pool, b.Step(1))
		var mf *trace.MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, []string{VarNondetPicks, "process"}, mf.Path)
	})

	t.Run("untracked participant", func(t *testing.T) {
		pool := NewPool[*counter]()
		b := testutil.NewTrace(t, counterRoot).
			Init(counters(0, 0, 0)).
			Transition("z", "Incr", int64(1), counters(0, 0, 0))
		require.NoError(t, dispatch(t, sw, pool, b.Step(0)))

		err := dispatch(t, sw, pool, b.Step(1))
		var ue *UnknownParticipantError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "z", ue.Participant)
		assert.Equal(t, MissingInDriver, ue.MissingIn)
	})

	t.Run("undeclared action", func(t *testing.T) {
		pool := NewPool[*counter]()
		err := sw.Dispatch(pool, trace.Step{Index: 4}, NondetPicks{Action: "Decr"})
		var ue *UnhandledTransitionError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, 4, ue.Step)
	})

	t.Run("poisoned", func(t *testing.T) {
		pool := NewPool[*counter]()
		pool.Poison(errors.New("boom"))
		err := sw.Dispatch(pool, trace.Step{}, NondetPicks{Action: ActionInit})
		assert.ErrorIs(t, err, ErrPoisoned)
	})

	t.Run("handler error is wrapped", func(t *testing.T) {
		pool := NewPool[*counter]()
		b := testutil.NewTrace(t, counterRoot).
			Init(counters(0, 0, 0)).
			Transition("a", "Incr", "two", counters(0, 0, 0))
		require.NoError(t, dispatch(t, sw, pool, b.Step(0)))

		err := dispatch(t, sw, pool, b.Step(1))
		require.Error(t, err)
		assert.True(t, trace.IsTypeMismatch(err))
		assert.Contains(t, err.Error(), "Incr: a: ")
	})
}

func TestInitEach_CreateError(t *testing.T) {
	h := InitEach(func(id string, _ Call) (*counter, error) {
		if id == "b" {
			return nil, errors.New("no b")
		}
		return &counter{}, nil
	})
	err := h(NewPool[*counter](), Call{Targets: []string{"a", "b"}})
	assert.EqualError(t, err, "create b: no b")
}
