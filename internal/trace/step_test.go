package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/itf"
)

func sampleStep() Step {
	return Step{
		Index: 4,
		State: itf.Record{
			"m::state": itf.Record{
				"system": itf.NewMap(
					itf.Entry{Key: itf.Str("p1"), Value: itf.Record{"round": itf.NewInt(2), "stage": itf.Str("idle")}},
				),
				"byRound": itf.NewMap(
					itf.Entry{Key: itf.NewInt(3), Value: itf.Str("three")},
				),
			},
		},
	}
}

func TestLookupRecordAndMap(t *testing.T) {
	v, err := Lookup(sampleStep(), "m::state", "system", "p1", "round")
	require.NoError(t, err)
	assert.True(t, itf.Equal(itf.NewInt(2), v))
}

func TestLookupIntegerMapKey(t *testing.T) {
	v, err := Lookup(sampleStep(), "m::state", "byRound", "3")
	require.NoError(t, err)
	assert.Equal(t, itf.Str("three"), v)
}

func TestLookupEmptyPathReturnsState(t *testing.T) {
	step := sampleStep()
	v, err := Lookup(step)
	require.NoError(t, err)
	assert.True(t, itf.Equal(step.State, v))
}

func TestLookupMissingField(t *testing.T) {
	_, err := Lookup(sampleStep(), "m::state", "system", "p9", "round")
	require.Error(t, err)
	assert.True(t, IsMissingField(err))

	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, 4, mf.Step)
	assert.Equal(t, 2, mf.Resolved)
	assert.Equal(t, []string{"m::state", "system", "p9", "round"}, mf.Path)
	assert.Contains(t, err.Error(), `no "p9" under "m::state.system"`)
}

func TestLookupThroughScalarIsMissing(t *testing.T) {
	_, err := Lookup(sampleStep(), "m::state", "system", "p1", "round", "deeper")
	assert.True(t, IsMissingField(err))
}

func TestGetTyped(t *testing.T) {
	round, err := Get[int64](sampleStep(), "m::state", "system", "p1", "round")
	require.NoError(t, err)
	assert.Equal(t, int64(2), round)

	type node struct {
		Round int    `itf:"round"`
		Stage string `itf:"stage"`
	}
	n, err := Get[node](sampleStep(), "m::state", "system", "p1")
	require.NoError(t, err)
	assert.Equal(t, node{Round: 2, Stage: "idle"}, n)
}

func TestGetTypeMismatch(t *testing.T) {
	_, err := Get[string](sampleStep(), "m::state", "system", "p1", "round")
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))
	assert.False(t, IsMissingField(err))

	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "string", tm.Want)
	assert.Equal(t, "int", tm.Got)
	assert.Equal(t, 4, tm.Step)
}

func TestGetExactRecordFields(t *testing.T) {
	type node struct {
		Round int64    `itf:"round"`
		Stage string   `itf:"stage"`
		Votes []string `itf:"votes"`
	}

	t.Run("missing field", func(t *testing.T) {
		_, err := Get[node](sampleStep(), "m::state", "system", "p1")
		require.Error(t, err)
		assert.False(t, IsTypeMismatch(err))

		var mf *MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, []string{"m::state", "system", "p1", "votes"}, mf.Path)
		assert.Equal(t, 3, mf.Resolved)
		assert.Equal(t, 4, mf.Step)
	})

	t.Run("undeclared field", func(t *testing.T) {
		type round struct {
			Round int64 `itf:"round"`
		}
		_, err := Get[round](sampleStep(), "m::state", "system", "p1")
		require.Error(t, err)
		assert.True(t, IsTypeMismatch(err))
		assert.Contains(t, err.Error(), "unexpected field stage")
	})
}

func TestGetIntegerRange(t *testing.T) {
	step := Step{State: itf.Record{"big": itf.NewInt(300), "neg": itf.NewInt(-1)}}

	_, err := Get[int8](step, "big")
	assert.True(t, IsTypeMismatch(err))

	n, err := Get[int16](step, "big")
	require.NoError(t, err)
	assert.Equal(t, int16(300), n)

	_, err = Get[uint32](step, "neg")
	assert.True(t, IsTypeMismatch(err))
}

func TestGetMissingIsNotTypeMismatch(t *testing.T) {
	_, err := Get[int64](sampleStep(), "nope")
	assert.True(t, IsMissingField(err))
	assert.False(t, IsTypeMismatch(err))
}

func TestStepVar(t *testing.T) {
	_, ok := sampleStep().Var("m::state")
	assert.True(t, ok)
	_, ok = sampleStep().Var("other")
	assert.False(t, ok)
}
