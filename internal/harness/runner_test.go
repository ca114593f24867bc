package harness

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/ballotdriver"
	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/manifest"
	"github.com/roach88/conform/internal/store"
	"github.com/roach88/conform/internal/testutil"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister("ballot", ballotdriver.New)
	reg.MustRegister("ballot-buggy", ballotdriver.NewBuggy)
	return reg
}

func testRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRunIDs(NewFixedGenerator("run-1", "run-2", "run-3")),
		WithClock(testutil.NewDeterministicClock()),
		WithParallelism(2),
	}
	return NewRunner(testRegistry(t), append(base, opts...)...)
}

func loadTestSuite(t *testing.T) *Suite {
	t.Helper()
	suite, err := LoadSuite("testdata/suite.yaml")
	require.NoError(t, err)
	return suite
}

// TestRunSuite_Golden tests the ballot suite against its golden snapshot.
func TestRunSuite_Golden(t *testing.T) {
	res, err := testRunner(t).RunSuite(context.Background(), loadTestSuite(t))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, int64(1), res.Seq)
	assert.True(t, res.OK(), "buggy driver should fail where expected")
	assert.Empty(t, res.Failures())

	AssertGolden(t, "ballot", res)
}

// TestRunSuite_Deterministic tests that repeated runs produce identical
// snapshots.
func TestRunSuite_Deterministic(t *testing.T) {
	suite := loadTestSuite(t)

	first, err := testRunner(t, WithParallelism(1)).RunSuite(context.Background(), suite)
	require.NoError(t, err)
	second, err := testRunner(t, WithParallelism(4)).RunSuite(context.Background(), suite)
	require.NoError(t, err)

	a, err := MarshalSnapshot(first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

// TestRunSuite_InjectedClock tests that an injected clock stamps runs.
func TestRunSuite_InjectedClock(t *testing.T) {
	clock := testutil.NewDeterministicClock(41)
	r := testRunner(t, WithClock(clock))
	suite := loadTestSuite(t)

	first, err := r.RunSuite(context.Background(), suite)
	require.NoError(t, err)
	second, err := r.RunSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, int64(41), first.Seq)
	assert.Equal(t, int64(42), second.Seq)
	assert.Equal(t, []int64{41, 42}, clock.Issued())
}

// TestRunSuite_UnmetExpectation tests that a faulty driver without an
// expectation fails the suite.
func TestRunSuite_UnmetExpectation(t *testing.T) {
	suite := loadTestSuite(t)
	suite.Tests[1].Expect = nil

	res, err := testRunner(t).RunSuite(context.Background(), suite)
	require.NoError(t, err)

	assert.False(t, res.OK())
	require.Len(t, res.Failures(), 1)
	assert.Equal(t, "buggy-quorum", res.Failures()[0].Report.Test)
	assert.Equal(t, engine.StatusFailed, res.Status)
}

// TestRunSuite_SetupErrors tests that a test which cannot be built is
// reported as errored without stopping the suite.
func TestRunSuite_SetupErrors(t *testing.T) {
	suite := &Suite{
		Name: "broken",
		Dir:  "testdata",
		Tests: []TestSpec{
			{Name: "unknown-driver", Manifest: "ballot.cue", Driver: "raft", Traces: []string{"traces/*.itf.json"}},
			{Name: "no-files", Manifest: "ballot.cue", Driver: "ballot", Traces: []string{"traces/*.json.gz"}},
			{Name: "no-manifest", Manifest: "missing.cue", Driver: "ballot", Traces: []string{"traces/*.itf.json"}},
			{Name: "fine", Manifest: "ballot.cue", Driver: "ballot", Traces: []string{"traces/decides.itf.json"}},
		},
	}

	res, err := testRunner(t).RunSuite(context.Background(), suite)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)

	reasons := []string{"unknown driver", "no trace files match", "failed to read manifest"}
	for i, want := range reasons {
		rep := res.Outcomes[i].Report
		assert.Equal(t, engine.StatusErrored, rep.Status, rep.Test)
		assert.Contains(t, rep.Reason, want, rep.Test)
	}
	assert.True(t, res.Outcomes[3].OK())
	assert.Equal(t, engine.StatusErrored, res.Status)
	assert.False(t, res.OK())
}

// TestRunSuite_FactoryPanics tests that a driver factory which panics or
// returns nothing errors its test and the suite goes on.
func TestRunSuite_FactoryPanics(t *testing.T) {
	reg := testRegistry(t)
	reg.MustRegister("panics", func(*manifest.Manifest) (engine.Factory, error) {
		panic("embedded manifest is invalid")
	})
	reg.MustRegister("empty", func(*manifest.Manifest) (engine.Factory, error) {
		return nil, nil
	})
	suite := &Suite{
		Name: "factories",
		Dir:  "testdata",
		Tests: []TestSpec{
			{Name: "panics", Manifest: "ballot.cue", Driver: "panics", Traces: []string{"traces/decides.itf.json"}},
			{Name: "empty", Manifest: "ballot.cue", Driver: "empty", Traces: []string{"traces/decides.itf.json"}},
			{Name: "fine", Manifest: "ballot.cue", Driver: "ballot", Traces: []string{"traces/decides.itf.json"}},
		},
	}

	r := NewRunner(reg, WithLogger(slog.New(slog.DiscardHandler)))
	res, err := r.RunSuite(context.Background(), suite)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)

	panicked := res.Outcomes[0].Report
	assert.Equal(t, engine.StatusErrored, panicked.Status)
	assert.Contains(t, panicked.Reason, `driver "panics": driver panicked during setup: embedded manifest is invalid`)

	empty := res.Outcomes[1].Report
	assert.Equal(t, engine.StatusErrored, empty.Status)
	assert.Contains(t, empty.Reason, "no factory returned")

	assert.True(t, res.Outcomes[2].OK())
}

// TestRunSuite_SharedStore tests that runners sharing a store never reuse a
// seq the other has recorded.
func TestRunSuite_SharedStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "conform.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	suite := loadTestSuite(t)
	quiet := WithLogger(slog.New(slog.DiscardHandler))

	a := NewRunner(testRegistry(t), quiet, WithStore(st), WithRunIDs(NewFixedGenerator("a-1", "a-2")))
	b := NewRunner(testRegistry(t), quiet, WithStore(st), WithRunIDs(NewFixedGenerator("b-1")))

	var seqs []int64
	for _, r := range []*Runner{a, b, a} {
		res, err := r.RunSuite(ctx, suite)
		require.NoError(t, err)
		seqs = append(seqs, res.Seq)
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}

// TestRunSuite_Store tests that runs are recorded with increasing
// sequence numbers, resuming from the store.
func TestRunSuite_Store(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "conform.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	suite := loadTestSuite(t)
	quiet := WithLogger(slog.New(slog.DiscardHandler))

	r := NewRunner(testRegistry(t), quiet, WithStore(st), WithRunIDs(NewFixedGenerator("run-1", "run-2")))
	first, err := r.RunSuite(ctx, suite)
	require.NoError(t, err)
	second, err := r.RunSuite(ctx, suite)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)

	resumed := NewRunner(testRegistry(t), quiet, WithStore(st), WithRunIDs(NewFixedGenerator("run-3")))
	third, err := resumed.RunSuite(ctx, suite)
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.Seq)

	run, reports, err := st.ReadRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, "ballot", run.Suite)
	assert.Equal(t, engine.StatusFailed, run.Status)
	require.Len(t, reports, 2)

	// Reports are read back ordered by test name.
	assert.Equal(t, "buggy-quorum", reports[0].Test)
	require.NotNil(t, reports[0].FirstFailure)
	assert.Equal(t, 7, reports[0].FirstFailure.StepIndex)
	assert.Equal(t, "fixtures", reports[1].Test)
	assert.Len(t, reports[1].Traces, 3)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)

	divergent, err := st.FindNondeterministic(ctx)
	require.NoError(t, err)
	assert.Empty(t, divergent, "replaying fixed traces is deterministic")
}

// TestRunSuite_Command tests sampling traces from an external generator.
func TestRunSuite_Command(t *testing.T) {
	suite := &Suite{
		Name: "generated",
		Dir:  "testdata",
		Tests: []TestSpec{{
			Name:       "copy",
			Manifest:   "ballot.cue",
			Driver:     "ballot",
			Command:    []string{"cp", "traces/decides.itf.json", "{out}"},
			MaxSamples: 2,
			Seed:       40,
		}},
	}

	res, err := testRunner(t).RunSuite(context.Background(), suite)
	require.NoError(t, err)

	rep := res.Outcomes[0].Report
	require.Equal(t, engine.StatusPassed, rep.Status, rep.Reason)
	require.Len(t, rep.Traces, 2)
	assert.Contains(t, rep.Traces[0].Name, "(seed 40)")
	assert.Contains(t, rep.Traces[1].Name, "(seed 41)")
	assert.Equal(t, rep.Traces[0].Fingerprint, rep.Traces[1].Fingerprint)
}

// TestRunSuite_Hooks tests that hooks observe every trace.
func TestRunSuite_Hooks(t *testing.T) {
	var traces, steps atomic.Int64
	hooks := engine.Hooks{
		OnStep:      func(string, int, int, string) { steps.Add(1) },
		OnTraceDone: func(string, engine.TraceResult) { traces.Add(1) },
	}

	_, err := testRunner(t, WithHooks(hooks)).RunSuite(context.Background(), loadTestSuite(t))
	require.NoError(t, err)

	assert.Equal(t, int64(4), traces.Load())
	assert.Equal(t, int64(10+10+7+7), steps.Load())
}

// TestRunSuite_Cancelled tests that cancellation is returned as an error.
func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testRunner(t).RunSuite(ctx, loadTestSuite(t))
	require.ErrorIs(t, err, context.Canceled)
}

// TestBuild tests sampler selection and defaults.
func TestBuild(t *testing.T) {
	suite := loadTestSuite(t)
	r := testRunner(t, WithMaxSamples(5), WithFailFast(true), WithQuint("/opt/quint"))

	test, err := r.Build(suite, suite.Tests[0])
	require.NoError(t, err)
	assert.Equal(t, 3, test.MaxSamples, "defaults to the number of files")
	assert.True(t, test.FailFast)

	off := false
	model := TestSpec{Name: "m", Manifest: "ballot.cue", Driver: "ballot", Model: "ballot.qnt", FailFast: &off}
	test, err = r.Build(suite, model)
	require.NoError(t, err)
	assert.Equal(t, 5, test.MaxSamples)
	assert.False(t, test.FailFast)
}

func TestQuintCommand(t *testing.T) {
	run := QuintCommand("quint", TestSpec{Model: "ballot.qnt"})
	assert.Equal(t, []string{
		"quint", "run", "--mbt", "--max-samples=1",
		"--seed={seed}", "--out-itf={out}", "ballot.qnt",
	}, run)

	named := QuintCommand("quint", TestSpec{Model: "ballot.qnt", Main: "ballot", Test: "decidesTest"})
	assert.Equal(t, []string{
		"quint", "test", "--match=^decidesTest$", "--max-samples=1", "--main=ballot",
		"--seed={seed}", "--out-itf={out}", "ballot.qnt",
	}, named)
}
