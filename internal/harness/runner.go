package harness

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/manifest"
	"github.com/roach88/conform/internal/store"
	"github.com/roach88/conform/internal/trace"
)

// Defaults for tests that do not declare max_samples.
const (
	// DefaultMaxSamples bounds generated traces.
	DefaultMaxSamples = 10

	// DefaultQuint is the quint executable used for model tests.
	DefaultQuint = "quint"
)

// SeqClock stamps runs with monotonically increasing sequence numbers.
// Implemented by engine.Clock and testutil.DeterministicClock.
type SeqClock interface {
	Next() int64
}

// Runner executes suites against registered drivers.
type Runner struct {
	registry    *Registry
	store       *store.Store
	ids         RunIDGenerator
	clock       SeqClock
	seq         *engine.Clock
	logger      *slog.Logger
	parallelism int
	maxSamples  int
	failFast    bool
	quint       string
	hooks       engine.Hooks
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore records every run in s.
func WithStore(s *store.Store) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// WithRunIDs sets the run id generator. The default is UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(r *Runner) {
		r.ids = g
	}
}

// WithClock sets the sequence clock. By default each run resumes after the
// highest seq in the store, or counts from zero without one.
func WithClock(c SeqClock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithParallelism sets the number of concurrent traces per test.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		r.parallelism = n
	}
}

// WithMaxSamples sets the sample bound of generated traces for tests that
// do not declare one.
func WithMaxSamples(n int) Option {
	return func(r *Runner) {
		r.maxSamples = n
	}
}

// WithFailFast sets the fail-fast default for tests that do not declare it.
func WithFailFast(on bool) Option {
	return func(r *Runner) {
		r.failFast = on
	}
}

// WithQuint sets the quint executable.
func WithQuint(path string) Option {
	return func(r *Runner) {
		r.quint = path
	}
}

// WithHooks installs execution hooks on every test.
func WithHooks(h engine.Hooks) Option {
	return func(r *Runner) {
		r.hooks = h
	}
}

// NewRunner creates a runner over the drivers in reg.
func NewRunner(reg *Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:    reg,
		ids:         UUIDv7Generator{},
		parallelism: engine.DefaultParallelism,
		maxSamples:  DefaultMaxSamples,
		quint:       DefaultQuint,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.maxSamples < 1 {
		r.maxSamples = DefaultMaxSamples
	}
	return r
}

// RunSuite runs every test of the suite in declared order. A test that
// cannot be set up (unreadable manifest, unknown driver, no trace files) is
// reported as errored and the suite continues.
//
// The returned error is reserved for store failures and cancellation; test
// failures are reported in the result.
func (r *Runner) RunSuite(ctx context.Context, suite *Suite) (*SuiteResult, error) {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return nil, err
	}
	res := &SuiteResult{RunID: r.ids.Generate(), Seq: seq, Suite: suite.Name}
	log := r.logger.With("run", res.RunID, "suite", suite.Name)

	if r.store != nil {
		run := store.Run{ID: res.RunID, Seq: seq, Suite: suite.Name}
		if err := r.store.WriteRun(ctx, run); err != nil {
			return nil, err
		}
	}
	log.Info("suite starting", "seq", seq, "tests", len(suite.Tests))

	exec := engine.NewExecutor(
		engine.WithParallelism(r.parallelism),
		engine.WithLogger(r.logger),
		engine.WithHooks(r.hooks),
	)
	for _, spec := range suite.Tests {
		rep, err := r.runTest(ctx, exec, suite, spec)
		if err != nil {
			r.abort(ctx, res.RunID)
			return nil, err
		}
		out := Outcome{Report: rep, Expect: spec.Expect}
		if err := CheckExpectation(rep, spec.Expect); err != nil {
			out.Err = err
		}
		res.Outcomes = append(res.Outcomes, out)

		if r.store != nil {
			if err := r.store.WriteReport(ctx, res.RunID, rep); err != nil {
				return nil, err
			}
		}
	}

	res.Status = suiteStatus(res.Reports())
	if r.store != nil {
		if err := r.store.FinishRun(ctx, res.RunID, res.Status); err != nil {
			return nil, err
		}
	}
	log.Info("suite finished", "status", res.Status, "ok", res.OK())
	return res, nil
}

// abort marks an interrupted run as errored so it does not stay running.
func (r *Runner) abort(ctx context.Context, runID string) {
	if r.store == nil {
		return
	}
	if err := r.store.FinishRun(context.WithoutCancel(ctx), runID, engine.StatusErrored); err != nil {
		r.logger.Error("failed to finish run", "run", runID, "err", err)
	}
}

func (r *Runner) nextSeq(ctx context.Context) (int64, error) {
	if r.clock != nil {
		return r.clock.Next(), nil
	}
	if r.seq == nil {
		r.seq = engine.NewClock()
	}
	if r.store != nil {
		next, err := r.store.NextSeq(ctx)
		if err != nil {
			return 0, err
		}
		r.seq.Advance(next - 1)
	}
	return r.seq.Next(), nil
}

// runTest sets up and runs one test. Setup errors become an errored report.
func (r *Runner) runTest(ctx context.Context, exec *engine.Executor, suite *Suite, spec TestSpec) (*engine.Report, error) {
	test, err := r.Build(suite, spec)
	if err != nil {
		r.logger.Error("test setup failed", "test", spec.Name, "err", err)
		return &engine.Report{Test: spec.Name, Status: engine.StatusErrored, Reason: err.Error()}, nil
	}
	return exec.Run(ctx, test)
}

// Build resolves a declared test into an executable one: it loads the
// manifest, instantiates the driver and selects the trace sampler.
func (r *Runner) Build(suite *Suite, spec TestSpec) (engine.Test, error) {
	m, err := manifest.Load(suite.Resolve(spec.Manifest))
	if err != nil {
		return engine.Test{}, err
	}
	df, err := r.registry.Lookup(spec.Driver)
	if err != nil {
		return engine.Test{}, err
	}
	factory, err := newFactory(df, m)
	if err != nil {
		return engine.Test{}, fmt.Errorf("driver %q: %w", spec.Driver, err)
	}
	if factory == nil {
		return engine.Test{}, fmt.Errorf("driver %q: no factory returned", spec.Driver)
	}

	test := engine.Test{
		Name:       spec.Name,
		NewDriver:  factory,
		MaxSamples: spec.MaxSamples,
		FailFast:   r.failFast,
	}
	if spec.FailFast != nil {
		test.FailFast = *spec.FailFast
	}

	if len(spec.Traces) > 0 {
		patterns := make([]string, len(spec.Traces))
		for i, p := range spec.Traces {
			patterns[i] = suite.Resolve(p)
		}
		fs, err := trace.NewGlobSampler(patterns...)
		if err != nil {
			return engine.Test{}, err
		}
		test.Sampler = fs
		if test.MaxSamples == 0 {
			test.MaxSamples = len(fs.Paths)
		}
		return test, nil
	}

	args := spec.Command
	if len(args) == 0 {
		args = QuintCommand(r.quint, spec)
	}
	if test.MaxSamples == 0 {
		test.MaxSamples = r.maxSamples
	}
	test.Sampler = &trace.CommandSampler{
		Args:  args,
		Dir:   suite.Dir,
		Seed:  spec.Seed,
		Limit: test.MaxSamples,
	}
	return test, nil
}

// newFactory calls df, turning a panic into an error.
func newFactory(df DriverFactory, m *manifest.Manifest) (f engine.Factory, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &engine.PanicError{Step: -1, Value: rec, Stack: debug.Stack()}
		}
	}()
	return df(m)
}

// QuintCommand returns the generator command for a model test. A named Quint
// test is sampled with `quint test`, otherwise the model's step action is
// simulated with `quint run --mbt`. Each invocation yields one trace.
func QuintCommand(quint string, spec TestSpec) []string {
	var args []string
	if spec.Test != "" {
		args = []string{quint, "test", "--match=^" + spec.Test + "$", "--max-samples=1"}
	} else {
		args = []string{quint, "run", "--mbt", "--max-samples=1"}
	}
	if spec.Main != "" {
		args = append(args, "--main="+spec.Main)
	}
	return append(args,
		"--seed="+trace.PlaceholderSeed,
		"--out-itf="+trace.PlaceholderOut,
		spec.Model,
	)
}
