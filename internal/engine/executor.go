package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/conform/internal/trace"
)

// DefaultParallelism is the number of traces run concurrently when no
// parallelism is configured.
const DefaultParallelism = 4

// Test is one declared test: a trace source and a driver factory.
type Test struct {
	Name string

	Sampler trace.Sampler

	// NewDriver creates the driver for one trace. It is called once per
	// sample and the driver is discarded after its trace.
	NewDriver Factory

	// MaxSamples bounds the number of sampled traces. Must be positive.
	MaxSamples int

	// FailFast stops starting traces after the first failing one. Traces
	// already running finish normally.
	FailFast bool
}

// Executor replays sampled traces against fresh drivers.
//
// Steps of one trace are applied strictly in order on a single goroutine.
// Distinct traces run in parallel, bounded by the configured parallelism.
// A fault in one trace never reaches another: panics are recovered at the
// trace boundary and the faulted driver is poisoned and dropped.
type Executor struct {
	parallelism int
	logger      *slog.Logger
	hooks       Hooks
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithParallelism sets the maximum number of concurrent traces.
// Values below 1 select DefaultParallelism.
func WithParallelism(n int) ExecutorOption {
	return func(e *Executor) {
		e.parallelism = n
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithHooks installs execution hooks.
func WithHooks(h Hooks) ExecutorOption {
	return func(e *Executor) {
		e.hooks = h
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = DefaultParallelism
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run samples up to test.MaxSamples traces and replays each against a fresh
// driver. Samples are acquired on the worker that replays them; once the
// sampler reports ErrNoMoreSamples for index i, no index at or above i is
// reported.
//
// Trace failures are reported in the Report; the returned error is only for
// an invalid Test or a cancelled context.
func (e *Executor) Run(ctx context.Context, test Test) (*Report, error) {
	if test.Sampler == nil {
		return nil, fmt.Errorf("test %q: nil sampler", test.Name)
	}
	if test.NewDriver == nil {
		return nil, fmt.Errorf("test %q: nil driver factory", test.Name)
	}
	if test.MaxSamples < 1 {
		return nil, fmt.Errorf("test %q: max samples must be positive, got %d", test.Name, test.MaxSamples)
	}

	e.logger.Info("test starting", "test", test.Name, "max_samples", test.MaxSamples, "parallelism", e.parallelism)

	var (
		mu      sync.Mutex
		results []TraceResult
		stop    atomic.Bool
		limit   atomic.Int64
		g       errgroup.Group
	)
	limit.Store(int64(test.MaxSamples))
	record := func(r TraceResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		if r.Failed() && test.FailFast {
			stop.Store(true)
		}
	}
	// skip reports whether sample i should not start.
	skip := func(i int) bool {
		return stop.Load() || int64(i) >= limit.Load() || ctx.Err() != nil
	}
	g.SetLimit(e.parallelism)

	for i := 0; i < test.MaxSamples && !skip(i); i++ {
		g.Go(func() error {
			if skip(i) {
				return nil
			}
			tr, err := test.Sampler.Sample(ctx, i)
			if errors.Is(err, trace.ErrNoMoreSamples) {
				lowerLimit(&limit, int64(i))
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r := TraceResult{Index: i, StepIndex: -1, Status: StatusNotStarted}
				r.fail(-1, &sourceError{err: err})
				e.logger.Warn("trace unavailable", "test", test.Name, "trace", i, "err", err)
				e.hooks.traceDone(e.logger, test.Name, r)
				record(r)
				return nil
			}
			record(e.runSample(ctx, test, i, tr))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("test %q: %w", test.Name, err)
	}

	results = slices.DeleteFunc(results, func(r TraceResult) bool {
		return int64(r.Index) >= limit.Load()
	})
	report := &Report{Test: test.Name, Traces: results}
	sortResults(report.Traces)
	report.finalize()

	passed, failed, errored := report.Counts()
	e.logger.Info("test finished", "test", test.Name, "status", report.Status,
		"passed", passed, "failed", failed, "errored", errored)
	return report, nil
}

func (e *Executor) runSample(ctx context.Context, test Test, i int, tr *trace.Trace) TraceResult {
	start := time.Now()

	d, err := newDriver(test.NewDriver)
	if err != nil {
		r := TraceResult{Index: i, Name: tr.Name, Fingerprint: tr.Fingerprint, StepIndex: -1}
		r.fail(-1, fmt.Errorf("new driver: %w", err))
		r.Duration = time.Since(start)
		e.logger.Error("driver construction failed", "test", test.Name, "trace", i, "err", err)
		e.hooks.traceDone(e.logger, test.Name, r)
		return r
	}

	r := e.replay(ctx, test.Name, i, d, tr.Iter())
	r.Name = tr.Name
	r.Fingerprint = tr.Fingerprint
	r.Duration = time.Since(start)
	e.hooks.traceDone(e.logger, test.Name, r)
	return r
}

// lowerLimit sets limit to n if n is smaller.
func lowerLimit(limit *atomic.Int64, n int64) {
	for {
		cur := limit.Load()
		if n >= cur || limit.CompareAndSwap(cur, n) {
			return
		}
	}
}

// newDriver calls the factory, turning a panic into an error.
func newDriver(f Factory) (d Driver, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Step: -1, Value: rec, Stack: debug.Stack()}
		}
	}()
	d, err = f()
	if err == nil && d == nil {
		err = errors.New("factory returned nil driver")
	}
	return d, err
}

// RunTrace replays one trace against d with a default executor.
func RunTrace(ctx context.Context, d Driver, it trace.Iterator) TraceResult {
	return NewExecutor().replay(ctx, "", 0, d, it)
}

// replay runs the per-trace state machine. It consumes steps until the
// iterator ends or a step fails; no step after a failing one is pulled.
func (e *Executor) replay(ctx context.Context, test string, index int, d Driver, it trace.Iterator) TraceResult {
	r := TraceResult{Index: index, Status: StatusNotStarted, StepIndex: -1}
	log := e.logger.With("test", test, "trace", index)

	r.Status = StatusRunning
	e.hooks.traceStart(log, test, index)
	log.Debug("trace starting")

	for {
		step, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				err = &sourceError{err: err}
			}
			r.fail(r.StepIndex+1, err)
			abandon(d, err)
			log.Warn("trace aborted", "step", r.StepIndex, "err", err)
			return r
		}

		action, err := applyStep(d, step)
		r.Action = action
		if err != nil {
			r.fail(step.Index, err)
			abandon(d, err)
			log.Warn("trace "+string(r.Status),
				"step", step.Index, "action", action, "participant", r.Participant, "code", r.Code, "err", err)
			return r
		}

		r.Steps++
		r.StepIndex = step.Index
		e.hooks.step(log, test, index, step.Index, action)
		log.Debug("step ok", "step", step.Index, "action", action)
	}

	r.Status = StatusPassed
	r.StepIndex = -1
	r.Action = ""
	log.Debug("trace passed", "steps", r.Steps)
	return r
}

// applyStep dispatches and checks one step, recovering driver panics.
func applyStep(d Driver, step trace.Step) (action string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Step: step.Index, Value: rec, Stack: debug.Stack()}
		}
	}()

	action, _ = d.ActionTaken(step)
	if err := d.Step(step); err != nil {
		return action, fmt.Errorf("step %d: %w", step.Index, err)
	}
	if err := d.Check(step); err != nil {
		return action, fmt.Errorf("check %d: %w", step.Index, err)
	}
	return action, nil
}

// abandon poisons a driver that ended its trace with an error.
func abandon(d Driver, cause error) {
	if p, ok := d.(Poisonable); ok {
		p.Poison(cause)
	}
}

func sortResults(rs []TraceResult) {
	slices.SortFunc(rs, func(a, b TraceResult) int {
		return cmp.Compare(a.Index, b.Index)
	})
}
