package engine

import (
	"log/slog"
	"runtime/debug"
)

// Hooks observes trace execution. Nil fields are skipped. Hooks may be
// called from several goroutines at once, one per in-flight trace. A
// panicking hook is logged and otherwise ignored.
type Hooks struct {
	// OnTraceStart runs before the first step of a trace.
	OnTraceStart func(test string, trace int)

	// OnStep runs after a step was dispatched and checked successfully.
	OnStep func(test string, trace int, step int, action string)

	// OnTraceDone runs once per trace with its final result.
	OnTraceDone func(test string, result TraceResult)
}

// CombineHooks returns hooks that call each of hs in order.
func CombineHooks(hs ...Hooks) Hooks {
	return Hooks{
		OnTraceStart: func(test string, trace int) {
			for _, h := range hs {
				if h.OnTraceStart != nil {
					h.OnTraceStart(test, trace)
				}
			}
		},
		OnStep: func(test string, trace int, step int, action string) {
			for _, h := range hs {
				if h.OnStep != nil {
					h.OnStep(test, trace, step, action)
				}
			}
		},
		OnTraceDone: func(test string, result TraceResult) {
			for _, h := range hs {
				if h.OnTraceDone != nil {
					h.OnTraceDone(test, result)
				}
			}
		},
	}
}

func (h Hooks) traceStart(log *slog.Logger, test string, trace int) {
	if h.OnTraceStart != nil {
		guardHook(log, "OnTraceStart", func() { h.OnTraceStart(test, trace) })
	}
}

func (h Hooks) step(log *slog.Logger, test string, trace, step int, action string) {
	if h.OnStep != nil {
		guardHook(log, "OnStep", func() { h.OnStep(test, trace, step, action) })
	}
}

func (h Hooks) traceDone(log *slog.Logger, test string, result TraceResult) {
	if h.OnTraceDone != nil {
		guardHook(log, "OnTraceDone", func() { h.OnTraceDone(test, result) })
	}
}

// guardHook runs fn and logs a panic instead of propagating it. A failing
// observer never changes a trace's outcome.
func guardHook(log *slog.Logger, name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("hook panicked", "hook", name, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
