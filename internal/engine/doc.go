// Package engine replays model traces against a system under test and
// detects divergence.
//
// ARCHITECTURE:
//
// Per step, the executor runs the same pipeline:
//  1. Resolver reads the step's nondeterministic picks (mbt::nondetPicks)
//     and resolves the action: ActionInit when no transition was picked,
//     otherwise the tag of the transition label.
//  2. Switch dispatches the action to its handler. The table is exhaustive
//     over the Vocabulary and is checked when built, so an uncovered
//     transition fails before any trace runs.
//  3. Comparator projects every tracked instance into the model's state
//     shape and compares it with the step's state at
//     [stateRoot, "system", participant].
//
// The first failing step ends the trace. No later step is pulled from the
// iterator.
//
// Trace Lifecycle:
//
//	NotStarted → Running → {Passed, Failed, Errored}
//
// Only a state mismatch fails a trace. Missing fields, type mismatches,
// unknown participants, unhandled transitions, driver errors and panics
// error it.
//
// Isolation:
// Each sampled trace gets a driver from the test's factory. The driver owns a
// Pool of participant instances that nothing else references. A panic is
// recovered at the trace boundary, the driver is poisoned, and the next
// sample starts from a new driver. Traces run in parallel; steps within one
// trace never do.
//
// Machine assembles Resolver, Switch, Pool and Comparator into a Driver, so
// most adapters only write handlers and a projection.
package engine
