// Package store provides SQLite-backed history of conformance runs.
//
// A run is one invocation of a suite. It holds one report per declared test
// and one row per sampled trace:
//   - runs: id (UUIDv7), logical seq, suite name, final status
//   - reports: per-test status and reason
//   - trace_results: per-trace outcome, failing step and rendered states
//
// # Ordering
//
// Runs are ordered by seq, a logical clock assigned by the caller, never by
// timestamps. Queries always end in ORDER BY seq, test, trace_index so that
// results are identical across machines.
//
// # Determinism audit
//
// Every trace result carries the trace's content fingerprint. Replaying the
// same trace against the same driver must give the same outcome, so two
// results with one fingerprint and different outcomes expose a
// nondeterministic driver or system under test (see FindNondeterministic).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
