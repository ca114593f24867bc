// Package harness runs suites of conformance tests.
//
// A suite declares tests in YAML. Each test names a CUE manifest of the
// model, a registered driver and a trace source: ITF files, an external
// generator command, or a Quint model sampled with quint.
//
// # Suite Format
//
//	name: ballot
//	description: "ballot nodes follow the model"
//	tests:
//	  - name: fixtures
//	    manifest: ballot.cue
//	    driver: ballot
//	    traces: ["traces/*.itf.json"]
//	  - name: buggy
//	    manifest: ballot.cue
//	    driver: ballot-buggy
//	    traces: ["traces/late_quorum.itf.json"]
//	    expect:
//	      status: failed
//	      step: 7
//	      participant: p1
//
// Unknown fields are rejected so typos fail loudly.
//
// # Expectations
//
// A test without expect passes only if every trace passes. A test with
// expect passes when its report matches: status, and the step, participant
// and error code of the first failing trace. Expectations let a suite pin
// the divergence of a deliberately faulty driver.
//
// # Deterministic Testing
//
// Run ids come from a RunIDGenerator and sequence numbers from a SeqClock.
// Tests inject FixedGenerator and testutil.DeterministicClock and compare
// results against golden snapshots (see AssertGolden).
//
// # Usage
//
//	reg := harness.NewRegistry()
//	reg.MustRegister("ballot", ballotdriver.New)
//
//	suite, err := harness.LoadSuite("conform.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := harness.NewRunner(reg, harness.WithStore(st)).RunSuite(ctx, suite)
package harness
