// Package testutil provides deterministic helpers for tests: a resettable
// logical clock and builders for ITF traces in the shape Quint's
// model-based testing mode produces.
package testutil
