// Package trace reads model traces and exposes their steps.
//
// A trace is an ITF document: an ordered, finite list of states produced by
// a model checker or simulator. Each state becomes an immutable Step whose
// variables are addressed with exact path lookups:
//
//	round, err := trace.Get[int64](step, "ballot::state", "system", "p1", "round")
//
// Lookups never default. A path that does not resolve fails with
// *MissingFieldError; a value that cannot be decoded into the requested Go
// type fails with *TypeMismatchError.
//
// Steps are consumed through the pull-based Iterator. A Sampler produces one
// independent trace per sample index, from ITF files on disk (FileSampler)
// or by running an external generator command per sample (CommandSampler).
package trace
