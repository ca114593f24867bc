// Package itf implements the value model of the Informal Trace Format (ITF),
// the JSON trace format emitted by Quint and Apalache.
//
// This package contains value types and codecs only. Every other internal
// package that touches trace data imports itf; itf imports nothing internal.
//
// Key design constraints:
//   - No floats. Integers are arbitrary precision (ITF "#bigint").
//   - No null. ITF has no null value and decoding rejects it.
//   - Sets and maps are kept in canonical order so that structural equality
//     is byte equality of the canonical encoding.
//   - Quint sum types are records of the form {"tag": ..., "value": ...}.
//
// # Encoding
//
//	{"#bigint": "-12"}            Int
//	{"#tup": [a, b]}              Tuple
//	{"#set": [a, b]}              Set
//	{"#map": [[k, v], ...]}       Map
//	{"#unserializable": "..."}    Unserializable
//	[a, b]                        List
//	{"field": a}                  Record
package itf
