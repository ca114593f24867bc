package itf

import (
	"bytes"
	"math/big"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface representing ITF values.
// Only Bool, Str, Int, List, Tuple, Set, Map, Record and Unserializable
// implement it.
type Value interface {
	itfValue() // Sealed - only these types implement it
}

// Bool represents a boolean value.
type Bool bool

func (Bool) itfValue() {}

// Str represents a string value.
type Str string

func (Str) itfValue() {}

// Int represents an arbitrary precision integer.
// The zero Int is 0. Int values are immutable.
type Int struct {
	n *big.Int
}

func (Int) itfValue() {}

// NewInt creates an Int from an int64.
func NewInt(n int64) Int {
	return Int{n: big.NewInt(n)}
}

// NewBigInt creates an Int from a big.Int. The argument is copied.
func NewBigInt(n *big.Int) Int {
	return Int{n: new(big.Int).Set(n)}
}

// Big returns a copy of the integer as a big.Int.
func (i Int) Big() *big.Int {
	if i.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.n)
}

// Int64 returns the integer as an int64 and whether it fits.
func (i Int) Int64() (int64, bool) {
	if i.n == nil {
		return 0, true
	}
	if !i.n.IsInt64() {
		return 0, false
	}
	return i.n.Int64(), true
}

// String returns the decimal representation.
func (i Int) String() string {
	if i.n == nil {
		return "0"
	}
	return i.n.String()
}

// List represents an ordered sequence (Quint List).
type List []Value

func (List) itfValue() {}

// Tuple represents a fixed-size heterogeneous sequence.
// The empty tuple is Quint's unit value.
type Tuple []Value

func (Tuple) itfValue() {}

// Set represents an unordered collection of unique values.
// Elements are kept in canonical order; build sets with NewSet.
type Set []Value

func (Set) itfValue() {}

// Entry is a single key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map represents a Quint map with arbitrary keys.
// Entries are kept in canonical key order; build maps with NewMap.
type Map []Entry

func (Map) itfValue() {}

// Record represents a Quint record (and sum type variants, which are
// records with "tag" and "value" fields).
// Use SortedKeys() for deterministic iteration.
type Record map[string]Value

func (Record) itfValue() {}

// Unserializable carries the textual form of a value the producer could not
// serialize (e.g. an infinite set).
type Unserializable string

func (Unserializable) itfValue() {}

// Unit is the empty tuple.
var Unit = Tuple{}

// NewSet creates a Set in canonical order with duplicates removed.
func NewSet(elems ...Value) Set {
	type keyed struct {
		key []byte
		val Value
	}
	ks := make([]keyed, 0, len(elems))
	for _, e := range elems {
		ks = append(ks, keyed{key: mustCanonical(e), val: e})
	}
	slices.SortFunc(ks, func(a, b keyed) int { return bytes.Compare(a.key, b.key) })

	set := make(Set, 0, len(ks))
	for i, k := range ks {
		if i > 0 && bytes.Equal(ks[i-1].key, k.key) {
			continue
		}
		set = append(set, k.val)
	}
	return set
}

// NewMap creates a Map in canonical key order.
// When a key repeats, the last entry wins.
func NewMap(entries ...Entry) Map {
	type keyed struct {
		key   []byte
		entry Entry
	}
	ks := make([]keyed, 0, len(entries))
	for _, e := range entries {
		ks = append(ks, keyed{key: mustCanonical(e.Key), entry: e})
	}
	slices.SortStableFunc(ks, func(a, b keyed) int { return bytes.Compare(a.key, b.key) })

	m := make(Map, 0, len(ks))
	for i, k := range ks {
		if i+1 < len(ks) && bytes.Equal(ks[i+1].key, k.key) {
			continue
		}
		m = append(m, k.entry)
	}
	return m
}

// Get returns the value bound to key.
func (m Map) Get(key Value) (Value, bool) {
	want := mustCanonical(key)
	for _, e := range m {
		if bytes.Equal(mustCanonical(e.Key), want) {
			return e.Value, true
		}
	}
	return nil, false
}

// Some builds the Quint variant Some(v).
func Some(v Value) Record {
	return Record{"tag": Str("Some"), "value": v}
}

// None builds the Quint variant None.
func None() Record {
	return Record{"tag": Str("None"), "value": Unit}
}

// Variant builds a Quint sum type value.
func Variant(tag string, v Value) Record {
	if v == nil {
		v = Unit
	}
	return Record{"tag": Str(tag), "value": v}
}

// Tag returns the variant tag and payload of a sum type value.
// ok is false when v is not a record with a string "tag" field.
func Tag(v Value) (tag string, payload Value, ok bool) {
	rec, isRec := v.(Record)
	if !isRec {
		return "", nil, false
	}
	t, isStr := rec["tag"].(Str)
	if !isStr {
		return "", nil, false
	}
	payload, hasValue := rec["value"]
	if !hasValue {
		payload = Unit
	}
	return string(t), payload, true
}

// Unwrap resolves a Quint Option. It returns the payload of Some and
// ok=false for None. Values that are not an Option are returned unchanged.
func Unwrap(v Value) (Value, bool) {
	tag, payload, isVariant := Tag(v)
	if !isVariant {
		return v, true
	}
	switch tag {
	case "Some":
		return payload, true
	case "None":
		return nil, false
	default:
		return v, true
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// Equal reports whether two values are structurally equal.
func Equal(a, b Value) bool {
	ab, err := MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Kind names the ITF type of v, for error messages.
func Kind(v Value) string {
	switch v.(type) {
	case Bool:
		return "bool"
	case Str:
		return "str"
	case Int:
		return "int"
	case List:
		return "list"
	case Tuple:
		return "tuple"
	case Set:
		return "set"
	case Map:
		return "map"
	case Record:
		return "record"
	case Unserializable:
		return "unserializable"
	case nil:
		return "nil"
	default:
		return "unknown"
	}
}
