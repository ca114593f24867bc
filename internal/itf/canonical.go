package itf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical ITF JSON encoding of a value.
// CRITICAL: This is the ONLY serialization used for equality and trace
// fingerprints.
//
// Differences from a plain ITF encoding:
//  1. Record keys sorted by UTF-16 code units (RFC 8785)
//  2. Set elements and map entries sorted by their canonical encoding
//  3. Integers always encoded as {"#bigint": "..."}
//  4. Strings are NFC normalized and not HTML escaped
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mustCanonical is MarshalCanonical for values built by this package.
// It panics only if v contains a nil or foreign Value.
func mustCanonical(v Value) []byte {
	b, err := MarshalCanonical(v)
	if err != nil {
		panic(fmt.Sprintf("itf: %v", err))
	}
	return b
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is not an ITF value")
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Str:
		return writeCanonicalString(buf, string(val))
	case Int:
		buf.WriteString(`{"#bigint":"`)
		buf.WriteString(val.String())
		buf.WriteString(`"}`)
		return nil
	case List:
		return writeCanonicalSeq(buf, []Value(val))
	case Tuple:
		buf.WriteString(`{"#tup":`)
		if err := writeCanonicalSeq(buf, []Value(val)); err != nil {
			return fmt.Errorf("tuple: %w", err)
		}
		buf.WriteByte('}')
		return nil
	case Set:
		return writeCanonicalSet(buf, val)
	case Map:
		return writeCanonicalMap(buf, val)
	case Record:
		return writeCanonicalRecord(buf, val)
	case Unserializable:
		buf.WriteString(`{"#unserializable":`)
		if err := writeCanonicalString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported type for canonical ITF: %T", v)
	}
}

// writeCanonicalString writes a JSON string with NFC normalization.
// RFC 8785: no HTML escaping, U+2028/U+2029 are emitted literally.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func writeCanonicalSeq(buf *bytes.Buffer, elems []Value) error {
	buf.WriteByte('[')
	for i, elem := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalSet(buf *bytes.Buffer, set Set) error {
	encoded := make([][]byte, 0, len(set))
	for i, elem := range set {
		b, err := MarshalCanonical(elem)
		if err != nil {
			return fmt.Errorf("set[%d]: %w", i, err)
		}
		encoded = append(encoded, b)
	}
	slices.SortFunc(encoded, bytes.Compare)
	encoded = slices.CompactFunc(encoded, bytes.Equal)

	buf.WriteString(`{"#set":[`)
	for i, b := range encoded {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteString(`]}`)
	return nil
}

func writeCanonicalMap(buf *bytes.Buffer, m Map) error {
	type pair struct{ key, val []byte }
	pairs := make([]pair, 0, len(m))
	for i, e := range m {
		k, err := MarshalCanonical(e.Key)
		if err != nil {
			return fmt.Errorf("map key %d: %w", i, err)
		}
		v, err := MarshalCanonical(e.Value)
		if err != nil {
			return fmt.Errorf("map value %d: %w", i, err)
		}
		pairs = append(pairs, pair{key: k, val: v})
	}
	slices.SortStableFunc(pairs, func(a, b pair) int { return bytes.Compare(a.key, b.key) })

	buf.WriteString(`{"#map":[`)
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		buf.Write(p.key)
		buf.WriteByte(',')
		buf.Write(p.val)
		buf.WriteByte(']')
	}
	buf.WriteString(`]}`)
	return nil
}

func writeCanonicalRecord(buf *bytes.Buffer, rec Record) error {
	buf.WriteByte('{')
	for i, k := range rec.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, rec[k]); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (i Int) MarshalJSON() ([]byte, error) { return MarshalCanonical(i) }

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (t Tuple) MarshalJSON() ([]byte, error) { return MarshalCanonical(t) }

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (s Set) MarshalJSON() ([]byte, error) { return MarshalCanonical(s) }

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (m Map) MarshalJSON() ([]byte, error) { return MarshalCanonical(m) }

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (r Record) MarshalJSON() ([]byte, error) { return MarshalCanonical(r) }

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (u Unserializable) MarshalJSON() ([]byte, error) { return MarshalCanonical(u) }

// MarshalJSON implements json.Marshaler using the canonical encoding.
func (l List) MarshalJSON() ([]byte, error) { return MarshalCanonical(l) }

// Format renders a value as canonical JSON text, for diagnostics.
func Format(v Value) string {
	b, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<invalid: %v>", err)
	}
	return string(b)
}
