package itf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// MetaKey is the reserved key for ITF metadata objects. It is dropped when
// decoding records.
const MetaKey = "#meta"

// Unmarshal decodes an ITF JSON value.
// CRITICAL: Rejects null and non-integer numbers.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromJSON(raw)
}

// UnmarshalJSON implements json.Unmarshaler for Record so that ITF documents
// can be decoded with encoding/json directly.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("expected ITF record, got %T", v)
	}
	*r = rec
	return nil
}

// FromJSON converts a value produced by encoding/json (decoded with
// UseNumber) into an ITF value.
func FromJSON(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return nil, fmt.Errorf("null is not an ITF value")
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case json.Number:
		return parseNumber(string(val))
	case float64:
		// Decoders without UseNumber; only integral values are accepted.
		return parseNumber(strconv.FormatFloat(val, 'f', -1, 64))
	case []any:
		list, err := fromJSONSeq(val)
		if err != nil {
			return nil, err
		}
		return List(list), nil
	case map[string]any:
		return fromJSONObject(val)
	default:
		return nil, fmt.Errorf("unsupported JSON type: %T", raw)
	}
}

func parseNumber(s string) (Value, error) {
	if strings.ContainsAny(s, ".eE") {
		return nil, fmt.Errorf("floats are not ITF values: %s", s)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer: %s", s)
	}
	return Int{n: n}, nil
}

func fromJSONSeq(raw []any) ([]Value, error) {
	out := make([]Value, len(raw))
	for i, elem := range raw {
		v, err := FromJSON(elem)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func fromJSONObject(obj map[string]any) (Value, error) {
	if raw, ok := obj["#bigint"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, fmt.Errorf("#bigint: expected string, got %T", raw)
		}
		return parseNumber(s)
	}
	if raw, ok := obj["#tup"]; ok {
		elems, err := expectArray("#tup", raw)
		if err != nil {
			return nil, err
		}
		tup, err := fromJSONSeq(elems)
		if err != nil {
			return nil, fmt.Errorf("#tup%w", err)
		}
		return Tuple(tup), nil
	}
	if raw, ok := obj["#set"]; ok {
		elems, err := expectArray("#set", raw)
		if err != nil {
			return nil, err
		}
		set, err := fromJSONSeq(elems)
		if err != nil {
			return nil, fmt.Errorf("#set%w", err)
		}
		return NewSet(set...), nil
	}
	if raw, ok := obj["#map"]; ok {
		return fromJSONMap(raw)
	}
	if raw, ok := obj["#unserializable"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, fmt.Errorf("#unserializable: expected string, got %T", raw)
		}
		return Unserializable(s), nil
	}

	rec := make(Record, len(obj))
	for k, elem := range obj {
		if k == MetaKey {
			continue
		}
		v, err := FromJSON(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		rec[k] = v
	}
	return rec, nil
}

func fromJSONMap(raw any) (Value, error) {
	pairs, err := expectArray("#map", raw)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(pairs))
	for i, p := range pairs {
		kv, isArr := p.([]any)
		if !isArr || len(kv) != 2 {
			return nil, fmt.Errorf("#map[%d]: expected [key, value] pair", i)
		}
		k, err := FromJSON(kv[0])
		if err != nil {
			return nil, fmt.Errorf("#map[%d] key: %w", i, err)
		}
		v, err := FromJSON(kv[1])
		if err != nil {
			return nil, fmt.Errorf("#map[%d] value: %w", i, err)
		}
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return NewMap(entries...), nil
}

func expectArray(key string, raw any) ([]any, error) {
	elems, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected array, got %T", key, raw)
	}
	return elems, nil
}
