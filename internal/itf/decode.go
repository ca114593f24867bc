package itf

import (
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// TagName is the struct tag read when decoding ITF values into Go structs.
//
//	type NodeState struct {
//	    Round int64    `itf:"round"`
//	    Votes []string `itf:"votes"`
//	}
const TagName = "itf"

var (
	optionType = reflect.TypeOf((*optionMarker)(nil)).Elem()
	bigIntType = reflect.TypeOf(big.Int{})
)

// Option mirrors Quint's Option sum type for decoding.
// None decodes to the zero payload.
type Option[T any] struct {
	Tag   string `itf:"tag"`
	Value T      `itf:"value"`
}

type optionMarker interface {
	isOption()
}

func (Option[T]) isOption() {}

// SomeOf builds a present Option.
func SomeOf[T any](v T) Option[T] {
	return Option[T]{Tag: "Some", Value: v}
}

// NoneOf builds an absent Option.
func NoneOf[T any]() Option[T] {
	return Option[T]{Tag: "None"}
}

// Get returns the payload and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.Tag == "Some"
}

// String renders the option the way Quint prints it.
func (o Option[T]) String() string {
	if o.Tag != "Some" {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.Value)
}

// FieldError reports a record whose fields differ from the struct it is
// decoded into. Path locates the field below the decoded value.
type FieldError struct {
	Path []string

	// Missing is true when the record lacks the field and false when the
	// record has a field the struct does not declare.
	Missing bool
}

func (e *FieldError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing field %s", strings.Join(e.Path, "."))
	}
	return fmt.Sprintf("unexpected field %s", strings.Join(e.Path, "."))
}

// Decode decodes an ITF value into out, which must be a non-nil pointer.
//
// Records decode into structs (fields matched by `itf` tag, then by
// case-insensitive name) and string-keyed maps; lists, tuples and sets decode
// into slices; maps decode into Go maps; integers decode into any integer
// kind that can hold them, or *big.Int. Fields of type Value receive the
// undecoded value.
//
// Records must match their struct exactly: a missing or an undeclared field
// is a *FieldError. Target structs must not have unexported fields.
func Decode(v Value, out any) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: decodeHook,
		Result:     out,
		TagName:    TagName,
		Metadata:   &md,
	})
	if err != nil {
		return fmt.Errorf("itf decoder: %w", err)
	}
	if err := dec.Decode(v); err != nil {
		return err
	}
	if len(md.Unset) > 0 {
		slices.Sort(md.Unset)
		return &FieldError{Path: splitFieldName(md.Unset[0]), Missing: true}
	}
	if len(md.Unused) > 0 {
		slices.Sort(md.Unused)
		return &FieldError{Path: splitFieldName(md.Unused[0])}
	}
	return nil
}

// splitFieldName turns a decoder field name such as "system[p1].votes" into
// path segments.
func splitFieldName(name string) []string {
	var path []string
	for _, part := range strings.Split(name, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				path = append(path, part)
				break
			}
			if open > 0 {
				path = append(path, part[:open])
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				path = append(path, part[open:])
				break
			}
			path = append(path, part[open+1:open+end])
			part = part[open+end+1:]
		}
	}
	return path
}

// decodeHook unwraps one level of an ITF value at a time. mapstructure calls
// it again for every nested element, so nested values stay typed until the
// target type is known.
func decodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	v, ok := data.(Value)
	if !ok {
		return data, nil
	}

	if to.Kind() == reflect.Interface && reflect.TypeOf(v).Implements(to) {
		return v, nil
	}
	if reflect.TypeOf(v) == to {
		return v, nil
	}
	if to.Kind() == reflect.Struct && to.Implements(optionType) {
		if tag, _, isVariant := Tag(v); isVariant && tag == "None" {
			none := reflect.New(to).Elem()
			none.FieldByName("Tag").SetString(tag)
			return none.Interface(), nil
		}
	}

	switch val := v.(type) {
	case Bool:
		return bool(val), nil
	case Str:
		return string(val), nil
	case Unserializable:
		return string(val), nil
	case Int:
		if to == bigIntType || to == reflect.PointerTo(bigIntType) {
			return val.Big(), nil
		}
		return decodeInt(val, to)
	case List:
		return shallowSeq(val), nil
	case Tuple:
		return shallowSeq(val), nil
	case Set:
		return shallowSeq(val), nil
	case Map:
		if to.Kind() == reflect.Map && to.Key().Kind() == reflect.String && stringKeys(val) {
			out := make(map[string]any, len(val))
			for _, e := range val {
				out[string(e.Key.(Str))] = e.Value
			}
			return out, nil
		}
		if to.Kind() == reflect.Map {
			out := make(map[any]any, len(val))
			for _, e := range val {
				out[mapKey(e.Key)] = e.Value
			}
			return out, nil
		}
		pairs := make([]any, len(val))
		for i, e := range val {
			pairs[i] = Tuple{e.Key, e.Value}
		}
		return pairs, nil
	case Record:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = elem
		}
		return out, nil
	default:
		return data, nil
	}
}

// decodeInt range-checks an integer against a sized integer target.
func decodeInt(val Int, to reflect.Type) (any, error) {
	for to.Kind() == reflect.Pointer {
		to = to.Elem()
	}
	n, fits := val.Int64()
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !fits || reflect.New(to).Elem().OverflowInt(n) {
			return nil, fmt.Errorf("integer %s overflows %s", val, to)
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b := val.Big()
		if b.Sign() < 0 || !b.IsUint64() || reflect.New(to).Elem().OverflowUint(b.Uint64()) {
			return nil, fmt.Errorf("integer %s overflows %s", val, to)
		}
		return b.Uint64(), nil
	}
	if fits {
		return n, nil
	}
	return val.Big(), nil
}

func stringKeys(m Map) bool {
	for _, e := range m {
		if _, ok := e.Key.(Str); !ok {
			return false
		}
	}
	return true
}

func shallowSeq[S ~[]Value](s S) []any {
	out := make([]any, len(s))
	for i, elem := range s {
		out[i] = elem
	}
	return out
}

// mapKey converts a map key into a comparable Go value. Compound keys use
// their canonical encoding.
func mapKey(k Value) any {
	switch key := k.(type) {
	case Str:
		return string(key)
	case Bool:
		return bool(key)
	case Int:
		if n, fits := key.Int64(); fits {
			return n
		}
		return key.String()
	default:
		return Format(k)
	}
}

// From converts a Go value into an ITF value.
// Supported: Value, bool, string, signed and unsigned integers, *big.Int,
// slices (as List), string-keyed maps (as Record) and structs with `itf`
// tags (as Record).
func From(x any) (Value, error) {
	switch val := x.(type) {
	case nil:
		return nil, fmt.Errorf("null is not an ITF value")
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case int:
		return NewInt(int64(val)), nil
	case int64:
		return NewInt(val), nil
	case *big.Int:
		return NewBigInt(val), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewBigInt(new(big.Int).SetUint64(rv.Uint())), nil
	case reflect.String:
		return Str(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		list := make(List, rv.Len())
		for i := range list {
			elem, err := From(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = elem
		}
		return list, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		rec := make(Record, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem, err := From(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			rec[iter.Key().String()] = elem
		}
		return rec, nil
	case reflect.Struct:
		return fromStruct(rv)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, fmt.Errorf("nil %s", rv.Type())
		}
		return From(rv.Elem().Interface())
	default:
		return nil, fmt.Errorf("unsupported type %T", x)
	}
}

func fromStruct(rv reflect.Value) (Value, error) {
	if _, ok := rv.Interface().(optionMarker); ok {
		tag := rv.FieldByName("Tag").String()
		if tag != "Some" {
			return None(), nil
		}
		payload, err := From(rv.FieldByName("Value").Interface())
		if err != nil {
			return nil, fmt.Errorf("option: %w", err)
		}
		return Some(payload), nil
	}

	rt := rv.Type()
	rec := make(Record, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get(TagName)
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		elem, err := From(rv.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rec[name] = elem
	}
	return rec, nil
}
