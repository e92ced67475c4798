// Package convert translates between declared Go field types and the
// primitive values a graph store understands. A Registry derives a Converter
// from a field's reflect.Type; per-property custom converters override the
// defaults and must satisfy round-trip fidelity: FromGraph(ToGraph(v)) == v
// for every v the declared type can hold.
//
// Canonical encodings:
//   - integers (all signed and unsigned kinds) -> int64
//   - floating point -> float64
//   - time.Time -> RFC 3339 string with nanoseconds, normalized to UTC
//     (TimeLayout); round trips preserve sub-second precision exactly
//   - enumerated values -> their string name (see Enum)
//   - slices and string-keyed maps of the above -> []store.Value and
//     map[string]store.Value
package convert

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"
	"unique"

	"github.com/dusk-indust/norm/store"
)

// TimeLayout is the canonical timestamp encoding.
const TimeLayout = time.RFC3339Nano

// Converter translates one declared type to and from graph primitives.
type Converter interface {
	// ToGraph converts a field value to a graph primitive.
	ToGraph(v any) (store.Value, error)
	// FromGraph converts a graph primitive back to a value assignable to
	// the declared field type.
	FromGraph(v store.Value) (any, error)
}

// Error reports a value that cannot be converted. It names the declared type
// and the offending value's runtime type; the mapping layer wraps it with the
// entity and field name.
type Error struct {
	Declared reflect.Type
	Value    any
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert: %s: got %T (%v): %s", typeName(e.Declared), e.Value, e.Value, e.Reason)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// IsError reports whether err is a conversion error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Registry derives converters from declared types and holds custom
// per-type registrations. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	custom map[reflect.Type]Converter
}

// NewRegistry returns an empty registry with the built-in derivations.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[reflect.Type]Converter)}
}

// Register installs a custom converter for the given declared type,
// overriding the built-in derivation.
func (r *Registry) Register(t reflect.Type, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[t] = c
}

var timeType = reflect.TypeFor[time.Time]()

// For returns the converter for a declared type: a custom registration if one
// exists, else a built-in derived from the type's kind.
func (r *Registry) For(t reflect.Type) (Converter, error) {
	r.mu.RLock()
	c, ok := r.custom[t]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	return r.derive(t)
}

func (r *Registry) derive(t reflect.Type) (Converter, error) {
	if t == timeType {
		return timeConverter{}, nil
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intConverter{t: t}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintConverter{t: t}, nil
	case reflect.Float32, reflect.Float64:
		return floatConverter{t: t}, nil
	case reflect.Bool:
		return boolConverter{t: t}, nil
	case reflect.String:
		return stringConverter{t: t}, nil
	case reflect.Pointer:
		elem, err := r.For(t.Elem())
		if err != nil {
			return nil, err
		}
		return optionalConverter{t: t, elem: elem}, nil
	case reflect.Slice:
		elem, err := r.For(t.Elem())
		if err != nil {
			return nil, err
		}
		return sliceConverter{t: t, elem: elem}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, &Error{Declared: t, Reason: "map properties require string keys"}
		}
		elem, err := r.For(t.Elem())
		if err != nil {
			return nil, err
		}
		return mapConverter{t: t, elem: elem}, nil
	default:
		return nil, &Error{Declared: t, Reason: "no converter for this type"}
	}
}

// Intern returns a canonical copy of s backed by the process-wide intern
// pool. Interning is a storage/representation concern only: the returned
// string compares equal to s and behaves identically in predicates.
func Intern(s string) string {
	return unique.Make(s).Value()
}

// ---------- built-in converters ----------

type intConverter struct{ t reflect.Type }

func (c intConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.CanInt() {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not an integer value"}
	}
	return rv.Int(), nil
}

func (c intConverter) FromGraph(v store.Value) (any, error) {
	n, ok := asInt64(v)
	if !ok {
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not an integer"}
	}
	out := reflect.New(c.t).Elem()
	if out.OverflowInt(n) {
		return nil, &Error{Declared: c.t, Value: v, Reason: "integer overflows declared type"}
	}
	out.SetInt(n)
	return out.Interface(), nil
}

type uintConverter struct{ t reflect.Type }

func (c uintConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.CanUint() {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not an unsigned integer value"}
	}
	u := rv.Uint()
	if u > math.MaxInt64 {
		return nil, &Error{Declared: c.t, Value: v, Reason: "unsigned value overflows int64 encoding"}
	}
	return int64(u), nil
}

func (c uintConverter) FromGraph(v store.Value) (any, error) {
	n, ok := asInt64(v)
	if !ok || n < 0 {
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not a non-negative integer"}
	}
	out := reflect.New(c.t).Elem()
	if out.OverflowUint(uint64(n)) {
		return nil, &Error{Declared: c.t, Value: v, Reason: "integer overflows declared type"}
	}
	out.SetUint(uint64(n))
	return out.Interface(), nil
}

type floatConverter struct{ t reflect.Type }

func (c floatConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.CanFloat() {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not a floating point value"}
	}
	return rv.Float(), nil
}

func (c floatConverter) FromGraph(v store.Value) (any, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not a number"}
	}
	out := reflect.New(c.t).Elem()
	out.SetFloat(f)
	return out.Interface(), nil
}

type boolConverter struct{ t reflect.Type }

func (c boolConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Bool {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not a boolean value"}
	}
	return rv.Bool(), nil
}

func (c boolConverter) FromGraph(v store.Value) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not a boolean"}
	}
	out := reflect.New(c.t).Elem()
	out.SetBool(b)
	return out.Interface(), nil
}

type stringConverter struct{ t reflect.Type }

func (c stringConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not a string value"}
	}
	return rv.String(), nil
}

func (c stringConverter) FromGraph(v store.Value) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not a string"}
	}
	out := reflect.New(c.t).Elem()
	out.SetString(s)
	return out.Interface(), nil
}

type timeConverter struct{}

func (timeConverter) ToGraph(v any) (store.Value, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, &Error{Declared: timeType, Value: v, Reason: "not a time.Time value"}
	}
	return t.UTC().Format(TimeLayout), nil
}

func (timeConverter) FromGraph(v store.Value) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &Error{Declared: timeType, Value: v, Reason: "graph value is not a timestamp string"}
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return nil, &Error{Declared: timeType, Value: v, Reason: "not a valid RFC 3339 timestamp"}
	}
	return t.UTC(), nil
}

type optionalConverter struct {
	t    reflect.Type
	elem Converter
}

func (c optionalConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not a pointer value"}
	}
	if rv.IsNil() {
		return nil, nil
	}
	return c.elem.ToGraph(rv.Elem().Interface())
}

func (c optionalConverter) FromGraph(v store.Value) (any, error) {
	if v == nil {
		return reflect.Zero(c.t).Interface(), nil
	}
	inner, err := c.elem.FromGraph(v)
	if err != nil {
		return nil, err
	}
	out := reflect.New(c.t.Elem())
	out.Elem().Set(reflect.ValueOf(inner))
	return out.Interface(), nil
}

type sliceConverter struct {
	t    reflect.Type
	elem Converter
}

func (c sliceConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not a slice value"}
	}
	if rv.IsNil() {
		return nil, nil
	}
	out := make([]store.Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := c.elem.ToGraph(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

func (c sliceConverter) FromGraph(v store.Value) (any, error) {
	if v == nil {
		return reflect.Zero(c.t).Interface(), nil
	}
	raw, ok := v.([]store.Value)
	if !ok {
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not a list"}
	}
	out := reflect.MakeSlice(c.t, len(raw), len(raw))
	for i, rv := range raw {
		ev, err := c.elem.FromGraph(rv)
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(ev))
	}
	return out.Interface(), nil
}

type mapConverter struct {
	t    reflect.Type
	elem Converter
}

func (c mapConverter) ToGraph(v any) (store.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, &Error{Declared: c.t, Value: v, Reason: "not a map value"}
	}
	if rv.IsNil() {
		return nil, nil
	}
	out := make(map[string]store.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		ev, err := c.elem.ToGraph(iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		out[iter.Key().String()] = ev
	}
	return out, nil
}

func (c mapConverter) FromGraph(v store.Value) (any, error) {
	if v == nil {
		return reflect.Zero(c.t).Interface(), nil
	}
	raw, ok := v.(map[string]store.Value)
	if !ok {
		return nil, &Error{Declared: c.t, Value: v, Reason: "graph value is not a map"}
	}
	out := reflect.MakeMapWithSize(c.t, len(raw))
	kt := c.t.Key()
	for k, rv := range raw {
		ev, err := c.elem.FromGraph(rv)
		if err != nil {
			return nil, err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(kt), reflect.ValueOf(ev))
	}
	return out.Interface(), nil
}

// Enum builds a converter that encodes values of T as their string name.
// Every value the field can hold must appear in names.
func Enum[T comparable](names map[T]string) Converter {
	byName := make(map[string]T, len(names))
	for v, n := range names {
		byName[n] = v
	}
	return enumConverter[T]{names: names, byName: byName}
}

type enumConverter[T comparable] struct {
	names  map[T]string
	byName map[string]T
}

func (c enumConverter[T]) ToGraph(v any) (store.Value, error) {
	tv, ok := v.(T)
	if !ok {
		return nil, &Error{Declared: reflect.TypeFor[T](), Value: v, Reason: "not an enum value"}
	}
	n, ok := c.names[tv]
	if !ok {
		return nil, &Error{Declared: reflect.TypeFor[T](), Value: v, Reason: "enum value has no registered name"}
	}
	return n, nil
}

func (c enumConverter[T]) FromGraph(v store.Value) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &Error{Declared: reflect.TypeFor[T](), Value: v, Reason: "graph value is not an enum name"}
	}
	tv, ok := c.byName[s]
	if !ok {
		return nil, &Error{Declared: reflect.TypeFor[T](), Value: v, Reason: "unknown enum name"}
	}
	return tv, nil
}

func asInt64(v store.Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}
