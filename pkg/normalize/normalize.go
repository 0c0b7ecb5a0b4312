// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package normalize

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// CircularMarker replaces a value that is reachable from itself.
	CircularMarker = "[Circular]"

	// maxSafeInteger is the largest integer a float64 represents exactly.
	maxSafeInteger = 1<<53 - 1

	// maxDepth bounds recursion for hooks that keep producing fresh values.
	maxDepth = 512

	isoLayout = "2006-01-02T15:04:05.000Z"
)

// JSONer is implemented by values carrying their own JSON representation.
type JSONer interface {
	ToJSON() (any, error)
}

// Objecter is implemented by containers that can convert themselves into a
// plain Go value, typically a map or slice.
type Objecter interface {
	ToObject() (any, error)
}

// Sequence is implemented by containers that enumerate their elements.
type Sequence interface {
	Values() iter.Seq[any]
}

// Normalizer converts arbitrary values into JSON-safe trees.
type Normalizer struct {
	logger zerolog.Logger
}

// New returns a Normalizer that reports swallowed hook failures to logger.
func New(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts v using the global logger.
func Normalize(v any) any {
	return New(log.With().Str("component", "normalize").Logger()).Normalize(v)
}

// Normalize returns a JSON-safe copy of v. It never fails: values without a
// JSON form degrade to their string representation and cyclic references are
// replaced with CircularMarker.
func (n *Normalizer) Normalize(v any) any {
	w := &walker{
		logger:   n.logger,
		visiting: make(map[visitKey]struct{}),
	}
	return w.walk(v, 0)
}

// visitKey identifies a reference-typed value for the duration of one walk.
type visitKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type walker struct {
	logger zerolog.Logger
	// visiting holds the identities on the current path from the root.
	visiting map[visitKey]struct{}
}

func (w *walker) walk(v any, depth int) any {
	if depth > maxDepth {
		w.logger.Warn().Int("depth", depth).Str("type", fmt.Sprintf("%T", v)).Msg("normalize depth exceeded")
		return CircularMarker
	}

	if out, ok := scalar(v); ok {
		return out
	}

	rv := reflect.ValueOf(v)
	if isNil(rv) {
		return nil
	}

	if key, ok := identity(rv); ok {
		if _, seen := w.visiting[key]; seen {
			return CircularMarker
		}
		w.visiting[key] = struct{}{}
		defer delete(w.visiting, key)
	}

	if out, ok := w.hooks(v, depth); ok {
		return out
	}
	return w.structural(rv, depth)
}

// scalar handles values that never need recursion.
func scalar(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string, bool, int8, int16, int32, uint8, uint16, uint32:
		return t, true
	case int:
		return safeInt(int64(t), t), true
	case int64:
		return safeInt(t, t), true
	case uint:
		return safeUint(uint64(t), t), true
	case uint64:
		return safeUint(t, t), true
	case uintptr:
		return safeUint(uint64(t), t), true
	case float64:
		return finite(t, t), true
	case float32:
		return finite(float64(t), t), true
	case json.Number:
		return number(t), true
	case *big.Int:
		if t == nil {
			return nil, true
		}
		return t.String(), true
	case big.Int:
		return t.String(), true
	case []byte:
		if t == nil {
			return nil, true
		}
		return base64.StdEncoding.EncodeToString(t), true
	case time.Time:
		return t.UTC().Format(isoLayout), true
	case *time.Time:
		if t == nil {
			return nil, true
		}
		return t.UTC().Format(isoLayout), true
	}
	return nil, false
}

// hooks applies the capability interfaces in priority order. A failing hook
// is logged and the next capability is tried.
func (w *walker) hooks(v any, depth int) (any, bool) {
	switch t := v.(type) {
	case *Object:
		return w.object(t, depth), true
	case json.RawMessage:
		decoded, err := Decode(t)
		if err == nil {
			return w.walk(decoded, depth+1), true
		}
		w.hookFailed("json.RawMessage", v, err)
	case iter.Seq[any]:
		out, err := w.collect(t, depth)
		if err == nil {
			return out, true
		}
		w.hookFailed("iter.Seq", v, err)
	case func(func(any) bool):
		out, err := w.collect(t, depth)
		if err == nil {
			return out, true
		}
		w.hookFailed("iter.Seq", v, err)
	}

	if j, ok := v.(JSONer); ok {
		out, err := call(j.ToJSON)
		if err == nil {
			return w.walk(out, depth+1), true
		}
		w.hookFailed("ToJSON", v, err)
	}

	if m, ok := v.(json.Marshaler); ok {
		data, err := call(m.MarshalJSON)
		if err == nil {
			var decoded any
			if decoded, err = Decode(data); err == nil {
				return w.walk(decoded, depth+1), true
			}
		}
		w.hookFailed("MarshalJSON", v, err)
	}

	if m, ok := v.(encoding.TextMarshaler); ok {
		text, err := call(m.MarshalText)
		if err == nil {
			return string(text), true
		}
		w.hookFailed("MarshalText", v, err)
	}

	if o, ok := v.(Objecter); ok {
		out, err := call(o.ToObject)
		if err == nil {
			return w.walk(out, depth+1), true
		}
		w.hookFailed("ToObject", v, err)
	}

	if out, ok, err := protoObject(v); ok {
		if err == nil {
			return w.walk(out, depth+1), true
		}
		w.hookFailed("protobuf", v, err)
	}

	if s, ok := v.(Sequence); ok {
		out, err := w.collect(s.Values(), depth)
		if err == nil {
			return out, true
		}
		w.hookFailed("Values", v, err)
	}

	return nil, false
}

// structural walks Go containers by kind once no capability matched.
func (w *walker) structural(rv reflect.Value, depth int) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return w.walk(rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return safeInt(rv.Int(), rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return safeUint(rv.Uint(), rv.Uint())
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float(), rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			for i := range buf {
				buf[i] = byte(rv.Index(i).Uint())
			}
			return base64.StdEncoding.EncodeToString(buf)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = w.walk(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Map:
		return w.mapping(rv, depth)
	case reflect.Struct:
		obj := NewObject(rv.NumField())
		w.fields(obj, rv, depth)
		return obj
	default:
		return fmt.Sprint(rv.Interface())
	}
}

func (w *walker) object(o *Object, depth int) *Object {
	out := NewObject(o.Len())
	for _, k := range o.keys {
		out.Set(k, w.walk(o.values[k], depth+1))
	}
	return out
}

// mapping converts a Go map. Go maps carry no insertion order, so members
// are emitted sorted by key.
func (w *walker) mapping(rv reflect.Value, depth int) *Object {
	type member struct {
		key string
		val reflect.Value
	}
	members := make([]member, 0, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		members = append(members, member{key: mapKey(it.Key()), val: it.Value()})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

	out := NewObject(len(members))
	for _, m := range members {
		out.Set(m.key, w.walk(m.val.Interface(), depth+1))
	}
	return out
}

// fields appends the exported fields of a struct following encoding/json
// tag conventions. Untagged embedded structs are flattened.
func (w *walker) fields(obj *Object, rv reflect.Value, depth int) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		fv := rv.Field(i)

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				if !f.IsExported() || fv.IsNil() {
					continue
				}
				fv = fv.Elem()
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				w.fields(obj, fv, depth)
				continue
			}
		}

		if !f.IsExported() || !fv.CanInterface() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		obj.Set(name, w.walk(fv.Interface(), depth+1))
	}
}

func (w *walker) collect(seq iter.Seq[any], depth int) (out []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panicked: %v", r)
		}
	}()
	out = make([]any, 0)
	for item := range seq {
		out = append(out, w.walk(item, depth+1))
	}
	return out, nil
}

func (w *walker) hookFailed(hook string, v any, err error) {
	w.logger.Warn().
		Err(err).
		Str("hook", hook).
		Str("type", fmt.Sprintf("%T", v)).
		Msg("serialization hook failed, falling through")
}

// call runs a hook and turns a panic into an error.
func call[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return fn()
}

func identity(rv reflect.Value) (visitKey, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		p := rv.Pointer()
		return visitKey{typ: rv.Type(), ptr: p}, p != 0
	case reflect.Slice:
		p := rv.Pointer()
		return visitKey{typ: rv.Type(), ptr: p, len: rv.Len()}, p != 0 && rv.Len() > 0
	}
	return visitKey{}, false
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func safeInt(i int64, orig any) any {
	if i > maxSafeInteger || i < -maxSafeInteger {
		return strconv.FormatInt(i, 10)
	}
	return orig
}

func safeUint(u uint64, orig any) any {
	if u > maxSafeInteger {
		return strconv.FormatUint(u, 10)
	}
	return orig
}

func finite(f float64, orig any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return orig
}

// number keeps a json.Number unless it cannot be represented exactly by a
// JSON consumer, in which case its literal text is returned.
func number(n json.Number) any {
	s := n.String()
	if s == "" {
		return nil
	}
	if (s[0] != '-' && (s[0] < '0' || s[0] > '9')) || !json.Valid([]byte(s)) {
		return s
	}
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) {
			return s
		}
		return n
	}
	i, err := n.Int64()
	if err != nil || i > maxSafeInteger || i < -maxSafeInteger {
		return s
	}
	return n
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if text, err := call(tm.MarshalText); err == nil {
				return string(text)
			}
		}
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

func hasOption(opts, want string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == want {
			return true
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}
