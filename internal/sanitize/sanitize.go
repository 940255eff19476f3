// Package sanitize turns arbitrary Go value graphs into acyclic, JSON-safe copies.
package sanitize

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unsafe"
)

const (
	// MaxDepth is the hard cap on container nesting kept in a sanitized copy.
	MaxDepth = 10

	// Circular replaces containers that point back to an ancestor or sit too deep.
	Circular = "[Circular]"

	// Unsupported replaces values that have no JSON representation.
	Unsupported = "[Unsupported]"
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// nodeID identifies a reference node. Slices need their length too:
// two slices sharing a backing array are different nodes. Pointers keep
// their type since a struct and its first field share an address.
type nodeID struct {
	ptr unsafe.Pointer
	typ reflect.Type
	n   int
}

type walker struct {
	maxDepth int
	path     map[nodeID]struct{}
}

// Sanitize returns a deep copy of v made of map[string]any, []any and scalars.
// A container already on the current path, or nested deeper than maxDepth,
// is replaced with Circular. maxDepth <= 0 or above MaxDepth means MaxDepth.
// The input is never modified.
func Sanitize(v any, maxDepth int) any {
	if maxDepth <= 0 || maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}
	w := walker{maxDepth: maxDepth, path: make(map[nodeID]struct{})}
	return w.value(reflect.ValueOf(v), 0)
}

func (w *walker) value(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.value(v.Elem(), depth)
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.CanInterface() && v.Type().Implements(errorType) {
			return v.Interface().(error).Error()
		}
		return w.enter(v, depth, func() any { return w.value(v.Elem(), depth) })
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		return w.enter(v, depth, func() any { return w.mapValue(v, depth) })
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), v.Bytes()...)
		}
		return w.enter(v, depth, func() any { return w.listValue(v, depth) })
	case reflect.Array:
		return w.listValue(v, depth)
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface()
		}
		if v.CanInterface() {
			if err, ok := v.Interface().(error); ok {
				return err.Error()
			}
		}
		return w.structValue(v, depth)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		if v.CanInterface() {
			return v.Interface()
		}
		return scalarCopy(v)
	default:
		return Unsupported
	}
}

// enter tracks a reference node on the path while fn copies it.
func (w *walker) enter(v reflect.Value, depth int, fn func() any) any {
	id := nodeID{ptr: v.UnsafePointer()}
	switch v.Kind() {
	case reflect.Slice:
		id.n = v.Len()
	case reflect.Pointer:
		id.typ = v.Type()
	}
	if _, seen := w.path[id]; seen {
		return Circular
	}
	w.path[id] = struct{}{}
	defer delete(w.path, id)
	return fn()
}

// child copies a nested value, enforcing the depth limit on containers.
func (w *walker) child(v reflect.Value, depth int) any {
	if isContainer(v) && depth+1 > w.maxDepth {
		return Circular
	}
	return w.value(v, depth+1)
}

func (w *walker) mapValue(v reflect.Value, depth int) any {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[keyString(iter.Key())] = w.child(iter.Value(), depth)
	}
	return out
}

func (w *walker) listValue(v reflect.Value, depth int) any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = w.child(v.Index(i), depth)
	}
	return out
}

func (w *walker) structValue(v reflect.Value, depth int) any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = w.child(v.Field(i), depth)
	}
	return out
}

// isContainer reports whether v (after unwrapping interfaces and pointers) holds children.
func isContainer(v reflect.Value) bool {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Map, reflect.Array:
		return true
	case reflect.Slice:
		return v.Type().Elem().Kind() != reflect.Uint8
	case reflect.Struct:
		return v.Type() != timeType
	default:
		return false
	}
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return fmt.Sprint(scalarCopy(k))
}

// scalarCopy reads scalars reached through unexported fields.
func scalarCopy(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	default:
		return Unsupported
	}
}
