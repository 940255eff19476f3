// Package search finds values and partial shapes inside log entries and filters entry collections.
package search

import (
	"reflect"

	"github.com/coffersTech/logpile/internal/model"
)

// DefaultMaxDepth bounds the matcher's work-list when Options.MaxDepth is unset.
const DefaultMaxDepth = 1024

// Query is either an ExactValue or a PartialShape.
type Query interface {
	isQuery()
}

// ExactValue matches any node, or child value, deep-equal to Value.
type ExactValue struct {
	Value any
}

// PartialShape matches an object whose projection onto the shape's keys equals Fields.
// An empty shape matches nothing.
type PartialShape struct {
	Fields map[string]any
}

func (ExactValue) isQuery()   {}
func (PartialShape) isQuery() {}

// Options tune SearchTree and Filter.
type Options struct {
	// Shallow restricts matching to the top level of each entry.
	Shallow bool
	// Time keeps entries newer than now minus this window ("10s", "5m", "2 days").
	Time string
	// Intersect applies Time to the content matches instead of to every entry.
	Intersect bool
	// MaxDepth bounds traversal depth; 0 means DefaultMaxDepth.
	MaxDepth int
}

// NewQuery resolves a caller supplied value: string-keyed maps become a
// PartialShape, nil becomes no query and everything else an ExactValue.
func NewQuery(v any) Query {
	switch q := v.(type) {
	case nil:
		return nil
	case Query:
		return q
	case map[string]any:
		return PartialShape{Fields: q}
	case model.Entry:
		return PartialShape{Fields: q}
	}
	if m, ok := stringMap(v); ok {
		return PartialShape{Fields: m}
	}
	return ExactValue{Value: v}
}

// Present reports whether q filters anything. Nil queries and exact
// queries for nil or "" are absent.
func Present(q Query) bool {
	switch q := q.(type) {
	case ExactValue:
		if q.Value == nil {
			return false
		}
		if s, ok := q.Value.(string); ok && s == "" {
			return false
		}
		return true
	case PartialShape:
		return true
	default:
		return false
	}
}

// stringMap converts any string-keyed map into map[string]any without copying values.
func stringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case model.Entry:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// list converts slices and arrays (other than []byte) into []any without copying values.
func list(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	case reflect.Array:
	default:
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
