package model

import (
	"errors"

	"github.com/valyala/fastjson"
)

// ErrNotObject is returned when a JSON line does not hold an object.
var ErrNotObject = errors.New("json document is not an object")

// ParseEntry parses a single JSON line into an Entry.
func ParseEntry(p *fastjson.Parser, line []byte) (Entry, error) {
	v, err := p.ParseBytes(line)
	if err != nil {
		return nil, err
	}
	return EntryFromJSON(v)
}

// EntryFromJSON converts a parsed object into an Entry.
func EntryFromJSON(v *fastjson.Value) (Entry, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, ErrNotObject
	}
	obj, _ := FromJSON(v).(map[string]any)
	return Entry(obj), nil
}

// FromJSON converts a fastjson value into the native tree:
// objects become map[string]any, arrays []any and numbers float64.
// The result does not reference parser memory.
func FromJSON(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		out := make(map[string]any, o.Len())
		o.Visit(func(key []byte, val *fastjson.Value) {
			out[string(key)] = FromJSON(val)
		})
		return out
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, el := range arr {
			out[i] = FromJSON(el)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
