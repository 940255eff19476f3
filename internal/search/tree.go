package search

import (
	"maps"
	"reflect"
	"slices"
	"unsafe"
)

type frameKind uint8

const (
	// scanChildren walks the keys (or indices) of a container.
	scanChildren frameKind = iota
	// searchElements runs a full search on each element of an array value.
	searchElements
)

type frame struct {
	kind  frameKind
	node  any
	m     map[string]any
	keys  []string
	items []any
	next  int
	id    identity
}

type identity struct {
	ptr unsafe.Pointer
	typ reflect.Type
	n   int
}

type matcher struct {
	q        Query
	shape    map[string]any
	value    any
	shallow  bool
	maxDepth int

	stack  []frame
	onPath map[identity]struct{}
}

// SearchTree looks for q anywhere inside tree and returns the innermost node
// that holds the match:
//   - tree itself when it equals the query or, for shapes, when its projection
//     onto the shape's keys equals the shape;
//   - the node whose child value equals the query;
//   - a nested object or array element that matches as a whole.
//
// Children are visited in natural order: sorted keys for maps, index order for
// slices. Go maps keep no insertion order, so sorting stands in for it; when
// several nodes match, the first in sorted key order wins.
// With opts.Shallow only the top-level children are compared.
//
// Every query is searched, including ExactValue{""} and ExactValue{nil};
// deciding that such a query means "no filter" is left to Filter.
// The walk uses an explicit stack bounded by opts.MaxDepth and never re-enters
// a container already on the current path, so cyclic input terminates.
func SearchTree(tree any, q Query, opts Options) (any, bool) {
	if q == nil {
		return nil, false
	}

	m := &matcher{q: q, shallow: opts.Shallow, maxDepth: opts.MaxDepth}
	if m.maxDepth <= 0 {
		m.maxDepth = DefaultMaxDepth
	}
	switch q := q.(type) {
	case ExactValue:
		m.value = q.Value
	case PartialShape:
		if len(q.Fields) == 0 {
			return nil, false
		}
		m.shape = q.Fields
		m.value = q.Fields
	}

	return m.run(tree)
}

func (m *matcher) run(tree any) (any, bool) {
	if m.matches(tree) {
		return tree, true
	}
	m.onPath = make(map[identity]struct{})
	m.push(scanChildren, tree)

	for len(m.stack) > 0 {
		top := &m.stack[len(m.stack)-1]

		switch top.kind {
		case scanChildren:
			child, ok := top.advance()
			if !ok {
				m.pop()
				continue
			}
			node := top.node
			if Equal(child, m.value) {
				return node, true
			}
			if m.shallow {
				continue
			}
			if _, isMap := stringMap(child); isMap {
				if m.matches(child) {
					return child, true
				}
				m.push(scanChildren, child)
			} else if _, isList := list(child); isList {
				m.push(searchElements, child)
			}

		case searchElements:
			if top.next >= len(top.items) {
				m.pop()
				continue
			}
			el := top.items[top.next]
			top.next++
			if m.matches(el) {
				return el, true
			}
			m.push(scanChildren, el)
		}
	}
	return nil, false
}

// matches applies the whole-node checks: deep equality with the query and,
// for shapes, equality of the projection onto the shape's keys.
func (m *matcher) matches(node any) bool {
	if Equal(node, m.value) {
		return true
	}
	if m.shape == nil {
		return false
	}
	obj, ok := stringMap(node)
	if !ok {
		return false
	}
	for k, want := range m.shape {
		got, ok := obj[k]
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}

// push adds a frame for node when it is a non-empty container that is not
// already on the path and the depth bound allows it.
func (m *matcher) push(kind frameKind, node any) {
	if len(m.stack) >= m.maxDepth {
		return
	}

	f := frame{kind: kind, node: node}
	if obj, ok := stringMap(node); ok {
		if kind != scanChildren || len(obj) == 0 {
			return
		}
		f.m = obj
		f.keys = slices.Sorted(maps.Keys(obj))
	} else if items, ok := list(node); ok {
		if len(items) == 0 {
			return
		}
		f.items = items
	} else {
		return
	}

	f.id = identityOf(node)
	if f.id.ptr != nil {
		if _, seen := m.onPath[f.id]; seen {
			return
		}
		m.onPath[f.id] = struct{}{}
	}
	m.stack = append(m.stack, f)
}

func (m *matcher) pop() {
	f := m.stack[len(m.stack)-1]
	if f.id.ptr != nil {
		delete(m.onPath, f.id)
	}
	m.stack = m.stack[:len(m.stack)-1]
}

// advance returns the next child of a scanChildren frame.
func (f *frame) advance() (any, bool) {
	if f.m != nil {
		if f.next >= len(f.keys) {
			return nil, false
		}
		v := f.m[f.keys[f.next]]
		f.next++
		return v, true
	}
	if f.next >= len(f.items) {
		return nil, false
	}
	v := f.items[f.next]
	f.next++
	return v, true
}

// identityOf returns the reference identity of maps, pointers and slices.
// Arrays and other values have none and cannot form cycles.
func identityOf(v any) identity {
	rv := reflect.ValueOf(v)
	var id identity
	switch rv.Kind() {
	case reflect.Map:
		id.ptr = rv.UnsafePointer()
	case reflect.Pointer:
		id.ptr = rv.UnsafePointer()
		id.typ = rv.Type()
	case reflect.Slice:
		id.ptr = rv.UnsafePointer()
		id.n = rv.Len()
	}
	return id
}
