// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamic

import "sort"

// Map is the container behind a map field's value. Keys are the native Go
// comparable value for the declared key kind (bool, an integer type, or
// string); values use the same representation as a singular field of the
// declared value kind.
type Map struct {
	entries map[interface{}]interface{}
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{entries: make(map[interface{}]interface{})}
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Get(k interface{}) (interface{}, bool) {
	v, ok := m.entries[k]
	return v, ok
}

func (m *Map) Set(k, v interface{}) { m.entries[k] = v }

func (m *Map) Has(k interface{}) bool {
	_, ok := m.entries[k]
	return ok
}

func (m *Map) Clear(k interface{}) { delete(m.entries, k) }

// Range visits every entry in undefined order.
func (m *Map) Range(f func(k, v interface{}) bool) {
	for k, v := range m.entries {
		if !f(k, v) {
			return
		}
	}
}

// SortedKeys returns the map's keys in a deterministic order, used by the
// codec's deterministic-marshal mode. Keys must all be of the same
// comparable scalar kind (bool, an integer type, or string).
func (m *Map) SortedKeys() []interface{} {
	keys := make([]interface{}, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	return keys
}

func lessKey(a, b interface{}) bool {
	switch av := a.(type) {
	case bool:
		return !av && b.(bool)
	case int32:
		return av < b.(int32)
	case int64:
		return av < b.(int64)
	case uint32:
		return av < b.(uint32)
	case uint64:
		return av < b.(uint64)
	case string:
		return av < b.(string)
	default:
		return false
	}
}
