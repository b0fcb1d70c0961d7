// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamic

import "bytes"

// Equal reports whether a and b are of the same descriptor and hold equal
// field values, including unknown fields. Two unset fields are equal, and an
// empty repeated or map field equals an unset one. A floating-point NaN is
// never equal to any value, including itself.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.desc != b.desc {
		return false
	}
	seen := make(map[string]bool, len(a.known)+len(b.known))
	for name := range a.known {
		seen[name] = true
	}
	for name := range b.known {
		seen[name] = true
	}
	for name := range seen {
		if !a.Has(name) && !b.Has(name) {
			continue
		}
		if !equalValue(a.known[name], b.known[name]) {
			return false
		}
	}
	return equalUnknown(a.unknown, b.unknown)
}

func equalValue(v1, v2 interface{}) bool {
	if v1 == nil || v2 == nil {
		return v1 == nil && v2 == nil
	}
	switch a := v1.(type) {
	case *Message:
		b, ok := v2.(*Message)
		return ok && Equal(a, b)
	case *List:
		b, ok := v2.(*List)
		if !ok || a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !equalValue(a.Get(i), b.Get(i)) {
				return false
			}
		}
		return true
	case *Map:
		b, ok := v2.(*Map)
		if !ok || a.Len() != b.Len() {
			return false
		}
		eq := true
		a.Range(func(k, v interface{}) bool {
			bv, ok := b.Get(k)
			if !ok || !equalValue(v, bv) {
				eq = false
				return false
			}
			return true
		})
		return eq
	case []byte:
		b, ok := v2.([]byte)
		return ok && bytes.Equal(a, b)
	default:
		return v1 == v2
	}
}

func equalUnknown(u1, u2 []UnknownField) bool {
	if len(u1) != len(u2) {
		return false
	}
	for i := range u1 {
		if u1[i].Tag != u2[i].Tag || u1[i].WireType != u2[i].WireType || !bytes.Equal(u1[i].Raw, u2[i].Raw) {
			return false
		}
	}
	return true
}
