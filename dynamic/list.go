// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamic

// List is the container behind a repeated field's value, holding one
// element per wire occurrence (or per packed element). Element values use
// the same native Go type coerceSingular produces for a singular field of the
// same kind.
type List struct {
	elems []interface{}
}

// NewList returns an empty List.
func NewList() *List {
	return &List{}
}

func (l *List) Len() int { return len(l.elems) }

func (l *List) Get(i int) interface{} { return l.elems[i] }

func (l *List) Set(i int, v interface{}) { l.elems[i] = v }

func (l *List) Append(v interface{}) { l.elems = append(l.elems, v) }

func (l *List) Truncate(n int) {
	for i := n; i < len(l.elems); i++ {
		l.elems[i] = nil
	}
	l.elems = l.elems[:n]
}

// Range visits every element in order.
func (l *List) Range(f func(i int, v interface{}) bool) {
	for i, v := range l.elems {
		if !f(i, v) {
			return
		}
	}
}
