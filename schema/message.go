// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import "github.com/sergey0xff/protox/wire"

// OneofDescriptor is a named group of singular, non-required fields of
// which at most one may be set on a given message value.
type OneofDescriptor struct {
	Name       string
	FieldNames []string
}

// MessageDescriptor is the per-message-type registry of field descriptors,
// indexed by both tag number and field name, plus oneof group tables and
// nested type references.
//
// A MessageDescriptor may be constructed in two phases to support recursive
// and mutually-referential schemas: RegisterMessage creates it with an empty
// field table, and a single later call to DefineFields populates it. Once
// the owning Registry is frozen, the descriptor is immutable; before that,
// AddField can still append fields after DefineFields has run.
type MessageDescriptor struct {
	Name       string
	Syntax     Syntax
	IsMapEntry bool

	Fields []*FieldDescriptor
	Oneofs []*OneofDescriptor

	byTag  map[wire.Number]*FieldDescriptor
	byName map[string]*FieldDescriptor

	fieldsDefined bool // DefineFields (or inline AddField use) has run
}

// FieldByTag looks up a field by its wire tag number. It returns nil if no
// such field exists.
func (m *MessageDescriptor) FieldByTag(tag wire.Number) *FieldDescriptor {
	return m.byTag[tag]
}

// FieldByName looks up a field by its declared name. It returns nil if no
// such field exists.
func (m *MessageDescriptor) FieldByName(name string) *FieldDescriptor {
	return m.byName[name]
}

// OneofByName looks up a oneof group by name. It returns nil if no such
// group exists.
func (m *MessageDescriptor) OneofByName(name string) *OneofDescriptor {
	for _, o := range m.Oneofs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// IsComplete reports whether the field table has been populated, either by
// an AddField call or by a completed DefineFields call.
func (m *MessageDescriptor) IsComplete() bool {
	return m.fieldsDefined
}

// EnumDescriptor is the set of symbolic name <-> numeric value mappings for
// an enum type. An out-of-range numeric value is never rejected: per §9, an
// unrecognized number simply cannot be resolved back to a symbol, but is
// still a valid stored integer.
type EnumDescriptor struct {
	Name          string
	byName        map[string]int32
	byNumber      map[int32]string // first name registered for a number wins
	orderedNames  []string
}

// NumberOf returns the numeric value for a declared symbol and reports
// whether it was found.
func (e *EnumDescriptor) NumberOf(name string) (int32, bool) {
	v, ok := e.byName[name]
	return v, ok
}

// NameOf returns the symbolic name registered for a numeric value, if any.
// An enum decoded with an unrecognized number has no name; callers should
// still treat the stored integer as valid per §9.
func (e *EnumDescriptor) NameOf(number int32) (string, bool) {
	n, ok := e.byNumber[number]
	return n, ok
}

// Names returns the enum's declared symbols in sorted (alphabetical) order.
func (e *EnumDescriptor) Names() []string {
	out := make([]string, len(e.orderedNames))
	copy(out, e.orderedNames)
	return out
}
