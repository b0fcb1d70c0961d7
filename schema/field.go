// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import "github.com/sergey0xff/protox/wire"

// FieldDescriptor is immutable per-field metadata: declared tag number,
// wire type, scalar/enum/message/map kind, cardinality, defaults, the
// required flag (proto2 only), and oneof membership.
//
// A FieldDescriptor is only ever constructed by a MessageBuilder and must not be
// mutated afterward.
type FieldDescriptor struct {
	Name        string
	Tag         wire.Number
	Kind        Kind
	Cardinality Cardinality
	MessageType *MessageDescriptor // set iff Kind == MessageKind (a map's message value is in ValueMessage)
	EnumType    *EnumDescriptor    // set iff Kind == EnumKind
	Default     interface{}        // scalar default, or nil
	Required    bool               // proto2 only
	Oneof       string             // containing oneof group name, or ""

	// KeyKind/ValueKind/ValueMessage/ValueEnum describe the
	// synthetic map-entry fields when Cardinality == MapCardinality.
	KeyKind         Kind
	ValueKind       Kind
	ValueMessage    *MessageDescriptor
	ValueEnum       *EnumDescriptor
	entry           *MessageDescriptor // synthesized key=1,value=2 message
}

// WireType returns the on-wire shape used when this field is encoded as a
// single element (i.e. ignoring packing, which further wraps a repeated
// scalar's elements in a length-delimited blob).
func (f *FieldDescriptor) WireType() wire.Type {
	if f.Cardinality == MapCardinality {
		return wire.BytesType
	}
	return f.Kind.WireType()
}

// IsPacked reports whether a repeated scalar field is framed as a single
// length-delimited run of concatenated element bodies.
func (f *FieldDescriptor) IsPacked() bool {
	return f.Cardinality == PackedRepeated
}

// IsMap reports whether f is a map field.
func (f *FieldDescriptor) IsMap() bool {
	return f.Cardinality == MapCardinality
}

// EntryDescriptor returns the synthetic two-field message descriptor
// (key=1, value=2) backing a map field. It panics if f is not a map field.
func (f *FieldDescriptor) EntryDescriptor() *MessageDescriptor {
	if f.Cardinality != MapCardinality {
		panic("protox/schema: EntryDescriptor called on non-map field " + f.Name)
	}
	return f.entry
}

// ZeroValue returns the zero value for f's scalar kind — used for map key
// or value slots left absent on the wire, per §4.7.
func ZeroValue(k Kind) interface{} {
	switch k {
	case BoolKind:
		return false
	case Int32Kind, Sint32Kind, Sfixed32Kind:
		return int32(0)
	case Int64Kind, Sint64Kind, Sfixed64Kind:
		return int64(0)
	case Uint32Kind, Fixed32Kind:
		return uint32(0)
	case Uint64Kind, Fixed64Kind:
		return uint64(0)
	case FloatKind:
		return float32(0)
	case DoubleKind:
		return float64(0)
	case StringKind:
		return ""
	case BytesKind:
		return []byte(nil)
	case EnumKind:
		return int32(0)
	default:
		return nil
	}
}
