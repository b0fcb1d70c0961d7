// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import "github.com/sergey0xff/protox/wire"

// Kind indicates the basic type of a field's value, independent of its
// cardinality.
type Kind int

const (
	InvalidKind Kind = iota
	BoolKind
	Int32Kind
	Int64Kind
	Uint32Kind
	Uint64Kind
	Sint32Kind
	Sint64Kind
	Fixed32Kind
	Fixed64Kind
	Sfixed32Kind
	Sfixed64Kind
	FloatKind
	DoubleKind
	StringKind
	BytesKind
	EnumKind
	MessageKind
)

func (k Kind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case Int32Kind:
		return "int32"
	case Int64Kind:
		return "int64"
	case Uint32Kind:
		return "uint32"
	case Uint64Kind:
		return "uint64"
	case Sint32Kind:
		return "sint32"
	case Sint64Kind:
		return "sint64"
	case Fixed32Kind:
		return "fixed32"
	case Fixed64Kind:
		return "fixed64"
	case Sfixed32Kind:
		return "sfixed32"
	case Sfixed64Kind:
		return "sfixed64"
	case FloatKind:
		return "float"
	case DoubleKind:
		return "double"
	case StringKind:
		return "string"
	case BytesKind:
		return "bytes"
	case EnumKind:
		return "enum"
	case MessageKind:
		return "message"
	default:
		return "invalid"
	}
}

// WireType returns the on-wire shape used to encode a value of kind k.
func (k Kind) WireType() wire.Type {
	switch k {
	case BoolKind, Int32Kind, Int64Kind, Uint32Kind, Uint64Kind, Sint32Kind, Sint64Kind, EnumKind:
		return wire.VarintType
	case Fixed32Kind, Sfixed32Kind, FloatKind:
		return wire.Fixed32Type
	case Fixed64Kind, Sfixed64Kind, DoubleKind:
		return wire.Fixed64Type
	case StringKind, BytesKind, MessageKind:
		return wire.BytesType
	default:
		return wire.VarintType
	}
}

// IsValidMapKeyKind reports whether k may be used as a map key: any integer
// kind, bool, or string — never float, bytes, enum, or message.
func IsValidMapKeyKind(k Kind) bool {
	switch k {
	case BoolKind, Int32Kind, Int64Kind, Uint32Kind, Uint64Kind, Sint32Kind, Sint64Kind,
		Fixed32Kind, Fixed64Kind, Sfixed32Kind, Sfixed64Kind, StringKind:
		return true
	default:
		return false
	}
}

// Cardinality determines how many values a field may carry and how a
// repeated scalar is framed on the wire.
type Cardinality int

const (
	Singular Cardinality = iota
	Repeated
	PackedRepeated
	MapCardinality
)

func (c Cardinality) String() string {
	switch c {
	case Singular:
		return "singular"
	case Repeated:
		return "repeated"
	case PackedRepeated:
		return "packed_repeated"
	case MapCardinality:
		return "map"
	default:
		return "invalid"
	}
}

// Syntax distinguishes the proto2 and proto3 dialects, which affect default
// packing and whether required fields are permitted.
type Syntax int

const (
	Proto2 Syntax = iota
	Proto3
)
