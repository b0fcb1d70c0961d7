// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style.
// license that can be found in the LICENSE file.

package codec

import (
	"math"

	"github.com/sergey0xff/protox/dynamic"
	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/schema"
	"github.com/sergey0xff/protox/wire"
)

func (o UnmarshalOptions) unmarshalMessage(b []byte, m *dynamic.Message) error {
	desc := m.Descriptor()
	if !desc.IsComplete() && len(b) > 0 {
		return protoerrors.New(protoerrors.SchemaIncomplete, desc.Name, "decoding non-empty bytes against incomplete descriptor")
	}
	var nerr protoerrors.NonFatal
	for len(b) > 0 {
		num, wtyp, tagLen := wire.ConsumeTag(b)
		if tagLen < 0 {
			return wire.ParseError(tagLen)
		}
		rest := b[tagLen:]

		fd := desc.FieldByTag(num)
		var valLen int
		var err error
		switch {
		case fd == nil:
			err = errUnknown
		case fd.IsMap():
			valLen, err = o.unmarshalMapEntry(rest, wtyp, fd, m)
		case fd.Cardinality == schema.Repeated || fd.Cardinality == schema.PackedRepeated:
			valLen, err = o.unmarshalRepeated(rest, wtyp, fd, m)
		default:
			valLen, err = o.unmarshalSingularField(rest, wtyp, fd, m)
		}

		if err == errUnknown {
			valLen = wire.ConsumeFieldValue(num, wtyp, rest)
			if valLen < 0 {
				return wire.ParseError(valLen)
			}
			if !o.DiscardUnknown {
				m.AppendUnknown(num, wtyp, append([]byte(nil), rest[:valLen]...))
			}
		} else if !nerr.Merge(err) {
			return err
		}
		b = rest[valLen:]
	}
	return nerr.E
}

// errUnknown routes a tag to the unknown-field side channel. It is never
// returned from an exported function.
var errUnknown = protoerrors.New(protoerrors.TagConflict, "", "internal: unknown field")

func (o UnmarshalOptions) unmarshalSingularField(b []byte, wtyp wire.Type, fd *schema.FieldDescriptor, m *dynamic.Message) (int, error) {
	if fd.Kind == schema.MessageKind {
		if wtyp != wire.BytesType {
			return 0, protoerrors.New(protoerrors.WireTypeMismatch, fd.Name, "expected length-delimited wire type for message field")
		}
		body, n := wire.ConsumeBytes(b)
		if n < 0 {
			return 0, wire.ParseError(n)
		}
		var sub *dynamic.Message
		if existing, ok := m.Get(fd.Name).(*dynamic.Message); ok && existing != nil && m.Has(fd.Name) {
			sub = existing
		}
		if sub == nil {
			sub = dynamic.New(fd.MessageType)
		}
		var nerr protoerrors.NonFatal
		if err := o.unmarshalMessage(body, sub); !nerr.Merge(err) {
			return n, err
		}
		if err := m.Set(fd.Name, sub); err != nil {
			return n, err
		}
		return n, nerr.E
	}

	if wtyp != fd.Kind.WireType() {
		return 0, protoerrors.New(protoerrors.WireTypeMismatch, fd.Name, "unexpected wire type %d", wtyp)
	}
	v, n, err := unmarshalScalar(b, wtyp, fd.Kind)
	if err != nil {
		return 0, err
	}
	if err := m.Set(fd.Name, v); err != nil {
		return n, err
	}
	return n, nil
}

func (o UnmarshalOptions) unmarshalRepeated(b []byte, wtyp wire.Type, fd *schema.FieldDescriptor, m *dynamic.Message) (int, error) {
	list, _ := m.Get(fd.Name).(*dynamic.List)
	if list == nil {
		list = dynamic.NewList()
	}

	if fd.Kind == schema.MessageKind {
		if wtyp != wire.BytesType {
			return 0, protoerrors.New(protoerrors.WireTypeMismatch, fd.Name, "expected length-delimited wire type for message field")
		}
		body, n := wire.ConsumeBytes(b)
		if n < 0 {
			return 0, wire.ParseError(n)
		}
		sub := dynamic.New(fd.MessageType)
		var nerr protoerrors.NonFatal
		if err := o.unmarshalMessage(body, sub); !nerr.Merge(err) {
			return n, err
		}
		list.Append(sub)
		if err := m.Set(fd.Name, list); err != nil {
			return n, err
		}
		return n, nerr.E
	}

	declaredWireType := fd.Kind.WireType()
	switch {
	case wtyp == wire.BytesType && declaredWireType != wire.BytesType:
		// A packed run arrived regardless of the field's own declared
		// packing (§4.5.2): unpack every element.
		body, n := wire.ConsumeBytes(b)
		if n < 0 {
			return 0, wire.ParseError(n)
		}
		rest := body
		for len(rest) > 0 {
			v, elemLen, err := unmarshalScalar(rest, declaredWireType, fd.Kind)
			if err != nil {
				return 0, err
			}
			list.Append(v)
			rest = rest[elemLen:]
		}
		if err := m.Set(fd.Name, list); err != nil {
			return n, err
		}
		return n, nil
	case wtyp == declaredWireType:
		v, n, err := unmarshalScalar(b, wtyp, fd.Kind)
		if err != nil {
			return 0, err
		}
		list.Append(v)
		if err := m.Set(fd.Name, list); err != nil {
			return n, err
		}
		return n, nil
	default:
		return 0, protoerrors.New(protoerrors.WireTypeMismatch, fd.Name, "unexpected wire type %d", wtyp)
	}
}

func (o UnmarshalOptions) unmarshalMapEntry(b []byte, wtyp wire.Type, fd *schema.FieldDescriptor, m *dynamic.Message) (int, error) {
	if wtyp != wire.BytesType {
		return 0, protoerrors.New(protoerrors.WireTypeMismatch, fd.Name, "expected length-delimited wire type for map field")
	}
	body, n := wire.ConsumeBytes(b)
	if n < 0 {
		return 0, wire.ParseError(n)
	}
	entry := fd.EntryDescriptor()
	keyField := entry.FieldByTag(1)
	valField := entry.FieldByTag(2)

	key := schema.ZeroValue(fd.KeyKind)
	var val interface{}
	haveVal := false

	rest := body
	for len(rest) > 0 {
		num, wt, tagLen := wire.ConsumeTag(rest)
		if tagLen < 0 {
			return 0, wire.ParseError(tagLen)
		}
		elemBody := rest[tagLen:]
		var elemLen int
		var err error
		switch num {
		case keyField.Tag:
			var v interface{}
			v, elemLen, err = unmarshalScalar(elemBody, wt, keyField.Kind)
			if err == nil {
				key = v
			}
		case valField.Tag:
			if valField.Kind == schema.MessageKind {
				var body2 []byte
				body2, elemLen = wire.ConsumeBytes(elemBody)
				if elemLen < 0 {
					err = wire.ParseError(elemLen)
				} else {
					sub := dynamic.New(valField.MessageType)
					err = o.unmarshalMessage(body2, sub)
					val = sub
					haveVal = true
				}
			} else {
				var v interface{}
				v, elemLen, err = unmarshalScalar(elemBody, wt, valField.Kind)
				if err == nil {
					val = v
					haveVal = true
				}
			}
		default:
			elemLen = wire.ConsumeFieldValue(num, wt, elemBody)
			if elemLen < 0 {
				err = wire.ParseError(elemLen)
			}
		}
		if err != nil {
			return 0, err
		}
		rest = elemBody[elemLen:]
	}
	if !haveVal {
		if valField.Kind == schema.MessageKind {
			val = dynamic.New(valField.MessageType)
		} else {
			val = schema.ZeroValue(valField.Kind)
		}
	}

	mp, _ := m.Get(fd.Name).(*dynamic.Map)
	if mp == nil {
		mp = dynamic.NewMap()
	}
	mp.Set(key, val)
	if err := m.Set(fd.Name, mp); err != nil {
		return n, err
	}
	return n, nil
}

// unmarshalScalar decodes one wire value of kind, given its already-known
// wire type. MessageKind is not handled here (callers consume and
// recursively unmarshal message bodies themselves); it and any other
// unhandled kind report WireTypeMismatch.
func unmarshalScalar(b []byte, wtyp wire.Type, kind schema.Kind) (interface{}, int, error) {
	switch kind {
	case schema.BoolKind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return v != 0, n, nil
	case schema.Int32Kind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return int32(v), n, nil
	case schema.Int64Kind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return int64(v), n, nil
	case schema.Uint32Kind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return uint32(v), n, nil
	case schema.Uint64Kind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return v, n, nil
	case schema.Sint32Kind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return wire.DecodeZigZag32(v), n, nil
	case schema.Sint64Kind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return wire.DecodeZigZag64(v), n, nil
	case schema.EnumKind:
		v, n := wire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return int32(uint32(v)), n, nil
	case schema.Fixed32Kind:
		v, n := wire.ConsumeFixed32(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return v, n, nil
	case schema.Sfixed32Kind:
		v, n := wire.ConsumeFixed32(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return int32(v), n, nil
	case schema.FloatKind:
		v, n := wire.ConsumeFixed32(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return math.Float32frombits(v), n, nil
	case schema.Fixed64Kind:
		v, n := wire.ConsumeFixed64(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return v, n, nil
	case schema.Sfixed64Kind:
		v, n := wire.ConsumeFixed64(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return int64(v), n, nil
	case schema.DoubleKind:
		v, n := wire.ConsumeFixed64(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return math.Float64frombits(v), n, nil
	case schema.StringKind:
		v, n := wire.ConsumeBytes(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return string(v), n, nil
	case schema.BytesKind:
		v, n := wire.ConsumeBytes(b)
		if n < 0 {
			return nil, 0, wire.ParseError(n)
		}
		return append([]byte(nil), v...), n, nil
	default:
		return nil, 0, protoerrors.New(protoerrors.WireTypeMismatch, "", "unsupported scalar kind for wire type %d", wtyp)
	}
}
