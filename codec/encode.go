// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"math"
	"sort"

	"github.com/sergey0xff/protox/dynamic"
	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/schema"
	"github.com/sergey0xff/protox/wire"
)

func float32bits(f float32) uint32 { return math.Float32bits(f) }
func float64bits(f float64) uint64 { return math.Float64bits(f) }

func (o MarshalOptions) marshalMessage(b []byte, m *dynamic.Message) ([]byte, error) {
	desc := m.Descriptor()
	// An incomplete descriptor has no field table, so Set can never have
	// populated a known field against it; the only way m carries payload
	// is a preserved unknown field, which still must fail per §4.2 unless
	// m is otherwise empty.
	if !desc.IsComplete() && len(m.UnknownFields()) > 0 {
		return b, protoerrors.New(protoerrors.SchemaIncomplete, desc.Name, "encoding non-empty value of incomplete descriptor")
	}
	var nerr protoerrors.NonFatal
	for _, fd := range orderedFields(desc) {
		if !m.Has(fd.Name) {
			if fd.Required && !o.AllowPartial {
				if !nerr.Merge(protoerrors.New(protoerrors.MissingRequired, fd.Name, "required field not set")) {
					return b, nerr.E
				}
			}
			continue
		}
		var err error
		b, err = o.marshalField(b, fd, m.Get(fd.Name))
		if !nerr.Merge(err) {
			return b, err
		}
	}
	for _, uf := range m.UnknownFields() {
		b = wire.AppendTag(b, uf.Tag, uf.WireType)
		b = append(b, uf.Raw...)
	}
	return b, nerr.E
}

func orderedFields(desc *schema.MessageDescriptor) []*schema.FieldDescriptor {
	fields := make([]*schema.FieldDescriptor, len(desc.Fields))
	copy(fields, desc.Fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Tag < fields[j].Tag })
	return fields
}

func (o MarshalOptions) marshalField(b []byte, fd *schema.FieldDescriptor, v interface{}) ([]byte, error) {
	switch {
	case fd.IsMap():
		return o.marshalMap(b, fd, v.(*dynamic.Map))
	case fd.Cardinality == schema.PackedRepeated:
		return o.marshalPacked(b, fd, v.(*dynamic.List))
	case fd.Cardinality == schema.Repeated:
		return o.marshalList(b, fd, v.(*dynamic.List))
	default:
		b = wire.AppendTag(b, fd.Tag, fd.WireType())
		return o.marshalSingular(b, fd, v)
	}
}

func (o MarshalOptions) marshalSingular(b []byte, fd *schema.FieldDescriptor, v interface{}) ([]byte, error) {
	switch fd.Kind {
	case schema.BoolKind:
		n := uint64(0)
		if v.(bool) {
			n = 1
		}
		return wire.AppendVarint(b, n), nil
	case schema.Int32Kind:
		// Negative int32 values are sign-extended to 64 bits before varint
		// encoding, matching the reference implementation's 10-byte
		// representation for negative 32-bit fields.
		return wire.AppendVarint(b, uint64(int64(v.(int32)))), nil
	case schema.Int64Kind:
		return wire.AppendVarint(b, uint64(v.(int64))), nil
	case schema.Uint32Kind:
		return wire.AppendVarint(b, uint64(v.(uint32))), nil
	case schema.Uint64Kind:
		return wire.AppendVarint(b, v.(uint64)), nil
	case schema.Sint32Kind:
		return wire.AppendVarint(b, uint64(wire.EncodeZigZag32(v.(int32)))), nil
	case schema.Sint64Kind:
		return wire.AppendVarint(b, wire.EncodeZigZag64(v.(int64))), nil
	case schema.EnumKind:
		return wire.AppendVarint(b, uint64(uint32(v.(int32)))), nil
	case schema.Fixed32Kind:
		return wire.AppendFixed32(b, v.(uint32)), nil
	case schema.Sfixed32Kind:
		return wire.AppendFixed32(b, uint32(v.(int32))), nil
	case schema.FloatKind:
		return wire.AppendFixed32(b, float32bits(v.(float32))), nil
	case schema.Fixed64Kind:
		return wire.AppendFixed64(b, v.(uint64)), nil
	case schema.Sfixed64Kind:
		return wire.AppendFixed64(b, uint64(v.(int64))), nil
	case schema.DoubleKind:
		return wire.AppendFixed64(b, float64bits(v.(float64))), nil
	case schema.StringKind:
		return wire.AppendBytes(b, []byte(v.(string))), nil
	case schema.BytesKind:
		return wire.AppendBytes(b, v.([]byte)), nil
	case schema.MessageKind:
		return o.marshalSubmessage(b, v.(*dynamic.Message))
	default:
		return b, protoerrors.New(protoerrors.TagConflict, fd.Name, "unsupported field kind for marshal")
	}
}

func (o MarshalOptions) marshalSubmessage(b []byte, sub *dynamic.Message) ([]byte, error) {
	pos := appendSpeculativeLength(&b)
	var nerr protoerrors.NonFatal
	b, err := o.marshalMessage(b, sub)
	if !nerr.Merge(err) {
		return b, err
	}
	b = finishSpeculativeLength(b, pos)
	return b, nerr.E
}

func (o MarshalOptions) marshalPacked(b []byte, fd *schema.FieldDescriptor, list *dynamic.List) ([]byte, error) {
	if list.Len() == 0 {
		return b, nil
	}
	b = wire.AppendTag(b, fd.Tag, wire.BytesType)
	pos := appendSpeculativeLength(&b)
	var nerr protoerrors.NonFatal
	for i := 0; i < list.Len(); i++ {
		var err error
		b, err = o.marshalSingular(b, fd, list.Get(i))
		if !nerr.Merge(err) {
			return b, err
		}
	}
	b = finishSpeculativeLength(b, pos)
	return b, nerr.E
}

func (o MarshalOptions) marshalList(b []byte, fd *schema.FieldDescriptor, list *dynamic.List) ([]byte, error) {
	var nerr protoerrors.NonFatal
	for i := 0; i < list.Len(); i++ {
		b = wire.AppendTag(b, fd.Tag, fd.WireType())
		var err error
		b, err = o.marshalSingular(b, fd, list.Get(i))
		if !nerr.Merge(err) {
			return b, err
		}
	}
	return b, nerr.E
}

func (o MarshalOptions) marshalMap(b []byte, fd *schema.FieldDescriptor, m *dynamic.Map) ([]byte, error) {
	entry := fd.EntryDescriptor()
	keyField := entry.FieldByTag(1)
	valField := entry.FieldByTag(2)
	var nerr protoerrors.NonFatal
	var fatal error

	emit := func(k, v interface{}) bool {
		b = wire.AppendTag(b, fd.Tag, wire.BytesType)
		pos := appendSpeculativeLength(&b)
		var err error
		b = wire.AppendTag(b, keyField.Tag, keyField.WireType())
		b, err = o.marshalSingular(b, keyField, k)
		if !nerr.Merge(err) {
			fatal = err
			return false
		}
		b = wire.AppendTag(b, valField.Tag, valField.WireType())
		b, err = o.marshalSingular(b, valField, v)
		if !nerr.Merge(err) {
			fatal = err
			return false
		}
		b = finishSpeculativeLength(b, pos)
		return true
	}

	if o.Deterministic {
		for _, k := range m.SortedKeys() {
			v, _ := m.Get(k)
			if !emit(k, v) {
				break
			}
		}
	} else {
		m.Range(func(k, v interface{}) bool { return emit(k, v) })
	}
	if fatal != nil {
		return b, fatal
	}
	return b, nerr.E
}

// appendSpeculativeLength reserves one byte in *b for a length varint that
// will be filled in by finishSpeculativeLength once the body is known,
// shifting bytes only when the true length does not fit in one byte.
const speculativeLength = 1

func appendSpeculativeLength(b *[]byte) int {
	pos := len(*b)
	*b = append(*b, "\x00"[:speculativeLength]...)
	return pos
}

func finishSpeculativeLength(b []byte, pos int) []byte {
	mlen := len(b) - pos - speculativeLength
	msiz := wire.SizeVarint(uint64(mlen))
	if msiz != speculativeLength {
		for i := 0; i < msiz-speculativeLength; i++ {
			b = append(b, 0)
		}
		copy(b[pos+msiz:], b[pos+speculativeLength:])
		b = b[:pos+msiz+mlen]
	}
	wire.AppendVarint(b[:pos], uint64(mlen))
	return b
}
