// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dynamic provides the mutable runtime value for a schema-described
// message: a slot vector addressed by field name (the active member of a
// oneof group is the one member holding a value), and a decode-time
// unknown-field side channel.
package dynamic

import (
	"unicode/utf8"

	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/schema"
	"github.com/sergey0xff/protox/wire"
)

// UnknownField is one raw, unrecognized (tag, wire type, payload) triple
// preserved verbatim across a decode/encode round-trip.
type UnknownField struct {
	Tag      wire.Number
	WireType wire.Type
	Raw      []byte
}

// Message is a dynamically constructed protocol buffer value, built against
// a *schema.MessageDescriptor rather than a generated Go struct.
//
// Operations on a Message are not safe for concurrent use.
type Message struct {
	desc    *schema.MessageDescriptor
	known   map[string]interface{}
	unknown []UnknownField
}

// New creates an empty message for the given descriptor. It does not
// require desc to be complete; an incomplete descriptor only becomes an
// error at encode/decode time (protoerrors.SchemaIncomplete), unless the value
// stays empty.
func New(desc *schema.MessageDescriptor) *Message {
	return &Message{desc: desc, known: make(map[string]interface{})}
}

// Descriptor returns the message's descriptor.
func (m *Message) Descriptor() *schema.MessageDescriptor {
	return m.desc
}

// Set assigns payload to the named field, coercing and validating it per
// the field's declared kind. Setting a oneof member clears any other member
// of the same group already set on m.
func (m *Message) Set(name string, payload interface{}) error {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return protoerrors.New(protoerrors.TagConflict, name, "unknown field")
	}
	v, err := coerce(fd, payload)
	if err != nil {
		return err
	}
	m.clearOtherOneofFields(fd)
	m.known[name] = v
	return nil
}

// Get returns the field's stored value, the declared default for an unset
// singular scalar, or nil for an unset singular message field or unset
// oneof member. Repeated and map fields are always returned as a *List or
// *Map (empty if unset).
func (m *Message) Get(name string) interface{} {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return nil
	}
	if v, ok := m.known[name]; ok {
		return v
	}
	switch {
	case fd.IsMap():
		return NewMap()
	case fd.Cardinality == schema.Repeated || fd.Cardinality == schema.PackedRepeated:
		return NewList()
	case fd.Oneof != "":
		return nil
	case fd.Kind == schema.MessageKind:
		return nil
	default:
		if fd.Default != nil {
			return fd.Default
		}
		return schema.ZeroValue(fd.Kind)
	}
}

// Has reports whether name is populated: for singular fields, whether the
// slot holds a value; for repeated/map fields, whether it is non-empty.
func (m *Message) Has(name string) bool {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return false
	}
	v, ok := m.known[name]
	if !ok {
		return false
	}
	switch vv := v.(type) {
	case *List:
		return vv.Len() > 0
	case *Map:
		return vv.Len() > 0
	default:
		return true
	}
}

// Clear removes any stored value for name.
func (m *Message) Clear(name string) {
	delete(m.known, name)
}

// WhichOneof returns the name of the currently-set member of the named
// oneof group, or "" if none is set.
func (m *Message) WhichOneof(group string) string {
	od := m.desc.OneofByName(group)
	if od == nil {
		return ""
	}
	for _, fname := range od.FieldNames {
		if _, ok := m.known[fname]; ok {
			return fname
		}
	}
	return ""
}

// Range visits every populated known field in the order the descriptor's
// fields were declared.
func (m *Message) Range(f func(fd *schema.FieldDescriptor, v interface{}) bool) {
	for _, fd := range m.desc.Fields {
		if !m.Has(fd.Name) {
			continue
		}
		if !f(fd, m.known[fd.Name]) {
			return
		}
	}
}

// UnknownFields returns the raw unknown-field side channel in decode order.
func (m *Message) UnknownFields() []UnknownField {
	return m.unknown
}

// AppendUnknown records a raw, unrecognized field for round-trip fidelity.
// Used by the codec on decode; not part of the ordinary value-construction
// API, but exported so the codec package (and tests) can drive it directly.
func (m *Message) AppendUnknown(tag wire.Number, wt wire.Type, raw []byte) {
	m.unknown = append(m.unknown, UnknownField{Tag: tag, WireType: wt, Raw: raw})
}

// SetUnknownFields replaces the unknown-field side channel wholesale.
func (m *Message) SetUnknownFields(fields []UnknownField) {
	m.unknown = fields
}

func (m *Message) clearOtherOneofFields(fd *schema.FieldDescriptor) {
	if fd.Oneof == "" {
		return
	}
	od := m.desc.OneofByName(fd.Oneof)
	if od == nil {
		return
	}
	for _, fname := range od.FieldNames {
		if fname != fd.Name {
			delete(m.known, fname)
		}
	}
}

// ToDict converts m into a plain map[string]interface{}, recursing into
// nested messages, lists, and maps. Map keys are converted to string form
// so the result is suitable for generic inspection or serialization into a
// non-proto format.
func (m *Message) ToDict() map[string]interface{} {
	out := make(map[string]interface{})
	m.Range(func(fd *schema.FieldDescriptor, v interface{}) bool {
		out[fd.Name] = toDictValue(fd, v)
		return true
	})
	return out
}

func toDictValue(fd *schema.FieldDescriptor, v interface{}) interface{} {
	switch vv := v.(type) {
	case *Message:
		return vv.ToDict()
	case *List:
		elems := make([]interface{}, vv.Len())
		for i := 0; i < vv.Len(); i++ {
			elems[i] = toDictElem(vv.Get(i))
		}
		return elems
	case *Map:
		out := make(map[interface{}]interface{}, vv.Len())
		vv.Range(func(k, val interface{}) bool {
			out[k] = toDictElem(val)
			return true
		})
		return out
	default:
		return v
	}
}

func toDictElem(v interface{}) interface{} {
	if msg, ok := v.(*Message); ok {
		return msg.ToDict()
	}
	return v
}

// coerce validates and normalizes payload against fd's declared kind and
// cardinality, per §4.3's setter rules.
func coerce(fd *schema.FieldDescriptor, payload interface{}) (interface{}, error) {
	switch {
	case fd.IsMap():
		mp, ok := payload.(*Map)
		if !ok {
			return nil, protoerrors.New(protoerrors.TagConflict, fd.Name, "map field requires a *dynamic.Map")
		}
		out := NewMap()
		var rangeErr error
		mp.Range(func(k, v interface{}) bool {
			ck, err := coerceSingular(fd, fd.KeyKind, nil, nil, k)
			if err != nil {
				rangeErr = err
				return false
			}
			cv, err := coerceSingular(fd, fd.ValueKind, fd.ValueMessage, fd.ValueEnum, v)
			if err != nil {
				rangeErr = err
				return false
			}
			out.Set(ck, cv)
			return true
		})
		if rangeErr != nil {
			return nil, rangeErr
		}
		return out, nil
	case fd.Cardinality == schema.Repeated || fd.Cardinality == schema.PackedRepeated:
		list, ok := payload.(*List)
		if !ok {
			return nil, protoerrors.New(protoerrors.TagConflict, fd.Name, "repeated field requires a *dynamic.List")
		}
		out := NewList()
		for i := 0; i < list.Len(); i++ {
			cv, err := coerceSingular(fd, fd.Kind, fd.MessageType, fd.EnumType, list.Get(i))
			if err != nil {
				return nil, err
			}
			out.Append(cv)
		}
		return out, nil
	default:
		return coerceSingular(fd, fd.Kind, fd.MessageType, fd.EnumType, payload)
	}
}

// coerceSingular is also used for map key/value slots and list elements,
// which share the same scalar coercion rules as an ordinary singular field.
func coerceSingular(fd *schema.FieldDescriptor, kind schema.Kind, msgType *schema.MessageDescriptor, enumType *schema.EnumDescriptor, payload interface{}) (interface{}, error) {
	name := ""
	if fd != nil {
		name = fd.Name
	}
	switch kind {
	case schema.BoolKind:
		v, ok := payload.(bool)
		if !ok {
			return nil, typeErr(name, "bool", payload)
		}
		return v, nil
	case schema.Int32Kind, schema.Sint32Kind, schema.Sfixed32Kind:
		return coerceInt32(name, payload)
	case schema.Int64Kind, schema.Sint64Kind, schema.Sfixed64Kind:
		return coerceInt64(name, payload)
	case schema.Uint32Kind, schema.Fixed32Kind:
		return coerceUint32(name, payload)
	case schema.Uint64Kind, schema.Fixed64Kind:
		return coerceUint64(name, payload)
	case schema.FloatKind:
		switch v := payload.(type) {
		case float32:
			return v, nil
		case float64:
			return float32(v), nil
		default:
			return nil, typeErr(name, "float32", payload)
		}
	case schema.DoubleKind:
		switch v := payload.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		default:
			return nil, typeErr(name, "float64", payload)
		}
	case schema.StringKind:
		s, ok := payload.(string)
		if !ok {
			return nil, typeErr(name, "string", payload)
		}
		if !utf8.ValidString(s) {
			return nil, protoerrors.New(protoerrors.InvalidUTF8, name, "invalid UTF-8")
		}
		return s, nil
	case schema.BytesKind:
		switch v := payload.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return nil, typeErr(name, "[]byte", payload)
		}
	case schema.EnumKind:
		switch v := payload.(type) {
		case int32:
			return v, nil
		case int:
			return int32(v), nil
		case string:
			if enumType == nil {
				return nil, protoerrors.New(protoerrors.TagConflict, name, "enum field has no EnumType")
			}
			num, ok := enumType.NumberOf(v)
			if !ok {
				return nil, protoerrors.New(protoerrors.TagConflict, name, "unknown enum symbol %q", v)
			}
			return num, nil
		default:
			return nil, typeErr(name, "int32 or enum symbol", payload)
		}
	case schema.MessageKind:
		msg, ok := payload.(*Message)
		if !ok {
			return nil, typeErr(name, "*dynamic.Message", payload)
		}
		if msgType != nil && msg.desc != nil && msg.desc != msgType {
			return nil, protoerrors.New(protoerrors.TagConflict, name, "assigning message of type %q to field of type %q", msg.desc.Name, msgType.Name)
		}
		return msg, nil
	default:
		return nil, protoerrors.New(protoerrors.TagConflict, name, "unsupported kind")
	}
}

func coerceInt32(name string, payload interface{}) (int32, error) {
	switch v := payload.(type) {
	case int32:
		return v, nil
	case int:
		if v < -(1<<31) || v > (1<<31-1) {
			return 0, protoerrors.New(protoerrors.Range, name, "value %d overflows int32", v)
		}
		return int32(v), nil
	case int64:
		if v < -(1<<31) || v > (1<<31-1) {
			return 0, protoerrors.New(protoerrors.Range, name, "value %d overflows int32", v)
		}
		return int32(v), nil
	default:
		return 0, typeErr(name, "int32", payload)
	}
}

func coerceInt64(name string, payload interface{}) (int64, error) {
	switch v := payload.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	default:
		return 0, typeErr(name, "int64", payload)
	}
}

func coerceUint32(name string, payload interface{}) (uint32, error) {
	switch v := payload.(type) {
	case uint32:
		return v, nil
	case uint64:
		if v > (1<<32 - 1) {
			return 0, protoerrors.New(protoerrors.Range, name, "value %d overflows uint32", v)
		}
		return uint32(v), nil
	case int:
		if v < 0 || v > (1<<32-1) {
			return 0, protoerrors.New(protoerrors.Range, name, "value %d overflows uint32", v)
		}
		return uint32(v), nil
	default:
		return 0, typeErr(name, "uint32", payload)
	}
}

func coerceUint64(name string, payload interface{}) (uint64, error) {
	switch v := payload.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, protoerrors.New(protoerrors.Range, name, "value %d overflows uint64", v)
		}
		return uint64(v), nil
	default:
		return 0, typeErr(name, "uint64", payload)
	}
}

func typeErr(name, want string, got interface{}) error {
	return protoerrors.New(protoerrors.TagConflict, name, "expected %s, got %T", want, got)
}
