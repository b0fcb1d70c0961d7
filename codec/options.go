// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec implements the wire-format encoder and decoder driving
// dynamic.Message values against their schema.MessageDescriptor.
package codec

import (
	"github.com/sergey0xff/protox/dynamic"
	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/schema"
	"github.com/sergey0xff/protox/wire"
)

// MarshalOptions configures Marshal/MarshalAppend.
type MarshalOptions struct {
	// AllowPartial allows marshaling a message with missing required
	// fields. If false (the default), Marshal returns MissingRequired.
	AllowPartial bool

	// Deterministic sorts map entries by key before encoding, so repeated
	// marshaling of an equal message value produces identical bytes. It
	// does not affect field ordering, which is already tag-ascending.
	Deterministic bool
}

// Marshal returns the wire-format encoding of m using default options.
func Marshal(m *dynamic.Message) ([]byte, error) {
	return MarshalOptions{}.Marshal(m)
}

// Marshal returns the wire-format encoding of m.
func (o MarshalOptions) Marshal(m *dynamic.Message) ([]byte, error) {
	return o.MarshalAppend(nil, m)
}

// MarshalAppend appends the wire-format encoding of m to b, returning the
// result.
func (o MarshalOptions) MarshalAppend(b []byte, m *dynamic.Message) ([]byte, error) {
	var nerr protoerrors.NonFatal
	b, err := o.marshalMessage(b, m)
	if !nerr.Merge(err) {
		return b, err
	}
	if !o.AllowPartial {
		nerr.Merge(checkRequired(m))
	}
	return b, nerr.E
}

// UnmarshalOptions configures Unmarshal.
type UnmarshalOptions struct {
	// AllowPartial accepts input that leaves required fields unset. If
	// false (the default), Unmarshal returns MissingRequired.
	AllowPartial bool

	// DiscardUnknown drops fields not present in the descriptor instead
	// of retaining them in the unknown-field side channel.
	DiscardUnknown bool
}

// Unmarshal parses the wire-format message in b into a new message value
// for desc, using default options.
func Unmarshal(b []byte, desc *schema.MessageDescriptor) (*dynamic.Message, error) {
	return UnmarshalOptions{}.Unmarshal(b, desc)
}

// Unmarshal parses the wire-format message in b into a new message value
// for desc.
func (o UnmarshalOptions) Unmarshal(b []byte, desc *schema.MessageDescriptor) (*dynamic.Message, error) {
	m := dynamic.New(desc)
	if err := o.UnmarshalInto(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalInto parses the wire-format message in b and merges it into m,
// per the merge semantics of §4.5: singular scalars are overwritten,
// singular messages are recursively merged, repeated fields are
// concatenated, and map entries are overwritten by key.
func (o UnmarshalOptions) UnmarshalInto(b []byte, m *dynamic.Message) error {
	var nerr protoerrors.NonFatal
	err := o.unmarshalMessage(b, m)
	if pe, ok := err.(wire.ParseError); ok {
		kind := protoerrors.MalformedVarint
		switch {
		case wire.IsTruncated(int(pe)):
			kind = protoerrors.Truncated
		case wire.IsGroup(int(pe)):
			kind = protoerrors.GroupUnsupported
		}
		return protoerrors.New(kind, "", "%v", pe)
	}
	if !nerr.Merge(err) {
		return err
	}
	if !o.AllowPartial {
		nerr.Merge(checkRequired(m))
	}
	return nerr.E
}

func checkRequired(m *dynamic.Message) error {
	desc := m.Descriptor()
	var nerr protoerrors.NonFatal
	for _, fd := range desc.Fields {
		if fd.Required && !m.Has(fd.Name) {
			nerr.Merge(protoerrors.New(protoerrors.MissingRequired, fd.Name, "required field not set"))
		}
		if fd.Kind == schema.MessageKind && fd.Cardinality == schema.Singular {
			if sub, ok := m.Get(fd.Name).(*dynamic.Message); ok && sub != nil {
				nerr.Merge(checkRequired(sub))
			}
		}
	}
	return nerr.E
}
