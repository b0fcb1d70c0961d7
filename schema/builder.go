// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import (
	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/wire"
)

// MessageBuilder is the handle returned by Registry.RegisterMessage. It is
// the only way to populate a MessageDescriptor's field table, either
// incrementally via AddField or in one deferred-binding call via
// DefineFields.
type MessageBuilder struct {
	registry *Registry
	desc     *MessageDescriptor
}

// Descriptor returns the (possibly still-incomplete) descriptor under
// construction. Callers may stash this handle to build recursive or
// mutually-referential field types before the builder's fields are defined.
func (mb *MessageBuilder) Descriptor() *MessageDescriptor {
	return mb.desc
}

// FieldOptions carries the attributes of add_field beyond name/tag/kind/
// cardinality: required, default, message/enum type references, oneof
// membership, and packing preference.
type FieldOptions struct {
	Required bool
	Default  interface{}

	MessageType *MessageDescriptor // kind == MessageKind
	EnumType    *EnumDescriptor    // kind == EnumKind

	// KeyKind/ValueKind (and ValueMessage/ValueEnum for message/enum values)
	// apply only when cardinality == MapCardinality.
	KeyKind      Kind
	ValueKind    Kind
	ValueMessage *MessageDescriptor
	ValueEnum    *EnumDescriptor

	Oneof string // containing oneof group name, or ""

	// Packed overrides the syntax default for a repeated scalar field.
	// Ignored for singular, map, or message-kind fields.
	Packed *bool
}

// AddField appends one field to the message under construction. It may be
// called any number of times (the ordinary incremental construction mode).
// It fails with SchemaFrozen once the registry is frozen; a prior
// DefineFields call on the same descriptor does not make it fail.
func (mb *MessageBuilder) AddField(name string, tag wire.Number, kind Kind, cardinality Cardinality, opts FieldOptions) error {
	mb.registry.mu.Lock()
	defer mb.registry.mu.Unlock()
	if err := mb.registry.checkMutable(); err != nil {
		return err
	}
	fd, err := buildField(mb.desc, name, tag, kind, cardinality, opts)
	if err != nil {
		return err
	}
	if err := validateAgainstSiblings(mb.desc, fd); err != nil {
		return err
	}
	appendField(mb.desc, fd)
	mb.desc.fieldsDefined = true
	return nil
}

// FieldSpec is the deferred-binding equivalent of a single AddField call,
// used as an element of the slice passed to DefineFields.
type FieldSpec struct {
	Name        string
	Tag         wire.Number
	Kind        Kind
	Cardinality Cardinality
	Options     FieldOptions
}

// DefineFields supplies the complete field table for a message registered
// via RegisterMessage with a then-empty field list. It exists to let
// recursive or mutually-referential message types be declared before their
// field types are fully built (see §9): register every participating
// message first, then call DefineFields on each once all the
// *MessageDescriptor handles involved exist.
//
// DefineFields may be called at most once per descriptor; a second call, or
// a call after AddField has already been used on the same descriptor,
// fails with SchemaFrozen.
func (mb *MessageBuilder) DefineFields(fields []FieldSpec) error {
	mb.registry.mu.Lock()
	defer mb.registry.mu.Unlock()
	if err := mb.registry.checkMutable(); err != nil {
		return err
	}
	if mb.desc.fieldsDefined {
		return protoerrors.New(protoerrors.SchemaFrozen, mb.desc.Name, "fields already defined")
	}
	var built []*FieldDescriptor
	for _, spec := range fields {
		fd, err := buildField(mb.desc, spec.Name, spec.Tag, spec.Kind, spec.Cardinality, spec.Options)
		if err != nil {
			return err
		}
		built = append(built, fd)
	}
	// Validate the whole batch against each other before committing any of
	// it, so a failure partway through never leaves a partially-defined
	// descriptor visible to concurrent readers.
	seenTags := make(map[wire.Number]bool)
	seenNames := make(map[string]bool)
	for _, fd := range built {
		if seenTags[fd.Tag] {
			return protoerrors.New(protoerrors.TagConflict, fd.Name, "duplicate tag %d", fd.Tag)
		}
		if seenNames[fd.Name] {
			return protoerrors.New(protoerrors.TagConflict, fd.Name, "duplicate field name")
		}
		seenTags[fd.Tag] = true
		seenNames[fd.Name] = true
	}
	for _, fd := range built {
		appendField(mb.desc, fd)
	}
	mb.desc.fieldsDefined = true
	return nil
}

// buildField validates and constructs a single FieldDescriptor. It does not
// mutate md; the caller commits the result via appendField.
func buildField(md *MessageDescriptor, name string, tag wire.Number, kind Kind, cardinality Cardinality, opts FieldOptions) (*FieldDescriptor, error) {
	if name == "" {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "field name must not be empty")
	}
	if tag < wire.MinValidNumber || tag > wire.MaxValidNumber {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "tag %d out of range", tag)
	}
	if tag >= wire.FirstReservedNumber && tag <= wire.LastReservedNumber {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "tag %d falls in the reserved range", tag)
	}
	if opts.Required && md.Syntax == Proto3 {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "required fields are not permitted in proto3")
	}
	if opts.Oneof != "" && (cardinality != Singular || opts.Required) {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "oneof member %q must be singular and not required", opts.Oneof)
	}

	fd := &FieldDescriptor{
		Name:     name,
		Tag:      tag,
		Kind:     kind,
		Required: opts.Required,
		Default:  opts.Default,
		Oneof:    opts.Oneof,
	}

	switch kind {
	case MessageKind:
		if opts.MessageType == nil {
			return nil, protoerrors.New(protoerrors.TagConflict, name, "message-kind field requires a MessageType")
		}
		fd.MessageType = opts.MessageType
	case EnumKind:
		if opts.EnumType == nil {
			return nil, protoerrors.New(protoerrors.TagConflict, name, "enum-kind field requires an EnumType")
		}
		fd.EnumType = opts.EnumType
	}

	switch cardinality {
	case MapCardinality:
		if !IsValidMapKeyKind(opts.KeyKind) {
			return nil, protoerrors.New(protoerrors.InvalidMapKey, name, "kind %v is not a valid map key", opts.KeyKind)
		}
		if opts.ValueKind == MessageKind && opts.ValueMessage == nil {
			return nil, protoerrors.New(protoerrors.TagConflict, name, "map value message kind requires ValueMessage")
		}
		if opts.ValueKind == EnumKind && opts.ValueEnum == nil {
			return nil, protoerrors.New(protoerrors.TagConflict, name, "map value enum kind requires ValueEnum")
		}
		fd.Cardinality = MapCardinality
		fd.KeyKind = opts.KeyKind
		fd.ValueKind = opts.ValueKind
		fd.ValueMessage = opts.ValueMessage
		fd.ValueEnum = opts.ValueEnum
		fd.entry = syntheticMapEntry(name, opts)
	case Repeated, PackedRepeated:
		fd.Cardinality = resolvePackedCardinality(md.Syntax, kind, opts.Packed)
	default:
		fd.Cardinality = Singular
	}

	return fd, nil
}

// resolvePackedCardinality applies §3's packing defaults: packed-repeated is
// the default representation for repeated scalars in proto3 and opt-in in
// proto2. Message-kind and enum-kind elements are never packed on the wire
// here beyond what the reference implementation allows for enums (enums are
// scalars for packing purposes); message elements cannot be packed at all.
func resolvePackedCardinality(syntax Syntax, kind Kind, packedOverride *bool) Cardinality {
	if !packable(kind) {
		return Repeated
	}
	if packedOverride != nil {
		if *packedOverride {
			return PackedRepeated
		}
		return Repeated
	}
	if syntax == Proto3 {
		return PackedRepeated
	}
	return Repeated
}

// packable reports whether a repeated field of kind may be represented as
// a packed, length-delimited run of concatenated element bodies. Only
// scalar kinds with a varint, fixed32, or fixed64 wire type qualify;
// string, bytes, and message elements are always each their own
// length-delimited occurrence.
func packable(kind Kind) bool {
	switch kind {
	case StringKind, BytesKind, MessageKind:
		return false
	default:
		return true
	}
}

// syntheticMapEntry builds the implicit two-field message descriptor
// (key=1, value=2) that backs a map field, per §4.7.
func syntheticMapEntry(fieldName string, opts FieldOptions) *MessageDescriptor {
	entry := &MessageDescriptor{
		Name:          fieldName + "Entry",
		IsMapEntry:    true,
		byTag:         make(map[wire.Number]*FieldDescriptor),
		byName:        make(map[string]*FieldDescriptor),
		fieldsDefined: true,
	}
	keyField := &FieldDescriptor{Name: "key", Tag: 1, Kind: opts.KeyKind, Cardinality: Singular}
	valField := &FieldDescriptor{Name: "value", Tag: 2, Kind: opts.ValueKind, Cardinality: Singular}
	if opts.ValueKind == MessageKind {
		valField.MessageType = opts.ValueMessage
	}
	if opts.ValueKind == EnumKind {
		valField.EnumType = opts.ValueEnum
	}
	appendField(entry, keyField)
	appendField(entry, valField)
	return entry
}

func appendField(md *MessageDescriptor, fd *FieldDescriptor) {
	md.Fields = append(md.Fields, fd)
	md.byTag[fd.Tag] = fd
	md.byName[fd.Name] = fd
	if fd.Oneof != "" {
		od := md.OneofByName(fd.Oneof)
		if od == nil {
			od = &OneofDescriptor{Name: fd.Oneof}
			md.Oneofs = append(md.Oneofs, od)
		}
		od.FieldNames = append(od.FieldNames, fd.Name)
	}
}

// validateAgainstSiblings checks a newly-built field against the fields
// already committed to md (used by the incremental AddField path; the
// DefineFields batch path checks the whole set itself before committing).
func validateAgainstSiblings(md *MessageDescriptor, fd *FieldDescriptor) error {
	if _, exists := md.byTag[fd.Tag]; exists {
		return protoerrors.New(protoerrors.TagConflict, fd.Name, "duplicate tag %d", fd.Tag)
	}
	if _, exists := md.byName[fd.Name]; exists {
		return protoerrors.New(protoerrors.TagConflict, fd.Name, "duplicate field name")
	}
	return nil
}
