// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style.
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sergey0xff/protox/dynamic"
	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/schema"
	"github.com/sergey0xff/protox/wire"
)

func mustBuildMessage(t *testing.T, r *schema.Registry, name string, syntax schema.Syntax, build func(mb *schema.MessageBuilder)) *schema.MessageDescriptor {
	t.Helper()
	mb, err := r.RegisterMessage(name, syntax)
	if err != nil {
		t.Fatal(err)
	}
	build(mb)
	return mb.Descriptor()
}

// Scenario 1: SimpleMessage{x=1} -> 08 01.
func TestScenarioSimpleMessage(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "SimpleMessage", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("x", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	if err := m.Set("x", int32(1)); err != nil {
		t.Fatal(err)
	}
	got, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x08, 0x01}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Marshal mismatch (-want +got):\n%s", diff)
	}
	decoded, err := Unmarshal(got, desc)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Get("x") != int32(1) {
		t.Fatalf("decoded x = %v, want 1", decoded.Get("x"))
	}
}

// Scenario 2: default value, unset field, empty encoding.
func TestScenarioDefaultValue(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "SimpleMessage2", schema.Proto2, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("x", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{Default: int32(123)}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	got, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Marshal of unset message = % X, want empty", got)
	}
	if m.Has("x") {
		t.Fatal("Has(x) should be false when unset")
	}
	if got := m.Get("x"); got != int32(123) {
		t.Fatalf("Get(x) = %v, want default 123", got)
	}
}

// Scenario 3: packed repeated [1,2,300] -> 0A 04 01 02 AC 02.
func TestScenarioPackedRepeated(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "Repeated", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("numbers", 1, schema.Int32Kind, schema.Repeated, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	list := dynamic.NewList()
	list.Append(int32(1))
	list.Append(int32(2))
	list.Append(int32(300))
	if err := m.Set("numbers", list); err != nil {
		t.Fatal(err)
	}
	got, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x0A, 0x04, 0x01, 0x02, 0xAC, 0x02}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Marshal mismatch (-want +got):\n%s", diff)
	}
	decoded, err := Unmarshal(got, desc)
	if err != nil {
		t.Fatal(err)
	}
	dl := decoded.Get("numbers").(*dynamic.List)
	if dl.Len() != 3 || dl.Get(0) != int32(1) || dl.Get(1) != int32(2) || dl.Get(2) != int32(300) {
		t.Fatalf("decoded numbers = %v", dl)
	}
}

// Scenario 4: nested message User{phone: PhoneNumber{number:"555"}} -> 0A 05 0A 03 35 35 35.
func TestScenarioNestedMessage(t *testing.T) {
	r := schema.NewRegistry()
	phoneDesc := mustBuildMessage(t, r, "PhoneNumber", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("number", 1, schema.StringKind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	userDesc := mustBuildMessage(t, r, "User", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("phone", 1, schema.MessageKind, schema.Singular, schema.FieldOptions{MessageType: phoneDesc}); err != nil {
			t.Fatal(err)
		}
	})

	phone := dynamic.New(phoneDesc)
	if err := phone.Set("number", "555"); err != nil {
		t.Fatal(err)
	}
	user := dynamic.New(userDesc)
	if err := user.Set("phone", phone); err != nil {
		t.Fatal(err)
	}

	got, err := Marshal(user)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x0A, 0x05, 0x0A, 0x03, 0x35, 0x35, 0x35}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Marshal mismatch (-want +got):\n%s", diff)
	}
	decoded, err := Unmarshal(got, userDesc)
	if err != nil {
		t.Fatal(err)
	}
	dp := decoded.Get("phone").(*dynamic.Message)
	if dp.Get("number") != "555" {
		t.Fatalf("decoded phone.number = %v, want 555", dp.Get("number"))
	}
}

// Scenario 5: oneof with enum member -> 10 00, WhichOneof == "error".
func TestScenarioOneofEnum(t *testing.T) {
	r := schema.NewRegistry()
	errEnum, err := r.RegisterEnum("ErrorCode", map[string]int32{"BAD_REQUEST": 0})
	if err != nil {
		t.Fatal(err)
	}
	desc := mustBuildMessage(t, r, "Response", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("result", 1, schema.StringKind, schema.Singular, schema.FieldOptions{Oneof: "status"}); err != nil {
			t.Fatal(err)
		}
		if err := mb.AddField("error", 2, schema.EnumKind, schema.Singular, schema.FieldOptions{Oneof: "status", EnumType: errEnum}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	if err := m.Set("error", "BAD_REQUEST"); err != nil {
		t.Fatal(err)
	}
	got, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x10, 0x00}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Marshal mismatch (-want +got):\n%s", diff)
	}
	if got := m.WhichOneof("status"); got != "error" {
		t.Fatalf("WhichOneof = %q, want error", got)
	}
	decoded, err := Unmarshal(got, desc)
	if err != nil {
		t.Fatal(err)
	}
	if got := decoded.WhichOneof("status"); got != "error" {
		t.Fatalf("decoded WhichOneof = %q, want error", got)
	}
}

// Scenario 6: map<int32,string>{1:"one"} -> 0A 07 08 01 12 03 6F 6E 65.
func TestScenarioMap(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "MapMsg", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("numbers", 1, schema.InvalidKind, schema.MapCardinality, schema.FieldOptions{
			KeyKind:   schema.Int32Kind,
			ValueKind: schema.StringKind,
		}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	mp := dynamic.NewMap()
	mp.Set(int32(1), "one")
	if err := m.Set("numbers", mp); err != nil {
		t.Fatal(err)
	}
	got, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x0A, 0x07, 0x08, 0x01, 0x12, 0x03, 0x6F, 0x6E, 0x65}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Marshal mismatch (-want +got):\n%s", diff)
	}
	decoded, err := Unmarshal(got, desc)
	if err != nil {
		t.Fatal(err)
	}
	dm := decoded.Get("numbers").(*dynamic.Map)
	v, ok := dm.Get(int32(1))
	if !ok || v != "one" {
		t.Fatalf("decoded map[1] = %v, %v, want one, true", v, ok)
	}
}

func TestUnknownFieldRoundTrip(t *testing.T) {
	r := schema.NewRegistry()
	v1 := mustBuildMessage(t, r, "V1", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
		if err := mb.AddField("b", 2, schema.StringKind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	v2 := mustBuildMessage(t, r, "V2", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	full := dynamic.New(v1)
	full.Set("a", int32(7))
	full.Set("b", "hi")
	b, err := Marshal(full)
	if err != nil {
		t.Fatal(err)
	}
	trimmed, err := Unmarshal(b, v2)
	if err != nil {
		t.Fatal(err)
	}
	reencoded, err := Marshal(trimmed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, reencoded) {
		t.Fatalf("round-trip with unknown field: got % X, want % X", reencoded, b)
	}
}

func TestRequiredFieldEnforcement(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "Req", schema.Proto2, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{Required: true}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	_, err := Marshal(m)
	if err == nil {
		t.Fatal("expected MissingRequired error on marshal")
	}
	perr, ok := err.(*protoerrors.Error)
	if !ok || perr.Kind != protoerrors.MissingRequired {
		t.Fatalf("err = %v, want MissingRequired", err)
	}

	_, err = Unmarshal(nil, desc)
	if err == nil {
		t.Fatal("expected MissingRequired error on unmarshal of empty input")
	}
}

func TestOneofExclusivitySequence(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "Choice", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{Oneof: "g"}); err != nil {
			t.Fatal(err)
		}
		if err := mb.AddField("b", 2, schema.Int32Kind, schema.Singular, schema.FieldOptions{Oneof: "g"}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	m.Set("a", int32(1))
	m.Set("b", int32(2))
	if got := m.WhichOneof("g"); got != "b" {
		t.Fatalf("WhichOneof = %q, want b", got)
	}
}

func TestRecursiveSchema(t *testing.T) {
	r := schema.NewRegistry()
	mb, err := r.RegisterMessage("Tree", schema.Proto3)
	if err != nil {
		t.Fatal(err)
	}
	self := mb.Descriptor()
	if err := mb.DefineFields([]schema.FieldSpec{
		{Name: "value", Tag: 1, Kind: schema.Int32Kind, Cardinality: schema.Singular},
		{Name: "left", Tag: 2, Kind: schema.MessageKind, Cardinality: schema.Singular, Options: schema.FieldOptions{MessageType: self}},
		{Name: "right", Tag: 3, Kind: schema.MessageKind, Cardinality: schema.Singular, Options: schema.FieldOptions{MessageType: self}},
	}); err != nil {
		t.Fatal(err)
	}

	root := dynamic.New(self)
	root.Set("value", int32(1))
	left := dynamic.New(self)
	left.Set("value", int32(2))
	root.Set("left", left)
	right := dynamic.New(self)
	right.Set("value", int32(3))
	leftleft := dynamic.New(self)
	leftleft.Set("value", int32(4))
	left.Set("left", leftleft)
	root.Set("right", right)

	b, err := Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Unmarshal(b, self)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Get("value") != int32(1) {
		t.Fatal("root value mismatch")
	}
	dleft := decoded.Get("left").(*dynamic.Message)
	if dleft.Get("value") != int32(2) {
		t.Fatal("left value mismatch")
	}
	dleftleft := dleft.Get("left").(*dynamic.Message)
	if dleftleft.Get("value") != int32(4) {
		t.Fatal("left.left value mismatch")
	}
	if !dynamic.Equal(root, decoded) {
		t.Fatal("round-tripped tree should be equal to original")
	}
}

func TestMapDuplicateKeysKeepLast(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "DupMap", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("m", 1, schema.InvalidKind, schema.MapCardinality, schema.FieldOptions{
			KeyKind:   schema.Int32Kind,
			ValueKind: schema.StringKind,
		}); err != nil {
			t.Fatal(err)
		}
	})
	// Two entries for key=1: "a" then "b". Hand-assemble the wire bytes
	// directly since dynamic.Map collapses duplicates before encoding.
	entry := func(v string) []byte {
		b := []byte{0x08, 0x01, 0x12, byte(len(v))}
		return append(b, v...)
	}
	e1 := entry("a")
	e2 := entry("b")
	var raw []byte
	raw = append(raw, 0x0A, byte(len(e1)))
	raw = append(raw, e1...)
	raw = append(raw, 0x0A, byte(len(e2)))
	raw = append(raw, e2...)

	decoded, err := Unmarshal(raw, desc)
	if err != nil {
		t.Fatal(err)
	}
	dm := decoded.Get("m").(*dynamic.Map)
	v, ok := dm.Get(int32(1))
	if !ok || v != "b" {
		t.Fatalf("duplicate map key = %v, %v, want b, true", v, ok)
	}
}

func TestSingularWireTypeMismatch(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "Mismatch", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("x", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	// Tag 1 with Fixed64Type instead of the declared VarintType.
	raw := []byte{0x09, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := Unmarshal(raw, desc)
	if err == nil {
		t.Fatal("expected WireTypeMismatch error")
	}
	perr, ok := err.(*protoerrors.Error)
	if !ok || perr.Kind != protoerrors.WireTypeMismatch {
		t.Fatalf("err = %v, want WireTypeMismatch", err)
	}
}

func TestSchemaIncompleteDecode(t *testing.T) {
	r := schema.NewRegistry()
	mb, err := r.RegisterMessage("Incomplete", schema.Proto3)
	if err != nil {
		t.Fatal(err)
	}
	desc := mb.Descriptor()

	// Empty bytes against an incomplete descriptor is the spec's exception:
	// it decodes to an empty value rather than failing.
	m, err := Unmarshal(nil, desc)
	if err != nil {
		t.Fatalf("Unmarshal(empty) against incomplete descriptor: %v", err)
	}
	if len(m.UnknownFields()) != 0 {
		t.Fatal("expected no unknown fields")
	}

	// Non-empty bytes must fail SchemaIncomplete.
	_, err = Unmarshal([]byte{0x08, 0x01}, desc)
	if err == nil {
		t.Fatal("expected SchemaIncomplete error decoding non-empty bytes")
	}
	perr, ok := err.(*protoerrors.Error)
	if !ok || perr.Kind != protoerrors.SchemaIncomplete {
		t.Fatalf("err = %v, want SchemaIncomplete", err)
	}
}

func TestSchemaIncompleteEncode(t *testing.T) {
	r := schema.NewRegistry()
	mb, err := r.RegisterMessage("Incomplete", schema.Proto3)
	if err != nil {
		t.Fatal(err)
	}
	desc := mb.Descriptor()

	// An untouched empty value marshals fine even though desc is incomplete.
	m := dynamic.New(desc)
	if _, err := Marshal(m); err != nil {
		t.Fatalf("Marshal(empty) against incomplete descriptor: %v", err)
	}

	// A value carrying a preserved unknown field is non-empty and must fail.
	m.AppendUnknown(wire.Number(1), wire.VarintType, []byte{0x01})
	_, err = Marshal(m)
	if err == nil {
		t.Fatal("expected SchemaIncomplete error encoding non-empty value")
	}
	perr, ok := err.(*protoerrors.Error)
	if !ok || perr.Kind != protoerrors.SchemaIncomplete {
		t.Fatalf("err = %v, want SchemaIncomplete", err)
	}
}

func TestDeterministicMapEncoding(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "DetMap", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("m", 1, schema.InvalidKind, schema.MapCardinality, schema.FieldOptions{
			KeyKind:   schema.StringKind,
			ValueKind: schema.Int32Kind,
		}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	mp := dynamic.NewMap()
	mp.Set("zebra", int32(1))
	mp.Set("apple", int32(2))
	mp.Set("mango", int32(3))
	if err := m.Set("m", mp); err != nil {
		t.Fatal(err)
	}
	opts := MarshalOptions{Deterministic: true}
	first, err := opts.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		got, err := opts.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, got) {
			t.Fatalf("Deterministic marshal produced different bytes across calls: % X vs % X", first, got)
		}
	}
}

func TestAllowPartialSuppressesMissingRequired(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "PartialReq", schema.Proto2, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{Required: true}); err != nil {
			t.Fatal(err)
		}
	})
	m := dynamic.New(desc)
	opts := MarshalOptions{AllowPartial: true}
	b, err := opts.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal with AllowPartial should not fail MissingRequired: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("Marshal of unset message = % X, want empty", b)
	}

	uopts := UnmarshalOptions{AllowPartial: true}
	if _, err := uopts.Unmarshal(nil, desc); err != nil {
		t.Fatalf("Unmarshal with AllowPartial should not fail MissingRequired: %v", err)
	}
}

func TestDiscardUnknownDropsFields(t *testing.T) {
	r := schema.NewRegistry()
	v1 := mustBuildMessage(t, r, "DiscardV1", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
		if err := mb.AddField("b", 2, schema.StringKind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	v2 := mustBuildMessage(t, r, "DiscardV2", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("a", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	full := dynamic.New(v1)
	full.Set("a", int32(7))
	full.Set("b", "hi")
	b, err := Marshal(full)
	if err != nil {
		t.Fatal(err)
	}
	opts := UnmarshalOptions{DiscardUnknown: true}
	trimmed, err := opts.Unmarshal(b, v2)
	if err != nil {
		t.Fatal(err)
	}
	if len(trimmed.UnknownFields()) != 0 {
		t.Fatalf("DiscardUnknown should drop unknown fields, got %v", trimmed.UnknownFields())
	}
	reencoded, err := Marshal(trimmed)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(b, reencoded) {
		t.Fatal("DiscardUnknown should lose the unknown field on re-encode")
	}
}

func TestMarshalAllConcurrent(t *testing.T) {
	r := schema.NewRegistry()
	desc := mustBuildMessage(t, r, "Batch", schema.Proto3, func(mb *schema.MessageBuilder) {
		if err := mb.AddField("x", 1, schema.Int32Kind, schema.Singular, schema.FieldOptions{}); err != nil {
			t.Fatal(err)
		}
	})
	var msgs []*dynamic.Message
	for i := int32(0); i < 5; i++ {
		m := dynamic.New(desc)
		m.Set("x", i)
		msgs = append(msgs, m)
	}
	bufs, err := MarshalAllConcurrent(context.Background(), msgs, MarshalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalAllConcurrent(context.Background(), bufs, desc, UnmarshalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range decoded {
		if m.Get("x") != int32(i) {
			t.Fatalf("decoded[%d].x = %v, want %d", i, m.Get("x"), i)
		}
	}
}
