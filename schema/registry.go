// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import (
	"sort"
	"sync"

	"github.com/sergey0xff/protox/protoerrors"
	"github.com/sergey0xff/protox/wire"
)

// Registry is a process-wide table of registered message and enum
// descriptors, indexed by full name. It supports forward references across
// independently-constructed message descriptors (for recursive or
// mutually-referential schemas) up until Freeze is called.
//
// Registry is safe for concurrent reads once frozen; registration itself
// must be externally serialized to a single goroutine, mirroring
// reflect/protoregistry's Files/Types registries.
type Registry struct {
	mu       sync.RWMutex
	messages map[string]*MessageDescriptor
	enums    map[string]*EnumDescriptor
	frozen   bool
}

// NewRegistry returns an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{
		messages: make(map[string]*MessageDescriptor),
		enums:    make(map[string]*EnumDescriptor),
	}
}

// GlobalRegistry is a process-wide default Registry, mirroring
// protoregistry.GlobalFiles/GlobalTypes.
var GlobalRegistry = NewRegistry()

// Frozen reports whether the registry has been frozen against further
// registration.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Freeze marks the registry immutable. Further RegisterEnum, RegisterMessage,
// AddField, or DefineFields calls fail with SchemaFrozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// MessageByName looks up a previously registered message descriptor by name.
func (r *Registry) MessageByName(name string) (*MessageDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[name]
	return m, ok
}

// EnumByName looks up a previously registered enum descriptor by name.
func (r *Registry) EnumByName(name string) (*EnumDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

func (r *Registry) checkMutable() error {
	if r.frozen {
		return protoerrors.New(protoerrors.SchemaFrozen, "", "registry is frozen")
	}
	return nil
}

// RegisterEnum registers a new enum type under name with the given
// symbol-to-number mapping. Later symbols registered for a number already
// claimed by an earlier symbol do not replace it as the canonical name
// (the reference implementation's alias behavior), but both symbols resolve
// to the same number via NumberOf.
func (r *Registry) RegisterEnum(name string, values map[string]int32) (*EnumDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return nil, err
	}
	if _, ok := r.enums[name]; ok {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "enum already registered")
	}
	ed := &EnumDescriptor{
		Name:     name,
		byName:   make(map[string]int32, len(values)),
		byNumber: make(map[int32]string, len(values)),
	}
	// Deterministic order independent of map iteration, matching how a
	// generated enum would declare its symbols in source order; since Go
	// maps have no order, names are sorted for reproducibility.
	names := make([]string, 0, len(values))
	for sym := range values {
		names = append(names, sym)
	}
	sort.Strings(names)
	for _, sym := range names {
		num := values[sym]
		ed.byName[sym] = num
		if _, exists := ed.byNumber[num]; !exists {
			ed.byNumber[num] = sym
		}
		ed.orderedNames = append(ed.orderedNames, sym)
	}
	r.enums[name] = ed
	return ed, nil
}

// RegisterMessage registers a new message type under name, with an empty
// field table. The returned *MessageBuilder is the handle used by AddField
// or DefineFields to populate the descriptor; this split is what allows
// recursive and mutually-referential message schemas (see §9).
func (r *Registry) RegisterMessage(name string, syntax Syntax) (*MessageBuilder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return nil, err
	}
	if _, ok := r.messages[name]; ok {
		return nil, protoerrors.New(protoerrors.TagConflict, name, "message already registered")
	}
	md := &MessageDescriptor{
		Name:   name,
		Syntax: syntax,
		byTag:  make(map[wire.Number]*FieldDescriptor),
		byName: make(map[string]*FieldDescriptor),
	}
	r.messages[name] = md
	return &MessageBuilder{registry: r, desc: md}, nil
}
