// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package protoerrors implements the error taxonomy shared by the schema,
// dynamic value, and codec packages.
package protoerrors

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the class of failure reported by an *Error.
type Kind int

const (
	_ Kind = iota
	MalformedVarint
	Truncated
	GroupUnsupported
	WireTypeMismatch
	InvalidUTF8
	Range
	MissingRequired
	SchemaIncomplete
	SchemaFrozen
	TagConflict
	InvalidMapKey
)

func (k Kind) String() string {
	switch k {
	case MalformedVarint:
		return "malformed varint"
	case Truncated:
		return "truncated"
	case GroupUnsupported:
		return "group fields are not supported"
	case WireTypeMismatch:
		return "wire type mismatch"
	case InvalidUTF8:
		return "invalid UTF-8"
	case Range:
		return "value out of range"
	case MissingRequired:
		return "required field not set"
	case SchemaIncomplete:
		return "schema incomplete"
	case SchemaFrozen:
		return "schema frozen"
	case TagConflict:
		return "tag conflict"
	case InvalidMapKey:
		return "invalid map key kind"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this module's packages.
type Error struct {
	Kind  Kind
	Field string // field or message name, if applicable; may be empty
	msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protox: %s: %s", e.Kind, e.msg)
	}
	return fmt.Sprintf("protox: %s %q: %s", e.Kind, e.Field, e.msg)
}

// RequiredNotSet reports whether e is a MissingRequired error, allowing
// callers to distinguish it from other terminal errors the way
// NonFatal.Merge does.
func (e *Error) RequiredNotSet() bool { return e.Kind == MissingRequired }

// InvalidUTF8Error reports whether e is an InvalidUTF8 error.
func (e *Error) InvalidUTF8Error() bool { return e.Kind == InvalidUTF8 }

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, field string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Field: field, msg: fmt.Sprintf(format, args...)}
}

// isNonFatal reports whether err is eligible for non-fatal accumulation:
// either a RequiredNotSet or an InvalidUTF8 condition.
func isNonFatal(err error) bool {
	if e, ok := err.(interface{ RequiredNotSet() bool }); ok && e.RequiredNotSet() {
		return true
	}
	if e, ok := err.(interface{ InvalidUTF8Error() bool }); ok && e.InvalidUTF8Error() {
		return true
	}
	return false
}

// NonFatal accumulates non-fatal errors encountered while encoding or
// decoding a message, so that a caller can continue producing a usable
// (partial) result and report every accumulated problem at the end.
//
// Typical usage:
//
//	var nerr protoerrors.NonFatal
//	if err := doSomething(); !nerr.Merge(err) {
//		return err // fatal: stop immediately
//	}
//	...
//	return result, nerr.E
type NonFatal struct{ E error }

// Merge merges err into nf, reporting whether it was handled (nil or
// non-fatal). A fatal error is left unmerged and false is returned so the
// caller can abort immediately.
func (nf *NonFatal) Merge(err error) (ok bool) {
	if err == nil {
		return true
	}
	if list, ok := err.(multiError); ok {
		nf.append(list...)
		return true
	}
	if !isNonFatal(err) {
		return false
	}
	nf.append(err)
	return true
}

// append stores a lone error as is, so a caller can inspect its *Error kind;
// a second, distinct error turns nf.E into a multiError list.
func (nf *NonFatal) append(errs ...error) {
	for _, err := range errs {
		switch cur := nf.E.(type) {
		case nil:
			nf.E = err
		case multiError:
			nf.E = append(cur, err)
		default:
			if cur.Error() != err.Error() {
				nf.E = multiError{cur, err}
			}
		}
	}
}

// multiError is a list of non-fatal errors, deduplicated and sorted by
// message when rendered.
type multiError []error

func (es multiError) Error() string {
	seen := map[string]struct{}{}
	var msgs []string
	for _, e := range es {
		if _, ok := seen[e.Error()]; ok {
			continue
		}
		seen[e.Error()] = struct{}{}
		msgs = append(msgs, e.Error())
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
