// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coreerr gives every core package a single error shape instead of
// one sentinel per entity.
package coreerr

import "fmt"

// Kind classifies an error at the domain level, independent of storage or
// transport. A thin HTTP adapter maps Kind to a status code; the core never
// does that mapping itself.
type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindDriver     Kind = "driver"
	KindMetrics    Kind = "metrics"
)

// Error is the error value returned by every exported core function.
//
// Purpose: Carry a Kind alongside a message and, for BadRequest, the
// offending fields.
// Domain: Platform
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, coreerr.New(coreerr.KindForbidden, "")) style
// checks against a Kind sentinel constructed via New(kind, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a Kind-tagged error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a Kind-tagged error wrapping an underlying cause, matching
// the fmt.Errorf("...: %w", err) idiom used throughout the storage layer.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// BadRequest builds a validation error carrying the offending field names.
func BadRequest(message string, fields ...string) *Error {
	return &Error{Kind: KindBadRequest, Message: message, Fields: fields}
}

// Forbidden, NotFound and Conflict are terse constructors for the kinds that
// never carry extra fields or a wrapped cause at the call site.
func Forbidden(message string) *Error  { return New(KindForbidden, message) }
func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }

// Driver wraps a storage error under KindDriver, the general-purpose
// propagation path for anything the postgres package returns.
func Driver(message string, cause error) *Error {
	return Wrap(KindDriver, message, cause)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
