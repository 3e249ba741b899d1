// Copyright 2025 The streamd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xerr defines the error kinds shared by the transport, control
// plane and collaborator interfaces.
package xerr

import (
	"github.com/pkg/errors"
)

// Kind classifies an error for callers that need to branch on it (e.g. the
// WebSocket command loop mapping an error to a status string).
type Kind string

const (
	// KindMisuse covers nil inputs, oversized fields, capacity exhaustion.
	KindMisuse Kind = "misuse"

	// KindIO covers socket, file or allocation failures.
	KindIO Kind = "io_error"

	// KindProtocol covers malformed packets/frames, unknown commands.
	KindProtocol Kind = "protocol_error"

	// KindNotFound covers unknown connection/video/session lookups.
	KindNotFound Kind = "not_found"

	// KindUnauthorized covers a missing or invalid session on a command
	// that requires authentication.
	KindUnauthorized Kind = "unauthorized"
)

// Error is a typed, wrapped error carrying a Kind for classification.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// KindOf returns the classification of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

// Is reports whether err (or anything it wraps) was tagged with kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func New(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, err: errors.Errorf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: errors.Wrap(err, msg)}
}

func Misuse(format string, args ...any) error      { return New(KindMisuse, format, args...) }
func IO(format string, args ...any) error           { return New(KindIO, format, args...) }
func Protocol(format string, args ...any) error     { return New(KindProtocol, format, args...) }
func NotFound(format string, args ...any) error     { return New(KindNotFound, format, args...) }
func Unauthorized(format string, args ...any) error { return New(KindUnauthorized, format, args...) }
