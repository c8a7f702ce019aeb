// Copyright 2026 Blink Labs Software
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

package cbor

import (
	"fmt"
	"io"
)

// UnexpectedEofError is returned when the input ends before the current item
// is complete. It unwraps to io.ErrUnexpectedEOF for use with errors.Is.
type UnexpectedEofError struct {
	Offset int
}

func (e UnexpectedEofError) Error() string {
	return fmt.Sprintf("cbor: unexpected EOF at offset %d", e.Offset)
}

func (e UnexpectedEofError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// InvalidUtf8Error is returned when a text string does not contain valid
// UTF-8 bytes.
type InvalidUtf8Error struct {
	Offset int
}

func (e InvalidUtf8Error) Error() string {
	return fmt.Sprintf("cbor: invalid UTF-8 string at offset %d", e.Offset)
}

// TypeMismatchError is returned when the major type found on the wire cannot
// be decoded into the destination Go type.
type TypeMismatchError struct {
	// CborType is the human-readable name of the major type found on the wire
	CborType string
	// GoType is the destination type
	GoType string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf(
		"cbor: cannot unmarshal %s into Go value of type %s",
		e.CborType,
		e.GoType,
	)
}

// OverflowError is returned when a decoded number does not fit the
// destination type. The value is never silently truncated.
type OverflowError struct {
	Value  string
	GoType string
}

func (e OverflowError) Error() string {
	return fmt.Sprintf(
		"cbor: %s overflows Go value of type %s",
		e.Value,
		e.GoType,
	)
}

// UnknownFieldError is returned in strict mode when a decoded map key has no
// matching field in the destination struct.
type UnknownFieldError struct {
	Field string
}

func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("cbor: unknown field %q", e.Field)
}

// SyntaxError is returned for input that is not well-formed CBOR, such as
// reserved additional-information codes or a break code outside an
// indefinite-length item.
type SyntaxError struct {
	Message string
	Offset  int
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("cbor: %s at offset %d", e.Message, e.Offset)
}

// MaxNestedLevelsError is returned when the input nests containers deeper
// than the decode options allow.
type MaxNestedLevelsError struct {
	Limit int
}

func (e MaxNestedLevelsError) Error() string {
	return fmt.Sprintf("cbor: exceeded max nested level %d", e.Limit)
}
