// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple error checking with [errors.Is].
// For detailed error information, use [errors.As] with the typed errors below.
var (
	// ErrTypeMismatch indicates head and update hold different container kinds at the same path.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrInvalidConfig indicates an invalid merge configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMarshal indicates a marshaling or unmarshaling operation failed.
	ErrMarshal = errors.New("marshal error")
	// ErrPatch indicates a patch could not be applied.
	ErrPatch = errors.New("patch error")
)

// TypeMismatchError is returned when head and update disagree on whether a
// location holds an object, a list or a scalar.
type TypeMismatchError struct {
	// Path is the field path of the offending location.
	Path string
	// Pointer is the JSON Pointer of the location in the merged document.
	Pointer string
	// Head and Update name the kinds found on each branch.
	Head, Update string
}

func (e *TypeMismatchError) Error() string {
	path := e.Pointer
	if path == "" {
		path = "(root)"
	}
	return fmt.Sprintf("type mismatch at %s: head has %s, update has %s", path, e.Head, e.Update)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// InvalidConfigError is returned when a configuration names an unknown
// operation or declares an unusable comparator.
type InvalidConfigError struct {
	// Field is the configuration entry that was rejected.
	Field string
	// Value is the rejected value.
	Value string
	// Message provides details about what went wrong.
	Message string
}

func (e *InvalidConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// MarshalError is returned when unmarshaling or marshaling a document fails.
type MarshalError struct {
	// Err is the underlying error returned by a marshaling function.
	Err error
	// Doc names the document: "root", "head", "update" or "merged".
	Doc string
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("cannot marshal %s document: %v", e.Doc, e.Err)
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

func (e *MarshalError) Is(target error) bool {
	return target == ErrMarshal
}

// PatchError is returned when a patch cannot be applied to a document.
type PatchError struct {
	// Err is the underlying error.
	Err error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("cannot apply patch: %v", e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

func (e *PatchError) Is(target error) bool {
	return target == ErrPatch
}
