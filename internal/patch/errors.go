// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code classifies why an operation did not take effect.
type Code int

const (
	// CodeMalformedPath means the pointer did not parse to at least one segment.
	CodeMalformedPath Code = iota + 1
	// CodeMissingParent means the container holding the target does not exist.
	CodeMissingParent
	// CodeMissingTarget means the parent exists but the target key or index does not.
	CodeMissingTarget
	// CodeMissingSource means the from pointer of a move or copy did not resolve.
	CodeMissingSource
	// CodeTypeMismatch means the key cannot address the parent, such as a
	// non-integer key against a sequence.
	CodeTypeMismatch
	// CodeTestFailed means a test operation found a different value.
	CodeTestFailed
	// CodeNoMatch means a filter expression matched no elements.
	CodeNoMatch
	// CodeUnsupportedOperation means the op name is not one of the known kinds.
	CodeUnsupportedOperation
)

var codeNames = map[Code]string{
	CodeMalformedPath:        "MalformedPath",
	CodeMissingParent:        "MissingParent",
	CodeMissingTarget:        "MissingTarget",
	CodeMissingSource:        "MissingSource",
	CodeTypeMismatch:         "TypeMismatch",
	CodeTestFailed:           "TestAssertionFailed",
	CodeNoMatch:              "NoMatch",
	CodeUnsupportedOperation: "UnsupportedOperation",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// silent reports whether the lenient engine swallows errors of this code.
// Strict engines still swallow malformed paths and unknown ops.
func (c Code) silent(strict bool) bool {
	switch c {
	case CodeMalformedPath, CodeUnsupportedOperation:
		return true
	case CodeMissingParent, CodeMissingTarget, CodeTypeMismatch:
		return !strict
	default:
		return false
	}
}

// Error describes a failed operation.
type Error struct {
	Code    Code
	Op      string
	Path    string
	From    string
	Message string

	// Expected and Actual are set for CodeTestFailed. ActualAbsent is set
	// when nothing was found at Path.
	Expected     any
	Actual       any
	ActualAbsent bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code == CodeTestFailed {
		actual := "<absent>"
		if !e.ActualAbsent {
			actual = render(e.Actual)
		}
		return fmt.Sprintf("test failed at %s: expected %s, actual %s", e.Path, render(e.Expected), actual)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
}

func newError(code Code, op Operation, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op.Op,
		Path:    op.Path,
		From:    op.From,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the Code carried by err, or 0 if err is not an *Error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// IsTestFailure checks if the error is a failed test assertion.
func IsTestFailure(err error) bool {
	return CodeOf(err) == CodeTestFailed
}

// IsMissingSource checks if the error is an unresolved move or copy source.
func IsMissingSource(err error) bool {
	return CodeOf(err) == CodeMissingSource
}

// IsMissingParent checks if the error is an absent parent container.
func IsMissingParent(err error) bool {
	return CodeOf(err) == CodeMissingParent
}

func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
