// Package boundary adapts the path-security engine to caller-owned byte
// buffers and integer status codes, for callers that cannot receive Go
// strings or errors (cgo exports, RPC shims, fixed-size records).
//
// Results are length-terminated: the returned count is authoritative. A
// trailing NUL is written after the result only when out has room for it.
// Results are never truncated; an undersized buffer yields CodeBufferTooSmall
// and out is left untouched.
package boundary

import (
	"errors"

	"github.com/dshills/pathguard/pkg/validation"
)

// Code is a boundary status code.
type Code int

// Status codes. Negative codes are failures.
const (
	CodeOK                Code = 0
	CodeTraversalFound    Code = 1 // DetectTraversal only
	CodeInvalid           Code = -1
	CodeBufferTooSmall    Code = -2
	CodeTraversalRejected Code = -3
	CodeInternal          Code = -4
	CodeUnusableInput     Code = -5
)

var codeNames = map[Code]string{
	CodeOK:                "ok",
	CodeTraversalFound:    "traversal_found",
	CodeInvalid:           "invalid",
	CodeBufferTooSmall:    "buffer_too_small",
	CodeTraversalRejected: "traversal_rejected",
	CodeInternal:          "internal_error",
	CodeUnusableInput:     "unusable_input",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// CodeOf maps an engine error to a boundary code.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if errors.Is(err, validation.ErrTraversal) {
		return CodeTraversalRejected
	}
	switch validation.ReasonOf(err) {
	case validation.ReasonBufferTooSmall:
		return CodeBufferTooSmall
	case validation.ReasonInternalError:
		return CodeInternal
	case validation.ReasonNone:
		// Not a validation error at all.
		return CodeInternal
	}
	return CodeInvalid
}

// Adapter exposes a configured validator through the buffer interface.
type Adapter struct {
	v *validation.PathValidator
}

// New returns an Adapter backed by v. A nil v uses the default validator.
func New(v *validation.PathValidator) *Adapter {
	if v == nil {
		v = validation.Default()
	}
	return &Adapter{v: v}
}

var defaultAdapter = New(nil)

// DetectTraversal returns CodeTraversalFound, CodeOK, or a negative code
// when the input is malformed.
func (a *Adapter) DetectTraversal(in []byte) Code {
	if in == nil {
		return CodeUnusableInput
	}
	verdict := a.v.DetectTraversal(string(in))
	switch verdict.Kind {
	case validation.KindSafe:
		return CodeOK
	case validation.KindTraversal:
		return CodeTraversalFound
	default:
		return CodeOf(verdict.Err(string(in)))
	}
}

// SanitizePath writes the sanitized form of in to out.
func (a *Adapter) SanitizePath(in, out []byte) (int, Code) {
	return a.run(in, out, a.v.SanitizePath)
}

// ValidatePath writes in unchanged to out if it passes strict validation.
func (a *Adapter) ValidatePath(in, out []byte) (int, Code) {
	return a.run(in, out, a.v.ValidatePath)
}

// SanitizeFilename writes the sanitized filename to out.
func (a *Adapter) SanitizeFilename(in, out []byte) (int, Code) {
	return a.run(in, out, a.v.SanitizeFilename)
}

// ValidateProjectName writes the project identifier to out.
func (a *Adapter) ValidateProjectName(in, out []byte) (int, Code) {
	return a.run(in, out, a.v.ValidateProjectName)
}

// run passes len(out) as the capacity so the engine, not the copy, decides
// whether the result fits.
func (a *Adapter) run(in, out []byte, op func(string, int) (string, error)) (int, Code) {
	if in == nil || out == nil {
		return 0, CodeUnusableInput
	}
	result, err := op(string(in), len(out))
	if err != nil {
		return 0, CodeOf(err)
	}
	n := copy(out, result)
	if n < len(out) {
		out[n] = 0
	}
	return n, CodeOK
}

// DetectTraversal classifies in with the default validator.
func DetectTraversal(in []byte) Code {
	return defaultAdapter.DetectTraversal(in)
}

// SanitizePath sanitizes in into out with the default validator.
func SanitizePath(in, out []byte) (int, Code) {
	return defaultAdapter.SanitizePath(in, out)
}

// ValidatePath strictly validates in into out with the default validator.
func ValidatePath(in, out []byte) (int, Code) {
	return defaultAdapter.ValidatePath(in, out)
}

// SanitizeFilename sanitizes a filename into out with the default validator.
func SanitizeFilename(in, out []byte) (int, Code) {
	return defaultAdapter.SanitizeFilename(in, out)
}

// ValidateProjectName validates a project name into out with the default validator.
func ValidateProjectName(in, out []byte) (int, Code) {
	return defaultAdapter.ValidateProjectName(in, out)
}
