package validation

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a validation call.
type Kind int

const (
	// KindSafe means the input was accepted.
	KindSafe Kind = iota
	// KindTraversal means the input tries to escape its confinement (attack class).
	KindTraversal
	// KindInvalid means the input is malformed, too large, or fails hygiene rules.
	KindInvalid
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSafe:
		return "safe"
	case KindTraversal:
		return "traversal"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reason is a stable, machine-readable rejection reason.
type Reason string

// Rejection reasons. The string values are stable and are persisted by the
// audit store, so do not rename them.
const (
	ReasonNone Reason = ""

	// Malformed input
	ReasonNullByte          Reason = "null_byte"
	ReasonMalformedEncoding Reason = "malformed_encoding"
	ReasonEmpty             Reason = "empty"
	ReasonTooLong           Reason = "too_long"

	// Capacity
	ReasonBufferTooSmall Reason = "buffer_too_small"

	// Traversal
	ReasonParentReference  Reason = "parent_reference"
	ReasonRootOutsideBase  Reason = "root_outside_base"
	ReasonDriveRoot        Reason = "drive_root"
	ReasonUNCRoot          Reason = "unc_root"
	ReasonTraversalAttempt Reason = "traversal_attempt"

	// Filename and identifier hygiene
	ReasonContainsSeparator   Reason = "contains_separator"
	ReasonReservedName        Reason = "reserved_name"
	ReasonDotSegment          Reason = "dot_segment"
	ReasonFlagLike            Reason = "flag_like"
	ReasonDisallowedCharacter Reason = "disallowed_character"

	// Strict validation
	ReasonSuspiciousEncoding Reason = "suspicious_encoding"
	ReasonUnicodeSpoofing    Reason = "unicode_spoofing"
	ReasonWindowsStream      Reason = "windows_stream"
	ReasonTrailingDotOrSpace Reason = "trailing_dot_or_space"
	ReasonPolicyDenied       Reason = "policy_denied"

	// Closure check failure; must never happen in correct operation.
	ReasonInternalError Reason = "internal_error"
)

// Sentinel errors. Every *ValidationError unwraps to exactly one of them.
var (
	// ErrTraversal marks attack-class rejections.
	ErrTraversal = errors.New("path traversal detected")
	// ErrInvalid marks malformed, oversized, and hygiene rejections.
	ErrInvalid = errors.New("invalid input")
)

// ValidationError represents a rejected input with context for logging.
type ValidationError struct {
	Kind   Kind   // KindTraversal or KindInvalid
	Reason Reason // Machine-readable reason
	Input  string // Original input that was rejected
	Detail string // Human-readable detail (may be empty)
}

// Error implements the error interface.
//
// Format: "{kind}: {reason}: {detail} (input: {Input})"
func (e *ValidationError) Error() string {
	prefix := "invalid input"
	if e.Kind == KindTraversal {
		prefix = "path traversal detected"
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s (input: %q)", prefix, e.Reason, e.Detail, e.Input)
	}
	return fmt.Sprintf("%s: %s (input: %q)", prefix, e.Reason, e.Input)
}

// Unwrap returns ErrTraversal or ErrInvalid for errors.Is support.
func (e *ValidationError) Unwrap() error {
	if e.Kind == KindTraversal {
		return ErrTraversal
	}
	return ErrInvalid
}

// Verdict returns the tagged result carried by the error.
func (e *ValidationError) Verdict() Verdict {
	return Verdict{Kind: e.Kind, Reason: e.Reason, Detail: e.Detail}
}

func invalid(input string, reason Reason, detail string) *ValidationError {
	return &ValidationError{Kind: KindInvalid, Reason: reason, Input: input, Detail: detail}
}

func traversal(input string, reason Reason, detail string) *ValidationError {
	return &ValidationError{Kind: KindTraversal, Reason: reason, Input: input, Detail: detail}
}

// ReasonOf returns the Reason of a *ValidationError in err's chain, or
// ReasonNone if there is none.
func ReasonOf(err error) Reason {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ReasonNone
}

// KindOf returns the Kind of a *ValidationError in err's chain. A nil error
// is KindSafe; any other error is reported as KindInvalid.
func KindOf(err error) Kind {
	if err == nil {
		return KindSafe
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindInvalid
}

// Verdict is the tagged result of classifying an input. It is never
// silently coerced: a non-safe verdict always carries a Reason.
type Verdict struct {
	Kind   Kind
	Reason Reason
	Detail string
}

// Safe reports whether the verdict accepts the input.
func (v Verdict) Safe() bool {
	return v.Kind == KindSafe
}

// Err converts the verdict to an error for input, or nil when safe.
func (v Verdict) Err(input string) error {
	if v.Safe() {
		return nil
	}
	return &ValidationError{Kind: v.Kind, Reason: v.Reason, Input: input, Detail: v.Detail}
}

// String renders the verdict as "safe", "traversal(reason)" or "invalid(reason)".
func (v Verdict) String() string {
	if v.Safe() {
		return v.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", v.Kind, v.Reason)
}

func verdictOf(err error) Verdict {
	if err == nil {
		return Verdict{Kind: KindSafe}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Verdict()
	}
	return Verdict{Kind: KindInvalid, Reason: ReasonInternalError, Detail: err.Error()}
}
