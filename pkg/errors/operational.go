package errors

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// OperationalError wraps a failure from the surrounding machinery (batch
// input, audit storage, policy loading) with the context needed to find it:
// the operation, the source it came from and, for line-oriented input, the
// line number.
//
// Validation rejections are not operational errors; they are reported as
// *validation.ValidationError.
type OperationalError struct {
	Operation  string         // What operation was being performed
	Source     string         // Input file, database path or policy name
	Line       int            // 1-based input line, 0 if not applicable
	Timestamp  time.Time      // When error occurred
	Attributes map[string]any // Additional context (optional)
	Cause      error          // Underlying error
}

// NewOperationalError creates an OperationalError wrapping an error.
//
// Returns nil if cause is nil (no error to wrap).
//
// Example:
//
//	if err != nil {
//	    return NewOperationalError("opening audit store", dbPath, 0, err)
//	}
func NewOperationalError(operation, source string, line int, cause error) *OperationalError {
	return NewOperationalErrorWithAttrs(operation, source, line, cause, nil)
}

// NewOperationalErrorWithAttrs creates an OperationalError with additional attributes.
//
// Returns nil if cause is nil (no error to wrap).
//
// Example:
//
//	return NewOperationalErrorWithAttrs(
//	    "reading batch record",
//	    path,
//	    lineNo,
//	    err,
//	    map[string]any{"field": inputField},
//	)
func NewOperationalErrorWithAttrs(operation, source string, line int, cause error, attrs map[string]any) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation:  operation,
		Source:     source,
		Line:       line,
		Timestamp:  time.Now(),
		Attributes: attrs,
		Cause:      cause,
	}
}

// Error implements the error interface.
//
// Format: "{operation}: {source}:{line} [k=v ...]: {cause}"
// The line and attributes are omitted when unset. The timestamp is not part
// of the message so identical failures render identically.
func (e *OperationalError) Error() string {
	if e == nil {
		return "<nil OperationalError>"
	}

	var b strings.Builder
	b.WriteString(e.Operation)
	if e.Source != "" {
		b.WriteString(": ")
		b.WriteString(e.Source)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
	} else if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}

	if len(e.Attributes) > 0 {
		keys := make([]string, 0, len(e.Attributes))
		for k := range e.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Attributes[k])
		}
		b.WriteByte(']')
	}

	fmt.Fprintf(&b, ": %v", e.Cause)
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
