package validation

import (
	"strings"
	"unicode/utf8"
)

// SanitizePath returns a traversal-free, encoding-free form of raw.
//
// Traversal is never repaired: if the detector reports a traversal the call
// fails with KindTraversal. Characters outside the path allow-list (ASCII
// letters, digits, '.', '-', '_' and the separator) are replaced with '_';
// on Windows-style profiles '\' is rewritten to '/'. A leading drive letter
// is preserved.
//
// The result is re-checked by the detector before it is returned. If that
// check fails the call returns ReasonInternalError instead of the result.
//
// capacity bounds the result length in bytes; Unlimited disables the check.
// The result is never truncated.
//
// Example:
//
//	safe, err := validator.SanitizePath("uploads/my report (1).pdf", validation.Unlimited)
//	// safe == "uploads/my_report__1_.pdf"
func (v *PathValidator) SanitizePath(raw string, capacity int) (string, error) {
	out, err := v.sanitizePath(raw, capacity)
	v.record(err)
	return out, err
}

func (v *PathValidator) sanitizePath(raw string, capacity int) (string, error) {
	if raw == "" {
		return "", invalid(raw, ReasonEmpty, "path cannot be empty")
	}

	n, err := v.detect(raw)
	if err != nil {
		return "", err
	}
	if v.requireSegment && len(n.segments) == 0 {
		return "", invalid(raw, ReasonEmpty, "path has no segments below its root")
	}

	out := v.rewritePath(raw)

	// Closure check: the sanitized form must classify as safe.
	if _, err := v.detect(out); err != nil {
		return "", invalid(raw, ReasonInternalError,
			"sanitized path failed re-validation: "+err.Error())
	}

	if err := checkCapacity(raw, out, capacity); err != nil {
		return "", err
	}
	return out, nil
}

// rewritePath replaces every character outside the path allow-list with
// the placeholder. It only substitutes one character for another, so it
// can never produce a new "." or separator.
func (v *PathValidator) rewritePath(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	i := 0
	if v.prof.driveRoots && len(raw) >= 2 && isASCIILetter(raw[0]) && raw[1] == ':' {
		b.WriteString(raw[:2])
		i = 2
	}

	for i < len(raw) {
		c := raw[i]
		if c < utf8.RuneSelf {
			switch {
			case c == canonicalSeparator:
				b.WriteByte(canonicalSeparator)
			case v.prof.isSeparator(c):
				b.WriteByte(canonicalSeparator)
			case pathAllowed.has(c):
				b.WriteByte(c)
			default:
				b.WriteByte(replacementPlaceholder)
			}
			i++
			continue
		}
		// One placeholder per rune; invalid bytes count as one rune each.
		_, size := utf8.DecodeRuneInString(raw[i:])
		b.WriteByte(replacementPlaceholder)
		i += size
	}
	return b.String()
}
