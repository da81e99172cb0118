package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SanitizeFilename returns a safe single-segment filename.
//
// A filename is one segment by definition, so any '/' or '\' (literal or
// encoded) is rejected with ReasonContainsSeparator rather than stripped.
// Characters outside letters, digits, '.', '-', '_' and space are replaced
// with '_', runs of dots collapse to one, and leading spaces and trailing
// dots or spaces are trimmed. On Windows-style profiles the result must not
// be a reserved device name (CON, PRN, AUX, NUL, COM1-9, LPT1-9), compared
// case-insensitively on the part before the first dot.
func (v *PathValidator) SanitizeFilename(raw string, capacity int) (string, error) {
	out, err := v.sanitizeFilename(raw, capacity)
	v.record(err)
	return out, err
}

func (v *PathValidator) sanitizeFilename(raw string, capacity int) (string, error) {
	if raw == "" {
		return "", invalid(raw, ReasonEmpty, "filename cannot be empty")
	}
	if strings.ContainsAny(raw, `/\`) {
		return "", invalid(raw, ReasonContainsSeparator, "filename cannot contain path separators")
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return "", invalid(raw, ReasonNullByte, "null byte in filename")
	}
	if len(raw) > MaxFilenameLength {
		return "", invalid(raw, ReasonTooLong,
			fmt.Sprintf("filename length %d exceeds maximum of %d bytes", len(raw), MaxFilenameLength))
	}

	folded, err := decodeAndFold(raw, v.prof, v.maxPasses)
	if err != nil {
		return "", err
	}
	if strings.ContainsAny(folded, `/\`) {
		return "", invalid(raw, ReasonContainsSeparator, "filename contains an encoded path separator")
	}
	if strings.IndexByte(folded, 0) >= 0 {
		return "", invalid(raw, ReasonNullByte, "encoded null byte in filename")
	}
	switch strings.TrimSpace(folded) {
	case "..":
		return "", invalid(raw, ReasonTraversalAttempt, "filename is a parent-directory reference")
	case ".":
		return "", invalid(raw, ReasonDotSegment, "filename is a current-directory reference")
	}

	out := trimFilename(collapseDots(replaceDisallowed(raw, &filenameAllowed)))
	if out == "" {
		return "", invalid(raw, ReasonEmpty, "filename is empty after sanitizing")
	}
	if v.prof.isReserved(out) {
		return "", invalid(raw, ReasonReservedName,
			fmt.Sprintf("Windows reserved name not allowed: %s", out))
	}

	if err := checkCapacity(raw, out, capacity); err != nil {
		return "", err
	}
	return out, nil
}

// replaceDisallowed substitutes the placeholder for each rune not in allowed.
func replaceDisallowed(raw string, allowed *charSet) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		c := raw[i]
		if c < utf8.RuneSelf {
			if allowed.has(c) {
				b.WriteByte(c)
			} else {
				b.WriteByte(replacementPlaceholder)
			}
			i++
			continue
		}
		_, size := utf8.DecodeRuneInString(raw[i:])
		b.WriteByte(replacementPlaceholder)
		i += size
	}
	return b.String()
}

func collapseDots(s string) string {
	if !strings.Contains(s, "..") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' && i > 0 && s[i-1] == '.' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// trimFilename drops leading spaces and trailing dots and spaces, which
// Windows ignores when resolving a name.
func trimFilename(s string) string {
	s = strings.TrimLeft(s, " ")
	return strings.TrimRight(s, ". ")
}
