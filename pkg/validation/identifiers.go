package validation

import (
	"fmt"
	"strings"
)

// IsValidIdentifierChar checks if a character is valid for identifiers
// (alphanumeric, hyphen, or underscore).
//
// This is the allow-list for project names, and the policy and audit layers
// use it for rule and policy names too.
//
// Valid characters:
//   - Lowercase letters: a-z
//   - Uppercase letters: A-Z
//   - Digits: 0-9
//   - Hyphen: -
//   - Underscore: _
func IsValidIdentifierChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '_'
}

// ValidateProjectName returns the project identifier made of the valid
// identifier characters of raw.
//
// Inputs that look like traversal attempts are rejected, never stripped:
// a leading "..", '/' or '\' (literal or encoded), or a ".." segment anywhere.
// Other characters outside IsValidIdentifierChar are removed. The result must
// be non-empty, must not start with '-' or be all digits (it would read as a
// command-line flag or number), must not start with '_' or end with '-' or
// '_', must not be a reserved device name on
// Windows-style profiles, and must fit in MaxProjectNameLength bytes.
func (v *PathValidator) ValidateProjectName(raw string, capacity int) (string, error) {
	out, err := v.validateProjectName(raw, capacity)
	v.record(err)
	return out, err
}

func (v *PathValidator) validateProjectName(raw string, capacity int) (string, error) {
	if raw == "" {
		return "", invalid(raw, ReasonEmpty, "project name cannot be empty")
	}
	if err := v.checkLength(raw); err != nil {
		return "", err
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return "", invalid(raw, ReasonNullByte, "null byte in project name")
	}
	if looksLikeTraversal(raw) {
		return "", invalid(raw, ReasonTraversalAttempt, "project name looks like a path")
	}

	folded, err := decodeAndFold(raw, v.prof, v.maxPasses)
	if err != nil {
		return "", err
	}
	if strings.IndexByte(folded, 0) >= 0 {
		return "", invalid(raw, ReasonNullByte, "encoded null byte in project name")
	}
	if looksLikeTraversal(folded) {
		return "", invalid(raw, ReasonTraversalAttempt, "project name looks like an encoded path")
	}

	out := strings.Map(func(r rune) rune {
		if IsValidIdentifierChar(r) {
			return r
		}
		return -1
	}, raw)

	switch {
	case out == "":
		return "", invalid(raw, ReasonEmpty, "project name is empty after stripping")
	case out[0] == '-':
		return "", invalid(raw, ReasonFlagLike, "project name cannot start with '-'")
	case isAllDigits(out):
		return "", invalid(raw, ReasonFlagLike, "project name cannot be only digits")
	case out[0] == '_' || strings.HasSuffix(out, "-") || strings.HasSuffix(out, "_"):
		return "", invalid(raw, ReasonFlagLike, "project name cannot start or end with '-' or '_'")
	case v.prof.isReserved(out):
		return "", invalid(raw, ReasonReservedName, fmt.Sprintf("reserved system name: %s", out))
	case len(out) > MaxProjectNameLength:
		return "", invalid(raw, ReasonTooLong,
			fmt.Sprintf("project name length %d exceeds maximum of %d", len(out), MaxProjectNameLength))
	}

	if err := checkCapacity(raw, out, capacity); err != nil {
		return "", err
	}
	return out, nil
}

func looksLikeTraversal(s string) bool {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "..") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, `\`) {
		return true
	}
	for _, seg := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
