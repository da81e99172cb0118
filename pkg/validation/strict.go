package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ValidatePath accepts raw unchanged or rejects it; it never rewrites.
//
// On top of the detector it rejects:
//   - network (UNC) and device-namespace roots, even without a base directory
//   - residual encodings: percent escapes, %u escapes, HTML entities, \x escapes
//   - invalid UTF-8, zero-width, bidi-override, full-width and look-alike characters
//   - NTFS alternate data stream syntax and trailing dots or spaces (Windows profiles)
//   - reserved device names in any segment (Windows profiles)
//   - any character the sanitizer would replace
//
// Example:
//
//	p, err := validation.ValidatePath("/safe/path/to/file.txt", validation.Unlimited)
//	// p == "/safe/path/to/file.txt", err == nil
func (v *PathValidator) ValidatePath(raw string, capacity int) (string, error) {
	out, err := v.validatePath(raw, capacity)
	v.record(err)
	return out, err
}

func (v *PathValidator) validatePath(raw string, capacity int) (string, error) {
	if raw == "" {
		return "", invalid(raw, ReasonEmpty, "path cannot be empty")
	}

	n, err := v.detect(raw)
	if err != nil {
		return "", err
	}
	if (n.root == rootUNC || n.root == rootDevice) && v.base == nil {
		return "", traversal(raw, ReasonUNCRoot,
			fmt.Sprintf("network or device root %s is not allowed", n.volume))
	}
	if v.requireSegment && len(n.segments) == 0 {
		return "", invalid(raw, ReasonEmpty, "path has no segments below its root")
	}

	checks := []func(string) error{
		checkEncodingTricks,
		checkUnicodeSpoofing,
	}
	if v.prof.driveRoots {
		checks = append(checks, checkWindowsStreams, v.checkWindowsSegments)
	}
	for _, check := range checks {
		if err := check(raw); err != nil {
			return "", err
		}
	}

	if rewritten := v.rewritePath(raw); !v.sameModuloSeparators(raw, rewritten) {
		return "", invalid(raw, ReasonDisallowedCharacter, firstDisallowed(raw, rewritten))
	}

	if err := checkCapacity(raw, raw, capacity); err != nil {
		return "", err
	}
	return raw, nil
}

// sameModuloSeparators reports whether rewritten differs from raw only by
// '\' having been mapped to '/'.
func (v *PathValidator) sameModuloSeparators(raw, rewritten string) bool {
	if len(raw) != len(rewritten) {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == rewritten[i] {
			continue
		}
		if raw[i] == '\\' && rewritten[i] == canonicalSeparator && v.prof.isSeparator('\\') {
			continue
		}
		return false
	}
	return true
}

func firstDisallowed(raw, rewritten string) string {
	for i := 0; i < len(raw) && i < len(rewritten); i++ {
		if raw[i] != rewritten[i] && rewritten[i] == replacementPlaceholder {
			r, _ := utf8.DecodeRuneInString(raw[i:])
			return fmt.Sprintf("disallowed character %q at byte %d", r, i)
		}
	}
	return "disallowed character"
}

// encodingMarkers are escape syntaxes that some later layer may decode.
var encodingMarkers = []string{"&#", `\x2e`, `\x2f`, `\x5c`, `\u002e`, `\u002f`, `\u005c`}

func checkEncodingTricks(raw string) error {
	if decodeOnce(raw) != raw {
		return invalid(raw, ReasonSuspiciousEncoding, "percent-encoded characters")
	}
	lower := strings.ToLower(raw)
	for _, marker := range encodingMarkers {
		if strings.Contains(lower, marker) {
			return invalid(raw, ReasonSuspiciousEncoding, fmt.Sprintf("escape sequence %q", marker))
		}
	}
	if !utf8.ValidString(raw) {
		return invalid(raw, ReasonSuspiciousEncoding, "invalid or overlong UTF-8")
	}
	return nil
}

func checkUnicodeSpoofing(raw string) error {
	for i, r := range raw {
		switch {
		case r >= 0x202a && r <= 0x202e, r >= 0x2066 && r <= 0x2069:
			return invalid(raw, ReasonUnicodeSpoofing, fmt.Sprintf("bidirectional control U+%04X at byte %d", r, i))
		case r >= 0xff01 && r <= 0xff5e:
			return invalid(raw, ReasonUnicodeSpoofing, fmt.Sprintf("full-width character U+%04X at byte %d", r, i))
		}
	}
	if norm.NFKC.String(raw) != raw || lookalikes.Replace(raw) != raw || codePageSeparators.Replace(raw) != raw {
		return invalid(raw, ReasonUnicodeSpoofing, "compatibility or look-alike characters")
	}
	return nil
}

// checkWindowsStreams rejects colons other than the one after a drive letter.
func checkWindowsStreams(raw string) error {
	rest := raw
	if len(raw) >= 2 && isASCIILetter(raw[0]) && raw[1] == ':' {
		rest = raw[2:]
	}
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		return invalid(raw, ReasonWindowsStream, "colon outside drive prefix (alternate data stream or device)")
	}
	return nil
}

// checkWindowsSegments rejects segments that Windows silently rewrites or
// maps to devices.
func (v *PathValidator) checkWindowsSegments(raw string) error {
	segments := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			continue
		}
		if strings.HasSuffix(seg, ".") || strings.HasSuffix(seg, " ") {
			return invalid(raw, ReasonTrailingDotOrSpace,
				fmt.Sprintf("segment %q ends with a dot or space", seg))
		}
		if v.prof.isReserved(seg) {
			return invalid(raw, ReasonReservedName,
				fmt.Sprintf("Windows reserved name not allowed: %s", seg))
		}
	}
	return nil
}
