package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// rootKind is the root marker of a parsed path.
type rootKind int

const (
	rootNone   rootKind = iota // relative path
	rootUnix                   // "/..."
	rootDrive                  // "C:..."
	rootUNC                    // "//host/share/..."
	rootDevice                 // "//?/..." or "//./..."
)

func (r rootKind) String() string {
	switch r {
	case rootNone:
		return "none"
	case rootUnix:
		return "unix"
	case rootDrive:
		return "drive"
	case rootUNC:
		return "unc"
	case rootDevice:
		return "device"
	default:
		return "unknown"
	}
}

// normalizedPath is the internal comparison form of an input. It is never
// returned to callers as a sanitized value.
type normalizedPath struct {
	root     rootKind
	volume   string // "C:" for drives, "//host" for UNC, "//?" or "//." for devices
	segments []string
}

// String renders the canonical comparison form.
func (n normalizedPath) String() string {
	joined := strings.Join(n.segments, "/")
	switch n.root {
	case rootNone:
		return joined
	case rootUnix:
		return "/" + joined
	default:
		return n.volume + "/" + joined
	}
}

// overlongSequences maps invalid overlong UTF-8 encodings that lenient
// decoders accept to the ASCII byte they smuggle.
var overlongSequences = strings.NewReplacer(
	"\xc0\x80", "\x00",
	"\xc0\xae", ".",
	"\xc0\xaf", "/",
	"\xc1\x9c", `\`,
	"\xe0\x80\xae", ".",
	"\xe0\x80\xaf", "/",
	"\xf0\x80\x80\xae", ".",
	"\xf0\x80\x80\xaf", "/",
)

// lookalikes folds characters that NFKC leaves alone but that render or
// are interpreted as path punctuation.
var lookalikes = strings.NewReplacer(
	"\u2215", "/", // division slash
	"\u2044", "/", // fraction slash
	"\u2571", "/", // box drawings light diagonal
	"\u29f8", "/", // big solidus
	"\u2216", `\`, // set minus
	"\u29f9", `\`, // big reverse solidus
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // byte order mark
)

// codePageSeparators are characters that legacy Windows code pages
// (CP932, CP949) convert to a backslash.
var codePageSeparators = strings.NewReplacer(
	"\u00a5", `\`, // yen sign
	"\u20a9", `\`, // won sign
)

// Normalize decodes and folds raw into the canonical comparison form used by
// the detector. The result is for comparison and logging only; it is not a
// sanitized path.
func Normalize(raw string, platform Platform) (string, error) {
	n, err := normalize(raw, profileFor(platform), DefaultMaxDecodePasses)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func normalize(raw string, prof profile, maxPasses int) (normalizedPath, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return normalizedPath{}, invalid(raw, ReasonNullByte, "null byte in input")
	}

	folded, err := decodeAndFold(raw, prof, maxPasses)
	if err != nil {
		return normalizedPath{}, err
	}
	if strings.IndexByte(folded, 0) >= 0 {
		return normalizedPath{}, invalid(raw, ReasonNullByte, "null byte after decoding")
	}

	if prof.isSeparator('\\') {
		folded = strings.ReplaceAll(folded, `\`, "/")
	}

	return parseRoot(folded, prof), nil
}

// decodeAndFold alternates one decoding pass with folding until neither
// changes the string. Folding can expose new escapes (a fullwidth percent
// sign folds to '%'), so the two cannot run one after the other. More than
// maxPasses rounds that change the string is rejected.
func decodeAndFold(raw string, prof profile, maxPasses int) (string, error) {
	s := raw
	for pass := 0; ; pass++ {
		next := fold(decodeOnce(s), prof)
		if next == s {
			return s, nil
		}
		if pass >= maxPasses {
			return "", invalid(raw, ReasonMalformedEncoding,
				fmt.Sprintf("still encoded after %d decode passes", maxPasses))
		}
		if strings.IndexByte(next, 0) >= 0 {
			return "", invalid(raw, ReasonNullByte, "encoded null byte")
		}
		s = next
	}
}

// decodeOnce performs a single decoding pass. A '%' that does not start a
// valid escape is kept literally.
func decodeOnce(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		if i+5 < len(s) && (s[i+1] == 'u' || s[i+1] == 'U') &&
			isHex(s[i+2]) && isHex(s[i+3]) && isHex(s[i+4]) && isHex(s[i+5]) {
			r := rune(unhex(s[i+2]))<<12 | rune(unhex(s[i+3]))<<8 |
				rune(unhex(s[i+4]))<<4 | rune(unhex(s[i+5]))
			b.WriteRune(r)
			i += 5
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// fold collapses overlong UTF-8, compatibility characters and look-alikes
// into plain ASCII punctuation. Input that is not valid UTF-8 after the
// overlong pass is left opaque.
func fold(s string, prof profile) string {
	s = overlongSequences.Replace(s)
	if !utf8.ValidString(s) {
		return s
	}
	s = norm.NFKC.String(s)
	s = lookalikes.Replace(s)
	if prof.driveRoots {
		s = codePageSeparators.Replace(s)
	}
	return s
}

// parseRoot splits a '/'-separated string into its root marker and
// non-empty segments. Roots are recognised before runs of separators are
// collapsed so a UNC prefix survives.
func parseRoot(s string, prof profile) normalizedPath {
	switch {
	case prof.uncRoots && strings.HasPrefix(s, "//"):
		parts := splitSegments(s)
		if len(parts) == 0 {
			return normalizedPath{root: rootUnix}
		}
		if parts[0] == "?" || parts[0] == "." {
			return normalizedPath{root: rootDevice, volume: "//" + parts[0], segments: parts[1:]}
		}
		return normalizedPath{root: rootUNC, volume: "//" + parts[0], segments: parts[1:]}

	case prof.driveRoots && len(s) >= 2 && isASCIILetter(s[0]) && s[1] == ':':
		return normalizedPath{
			root:     rootDrive,
			volume:   strings.ToUpper(s[:1]) + ":",
			segments: splitSegments(s[2:]),
		}

	case strings.HasPrefix(s, "/"):
		return normalizedPath{root: rootUnix, segments: splitSegments(s)}

	default:
		return normalizedPath{root: rootNone, segments: splitSegments(s)}
	}
}

// splitSegments splits on '/' and drops empty segments, which collapses
// repeated separators and strips trailing ones.
func splitSegments(s string) []string {
	fields := strings.Split(s, "/")
	segments := fields[:0]
	for _, f := range fields {
		if f != "" {
			segments = append(segments, f)
		}
	}
	return segments
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
