package validation

import (
	"fmt"
	"strings"
)

// Platform selects which path conventions the engine reasons about.
type Platform int

const (
	// PlatformAny treats both '/' and '\' as separators and applies Windows
	// reserved names. It is the most conservative profile and the default.
	PlatformAny Platform = iota
	// PlatformUnix treats only '/' as a separator.
	PlatformUnix
	// PlatformWindows treats '/' and '\' as separators.
	PlatformWindows
)

// String returns the profile name used in configuration files.
func (p Platform) String() string {
	switch p {
	case PlatformAny:
		return "any"
	case PlatformUnix:
		return "unix"
	case PlatformWindows:
		return "windows"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// ParsePlatform parses "any", "unix" or "windows" (case-insensitive).
// The empty string yields PlatformAny.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return PlatformAny, nil
	case "unix", "linux", "darwin", "posix":
		return PlatformUnix, nil
	case "windows", "win":
		return PlatformWindows, nil
	default:
		return PlatformAny, fmt.Errorf("unknown platform %q (want any, unix or windows)", s)
	}
}

// Default limits.
const (
	DefaultMaxInputLength   = 4096
	DefaultMaxDecodePasses  = 4
	MaxFilenameLength       = 255
	MaxProjectNameLength    = 64
	replacementPlaceholder  = '_'
	canonicalSeparator      = '/'
	alternateSeparatorBytes = `\`
)

// windowsReservedNames are DOS device names, matched case-insensitively
// against the part of a segment before its first dot.
var windowsReservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5",
	"COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5",
	"LPT6", "LPT7", "LPT8", "LPT9",
}

// profile is the per-platform data table consulted by the algorithms.
type profile struct {
	platform      Platform
	separators    string   // bytes treated as path delimiters
	reservedNames []string // device names rejected in filenames and strict paths
	driveRoots    bool     // "C:" prefixes are roots
	uncRoots      bool     // "//host/share" prefixes are roots
	foldCase      bool     // base-dir prefix comparison ignores case
}

var profiles = map[Platform]profile{
	PlatformUnix: {
		platform:   PlatformUnix,
		separators: "/",
	},
	PlatformWindows: {
		platform:      PlatformWindows,
		separators:    "/" + alternateSeparatorBytes,
		reservedNames: windowsReservedNames,
		driveRoots:    true,
		uncRoots:      true,
		foldCase:      true,
	},
	PlatformAny: {
		platform:      PlatformAny,
		separators:    "/" + alternateSeparatorBytes,
		reservedNames: windowsReservedNames,
		driveRoots:    true,
		uncRoots:      true,
	},
}

func profileFor(p Platform) profile {
	if prof, ok := profiles[p]; ok {
		return prof
	}
	return profiles[PlatformAny]
}

func (p profile) isSeparator(b byte) bool {
	return strings.IndexByte(p.separators, b) >= 0
}

// withReserved returns a copy of p whose reserved-name table also holds extra.
func (p profile) withReserved(extra []string) profile {
	if len(extra) == 0 {
		return p
	}
	names := make([]string, 0, len(p.reservedNames)+len(extra))
	names = append(names, p.reservedNames...)
	for _, n := range extra {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, strings.ToUpper(n))
		}
	}
	p.reservedNames = names
	return p
}

// isReserved reports whether name, ignoring case and anything after the
// first dot, is a reserved device name.
func (p profile) isReserved(name string) bool {
	if len(p.reservedNames) == 0 {
		return false
	}
	base := strings.ToUpper(strings.TrimSpace(name))
	if idx := strings.IndexByte(base, '.'); idx != -1 {
		base = base[:idx]
	}
	base = strings.TrimRight(base, " ")
	for _, r := range p.reservedNames {
		if base == r {
			return true
		}
	}
	return false
}

// Character allow-lists. Everything outside them is replaced by the
// sanitizers with replacementPlaceholder.
var (
	pathAllowed     = allowList("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.-_")
	filenameAllowed = allowList("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.-_ ")
)

type charSet [256]bool

func allowList(chars string) charSet {
	var s charSet
	for i := 0; i < len(chars); i++ {
		s[chars[i]] = true
	}
	return s
}

func (s *charSet) has(b byte) bool {
	return s[b]
}
