package validation

import (
	"fmt"
	"strings"
)

// DetectTraversal classifies raw without rewriting it.
//
// The input is normalized first (see Normalize); normalization failures are
// reported as KindInvalid, never as safe. Any ".." segment is a traversal.
// When a base directory is configured, an absolute input is also a traversal
// unless it has the base's root marker and lies below the base.
//
// Empty input and separator-only input are safe here; the path operations
// decide whether they are acceptable results.
func (v *PathValidator) DetectTraversal(raw string) Verdict {
	_, err := v.detect(raw)
	v.record(err)
	return verdictOf(err)
}

// detect is the shared detector used by every path operation.
func (v *PathValidator) detect(raw string) (normalizedPath, error) {
	if err := v.checkLength(raw); err != nil {
		return normalizedPath{}, err
	}
	n, err := normalize(raw, v.prof, v.maxPasses)
	if err != nil {
		return normalizedPath{}, err
	}

	for i, seg := range n.segments {
		if seg == ".." {
			return n, traversal(raw, ReasonParentReference,
				fmt.Sprintf("segment %d is a parent-directory reference", i+1))
		}
	}
	// "//../x" is "/../x" to a POSIX resolver.
	if n.root == rootUNC && n.volume == "//.." {
		return n, traversal(raw, ReasonParentReference, "network host is a parent-directory reference")
	}

	if v.base == nil || n.root == rootNone {
		return n, nil
	}
	if v.within(n) {
		return n, nil
	}

	switch n.root {
	case rootDrive:
		return n, traversal(raw, ReasonDriveRoot,
			fmt.Sprintf("drive root %s is outside base directory %s", n.volume, v.baseDir))
	case rootUNC, rootDevice:
		return n, traversal(raw, ReasonUNCRoot,
			fmt.Sprintf("network or device root %s is outside base directory %s", n.volume, v.baseDir))
	default:
		return n, traversal(raw, ReasonRootOutsideBase,
			fmt.Sprintf("absolute path is outside base directory %s", v.baseDir))
	}
}

// within reports whether the absolute path n lies at or below the base.
func (v *PathValidator) within(n normalizedPath) bool {
	base := v.base
	if n.root != base.root {
		return false
	}
	// Volumes ("C:", "//host") are case-insensitive on every profile.
	if !strings.EqualFold(n.volume, base.volume) {
		return false
	}
	if len(n.segments) < len(base.segments) {
		return false
	}
	for i, seg := range base.segments {
		if v.prof.foldCase {
			if !strings.EqualFold(n.segments[i], seg) {
				return false
			}
		} else if n.segments[i] != seg {
			return false
		}
	}
	return true
}
