package validation

import (
	"fmt"
	"sync/atomic"
)

// Unlimited may be passed as a capacity to disable the output length check.
// The input is still bounded by the validator's maximum input length.
const Unlimited = -1

// PathValidator validates and sanitizes untrusted path strings, filenames and
// project identifiers.
//
// It implements defense-in-depth with layered checks:
//   - Encoding normalization (percent, double-percent, %u, overlong UTF-8, homoglyphs)
//   - Traversal detection (".." segments, foreign roots when a base is configured)
//   - Character hygiene (allow-lists, control characters, reserved device names)
//   - Closure verification (sanitized output is re-checked before it is returned)
//
// All analysis is textual; the validator never touches the filesystem.
//
// Thread-safe for concurrent use. The only mutable state is the statistics
// counters, which are updated atomically.
type PathValidator struct {
	prof           profile
	baseDir        string
	base           *normalizedPath
	maxInputLen    int
	maxPasses      int
	requireSegment bool
	extraReserved  []string

	validations uint64
	rejections  uint64
	traversals  uint64
}

// Option configures a PathValidator.
type Option func(*PathValidator) error

// WithPlatform selects the separator and reserved-name profile.
// The default is PlatformAny.
func WithPlatform(p Platform) Option {
	return func(v *PathValidator) error {
		if _, ok := profiles[p]; !ok {
			return fmt.Errorf("unknown platform: %d", int(p))
		}
		v.prof = profiles[p]
		return nil
	}
}

// WithBaseDir confines absolute inputs to dir. Relative inputs are always
// treated as relative to the base. dir must be absolute, must not contain
// ".." segments, and may only use allow-listed path characters.
//
// The base is compared textually; symbolic links are not resolved.
func WithBaseDir(dir string) Option {
	return func(v *PathValidator) error {
		v.baseDir = dir
		return nil
	}
}

// WithMaxInputLength bounds the accepted input length in bytes.
func WithMaxInputLength(n int) Option {
	return func(v *PathValidator) error {
		if n <= 0 {
			return fmt.Errorf("max input length must be positive: %d", n)
		}
		v.maxInputLen = n
		return nil
	}
}

// WithMaxDecodePasses bounds how many layers of percent-encoding are peeled
// before the input is rejected as malformed.
func WithMaxDecodePasses(n int) Option {
	return func(v *PathValidator) error {
		if n < 1 || n > 16 {
			return fmt.Errorf("max decode passes must be between 1 and 16: %d", n)
		}
		v.maxPasses = n
		return nil
	}
}

// WithRequireSegment makes the path operations reject inputs that consist
// only of separators, since they do not name anything below the root.
func WithRequireSegment(require bool) Option {
	return func(v *PathValidator) error {
		v.requireSegment = require
		return nil
	}
}

// WithReservedNames adds device names to the platform's reserved-name table.
// It has no effect on PlatformUnix, which has no reserved names.
func WithReservedNames(names ...string) Option {
	return func(v *PathValidator) error {
		v.extraReserved = append(v.extraReserved, names...)
		return nil
	}
}

// NewPathValidator creates a validator. With no options it uses PlatformAny,
// no base directory, DefaultMaxInputLength and DefaultMaxDecodePasses.
//
// Returns error if an option is invalid or the base directory is unusable.
//
// Example:
//
//	validator, err := NewPathValidator(WithPlatform(PlatformUnix), WithBaseDir("/var/app/data"))
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewPathValidator(opts ...Option) (*PathValidator, error) {
	v := newDefaultValidator()
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if v.prof.platform != PlatformUnix {
		v.prof = v.prof.withReserved(v.extraReserved)
	}
	if v.baseDir != "" {
		base, err := v.parseBase(v.baseDir)
		if err != nil {
			return nil, err
		}
		v.base = &base
	}
	return v, nil
}

// Default returns a new validator with the default settings: PlatformAny, no
// base directory and the default input and decode limits. Unlike
// NewPathValidator it cannot fail.
func Default() *PathValidator {
	return newDefaultValidator()
}

func newDefaultValidator() *PathValidator {
	return &PathValidator{
		prof:        profiles[PlatformAny],
		maxInputLen: DefaultMaxInputLength,
		maxPasses:   DefaultMaxDecodePasses,
	}
}

// parseBase checks and normalizes the configured base directory.
func (v *PathValidator) parseBase(dir string) (normalizedPath, error) {
	n, err := normalize(dir, v.prof, v.maxPasses)
	if err != nil {
		return normalizedPath{}, fmt.Errorf("invalid base directory: %w", err)
	}
	if n.root == rootNone {
		return normalizedPath{}, fmt.Errorf("base directory must be absolute: %s", dir)
	}
	if n.root == rootDevice {
		return normalizedPath{}, fmt.Errorf("base directory cannot be a device path: %s", dir)
	}
	for _, seg := range n.segments {
		if seg == ".." {
			return normalizedPath{}, fmt.Errorf("base directory must not contain \"..\": %s", dir)
		}
		for i := 0; i < len(seg); i++ {
			if !pathAllowed.has(seg[i]) {
				return normalizedPath{}, fmt.Errorf("base directory contains disallowed character %q: %s", seg[i], dir)
			}
		}
	}
	return n, nil
}

// Platform returns the configured platform profile.
func (v *PathValidator) Platform() Platform {
	return v.prof.platform
}

// BaseDir returns the configured base directory, or "" when unconfined.
func (v *PathValidator) BaseDir() string {
	return v.baseDir
}

// MaxInputLength returns the configured input bound in bytes.
func (v *PathValidator) MaxInputLength() int {
	return v.maxInputLen
}

// Normalize returns the canonical comparison form of raw under this
// validator's profile. See the package-level Normalize.
func (v *PathValidator) Normalize(raw string) (string, error) {
	if err := v.checkLength(raw); err != nil {
		return "", err
	}
	n, err := normalize(raw, v.prof, v.maxPasses)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// Form is the decoded and folded view of an input that policy rules and
// audit records are evaluated against.
type Form struct {
	Canonical string   `json:"canonical"` // Normalize result
	Root      string   `json:"root"`      // "none", "unix", "drive", "unc" or "device"
	Volume    string   `json:"volume,omitempty"`
	Segments  []string `json:"segments"` // non-empty segments below the root
}

// Inspect normalizes raw and returns its parsed form. It does not apply
// the traversal rules and does not update the statistics.
func (v *PathValidator) Inspect(raw string) (Form, error) {
	if err := v.checkLength(raw); err != nil {
		return Form{}, err
	}
	n, err := normalize(raw, v.prof, v.maxPasses)
	if err != nil {
		return Form{}, err
	}
	return Form{
		Canonical: n.String(),
		Root:      n.root.String(),
		Volume:    n.volume,
		Segments:  append([]string(nil), n.segments...),
	}, nil
}

// record updates the statistics counters for one call.
func (v *PathValidator) record(err error) {
	atomic.AddUint64(&v.validations, 1)
	if err == nil {
		return
	}
	atomic.AddUint64(&v.rejections, 1)
	if KindOf(err) == KindTraversal {
		atomic.AddUint64(&v.traversals, 1)
	}
}

// Stats returns validation statistics for monitoring.
//
// Returns:
//   - validations: Total number of calls
//   - rejections: Number of calls that did not return a safe result
//   - traversals: Number of rejections classified as traversal attacks
//
// Thread-safe.
func (v *PathValidator) Stats() (validations, rejections, traversals uint64) {
	return atomic.LoadUint64(&v.validations),
		atomic.LoadUint64(&v.rejections),
		atomic.LoadUint64(&v.traversals)
}

func (v *PathValidator) checkLength(raw string) error {
	if len(raw) > v.maxInputLen {
		return invalid(raw, ReasonTooLong,
			fmt.Sprintf("input length %d exceeds maximum of %d bytes", len(raw), v.maxInputLen))
	}
	return nil
}

// checkCapacity fails rather than truncates when out does not fit.
func checkCapacity(raw, out string, capacity int) error {
	if capacity == Unlimited {
		return nil
	}
	if capacity < 0 {
		return invalid(raw, ReasonBufferTooSmall, fmt.Sprintf("negative capacity %d", capacity))
	}
	if len(out) > capacity {
		return invalid(raw, ReasonBufferTooSmall,
			fmt.Sprintf("result needs %d bytes, capacity is %d", len(out), capacity))
	}
	return nil
}

// Package-level convenience functions. Each call builds its own default
// validator (PlatformAny, no base directory), so no state is shared
// between calls.

// DetectTraversal classifies raw with the default validator.
func DetectTraversal(raw string) Verdict {
	return newDefaultValidator().DetectTraversal(raw)
}

// SanitizePath sanitizes raw with the default validator.
func SanitizePath(raw string, capacity int) (string, error) {
	return newDefaultValidator().SanitizePath(raw, capacity)
}

// ValidatePath strictly validates raw with the default validator.
func ValidatePath(raw string, capacity int) (string, error) {
	return newDefaultValidator().ValidatePath(raw, capacity)
}

// SanitizeFilename sanitizes a single-segment filename with the default validator.
func SanitizeFilename(raw string, capacity int) (string, error) {
	return newDefaultValidator().SanitizeFilename(raw, capacity)
}

// ValidateProjectName validates a project identifier with the default validator.
func ValidateProjectName(raw string, capacity int) (string, error) {
	return newDefaultValidator().ValidateProjectName(raw, capacity)
}
