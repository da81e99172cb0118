// Package validation provides the path-security engine for pathguard.
//
// # Path Security
//
// The purpose of this package is to decide, from text alone, whether an
// untrusted path, filename or project identifier is safe to hand to code that
// opens, creates or references files. It never calls stat, open or readlink:
// symlinks, permissions and existence are the caller's concern.
//
// # Components
//
// The engine is four components composed linearly:
//
//   - Normalizer: decodes %XX, %uXXXX and overlong UTF-8 and folds
//     compatibility and look-alike characters, repeating both until the
//     input stops changing (up to a bounded number of passes), maps
//     '\' to '/' on Windows-style profiles and collapses separators. The
//     result is a comparison form only; it is never returned as "sanitized".
//   - Detector: flags ".." segments and, when a base directory is
//     configured, absolute paths whose root is not the base's.
//   - Path sanitizer: rejects traversal, replaces disallowed characters and
//     re-checks its own output with the detector before returning it.
//   - Filename and identifier sanitizers: single-segment rules, reserved
//     device names, and flag-like identifiers.
//
// # Security Guarantees
//
//   - The detector never reports safe for an input with a ".." segment after
//     normalization, whatever the encoding.
//   - Sanitized output always classifies as safe when re-checked.
//   - Output never exceeds the caller's capacity; it is rejected, not truncated.
//   - Null bytes, literal or encoded, are always rejected.
//   - Traversal is reported as KindTraversal, distinct from malformed input
//     (KindInvalid), so callers can alert on attacks separately.
//
// # Usage
//
// For repeated validations (recommended):
//
//	validator, err := validation.NewPathValidator(
//	    validation.WithPlatform(validation.PlatformUnix),
//	    validation.WithBaseDir("/var/app/uploads"),
//	)
//	if err != nil {
//	    log.Fatalf("Failed to create validator: %v", err)
//	}
//
//	safe, err := validator.SanitizePath(userInput, validation.Unlimited)
//	if errors.Is(err, validation.ErrTraversal) {
//	    // attack: log and alert
//	}
//
// For one-off validations:
//
//	name, err := validation.SanitizeFilename(upload.Filename, 255)
//
// # Thread Safety
//
// All functions are pure apart from the PathValidator statistics counters,
// which are atomic. A PathValidator is safe for concurrent use.
package validation
