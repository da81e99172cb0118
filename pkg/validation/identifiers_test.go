package validation

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestIsValidIdentifierChar(t *testing.T) {
	tests := []struct {
		name string
		ch   rune
		want bool
	}{
		// Valid characters
		{"lowercase a", 'a', true},
		{"lowercase z", 'z', true},
		{"uppercase A", 'A', true},
		{"uppercase Z", 'Z', true},
		{"digit 0", '0', true},
		{"digit 9", '9', true},
		{"hyphen", '-', true},
		{"underscore", '_', true},

		// Invalid characters
		{"space", ' ', false},
		{"dot", '.', false},
		{"slash", '/', false},
		{"backslash", '\\', false},
		{"colon", ':', false},
		{"semicolon", ';', false},
		{"asterisk", '*', false},
		{"question mark", '?', false},
		{"exclamation", '!', false},
		{"at sign", '@', false},
		{"hash", '#', false},
		{"dollar", '$', false},
		{"percent", '%', false},
		{"caret", '^', false},
		{"ampersand", '&', false},
		{"parenthesis", '(', false},
		{"bracket", '[', false},
		{"brace", '{', false},
		{"less than", '<', false},
		{"greater than", '>', false},
		{"pipe", '|', false},
		{"backtick", '`', false},
		{"tilde", '~', false},
		{"newline", '\n', false},
		{"tab", '\t', false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidIdentifierChar(tt.ch); got != tt.want {
				t.Errorf("IsValidIdentifierChar(%q) = %v, want %v", tt.ch, got, tt.want)
			}
		})
	}
}

func TestValidateProjectName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"simple lowercase", "test", "test"},
		{"mixed case", "TestCase", "TestCase"},
		{"with digits", "test123", "test123"},
		{"hyphens and underscores", "my-server_123", "my-server_123"},
		{"spaces stripped", "my project", "myproject"},
		{"dots stripped", "test.case", "testcase"},
		{"special characters stripped", "te$st@ca#se!", "testcase"},
		{"non-ascii stripped", "caf\u00e9-app", "caf-app"},
		{"digits with letter", "2024a", "2024a"},
		{"inner separators kept", "a_-b", "a_-b"},
		{"trailing punctuation stripped", "my-project!", "my-project"},
		{"exactly max length", strings.Repeat("p", MaxProjectNameLength), strings.Repeat("p", MaxProjectNameLength)},
		{"long before stripping", strings.Repeat("p.", MaxProjectNameLength), strings.Repeat("p", MaxProjectNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateProjectName(tt.raw, Unlimited)
			if err != nil {
				t.Fatalf("ValidateProjectName(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ValidateProjectName(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidateProjectName_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"empty", "", ReasonEmpty},
		{"only punctuation", "!!!@@@", ReasonEmpty},
		{"leading parent", "../malicious-project", ReasonTraversalAttempt},
		{"leading dots", "..project", ReasonTraversalAttempt},
		{"absolute", "/etc", ReasonTraversalAttempt},
		{"leading backslash", `\\server`, ReasonTraversalAttempt},
		{"parent segment inside", "a/../b", ReasonTraversalAttempt},
		{"parent segment with backslash", `a\..\b`, ReasonTraversalAttempt},
		{"leading space then parent", "  ../x", ReasonTraversalAttempt},
		{"encoded parent", "%2e%2e%2fproject", ReasonTraversalAttempt},
		{"encoded slash prefix", "%2fetc", ReasonTraversalAttempt},
		{"full-width parent", "\uff0e\uff0e\uff0fx", ReasonTraversalAttempt},
		{"full-width percent parent", "\uff052e\uff052e\uff052fx", ReasonTraversalAttempt},
		{"null byte", "proj\x00ect", ReasonNullByte},
		{"encoded null byte", "proj%00ect", ReasonNullByte},
		{"flag", "-rf", ReasonFlagLike},
		{"flag after stripping", " --help", ReasonFlagLike},
		{"all digits", "12345", ReasonFlagLike},
		{"leading underscore", "_internal", ReasonFlagLike},
		{"trailing hyphen", "foo-", ReasonFlagLike},
		{"trailing underscore", "foo_", ReasonFlagLike},
		{"underscores around", "_foo_", ReasonFlagLike},
		{"trailing hyphen after stripping", "foo- !", ReasonFlagLike},
		{"reserved", "con", ReasonReservedName},
		{"reserved after stripping", "L.P.T.1", ReasonReservedName},
		{"too long", strings.Repeat("p", MaxProjectNameLength+1), ReasonTooLong},
		{"over input limit", strings.Repeat("p", DefaultMaxInputLength+1), ReasonTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateProjectName(tt.raw, Unlimited)
			if err == nil {
				t.Fatalf("ValidateProjectName(%q) = %q, want error", tt.raw, got)
			}
			if KindOf(err) != KindInvalid {
				t.Errorf("ValidateProjectName(%q) kind = %v, want %v", tt.raw, KindOf(err), KindInvalid)
			}
			if ReasonOf(err) != tt.reason {
				t.Errorf("ValidateProjectName(%q) error = %v, want %s", tt.raw, err, tt.reason)
			}
		})
	}
}

func TestValidateProjectName_ReservedOnlyOnWindowsProfiles(t *testing.T) {
	unix := mustValidator(t, WithPlatform(PlatformUnix))
	if got, err := unix.ValidateProjectName("aux", Unlimited); err != nil || got != "aux" {
		t.Errorf("unix ValidateProjectName(aux) = %q, %v", got, err)
	}
	win := mustValidator(t, WithPlatform(PlatformWindows))
	if _, err := win.ValidateProjectName("AUX", Unlimited); ReasonOf(err) != ReasonReservedName {
		t.Errorf("windows ValidateProjectName(AUX) error = %v, want %s", err, ReasonReservedName)
	}
}

func TestValidateProjectName_Capacity(t *testing.T) {
	if got, err := ValidateProjectName("my-project", 10); err != nil || got != "my-project" {
		t.Errorf("ValidateProjectName(cap=10) = %q, %v", got, err)
	}
	if _, err := ValidateProjectName("my-project", 9); ReasonOf(err) != ReasonBufferTooSmall {
		t.Errorf("ValidateProjectName(cap=9) error = %v, want %s", err, ReasonBufferTooSmall)
	}
}

func TestValidateProjectName_PropertyBased_OutputIsIdentifier(t *testing.T) {
	f := func(s string) bool {
		out, err := ValidateProjectName(s, Unlimited)
		if err != nil {
			return out == ""
		}
		if out == "" || len(out) > MaxProjectNameLength || out[0] == '-' || out[0] == '_' {
			return false
		}
		if last := out[len(out)-1]; last == '-' || last == '_' {
			return false
		}
		for _, ch := range out {
			if !IsValidIdentifierChar(ch) {
				return false
			}
		}
		again, err := ValidateProjectName(out, Unlimited)
		return err == nil && again == out
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}
