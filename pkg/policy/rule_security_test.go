package policy

import (
	"strings"
	"testing"
)

// TestCompileRule_Injection checks that rule expressions cannot reach anything
// outside the rule environment.
func TestCompileRule_Injection(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		shouldFail bool
	}{
		// Code and command injection attempts
		{"os.system injection", "os.system('rm -rf /')", true},
		{"exec injection", "exec('malicious code')", true},
		{"eval injection", "eval('dangerous code')", true},
		{"system command injection", "system('cat /etc/passwd')", true},
		{"popen injection", "popen('whoami')", true},

		// File system, network and unsafe access attempts
		{"ReadFile attempt", "ReadFile('/etc/passwd') != nil", true},
		{"http package access", "http.Get('http://evil.com') != nil", true},
		{"net package access", "net.Dial('tcp', 'evil.com:80') != nil", true},
		{"unsafe package access", "unsafe.Pointer(nil) != nil", true},
		{"env lookup", "Getenv('HOME') == ''", true},

		// Not boolean
		{"string result", "canonical", true},
		{"numeric result", "len(segments)", true},

		// Malformed or oversized
		{"empty", "   ", true},
		{"syntax error", "canonical ==", true},
		{"too long", "canonical == '" + strings.Repeat("a", MaxRuleLength) + "'", true},
		{"too many nodes", strings.TrimSuffix(strings.Repeat("raw == 'x' || ", 400), " || "), true},

		// Valid rules
		{"equality", "canonical == 'secret'", false},
		{"prefix", "lower(canonical) startsWith '/etc/'", false},
		{"closure", "any(segments, {# == '.git'})", false},
		{"membership", "root in ['drive', 'unc']", false},
		{"regex", "raw matches '^[a-z]+://'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileRule(tt.expression)
			if tt.shouldFail && err == nil {
				t.Errorf("CompileRule(%q) succeeded, want error", tt.expression)
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("CompileRule(%q) error = %v, want nil", tt.expression, err)
			}
		})
	}
}
