// Package policy loads validation policies and applies their deny rules on
// top of the path-security engine.
//
// A policy is a YAML document that configures the engine (platform, base
// directory, limits, extra reserved names) and lists deny rules. Rules are
// boolean expr-lang expressions evaluated against the normalized form of the
// input, so percent-encoding or look-alike characters cannot dodge them.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/dshills/pathguard/pkg/validation"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed default.yaml
var defaultYAML []byte

// Op names an engine operation that rules can be scoped to.
type Op string

// Operations.
const (
	OpDetect   Op = "detect"
	OpSanitize Op = "sanitize"
	OpValidate Op = "validate"
	OpFilename Op = "filename"
	OpProject  Op = "project"
)

// Ops lists every operation in a stable order.
var Ops = []Op{OpDetect, OpSanitize, OpValidate, OpFilename, OpProject}

// ParseOp parses an operation name.
func ParseOp(s string) (Op, error) {
	op := Op(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Ops {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Policy is the on-disk policy document.
type Policy struct {
	Name            string   `yaml:"name" json:"name"`
	Description     string   `yaml:"description,omitempty" json:"description,omitempty"`
	Platform        string   `yaml:"platform,omitempty" json:"platform,omitempty"`
	BaseDir         string   `yaml:"base_dir,omitempty" json:"base_dir,omitempty"`
	MaxInputLength  int      `yaml:"max_input_length,omitempty" json:"max_input_length,omitempty"`
	MaxDecodePasses int      `yaml:"max_decode_passes,omitempty" json:"max_decode_passes,omitempty"`
	RequireSegment  bool     `yaml:"require_segment,omitempty" json:"require_segment,omitempty"`
	ReservedNames   []string `yaml:"reserved_names,omitempty" json:"reserved_names,omitempty"`
	Rules           []Rule   `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Rule is a named deny expression. An empty Ops list applies the rule to
// every operation.
type Rule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Expr        string `yaml:"expr" json:"expr"`
	Ops         []Op   `yaml:"ops,omitempty" json:"ops,omitempty"`
}

// AppliesTo reports whether the rule is scoped to op.
func (r Rule) AppliesTo(op Op) bool {
	if len(r.Ops) == 0 {
		return true
	}
	for _, o := range r.Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Options converts the policy's engine settings to validator options.
func (p *Policy) Options() ([]validation.Option, error) {
	platform, err := validation.ParsePlatform(p.Platform)
	if err != nil {
		return nil, err
	}
	opts := []validation.Option{validation.WithPlatform(platform)}
	if p.BaseDir != "" {
		opts = append(opts, validation.WithBaseDir(p.BaseDir))
	}
	if p.MaxInputLength > 0 {
		opts = append(opts, validation.WithMaxInputLength(p.MaxInputLength))
	}
	if p.MaxDecodePasses > 0 {
		opts = append(opts, validation.WithMaxDecodePasses(p.MaxDecodePasses))
	}
	if p.RequireSegment {
		opts = append(opts, validation.WithRequireSegment(true))
	}
	if len(p.ReservedNames) > 0 {
		opts = append(opts, validation.WithReservedNames(p.ReservedNames...))
	}
	return opts, nil
}

// Parse decodes and schema-checks a YAML policy document.
func Parse(data []byte) (*Policy, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("empty policy document")
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	if err := ValidateAgainstSchema(doc); err != nil {
		return nil, err
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return &p, nil
}

// ValidateAgainstSchema checks a decoded YAML document against the embedded
// policy schema.
func ValidateAgainstSchema(doc interface{}) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Load reads and parses a policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Marshal encodes a policy as YAML.
func Marshal(p *Policy) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	return data, nil
}

// Default returns the built-in policy.
func Default() *Policy {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return p
}

// DefaultYAML returns the built-in policy document, as written by
// "pathguard policy init".
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}
