package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dshills/pathguard/pkg/validation"
)

// Env is the variable environment deny rules are evaluated in.
type Env struct {
	Canonical string   `expr:"canonical"` // normalized comparison form
	Raw       string   `expr:"raw"`       // input as received
	Segments  []string `expr:"segments"`  // non-empty segments below the root
	Root      string   `expr:"root"`      // none, unix, drive, unc or device
	Volume    string   `expr:"volume"`    // "C:", "//host" or ""
	Platform  string   `expr:"platform"`  // any, unix or windows
	Op        string   `expr:"op"`        // operation being performed
}

type compiledRule struct {
	Rule
	program *vm.Program
}

// Engine applies a policy: the configured validator runs first, and inputs
// it accepts are then checked against the deny rules.
//
// Thread-safe for concurrent use; compiled programs are immutable.
type Engine struct {
	policy    *Policy
	validator *validation.PathValidator
	rules     []compiledRule
}

// NewEngine builds the validator for p and compiles its rules.
func NewEngine(p *Policy) (*Engine, error) {
	if p == nil {
		p = Default()
	}
	opts, err := p.Options()
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", p.Name, err)
	}
	v, err := validation.NewPathValidator(opts...)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", p.Name, err)
	}

	rules := make([]compiledRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		program, err := CompileRule(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("policy %s: rule %s: %w", p.Name, r.Name, err)
		}
		rules = append(rules, compiledRule{Rule: r, program: program})
	}

	return &Engine{policy: p, validator: v, rules: rules}, nil
}

// Rule expression limits.
const (
	MaxRuleLength = 4096
	MaxRuleNodes  = 1000
)

// CompileRule compiles a deny expression. The expression must yield a bool.
//
// Rules are sandboxed: only the Env fields and expr builtins are visible,
// so they cannot reach the filesystem, the network or the process.
func CompileRule(expression string) (*vm.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("invalid rule expression: empty")
	}
	if len(expression) > MaxRuleLength {
		return nil, fmt.Errorf("invalid rule expression: longer than %d bytes", MaxRuleLength)
	}
	program, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool(), expr.MaxNodes(MaxRuleNodes))
	if err != nil {
		return nil, fmt.Errorf("invalid rule expression: %w", err)
	}
	return program, nil
}

// Policy returns the policy the engine was built from.
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Validator returns the underlying validator, for statistics.
func (e *Engine) Validator() *validation.PathValidator {
	return e.validator
}

// Normalize returns the canonical comparison form of raw.
func (e *Engine) Normalize(raw string) (string, error) {
	return e.validator.Normalize(raw)
}

// DetectTraversal classifies raw. A safe input that matches a deny rule is
// reported as invalid with ReasonPolicyDenied.
func (e *Engine) DetectTraversal(raw string) validation.Verdict {
	verdict := e.validator.DetectTraversal(raw)
	if !verdict.Safe() {
		return verdict
	}
	if err := e.check(OpDetect, raw); err != nil {
		var ve *validation.ValidationError
		if errors.As(err, &ve) {
			return ve.Verdict()
		}
		return validation.Verdict{Kind: validation.KindInvalid, Reason: validation.ReasonInternalError, Detail: err.Error()}
	}
	return verdict
}

// SanitizePath sanitizes raw and applies the deny rules.
func (e *Engine) SanitizePath(raw string, capacity int) (string, error) {
	return e.apply(OpSanitize, raw, capacity, e.validator.SanitizePath)
}

// ValidatePath strictly validates raw and applies the deny rules.
func (e *Engine) ValidatePath(raw string, capacity int) (string, error) {
	return e.apply(OpValidate, raw, capacity, e.validator.ValidatePath)
}

// SanitizeFilename sanitizes a filename and applies the deny rules.
func (e *Engine) SanitizeFilename(raw string, capacity int) (string, error) {
	return e.apply(OpFilename, raw, capacity, e.validator.SanitizeFilename)
}

// ValidateProjectName validates a project name and applies the deny rules.
func (e *Engine) ValidateProjectName(raw string, capacity int) (string, error) {
	return e.apply(OpProject, raw, capacity, e.validator.ValidateProjectName)
}

// Run dispatches op. For OpDetect the result is always empty and a
// non-safe verdict is returned as an error.
func (e *Engine) Run(op Op, raw string, capacity int) (string, error) {
	switch op {
	case OpDetect:
		return "", e.DetectTraversal(raw).Err(raw)
	case OpSanitize:
		return e.SanitizePath(raw, capacity)
	case OpValidate:
		return e.ValidatePath(raw, capacity)
	case OpFilename:
		return e.SanitizeFilename(raw, capacity)
	case OpProject:
		return e.ValidateProjectName(raw, capacity)
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
}

func (e *Engine) apply(op Op, raw string, capacity int, fn func(string, int) (string, error)) (string, error) {
	out, err := fn(raw, capacity)
	if err != nil {
		return "", err
	}
	if err := e.check(op, raw); err != nil {
		return "", err
	}
	return out, nil
}

// check evaluates the rules scoped to op against the normalized form of raw.
// A rule that fails to evaluate denies the input.
func (e *Engine) check(op Op, raw string) error {
	env, ok, err := e.env(op, raw)
	if err != nil || !ok {
		return err
	}
	for _, r := range e.rules {
		if !r.AppliesTo(op) {
			continue
		}
		out, err := expr.Run(r.program, env)
		if err != nil {
			return denied(raw, r.Name, fmt.Sprintf("evaluation failed: %v", err))
		}
		if match, _ := out.(bool); match {
			detail := r.Description
			if detail == "" {
				detail = r.Expr
			}
			return denied(raw, r.Name, detail)
		}
	}
	return nil
}

// env builds the rule environment, skipping the work when no rule applies.
func (e *Engine) env(op Op, raw string) (Env, bool, error) {
	scoped := false
	for _, r := range e.rules {
		if r.AppliesTo(op) {
			scoped = true
			break
		}
	}
	if !scoped {
		return Env{}, false, nil
	}
	form, err := e.validator.Inspect(raw)
	if err != nil {
		return Env{}, false, err
	}
	return Env{
		Canonical: form.Canonical,
		Raw:       raw,
		Segments:  form.Segments,
		Root:      form.Root,
		Volume:    form.Volume,
		Platform:  e.validator.Platform().String(),
		Op:        string(op),
	}, true, nil
}

func denied(raw, rule, detail string) *validation.ValidationError {
	return &validation.ValidationError{
		Kind:   validation.KindInvalid,
		Reason: validation.ReasonPolicyDenied,
		Input:  raw,
		Detail: fmt.Sprintf("rule %s: %s", rule, detail),
	}
}
