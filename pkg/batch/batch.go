// Package batch evaluates many inputs through a policy engine concurrently.
//
// Input is JSON Lines: each line is an object whose input string and,
// optionally, operation name are selected with gjson paths. With Plain set,
// each line is taken verbatim as the input. Results are written as JSON Lines
// in input order, one per non-blank input line.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pathguard/pkg/audit"
	operr "github.com/dshills/pathguard/pkg/errors"
	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/validation"
)

// Defaults.
const (
	DefaultInputField = "input"
	DefaultOpField    = "op"
	// MaxLineSize bounds a single input line.
	MaxLineSize = 1 << 20
)

// Options configures an Evaluator.
type Options struct {
	InputField string    // gjson path of the input string
	OpField    string    // gjson path of the operation name; missing means DefaultOp
	DefaultOp  policy.Op // operation used when a line names none
	Plain      bool      // treat each line as a raw input
	Workers    int       // concurrent evaluations; 0 means GOMAXPROCS
	Capacity   int       // output capacity passed to every operation
	Source     string    // input name for errors and audit records
}

// Result is the outcome for one input line.
type Result struct {
	Line   int    `json:"line"`
	Op     string `json:"op,omitempty"`
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
	// Error is set when the line itself could not be evaluated.
	Error string `json:"error,omitempty"`

	err error
}

// Err returns the validation rejection or operational failure, if any.
func (r Result) Err() error {
	return r.err
}

// Summary counts results by outcome.
type Summary struct {
	Total     int `json:"total"`
	Safe      int `json:"safe"`
	Traversal int `json:"traversal"`
	Invalid   int `json:"invalid"`
	Errors    int `json:"errors"`
}

// Evaluator runs batches.
type Evaluator struct {
	engine   *policy.Engine
	recorder *audit.Recorder
	opts     Options
}

// NewEvaluator creates an evaluator. recorder may be nil.
func NewEvaluator(engine *policy.Engine, recorder *audit.Recorder, opts Options) (*Evaluator, error) {
	if engine == nil {
		return nil, errors.New("batch: engine is required")
	}
	if opts.InputField == "" {
		opts.InputField = DefaultInputField
	}
	if opts.OpField == "" {
		opts.OpField = DefaultOpField
	}
	if opts.DefaultOp == "" {
		opts.DefaultOp = policy.OpSanitize
	}
	if _, err := policy.ParseOp(string(opts.DefaultOp)); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Capacity == 0 {
		opts.Capacity = validation.Unlimited
	}
	if opts.Source == "" {
		opts.Source = "stdin"
	}
	return &Evaluator{engine: engine, recorder: recorder, opts: opts}, nil
}

type line struct {
	number int
	text   string
}

// Evaluate reads every line from r and returns the results in input order.
// The returned error is non-nil only when reading fails or ctx is cancelled;
// malformed lines are reported in their Result.
func (e *Evaluator) Evaluate(ctx context.Context, r io.Reader) ([]Result, error) {
	lines, err := e.readLines(r)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, ln := range lines {
		if gctx.Err() != nil {
			break
		}
		i, ln := i, ln
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluateLine(ln)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}

// Run evaluates r and writes results to w as JSON Lines.
func (e *Evaluator) Run(ctx context.Context, r io.Reader, w io.Writer) (Summary, error) {
	results, err := e.Evaluate(ctx, r)
	if err != nil {
		return Summary{}, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			return Summary{}, fmt.Errorf("failed to write result for line %d: %w", res.Line, err)
		}
	}
	return Summarize(results), nil
}

// Summarize counts results by outcome.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Error != "":
			s.Errors++
		case r.Kind == validation.KindTraversal.String():
			s.Traversal++
		case r.Kind == validation.KindInvalid.String():
			s.Invalid++
		default:
			s.Safe++
		}
	}
	return s
}

func (e *Evaluator) readLines(r io.Reader) ([]line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)

	var lines []line
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, line{number: n, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, operr.NewOperationalError("reading batch input", e.opts.Source, n+1, err)
	}
	return lines, nil
}

func (e *Evaluator) evaluateLine(ln line) Result {
	input, op, err := e.extract(ln)
	if err != nil {
		oe := operr.NewOperationalErrorWithAttrs("parsing batch line", e.opts.Source, ln.number, err,
			map[string]any{"input_field": e.opts.InputField})
		return Result{Line: ln.number, Input: input, Op: string(op), Error: oe.Error(), err: oe}
	}

	res := Result{Line: ln.number, Op: string(op), Input: input}
	out, verr := e.engine.Run(op, input, e.opts.Capacity)
	res.err = verr
	if verr == nil {
		res.Output = out
		res.Kind = validation.KindSafe.String()
		return res
	}

	var ve *validation.ValidationError
	if errors.As(verr, &ve) {
		res.Kind = ve.Kind.String()
		res.Reason = string(ve.Reason)
		res.Detail = ve.Detail
	} else {
		res.Kind = validation.KindInvalid.String()
		res.Reason = string(validation.ReasonInternalError)
		res.Detail = verr.Error()
	}
	e.recorder.Record(string(op), fmt.Sprintf("%s:%d", e.opts.Source, ln.number), input, verr)
	return res
}

func (e *Evaluator) extract(ln line) (string, policy.Op, error) {
	if e.opts.Plain {
		return ln.text, e.opts.DefaultOp, nil
	}
	if !gjson.Valid(ln.text) {
		return "", "", errors.New("line is not valid JSON")
	}

	doc := gjson.Parse(ln.text)
	op := e.opts.DefaultOp
	if v := doc.Get(e.opts.OpField); v.Exists() {
		if v.Type != gjson.String {
			return "", "", fmt.Errorf("field %q must be a string", e.opts.OpField)
		}
		parsed, err := policy.ParseOp(v.Str)
		if err != nil {
			return "", "", err
		}
		op = parsed
	}

	v := doc.Get(e.opts.InputField)
	if !v.Exists() {
		return "", op, fmt.Errorf("field %q not found", e.opts.InputField)
	}
	if v.Type != gjson.String {
		return "", op, fmt.Errorf("field %q must be a string", e.opts.InputField)
	}
	return v.Str, op, nil
}
