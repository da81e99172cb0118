package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pathguard/pkg/audit"
	domainaudit "github.com/dshills/pathguard/pkg/domain/audit"
	operr "github.com/dshills/pathguard/pkg/errors"
	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/validation"
)

func newEvaluator(t *testing.T, recorder *audit.Recorder, opts Options) *Evaluator {
	t.Helper()
	engine, err := policy.NewEngine(nil)
	require.NoError(t, err)
	ev, err := NewEvaluator(engine, recorder, opts)
	require.NoError(t, err)
	return ev
}

func TestEvaluate_JSONLines(t *testing.T) {
	ev := newEvaluator(t, nil, Options{Source: "in.jsonl"})

	input := strings.Join([]string{
		`{"input": "uploads/a b.txt"}`,
		`{"input": "../../etc/passwd", "op": "detect"}`,
		``,
		`{"input": "report.pdf", "op": "filename"}`,
		`{"input": "a\u0000b", "op": "validate"}`,
		`not json`,
		`{"path": "x"}`,
		`{"input": 42}`,
		`{"input": "x", "op": "delete"}`,
		`{"input": "/etc/shadow"}`,
	}, "\n")

	results, err := ev.Evaluate(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 9)

	assert.Equal(t, Result{Line: 1, Op: "sanitize", Input: "uploads/a b.txt", Output: "uploads/a_b.txt", Kind: "safe"},
		withoutErr(results[0]))

	assert.Equal(t, 2, results[1].Line)
	assert.Equal(t, "traversal", results[1].Kind)
	assert.Equal(t, "parent_reference", results[1].Reason)
	assert.ErrorIs(t, results[1].Err(), validation.ErrTraversal)

	// Blank line 3 is skipped but still counted.
	assert.Equal(t, 4, results[2].Line)
	assert.Equal(t, "report.pdf", results[2].Output)

	assert.Equal(t, "null_byte", results[3].Reason)

	for _, i := range []int{4, 5, 6, 7} {
		assert.NotEmpty(t, results[i].Error, "line %d", results[i].Line)
		var oe *operr.OperationalError
		require.True(t, errors.As(results[i].Err(), &oe))
		assert.Equal(t, results[i].Line, oe.Line)
		assert.Equal(t, "in.jsonl", oe.Source)
	}
	assert.Contains(t, results[4].Error, "not valid JSON")
	assert.Contains(t, results[5].Error, `"input" not found`)
	assert.Contains(t, results[6].Error, "must be a string")
	assert.Contains(t, results[7].Error, "unknown operation")

	assert.Equal(t, "policy_denied", results[8].Reason)

	assert.Equal(t, Summary{Total: 9, Safe: 2, Traversal: 1, Invalid: 2, Errors: 4}, Summarize(results))
}

func withoutErr(r Result) Result {
	r.err = nil
	return r
}

func TestEvaluate_CustomFields(t *testing.T) {
	ev := newEvaluator(t, nil, Options{InputField: "req.path", OpField: "req.kind", DefaultOp: policy.OpValidate})

	input := `{"req": {"path": "a/b", "kind": "project"}}
{"req": {"path": "/safe/x"}}`
	results, err := ev.Evaluate(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "project", results[0].Op)
	assert.Equal(t, "ab", results[0].Output)
	assert.Equal(t, "validate", results[1].Op)
	assert.Equal(t, "/safe/x", results[1].Output)
}

func TestEvaluate_Plain(t *testing.T) {
	ev := newEvaluator(t, nil, Options{Plain: true, DefaultOp: policy.OpFilename})

	results, err := ev.Evaluate(context.Background(), strings.NewReader("a b.txt\r\n{\"input\":1}\r\n..\r\n"))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a_b.txt", results[0].Output)
	assert.Equal(t, "safe", results[1].Kind, "JSON is just text in plain mode")
	assert.NotEqual(t, "safe", results[2].Kind)
}

func TestEvaluate_PreservesOrder(t *testing.T) {
	ev := newEvaluator(t, nil, Options{Plain: true, Workers: 8})

	var b strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "dir/file-%d.txt\n", i)
	}
	results, err := ev.Evaluate(context.Background(), strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, results, 500)
	for i, r := range results {
		assert.Equal(t, i+1, r.Line)
		assert.Equal(t, fmt.Sprintf("dir/file-%d.txt", i), r.Output)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	ev := newEvaluator(t, nil, Options{Plain: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Evaluate(ctx, strings.NewReader("a\nb\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_LineTooLong(t *testing.T) {
	ev := newEvaluator(t, nil, Options{Plain: true, Source: "big.txt"})

	_, err := ev.Evaluate(context.Background(), strings.NewReader(strings.Repeat("a", MaxLineSize+1)))
	var oe *operr.OperationalError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "big.txt", oe.Source)
}

func TestRun_WritesJSONLines(t *testing.T) {
	ev := newEvaluator(t, nil, Options{})

	var out bytes.Buffer
	summary, err := ev.Run(context.Background(),
		strings.NewReader(`{"input":"a<b>.txt","op":"filename"}`+"\n"+`{"input":"../x"}`), &out)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Safe: 1, Traversal: 1}, summary)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"output":"a_b_.txt"`, "HTML characters are not escaped")

	var second Result
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "traversal", second.Kind)
	assert.Empty(t, second.Output)
}

type countingRepository struct {
	domainaudit.Repository
	saved []*domainaudit.Record
}

func (c *countingRepository) Save(rec *domainaudit.Record) error {
	c.saved = append(c.saved, rec)
	return nil
}

func TestEvaluate_AuditsRejections(t *testing.T) {
	repo := &countingRepository{}
	logger := log.NewWithOptions(&bytes.Buffer{}, log.Options{})
	ev := newEvaluator(t, audit.NewRecorder(repo, "default", logger), Options{Plain: true, Workers: 1, Source: "list"})

	_, err := ev.Evaluate(context.Background(), strings.NewReader("ok.txt\n../x\nnot/../ok\n"))
	require.NoError(t, err)

	require.Len(t, repo.saved, 2)
	assert.Equal(t, "list:2", repo.saved[0].Source)
	assert.Equal(t, "list:3", repo.saved[1].Source)
	assert.Equal(t, "sanitize", repo.saved[0].Operation)
	assert.WithinDuration(t, time.Now(), repo.saved[0].CreatedAt, time.Minute)
}

func TestNewEvaluator_Errors(t *testing.T) {
	_, err := NewEvaluator(nil, nil, Options{})
	assert.Error(t, err)

	engine, err := policy.NewEngine(nil)
	require.NoError(t, err)
	_, err = NewEvaluator(engine, nil, Options{DefaultOp: "delete"})
	assert.ErrorContains(t, err, "unknown operation")
}
