package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/validation"
)

// checkSpec describes one single-input command.
type checkSpec struct {
	op      policy.Op
	short   string
	long    string
	example string
}

var checkCommands = []checkSpec{
	{
		op:    policy.OpDetect,
		short: "Classify a path as safe, traversal or invalid",
		long: heredoc.Doc(`
			Classify a path without rewriting it.

			The input is decoded and normalized, then checked for parent-directory
			segments, foreign roots and policy deny rules. Exit status is 0 when
			safe, 2 on traversal and 1 when the input is invalid.
		`),
		example: heredoc.Doc(`
			pathguard detect 'uploads/report.pdf'
			pathguard detect '%2e%2e%2fetc%2fpasswd'
			pathguard detect --json '..\..\windows'
		`),
	},
	{
		op:    policy.OpSanitize,
		short: "Rewrite a path into a safe form",
		long: heredoc.Doc(`
			Return the path with every character outside the allow-list replaced
			by '_'. Traversal attempts are rejected, never repaired.
		`),
		example: heredoc.Doc(`
			pathguard sanitize 'uploads/my file?.txt'
			pathguard sanitize --capacity 64 "$UNTRUSTED"
		`),
	},
	{
		op:    policy.OpValidate,
		short: "Accept a path only if it is already safe",
		long: heredoc.Doc(`
			Accept the path unchanged or reject it. Unlike sanitize, no character
			is ever replaced: any character sanitize would rewrite is a rejection.
		`),
		example: heredoc.Doc(`
			pathguard validate /srv/data/report.pdf
			pathguard validate --base-dir /srv/data /srv/data/report.pdf
		`),
	},
	{
		op:    policy.OpFilename,
		short: "Sanitize a single filename",
		long: heredoc.Doc(`
			Return a safe single path segment. Inputs containing a separator are
			rejected; disallowed characters are replaced by '_'.
		`),
		example: heredoc.Doc(`
			pathguard filename 'quarterly report (final).pdf'
			pathguard filename - < name.txt
		`),
	},
	{
		op:    policy.OpProject,
		short: "Validate a project identifier",
		long: heredoc.Doc(`
			Return the project name made of letters, digits, '-' and '_'. Other
			characters are removed; names that look like paths are rejected.
		`),
		example: heredoc.Doc(`
			pathguard project 'My Project!'
			pathguard project my-service_v2
		`),
	},
}

// checkResult is the --json output of a single-input command.
type checkResult struct {
	Op     string `json:"op"`
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func newCheckCommand(spec checkSpec) *cobra.Command {
	var (
		jsonOut  bool
		capacity int
	)

	cmd := &cobra.Command{
		Use:     string(spec.op) + " <input|->",
		Short:   spec.short,
		Long:    spec.long + "\nUse '-' to read the input from standard input.",
		Example: spec.example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			out, verr := s.engine.Run(spec.op, input, capacity)
			if verr != nil {
				s.recorder.Record(string(spec.op), "cli", input, verr)
			}

			res := newCheckResult(spec.op, input, out, verr)
			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printCheckResult(cmd.OutOrStdout(), spec.op, res)
			}
			return verr
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	if spec.op != policy.OpDetect {
		cmd.Flags().IntVar(&capacity, "capacity", validation.Unlimited, "Maximum output length in bytes (-1 = unlimited)")
	}

	return cmd
}

// NewNormalizeCommand creates the normalize command
func NewNormalizeCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "normalize <input|->",
		Short: "Show the decoded comparison form of a path",
		Long: heredoc.Doc(`
			Show the canonical form the detector analyzes: percent and %u escapes
			decoded, overlong UTF-8 and look-alike characters mapped to ASCII,
			separators unified and dot segments removed. Parent segments are kept.

			Use '-' to read the input from standard input.
		`),
		Example: heredoc.Doc(`
			pathguard normalize '%252e%252e%252fetc'
			pathguard normalize --json 'C:\Users\..\Windows'
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			form, err := s.engine.Validator().Inspect(input)
			if err != nil {
				s.recorder.Record("normalize", "cli", input, err)
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), form)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), form.Canonical)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the parsed form as JSON")
	return cmd
}

func newCheckResult(op policy.Op, input, out string, err error) checkResult {
	res := checkResult{Op: string(op), Input: input, Output: out, Kind: validation.KindSafe.String()}
	if err == nil {
		return res
	}
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		res.Kind = ve.Kind.String()
		res.Reason = string(ve.Reason)
		res.Detail = ve.Detail
		return res
	}
	res.Kind = validation.KindInvalid.String()
	res.Reason = string(validation.ReasonInternalError)
	res.Detail = err.Error()
	return res
}

// printCheckResult writes the text form of a result. Rejections other than
// detect findings are reported through the returned error only.
func printCheckResult(w io.Writer, op policy.Op, res checkResult) {
	switch {
	case op == policy.OpDetect:
		verdict := res.Kind
		if res.Reason != "" {
			verdict = fmt.Sprintf("%s (%s)", res.Kind, res.Reason)
		}
		_, _ = fmt.Fprintln(w, colorizeKind(res.Kind, verdict))
	case res.Kind == validation.KindSafe.String():
		_, _ = fmt.Fprintln(w, res.Output)
	}
}

// maxStdinInput is the largest policy input limit plus a line ending.
const maxStdinInput = 1<<20 + 2

// readInput returns arg, or standard input without its trailing newline when
// arg is "-".
func readInput(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxStdinInput))
	if err != nil {
		return "", fmt.Errorf("failed to read standard input: %w", err)
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
