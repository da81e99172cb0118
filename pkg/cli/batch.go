package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/pathguard/pkg/batch"
	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/validation"
)

// BatchFlags holds the flags for the batch command
type BatchFlags struct {
	InputField string
	OpField    string
	Op         string
	Plain      bool
	Workers    int
	Capacity   int
	Strict     bool
}

// NewBatchCommand creates the batch command
func NewBatchCommand() *cobra.Command {
	flags := &BatchFlags{}

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Evaluate many inputs from a JSON Lines file",
		Long: heredoc.Doc(`
			Evaluate every line of a JSON Lines file (standard input when no file
			is given) and write one JSON result per line, in input order.

			Each line is an object; --input-field and --op-field are gjson paths
			selecting the input string and the operation (detect, sanitize,
			validate, filename, project). Lines without an operation use --op.
			With --plain every line is a raw input.

			Malformed lines are reported in the output and do not stop the batch.
			With --strict the exit status reflects the worst outcome: 2 if any
			traversal was found, 1 if any input was invalid or malformed.
		`),
		Example: heredoc.Doc(`
			pathguard batch uploads.jsonl
			pathguard batch --input-field request.path --op-field request.check requests.jsonl
			find . -type f | pathguard batch --plain --op validate --strict
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.InputField, "input-field", batch.DefaultInputField, "gjson path of the input string")
	cmd.Flags().StringVar(&flags.OpField, "op-field", batch.DefaultOpField, "gjson path of the operation name")
	cmd.Flags().StringVar(&flags.Op, "op", string(policy.OpSanitize), "Operation for lines that name none")
	cmd.Flags().BoolVar(&flags.Plain, "plain", false, "Treat each line as a raw input")
	cmd.Flags().IntVar(&flags.Workers, "workers", 0, "Concurrent evaluations (0 = number of CPUs)")
	cmd.Flags().IntVar(&flags.Capacity, "capacity", validation.Unlimited, "Maximum output length in bytes (-1 = unlimited)")
	cmd.Flags().BoolVar(&flags.Strict, "strict", false, "Exit non-zero when any input is rejected")

	return cmd
}

func runBatch(cmd *cobra.Command, args []string, flags *BatchFlags) error {
	op, err := policy.ParseOp(flags.Op)
	if err != nil {
		return err
	}

	var (
		in     io.Reader = cmd.InOrStdin()
		source           = "stdin"
	)
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open batch input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in, source = f, args[0]
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ev, err := batch.NewEvaluator(s.engine, s.recorder, batch.Options{
		InputField: flags.InputField,
		OpField:    flags.OpField,
		DefaultOp:  op,
		Plain:      flags.Plain,
		Workers:    flags.Workers,
		Capacity:   flags.Capacity,
		Source:     source,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := ev.Run(ctx, in, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	GlobalConfig.Logger.Info("batch complete",
		"source", source,
		"total", summary.Total,
		"safe", summary.Safe,
		"traversal", summary.Traversal,
		"invalid", summary.Invalid,
		"errors", summary.Errors)

	if !flags.Strict {
		return nil
	}
	switch {
	case summary.Traversal > 0:
		return fmt.Errorf("%d of %d inputs: %w", summary.Traversal, summary.Total, validation.ErrTraversal)
	case summary.Invalid > 0 || summary.Errors > 0:
		return fmt.Errorf("%d of %d inputs: %w", summary.Invalid+summary.Errors, summary.Total, validation.ErrInvalid)
	}
	return nil
}
