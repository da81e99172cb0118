package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	domainaudit "github.com/dshills/pathguard/pkg/domain/audit"
	"github.com/dshills/pathguard/pkg/validation"
)

// AuditListFlags holds the flags for the audit list command
type AuditListFlags struct {
	Limit  int
	Offset int
	Kind   string
	Reason string
	Op     string
	Since  string
	JSON   bool
}

// NewAuditCommand creates the audit command
func NewAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and maintain the rejection audit log",
		Long: heredoc.Doc(`
			Every rejected input is recorded in the audit log (audit.db in the
			configuration directory) unless --audit=false is given.
		`),
	}

	cmd.AddCommand(newAuditListCommand())
	cmd.AddCommand(newAuditStatsCommand())
	cmd.AddCommand(newAuditPruneCommand())
	return cmd
}

func newAuditListCommand() *cobra.Command {
	flags := &AuditListFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded rejections, most recent first",
		Example: heredoc.Doc(`
			pathguard audit list --since 24h
			pathguard audit list --kind traversal --limit 50
			pathguard audit list --reason policy_denied --json
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditList(cmd, flags)
		},
	}

	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "Maximum number of records to display")
	cmd.Flags().IntVar(&flags.Offset, "offset", 0, "Number of records to skip")
	cmd.Flags().StringVar(&flags.Kind, "kind", "", "Filter by kind (traversal, invalid)")
	cmd.Flags().StringVar(&flags.Reason, "reason", "", "Filter by reason (e.g. parent_reference)")
	cmd.Flags().StringVar(&flags.Op, "op", "", "Filter by operation")
	cmd.Flags().StringVar(&flags.Since, "since", "", "Filter by date (e.g., 7d, 24h, 2025-01-05)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output records as JSON")
	return cmd
}

func runAuditList(cmd *cobra.Command, flags *AuditListFlags) error {
	options := domainaudit.ListOptions{
		Limit:  flags.Limit,
		Offset: flags.Offset,
	}

	if flags.Kind != "" {
		if flags.Kind != validation.KindTraversal.String() && flags.Kind != validation.KindInvalid.String() {
			return fmt.Errorf("invalid kind: %s (valid: traversal, invalid)", flags.Kind)
		}
		options.Kind = &flags.Kind
	}
	if flags.Reason != "" {
		options.Reason = &flags.Reason
	}
	if flags.Op != "" {
		options.Operation = &flags.Op
	}
	if flags.Since != "" {
		since, err := parseSinceFlag(flags.Since)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		options.Since = &since
	}

	s, err := openAuditSession()
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.recorder.List(options)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	w := cmd.OutOrStdout()
	if flags.JSON {
		return writeJSON(w, result.Records)
	}

	if len(result.Records) == 0 {
		_, _ = fmt.Fprintln(w, "No rejections recorded.")
		return nil
	}

	printRecordsTable(w, result.Records)

	// Show pagination info
	if result.TotalCount > len(result.Records) {
		showing := flags.Offset + len(result.Records)
		_, _ = fmt.Fprintf(w, "\nShowing %d-%d of %d total records\n", flags.Offset+1, showing, result.TotalCount)
	}
	return nil
}

// printRecordsTable displays records in a formatted table
func printRecordsTable(w io.Writer, records []*domainaudit.Record) {
	_, _ = fmt.Fprintf(w, "%-17s %-9s %-10s %-20s %s\n", "Time", "Op", "Kind", "Reason", "Input")
	_, _ = fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, rec := range records {
		input := truncateString(printable(rec.Input), 40)
		if rec.Truncated() {
			input += fmt.Sprintf(" (%d bytes)", rec.InputLength)
		}
		kind := fmt.Sprintf("%-10s", rec.Kind)
		_, _ = fmt.Fprintf(w, "%-17s %-9s %s %-20s %s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.Operation,
			colorizeKind(rec.Kind, kind),
			rec.Reason,
			input)
	}
}

func newAuditStatsCommand() *cobra.Command {
	var (
		sinceStr string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count recorded rejections by kind and reason",
		Example: heredoc.Doc(`
			pathguard audit stats
			pathguard audit stats --since 7d --json
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openAuditSession()
			if err != nil {
				return err
			}
			defer s.Close()

			var counts []domainaudit.ReasonCount
			if sinceStr != "" {
				since, err := parseSinceFlag(sinceStr)
				if err != nil {
					return fmt.Errorf("invalid --since value: %w", err)
				}
				counts, err = s.recorder.Stats(&since)
				if err != nil {
					return err
				}
			} else if counts, err = s.recorder.Stats(nil); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(w, counts)
			}
			if len(counts) == 0 {
				_, _ = fmt.Fprintln(w, "No rejections recorded.")
				return nil
			}

			total := 0
			_, _ = fmt.Fprintf(w, "%-10s %-22s %8s\n", "Kind", "Reason", "Count")
			_, _ = fmt.Fprintln(w, strings.Repeat("-", 42))
			for _, c := range counts {
				kind := fmt.Sprintf("%-10s", c.Kind)
				_, _ = fmt.Fprintf(w, "%s %-22s %8d\n", colorizeKind(c.Kind, kind), c.Reason, c.Count)
				total += c.Count
			}
			_, _ = fmt.Fprintln(w, strings.Repeat("-", 42))
			_, _ = fmt.Fprintf(w, "%-33s %8d\n", "Total", total)
			return nil
		},
	}

	cmd.Flags().StringVar(&sinceStr, "since", "", "Only count records since (e.g., 7d, 24h, 2025-01-05)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output counts as JSON")
	return cmd
}

func newAuditPruneCommand() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old records",
		Example: heredoc.Doc(`
			pathguard audit prune --older-than 30d
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, ok, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("invalid --older-than value: %s (use: 30d or 12h)", olderThan)
			}

			s, err := openAuditSession()
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.recorder.Prune(age)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d records older than %s\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "90d", "Delete records older than this age (e.g., 30d, 12h)")
	return cmd
}
