package cli

import (
	"errors"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/storage"
)

// NewPolicyCommand creates the policy command
func NewPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage validation policies",
		Long: heredoc.Doc(`
			A policy configures the engine (platform, base directory, limits,
			reserved names) and lists deny rules written as expr-lang boolean
			expressions over the normalized input:

			  canonical  normalized, case-folded path ("a/b/../c")
			  raw        the input as given
			  segments   non-empty segments of canonical
			  root       none, unix, drive, unc or device
			  volume     "C:", "//host" or ""
			  platform   any, unix or windows
			  op         detect, sanitize, validate, filename or project

			Named policies live in the policies directory of the configuration
			directory. Select one with --policy NAME, or pass a file path.
		`),
	}

	cmd.AddCommand(newPolicyInitCommand())
	cmd.AddCommand(newPolicyCheckCommand())
	cmd.AddCommand(newPolicyShowCommand())
	cmd.AddCommand(newPolicyListCommand())
	return cmd
}

func newPolicyInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a named policy from the built-in default",
		Example: heredoc.Doc(`
			pathguard policy init uploads
			pathguard --policy uploads sanitize 'a/b.txt'
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			repo, err := storage.NewFilesystemPolicyRepository(GetConfigDir())
			if err != nil {
				return err
			}

			if !force {
				if _, err := repo.Load(name); err == nil {
					return fmt.Errorf("policy %s already exists (use --force to overwrite)", name)
				} else if !errors.Is(err, storage.ErrPolicyNotFound) {
					return err
				}
			}

			p := policy.Default()
			p.Name = name
			p.Description = fmt.Sprintf("Policy %s, created from the built-in default.", name)
			if err := repo.Save(p); err != nil {
				return fmt.Errorf("failed to save policy: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Created policy %s\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing policy")
	return cmd
}

func newPolicyCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <name|file>",
		Short: "Validate a policy and compile its rules",
		Example: heredoc.Doc(`
			pathguard policy check ./uploads.yaml
			pathguard policy check uploads
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			p, err := resolvePolicy(args[0])
			if err != nil {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "✗ Failed to load policy")
				return err
			}
			_, _ = fmt.Fprintln(w, "✓ Policy document is valid")

			if _, err := policy.NewEngine(p); err != nil {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "✗ Policy cannot be applied")
				return err
			}
			_, _ = fmt.Fprintf(w, "✓ %d rules compiled\n", len(p.Rules))
			return nil
		},
	}
	return cmd
}

func newPolicyShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [name|file]",
		Short: "Print a policy as YAML",
		Long:  "Print a policy as YAML. Without an argument, the active policy is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := GlobalConfig.Policy
			if len(args) == 1 {
				ref = args[0]
			}

			p, err := resolvePolicy(ref)
			if err != nil {
				return err
			}
			data, err := policy.Marshal(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	return cmd
}

func newPolicyListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := storage.NewFilesystemPolicyRepository(GetConfigDir())
			if err != nil {
				return err
			}
			names, err := repo.List()
			if err != nil {
				return err
			}

			active := GlobalConfig.Policy
			if active == "" {
				active = "default"
			}

			w := cmd.OutOrStdout()
			hasDefault := false
			for _, name := range names {
				if name == "default" {
					hasDefault = true
				}
				_, _ = fmt.Fprintln(w, policyListLine(name, active, ""))
			}
			if !hasDefault {
				_, _ = fmt.Fprintln(w, policyListLine("default", active, " (built-in)"))
			}
			return nil
		},
	}
	return cmd
}

func policyListLine(name, active, suffix string) string {
	if name == active {
		return colorize(colorCyan, "* "+name+suffix)
	}
	return "  " + name + suffix
}
