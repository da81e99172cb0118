package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/pathguard/pkg/storage"
	"github.com/dshills/pathguard/pkg/validation"
)

const (
	// Version is the current version of pathguard
	Version = "1.0.0"

	// ConfigDirEnv overrides the configuration directory.
	ConfigDirEnv = "PATHGUARD_CONFIG_DIR"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitTraversal = 2
)

// Config holds the global configuration for the pathguard CLI
type Config struct {
	ConfigDir string
	Debug     bool
	Policy    string
	Platform  string
	BaseDir   string
	Audit     bool
	NoColor   bool

	Logger *log.Logger
}

// FileConfig is the on-disk config.yaml. Flags override it.
type FileConfig struct {
	Version  string `yaml:"version"`
	Policy   string `yaml:"policy,omitempty"`
	Platform string `yaml:"platform,omitempty"`
	BaseDir  string `yaml:"base_dir,omitempty"`
	Audit    *bool  `yaml:"audit,omitempty"`
}

// GlobalConfig is the shared configuration instance
var GlobalConfig = &Config{}

// NewRootCommand creates the root cobra command for pathguard
func NewRootCommand() *cobra.Command {
	GlobalConfig = &Config{}

	cmd := &cobra.Command{
		Use:   "pathguard",
		Short: "pathguard - path traversal detection and sanitization",
		Long: heredoc.Doc(`
			pathguard checks untrusted path strings, filenames and project names
			before they reach the filesystem.

			Inputs are decoded (percent, double-percent, %u, overlong UTF-8 and
			look-alike characters) before analysis, so encoded traversal attempts
			are caught. Rejections are classified as traversal (exit status 2) or
			invalid (exit status 1) and recorded in the audit log.
		`),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize configuration
			if err := initConfig(cmd); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// Setup logging
			level := log.WarnLevel
			if GlobalConfig.Debug {
				level = log.DebugLevel
			}
			GlobalConfig.Logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
				Level:           level,
				ReportTimestamp: GlobalConfig.Debug,
				Prefix:          "pathguard",
			})
			GlobalConfig.Logger.Debug("configuration loaded", "config_dir", GlobalConfig.ConfigDir)

			return nil
		},
	}

	// Persistent flags (available to all subcommands)
	flags := cmd.PersistentFlags()
	flags.BoolVar(&GlobalConfig.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&GlobalConfig.ConfigDir, "config-dir", "", "Configuration directory (default: ~/.pathguard)")
	flags.StringVar(&GlobalConfig.Policy, "policy", "", "Policy name or policy file (default: from config.yaml, else built-in)")
	flags.StringVar(&GlobalConfig.Platform, "platform", "", "Override the policy platform (any, unix, windows)")
	flags.StringVar(&GlobalConfig.BaseDir, "base-dir", "", "Override the policy base directory")
	flags.BoolVar(&GlobalConfig.Audit, "audit", true, "Record rejected inputs in the audit log")
	flags.BoolVar(&GlobalConfig.NoColor, "no-color", false, "Disable colored output")

	// Add subcommands
	for _, op := range checkCommands {
		cmd.AddCommand(newCheckCommand(op))
	}
	cmd.AddCommand(NewNormalizeCommand())
	cmd.AddCommand(NewBatchCommand())
	cmd.AddCommand(NewAuditCommand())
	cmd.AddCommand(NewPolicyCommand())

	return cmd
}

// initConfig initializes the pathguard configuration directory and files, and
// applies config.yaml settings that were not set by flags.
func initConfig(cmd *cobra.Command) error {
	// Environment variable always takes priority (for testing)
	if envDir := os.Getenv(ConfigDirEnv); envDir != "" {
		GlobalConfig.ConfigDir = envDir
	} else if GlobalConfig.ConfigDir == "" {
		GlobalConfig.ConfigDir = defaultConfigDir()
	}
	dir, err := homedir.Expand(GlobalConfig.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to expand config directory: %w", err)
	}
	GlobalConfig.ConfigDir = dir

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Join(GlobalConfig.ConfigDir, "policies"), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fc, err := loadFileConfig(GetConfigPath())
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("policy") && fc.Policy != "" {
		GlobalConfig.Policy = fc.Policy
	}
	if !flags.Changed("platform") && fc.Platform != "" {
		GlobalConfig.Platform = fc.Platform
	}
	if !flags.Changed("base-dir") && fc.BaseDir != "" {
		GlobalConfig.BaseDir = fc.BaseDir
	}
	if !flags.Changed("audit") && fc.Audit != nil {
		GlobalConfig.Audit = *fc.Audit
	}
	return nil
}

// loadFileConfig reads config.yaml, creating it with defaults when missing.
func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// Create default config
		fc := &FileConfig{Version: "1.0"}
		data, err := yaml.Marshal(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return fc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &fc, nil
}

func defaultConfigDir() string {
	home, err := homedir.Dir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".pathguard"
	}
	return filepath.Join(home, ".pathguard")
}

// GetConfigDir returns the configuration directory path
// Priority order: 1) PATHGUARD_CONFIG_DIR env var, 2) --config-dir, 3) ~/.pathguard
func GetConfigDir() string {
	if envDir := os.Getenv(ConfigDirEnv); envDir != "" {
		return envDir
	}
	if GlobalConfig.ConfigDir == "" {
		return defaultConfigDir()
	}
	return GlobalConfig.ConfigDir
}

// GetConfigPath returns the path to config.yaml
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// GetAuditDBPath returns the path to the audit database
func GetAuditDBPath() string {
	return filepath.Join(GetConfigDir(), storage.DefaultDatabaseName)
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, validation.ErrTraversal):
		return ExitTraversal
	default:
		return ExitFailure
	}
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return ExitCode(err)
}
