package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"symtrace/internal/config"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// defaultConfigFile is optional: when absent, built-in defaults apply.
// An explicitly passed --config path must exist.
const defaultConfigFile = "symtrace.yaml"

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	eventBuffer int
	noVerify    bool
	noJournal   bool
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "symtrace",
	Short: "Runtime Symbol Access Tracer",
	Long: `A CLI tool for recording the runtime symbol accesses of a target
process and distilling them into a canonical descriptor document.

Features:
  - Live recording over a local socket with graceful stop semantics
  - Order-independent normalization into a deduplicated descriptor set
  - Pure merging with previously recorded documents
  - Canonical, diff-friendly output written atomically
  - Raw event captures for offline replay
  - Local session journal with history listing`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile,
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Recording overrides
	rootCmd.PersistentFlags().IntVar(&eventBuffer, "event-buffer", 0,
		"Override event channel capacity")

	// Safety and rendering overrides
	rootCmd.PersistentFlags().BoolVar(&noVerify, "no-verify", false,
		"Skip re-parsing the emitted document before rename")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored report output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	EventBuffer int
	NoVerify    bool
	NoJournal   bool
	NoColor     bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		EventBuffer: eventBuffer,
		NoVerify:    noVerify,
		NoJournal:   noJournal,
		NoColor:     noColor,
	}
}

// loadConfig resolves the effective configuration: file values when the
// config file exists, built-in defaults when the default file is absent,
// CLI overrides on top, validated.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if cfgFile == defaultConfigFile {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		}
	}
	if cfg == nil {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.EventBuffer, overrides.NoVerify,
		overrides.NoJournal, overrides.NoColor)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
