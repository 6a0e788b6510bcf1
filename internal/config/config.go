// Package config provides configuration structures and loading for symtrace.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Recorder RecorderConfig `yaml:"recorder" mapstructure:"recorder"`
	Capture  CaptureConfig  `yaml:"capture" mapstructure:"capture"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Journal  JournalConfig  `yaml:"journal" mapstructure:"journal"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
}

// RecorderConfig represents recording session settings.
type RecorderConfig struct {
	SocketDir         string `yaml:"socket_dir" mapstructure:"socket_dir"`                   // directory for session sockets, temp dir if empty
	EventBuffer       int    `yaml:"event_buffer" mapstructure:"event_buffer"`               // capacity of the in-flight event channel
	AcceptWaitSeconds int    `yaml:"accept_wait_seconds" mapstructure:"accept_wait_seconds"` // max wait for the target to attach, 0 waits forever
	StopGraceSeconds  int    `yaml:"stop_grace_seconds" mapstructure:"stop_grace_seconds"`   // SIGTERM grace before a launched target is killed
}

// AcceptWait returns the attach wait as a duration.
func (rc RecorderConfig) AcceptWait() time.Duration {
	return time.Duration(rc.AcceptWaitSeconds) * time.Second
}

// StopGrace returns the termination grace as a duration.
func (rc RecorderConfig) StopGrace() time.Duration {
	return time.Duration(rc.StopGraceSeconds) * time.Second
}

// CaptureConfig represents raw event capture settings.
type CaptureConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // NDJSON capture path, .gz compresses; empty disables capture
}

// OutputConfig represents descriptor emission settings.
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`     // default output path, the -o flag overrides
	Verify bool   `yaml:"verify" mapstructure:"verify"` // re-parse the staged document before rename
}

// JournalConfig represents session journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"` // sqlite file, ~/.symtrace/journal.db if empty
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// ReportConfig represents report rendering settings.
type ReportConfig struct {
	Color bool `yaml:"color" mapstructure:"color"`
	Limit int  `yaml:"limit" mapstructure:"limit"` // max symbols rendered, 0 shows all
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Recorder: RecorderConfig{
			EventBuffer:       1024,
			AcceptWaitSeconds: 30,
			StopGraceSeconds:  5,
		},
		Capture: CaptureConfig{},
		Output: OutputConfig{
			Verify: true,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Report: ReportConfig{
			Color: true,
		},
	}
}

// JournalPath resolves the journal location, defaulting to
// ~/.symtrace/journal.db when unset.
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".symtrace", "journal.db"), nil
}
