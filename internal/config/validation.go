package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if err := c.validateRecorder(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateOutput(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateLogging(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateReport(); err != nil {
		errors = append(errors, err...)
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateRecorder() ValidationErrors {
	var errors ValidationErrors

	if c.Recorder.EventBuffer <= 0 {
		errors = append(errors, ValidationError{
			Field:   "recorder.event_buffer",
			Message: "event_buffer must be positive",
		})
	}

	if c.Recorder.AcceptWaitSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "recorder.accept_wait_seconds",
			Message: "accept_wait_seconds cannot be negative",
		})
	}

	if c.Recorder.StopGraceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "recorder.stop_grace_seconds",
			Message: "stop_grace_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateOutput() ValidationErrors {
	var errors ValidationErrors

	if c.Output.Path != "" && strings.HasSuffix(c.Output.Path, "/") {
		errors = append(errors, ValidationError{
			Field:   "output.path",
			Message: "path must name a file, not a directory",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}

func (c *Config) validateReport() ValidationErrors {
	var errors ValidationErrors

	if c.Report.Limit < 0 {
		errors = append(errors, ValidationError{
			Field:   "report.limit",
			Message: "limit cannot be negative",
		})
	}

	return errors
}
