// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

// Output formats accepted by the CLI.
const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
	FormatTOML OutputFormat = "toml"
)

var (
	// ErrInvalidOutputFormat is returned when an OutputFormat is not recognized.
	ErrInvalidOutputFormat = errors.New("invalid output format")
	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// OutputFormat selects how CLI results are printed.
	OutputFormat string

	// InvalidOutputFormatError wraps ErrInvalidOutputFormat.
	InvalidOutputFormatError struct {
		Value OutputFormat
	}

	// InvalidConfigError collects every field-level problem of a Config.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// DescriptorFile is the file name that marks a data model folder.
		DescriptorFile string `json:"descriptor_file" yaml:"descriptor_file" toml:"descriptor_file" mapstructure:"descriptor_file"`
		// DocumentExtensions lists the suffixes of tracked documents.
		DocumentExtensions []string `json:"document_extensions" yaml:"document_extensions" toml:"document_extensions" mapstructure:"document_extensions"`
		// DefaultScheme is retried when an in-memory document matches no package.
		DefaultScheme string       `json:"default_scheme" yaml:"default_scheme" toml:"default_scheme" mapstructure:"default_scheme"`
		Scan          ScanConfig   `json:"scan" yaml:"scan" toml:"scan" mapstructure:"scan"`
		Watch         WatchConfig  `json:"watch" yaml:"watch" toml:"watch" mapstructure:"watch"`
		Log           LogConfig    `json:"log" yaml:"log" toml:"log" mapstructure:"log"`
		Output        OutputConfig `json:"output" yaml:"output" toml:"output" mapstructure:"output"`
	}

	// ScanConfig controls the initial descriptor scan.
	ScanConfig struct {
		// Ignore holds doublestar patterns relative to each workspace folder.
		Ignore  []string `json:"ignore" yaml:"ignore" toml:"ignore" mapstructure:"ignore"`
		Workers int      `json:"workers" yaml:"workers" toml:"workers" mapstructure:"workers"`
	}

	// WatchConfig controls `crossmodel watch`.
	WatchConfig struct {
		Debounce time.Duration `json:"debounce" yaml:"debounce" toml:"debounce" mapstructure:"debounce"`
	}

	// LogConfig controls logging.
	LogConfig struct {
		Level string `json:"level" yaml:"level" toml:"level" mapstructure:"level"`
	}

	// OutputConfig controls CLI output.
	OutputConfig struct {
		Format OutputFormat `json:"format" yaml:"format" toml:"format" mapstructure:"format"`
	}
)

func (e *InvalidOutputFormatError) Error() string {
	return fmt.Sprintf("invalid output format %q (valid: text, json, yaml, toml)", e.Value)
}

func (e *InvalidOutputFormatError) Unwrap() error { return ErrInvalidOutputFormat }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate returns an error if f is not a known output format.
func (f OutputFormat) Validate() error {
	switch f {
	case FormatText, FormatJSON, FormatYAML, FormatTOML:
		return nil
	default:
		return &InvalidOutputFormatError{Value: f}
	}
}

// String returns the format name.
func (f OutputFormat) String() string { return string(f) }

// Validate checks the constraints the CUE schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DescriptorFile) == "" || strings.ContainsAny(c.DescriptorFile, `/\`) {
		errs = append(errs, fmt.Errorf("descriptor_file: %q must be a plain file name", c.DescriptorFile))
	}
	for _, ext := range c.DocumentExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("document_extensions: %q must start with a dot", ext))
		}
	}
	for _, pat := range c.Scan.Ignore {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, fmt.Errorf("scan.ignore: malformed pattern %q", pat))
		}
	}
	if c.Scan.Workers < 1 {
		errs = append(errs, fmt.Errorf("scan.workers: must be at least 1, got %d", c.Scan.Workers))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce: must not be negative, got %s", c.Watch.Debounce))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := c.Output.Format.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output.format: %w", err))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DescriptorFile:     "datamodel.cm",
		DocumentExtensions: []string{".cm"},
		DefaultScheme:      "file",
		Scan: ScanConfig{
			Ignore:  []string{"**/node_modules/**", "**/.git/**"},
			Workers: 4,
		},
		Watch:  WatchConfig{Debounce: 300 * time.Millisecond},
		Log:    LogConfig{Level: "info"},
		Output: OutputConfig{Format: FormatText},
	}
}
