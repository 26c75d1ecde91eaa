// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions selects where crossmodel looks for crossmodel.cue. Zero values
// select the defaults.
type LoadOptions struct {
	// ConfigFilePath is the --config flag. When set, no other location is
	// tried and the file must exist.
	ConfigFilePath string
	// ConfigDirPath replaces the user config directory.
	ConfigDirPath string
	// WorkDir is the workspace root, searched after the user config
	// directory. Empty means the process working directory.
	WorkDir string
}

// Provider resolves the settings of one crossmodel invocation. Commands
// receive it through the App so tests can pin the configuration.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type cueProvider struct{}

// NewProvider returns the Provider that reads crossmodel.cue files, with
// CROSSMODEL_* environment variables layered on top.
func NewProvider() Provider {
	return cueProvider{}
}

// Load returns the effective configuration and drops the source path.
func (cueProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := Load(ctx, opts)
	return cfg, err
}
