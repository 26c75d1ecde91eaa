// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/modelserver"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/internal/vfs"

	"github.com/charmbracelet/log"
	"github.com/viant/afs"
)

type (
	// App is the composition root of the CLI. Command handlers receive it
	// and reach configuration, output streams and the model server through
	// it.
	App struct {
		Config config.Provider
		FS     vfs.FileSystem
		stdout io.Writer
		stderr io.Writer

		// Set by the root command before any subcommand runs.
		cfg     *config.Config
		cfgPath string
		verbose bool
		format  string
		folders []string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		FS     vfs.FileSystem
		Stdout io.Writer
		Stderr io.Writer
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.FS == nil {
		deps.FS = vfs.New(afs.New())
	}
	return &App{
		Config: deps.Config,
		FS:     deps.FS,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// loadConfig resolves the configuration once per invocation.
func (a *App) loadConfig(ctx context.Context) error {
	cfg, err := a.Config.Load(ctx, a.loadOptions())
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.cfgPath, WorkDir: a.configWorkDir()}
}

// configWorkDir is the first local workspace folder, where a project
// crossmodel.cue may live.
func (a *App) configWorkDir() string {
	for _, f := range a.folders {
		if !strings.Contains(f, "://") {
			return f
		}
		if uri.Scheme(f) == uri.DefaultScheme {
			return filepath.FromSlash(uri.Path(f))
		}
	}
	return ""
}

// settings returns the loaded configuration, or the defaults before loading.
func (a *App) settings() *config.Config {
	if a.cfg == nil {
		return config.DefaultConfig()
	}
	return a.cfg
}

// outputFormat returns the --output flag value, else the configured format.
func (a *App) outputFormat() config.OutputFormat {
	if a.format != "" {
		return config.OutputFormat(a.format)
	}
	return a.settings().Output.Format
}

func (a *App) logger() *log.Logger {
	level := a.settings().Log.Level
	if a.verbose {
		level = "debug"
	}
	return logging.New(a.stderr, level, "crossmodel")
}

// newServer builds a model server configured from the loaded settings.
func (a *App) newServer() *modelserver.Server {
	cfg := a.settings()
	return modelserver.New(a.FS,
		modelserver.WithLogger(a.logger()),
		modelserver.WithDescriptorFile(cfg.DescriptorFile),
		modelserver.WithExtensions(cfg.DocumentExtensions...),
		modelserver.WithDefaultScheme(cfg.DefaultScheme),
		modelserver.WithIgnore(cfg.Scan.Ignore...),
		modelserver.WithWorkers(cfg.Scan.Workers),
	)
}

// openWorkspace builds a server and initializes it over folders, falling
// back to the --workspace flag and then the working directory.
func (a *App) openWorkspace(ctx context.Context, folders []string) (*modelserver.Server, error) {
	if len(folders) == 0 {
		folders = a.folders
	}
	if len(folders) == 0 {
		folders = []string{"."}
	}
	uris := make([]string, 0, len(folders))
	for _, f := range folders {
		u, err := toURI(f)
		if err != nil {
			return nil, err
		}
		uris = append(uris, u)
	}

	srv := a.newServer()
	if _, err := srv.Initialize(ctx, uris); err != nil {
		srv.Dispose()
		return nil, fmt.Errorf("initialize workspace: %w", err)
	}
	return srv, nil
}

// toURI turns a command-line argument into a document URI. Arguments that
// already carry a scheme are kept; paths are made absolute.
func toURI(arg string) (string, error) {
	if strings.Contains(arg, "://") {
		return uri.Normalize(arg), nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	return uri.FromPath(filepath.ToSlash(abs)), nil
}
