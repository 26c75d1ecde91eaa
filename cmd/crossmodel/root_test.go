// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"path/filepath"
	"testing"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v0.4.0"
		Commit = "9f2c1de"
		BuildDate = "2026-03-02T08:30:00Z"

		got := getVersionString()
		want := "v0.4.0 (commit: 9f2c1de, built: 2026-03-02T08:30:00Z)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "dev"

		if got, want := getVersionString(), "dev (built from source)"; got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})
}

func TestConfigWorkDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		folders []string
		want    string
	}{
		{"none", nil, ""},
		{"relative path", []string{"models"}, "models"},
		{"file uri", []string{"file:///ws/models"}, filepath.FromSlash("/ws/models")},
		{"skips remote folders", []string{"mem://localhost/ws", "/ws/local"}, "/ws/local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := NewApp(Dependencies{})
			app.folders = tt.folders
			if got := app.configWorkDir(); got != tt.want {
				t.Errorf("configWorkDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	t.Parallel()

	err := problemsFound(3)
	if err.Code != ExitProblems || err.Error() != "check found 3 error(s)" {
		t.Errorf("problemsFound(3) = %d %q", err.Code, err.Error())
	}
	if got := (&ExitError{Code: 2}).Error(); got != "crossmodel: exit status 2" {
		t.Errorf("Error() without cause = %q", got)
	}
}
