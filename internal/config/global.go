// SPDX-License-Identifier: MPL-2.0

package config

// userDirOverride stands in for the per-user crossmodel directory returned by
// ConfigDir, keeping tests away from the real ~/.config/crossmodel.
var userDirOverride string

// Reset restores the platform config directory.
func Reset() {
	userDirOverride = ""
}

// SetConfigDirOverride points ConfigDir, and with it the crossmodel.cue
// lookup, at dir.
func SetConfigDirOverride(dir string) {
	userDirOverride = dir
}
