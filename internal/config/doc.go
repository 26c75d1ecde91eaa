// SPDX-License-Identifier: MPL-2.0

// Package config loads CrossModel settings using Viper with CUE as the file format.
//
// Settings come from built-in defaults, then crossmodel.cue (searched in the
// path given with --config, the user config directory, then the working
// directory), then CROSSMODEL_* environment variables. The file is validated
// against the embedded #Config schema before it is merged.
package config
