// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the crossmodel CLI.
//
// Every command builds a modelserver.Server over the workspace folders it is
// given, so the CLI exercises the same registry, resolver and build pipeline
// an editor integration would.
package cmd
