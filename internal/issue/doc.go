// SPDX-License-Identifier: MPL-2.0

// Package issue holds user-facing error guidance: errors that carry the failed
// operation and remediation hints, and a catalog of Markdown explanations for
// every diagnostic code the CLI can report.
package issue
