// SPDX-License-Identifier: MPL-2.0

package discovery

const (
	// SeverityWarning indicates a recoverable discovery warning.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal discovery error diagnostic.
	SeverityError Severity = "error"
)

// Diagnostic codes.
const (
	CodeFolderUnreadable    = "folder_unreadable"
	CodeDirectoryUnreadable = "directory_unreadable"
)

type (
	// Severity represents discovery diagnostic severity.
	Severity string

	// Diagnostic represents a structured discovery diagnostic that is returned
	// to callers (rather than written to stderr) for consistent rendering policy.
	Diagnostic struct {
		// Severity is the diagnostic level (warning or error).
		Severity Severity
		// Code is a machine-readable identifier (e.g., "directory_unreadable").
		Code string
		// Message is the human-readable description.
		Message string
		// URI is the location associated with this diagnostic (optional).
		URI string
		// Cause is the underlying error (optional, for programmatic inspection).
		Cause error
	}

	// Result bundles the files found by a scan with the diagnostics produced
	// while walking. Files are grouped by folder, in the order the folders
	// were given, and in walk order within each folder.
	Result struct {
		Files       []string
		Diagnostics []Diagnostic
	}
)
