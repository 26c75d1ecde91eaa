// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
)

// maxConfigSize bounds the config file read into memory.
const maxConfigSize = 1 << 20

// formatCUEError flattens a CUE error into "<file>: <path>: <message>" lines.
// Paths use dotted notation with bracketed list indices, e.g.
// "scan.ignore[2]".
func formatCUEError(err error, file string) error {
	if err == nil {
		return nil
	}
	all := errors.Errors(err)
	if len(all) == 0 {
		return fmt.Errorf("%s: %w", file, err)
	}

	lines := make([]string, 0, len(all))
	for _, e := range all {
		path := fieldPath(errors.Path(e))
		msg := e.Error()
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		if path != "" {
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", file, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", file, strings.Join(lines, "\n  "))
}

func fieldPath(parts []string) string {
	var sb strings.Builder
	for i, p := range parts {
		switch {
		case i > 0 && isIndex(p):
			sb.WriteString("[" + p + "]")
		case i > 0:
			sb.WriteString("." + p)
		default:
			sb.WriteString(p)
		}
	}
	return sb.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
