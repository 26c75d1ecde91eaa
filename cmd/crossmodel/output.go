// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/crossmodel/crossmodel/internal/config"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// writeStructured encodes v in a machine-readable format. TOML has no
// top-level arrays, so callers pass a struct or map.
func writeStructured(w io.Writer, format config.OutputFormat, v any) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case config.FormatTOML:
		return toml.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("%w: %q is not a structured format", config.ErrInvalidOutputFormat, format)
	}
}
