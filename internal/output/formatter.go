package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how a command prints its result: an aligned table for an
// operator at a terminal, or json/yaml carrying the same field names the hub
// sends to dashboard clients.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// FlagUsage is the help text of every command's -o/--output flag.
const FlagUsage = "Output format (table|json|yaml)"

var structuredWriters = map[Format]func(io.Writer, any) error{
	FormatJSON: writeJSON,
	FormatYAML: writeYAML,
}

func ParseFormat(v string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(v)))
	if format == "" || format == FormatTable {
		return FormatTable, nil
	}
	if _, ok := structuredWriters[format]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid output format %q (expected table, json, or yaml)", v)
}

// Render writes payload as json or yaml, or calls table and writes its rows
// when format is FormatTable.
func Render(w io.Writer, format Format, payload any, table func() Table) error {
	if format == FormatTable {
		return table().Write(w)
	}
	return WriteStructured(w, format, payload)
}

func WriteStructured(w io.Writer, format Format, payload any) error {
	write, ok := structuredWriters[format]
	if !ok {
		return fmt.Errorf("structured output is only supported for json/yaml, got %q", format)
	}
	return write(w, payload)
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, payload any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode yaml output: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush yaml output: %w", err)
	}
	return nil
}
