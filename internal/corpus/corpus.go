// Package corpus loads the payloads a run samples from.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format names a corpus file encoding.
type Format string

const (
	FormatLines Format = "lines"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatLines, FormatJSON, FormatYAML, FormatCSV:
		return true
	default:
		return false
	}
}

// ErrEmpty is returned when a source yields no payloads.
var ErrEmpty = errors.New("corpus is empty")

// Source describes where payloads come from. Inline payloads come first,
// followed by those read from File.
type Source struct {
	Inline []string
	File   string
	Format Format // inferred from the File extension when empty
	Path   string // gjson path into a JSON corpus
	Column string // CSV column name or zero-based index
}

// Load returns every payload described by src, in order.
func Load(src Source) ([]string, error) {
	payloads := append([]string(nil), src.Inline...)
	if strings.TrimSpace(src.File) != "" {
		fromFile, err := LoadFile(src.File, src.Format, src.Path, src.Column)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, fromFile...)
	}
	if len(payloads) == 0 {
		return nil, ErrEmpty
	}
	return payloads, nil
}

// LoadFile reads payloads from path. An empty format is inferred with DetectFormat.
func LoadFile(path string, format Format, jsonPath, column string) ([]string, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("corpus format %q is not supported", format)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}

	var payloads []string
	switch format {
	case FormatJSON:
		payloads, err = parseJSON(data, jsonPath)
	case FormatYAML:
		payloads, err = parseYAML(data)
	case FormatCSV:
		payloads, err = parseCSV(data, column)
	default:
		payloads = parseLines(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s corpus %s: %w", format, filepath.Base(path), err)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmpty)
	}
	return payloads, nil
}

// DetectFormat infers a format from the file extension, defaulting to lines.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".csv":
		return FormatCSV
	default:
		return FormatLines
	}
}
