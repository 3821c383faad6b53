// Package featureio reads feature tables and annotation documents for the
// enrichment runner.
package featureio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format names an input layout.
type Format string

// Supported input formats.
const (
	FormatTSV    Format = "tsv"
	FormatJSONL  Format = "jsonl"
	FormatSets   Format = "sets"
	FormatCounts Format = "counts"
)

// ErrUnknownFormat is returned for an unrecognized format name.
var ErrUnknownFormat = errors.New("unknown input format")

// Formats lists the supported formats in help-text order.
func Formats() []Format {
	return []Format{FormatTSV, FormatJSONL, FormatSets, FormatCounts}
}

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))

	switch f {
	case FormatTSV, FormatJSONL, FormatSets, FormatCounts:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Streaming reports whether the format is read record by record with a Scanner.
func (f Format) Streaming() bool {
	return f == FormatTSV || f == FormatJSONL
}

// DetectFormat guesses the format from a file name, ignoring a compression
// suffix. Unknown names default to tsv.
func DetectFormat(path string) Format {
	base := strings.ToLower(filepath.Base(path))

	if codec := compressionFor(base); codec != compressionNone {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	switch filepath.Ext(base) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".json":
		if strings.Contains(base, "count") {
			return FormatCounts
		}

		return FormatSets
	default:
		return FormatTSV
	}
}
