package featureio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/fishex/pkg/enrichment"
	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

// ErrMalformedRecord is returned for a line that is not a valid feature record.
var ErrMalformedRecord = errors.New("malformed record")

const (
	tsvFields     = 5
	maxLineLength = 1 << 20
	headerName    = "name"
	commentPrefix = "#"
)

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithSource sets the name used in error positions. Defaults to "input".
func WithSource(name string) ScannerOption {
	return func(s *Scanner) {
		s.source = name
	}
}

// Scanner streams feature records from a tsv or jsonl reader.
//
// tsv lines hold "name a b c d" separated by any whitespace. Blank lines and
// lines starting with "#" are skipped, and the first record may be a header
// whose first field is "name". jsonl lines hold one object with the keys
// name, a, b, c and d.
type Scanner struct {
	lines   *bufio.Scanner
	format  Format
	source  string
	line    int
	records int
	feature enrichment.Feature
	err     error
}

// NewScanner creates a Scanner for a streaming format.
func NewScanner(r io.Reader, format Format, opts ...ScannerOption) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineLength)

	s := &Scanner{lines: lines, format: format, source: "input"}

	for _, opt := range opts {
		opt(s)
	}

	if !format.Streaming() {
		s.err = fmt.Errorf("%w: %q cannot be streamed", ErrUnknownFormat, string(format))
	}

	return s
}

// Scan advances to the next record. It returns false at the end of input or
// on the first error, which Err then reports.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}

	for s.lines.Scan() {
		s.line++

		text := strings.TrimSpace(s.lines.Text())
		if text == "" || strings.HasPrefix(text, commentPrefix) {
			continue
		}

		feature, skip, err := s.parse(text)
		if err != nil {
			s.err = fmt.Errorf("%s:%d: %w", s.source, s.line, err)

			return false
		}

		s.records++

		if skip {
			continue
		}

		s.feature = feature

		return true
	}

	err := s.lines.Err()
	if err != nil {
		s.err = fmt.Errorf("%s:%d: %w", s.source, s.line+1, err)
	}

	return false
}

// Feature returns the record read by the last successful Scan.
func (s *Scanner) Feature() enrichment.Feature {
	return s.feature
}

// Err returns the first error encountered, or nil at a clean end of input.
func (s *Scanner) Err() error {
	return s.err
}

// Line returns the number of lines consumed so far.
func (s *Scanner) Line() int {
	return s.line
}

// All adapts the scanner to the iterator the runner consumes. A scan error
// is yielded once as the final element.
func (s *Scanner) All() iter.Seq2[enrichment.Feature, error] {
	return func(yield func(enrichment.Feature, error) bool) {
		for s.Scan() {
			if !yield(s.Feature(), nil) {
				return
			}
		}

		if s.err != nil {
			yield(enrichment.Feature{}, s.err)
		}
	}
}

func (s *Scanner) parse(text string) (enrichment.Feature, bool, error) {
	if s.format == FormatJSONL {
		feature, err := parseJSONLine(text)

		return feature, false, err
	}

	fields := strings.Fields(text)
	if s.records == 0 && fields[0] == headerName {
		return enrichment.Feature{}, true, nil
	}

	feature, err := parseTSVFields(fields)

	return feature, false, err
}

func parseTSVFields(fields []string) (enrichment.Feature, error) {
	if len(fields) != tsvFields {
		return enrichment.Feature{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedRecord, tsvFields, len(fields))
	}

	var cells [4]int

	for i, field := range fields[1:] {
		v, err := strconv.Atoi(field)
		if err != nil {
			return enrichment.Feature{}, fmt.Errorf("%w: cell %d: %q is not an integer", ErrMalformedRecord, i+1, field)
		}

		cells[i] = v
	}

	tbl, err := fisher.NewTable(cells[0], cells[1], cells[2], cells[3])
	if err != nil {
		return enrichment.Feature{}, fmt.Errorf("feature %q: %w", fields[0], err)
	}

	return enrichment.Feature{Name: fields[0], Table: tbl}, nil
}

type jsonRecord struct {
	Name *string `json:"name"`
	A    *int    `json:"a"`
	B    *int    `json:"b"`
	C    *int    `json:"c"`
	D    *int    `json:"d"`
}

func parseJSONLine(text string) (enrichment.Feature, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()

	var rec jsonRecord

	err := dec.Decode(&rec)
	if err != nil {
		return enrichment.Feature{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	if rec.Name == nil || rec.A == nil || rec.B == nil || rec.C == nil || rec.D == nil {
		return enrichment.Feature{}, fmt.Errorf("%w: name, a, b, c and d are required", ErrMalformedRecord)
	}

	tbl, err := fisher.NewTable(*rec.A, *rec.B, *rec.C, *rec.D)
	if err != nil {
		return enrichment.Feature{}, fmt.Errorf("feature %q: %w", *rec.Name, err)
	}

	return enrichment.Feature{Name: *rec.Name, Table: tbl}, nil
}
