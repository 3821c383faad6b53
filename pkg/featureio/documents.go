package featureio

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/fishex/pkg/enrichment"
)

// ErrSchemaViolation is returned when a sets document does not match its schema.
var ErrSchemaViolation = errors.New("sets document does not match schema")

// maxReportedViolations bounds the schema errors listed in one message.
const maxReportedViolations = 3

//go:embed schema/sets.schema.json
var setsSchemaJSON []byte

var setsSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(setsSchemaJSON))
})

// SetsSchema returns the embedded JSON schema for sets documents.
func SetsSchema() []byte {
	return bytes.Clone(setsSchemaJSON)
}

// ReadSets reads and validates a sets document.
func ReadSets(r io.Reader) (enrichment.Sets, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return enrichment.Sets{}, fmt.Errorf("read sets: %w", err)
	}

	schema, err := setsSchema()
	if err != nil {
		return enrichment.Sets{}, fmt.Errorf("compile sets schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return enrichment.Sets{}, fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	if !result.Valid() {
		return enrichment.Sets{}, fmt.Errorf("%w: %s", ErrSchemaViolation, describeViolations(result.Errors()))
	}

	var sets enrichment.Sets

	err = json.Unmarshal(data, &sets)
	if err != nil {
		return enrichment.Sets{}, fmt.Errorf("decode sets: %w", err)
	}

	return sets, nil
}

func describeViolations(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, min(len(errs), maxReportedViolations))

	for i, e := range errs {
		if i == maxReportedViolations {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-i))

			break
		}

		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}

	return strings.Join(msgs, "; ")
}

// ReadCounts reads a counts document. Unknown keys are rejected.
func ReadCounts(r io.Reader) (enrichment.Counts, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var counts enrichment.Counts

	err := dec.Decode(&counts)
	if err != nil {
		return enrichment.Counts{}, fmt.Errorf("decode counts: %w", err)
	}

	return counts, nil
}

// ReadFeatures reads every feature from r in the given format. Streaming
// formats are collected in input order; documents are expanded into their
// feature tables.
func ReadFeatures(r io.Reader, format Format, source string) ([]enrichment.Feature, error) {
	switch format {
	case FormatTSV, FormatJSONL:
		var features []enrichment.Feature

		scanner := NewScanner(r, format, WithSource(source))
		for scanner.Scan() {
			features = append(features, scanner.Feature())
		}

		return features, scanner.Err()
	case FormatSets:
		sets, err := ReadSets(r)
		if err != nil {
			return nil, err
		}

		return sets.Features()
	case FormatCounts:
		counts, err := ReadCounts(r)
		if err != nil {
			return nil, err
		}

		return counts.Features()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}
