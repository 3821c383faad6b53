// Package report renders enrichment reports as a terminal table, JSON, YAML
// or TSV.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/fishex/pkg/enrichment"
)

// Format names an output layout.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"
)

// ErrUnknownFormat is returned for an unrecognized output format.
var ErrUnknownFormat = errors.New("unknown output format")

// infiniteOddsRatio is the wire value of an unbounded odds ratio.
const infiniteOddsRatio = -1

const yamlIndent = 2

// Options controls Write.
type Options struct {
	Format Format

	// SignificantOnly drops rows that did not pass the threshold.
	SignificantOnly bool

	// Color highlights significant rows in the table format.
	Color bool
}

// ParseFormat resolves an output format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))

	switch f {
	case FormatTable, FormatJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Write renders rep to w.
func Write(w io.Writer, rep *enrichment.Report, opts Options) error {
	results := rep.Results
	if opts.SignificantOnly {
		results = significantResults(results)
	}

	switch opts.Format {
	case FormatTable, "":
		return writeTable(w, rep, results, opts.Color)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(newDocument(rep, results))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(yamlIndent)

		err := enc.Encode(newDocument(rep, results))
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	case FormatTSV:
		return writeTSV(w, results)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(opts.Format))
	}
}

func significantResults(results []enrichment.Result) []enrichment.Result {
	var out []enrichment.Result

	for _, r := range results {
		if r.Significant {
			out = append(out, r)
		}
	}

	return out
}

type document struct {
	Alternative string      `json:"alternative" yaml:"alternative"`
	Alpha       float64     `json:"alpha" yaml:"alpha"`
	Threshold   float64     `json:"threshold" yaml:"threshold"`
	Tests       int         `json:"tests" yaml:"tests"`
	Significant int         `json:"significant" yaml:"significant"`
	Cache       cacheDigest `json:"cache" yaml:"cache"`
	Results     []row       `json:"results" yaml:"results"`
	Unannotated []string    `json:"unannotated,omitempty" yaml:"unannotated,omitempty"`
}

type cacheDigest struct {
	Entries    int64 `json:"entries" yaml:"entries"`
	Extensions int64 `json:"extensions" yaml:"extensions"`
	Overflow   int64 `json:"overflow" yaml:"overflow"`
}

type row struct {
	Feature     string   `json:"feature" yaml:"feature"`
	A           int      `json:"a" yaml:"a"`
	B           int      `json:"b" yaml:"b"`
	C           int      `json:"c" yaml:"c"`
	D           int      `json:"d" yaml:"d"`
	OddsRatio   *float64 `json:"odds_ratio" yaml:"odds_ratio"`
	PValue      float64  `json:"p_value" yaml:"p_value"`
	Significant bool     `json:"significant" yaml:"significant"`
}

func newDocument(rep *enrichment.Report, results []enrichment.Result) document {
	rows := make([]row, len(results))

	for i, r := range results {
		rows[i] = row{
			Feature:     r.Feature,
			A:           r.Table.A,
			B:           r.Table.B,
			C:           r.Table.C,
			D:           r.Table.D,
			OddsRatio:   wireOddsRatio(r.OddsRatio),
			PValue:      r.PValue,
			Significant: r.Significant,
		}
	}

	return document{
		Alternative: rep.Alternative.String(),
		Alpha:       rep.Alpha,
		Threshold:   rep.Threshold,
		Tests:       rep.Tests,
		Significant: rep.Significant,
		Cache: cacheDigest{
			Entries:    rep.Cache.Entries,
			Extensions: rep.Cache.Extensions,
			Overflow:   rep.Cache.Overflow,
		},
		Results:     rows,
		Unannotated: rep.Unannotated,
	}
}

// wireOddsRatio maps +Inf to -1 and NaN to null, neither of which JSON can carry.
func wireOddsRatio(v float64) *float64 {
	switch {
	case math.IsNaN(v):
		return nil
	case math.IsInf(v, 1):
		v = infiniteOddsRatio
	}

	return &v
}

// formatFloat prints v compactly with lowercase inf and nan.
func formatFloat(v float64, precision int) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	return strconv.FormatFloat(v, 'g', precision, 64)
}

func writeTable(w io.Writer, rep *enrichment.Report, results []enrichment.Result, colorize bool) error {
	highlight := color.New(color.FgGreen, color.Bold)
	if colorize {
		highlight.EnableColor()
	} else {
		highlight.DisableColor()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"Feature", "a", "b", "c", "d", "Odds ratio", "P-value", "Significant"})

	for _, r := range results {
		mark := ""
		if r.Significant {
			mark = highlight.Sprint("yes")
		}

		tbl.AppendRow(table.Row{
			r.Feature,
			r.Table.A, r.Table.B, r.Table.C, r.Table.D,
			formatFloat(r.OddsRatio, 4),
			formatFloat(r.PValue, 4),
			mark,
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf(
		"%d of %d significant (%s, alpha %s, threshold %s)",
		rep.Significant, rep.Tests, rep.Alternative, formatFloat(rep.Alpha, -1), formatFloat(rep.Threshold, 4),
	)})

	if len(rep.Unannotated) > 0 {
		tbl.AppendFooter(table.Row{fmt.Sprintf("%d enriched items carry no feature", len(rep.Unannotated))})
	}

	_, err := io.WriteString(w, tbl.Render()+"\n")

	return err
}

var tsvHeader = []string{"name", "a", "b", "c", "d", "odds_ratio", "p_value", "significant"} //nolint:gochecknoglobals // column order.

func writeTSV(w io.Writer, results []enrichment.Result) error {
	_, err := fmt.Fprintln(w, strings.Join(tsvHeader, "\t"))
	if err != nil {
		return err
	}

	for _, r := range results {
		_, err = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\t%t\n",
			r.Feature, r.Table.A, r.Table.B, r.Table.C, r.Table.D,
			formatFloat(r.OddsRatio, -1), formatFloat(r.PValue, -1), r.Significant)
		if err != nil {
			return err
		}
	}

	return nil
}
