package enrichment

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

// ErrEnrichedNotFound is returned when an enriched item is missing from the found set.
var ErrEnrichedNotFound = errors.New("enriched item not in found set")

// maxListedItems bounds how many offending items an error message names.
const maxListedItems = 5

// Feature is one genomic feature (gene, pathway, k-mer) and its 2x2 table.
type Feature struct {
	Name  string
	Table fisher.Table
}

// All adapts a slice to the iterator accepted by Runner.Run.
func All(features []Feature) iter.Seq2[Feature, error] {
	return func(yield func(Feature, error) bool) {
		for _, f := range features {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Sets describes an enrichment question over item sets: out of the Found
// items, the Enriched ones were selected by an upstream test, and
// Annotations maps each item to the features it carries.
type Sets struct {
	Found       []string            `json:"found"`
	Enriched    []string            `json:"enriched"`
	Annotations map[string][]string `json:"annotations"`
}

// Features builds one table per feature carried by at least one enriched item:
//
//	a = enriched items with the feature
//	b = found, non-enriched items with the feature
//	c = enriched items without the feature
//	d = found, non-enriched items without the feature
//
// Features are returned sorted by name.
func (s Sets) Features() ([]Feature, error) {
	found := toSet(s.Found)
	enriched := toSet(s.Enriched)

	var missing []string

	for item := range enriched {
		if _, ok := found[item]; !ok {
			missing = append(missing, item)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)

		return nil, fmt.Errorf("%w: %d items (%s)", ErrEnrichedNotFound, len(missing), listItems(missing))
	}

	foundCounts := s.countFeatures(found)
	enrichedCounts := s.countFeatures(enriched)

	nFound, nEnriched := len(found), len(enriched)
	names := make([]string, 0, len(enrichedCounts))

	for name := range enrichedCounts {
		names = append(names, name)
	}

	slices.Sort(names)

	features := make([]Feature, 0, len(names))

	for _, name := range names {
		a := enrichedCounts[name]
		b := foundCounts[name] - a

		tbl, err := fisher.NewTable(a, b, nEnriched-a, nFound-nEnriched-b)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}

		features = append(features, Feature{Name: name, Table: tbl})
	}

	return features, nil
}

// Unannotated returns the enriched items that carry no feature, sorted.
func (s Sets) Unannotated() []string {
	var out []string

	for item := range toSet(s.Enriched) {
		if len(s.Annotations[item]) == 0 {
			out = append(out, item)
		}
	}

	slices.Sort(out)

	return out
}

// countFeatures counts, per feature, how many of items carry it. An item
// listing the same feature twice counts once.
func (s Sets) countFeatures(items map[string]struct{}) map[string]int {
	counts := make(map[string]int)

	for item := range items {
		seen := make(map[string]struct{}, len(s.Annotations[item]))

		for _, feature := range s.Annotations[item] {
			if _, dup := seen[feature]; dup {
				continue
			}

			seen[feature] = struct{}{}
			counts[feature]++
		}
	}

	return counts
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))

	for _, item := range items {
		set[item] = struct{}{}
	}

	return set
}

func listItems(items []string) string {
	if len(items) <= maxListedItems {
		return strings.Join(items, ", ")
	}

	return strings.Join(items[:maxListedItems], ", ") + ", ..."
}

// Counts describes an enrichment question over per-feature occurrence
// counts in a target cohort and a background cohort.
type Counts struct {
	Target          map[string]int `json:"target"`
	Background      map[string]int `json:"background"`
	TargetTotal     int            `json:"target_total"`
	BackgroundTotal int            `json:"background_total"`
}

// Features builds one table per feature present in Target:
//
//	a = Target[f]       b = TargetTotal - a
//	c = Background[f]   d = BackgroundTotal - c
//
// A count larger than its cohort total fails with fisher.ErrInvalidArgument.
// Features are returned sorted by name.
func (c Counts) Features() ([]Feature, error) {
	names := make([]string, 0, len(c.Target))

	for name := range c.Target {
		names = append(names, name)
	}

	slices.Sort(names)

	features := make([]Feature, 0, len(names))

	for _, name := range names {
		a := c.Target[name]
		bg := c.Background[name]

		tbl, err := fisher.NewTable(a, c.TargetTotal-a, bg, c.BackgroundTotal-bg)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}

		features = append(features, Feature{Name: name, Table: tbl})
	}

	return features, nil
}
