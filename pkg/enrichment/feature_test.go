package enrichment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fishex/pkg/enrichment"
	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

func sampleSets() enrichment.Sets {
	return enrichment.Sets{
		Found:    []string{"g1", "g2", "g3", "g4", "g5", "g6"},
		Enriched: []string{"g1", "g2", "g3"},
		Annotations: map[string][]string{
			"g1": {"K1", "K2"},
			"g2": {"K1", "K1"},
			"g3": {"K1", "K3"},
			"g4": {"K2"},
			"g5": {"K2"},
			"x9": {"K9"}, // Not found; ignored.
		},
	}
}

func TestSets_Features(t *testing.T) {
	t.Parallel()

	features, err := sampleSets().Features()
	require.NoError(t, err)

	assert.Equal(t, []enrichment.Feature{
		{Name: "K1", Table: fisher.Table{A: 3, B: 0, C: 0, D: 3}},
		{Name: "K2", Table: fisher.Table{A: 1, B: 2, C: 2, D: 1}},
		{Name: "K3", Table: fisher.Table{A: 1, B: 0, C: 2, D: 3}},
	}, features)

	for _, f := range features {
		assert.Equal(t, 6, f.Table.N(), f.Name)
		assert.Equal(t, 3, f.Table.Col1(), f.Name)
	}
}

func TestSets_EnrichedMustBeFound(t *testing.T) {
	t.Parallel()

	sets := sampleSets()
	sets.Enriched = append(sets.Enriched, "zz", "aa")

	_, err := sets.Features()
	require.ErrorIs(t, err, enrichment.ErrEnrichedNotFound)
	assert.Contains(t, err.Error(), "2 items (aa, zz)")
}

func TestSets_Unannotated(t *testing.T) {
	t.Parallel()

	sets := sampleSets()
	sets.Enriched = append(sets.Enriched, "g6", "g5")

	assert.Equal(t, []string{"g6"}, sets.Unannotated())
	assert.Empty(t, sampleSets().Unannotated())
}

func TestSets_DuplicateItems(t *testing.T) {
	t.Parallel()

	sets := sampleSets()
	sets.Found = append(sets.Found, "g1", "g4")
	sets.Enriched = append(sets.Enriched, "g2")

	features, err := sets.Features()
	require.NoError(t, err)

	want, err := sampleSets().Features()
	require.NoError(t, err)
	assert.Equal(t, want, features)
}

func TestCounts_Features(t *testing.T) {
	t.Parallel()

	counts := enrichment.Counts{
		Target:          map[string]int{"geneB": 4, "geneA": 10},
		Background:      map[string]int{"geneA": 2, "geneC": 50},
		TargetTotal:     20,
		BackgroundTotal: 100,
	}

	features, err := counts.Features()
	require.NoError(t, err)

	assert.Equal(t, []enrichment.Feature{
		{Name: "geneA", Table: fisher.Table{A: 10, B: 10, C: 2, D: 98}},
		{Name: "geneB", Table: fisher.Table{A: 4, B: 16, C: 0, D: 100}},
	}, features)
}

func TestCounts_CountAboveTotal(t *testing.T) {
	t.Parallel()

	counts := enrichment.Counts{
		Target:          map[string]int{"geneA": 30},
		TargetTotal:     20,
		BackgroundTotal: 100,
	}

	_, err := counts.Features()
	require.ErrorIs(t, err, fisher.ErrInvalidArgument)
	assert.Contains(t, err.Error(), `feature "geneA"`)
}

func TestAll_StopsEarly(t *testing.T) {
	t.Parallel()

	features := []enrichment.Feature{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	var seen []string

	for f, err := range enrichment.All(features) {
		require.NoError(t, err)

		seen = append(seen, f.Name)
		if f.Name == "b" {
			break
		}
	}

	assert.Equal(t, []string{"a", "b"}, seen)
}
