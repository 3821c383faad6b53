package featureio_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fishex/pkg/featureio"
	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

const setsDoc = `{
  "found": ["g1", "g2", "g3", "g4", "g5", "g6"],
  "enriched": ["g1", "g2", "g3"],
  "annotations": {
    "g1": ["K1", "K2"],
    "g2": ["K1", "K3"],
    "g3": ["K1"],
    "g4": ["K2"],
    "g5": ["K2", "K3", "K3"]
  }
}`

func TestReadSets(t *testing.T) {
	t.Parallel()

	sets, err := featureio.ReadSets(strings.NewReader(setsDoc))
	require.NoError(t, err)

	assert.Len(t, sets.Found, 6)
	assert.Equal(t, []string{"g1", "g2", "g3"}, sets.Enriched)
	assert.Equal(t, []string{"K1", "K2"}, sets.Annotations["g1"])
}

func TestReadSets_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{name: "missing_found", doc: `{"enriched": [], "annotations": {}}`, field: "found"},
		{name: "numeric_item", doc: `{"found": [1], "enriched": [], "annotations": {}}`, field: "found.0"},
		{name: "annotation_not_list", doc: `{"found": [], "enriched": [], "annotations": {"g1": "K1"}}`, field: "annotations.g1"},
		{name: "extra_key", doc: `{"found": [], "enriched": [], "annotations": {}, "alpha": 0.05}`, field: "alpha"},
		{name: "empty_name", doc: `{"found": [""], "enriched": [], "annotations": {}}`, field: "found.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := featureio.ReadSets(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, featureio.ErrSchemaViolation)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestReadSets_NotJSON(t *testing.T) {
	t.Parallel()

	_, err := featureio.ReadSets(strings.NewReader("found: [g1]"))
	require.ErrorIs(t, err, featureio.ErrSchemaViolation)
}

func TestReadCounts(t *testing.T) {
	t.Parallel()

	doc := `{"target": {"geneA": 10}, "background": {"geneA": 2}, "target_total": 20, "background_total": 100}`

	counts, err := featureio.ReadCounts(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 10, counts.Target["geneA"])
	assert.Equal(t, 100, counts.BackgroundTotal)

	_, err = featureio.ReadCounts(strings.NewReader(`{"target": {}, "totals": 3}`))
	require.Error(t, err)
}

func TestReadFeatures(t *testing.T) {
	t.Parallel()

	t.Run("sets", func(t *testing.T) {
		t.Parallel()

		features, err := featureio.ReadFeatures(strings.NewReader(setsDoc), featureio.FormatSets, "sets.json")
		require.NoError(t, err)
		require.Len(t, features, 3)

		assert.Equal(t, "K1", features[0].Name)
		assert.Equal(t, fisher.Table{A: 3, B: 0, C: 0, D: 3}, features[0].Table)
	})

	t.Run("counts", func(t *testing.T) {
		t.Parallel()

		doc := `{"target": {"geneA": 10}, "background": {"geneA": 2}, "target_total": 20, "background_total": 100}`

		features, err := featureio.ReadFeatures(strings.NewReader(doc), featureio.FormatCounts, "counts.json")
		require.NoError(t, err)
		require.Len(t, features, 1)
		assert.Equal(t, fisher.Table{A: 10, B: 10, C: 2, D: 98}, features[0].Table)
	})

	t.Run("tsv", func(t *testing.T) {
		t.Parallel()

		features, err := featureio.ReadFeatures(strings.NewReader(sampleTSV), featureio.FormatTSV, "f.tsv")
		require.NoError(t, err)
		assert.Len(t, features, 2)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		_, err := featureio.ReadFeatures(strings.NewReader(""), featureio.Format("xml"), "f.xml")
		require.ErrorIs(t, err, featureio.ErrUnknownFormat)
	})
}

func TestSetsSchema_ReturnsCopy(t *testing.T) {
	t.Parallel()

	first := featureio.SetsSchema()
	require.True(t, json.Valid(first))

	first[0] = 'x'

	assert.True(t, json.Valid(featureio.SetsSchema()), "callers must not be able to modify the embedded schema")
}
