package featureio_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fishex/pkg/featureio"
)

const sampleTSV = "name a b c d\nK1 3 0 0 3\nK2 1 2 2 1\n"

func compressGzip(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func compressLZ4(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := lz4.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func compressZstd(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestOpen_Decompresses(t *testing.T) {
	t.Parallel()

	raw := []byte(sampleTSV)

	tests := []struct {
		name    string
		file    string
		payload func(*testing.T, []byte) []byte
	}{
		{name: "plain", file: "features.tsv", payload: func(_ *testing.T, b []byte) []byte { return b }},
		{name: "gzip", file: "features.tsv.gz", payload: compressGzip},
		{name: "lz4", file: "features.tsv.lz4", payload: compressLZ4},
		{name: "zstd", file: "features.tsv.zst", payload: compressZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, tt.payload(t, raw), 0o600))

			rc, err := featureio.Open(path)
			require.NoError(t, err)

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())

			assert.Equal(t, sampleTSV, string(got))
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	_, err := featureio.Open(filepath.Join(t.TempDir(), "missing.tsv"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "broken.tsv.gz")
	require.NoError(t, os.WriteFile(bad, []byte("not gzip at all"), 0o600))

	_, err = featureio.Open(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, f := range featureio.Formats() {
		got, err := featureio.ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	got, err := featureio.ParseFormat(" JSONL ")
	require.NoError(t, err)
	assert.Equal(t, featureio.FormatJSONL, got)

	_, err = featureio.ParseFormat("xml")
	require.ErrorIs(t, err, featureio.ErrUnknownFormat)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]featureio.Format{
		"features.tsv":           featureio.FormatTSV,
		"features.txt.gz":        featureio.FormatTSV,
		"features":               featureio.FormatTSV,
		"features.jsonl.zst":     featureio.FormatJSONL,
		"a/b/features.NDJSON":    featureio.FormatJSONL,
		"sets.json":              featureio.FormatSets,
		"kegg_counts.json.lz4":   featureio.FormatCounts,
		"background.counts.json": featureio.FormatCounts,
	}

	for path, want := range tests {
		assert.Equal(t, want, featureio.DetectFormat(path), path)
	}
}
