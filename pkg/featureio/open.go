package featureio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// StdinPath is the path that selects standard input.
const StdinPath = "-"

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionLZ4
	compressionZstd
)

func compressionFor(path string) compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return compressionGzip
	case ".lz4":
		return compressionLZ4
	case ".zst", ".zstd":
		return compressionZstd
	default:
		return compressionNone
	}
}

// Open opens path for reading, decompressing .gz, .lz4 and .zst files on the
// fly. The path "-" reads standard input, which is never closed.
func Open(path string) (io.ReadCloser, error) {
	if path == StdinPath {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	rc, err := decompress(f, compressionFor(path))
	if err != nil {
		closeErr := f.Close()

		return nil, errors.Join(fmt.Errorf("open %s: %w", path, err), closeErr)
	}

	return rc, nil
}

func decompress(f *os.File, codec compression) (io.ReadCloser, error) {
	switch codec {
	case compressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}

		return &stackedReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case compressionLZ4:
		return &stackedReader{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	case compressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}

		return &stackedReader{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil
	default:
		return f, nil
	}
}

// stackedReader reads through a decoder and closes the decoder before the file.
type stackedReader struct {
	io.Reader

	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var errs []error

	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}

	return errors.Join(errs...)
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()

	return nil
}
