// ABOUTME: zstd and lz4 compressors registered with grpc's encoding registry.
// ABOUTME: Names are what sender.compression in the config refers to.

package wire

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/encoding/gzip"
)

// Compression names accepted by the channel factory.
const (
	CompressionNone = ""
	CompressionGzip = gzip.Name
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

func init() {
	encoding.RegisterCompressor(newZstdCompressor())
	encoding.RegisterCompressor(lz4Compressor{})
}

// ValidCompression reports whether name is a compressor this package knows.
func ValidCompression(name string) bool {
	switch name {
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4:
		return true
	default:
		return false
	}
}

type zstdCompressor struct {
	writers sync.Pool
}

func newZstdCompressor() *zstdCompressor {
	return &zstdCompressor{}
}

type zstdWriter struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (w *zstdWriter) Close() error {
	err := w.Encoder.Close()
	w.pool.Put(w)
	return err
}

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	if zw, ok := c.writers.Get().(*zstdWriter); ok {
		zw.Reset(w)
		return zw, nil
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	return &zstdWriter{Encoder: enc, pool: &c.writers}, nil
}

// zstdReader releases the decoder once the stream is exhausted.
type zstdReader struct {
	dec  *zstd.Decoder
	done bool
}

func (r *zstdReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	n, err := r.dec.Read(p)
	if err != nil {
		r.done = true
		r.dec.Close()
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
	}
	return n, err
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &zstdReader{dec: dec}, nil
}

func (c *zstdCompressor) Name() string {
	return CompressionZstd
}

type lz4Compressor struct{}

func (lz4Compressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Compressor) Decompress(r io.Reader) (io.Reader, error) {
	return lz4.NewReader(r), nil
}

func (lz4Compressor) Name() string {
	return CompressionLZ4
}
