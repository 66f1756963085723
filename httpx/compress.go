package httpx

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compressor encodes a body for the content coding named by algorithm
// ("gzip" or "deflate"). Implementations must be safe for concurrent use.
type Compressor interface {
	Compress(algorithm string, p []byte) ([]byte, error)
}

type CompressorFunc func(algorithm string, p []byte) ([]byte, error)

func (f CompressorFunc) Compress(algorithm string, p []byte) ([]byte, error) {
	return f(algorithm, p)
}

// DefaultCompressor produces gzip streams and, for "deflate", zlib
// streams as HTTP defines that coding.
var DefaultCompressor Compressor = CompressorFunc(compress)

var (
	gzipPool = sync.Pool{New: func() any { return gzip.NewWriter(nil) }}
	zlibPool = sync.Pool{New: func() any { return zlib.NewWriter(nil) }}
)

func compress(algorithm string, p []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch algorithm {
	case "gzip":
		zw := gzipPool.Get().(*gzip.Writer)
		defer gzipPool.Put(zw)
		zw.Reset(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case "deflate":
		zw := zlibPool.Get().(*zlib.Writer)
		defer zlibPool.Put(zw)
		zw.Reset(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedEncoding
	}
	return buf.Bytes(), nil
}

// NegotiateEncoding returns the first Accept-Encoding value that is gzip
// or deflate, or "" when there is none.
func NegotiateEncoding(req HeaderMap) string {
	for _, v := range req.Values("Accept-Encoding") {
		if v == "gzip" || v == "deflate" {
			return v
		}
	}
	return ""
}
