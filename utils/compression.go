package utils

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
)

// CompressionAlgorithm is a Content-Encoding token the API can produce.
type CompressionAlgorithm string

const (
	CompressionNone   CompressionAlgorithm = "identity"
	CompressionGzip   CompressionAlgorithm = "gzip"
	CompressionBrotli CompressionAlgorithm = "br"
)

// NewCompressor wraps w in an encoder for the algorithm. The caller must Close it.
func NewCompressor(w io.Writer, algorithm CompressionAlgorithm) (io.WriteCloser, error) {
	switch algorithm {
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case CompressionBrotli:
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// CompressData compresses data in one shot.
func CompressData(data []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	if len(data) == 0 || algorithm == CompressionNone {
		return data, nil
	}

	var buf bytes.Buffer
	writer, err := NewCompressor(&buf, algorithm)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to %s writer: %w", algorithm, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", algorithm, err)
	}
	return buf.Bytes(), nil
}

// DecompressData reverses CompressData.
func DecompressData(compressed []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	var reader io.Reader
	switch algorithm {
	case CompressionNone:
		return compressed, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case CompressionBrotli:
		reader = brotli.NewReader(bytes.NewReader(compressed))
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	return io.ReadAll(reader)
}

// NegotiateCompression picks an encoding from an Accept-Encoding header.
// Brotli is preferred over gzip when both are acceptable; q=0 excludes a coding.
func NegotiateCompression(acceptEncoding string) CompressionAlgorithm {
	var gzipOK, brOK bool
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		switch name {
		case "br":
			brOK = true
		case "gzip", "*":
			gzipOK = true
		}
	}
	switch {
	case brOK:
		return CompressionBrotli
	case gzipOK:
		return CompressionGzip
	default:
		return CompressionNone
	}
}
