package message

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression encoding constants
const (
	encodingGzip     = "gzip"
	encodingDeflate  = "deflate"
	encodingZstd     = "zstd"
	encodingIdentity = "identity"
)

// NormalizeEncoding lower-cases and trims a single content-coding token, mapping
// aliases to their canonical name.
func NormalizeEncoding(encoding string) string {
	encoding = strings.TrimSpace(strings.ToLower(encoding))
	if encoding == "x-gzip" {
		return encodingGzip
	}
	return encoding
}

// DecodedBody returns the body with its Content-Encoding removed. Codings listed
// in the header are undone in reverse order. Without a Content-Encoding the
// body is returned as is.
func (r *Response) DecodedBody() ([]byte, error) {
	ce := r.Headers.Get("Content-Encoding")
	if ce == "" || len(r.Body) == 0 {
		return r.Body, nil
	}

	codings := strings.Split(ce, ",")
	data := r.Body
	for i := len(codings) - 1; i >= 0; i-- {
		var err error
		if data, err = Decompress(data, codings[i]); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Decompress undoes a single content-coding.
// deflate is tried zlib-wrapped first (checksummed), then as raw DEFLATE.
func Decompress(data []byte, encoding string) ([]byte, error) {
	switch NormalizeEncoding(encoding) {
	case encodingIdentity, "":
		return data, nil

	case encodingGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer func() { _ = gr.Close() }()
		decompressed, err := io.ReadAll(gr)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return decompressed, nil

	case encodingDeflate:
		if decompressed, err := decompressZlib(data); err == nil {
			return decompressed, nil
		}
		decompressed, err := decompressRawDeflate(data)
		if err != nil {
			return nil, fmt.Errorf("deflate body: %w", err)
		}
		return decompressed, nil

	case encodingZstd:
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		defer zr.Close()
		decompressed, err := zr.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		return decompressed, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, strings.TrimSpace(encoding))
	}
}

// decompressRawDeflate attempts raw DEFLATE decompression.
func decompressRawDeflate(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = fr.Close() }()
	return io.ReadAll(fr)
}

// decompressZlib attempts zlib-wrapped DEFLATE decompression.
func decompressZlib(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}
