package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readChunkedBody decodes chunked transfer encoding. On any framing error no
// partial body is returned.
func (d *Decoder) readChunkedBody(br *bufio.Reader) ([]byte, Headers, error) {
	var body bytes.Buffer
	for {
		sizeLine, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil, fmt.Errorf("%w: missing chunk size line", ErrIncompleteMessage)
			}
			return nil, nil, err
		}

		size, err := parseChunkSize(sizeLine)
		if err != nil {
			return nil, nil, err
		}

		if size == 0 {
			// Last chunk; trailer fields end at the blank line
			trailers, err := d.readHeaders(br, true)
			if err != nil {
				return nil, nil, err
			}
			return body.Bytes(), trailers, nil
		}

		if _, err := io.CopyN(&body, br, size); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil, fmt.Errorf("%w: chunk shorter than %d bytes", ErrIncompleteMessage, size)
			}
			return nil, nil, err
		}

		// Read trailing CRLF after chunk data
		term, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil, fmt.Errorf("%w: missing CRLF after chunk", ErrIncompleteMessage)
			}
			return nil, nil, err
		} else if len(term) != 0 {
			return nil, nil, ErrMalformedChunk
		}
	}
}

// parseChunkSize parses the hexadecimal size, ignoring chunk extensions after ';'.
func parseChunkSize(line []byte) (int64, error) {
	sizeStr := string(line)
	if idx := strings.IndexByte(sizeStr, ';'); idx >= 0 {
		sizeStr = sizeStr[:idx]
	}
	sizeStr = strings.TrimSpace(sizeStr)

	size, err := strconv.ParseUint(sizeStr, 16, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunkSize, sizeStr)
	}
	return int64(size), nil
}
