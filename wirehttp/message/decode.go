package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const maxLineBytes = 64 << 10

// Decoder reads HTTP/1.1 responses. The zero value is ready to use.
type Decoder struct {
	// Logger receives debug output for recoverable anomalies (skipped header
	// lines). Nil discards it.
	Logger *zap.Logger
}

// Decode parses a complete response held in memory.
func Decode(data []byte) (*Response, error) {
	var d Decoder
	return d.ReadResponse(bufio.NewReader(bytes.NewReader(data)), "")
}

// ReadResponse reads one response from br. The request method is needed because
// responses to HEAD carry no body. Bytes after the response stay buffered in br,
// so the same reader can be used for the next response on a persistent connection.
func (d *Decoder) ReadResponse(br *bufio.Reader, method Method) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return nil, ErrMissingStatusLine
		} else if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: status line not terminated", ErrIncompleteMessage)
		}
		return nil, err
	}

	resp := &Response{}
	if resp.Version, resp.StatusCode, resp.StatusText, err = parseStatusLine(line); err != nil {
		return nil, err
	}

	if resp.Headers, err = d.readHeaders(br, false); err != nil {
		return nil, err
	}

	if method == MethodHead || !statusAllowsBody(resp.StatusCode) {
		return resp, nil
	} else if err := d.readBody(br, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// readLine returns the next line without its line ending. CRLF is expected,
// a bare LF is tolerated. At EOF the partial line is returned with io.EOF.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > maxLineBytes {
			return nil, ErrLineTooLong
		}
		if err == nil {
			break
		} else if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimSuffix(line, []byte("\r")), err
	}

	line = line[:len(line)-1] // remove \n
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

// parseStatusLine splits the status line on whitespace; the second field is the code.
func parseStatusLine(line []byte) (version string, code int, text string, err error) {
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return "", 0, "", ErrMissingStatusLine
	} else if len(fields) < 2 {
		return "", 0, "", fmt.Errorf("%w: no status code in %q", ErrInvalidStatusCode, line)
	}

	code, err = strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 599 {
		return "", 0, "", fmt.Errorf("%w: %q", ErrInvalidStatusCode, fields[1])
	}
	return fields[0], code, strings.Join(fields[2:], " "), nil
}

// readHeaders reads header lines up to the blank line ending the block.
// When allowEOF is set a clean EOF also ends the block (used for trailers).
func (d *Decoder) readHeaders(br *bufio.Reader, allowEOF bool) (Headers, error) {
	var headers Headers
	last := -1 // index of the header an obs-fold line continues

	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) && allowEOF && len(line) == 0 {
				return headers, nil
			} else if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: header block not terminated", ErrIncompleteMessage)
			}
			return nil, err
		}

		if len(line) == 0 {
			return headers, nil
		}

		// obs-fold continuation
		if line[0] == ' ' || line[0] == '\t' {
			if last >= 0 {
				headers[last].Value += " " + strings.TrimSpace(string(line))
			}
			continue
		}

		idx := bytes.IndexByte(line, ':')
		name := ""
		if idx > 0 {
			name = strings.TrimSpace(string(line[:idx]))
		}
		if name == "" {
			d.logger().Debug("message/decode: skipping header line",
				zap.Error(fmt.Errorf("%w: %q", ErrMalformedHeader, line)))
			last = -1
			continue
		}

		value := strings.TrimSpace(string(line[idx+1:]))
		last = setHeader(&headers, name, value)
	}
}

// setHeader applies the last-value-wins policy and returns the header's index.
func setHeader(headers *Headers, name, value string) int {
	for i, h := range *headers {
		if strings.EqualFold(h.Name, name) {
			(*headers)[i].Value = value
			return i
		}
	}
	*headers = append(*headers, Header{Name: name, Value: value})
	return len(*headers) - 1
}

// statusAllowsBody reports false for 1xx, 204 and 304, which never carry a body.
func statusAllowsBody(code int) bool {
	return code >= 200 && code != 204 && code != 304
}

// readBody selects the framing: Content-Length, then chunked, then read until close.
func (d *Decoder) readBody(br *bufio.Reader, resp *Response) error {
	if resp.Headers.Has("Content-Length") {
		clStr := strings.TrimSpace(resp.Headers.Get("Content-Length"))
		cl, err := strconv.ParseInt(clStr, 10, 64)
		if err != nil || cl < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidContentLength, clStr)
		} else if cl == 0 {
			return nil
		}

		var body bytes.Buffer
		if _, err := io.CopyN(&body, br, cl); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: body has %d of %d bytes", ErrIncompleteMessage, body.Len(), cl)
			}
			return err
		}
		resp.Body = body.Bytes()
		return nil
	}

	if chunkedFinal(resp.Headers.Get("Transfer-Encoding")) {
		body, trailers, err := d.readChunkedBody(br)
		if err != nil {
			return err
		}
		resp.Body, resp.Trailers = body, trailers
		return nil
	}

	// No length framing: the body runs until the peer closes the connection
	body, err := io.ReadAll(br)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		resp.Body = body
	}
	resp.BodyUntilClose = true
	return nil
}

// chunkedFinal reports whether chunked is the last coding applied.
func chunkedFinal(te string) bool {
	codings := strings.Split(te, ",")
	return strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
}

func (d *Decoder) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
