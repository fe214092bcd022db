package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Response is a decoded HTTP/1.1 response. It is produced once per decode and
// is never modified by this package afterwards.
type Response struct {
	// Status line components
	Version    string `json:"version" msgpack:"ver"`
	StatusCode int    `json:"status_code" msgpack:"sc"`
	StatusText string `json:"status_text,omitempty" msgpack:"st,omitempty"`

	// Headers holds one entry per name: a repeated name overwrites the earlier
	// value in place (last value wins), lookups are case-insensitive.
	Headers Headers `json:"headers" msgpack:"h"`

	// Body is the response body with any chunked framing removed.
	Body []byte `json:"body,omitempty" msgpack:"b,omitempty"`

	// Trailers holds header fields sent after the last chunk, if any.
	Trailers Headers `json:"trailers,omitempty" msgpack:"t,omitempty"`

	// BodyUntilClose is set when the body had no length framing and was read until
	// the peer closed the connection.
	BodyUntilClose bool `json:"body_until_close,omitempty" msgpack:"uc,omitempty"`
}

// Header returns the value of the named header (case-insensitive), or "".
func (r *Response) Header(name string) string { return r.Headers.Get(name) }

// Text returns the decoded body as a string, failing with ErrInvalidBodyEncoding
// when it is not valid UTF-8.
func (r *Response) Text() (string, error) {
	body, err := r.DecodedBody()
	if err != nil {
		return "", err
	} else if !utf8.Valid(body) {
		return "", ErrInvalidBodyEncoding
	}
	return string(body), nil
}

// JSON unmarshals the decoded body into v.
func (r *Response) JSON(v any) error {
	body, err := r.DecodedBody()
	if err != nil {
		return err
	} else if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}

// KeepAlive reports whether the connection can carry another request after this
// response.
func (r *Response) KeepAlive() bool {
	if r.BodyUntilClose {
		return false
	}
	conn := strings.ToLower(r.Headers.Get("Connection"))
	if strings.Contains(conn, "close") {
		return false
	} else if r.Version == "HTTP/1.0" {
		return strings.Contains(conn, "keep-alive")
	}
	return true
}
