package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const crlf = "\r\n"

// Request is an HTTP/1.1 request ready to be encoded. It owns all of its data and
// holds no reference to the connection that will carry it.
type Request struct {
	Method  Method
	Route   string // origin-form target, including any query
	Host    string
	Headers Headers
	Body    []byte // nil or empty means no body
}

// Header returns the first header value with the given name (case-insensitive).
func (r *Request) Header(name string) string { return r.Headers.Get(name) }

// Encode serializes the request to HTTP/1.1 wire bytes.
//
// Host and Content-Length are owned by the encoder: Host comes from r.Host and
// Content-Length is the byte length of r.Body, written only when the body is
// non-empty. Headers with those names in r.Headers are not written.
func Encode(r *Request) []byte {
	var buf bytes.Buffer
	return r.AppendWire(&buf)
}

// AppendWire resets buf, writes the wire form into it and returns buf.Bytes().
func (r *Request) AppendWire(buf *bytes.Buffer) []byte {
	buf.Reset()
	buf.Grow(len(r.Route) + len(r.Host) + len(r.Body) + 64)

	// Request line
	buf.WriteString(string(r.Method))
	buf.WriteByte(' ')
	buf.WriteString(r.Route)
	buf.WriteByte(' ')
	buf.WriteString("HTTP/1.1")
	buf.WriteString(crlf)

	buf.WriteString("Host: ")
	buf.WriteString(r.Host)
	buf.WriteString(crlf)

	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, "Host") || strings.EqualFold(h.Name, "Content-Length") {
			continue
		}
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString(crlf)
	}

	if len(r.Body) > 0 {
		buf.WriteString("Content-Length: ")
		buf.WriteString(strconv.Itoa(len(r.Body)))
		buf.WriteString(crlf)
	}

	buf.WriteString(crlf) // Header terminator
	buf.Write(r.Body)

	return buf.Bytes()
}

// RequestBuilder configures a Request fluently. Fields that are never configured
// never reach the wire. The first configuration error is reported by Build.
type RequestBuilder struct {
	req Request
	err error
}

// NewRequest starts building a request with the given method. The route
// defaults to "/".
func NewRequest(method Method) *RequestBuilder {
	return &RequestBuilder{req: Request{Method: method, Route: "/"}}
}

// Route sets the origin-form target ("/path?query").
func (b *RequestBuilder) Route(route string) *RequestBuilder {
	b.req.Route = route
	return b
}

// Host sets the Host header value.
func (b *RequestBuilder) Host(host string) *RequestBuilder {
	b.req.Host = host
	return b
}

// Header sets a header, replacing an earlier one with the same name.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.req.Headers.Set(name, value)
	return b
}

// Headers applies every header in order, each through Header.
func (b *RequestBuilder) Headers(headers Headers) *RequestBuilder {
	for _, h := range headers {
		b.req.Headers.Set(h.Name, h.Value)
	}
	return b
}

// Body sets the request body. The builder keeps its own copy.
func (b *RequestBuilder) Body(body []byte) *RequestBuilder {
	b.req.Body = bytes.Clone(body)
	return b
}

// JSON marshals v as the body and sets Content-Type to application/json.
func (b *RequestBuilder) JSON(v any) *RequestBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.setErr(fmt.Errorf("%w: marshal json body: %w", ErrInvalidRequest, err))
		return b
	}
	b.req.Body = data
	return b.Header("Content-Type", "application/json")
}

func (b *RequestBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the configuration and returns an independent Request.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	} else if err := validateRequest(&b.req); err != nil {
		return nil, err
	}

	req := b.req
	req.Headers = b.req.Headers.Clone()
	req.Body = bytes.Clone(b.req.Body)
	return &req, nil
}

func validateRequest(r *Request) error {
	var errs []error
	if !r.Method.Valid() {
		errs = append(errs, fmt.Errorf("unsupported method %q", r.Method))
	}
	if r.Host == "" {
		errs = append(errs, errors.New("host is required"))
	} else if !httpguts.ValidHostHeader(r.Host) {
		errs = append(errs, fmt.Errorf("invalid host %q", r.Host))
	}
	if r.Route == "" || (r.Route[0] != '/' && r.Route != "*") {
		errs = append(errs, fmt.Errorf("route %q must start with /", r.Route))
	} else if strings.ContainsAny(r.Route, " \r\n") {
		errs = append(errs, fmt.Errorf("route %q contains whitespace", r.Route))
	}
	for _, h := range r.Headers {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			errs = append(errs, fmt.Errorf("invalid header name %q", h.Name))
		} else if !httpguts.ValidHeaderFieldValue(h.Value) {
			errs = append(errs, fmt.Errorf("invalid value for header %s", h.Name))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
}
