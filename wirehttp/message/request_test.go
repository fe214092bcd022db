package message

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *Request
		want string
	}{
		{
			name: "get_no_body",
			req:  &Request{Method: MethodGet, Route: "/", Host: "example.com"},
			want: "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n",
		},
		{
			name: "post_with_body",
			req: &Request{
				Method:  MethodPost,
				Route:   "/api/webhooks/1/x",
				Host:    "discord.com",
				Headers: Headers{{Name: "Content-Type", Value: "application/json"}},
				Body:    []byte(`{"content":"hi"}`),
			},
			want: "POST /api/webhooks/1/x HTTP/1.1\r\nHost: discord.com\r\n" +
				"Content-Type: application/json\r\nContent-Length: 16\r\n\r\n{\"content\":\"hi\"}",
		},
		{
			name: "header_order_preserved",
			req: &Request{
				Method: MethodGet,
				Route:  "/q?a=1",
				Host:   "example.com",
				Headers: Headers{
					{Name: "Zebra", Value: "1"},
					{Name: "Alpha", Value: "2"},
				},
			},
			want: "GET /q?a=1 HTTP/1.1\r\nHost: example.com\r\nZebra: 1\r\nAlpha: 2\r\n\r\n",
		},
		{
			name: "caller_host_and_length_dropped",
			req: &Request{
				Method: MethodPut,
				Route:  "/",
				Host:   "example.com",
				Headers: Headers{
					{Name: "host", Value: "evil.example"},
					{Name: "Content-Length", Value: "999"},
				},
				Body: []byte("abc"),
			},
			want: "PUT / HTTP/1.1\r\nHost: example.com\r\nContent-Length: 3\r\n\r\nabc",
		},
		{
			name: "empty_body_no_length",
			req:  &Request{Method: MethodDelete, Route: "/item/1", Host: "example.com", Body: []byte{}},
			want: "DELETE /item/1 HTTP/1.1\r\nHost: example.com\r\n\r\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, string(Encode(tc.req)))
		})
	}
}

func TestEncodeContentLengthMatchesBody(t *testing.T) {
	t.Parallel()

	for _, size := range []int{1, 2, 15, 16, 1023, 4096, 65537} {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			t.Parallel()

			body := bytes.Repeat([]byte{'z'}, size)
			wire := Encode(&Request{Method: MethodPost, Route: "/", Host: "example.com", Body: body})

			hdrEnd := bytes.Index(wire, []byte("\r\n\r\n"))
			require.Positive(t, hdrEnd)
			assert.Contains(t, string(wire[:hdrEnd]), "\r\nContent-Length: "+strconv.Itoa(size))
			assert.Len(t, wire[hdrEnd+4:], size)
		})
	}
}

func TestEncodeReadableByReferenceParser(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(MethodPost).
		Route("/submit?x=1").
		Host("api.example.com").
		Header("Accept", "application/json").
		Header("X-Request-Id", "abc").
		Body([]byte("payload bytes")).
		Build()
	require.NoError(t, err)

	parsed, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(Encode(req))))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, parsed.Method)
	assert.Equal(t, "/submit?x=1", parsed.RequestURI)
	assert.Equal(t, "api.example.com", parsed.Host)
	assert.Equal(t, "application/json", parsed.Header.Get("Accept"))
	assert.Equal(t, "abc", parsed.Header.Get("X-Request-Id"))
	assert.EqualValues(t, len("payload bytes"), parsed.ContentLength)

	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload bytes", string(body))
}

func TestAppendWireReusesBuffer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.WriteString("stale")
	req := &Request{Method: MethodGet, Route: "/", Host: "example.com"}

	assert.Equal(t, string(Encode(req)), string(req.AppendWire(&buf)))
}

func TestRequestBuilder(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		req, err := NewRequest(MethodGet).Host("example.com").Build()
		require.NoError(t, err)
		assert.Equal(t, "/", req.Route)
		assert.Empty(t, req.Headers)
		assert.Nil(t, req.Body)
	})

	t.Run("json_body", func(t *testing.T) {
		t.Parallel()

		req, err := NewRequest(MethodPost).
			Route("/api/webhooks/1/token").
			Host("discord.com").
			JSON(map[string]string{"content": "hello"}).
			Build()
		require.NoError(t, err)
		assert.JSONEq(t, `{"content":"hello"}`, string(req.Body))
		assert.Equal(t, "application/json", req.Header("content-type"))
	})

	t.Run("header_replaces", func(t *testing.T) {
		t.Parallel()

		req, err := NewRequest(MethodGet).
			Host("example.com").
			Header("Accept", "text/html").
			Headers(Headers{{Name: "accept", Value: "application/json"}}).
			Build()
		require.NoError(t, err)
		require.Len(t, req.Headers, 1)
		assert.Equal(t, "application/json", req.Header("Accept"))
	})

	t.Run("build_is_independent", func(t *testing.T) {
		t.Parallel()

		body := []byte("abc")
		b := NewRequest(MethodPost).Host("example.com").Body(body).Header("A", "1")
		req, err := b.Build()
		require.NoError(t, err)

		body[0] = 'X'
		b.Header("A", "2")
		assert.Equal(t, "abc", string(req.Body))
		assert.Equal(t, "1", req.Header("A"))
	})

	t.Run("json_marshal_error", func(t *testing.T) {
		t.Parallel()

		_, err := NewRequest(MethodPost).Host("example.com").JSON(make(chan int)).Build()
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestRequestBuilderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		b       *RequestBuilder
		wantMsg string
	}{
		{
			name:    "unsupported_method",
			b:       NewRequest(Method("PATCH")).Host("example.com"),
			wantMsg: "unsupported method",
		},
		{
			name:    "missing_host",
			b:       NewRequest(MethodGet),
			wantMsg: "host is required",
		},
		{
			name:    "invalid_host",
			b:       NewRequest(MethodGet).Host("exa mple.com"),
			wantMsg: "invalid host",
		},
		{
			name:    "relative_route",
			b:       NewRequest(MethodGet).Host("example.com").Route("index.html"),
			wantMsg: "must start with /",
		},
		{
			name:    "route_with_space",
			b:       NewRequest(MethodGet).Host("example.com").Route("/a b"),
			wantMsg: "contains whitespace",
		},
		{
			name:    "header_name",
			b:       NewRequest(MethodGet).Host("example.com").Header("Bad Name", "v"),
			wantMsg: "invalid header name",
		},
		{
			name:    "header_value_crlf",
			b:       NewRequest(MethodGet).Host("example.com").Header("X-Inject", "a\r\nEvil: 1"),
			wantMsg: "invalid value for header X-Inject",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req, err := tc.b.Build()
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, req)
			assert.True(t, strings.Contains(err.Error(), tc.wantMsg), err.Error())
		})
	}
}
