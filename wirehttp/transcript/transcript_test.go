package transcript

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-appsec/wirehttp/wirehttp/message"
)

func sampleExchange(i int) *Exchange {
	return &Exchange{
		Time:    time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
		ConnID:  "conn-1",
		Method:  "GET",
		URL:     "https://example.com/item",
		Request: []byte("GET /item HTTP/1.1\r\nHost: example.com\r\n\r\n"),
		Response: &message.Response{
			Version:    "HTTP/1.1",
			StatusCode: 200,
			StatusText: "OK",
			Headers:    message.Headers{{Name: "Content-Length", Value: "2"}},
			Body:       []byte("ok"),
		},
		Duration: time.Duration(i+1) * time.Millisecond,
	}
}

func TestRecordAndReadAll(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	for i := range 3 {
		require.NoError(t, rec.Record(sampleExchange(i)))
	}

	got, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range got {
		assert.Equal(t, *sampleExchange(i), got[i])
	}
}

func TestReadAllEmpty(t *testing.T) {
	t.Parallel()

	got, err := ReadAll(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadAllTruncated(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	require.NoError(t, rec.Record(sampleExchange(0)))
	require.NoError(t, rec.Record(sampleExchange(1)))

	data := buf.Bytes()
	got, err := ReadAll(bytes.NewReader(data[:len(data)-3]))
	require.Error(t, err)
	assert.Len(t, got, 1)
}

func TestFileRecorderAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.wht")

	rec, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, rec.Record(sampleExchange(0)))
	require.NoError(t, rec.Close())

	rec, err = OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, rec.Record(sampleExchange(1)))
	require.NoError(t, rec.Close())

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.Duration(2)*time.Millisecond, got[1].Duration)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
