// Package transcript records request/response exchanges as a stream of msgpack
// records and reads them back.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/go-appsec/wirehttp/wirehttp/message"
)

// Exchange is one request and the response it received.
type Exchange struct {
	Time     time.Time         `json:"time" msgpack:"ts"`
	ConnID   string            `json:"conn_id" msgpack:"cid"`
	Method   string            `json:"method" msgpack:"m"`
	URL      string            `json:"url" msgpack:"u"`
	Request  []byte            `json:"request" msgpack:"req"` // wire bytes as sent
	Response *message.Response `json:"response" msgpack:"resp"`
	Duration time.Duration     `json:"duration_ns" msgpack:"d"`
}

// Recorder appends exchanges to a writer. It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	w   io.Writer
	enc *msgpack.Encoder
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w, enc: msgpack.NewEncoder(w)}
}

// Record writes one exchange.
func (r *Recorder) Record(e *Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.Encode(e); err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// FileRecorder is a Recorder that owns its file.
type FileRecorder struct {
	*Recorder
	f *os.File
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &FileRecorder{Recorder: NewRecorder(f), f: f}, nil
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// ReadAll decodes every exchange from rd until EOF.
func ReadAll(rd io.Reader) ([]Exchange, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(rd))

	var exchanges []Exchange
	for {
		var e Exchange
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return exchanges, nil
			}
			return exchanges, fmt.Errorf("decode exchange %d: %w", len(exchanges), err)
		}
		// msgpack timestamps lose timezone info; normalize to UTC
		e.Time = e.Time.UTC()
		exchanges = append(exchanges, e)
	}
}

// ReadFile reads every exchange stored at path.
func ReadFile(path string) ([]Exchange, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadAll(f)
}
