package transport

import (
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSocketFlushesBeforeRead(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	sock := newBufferedSocket(client)

	// net.Pipe is synchronous, so this only returns because the bytes are buffered
	n, err := sock.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, sock.Buffered())

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 4)
		if _, err := io.ReadFull(server, buf); err != nil {
			received <- err.Error()
			return
		}
		received <- string(buf)
		_, _ = server.Write([]byte("pong"))
	}()

	buf := make([]byte, 4)
	_, err = io.ReadFull(sock, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
	assert.Equal(t, "ping", <-received)
	assert.Zero(t, sock.Buffered())
}

func TestBufferedSocketFlushBefore(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	sock := newBufferedSocket(client)

	_, err := sock.Write([]byte("alert"))
	require.NoError(t, err)

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 5)
		_, _ = io.ReadFull(server, buf)
		received <- string(buf)
	}()

	require.NoError(t, sock.flushBefore(time.Now().Add(time.Second)))
	assert.Equal(t, "alert", <-received)
	assert.Zero(t, sock.Buffered())
}

func TestBufferedSocketInterruptsBlockedWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		interrupt func(*bufferedSocket) error
		wantErr   error
	}{
		{
			name:      "deadline",
			interrupt: func(s *bufferedSocket) error { return s.SetDeadline(time.Now()) },
			wantErr:   os.ErrDeadlineExceeded,
		},
		{
			name:      "write_deadline",
			interrupt: func(s *bufferedSocket) error { return s.SetWriteDeadline(time.Now()) },
			wantErr:   os.ErrDeadlineExceeded,
		},
		{
			name:      "close",
			interrupt: func(s *bufferedSocket) error { return s.Close() },
			wantErr:   io.ErrClosedPipe,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// nothing reads the server side, so the write blocks once the buffer fills
			client, server := net.Pipe()
			t.Cleanup(func() {
				_ = client.Close()
				_ = server.Close()
			})
			sock := newBufferedSocket(client)

			written := make(chan error, 1)
			go func() {
				_, err := sock.Write(make([]byte, 4*socketBufferSize))
				written <- err
			}()
			time.Sleep(50 * time.Millisecond)

			interrupted := make(chan error, 1)
			go func() { interrupted <- tc.interrupt(sock) }()

			select {
			case err := <-interrupted:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("interrupt waited on the blocked write")
			}
			select {
			case err := <-written:
				require.ErrorIs(t, err, tc.wantErr)
			case <-time.After(5 * time.Second):
				t.Fatal("write still blocked")
			}
		})
	}
}

type scriptedConn struct {
	net.Conn

	reads  []readResult
	writes []error
	wrote  []byte
}

type readResult struct {
	data string
	err  error
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if len(c.reads) == 0 {
		return 0, io.EOF
	}
	r := c.reads[0]
	c.reads = c.reads[1:]
	return copy(p, r.data), r.err
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if len(c.writes) > 0 {
		err := c.writes[0]
		c.writes = c.writes[1:]
		if err != nil {
			// partial write before the failure
			n := len(p) / 2
			c.wrote = append(c.wrote, p[:n]...)
			return n, err
		}
	}
	c.wrote = append(c.wrote, p...)
	return len(p), nil
}

func TestEINTRConnPropagatesOtherErrors(t *testing.T) {
	t.Parallel()

	conn := &scriptedConn{reads: []readResult{{err: io.ErrClosedPipe}}}
	n, err := eintrConn{Conn: conn}.Read(make([]byte, 8))
	assert.Zero(t, n)
	require.ErrorIs(t, err, io.ErrClosedPipe)

	conn = &scriptedConn{writes: []error{io.ErrClosedPipe}}
	n, err = eintrConn{Conn: conn}.Write([]byte("abcd"))
	assert.Equal(t, 2, n)
	require.ErrorIs(t, err, io.ErrClosedPipe)
}
