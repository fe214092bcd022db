package transport

import (
	"bufio"
	"net"
	"sync"
	"time"
)

const socketBufferSize = 16 << 10

// bufferedSocket sits between the TLS engine and the TCP connection. Ciphertext
// written by the engine is held until the engine next needs to read or the
// owner flushes. Deadlines and Close go straight to the connection and never
// wait on a blocked write, so they can always interrupt one.
type bufferedSocket struct {
	net.Conn

	r   *bufio.Reader
	wmu sync.Mutex
	w   *bufio.Writer
}

func newBufferedSocket(conn net.Conn) *bufferedSocket {
	rc := eintrConn{Conn: conn}
	return &bufferedSocket{
		Conn: conn,
		r:    bufio.NewReaderSize(rc, socketBufferSize),
		w:    bufio.NewWriterSize(rc, socketBufferSize),
	}
}

// Read flushes pending ciphertext before reading, so a peer waiting on our
// handshake message is never left waiting while we wait on it.
func (s *bufferedSocket) Read(p []byte) (int, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}
	return s.r.Read(p)
}

func (s *bufferedSocket) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Write(p)
}

// Flush writes all buffered ciphertext to the connection.
func (s *bufferedSocket) Flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Flush()
}

// flushBefore flushes buffered ciphertext with a write deadline of t. The
// caller must know no other write is in flight.
func (s *bufferedSocket) flushBefore(t time.Time) error {
	if err := s.Conn.SetWriteDeadline(t); err != nil {
		return err
	}
	return s.Flush()
}

// Buffered reports the number of ciphertext bytes waiting to be flushed.
func (s *bufferedSocket) Buffered() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Buffered()
}

// Close closes the connection without flushing. Unsent ciphertext is dropped.
func (s *bufferedSocket) Close() error {
	return s.Conn.Close()
}

// eintrConn retries reads and writes interrupted by a signal.
type eintrConn struct {
	net.Conn
}

func (c eintrConn) Read(p []byte) (int, error) {
	for {
		n, err := c.Conn.Read(p)
		if n == 0 && err != nil && isInterrupted(err) {
			continue
		}
		return n, err
	}
}

func (c eintrConn) Write(p []byte) (int, error) {
	var written int
	for written < len(p) {
		n, err := c.Conn.Write(p[written:])
		written += n
		if err != nil {
			if isInterrupted(err) {
				continue
			}
			return written, err
		}
	}
	return written, nil
}
