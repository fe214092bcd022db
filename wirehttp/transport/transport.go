package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrHandshake covers connection setup failures: dial errors, certificate
	// validation, name mismatch and protocol negotiation.
	ErrHandshake = errors.New("tls handshake failed")
	// ErrUnexpectedEOFDuringHandshake is returned when the peer closes the
	// connection before the handshake completes.
	ErrUnexpectedEOFDuringHandshake = errors.New("unexpected eof during tls handshake")
	// ErrIO wraps socket and TLS record failures after the handshake.
	ErrIO = errors.New("transport i/o error")
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("transport closed")
)

// State is the lifecycle state of a Conn. States only move forward.
type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Options configures Open.
type Options struct {
	// RootCAs replaces the system trust store when set.
	RootCAs *x509.CertPool

	// DialTimeout bounds the TCP connect. Zero means no timeout beyond ctx.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the handshake, whether started by Handshake or
	// implicitly by Read or Write. Zero means no timeout.
	HandshakeTimeout time.Duration

	// Logger receives connection lifecycle events. Nil discards them.
	Logger *zap.Logger
}

// Conn is an encrypted byte stream to one host. Plaintext written to it is
// encrypted and sent; Read returns decrypted plaintext. A Conn is safe for one
// reader and one writer at a time.
type Conn struct {
	id               string
	host             string
	addr             string
	logger           *zap.Logger
	handshakeTimeout time.Duration

	sock *bufferedSocket
	tls  *tls.Conn

	state      atomic.Int32
	peerClosed atomic.Bool
	writing    atomic.Int32
}

// closeNotifyTimeout bounds how long Close waits to deliver close-notify.
const closeNotifyTimeout = 2 * time.Second

// Open connects to host:port and prepares a TLS client session for host. The
// handshake itself runs on the first Read or Write, or through Handshake.
func Open(ctx context.Context, host string, port int, opts Options) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Conn{
		id:               uuid.NewString(),
		host:             host,
		addr:             net.JoinHostPort(host, strconv.Itoa(port)),
		logger:           logger,
		handshakeTimeout: opts.HandshakeTimeout,
	}
	c.state.Store(int32(StateConnecting))

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state.Store(int32(StateClosed))
		c.logger.Debug("transport/open: dial failed", zap.String("conn", c.id), zap.String("addr", c.addr), zap.Error(err))
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrHandshake, c.addr, err)
	}

	c.sock = newBufferedSocket(raw)
	c.tls = tls.Client(c.sock, &tls.Config{
		ServerName: host,
		RootCAs:    opts.RootCAs,
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"http/1.1"},
	})
	c.state.Store(int32(StateHandshaking))

	c.logger.Debug("transport/open: connected", zap.String("conn", c.id), zap.String("addr", c.addr))
	return c, nil
}

// ID returns the identifier used to correlate logs and transcripts.
func (c *Conn) ID() string { return c.id }

// Host returns the server name the session was opened for.
func (c *Conn) Host() string { return c.host }

// Addr returns the dialed host:port.
func (c *Conn) Addr() string { return c.addr }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// PeerClosed reports whether the peer ended the stream (close-notify or EOF).
func (c *Conn) PeerClosed() bool { return c.peerClosed.Load() }

// ConnectionState returns TLS details. It is only meaningful once Ready.
func (c *Conn) ConnectionState() tls.ConnectionState { return c.tls.ConnectionState() }

// Handshake runs the TLS handshake if it has not completed yet, bounded by ctx
// and Options.HandshakeTimeout. A failed handshake closes the connection.
func (c *Conn) Handshake(ctx context.Context) error {
	switch c.State() {
	case StateReady:
		return nil
	case StateClosing, StateClosed:
		return ErrClosed
	}

	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := c.tls.HandshakeContext(ctx); err != nil {
		if c.State() >= StateClosing {
			return ErrClosed
		}
		_ = c.sock.Close()
		c.state.Store(int32(StateClosed))

		err = classifyHandshakeError(err)
		c.logger.Debug("transport/handshake: failed", zap.String("conn", c.id), zap.Error(err))
		return err
	}

	if c.state.CompareAndSwap(int32(StateHandshaking), int32(StateReady)) {
		cs := c.tls.ConnectionState()
		c.logger.Debug("transport/handshake: complete",
			zap.String("conn", c.id),
			zap.String("version", tls.VersionName(cs.Version)),
			zap.String("cipher", tls.CipherSuiteName(cs.CipherSuite)),
			zap.String("alpn", cs.NegotiatedProtocol),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}

func classifyHandshakeError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrUnexpectedEOFDuringHandshake, err)
	}
	return fmt.Errorf("%w: %w", ErrHandshake, err)
}

func (c *Conn) ensureHandshake() error {
	if c.State() == StateReady {
		return nil
	}
	return c.Handshake(context.Background())
}

// Write encrypts p and sends it, completing the handshake first if needed.
// It returns the number of plaintext bytes accepted.
func (c *Conn) Write(p []byte) (int, error) {
	c.writing.Add(1)
	defer c.writing.Add(-1)

	if err := c.ensureHandshake(); err != nil {
		return 0, err
	}

	n, err := c.tls.Write(p)
	if err == nil {
		err = c.sock.Flush()
	}
	if err != nil {
		if c.State() >= StateClosing {
			return n, ErrClosed
		}
		return n, fmt.Errorf("%w: write: %w", ErrIO, err)
	}
	return n, nil
}

// Read returns decrypted plaintext, completing the handshake first if needed.
// When the peer closes the stream, Read returns io.EOF after all buffered
// plaintext has been delivered.
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.ensureHandshake(); err != nil {
		return 0, err
	}

	n, err := c.tls.Read(p)
	if err == nil {
		return n, nil
	} else if errors.Is(err, io.EOF) {
		if !c.peerClosed.Swap(true) {
			c.logger.Debug("transport/read: peer closed", zap.String("conn", c.id))
		}
		return n, io.EOF
	} else if c.State() >= StateClosing {
		return n, ErrClosed
	}
	return n, fmt.Errorf("%w: read: %w", ErrIO, err)
}

// Close sends close-notify when the session is established, then closes the
// socket. Errors while notifying the peer are ignored. Close is idempotent.
//
// Close may be called while a Write is blocked. The socket is then closed
// without close-notify, which unblocks the Write with ErrClosed.
func (c *Conn) Close() error {
	var old State
	for {
		old = State(c.state.Load())
		if old >= StateClosing {
			return nil
		} else if c.state.CompareAndSwap(int32(old), int32(StateClosing)) {
			break
		}
	}

	if old == StateReady && c.writing.Load() == 0 {
		c.notifyClose()
	}
	if err := c.sock.Close(); err != nil {
		c.logger.Debug("transport/close: error", zap.String("conn", c.id), zap.Error(err))
	}
	c.state.Store(int32(StateClosed))
	c.logger.Debug("transport/close: closed", zap.String("conn", c.id))
	return nil
}

func (c *Conn) notifyClose() {
	err := c.tls.CloseWrite()
	if err == nil {
		err = c.sock.flushBefore(time.Now().Add(closeNotifyTimeout))
	}
	if err != nil {
		c.logger.Debug("transport/close: close-notify not sent", zap.String("conn", c.id), zap.Error(err))
	}
}

// SetDeadline sets the read and write deadlines of the underlying socket.
func (c *Conn) SetDeadline(t time.Time) error { return c.tls.SetDeadline(t) }

// SetReadDeadline sets the read deadline of the underlying socket.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.tls.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline of the underlying socket.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.tls.SetWriteDeadline(t) }
