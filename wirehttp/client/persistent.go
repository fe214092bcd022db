package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-appsec/wirehttp/wirehttp/message"
	"github.com/go-appsec/wirehttp/wirehttp/target"
	"github.com/go-appsec/wirehttp/wirehttp/transcript"
	"github.com/go-appsec/wirehttp/wirehttp/transport"
)

// Version is reported in the default User-Agent.
const Version = "0.4.0"

// DefaultUserAgent is sent unless Options.UserAgent or a per-call header overrides it.
const DefaultUserAgent = "wirehttp/" + Version

var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrHostMismatch      = errors.New("request does not target the connected host")
	ErrConnectionClosed  = errors.New("connection closed")
)

// Recorder receives every completed exchange.
type Recorder interface {
	Record(e *transcript.Exchange) error
}

// Options configures Dial.
type Options struct {
	// Transport configures the TLS connection. Its Logger defaults to Logger.
	Transport transport.Options

	// UserAgent replaces DefaultUserAgent when non-empty.
	UserAgent string

	// Headers are sent with every request after User-Agent. Per-call headers
	// with the same name win.
	Headers message.Headers

	// ReadTimeout and WriteTimeout bound each response read and request write.
	// A context deadline that is earlier takes precedence. Zero means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Recorder Recorder
	Logger   *zap.Logger
}

// Persistent issues sequential requests over a single TLS connection to one
// host. Calls are serialized; each response is read completely before the next
// request is written.
type Persistent struct {
	url      *target.URL
	conn     *transport.Conn
	br       *bufio.Reader
	decoder  message.Decoder
	defaults message.Headers
	opts     Options
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	wbuf   bytes.Buffer
}

// Dial opens a connection to the host of rawURL, which must be an https URL.
// The TLS handshake runs with the first request.
func Dial(ctx context.Context, rawURL string, opts Options) (*Persistent, error) {
	u, err := target.Parse(rawURL)
	if err != nil {
		return nil, err
	} else if !u.UsesTLS() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	topts := opts.Transport
	if topts.Logger == nil {
		topts.Logger = logger
	}

	conn, err := transport.Open(ctx, u.Domain, u.Port, topts)
	if err != nil {
		return nil, err
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	p := &Persistent{
		url:      u,
		conn:     conn,
		br:       bufio.NewReader(conn),
		decoder:  message.Decoder{Logger: logger},
		defaults: message.Headers{{Name: "User-Agent", Value: ua}}.Merge(opts.Headers),
		opts:     opts,
		logger:   logger,
	}
	logger.Debug("client/dial: connection opened", zap.String("conn", conn.ID()), zap.String("host", u.Domain), zap.Int("port", u.Port))
	return p, nil
}

// ConnID returns the transport connection identifier.
func (p *Persistent) ConnID() string { return p.conn.ID() }

// URL returns the URL the connection was dialed with.
func (p *Persistent) URL() target.URL { return *p.url }

// DefaultHeaders returns a copy of the headers sent with every request.
func (p *Persistent) DefaultHeaders() message.Headers { return p.defaults.Clone() }

// Closed reports whether the connection can no longer carry requests.
func (p *Persistent) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Get issues a GET request.
func (p *Persistent) Get(ctx context.Context, rawURL string, headers message.Headers) (*message.Response, error) {
	return p.Request(ctx, message.MethodGet, rawURL, headers, nil)
}

// Post issues a POST request with body.
func (p *Persistent) Post(ctx context.Context, rawURL string, headers message.Headers, body []byte) (*message.Response, error) {
	return p.Request(ctx, message.MethodPost, rawURL, headers, body)
}

// Request builds a request for rawURL, merging the default headers under the
// given ones, and performs it.
func (p *Persistent) Request(ctx context.Context, method message.Method, rawURL string, headers message.Headers, body []byte) (*message.Response, error) {
	u, err := target.Parse(rawURL)
	if err != nil {
		return nil, err
	} else if !p.sameOrigin(u) {
		return nil, fmt.Errorf("%w: %s (connected to %s)", ErrHostMismatch, u.Address(), p.url.Address())
	}

	req, err := message.NewRequest(method).
		Route(u.RequestURI()).
		Host(u.HostHeader()).
		Headers(p.defaults.Merge(headers)).
		Body(body).
		Build()
	if err != nil {
		return nil, err
	}
	return p.Do(ctx, req)
}

func (p *Persistent) sameOrigin(u *target.URL) bool {
	return u.Scheme == p.url.Scheme && u.Domain == p.url.Domain && u.Port == p.url.Port
}

// Do sends req as is and reads its response. req.Host must name the connected
// host. Interim 1xx responses other than 101 are skipped.
func (p *Persistent) Do(ctx context.Context, req *message.Request) (*message.Response, error) {
	if !strings.EqualFold(req.Host, p.url.HostHeader()) {
		return nil, fmt.Errorf("%w: host %q (connected to %s)", ErrHostMismatch, req.Host, p.url.HostHeader())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrConnectionClosed
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	// cancellation interrupts blocked socket operations
	stop := context.AfterFunc(ctx, func() { _ = p.conn.SetDeadline(time.Now()) })
	defer stop()

	start := time.Now()
	if err := p.conn.Handshake(ctx); err != nil {
		p.invalidate("handshake failed")
		return nil, ctxErr(ctx, err)
	}

	if err := p.conn.SetWriteDeadline(deadline(ctx, p.opts.WriteTimeout)); err != nil {
		p.invalidate("set write deadline failed")
		return nil, fmt.Errorf("set write deadline: %w", err)
	} else if err := p.canceled(ctx); err != nil {
		return nil, err
	}
	wire := req.AppendWire(&p.wbuf)
	if _, err := p.conn.Write(wire); err != nil {
		p.invalidate("write failed")
		return nil, fmt.Errorf("send request: %w", ctxErr(ctx, err))
	}

	if err := p.conn.SetReadDeadline(deadline(ctx, p.opts.ReadTimeout)); err != nil {
		p.invalidate("set read deadline failed")
		return nil, fmt.Errorf("set read deadline: %w", err)
	} else if err := p.canceled(ctx); err != nil {
		return nil, err
	}
	resp, err := p.readResponse(req.Method)
	if err != nil {
		p.invalidate("read failed")
		return nil, fmt.Errorf("read response: %w", ctxErr(ctx, err))
	}
	took := time.Since(start)

	p.logger.Debug("client/request: complete",
		zap.String("conn", p.conn.ID()),
		zap.String("method", string(req.Method)),
		zap.String("route", req.Route),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(resp.Body)),
		zap.Duration("took", took))

	if p.opts.Recorder != nil {
		exchange := &transcript.Exchange{
			Time:     start.UTC(),
			ConnID:   p.conn.ID(),
			Method:   string(req.Method),
			URL:      "https://" + req.Host + req.Route,
			Request:  bytes.Clone(wire),
			Response: resp,
			Duration: took,
		}
		if err := p.opts.Recorder.Record(exchange); err != nil {
			p.logger.Warn("client/request: record exchange", zap.String("conn", p.conn.ID()), zap.Error(err))
		}
	}

	if resp.StatusCode == 101 {
		p.invalidate("protocol switched")
	} else if !resp.KeepAlive() {
		p.invalidate("server closes connection")
	}
	return resp, nil
}

func (p *Persistent) readResponse(method message.Method) (*message.Response, error) {
	for {
		resp, err := p.decoder.ReadResponse(p.br, method)
		if err != nil {
			return nil, err
		} else if resp.StatusCode >= 200 || resp.StatusCode == 101 {
			return resp, nil
		}
		p.logger.Debug("client/request: skipping interim response",
			zap.String("conn", p.conn.ID()), zap.Int("status", resp.StatusCode))
	}
}

// canceled invalidates the connection once ctx is done. A deadline set after
// the cancellation fired would otherwise replace the one that interrupts I/O.
func (p *Persistent) canceled(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		p.invalidate("canceled")
	}
	return err
}

// invalidate closes the transport; later calls fail with ErrConnectionClosed.
// The caller must hold p.mu.
func (p *Persistent) invalidate(reason string) {
	if p.closed {
		return
	}
	p.closed = true
	_ = p.conn.Close()
	p.logger.Debug("client/request: connection invalidated", zap.String("conn", p.conn.ID()), zap.String("reason", reason))
}

// Close closes the connection. It is safe to call more than once.
func (p *Persistent) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

// deadline returns the earlier of now+timeout and the context deadline. The
// zero time means no deadline.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

// ctxErr attaches the context error when cancellation caused err.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	return err
}
