package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/go-appsec/wirehttp/wirehttp/client"
	"github.com/go-appsec/wirehttp/wirehttp/cliutil"
	"github.com/go-appsec/wirehttp/wirehttp/config"
	"github.com/go-appsec/wirehttp/wirehttp/logging"
	"github.com/go-appsec/wirehttp/wirehttp/message"
	"github.com/go-appsec/wirehttp/wirehttp/transcript"
	"github.com/go-appsec/wirehttp/wirehttp/transport"
)

type options struct {
	urls       []string
	method     message.Method
	headers    message.Headers
	body       []byte
	configPath string
	recordPath string
	include    bool
	decode     bool
	logLevel   string

	// status receives notes that are not response output. Nil discards them.
	status io.Writer
}

func run(ctx context.Context, opts options, w io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	roots, err := cfg.RootCAs()
	if err != nil {
		return err
	}

	copts := client.Options{
		Transport: transport.Options{
			RootCAs:          roots,
			DialTimeout:      cfg.DialTimeout,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		UserAgent:    cfg.UserAgent,
		Headers:      cfg.HeaderList(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
	}

	if opts.recordPath != "" {
		rec, err := transcript.OpenFile(opts.recordPath)
		if err != nil {
			return err
		}
		defer func() { _ = rec.Close() }()
		copts.Recorder = rec
	}

	conn, err := client.Dial(ctx, opts.urls[0], copts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for i, u := range opts.urls {
		resp, err := conn.Request(ctx, opts.method, u, opts.headers, opts.body)
		if err != nil {
			if i > 0 {
				logger.Warn("fetch: request failed after earlier requests succeeded",
					zap.String("url", u), zap.Int("completed", i), zap.Error(err))
			}
			return fmt.Errorf("%s: %w", u, err)
		}

		if len(opts.urls) > 1 {
			_, _ = fmt.Fprintf(w, "%s %s\n", cliutil.Bold(string(opts.method)), cliutil.ID(u))
		}
		if err := printResponse(w, resp, opts.include, opts.decode); err != nil {
			return err
		}
	}

	if opts.recordPath != "" && opts.status != nil {
		noun := "exchanges"
		if len(opts.urls) == 1 {
			noun = "exchange"
		}
		_, _ = fmt.Fprintln(opts.status, cliutil.Success(fmt.Sprintf("Recorded %d %s to %s", len(opts.urls), noun, opts.recordPath)))
		cliutil.Hint(opts.status, "View with: wirehttp show "+opts.recordPath)
	}
	return nil
}

func printResponse(w io.Writer, resp *message.Response, include, decode bool) error {
	if include {
		_, _ = fmt.Fprintf(w, "%s %s %s\n", resp.Version,
			paintStatus(resp.StatusCode), resp.StatusText)
		printHeaders(w, "Header", resp.Headers)
	}

	body := resp.Body
	if decode {
		decoded, err := resp.DecodedBody()
		if err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		body = decoded
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if len(body) > 0 && body[len(body)-1] != '\n' {
		_, _ = fmt.Fprintln(w)
	}

	if include && len(resp.Trailers) > 0 {
		printHeaders(w, "Trailer", resp.Trailers)
	}
	return nil
}

func printHeaders(w io.Writer, kind string, headers message.Headers) {
	if len(headers) == 0 {
		return
	}
	t := cliutil.NewTable(w)
	t.AppendHeader(table.Row{kind, "Value"})
	for _, h := range headers {
		t.AppendRow(table.Row{h.Name, h.Value})
	}
	t.Render()
	_, _ = fmt.Fprintln(w)
}

func paintStatus(code int) string {
	s := strconv.Itoa(code)
	if !cliutil.ColorEnabled() {
		return s
	}
	return cliutil.StatusColors(code).Sprint(s)
}

func readAllStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
