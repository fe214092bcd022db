package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/go-appsec/wirehttp/wirehttp/cli"
	"github.com/go-appsec/wirehttp/wirehttp/cliutil"
	"github.com/go-appsec/wirehttp/wirehttp/message"
)

var methodNames = []string{"GET", "POST", "PUT", "DELETE", "HEAD"}

func Parse(args []string) error {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	fs.SetInterspersed(true)

	var method, data, dataFile, configPath, record, logLevel string
	var headers []string
	var include, decode, noColor bool

	fs.StringVarP(&method, "method", "X", "GET", "request method (GET, POST, PUT, DELETE, HEAD)")
	fs.StringArrayVarP(&headers, "header", "H", nil, "request header 'Name: Value' (repeatable)")
	fs.StringVarP(&data, "data", "d", "", "request body")
	fs.StringVar(&dataFile, "data-file", "", "read request body from file (- for stdin)")
	fs.StringVar(&configPath, "config", "", "TOML config file")
	fs.StringVar(&record, "record", "", "append exchanges to this transcript file")
	fs.BoolVarP(&include, "include", "i", false, "print status line and headers before the body")
	fs.BoolVar(&decode, "decode", true, "undo Content-Encoding (gzip, deflate, zstd) before printing")
	fs.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	fs.BoolVar(&noColor, "no-color", false, "disable colored output")

	fs.Usage = func() {
		_, _ = fmt.Fprint(os.Stderr, `Usage: wirehttp fetch [options] <url> [<url>...]

Send requests over a single TLS connection and print the responses.

All URLs must share the scheme, host, and port of the first one; they are
sent in order, each response read fully before the next request is written.
Only https URLs are supported.

Examples:
  wirehttp fetch https://example.com/
  wirehttp fetch -i https://api.example.com/a https://api.example.com/b
  wirehttp fetch -X POST -H "Content-Type: application/json" -d '{"content":"hi"}' \
      https://discord.com/api/webhooks/<id>/<token>
  wirehttp fetch --record session.wht https://example.com/

Configuration:
  Settings are read from --config (TOML), then WIREHTTP_* environment variables.
  Example: WIREHTTP_READ_TIMEOUT=5s, WIREHTTP_HEADERS__X_API_KEY=secret

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	} else if len(fs.Args()) < 1 {
		fs.Usage()
		return errors.New("at least one url required")
	}

	if noColor {
		cliutil.SetColor(false)
	}

	m, ok := message.ParseMethod(method)
	if !ok {
		return cli.InvalidValueError("method", method, methodNames)
	}

	hdrs, err := parseHeaders(headers)
	if err != nil {
		return err
	}

	if data != "" && dataFile != "" {
		return errors.New("only one of --data or --data-file can be specified")
	}
	body := []byte(data)
	if dataFile != "" {
		if body, err = readBody(dataFile); err != nil {
			return err
		}
	}

	return run(context.Background(), options{
		urls:       fs.Args(),
		method:     m,
		headers:    hdrs,
		body:       body,
		configPath: configPath,
		recordPath: record,
		include:    include,
		decode:     decode,
		logLevel:   logLevel,
		status:     os.Stderr,
	}, os.Stdout)
}

// parseHeaders converts "Name: Value" flags into headers, keeping their order.
func parseHeaders(raw []string) (message.Headers, error) {
	var headers message.Headers
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --header %q: expected 'Name: Value'", h)
		}
		headers.Set(name, strings.TrimSpace(value))
	}
	return headers, nil
}

func readBody(path string) ([]byte, error) {
	if path == "-" {
		return readAllStdin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read --data-file: %w", err)
	}
	return data, nil
}
