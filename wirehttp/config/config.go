package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/go-appsec/wirehttp/wirehttp/message"
)

const (
	// EnvPrefix marks environment variables read by Load. A double underscore
	// separates nested keys: WIREHTTP_HEADERS__X_TRACE sets headers.x_trace.
	EnvPrefix = "WIREHTTP_"

	DefaultLogLevel         = "info"
	DefaultDialTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 30 * time.Second
	DefaultWriteTimeout     = 30 * time.Second
)

// Config holds the wirehttp client settings.
type Config struct {
	// UserAgent overrides the client default when set.
	UserAgent string `koanf:"user_agent"`
	LogLevel  string `koanf:"log_level"`
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `koanf:"ca_file"`

	DialTimeout      time.Duration `koanf:"dial_timeout"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	ReadTimeout      time.Duration `koanf:"read_timeout"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`

	// Headers are sent with every request.
	Headers map[string]string `koanf:"headers"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         DefaultLogLevel,
		DialTimeout:      DefaultDialTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadTimeout:      DefaultReadTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		Headers:          map[string]string{},
	}
}

// Load layers the defaults, the TOML file at path (skipped when path is empty)
// and WIREHTTP_ environment variables, later sources winning.
// A path that does not exist returns an error matching os.ErrNotExist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		} else if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps WIREHTTP_READ_TIMEOUT to read_timeout and
// WIREHTTP_HEADERS__X_TRACE to headers.x_trace.
func envKey(s string) string {
	base := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(base, "__", ".")
}

// applyDefaults fills in zero values with defaults
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":      c.DialTimeout,
		"handshake_timeout": c.HandshakeTimeout,
		"read_timeout":      c.ReadTimeout,
		"write_timeout":     c.WriteTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// HeaderList returns Headers sorted by name. Header names from environment
// variables use '-' where the variable had '_'.
func (c *Config) HeaderList() message.Headers {
	names := bulk.MapKeysSlice(c.Headers)
	slices.Sort(names)

	headers := make(message.Headers, 0, len(names))
	for _, name := range names {
		headers.Set(strings.ReplaceAll(name, "_", "-"), c.Headers[name])
	}
	return headers
}

// RootCAs returns nil when no CA file is configured, meaning the system roots.
// Otherwise it returns the system roots plus the certificates in CAFile.
func (c *Config) RootCAs() (*x509.CertPool, error) {
	if c.CAFile == "" {
		return nil, nil
	}

	pemData, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("ca file %s: no certificates found", c.CAFile)
	}
	return pool, nil
}
