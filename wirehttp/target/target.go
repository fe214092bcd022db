package target

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/idna"
)

var (
	ErrInvalidURL   = errors.New("invalid url")
	ErrRegexFailure = errors.New("url pattern failed to compile")
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
	schemeFTP   = "ftp"
)

// urlPattern captures scheme, authority, route, query; a trailing fragment is dropped.
const urlPattern = `^([A-Za-z][A-Za-z0-9+.\-]*)://([^/?#]*)(/[^?#]*)?(?:\?([^#]*))?(?:#.*)?$`

var compileURLPattern = sync.OnceValues(func() (*regexp.Regexp, error) {
	return regexp.Compile(urlPattern)
})

// URL is an absolute URL reduced to the parts needed to open a connection and
// address a request.
type URL struct {
	Scheme string
	Domain string // lower-case ASCII form, IPv6 literals without brackets
	Port   int
	Route  string // always starts with "/"
	Query  string // without the leading "?"
}

// Parse parses an absolute URL of the form scheme://domain[:port]/route?query.
// The port is derived from the scheme unless given explicitly; unknown schemes fail.
func Parse(raw string) (*URL, error) {
	re, err := compileURLPattern()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegexFailure, err)
	}

	m := re.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, fmt.Errorf("%w: %q does not match scheme://domain/route", ErrInvalidURL, raw)
	}
	scheme := strings.ToLower(m[1])
	authority, route, query := m[2], m[3], m[4]

	port, ok := DefaultPort(scheme)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, scheme)
	}

	domain, explicitPort, err := splitAuthority(authority)
	if err != nil {
		return nil, err
	}
	if explicitPort != 0 {
		port = explicitPort
	}
	if route == "" {
		route = "/"
	}

	return &URL{
		Scheme: scheme,
		Domain: domain,
		Port:   port,
		Route:  route,
		Query:  query,
	}, nil
}

// DefaultPort returns the well-known port for a scheme.
func DefaultPort(scheme string) (int, bool) {
	switch strings.ToLower(scheme) {
	case schemeHTTP:
		return 80, true
	case schemeHTTPS:
		return 443, true
	case schemeFTP:
		return 21, true
	default:
		return 0, false
	}
}

// splitAuthority separates host and optional port, normalizing the host.
func splitAuthority(authority string) (string, int, error) {
	if authority == "" {
		return "", 0, fmt.Errorf("%w: no domain in url", ErrInvalidURL)
	} else if strings.Contains(authority, "@") {
		return "", 0, fmt.Errorf("%w: userinfo is not supported", ErrInvalidURL)
	}

	host := authority
	var portStr string
	if strings.HasPrefix(authority, "[") {
		end := strings.Index(authority, "]")
		if end < 0 {
			return "", 0, fmt.Errorf("%w: unterminated IPv6 literal", ErrInvalidURL)
		}
		host = authority[1:end]
		rest := authority[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", 0, fmt.Errorf("%w: unexpected %q after IPv6 literal", ErrInvalidURL, rest)
			}
			portStr = rest[1:]
		}
		if net.ParseIP(host) == nil {
			return "", 0, fmt.Errorf("%w: bad IPv6 literal %q", ErrInvalidURL, host)
		}
	} else if idx := strings.LastIndexByte(authority, ':'); idx >= 0 {
		host = authority[:idx]
		portStr = authority[idx+1:]
	}

	var port int
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return "", 0, fmt.Errorf("%w: bad port %q", ErrInvalidURL, portStr)
		}
		port = p
	}

	if host == "" {
		return "", 0, fmt.Errorf("%w: no domain in url", ErrInvalidURL)
	} else if net.ParseIP(host) != nil {
		return host, port, nil
	}

	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", 0, fmt.Errorf("%w: domain %q: %v", ErrInvalidURL, host, err)
	}
	return ascii, port, nil
}

// UsesTLS reports whether the scheme is carried over TLS.
func (u *URL) UsesTLS() bool { return u.Scheme == schemeHTTPS }

// Address returns the dialable host:port.
func (u *URL) Address() string {
	return net.JoinHostPort(u.Domain, strconv.Itoa(u.Port))
}

// RequestURI returns the origin-form request target (route plus query).
func (u *URL) RequestURI() string {
	if u.Query == "" {
		return u.Route
	}
	return u.Route + "?" + u.Query
}

// HostHeader returns the Host header value, omitting the port when it is the scheme default.
func (u *URL) HostHeader() string {
	host := u.Domain
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if def, ok := DefaultPort(u.Scheme); ok && def == u.Port {
		return host
	}
	return host + ":" + strconv.Itoa(u.Port)
}

func (u *URL) String() string {
	return u.Scheme + "://" + u.HostHeader() + u.RequestURI()
}
