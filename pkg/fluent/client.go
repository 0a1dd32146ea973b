// Package fluent is a chainable request builder and executor for the
// Kubernetes HTTP API. A Client holds the cluster base URI, transport, and
// credentials; Requests address built-in or custom resources piecemeal
// (group/version/namespace/type/name/subresource) or through a raw URI, and
// execute buffered or streaming. Watch and exec sessions build on the same
// requests via the watch and exec packages.
package fluent

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-logr/logr"

	"github.com/example/kfl/pkg/scheme"
)

// Credentials mutates outbound requests with authentication material. The
// client delegates unconditionally before a request is sent; how the material
// was obtained is out of scope.
type Credentials interface {
	Apply(req *http.Request) error
}

// BearerToken authenticates with a static bearer token.
type BearerToken string

func (t BearerToken) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+string(t))
	return nil
}

// BasicAuth authenticates with a username and password.
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Client is the shared immutable handle behind every Request: base URI,
// HTTP transport, credentials, scheme, and logger. Safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	creds  Credentials
	scheme *scheme.Scheme
	tls    *tls.Config
	log    logr.Logger
}

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the transport used for plain HTTP execution.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCredentials installs the credential provider applied to every request.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) { c.creds = creds }
}

// WithScheme replaces the default type registry.
func WithScheme(s *scheme.Scheme) Option {
	return func(c *Client) { c.scheme = s }
}

// WithTLSConfig supplies the TLS configuration used both by the default
// transport and by upgraded (SPDY) connections.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tls = cfg }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a Client for the given cluster base URI.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("cluster base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse cluster base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("cluster base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("cluster base URL %q: host is required", baseURL)
	}
	c := &Client{
		base:   u,
		scheme: scheme.Default(),
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport := http.DefaultTransport
		if c.tls != nil {
			transport = &http.Transport{TLSClientConfig: c.tls.Clone()}
		}
		c.http = &http.Client{Transport: transport}
	}
	return c, nil
}

// Request starts a blank request against this client with GET and JSON
// defaults.
func (c *Client) Request() *Request {
	return &Request{
		c:         c,
		method:    http.MethodGet,
		accept:    "application/json",
		mediaType: "application/json",
		headers:   newPairList(),
		query:     newPairList(),
	}
}

// For starts a request addressed at T's registered resource collection.
// An unregistered T surfaces as an error at execution.
func For[T any](c *Client) *Request {
	r := c.Request()
	var zero T
	info, err := c.scheme.Lookup(&zero)
	if err != nil {
		r.err = fmt.Errorf("resolve resource type: %w", err)
		return r
	}
	r.group = info.GVK.Group
	r.version = info.GVK.Version
	r.resource = info.Path
	return r
}

// BaseURL returns a copy of the cluster base URI.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Scheme returns the type registry the client resolves objects against.
func (c *Client) Scheme() *scheme.Scheme { return c.scheme }

// Logger returns the client's logger.
func (c *Client) Logger() logr.Logger { return c.log }

// Dial opens a raw connection to the host of u, with TLS when the scheme is
// https. Upgraded protocols (exec's SPDY channel) build on this.
func (c *Client) Dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	dialer := &net.Dialer{}
	if u.Scheme != "https" {
		conn, err := dialer.DialContext(ctx, "tcp", host)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", host, err)
		}
		return conn, nil
	}
	cfg := c.tls.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = u.Hostname()
	}
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: cfg}
	conn, err := tlsDialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}
	return conn, nil
}
