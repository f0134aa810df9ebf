package ferresdb

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ferres-db/ferresdb-go/internal/logging"
)

// Client is a FerresDB client.
// It is safe for concurrent use; configuration is read-only after construction.
//
// The client uses an optimized HTTP transport with:
//   - Connection pooling (100 idle connections, 10 per host)
//   - HTTP/2 support (automatic for HTTPS)
//   - Reasonable timeouts for dial, TLS handshake, and idle connections
//   - Keep-alive for connection reuse
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
	logger     *zap.Logger
	metrics    *metrics
	dialer     *websocket.Dialer

	// sleep waits between retry attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new client from cfg.
//
// Example:
//
//	client, err := ferresdb.NewClient(ferresdb.DefaultConfig("https://db.example.com"),
//	    ferresdb.WithLogger(logger),
//	)
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	co := &clientOptions{}
	for _, opt := range opts {
		opt(co)
	}

	// Default HTTP client with optimized transport settings
	httpClient := co.httpClient
	if httpClient == nil {
		transport := &http.Transport{
			// Connection pooling
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     0, // No limit
			IdleConnTimeout:     90 * time.Second,

			// Timeouts
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 0, // Per-attempt timeout is enforced through the request context
			ExpectContinueTimeout: 1 * time.Second,

			ForceAttemptHTTP2: true,
		}

		httpClient = &http.Client{
			Timeout:   0,
			Transport: transport,
		}
	}

	logger := co.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := co.dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	m, err := newMetrics(co.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:        cfg,
		logger:     logger.With(zap.String("base_url", cfg.BaseURL)),
		metrics:    m,
		dialer:     dialer,
		sleep:      sleepContext,
	}, nil
}

// NewClientFromConfig creates a client whose logger is built from cfg.Logging.
// Options are applied after the configured logger, so WithLogger still wins.
func NewClientFromConfig(cfg Config, opts ...ClientOption) (*Client, error) {
	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: logging.FileOptions{
			Path:       cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAge,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	return NewClient(cfg, append([]ClientOption{WithLogger(logger)}, opts...)...)
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// HTTPClient returns the underlying HTTP client.
// This can be useful for advanced configuration or testing.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// resolve normalizes path to an absolute URL under the base address.
func (c *Client) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// streamURL converts the base address to the streaming endpoint, carrying the
// credential as a query parameter.
func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.resolve("/ws"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("token", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// collectionPath builds /collections/{name}[/suffix...] with escaped segments.
func collectionPath(name string, suffix ...string) string {
	var b strings.Builder
	b.WriteString("/collections/")
	b.WriteString(url.PathEscape(name))
	for _, s := range suffix {
		b.WriteByte('/')
		b.WriteString(s)
	}
	return b.String()
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
