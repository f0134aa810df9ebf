package ferresdb

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// Client Options
// =============================================================================

type clientOptions struct {
	httpClient *http.Client
	logger     *zap.Logger
	registerer prometheus.Registerer
	dialer     *websocket.Dialer
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithHTTPClient sets a custom HTTP client.
// If not set, a default client with sensible timeouts is used.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(l *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithMetrics registers the client's request and stream counters with reg.
// If not set, counters are kept but not exported.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(o *clientOptions) {
		o.registerer = reg
	}
}

// WithDialer sets the dialer used by streaming sessions.
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// =============================================================================
// Call Options
// =============================================================================

type callOptions struct {
	timeout    time.Duration
	maxRetries int
	headers    map[string]string
}

// CallOption overrides client settings for a single operation.
type CallOption func(*callOptions)

// WithTimeout overrides the per-attempt timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries overrides the retry count. Negative values are ignored.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithHeader adds a request header. Authorization is ignored; it is set from
// Config.APIKey only.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// callOptionsFor applies opts over the client defaults.
func (c *Client) callOptionsFor(opts []CallOption) callOptions {
	co := callOptions{
		timeout:    c.cfg.Timeout,
		maxRetries: c.cfg.MaxRetries,
	}
	for _, opt := range opts {
		opt(&co)
	}
	return co
}
