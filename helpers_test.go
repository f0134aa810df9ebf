package ferresdb

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferres-db/ferresdb-go/ferresdbtest"
)

// sleepRecorder replaces Client.sleep and records requested delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func()
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig(baseURL)
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = 10 * time.Millisecond
	return cfg
}

// newTestClient creates a client whose retry sleeps are recorded instead of slept.
func newTestClient(t *testing.T, cfg Config, opts ...ClientOption) (*Client, *sleepRecorder) {
	t.Helper()
	c, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

// newMockClient starts a MockServer and a client pointed at it.
func newMockClient(t *testing.T, opts ...ClientOption) (*Client, *ferresdbtest.MockServer, *sleepRecorder) {
	t.Helper()
	server := ferresdbtest.NewMockServer()
	t.Cleanup(server.Close)
	c, rec := newTestClient(t, testConfig(server.URL()), opts...)
	return c, server, rec
}

// newTransportClient creates a client backed by a MockTransport.
func newTransportClient(t *testing.T, cfg Config) (*Client, *ferresdbtest.MockTransport, *sleepRecorder) {
	t.Helper()
	transport := ferresdbtest.NewMockTransport()
	c, rec := newTestClient(t, cfg, WithHTTPClient(transport.Client()))
	return c, transport, rec
}

func createDocs(t *testing.T, c *Client, dim int) {
	t.Helper()
	_, err := c.CreateCollection(context.Background(), CreateCollectionRequest{
		Name:      "docs",
		Dimension: dim,
		Distance:  DistanceCosine,
	})
	require.NoError(t, err)
}

func makePoints(n, dim int) []Point {
	points := make([]Point, n)
	for i := range points {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		points[i] = Point{ID: pointID(i), Vector: vec}
	}
	return points
}

func pointID(i int) string {
	return "p" + strconv.Itoa(i)
}
