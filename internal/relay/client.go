package relay

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
)

const (
	defaultMaxRetries = 2 // 3 total attempts
	defaultTimeout    = 3 * time.Second
	defaultBackoff    = 200 * time.Millisecond
)

// #region client-struct
// Client publishes fall events to a remote EventSink.
type Client struct {
	conn       *grpc.ClientConn
	svc        EventSinkClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	clock      timeutil.Clock
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each Publish attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d.
func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) { c.backoff = d }
}

// WithClock replaces the clock used for retry delays.
func WithClock(clock timeutil.Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// #endregion client-struct

// #region constructor
// NewClient connects to the EventSink at addr.
func NewClient(addr string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := newClient(NewEventSinkClient(conn), opts)
	c.conn = conn
	return c, nil
}

// NewClientWithService creates a Client with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewClientWithService(svc EventSinkClient, opts ...ClientOption) *Client {
	return newClient(svc, opts)
}

func newClient(svc EventSinkClient, opts []ClientOption) *Client {
	c := &Client{
		svc:        svc,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		clock:      timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection, if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region publish
// Publish sends ev to the sink, retrying transient failures.
func (c *Client) Publish(ctx context.Context, ev state.FallEvent) error {
	req, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.clock.Sleep(c.backoff * time.Duration(attempt))
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish event %s: %w", ev.ID, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		_, err := c.svc.Publish(callCtx, req)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return fmt.Errorf("publish event %s: %w", ev.ID, lastErr)
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// #endregion publish
