package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultConnectTimeout is the maximum time to wait for the initial connection.
const DefaultConnectTimeout = 5 * time.Second

// DispatchChannel is the pub/sub channel the dispatcher listens on for
// wake-up signals after a reconciliation moves slots around.
const DispatchChannel = "dispatch:signal"

// Config holds the configuration for creating a Valkey client.
type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client wraps the valkey-go client with the locking and signaling helpers
// the scheduling service needs. Create via NewClient, pass as a dependency.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient creates a connected Valkey client. The caller owns Close.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Client{inner: inner, keyPrefix: prefix}, nil
}

// Inner returns the underlying valkey-go client for raw commands.
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

// Close closes the Valkey connection.
func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key constructs a prefixed key from the given parts.
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

// AcquireLock takes a best-effort distributed lock (SET NX EX). Returns
// false when another holder has it or Valkey is unreachable; callers decide
// whether that means "skip" or "conflict".
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	res := c.inner.Do(ctx, c.inner.B().Set().Key(c.Key(key)).Value("1").Nx().Ex(ttl).Build())
	return res.Error() == nil
}

// ReleaseLock drops a lock taken with AcquireLock.
func (c *Client) ReleaseLock(ctx context.Context, key string) {
	_ = c.inner.Do(ctx, c.inner.B().Del().Key(c.Key(key)).Build())
}

// SignalDispatch wakes dispatcher instances subscribed to DispatchChannel.
func (c *Client) SignalDispatch(ctx context.Context) {
	_ = c.inner.Do(ctx, c.inner.B().Publish().Channel(c.Key(DispatchChannel)).Message("1").Build())
}

// SubscribeDispatch blocks receiving dispatch signals, invoking onSignal per
// message, until ctx is cancelled.
func (c *Client) SubscribeDispatch(ctx context.Context, onSignal func()) error {
	return c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(c.Key(DispatchChannel)).Build(), func(msg valkeylib.PubSubMessage) {
		onSignal()
	})
}

// Ping tests the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsNil checks if an error represents a Valkey NIL response.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
