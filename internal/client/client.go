// Package client implements the YDL client: a connection to the broker
// that offers blocking Send and Receive calls to the host process while
// hiding all reconnection behind them.
package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sberkun/ydl/internal/log"
	"github.com/sberkun/ydl/internal/wire"
)

// DefaultAddress is the broker endpoint a Client dials when none is given.
const DefaultAddress = "127.0.0.1:5001"

const (
	dialTimeout  = 5 * time.Second
	minBackoff   = 200 * time.Millisecond
	maxBackoff   = 1 * time.Second
	inboxSize    = 256
)

// ErrClosed is returned by Send and Receive once the client has been torn
// down with Close.
var ErrClosed = errors.New("client: closed")

// Config holds client construction options.
type Config struct {
	// Address overrides the default broker endpoint.
	Address string
}

// DefaultConfig returns the client's default configuration.
func DefaultConfig() Config {
	return Config{Address: DefaultAddress}
}

// Client is a blocking, auto-reconnecting connection to a YDL broker.
type Client struct {
	addr     string
	channels []string // immutable once constructed

	mu            sync.Mutex // serializes writes to nc and guards the fields below
	nc            net.Conn
	reconnecting  bool
	reconnectDone chan struct{} // non-nil and open while a redial is in flight

	inbox chan wire.Message

	closed    chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// New constructs a client subscribed to the given channels against the
// default broker address, blocking until the initial connection and
// subscription declaration succeed.
func New(channels ...string) *Client {
	return NewWithConfig(DefaultConfig(), channels...)
}

// NewWithConfig is like New but allows overriding the broker address.
func NewWithConfig(cfg Config, channels ...string) *Client {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		addr:     cfg.Address,
		channels: append([]string(nil), channels...),
		inbox:    make(chan wire.Message, inboxSize),
		closed:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	nc := c.dialUntilConnected()
	if nc != nil {
		c.nc = nc
		go c.readLoop(nc)
	}
	return c
}

// Channels returns the client's declared subscription set.
func (c *Client) Channels() []string {
	return append([]string(nil), c.channels...)
}

// Send encodes and writes one message. Transport failures are invisible to
// the caller: the client reconnects, re-declares its subscriptions, and
// retries the send until it succeeds. Only a local encode error (including
// publishing to the reserved subscription channel) is returned.
func (c *Client) Send(channel string, args ...any) error {
	if channel == wire.SubscribeChannel {
		return &wire.EncodeError{Err: errors.New("channel \"" + wire.SubscribeChannel + "\" is reserved")}
	}
	msg := wire.New(channel, args...)

	for {
		if c.isClosed() {
			return ErrClosed
		}

		c.mu.Lock()
		nc := c.nc
		var writeErr error
		if nc == nil {
			writeErr = errNotConnected
		} else {
			writeErr = wire.WriteFrame(nc, msg)
		}
		c.mu.Unlock()

		if writeErr == nil {
			return nil
		}

		var encErr *wire.EncodeError
		if errors.As(writeErr, &encErr) {
			return writeErr
		}

		c.reconnectFrom(nc)
	}
}

// Receive returns the next message addressed to one of this client's
// subscribed channels, blocking until one is available. Messages queued
// before Receive is called are drained first, in FIFO order. Transport
// failures are handled transparently by reconnecting and resuming reads.
func (c *Client) Receive() (wire.Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
	}

	select {
	case msg := <-c.inbox:
		return msg, nil
	default:
	}
	return wire.Message{}, ErrClosed
}

// Close tears the client down. Any in-flight Receive either drains a
// queued message or returns ErrClosed; Send returns ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		c.mu.Lock()
		if c.nc != nil {
			c.nc.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var errNotConnected = errors.New("client: not currently connected")

// readLoop reads frames off nc into the inbox until it errors, then hands
// off to reconnection. It exits for good once the client is closed.
func (c *Client) readLoop(nc net.Conn) {
	for {
		msg, err := wire.ReadFrame(nc)
		if err != nil {
			if !c.isClosed() {
				log.Debug("client: read error, reconnecting", "error", err.Error())
				c.reconnectFrom(nc)
			}
			return
		}

		select {
		case c.inbox <- msg:
		case <-c.closed:
			return
		}
	}
}

// reconnectFrom re-establishes the connection if nc is still the live one
// (a concurrent caller may have already replaced it), then re-declares the
// subscription set and starts a fresh reader. Send's write path and
// readLoop's read path can both observe the same dead nc at once; only the
// first caller actually redials, the rest wait for it and then return
// without touching the transport themselves, so exactly one fresh
// connection and one readLoop goroutine ever comes out of a given failure.
func (c *Client) reconnectFrom(nc net.Conn) {
	c.mu.Lock()
	if c.nc != nc {
		c.mu.Unlock()
		return
	}
	if c.reconnecting {
		done := c.reconnectDone
		c.mu.Unlock()
		<-done
		return
	}
	c.reconnecting = true
	done := make(chan struct{})
	c.reconnectDone = done
	c.mu.Unlock()

	if nc != nil {
		nc.Close()
	}

	fresh := c.dialUntilConnected()

	c.mu.Lock()
	if fresh != nil {
		c.nc = fresh
	}
	c.reconnecting = false
	c.reconnectDone = nil
	c.mu.Unlock()
	close(done)

	if fresh == nil {
		return // client was closed while reconnecting
	}
	go c.readLoop(fresh)
}

// dialUntilConnected dials the broker and sends the subscription
// declaration, retrying with bounded backoff until it succeeds or the
// client is closed. Returns nil only when the client was closed.
func (c *Client) dialUntilConnected() net.Conn {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minBackoff
	b.MaxInterval = maxBackoff

	nc, err := backoff.Retry(c.ctx, func() (net.Conn, error) {
		conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
		if err != nil {
			return nil, err
		}
		if err := c.declareSubscription(conn); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(0), backoff.WithMaxElapsedTime(0))

	if err != nil {
		return nil // only possible when c.ctx was canceled by Close
	}
	return nc
}

func (c *Client) declareSubscription(nc net.Conn) error {
	args := make([]any, len(c.channels))
	for i, ch := range c.channels {
		args[i] = ch
	}
	return wire.WriteFrame(nc, wire.New(wire.SubscribeChannel, args...))
}
