package broker

import (
	"context"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sberkun/ydl/internal/log"
)

// DefaultAddress is the broker's standalone listen address.
const DefaultAddress = "127.0.0.1:5001"

// statsInterval governs how often Serve logs routing-table and log-buffer
// health while it runs.
const statsInterval = 30 * time.Second

// ListenAndServe binds addr and then serves it. It is a convenience
// wrapper around Serve for the common case where the caller doesn't need
// the listener for anything else (graceful shutdown is via ctx either
// way).
func ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	return Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, routing published
// messages through a fresh Hub. It blocks for the listener's lifetime.
// Every per-connection failure is logged and handled internally; nothing
// it does unwinds Serve.
//
// Serve (via ListenAndServe) is also the embeddable broker: a host process
// that wants to run its own bus locally launches it in a background
// goroutine (go broker.ListenAndServe(ctx, addr)) and connects a client to
// the same address. There is no separate shutdown protocol beyond
// canceling ctx.
func Serve(ctx context.Context, ln net.Listener) error {
	hub := NewHub()
	log.Info("broker: listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		hub.CloseAll()
		return ln.Close()
	})
	g.Go(func() error {
		return acceptLoop(ctx, ln, hub)
	})
	g.Go(func() error {
		return logStats(ctx, hub)
	})

	err := g.Wait()
	if err != nil {
		for _, line := range log.GetBufferedLogs(5) {
			log.Warn("broker: recent log before exit", "line", line)
		}
	}
	return err
}

// logStats periodically reports the routing table's size and the health of
// the in-memory log buffer, for an operator watching the broker's own logs.
func logStats(ctx context.Context, hub *Hub) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := hub.Stats()
			logger := log.With("connections", stats.Connections, "channels", stats.Channels)
			if total, capacity, ok := log.GetBufferStats(); ok {
				logger = logger.With("buffered_logs", total, "buffer_capacity", capacity)
			}
			logger.Info("broker: stats")
		}
	}
}

// acceptRetryCap bounds the exponential backoff acceptLoop applies after a
// transient Accept failure, matching net/http.Server.Serve's tempDelay.
const acceptRetryCap = 1 * time.Second

// acceptLoop accepts connections until the listener closes, spawning one
// goroutine per connection. A transient Accept failure (e.g. a file
// descriptor limit) is logged and retried with growing backoff instead of
// busy-spinning; it only returns once ctx is canceled and the listener is
// the one that closed.
func acceptLoop(ctx context.Context, ln net.Listener, hub *Hub) error {
	var retryDelay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			if retryDelay == 0 {
				retryDelay = 5 * time.Millisecond
			} else if retryDelay *= 2; retryDelay > acceptRetryCap {
				retryDelay = acceptRetryCap
			}
			log.Log(ctx, slog.LevelWarn, "broker: accept error, retrying", "error", err.Error(), "retry_in", retryDelay.String())
			time.Sleep(retryDelay)
			continue
		}
		retryDelay = 0

		conn := newConn(hub, nc)
		log.Debug("broker: connection accepted", "conn_id", conn.ID(), "remote", nc.RemoteAddr().String())
		go conn.serve()
	}
}
