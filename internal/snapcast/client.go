// SPDX-License-Identifier: MIT

// Package snapcast implements the JSON-RPC 2.0 client for the Snapcast
// control port. Requests are newline-framed JSON matched to responses by
// id; unsolicited server notifications are translated into bus commands
// through the EventSink.
package snapcast

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/resilience"
)

const adapterName = "snapcast"

// maxLineBytes bounds a single JSON-RPC frame. Server status payloads
// for large installations stay well under this.
const maxLineBytes = 4 << 20

// EventSink receives commands derived from server notifications.
type EventSink func(ctx context.Context, cmd bus.Command)

// Conn is the Snapcast control connection.
type Conn struct {
	cfg    config.SnapcastConfig
	sink   EventSink
	logger zerolog.Logger

	mu      sync.Mutex // guards conn and pending
	conn    net.Conn
	pending map[uint64]chan rpcEnvelope

	nextID    atomic.Uint64
	connected atomic.Bool

	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// New creates a disconnected client. Run must be called to establish and
// maintain the connection.
func New(cfg config.SnapcastConfig, sink EventSink) *Conn {
	return &Conn{
		cfg:     cfg,
		sink:    sink,
		logger:  log.WithComponent("snapcast"),
		pending: make(map[uint64]chan rpcEnvelope),
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// Addr returns the configured control endpoint.
func (c *Conn) Addr() string {
	return net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
}

// IsConnected reports whether the control connection is up.
func (c *Conn) IsConnected() bool { return c.connected.Load() }

// Run maintains the connection until ctx is cancelled, reconnecting with
// exponential backoff after every drop.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx, c.Addr())
		if err != nil {
			delay := resilience.DefaultBackoff.Delay(attempt)
			c.logger.Warn().
				Err(err).
				Str("event", "snapcast.dial_failed").
				Str("addr", c.Addr()).
				Dur("retry_in", delay).
				Msg("snapcast dial failed")
			metrics.RecordReconnect(adapterName)
			attempt++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		metrics.SetAdapterConnected(adapterName, true)
		c.logger.Info().
			Str("event", "snapcast.connected").
			Str("addr", c.Addr()).
			Msg("snapcast control connection established")
		c.emit(ctx, commands.ConnectionChanged{Connected: true})

		readErr := c.readLoop(ctx, conn)

		c.connected.Store(false)
		metrics.SetAdapterConnected(adapterName, false)
		c.teardown(conn)
		c.emit(ctx, commands.ConnectionChanged{Connected: false})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().
			Err(readErr).
			Str("event", "snapcast.disconnected").
			Msg("snapcast control connection lost")
	}
}

func (c *Conn) readLoop(ctx context.Context, conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env rpcEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			c.logger.Warn().
				Err(err).
				Str("event", "snapcast.bad_frame").
				Int("bytes", len(line)).
				Msg("discarding unparseable frame")
			continue
		}

		switch {
		case env.ID != nil:
			c.deliver(*env.ID, env)
		case env.Method != "":
			c.dispatchNotification(ctx, env)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("connection closed by server")
}

// teardown closes the socket and fails all in-flight calls.
func (c *Conn) teardown(conn net.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Conn) deliver(id uint64, env rpcEnvelope) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().
			Str("event", "snapcast.orphan_response").
			Uint64("id", id).
			Msg("response for unknown request id")
		return
	}
	ch <- env
	close(ch)
}

// call performs one request/response round trip. Fails fast with
// KindUnavailable when the connection is down.
func (c *Conn) call(ctx context.Context, method string, params, result any) error {
	if !c.connected.Load() {
		metrics.RecordAdapterRequest(adapterName, method, "unavailable")
		return fault.Unavailable("snapcast server not connected")
	}

	id := c.nextID.Add(1)
	ch := make(chan rpcEnvelope, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		metrics.RecordAdapterRequest(adapterName, method, "unavailable")
		return fault.Unavailable("snapcast server not connected")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	frame, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.abandon(id)
		return fault.Internal("marshal %s request: %v", method, err)
	}
	frame = append(frame, '\n')

	start := time.Now()
	if _, err := conn.Write(frame); err != nil {
		c.abandon(id)
		metrics.RecordAdapterRequest(adapterName, method, "error")
		return fault.Wrap(err, fault.KindUnavailable, "write %s request", method)
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.abandon(id)
		metrics.RecordAdapterRequest(adapterName, method, "canceled")
		return ctx.Err()
	case <-timer.C:
		c.abandon(id)
		metrics.RecordAdapterRequest(adapterName, method, "timeout")
		return fault.Timeout("%s did not answer within %s", method, timeout)
	case env, ok := <-ch:
		if !ok {
			metrics.RecordAdapterRequest(adapterName, method, "error")
			return fault.Unavailable("connection lost while waiting for %s", method)
		}
		metrics.AdapterRequestDuration.WithLabelValues(adapterName, method).Observe(time.Since(start).Seconds())
		if env.Error != nil {
			metrics.RecordAdapterRequest(adapterName, method, "error")
			return fault.New(fault.KindExternal, "%s failed: %s (code %d)", method, env.Error.Message, env.Error.Code)
		}
		metrics.RecordAdapterRequest(adapterName, method, "ok")
		if result != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, result); err != nil {
				return fault.Internal("decode %s result: %v", method, err)
			}
		}
		return nil
	}
}

func (c *Conn) abandon(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) emit(ctx context.Context, cmd bus.Command) {
	if c.sink != nil {
		c.sink(ctx, cmd)
	}
}

func (c *Conn) dispatchNotification(ctx context.Context, env rpcEnvelope) {
	switch env.Method {
	case "Client.OnConnect":
		var p clientConnectParams
		if json.Unmarshal(env.Params, &p) == nil {
			c.emit(ctx, commands.ClientConnected{
				SnapcastID: p.Client.ID,
				Mac:        p.Client.Host.Mac,
				Name:       p.Client.Config.Name,
			})
		}
	case "Client.OnDisconnect":
		var p clientConnectParams
		if json.Unmarshal(env.Params, &p) == nil {
			c.emit(ctx, commands.ClientDisconnected{SnapcastID: p.Client.ID})
		}
	case "Client.OnVolumeChanged":
		var p clientVolumeParams
		if json.Unmarshal(env.Params, &p) == nil {
			c.emit(ctx, commands.ClientVolumeReported{
				SnapcastID: p.ID,
				Volume:     p.Volume.Percent,
				Mute:       p.Volume.Muted,
			})
		}
	case "Client.OnLatencyChanged":
		var p clientLatencyParams
		if json.Unmarshal(env.Params, &p) == nil {
			c.emit(ctx, commands.ClientLatencyReported{SnapcastID: p.ID, LatencyMs: p.Latency})
		}
	case "Group.OnStreamChanged":
		var p groupStreamParams
		if json.Unmarshal(env.Params, &p) == nil {
			c.emit(ctx, commands.GroupStreamChanged{GroupID: p.ID, Stream: p.StreamID})
		}
	case "Server.OnUpdate":
		c.emit(ctx, commands.ServerUpdated{})
	case "Stream.OnProperties":
		var p streamPropertiesParams
		if json.Unmarshal(env.Params, &p) == nil && p.Position > 0 {
			c.emit(ctx, commands.StreamPosition{
				Stream:     p.ID,
				PositionMs: int64(p.Position * 1000),
			})
		}
	default:
		c.logger.Debug().
			Str("event", "snapcast.unhandled_notification").
			Str("method", env.Method).
			Msg("ignoring server notification")
	}
}
