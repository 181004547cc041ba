// SPDX-License-Identifier: MIT

// Package knx bridges the controller to a KNX installation. Group
// writes on configured command addresses become source-tagged bus
// commands; status updates are written back to the matching status
// addresses through a bounded queue that sheds the oldest frame when
// the bus cannot keep up.
package knx

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vapourismo/knx-go/knx"
	"github.com/vapourismo/knx-go/knx/cemi"
	"golang.org/x/time/rate"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
)

const adapterName = "knx"

const defaultReconnectInterval = 30 * time.Second

// Group telegrams are tiny; the same inbound budget as MQTT applies.
const (
	inboundRate  = 50
	inboundBurst = 100
)

// groupConn is the slice of knx.GroupTunnel / knx.GroupRouter we use.
type groupConn interface {
	Inbound() <-chan knx.GroupEvent
	Send(event knx.GroupEvent) error
	Close()
}

type outFrame struct {
	ga   cemi.GroupAddr
	data []byte
}

// Sender dispatches parsed commands; satisfied by *bus.Mediator.
type Sender interface {
	Send(ctx context.Context, cmd bus.Command) (any, error)
}

// Adapter owns the KNX connection.
type Adapter struct {
	cfg    config.KNXConfig
	sender Sender
	table  *gaTable
	logger zerolog.Logger

	queue     chan outFrame
	limiter   *rate.Limiter
	connected atomic.Bool

	// dial is swapped out in tests.
	dial func() (groupConn, error)
}

// New builds the adapter from configuration. It does not connect; call
// Run.
func New(cfg config.KNXConfig, zones []config.ZoneConfig, clients []config.ClientConfig, sender Sender) *Adapter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	a := &Adapter{
		cfg:     cfg,
		sender:  sender,
		table:   newGATable(zones, clients),
		logger:  log.WithComponent("knx"),
		queue:   make(chan outFrame, queueSize),
		limiter: rate.NewLimiter(inboundRate, inboundBurst),
	}
	a.dial = a.connect
	return a
}

// IsConnected reports bus connectivity.
func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// ZoneStatusGA resolves the status group address of a zone field.
func (a *Adapter) ZoneStatusGA(zone int, f StatusField) (cemi.GroupAddr, bool) {
	return a.table.ZoneStatusGA(zone, f)
}

// ClientStatusGA resolves the status group address of a client field.
func (a *Adapter) ClientStatusGA(client int, f StatusField) (cemi.GroupAddr, bool) {
	return a.table.ClientStatusGA(client, f)
}

func (a *Adapter) connect() (groupConn, error) {
	switch a.cfg.ConnType {
	case config.KNXConnRouting:
		router, err := knx.NewGroupRouter(a.cfg.Gateway, knx.DefaultRouterConfig)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindUnavailable, "knx routing %s", a.cfg.Gateway)
		}
		return &router, nil
	default:
		tunnel, err := knx.NewGroupTunnel(a.cfg.Gateway, knx.DefaultTunnelConfig)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindUnavailable, "knx tunnel %s", a.cfg.Gateway)
		}
		return &tunnel, nil
	}
}

// Run connects and services the bus until ctx ends. USB interfaces are
// rejected up front: the IP stack underneath only speaks KNXnet/IP.
func (a *Adapter) Run(ctx context.Context) error {
	if a.cfg.ConnType == config.KNXConnUSB {
		return fault.Invalid("knx usb interfaces are not supported, use tunnel or routing")
	}

	reconnect := a.cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = defaultReconnectInterval
	}

	for {
		conn, err := a.dial()
		if err != nil {
			metrics.SetAdapterConnected(adapterName, false)
			metrics.RecordReconnect(adapterName)
			a.logger.Warn().
				Err(err).
				Str("event", "knx.connect_failed").
				Str("gateway", a.cfg.Gateway).
				Dur("retry_in", reconnect).
				Msg("knx connection failed")
		} else {
			a.connected.Store(true)
			metrics.SetAdapterConnected(adapterName, true)
			a.logger.Info().
				Str("event", "knx.connected").
				Str("gateway", a.cfg.Gateway).
				Str("mode", string(a.cfg.ConnType)).
				Int("command_addresses", a.table.commandCount()).
				Msg("knx connected")

			a.serve(ctx, conn)

			conn.Close()
			a.connected.Store(false)
			metrics.SetAdapterConnected(adapterName, false)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnect):
		}
	}
}

// serve pumps telegrams in both directions until the connection drops
// or ctx ends.
func (a *Adapter) serve(ctx context.Context, conn groupConn) {
	in := conn.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				a.logger.Warn().
					Str("event", "knx.connection_lost").
					Msg("knx inbound channel closed")
				return
			}
			a.handleEvent(ctx, ev)
		case f := <-a.queue:
			a.send(conn, f)
		}
	}
}

func (a *Adapter) send(conn groupConn, f outFrame) {
	err := conn.Send(knx.GroupEvent{
		Command:     knx.GroupWrite,
		Destination: f.ga,
		Data:        f.data,
	})
	if err != nil {
		metrics.RecordStatePublish(adapterName, "error")
		a.logger.Warn().
			Err(err).
			Str("event", "knx.write_failed").
			Str("group_address", f.ga.String()).
			Msg("status write failed")
		return
	}
	metrics.RecordStatePublish(adapterName, "ok")
}

// handleEvent translates one inbound group write into a command.
func (a *Adapter) handleEvent(ctx context.Context, ev knx.GroupEvent) {
	if ev.Command != knx.GroupWrite {
		return
	}
	if !a.limiter.Allow() {
		metrics.RecordCommandDropped(string(bus.SourceKNX), "rate_limited")
		return
	}

	cmd, mapped, err := a.table.command(ev.Destination, ev.Data)
	if !mapped {
		return
	}
	if err != nil {
		metrics.RecordCommandDropped(string(bus.SourceKNX), "parse_error")
		a.logger.Warn().
			Err(err).
			Str("event", "knx.telegram_rejected").
			Str("group_address", ev.Destination.String()).
			Msg("inbound telegram rejected")
		return
	}
	if _, err := a.sender.Send(ctx, cmd); err != nil {
		a.logger.Warn().
			Err(err).
			Str("event", "knx.command_failed").
			Str("group_address", ev.Destination.String()).
			Msg("inbound command rejected")
	}
}

// WriteBool queues a 1-bit status write.
func (a *Adapter) WriteBool(ga cemi.GroupAddr, v bool) {
	a.enqueue(outFrame{ga: ga, data: encodeBool(v)})
}

// WriteByte queues an unsigned byte status write. Values outside the
// 0..255 range of the datapoint are written as 0.
func (a *Adapter) WriteByte(ga cemi.GroupAddr, v int) {
	if v < 0 || v > 255 {
		a.logger.Warn().
			Str("event", "knx.value_out_of_range").
			Str("group_address", ga.String()).
			Int("value", v).
			Msg("value does not fit the datapoint, writing 0")
		v = 0
	}
	a.enqueue(outFrame{ga: ga, data: encodeByte(uint8(v))})
}

// enqueue never blocks: when the queue is full the oldest frame is
// dropped so the freshest state wins.
func (a *Adapter) enqueue(f outFrame) {
	for {
		select {
		case a.queue <- f:
			return
		default:
			select {
			case stale := <-a.queue:
				metrics.RecordPublishDrop(adapterName, "queue_full")
				a.logger.Debug().
					Str("event", "knx.frame_dropped").
					Str("group_address", stale.ga.String()).
					Msg("write queue full, dropping oldest frame")
			default:
			}
		}
	}
}
