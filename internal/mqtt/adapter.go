// SPDX-License-Identifier: MIT

// Package mqtt connects the controller to an MQTT broker. Inbound
// messages on per-entity command topics become source-tagged bus
// commands; outbound status publishes go through a bounded queue so a
// slow broker can never stall the notification fan-out.
package mqtt

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
)

const adapterName = "mqtt"

// inbound command rate limit; QoS 1 redelivery covers dropped bursts.
const (
	inboundRate  = 50
	inboundBurst = 100
)

type outMsg struct {
	topic   string
	payload []byte
	retain  bool
}

// Sender dispatches parsed commands; satisfied by *bus.Mediator.
type Sender interface {
	Send(ctx context.Context, cmd bus.Command) (any, error)
}

// Adapter owns the broker connection.
type Adapter struct {
	cfg    config.MQTTConfig
	sender Sender
	table  *routeTable
	logger zerolog.Logger

	cm        *autopaho.ConnectionManager
	queue     chan outMsg
	limiter   *rate.Limiter
	connected atomic.Bool
}

// New builds the adapter from configuration. It does not connect; call
// Run.
func New(cfg config.MQTTConfig, zones []config.ZoneConfig, clients []config.ClientConfig, sender Sender) *Adapter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	if cfg.ClientID == "" {
		// Brokers drop the older session on a client id collision, so an
		// unset id gets a random suffix.
		cfg.ClientID = "snapdog-" + uuid.NewString()[:8]
	}
	return &Adapter{
		cfg:     cfg,
		sender:  sender,
		table:   newRouteTable(zones, clients),
		logger:  log.WithComponent("mqtt"),
		queue:   make(chan outMsg, queueSize),
		limiter: rate.NewLimiter(inboundRate, inboundBurst),
	}
}

// IsConnected reports broker connectivity.
func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// availabilityTopic is the retained online/offline birth and will topic.
func (a *Adapter) availabilityTopic() string {
	return statusTopic(a.cfg.BaseTopic, "status")
}

// Run connects and services the in/outbound flows until ctx ends.
func (a *Adapter) Run(ctx context.Context) error {
	brokerURL, err := url.Parse(a.cfg.BrokerURL)
	if err != nil {
		return fault.Invalid("parse mqtt broker url: %v", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: a.cfg.Username,
		ConnectPassword: []byte(a.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   a.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			a.connected.Store(true)
			metrics.SetAdapterConnected(adapterName, true)
			a.logger.Info().
				Str("event", "mqtt.connected").
				Str("broker", a.cfg.BrokerURL).
				Msg("mqtt connected to broker")
			a.subscribeAll(ctx, cm)
			a.publishNow(ctx, cm, outMsg{topic: a.availabilityTopic(), payload: []byte("online"), retain: true})
		},
		OnConnectError: func(err error) {
			a.connected.Store(false)
			metrics.SetAdapterConnected(adapterName, false)
			metrics.RecordReconnect(adapterName)
			a.logger.Warn().
				Err(err).
				Str("event", "mqtt.connect_error").
				Msg("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: a.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					a.handleInbound(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fault.Wrap(err, fault.KindUnavailable, "mqtt connect")
	}
	a.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = cm.AwaitConnection(connCtx)
	cancel()
	if err != nil {
		// autopaho keeps retrying in the background.
		a.logger.Warn().
			Err(err).
			Str("event", "mqtt.initial_connect_timeout").
			Msg("initial mqtt connection timed out, retrying in background")
	}

	a.publishLoop(ctx, cm)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	a.publishNow(stopCtx, cm, outMsg{topic: a.availabilityTopic(), payload: []byte("offline"), retain: true})
	_ = cm.Disconnect(stopCtx)
	a.connected.Store(false)
	metrics.SetAdapterConnected(adapterName, false)
	return ctx.Err()
}

func (a *Adapter) subscribeAll(ctx context.Context, cm *autopaho.ConnectionManager) {
	filters := a.table.subscriptions()
	if len(filters) == 0 {
		return
	}
	subs := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		subs = append(subs, paho.SubscribeOptions{Topic: f, QoS: 1})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		a.logger.Error().
			Err(err).
			Str("event", "mqtt.subscribe_failed").
			Int("filters", len(filters)).
			Msg("command topic subscription failed")
	}
}

// Publish enqueues a status message. A full queue fails with
// Backpressure; the caller decides whether that matters.
func (a *Adapter) Publish(topic string, payload []byte, retain bool) error {
	select {
	case a.queue <- outMsg{topic: topic, payload: payload, retain: retain}:
		return nil
	default:
		metrics.RecordPublishDrop(adapterName, "queue_full")
		return fault.New(fault.KindBackpressure, "mqtt publish queue full, dropping %s", topic)
	}
}

func (a *Adapter) publishLoop(ctx context.Context, cm *autopaho.ConnectionManager) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.queue:
			a.publishNow(ctx, cm, msg)
		}
	}
}

func (a *Adapter) publishNow(ctx context.Context, cm *autopaho.ConnectionManager, msg outMsg) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := cm.Publish(pubCtx, &paho.Publish{
		Topic:   msg.topic,
		Payload: msg.payload,
		QoS:     1,
		Retain:  msg.retain,
	})
	if err != nil {
		metrics.RecordStatePublish(adapterName, "error")
		a.logger.Warn().
			Err(err).
			Str("event", "mqtt.publish_failed").
			Str("topic", msg.topic).
			Msg("status publish failed")
		return
	}
	metrics.RecordStatePublish(adapterName, "ok")
}

// handleInbound parses one command message and dispatches it. Parse
// failures answer on the entity's /error topic and drop the message.
func (a *Adapter) handleInbound(ctx context.Context, topic string, payload []byte) {
	r, suffix, ok := a.table.match(topic)
	if !ok {
		return
	}
	if !a.limiter.Allow() {
		metrics.RecordCommandDropped(string(bus.SourceMQTT), "rate_limited")
		return
	}

	cmd, err := a.table.command(r, suffix, payload)
	if err != nil {
		metrics.RecordCommandDropped(string(bus.SourceMQTT), "parse_error")
		a.reportError(r, err)
		return
	}
	if _, err := a.sender.Send(ctx, cmd); err != nil {
		a.reportError(r, err)
	}
}

func (a *Adapter) reportError(r route, err error) {
	a.logger.Warn().
		Err(err).
		Str("event", "mqtt.command_failed").
		Str("base", r.base).
		Msg("inbound command rejected")
	_ = a.Publish(statusTopic(r.base, "error"), []byte(err.Error()), false)
}
