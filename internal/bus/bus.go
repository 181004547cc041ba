// SPDX-License-Identifier: MIT

// Package bus implements the in-process command/notification mediator.
// Commands have exactly one handler and return a value; notifications fan
// out to any number of subscribers. All types are enumerated at build
// time: dispatch is by command name through an explicit registry, never
// by reflection.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/telemetry"
)

// Source identifies the control surface a command originated from.
// Handlers use it for echo suppression; notifications carry it through
// as Origin so integrations can skip publishing back to themselves.
type Source string

const (
	SourceAPI      Source = "api"
	SourceMQTT     Source = "mqtt"
	SourceKNX      Source = "knx"
	SourceInternal Source = "internal"
)

// Command is a request addressed to exactly one handler.
type Command interface {
	// CommandName is the stable registry key of the command type.
	CommandName() string
	// CommandSource tags where the command came from.
	CommandSource() Source
	// TargetKey identifies the entity whose commands are serialized
	// ("zone/3", "client/1"). Empty means no serialization.
	TargetKey() string
}

// Notification is a state-change event fanned out to all subscribers.
type Notification interface {
	NotificationName() string
}

// Handler processes one command type.
type Handler func(ctx context.Context, cmd Command) (any, error)

// Subscriber consumes notifications. Errors are logged and swallowed;
// they never reach the publisher.
type Subscriber func(ctx context.Context, n Notification) error

// SubscribeAll is the registration key matching every notification type.
const SubscribeAll = "*"

type namedSubscriber struct {
	name string
	fn   Subscriber
}

// Mediator is the single in-process bus.
type Mediator struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	subscribers map[string][]namedSubscriber

	locks sync.Map // target key -> *sync.Mutex

	commandTimeout    time.Duration
	subscriberTimeout time.Duration
	logger            zerolog.Logger
}

// MediatorOption configures a Mediator.
type MediatorOption func(*Mediator)

// WithCommandTimeout sets the default deadline applied to commands whose
// context carries none.
func WithCommandTimeout(d time.Duration) MediatorOption {
	return func(m *Mediator) { m.commandTimeout = d }
}

// WithSubscriberTimeout bounds each subscriber invocation during Publish.
func WithSubscriberTimeout(d time.Duration) MediatorOption {
	return func(m *Mediator) { m.subscriberTimeout = d }
}

// New creates an empty mediator.
func New(opts ...MediatorOption) *Mediator {
	m := &Mediator{
		handlers:          make(map[string]Handler),
		subscribers:       make(map[string][]namedSubscriber),
		commandTimeout:    10 * time.Second,
		subscriberTimeout: 5 * time.Second,
		logger:            log.WithComponent("bus"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register binds a handler to a command name. Registering a name twice is
// a wiring bug and returns an error.
func (m *Mediator) Register(name string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.handlers[name]; dup {
		return fmt.Errorf("handler for %q already registered", name)
	}
	m.handlers[name] = h
	return nil
}

// MustRegister is Register that panics on duplicate registration. Wiring
// happens once at startup, so a duplicate is always a programming error.
func (m *Mediator) MustRegister(name string, h Handler) {
	if err := m.Register(name, h); err != nil {
		panic(err)
	}
}

// Subscribe adds a named subscriber for a notification name, or for all
// notifications when name is SubscribeAll.
func (m *Mediator) Subscribe(notification, subscriber string, fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[notification] = append(m.subscribers[notification], namedSubscriber{name: subscriber, fn: fn})
}

// Send dispatches a command to its handler. Commands addressed to the
// same target entity are serialized; distinct targets run concurrently.
func (m *Mediator) Send(ctx context.Context, cmd Command) (any, error) {
	m.mu.RLock()
	handler, ok := m.handlers[cmd.CommandName()]
	m.mu.RUnlock()
	if !ok {
		metrics.RecordCommand(cmd.CommandName(), string(cmd.CommandSource()), "handler_missing")
		return nil, fault.New(fault.KindHandlerMissing, "no handler registered for %s", cmd.CommandName())
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.commandTimeout)
		defer cancel()
	}

	if key := cmd.TargetKey(); key != "" {
		mu := m.targetLock(key)
		mu.Lock()
		defer mu.Unlock()
	}

	ctx, span := telemetry.Tracer("bus").Start(ctx, "bus.send")
	span.SetAttributes(telemetry.CommandAttributes(cmd.CommandName(), string(cmd.CommandSource()), cmd.TargetKey())...)
	defer span.End()

	start := time.Now()
	result, err := handler(ctx, cmd)
	metrics.CommandDuration.WithLabelValues(cmd.CommandName()).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && fault.KindOf(err) != fault.KindTimeout {
			err = fault.Wrap(err, fault.KindTimeout, "command %s exceeded its deadline", cmd.CommandName())
		}
		span.SetAttributes(telemetry.ErrorAttributes(err, string(fault.KindOf(err)))...)
		metrics.RecordCommand(cmd.CommandName(), string(cmd.CommandSource()), "error")
		return nil, err
	}
	metrics.RecordCommand(cmd.CommandName(), string(cmd.CommandSource()), "ok")
	return result, nil
}

// Publish fans a notification out to every matching subscriber. Each
// subscriber runs under its own timeout; failures and panics are logged
// and swallowed so one consumer can never stall another or the producer.
func (m *Mediator) Publish(ctx context.Context, n Notification) {
	name := n.NotificationName()
	metrics.NotificationsTotal.WithLabelValues(name).Inc()

	m.mu.RLock()
	subs := make([]namedSubscriber, 0, len(m.subscribers[name])+len(m.subscribers[SubscribeAll]))
	subs = append(subs, m.subscribers[name]...)
	subs = append(subs, m.subscribers[SubscribeAll]...)
	m.mu.RUnlock()

	for _, sub := range subs {
		m.invoke(ctx, sub, n)
	}
}

func (m *Mediator) invoke(ctx context.Context, sub namedSubscriber, n Notification) {
	subCtx, cancel := context.WithTimeout(ctx, m.subscriberTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberFailuresTotal.WithLabelValues(n.NotificationName(), sub.name).Inc()
			m.logger.Error().
				Str("event", "bus.subscriber_panic").
				Str("notification", n.NotificationName()).
				Str("subscriber", sub.name).
				Interface("panic", r).
				Msg("notification subscriber panicked")
		}
	}()

	if err := sub.fn(subCtx, n); err != nil {
		metrics.SubscriberFailuresTotal.WithLabelValues(n.NotificationName(), sub.name).Inc()
		m.logger.Warn().
			Err(err).
			Str("event", "bus.subscriber_failed").
			Str("notification", n.NotificationName()).
			Str("subscriber", sub.name).
			Msg("notification subscriber failed")
	}
}

func (m *Mediator) targetLock(key string) *sync.Mutex {
	if mu, ok := m.locks.Load(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SendAs dispatches cmd and asserts the handler result to T.
func SendAs[T any](ctx context.Context, m *Mediator, cmd Command) (T, error) {
	var zero T
	res, err := m.Send(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fault.Internal("handler for %s returned %T", cmd.CommandName(), res)
	}
	return typed, nil
}
