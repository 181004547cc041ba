// SPDX-License-Identifier: MIT

// Package daemon wires every component together and owns the process
// lifecycle. All long-running loops share one errgroup; the first fatal
// error or the shutdown signal tears the whole tree down.
package daemon

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapdog/snapdog/internal/api"
	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/events"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/handlers"
	"github.com/snapdog/snapdog/internal/health"
	"github.com/snapdog/snapdog/internal/knx"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/media"
	"github.com/snapdog/snapdog/internal/mqtt"
	"github.com/snapdog/snapdog/internal/publisher"
	"github.com/snapdog/snapdog/internal/snapcast"
	"github.com/snapdog/snapdog/internal/startup"
	"github.com/snapdog/snapdog/internal/state"
	"github.com/snapdog/snapdog/internal/subsonic"
	"github.com/snapdog/snapdog/internal/telemetry"
	"github.com/snapdog/snapdog/internal/version"
)

// ErrStartupValidation marks a fatal pre-flight failure; the process
// exits with code 2.
var ErrStartupValidation = errors.New("startup validation failed")

// Run builds the daemon from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("event", "daemon.starting").
		Str("version", version.Version).
		Interface("config", config.MaskSecrets(cfg)).
		Msg("snapdog starting")

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "snapdog",
		ServiceVersion: version.Version,
		Environment:    cfg.System.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutCtx)
	}()

	orchestrator := startup.New(cfg)
	if err := orchestrator.Validate(ctx); err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.startup_failed").
			Msg("pre-flight validation failed")
		return errors.Join(ErrStartupValidation, err)
	}

	mediator := bus.New()
	states := state.New(cfg, mediator)

	var library media.Library
	var covers api.CoverSource
	if cfg.Subsonic.Enabled {
		sub := subsonic.New(cfg.Subsonic)
		library = sub
		covers = sub
	}
	catalog := media.New(cfg.Radios, library)

	snapConn := snapcast.New(cfg.Snapcast, func(ctx context.Context, cmd bus.Command) {
		if _, err := mediator.Send(ctx, cmd); err != nil {
			logger.Warn().
				Err(err).
				Str("event", "daemon.snapcast_event_failed").
				Str("command", cmd.CommandName()).
				Msg("snapcast event handling failed")
		}
	})

	regroup := grouping.New(cfg, snapConn, states, mediator)

	sinkPaths := make(map[int]string, len(cfg.Zones))
	for i, z := range cfg.Zones {
		sinkPaths[i+1] = z.SinkPath
	}
	handlers.New(states, snapConn, regroup, catalog, sinkPaths).Register(mediator)

	hm := health.NewManager()
	hm.Register(health.Check{Name: "snapcast", Required: true, Probe: snapConn.IsConnected})

	var mq *mqtt.Adapter
	var mqttSink publisher.MQTTSink
	if cfg.MQTT.Enabled {
		mq = mqtt.New(cfg.MQTT, cfg.Zones, cfg.Clients, mediator)
		mqttSink = mq
		hm.Register(health.Check{Name: "mqtt", Probe: mq.IsConnected})
	}

	var kn *knx.Adapter
	var knxSink publisher.KNXSink
	if cfg.KNX.Enabled {
		kn = knx.New(cfg.KNX, cfg.Zones, cfg.Clients, mediator)
		knxSink = kn
		hm.Register(health.Check{Name: "knx", Probe: kn.IsConnected})
	}

	pub := publisher.New(cfg, states, mqttSink, knxSink)
	pub.Attach(mediator)

	apiServer := api.New(cfg.API, mediator, states, snapConn, catalog, covers, hm)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return snapConn.Run(gctx) })
	g.Go(func() error { return regroup.Run(gctx) })
	g.Go(func() error { return apiServer.Run(gctx) })
	if mq != nil {
		g.Go(func() error { return mq.Run(gctx) })
	}
	if kn != nil {
		g.Go(func() error { return kn.Run(gctx) })
	}
	g.Go(func() error {
		orchestrator.WaitForSnapcast(gctx, snapConn)
		if gctx.Err() != nil {
			return nil
		}
		pub.PublishInitial(gctx)
		mediator.Publish(gctx, events.SystemStatus{
			Base:   events.Base{Origin: bus.SourceInternal},
			Online: true,
		})
		logger.Info().
			Str("event", "daemon.running").
			Msg("snapdog is running")
		return nil
	})

	err = g.Wait()

	offCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	mediator.Publish(offCtx, events.SystemStatus{
		Base:   events.Base{Origin: bus.SourceInternal},
		Online: false,
	})
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().
		Str("event", "daemon.stopped").
		Msg("snapdog stopped")
	return nil
}
