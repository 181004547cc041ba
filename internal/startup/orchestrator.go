// SPDX-License-Identifier: MIT

// Package startup validates the environment before the daemon enters
// steady state: local ports, reachability of configured services, data
// directories, and the Snapcast backend itself. Validation failures are
// retried with backoff; only directory failures are fatal, everything
// network-shaped degrades to a warning so the reconnect loops can pick
// the work up later.
package startup

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/resilience"
	"github.com/snapdog/snapdog/internal/snapcast"
)

const (
	validationAttempts = 5
	dialTimeout        = 5 * time.Second
	snapcastPollEvery  = time.Second
	snapcastWaitCap    = 30 * time.Second
	portProbeOffsets   = 100
)

// Pinger is the probe slice of the Snapcast adapter.
type Pinger interface {
	GetServerStatus(ctx context.Context) (*snapcast.ServerStatus, error)
}

// Orchestrator runs the pre-flight validation sequence.
type Orchestrator struct {
	cfg    *config.Config
	logger zerolog.Logger

	pollEvery time.Duration
	waitCap   time.Duration

	// injectable for tests
	listen func(network, addr string) (net.Listener, error)
	dial   func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// New builds an orchestrator for the given configuration.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		logger:    log.WithComponent("startup"),
		pollEvery: snapcastPollEvery,
		waitCap:   snapcastWaitCap,
		listen:    net.Listen,
		dial:      net.DialTimeout,
	}
}

// Validate runs ports, network and directory checks in order. Each step
// is retried up to 5 times with backoff; the returned error is fatal and
// the daemon exits with code 2.
func (o *Orchestrator) Validate(ctx context.Context) error {
	steps := []struct {
		phase string
		fn    func(context.Context) error
	}{
		{"validating_ports", o.validatePorts},
		{"validating_network", o.validateNetwork},
		{"validating_directories", o.validateDirectories},
	}
	for _, step := range steps {
		o.logger.Info().
			Str("event", "startup.phase").
			Str("phase", step.phase).
			Msg("startup validation phase")
		if err := resilience.Retry(ctx, validationAttempts, resilience.StartupBackoff, step.fn); err != nil {
			return fault.Wrap(err, fault.KindUnavailable, "startup validation %s", step.phase)
		}
	}
	return nil
}

// validatePorts checks that the API listen port is free. A busy port is
// not fatal: an alternative is probed and logged, the configured port is
// kept and binding fails later if it is still taken.
func (o *Orchestrator) validatePorts(context.Context) error {
	addr := o.cfg.API.ListenAddr
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fault.Invalid("api listen address %q: %v", addr, err)
	}

	ln, err := o.listen("tcp", addr)
	if err == nil {
		_ = ln.Close()
		return nil
	}

	o.logger.Warn().
		Str("event", "startup.port_in_use").
		Str("addr", addr).
		Msg("configured api port is already bound")

	var portNum int
	if _, scanErr := fmt.Sscanf(port, "%d", &portNum); scanErr != nil {
		return nil
	}
	for offset := 1; offset <= portProbeOffsets; offset++ {
		candidate := net.JoinHostPort(host, fmt.Sprintf("%d", portNum+offset))
		if ln, probeErr := o.listen("tcp", candidate); probeErr == nil {
			_ = ln.Close()
			o.logger.Warn().
				Str("event", "startup.port_alternative").
				Str("configured", addr).
				Str("alternative", candidate).
				Msg("free alternative port found, keeping configured port")
			return nil
		}
	}
	o.logger.Warn().
		Str("event", "startup.no_alternative_port").
		Str("addr", addr).
		Int("probed", portProbeOffsets).
		Msg("no free alternative port in probe range")
	return nil
}

// validateNetwork best-effort probes every enabled remote service.
// Failures warn; adapters reconnect on their own.
func (o *Orchestrator) validateNetwork(context.Context) error {
	targets := map[string]string{
		"snapcast": fmt.Sprintf("%s:%d", o.cfg.Snapcast.Host, o.cfg.Snapcast.Port),
	}
	if o.cfg.MQTT.Enabled {
		if addr := hostPortFromURL(o.cfg.MQTT.BrokerURL, "1883"); addr != "" {
			targets["mqtt"] = addr
		}
	}
	if o.cfg.KNX.Enabled && o.cfg.KNX.ConnType == config.KNXConnTunnel {
		targets["knx"] = o.cfg.KNX.Gateway
	}
	if o.cfg.Subsonic.Enabled {
		if addr := hostPortFromURL(o.cfg.Subsonic.URL, "443"); addr != "" {
			targets["subsonic"] = addr
		}
	}

	for name, addr := range targets {
		conn, err := o.dial("tcp", addr, dialTimeout)
		if err != nil {
			o.logger.Warn().
				Err(err).
				Str("event", "startup.service_unreachable").
				Str("service", name).
				Str("addr", addr).
				Msg("service probe failed, continuing")
			continue
		}
		_ = conn.Close()
		o.logger.Debug().
			Str("event", "startup.service_reachable").
			Str("service", name).
			Str("addr", addr).
			Msg("service reachable")
	}
	return nil
}

func hostPortFromURL(raw, defaultPort string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() == "" {
		return net.JoinHostPort(u.Hostname(), defaultPort)
	}
	return u.Host
}

// validateDirectories creates the data directory if absent and verifies
// it is writable.
func (o *Orchestrator) validateDirectories(context.Context) error {
	dir := o.cfg.System.DataDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data dir %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".snapdog-write-test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("data dir %s is not writable: %w", dir, err)
	}
	return os.Remove(probe)
}

// WaitForSnapcast polls the server until it answers or the wait cap
// passes. A timeout is logged and swallowed; the adapter keeps
// reconnecting in the background.
func (o *Orchestrator) WaitForSnapcast(ctx context.Context, pinger Pinger) {
	deadline := time.Now().Add(o.waitCap)
	for {
		pollCtx, cancel := context.WithTimeout(ctx, o.pollEvery)
		_, err := pinger.GetServerStatus(pollCtx)
		cancel()
		if err == nil {
			o.logger.Info().
				Str("event", "startup.snapcast_ready").
				Msg("snapcast server is reachable")
			return
		}
		if time.Now().After(deadline) {
			o.logger.Warn().
				Str("event", "startup.snapcast_wait_timeout").
				Dur("waited", o.waitCap).
				Msg("snapcast not reachable yet, proceeding anyway")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.pollEvery):
		}
	}
}
