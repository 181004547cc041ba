// SPDX-License-Identifier: MIT

// Package grouping keeps the Snapcast group topology aligned with the
// configured zones: one group per zone, bound to the zone's stream,
// holding exactly the connected clients whose effective zone it is.
// Reconciliation runs at startup, on a steady-state interval, after
// client moves and whenever the server reports a topology change;
// concurrent triggers coalesce into one pass.
package grouping

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/events"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/model"
	"github.com/snapdog/snapdog/internal/snapcast"
	"github.com/snapdog/snapdog/internal/state"
)

// Outcome summarises one reconciliation pass.
type Outcome string

const (
	// OutcomeHealthy means the topology already matched.
	OutcomeHealthy Outcome = "healthy"
	// OutcomeReconciled means divergences were found and corrected.
	OutcomeReconciled Outcome = "reconciled"
	// OutcomeDegraded means at least one correction failed or a zone
	// stream is missing on the server.
	OutcomeDegraded Outcome = "degraded"
)

// Control is the slice of the Snapcast connection the reconciler needs.
type Control interface {
	IsConnected() bool
	GetServerStatus(ctx context.Context) (*snapcast.ServerStatus, error)
	SetGroupClients(ctx context.Context, groupID string, clientIDs []string) error
	SetGroupStream(ctx context.Context, groupID, streamID string) error
	SetGroupName(ctx context.Context, groupID, name string) error
	SetClientName(ctx context.Context, clientID, name string) error
}

// Reconciler drives the zone/group alignment.
type Reconciler struct {
	zones    []config.ZoneConfig
	interval time.Duration
	control  Control
	states   *state.Manager
	bus      *bus.Mediator
	logger   zerolog.Logger

	group singleflight.Group
}

// New creates a reconciler. interval <= 0 falls back to 30 s.
func New(cfg *config.Config, control Control, states *state.Manager, mediator *bus.Mediator) *Reconciler {
	interval := cfg.Snapcast.ReconcileInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		zones:    cfg.Zones,
		interval: interval,
		control:  control,
		states:   states,
		bus:      mediator,
		logger:   log.WithComponent("grouping"),
	}
}

// Run performs an initial pass and then reconciles on the configured
// interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.runPass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

// runPass bounds one periodic pass by the interval so a hung server
// call cannot stall the loop past the next tick.
func (r *Reconciler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	r.Trigger(passCtx)
}

// Trigger requests a reconciliation pass. Passes already in flight are
// shared, not queued.
func (r *Reconciler) Trigger(ctx context.Context) (Outcome, error) {
	v, err, _ := r.group.Do("reconcile", func() (any, error) {
		return r.reconcile(ctx), nil
	})
	if err != nil {
		return OutcomeDegraded, err
	}
	return v.(Outcome), nil
}

func (r *Reconciler) reconcile(ctx context.Context) Outcome {
	start := time.Now()
	outcome := r.reconcileOnce(ctx)
	metrics.RecordReconciliation(string(outcome), time.Since(start).Seconds())

	r.bus.Publish(ctx, events.GroupingReconciled{
		Base:    events.Base{Origin: bus.SourceInternal},
		Outcome: string(outcome),
	})
	return outcome
}

func (r *Reconciler) reconcileOnce(ctx context.Context) Outcome {
	if !r.control.IsConnected() {
		return OutcomeDegraded
	}
	status, err := r.control.GetServerStatus(ctx)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("event", "grouping.status_failed").
			Msg("cannot fetch server status")
		return OutcomeDegraded
	}

	outcome := OutcomeHealthy
	// Zones are walked in ascending index order so two concurrent
	// passes can never deadlock on entity locks.
	for zi := 1; zi <= len(r.zones); zi++ {
		switch r.reconcileZone(ctx, status, zi) {
		case OutcomeDegraded:
			outcome = OutcomeDegraded
		case OutcomeReconciled:
			if outcome == OutcomeHealthy {
				outcome = OutcomeReconciled
			}
		}
	}
	r.syncClientNames(ctx, status)
	return outcome
}

// syncClientNames pushes configured client names to the server so
// snapweb shows the same names as the controller. Cosmetic only,
// failures are ignored like group renames.
func (r *Reconciler) syncClientNames(ctx context.Context, status *snapcast.ServerStatus) {
	for _, c := range r.states.Clients() {
		if !c.Connected || c.SnapcastClientID == "" {
			continue
		}
		sc := status.ClientByID(c.SnapcastClientID)
		if sc != nil && sc.Config.Name != c.Name {
			_ = r.control.SetClientName(ctx, c.SnapcastClientID, c.Name)
		}
	}
}

func (r *Reconciler) reconcileZone(ctx context.Context, status *snapcast.ServerStatus, zone int) Outcome {
	zcfg := r.zones[zone-1]
	stream := status.StreamByPath(zcfg.SinkPath)
	if stream == nil {
		r.logger.Warn().
			Str("event", "grouping.stream_missing").
			Int("zone", zone).
			Str("sink", zcfg.SinkPath).
			Msg("no server stream matches zone sink")
		return OutcomeDegraded
	}

	members, snapIDs := r.desiredMembers(zone)

	group := r.targetGroup(status, stream.ID, snapIDs)
	if group == nil {
		// Nothing to place and no group bound to the stream.
		if len(snapIDs) == 0 {
			r.storeMembership(ctx, zone, nil)
			return OutcomeHealthy
		}
		r.logger.Warn().
			Str("event", "grouping.no_group").
			Int("zone", zone).
			Msg("no candidate group for zone clients")
		return OutcomeDegraded
	}

	changed := false
	if !sameIDSet(groupClientIDs(group), snapIDs) {
		if len(snapIDs) == 0 {
			// Leave foreign clients alone; the group just stops being ours.
			r.storeMembership(ctx, zone, nil)
			return OutcomeHealthy
		}
		if err := r.control.SetGroupClients(ctx, group.ID, snapIDs); err != nil {
			r.logger.Warn().
				Err(err).
				Str("event", "grouping.set_clients_failed").
				Int("zone", zone).
				Str("group", group.ID).
				Msg("moving clients failed")
			return OutcomeDegraded
		}
		changed = true
	}
	if group.StreamID != stream.ID {
		if err := r.control.SetGroupStream(ctx, group.ID, stream.ID); err != nil {
			r.logger.Warn().
				Err(err).
				Str("event", "grouping.set_stream_failed").
				Int("zone", zone).
				Str("group", group.ID).
				Msg("binding stream failed")
			return OutcomeDegraded
		}
		changed = true
	}
	if group.Name != zcfg.Name {
		// Cosmetic only, ignore failures.
		_ = r.control.SetGroupName(ctx, group.ID, zcfg.Name)
	}

	r.storeMembership(ctx, zone, members)

	if changed {
		r.logger.Info().
			Str("event", "grouping.zone_reconciled").
			Int("zone", zone).
			Str("group", group.ID).
			Int("clients", len(snapIDs)).
			Msg("zone group realigned")
		return OutcomeReconciled
	}
	return OutcomeHealthy
}

// desiredMembers lists the client indices and Snapcast ids that belong
// in the zone's group right now.
func (r *Reconciler) desiredMembers(zone int) ([]int, []string) {
	var members []int
	var ids []string
	for _, c := range r.states.Clients() {
		if c.Connected && c.SnapcastClientID != "" && c.EffectiveZone() == zone {
			members = append(members, c.Index)
			ids = append(ids, c.SnapcastClientID)
		}
	}
	return members, ids
}

// targetGroup picks the group to use for a zone: the group already bound
// to the zone's stream, else the group holding one of the zone's
// clients. Ties break on the lexically lowest group id so repeated
// passes are deterministic.
func (r *Reconciler) targetGroup(status *snapcast.ServerStatus, streamID string, snapIDs []string) *snapcast.Group {
	var best *snapcast.Group
	for i := range status.Groups {
		g := &status.Groups[i]
		if g.StreamID != streamID {
			continue
		}
		if best == nil || g.ID < best.ID {
			best = g
		}
	}
	if best != nil {
		return best
	}
	for _, id := range snapIDs {
		if g := status.GroupByClient(id); g != nil {
			if best == nil || g.ID < best.ID {
				best = g
			}
		}
	}
	return best
}

func (r *Reconciler) storeMembership(ctx context.Context, zone int, members []int) {
	sort.Ints(members)
	_, err := r.states.MutateZone(ctx, zone, bus.SourceInternal, func(z *model.Zone) error {
		if intsEqual(z.Clients, members) {
			return nil
		}
		z.Clients = members
		return nil
	})
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("event", "grouping.store_failed").
			Int("zone", zone).
			Msg("updating zone membership failed")
	}
}

func groupClientIDs(g *snapcast.Group) []string {
	out := make([]string, 0, len(g.Clients))
	for _, c := range g.Clients {
		if c.Connected {
			out = append(out, c.ID)
		}
	}
	return out
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
