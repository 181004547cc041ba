// SPDX-License-Identifier: MIT

// Package state holds the authoritative in-memory state of all zones
// and clients. Every mutation goes through Mutate*, which diffs the
// before/after snapshots and publishes one typed notification per
// changed field plus a composite state notification. Reads return deep
// copies; callers never see live state.
package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/events"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/model"
)

// positionDeltaMs is the minimum position movement reported as a
// position notification. Smaller deltas are absorbed to keep MQTT and
// KNX traffic proportional to audible change.
const positionDeltaMs = 500

type zoneSlot struct {
	mu   sync.Mutex
	zone model.Zone
}

type clientSlot struct {
	mu     sync.Mutex
	client model.Client
}

// Manager owns all zone and client state.
type Manager struct {
	zones   map[int]*zoneSlot
	clients map[int]*clientSlot
	bus     *bus.Mediator
	logger  zerolog.Logger
}

// New seeds the manager from configuration. Zones start stopped at
// volume 50, clients at their default zone with volume 50.
func New(cfg *config.Config, mediator *bus.Mediator) *Manager {
	m := &Manager{
		zones:   make(map[int]*zoneSlot, len(cfg.Zones)),
		clients: make(map[int]*clientSlot, len(cfg.Clients)),
		bus:     mediator,
		logger:  log.WithComponent("state"),
	}
	for i, zc := range cfg.Zones {
		idx := i + 1
		m.zones[idx] = &zoneSlot{zone: model.Zone{
			Index:    idx,
			Name:     zc.Name,
			SinkPath: zc.SinkPath,
			Playback: model.PlaybackStopped,
			Volume:   50,
		}}
	}
	for i, cc := range cfg.Clients {
		idx := i + 1
		m.clients[idx] = &clientSlot{client: model.Client{
			Index:       idx,
			Name:        cc.Name,
			Mac:         strings.ToLower(cc.Mac),
			DefaultZone: cc.DefaultZone,
			Volume:      50,
		}}
	}
	return m
}

// ZoneCount reports the number of configured zones.
func (m *Manager) ZoneCount() int { return len(m.zones) }

// ClientCount reports the number of configured clients.
func (m *Manager) ClientCount() int { return len(m.clients) }

// Zone returns a snapshot of one zone.
func (m *Manager) Zone(index int) (model.Zone, error) {
	slot, ok := m.zones[index]
	if !ok {
		return model.Zone{}, fault.NotFound("zone %d not found", index)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.zone.Clone(), nil
}

// Zones returns snapshots of all zones in ascending index order.
func (m *Manager) Zones() []model.Zone {
	out := make([]model.Zone, 0, len(m.zones))
	for i := 1; i <= len(m.zones); i++ {
		z, err := m.Zone(i)
		if err == nil {
			out = append(out, z)
		}
	}
	return out
}

// Client returns a snapshot of one client.
func (m *Manager) Client(index int) (model.Client, error) {
	slot, ok := m.clients[index]
	if !ok {
		return model.Client{}, fault.NotFound("client %d not found", index)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.client.Clone(), nil
}

// Clients returns snapshots of all clients in ascending index order.
func (m *Manager) Clients() []model.Client {
	out := make([]model.Client, 0, len(m.clients))
	for i := 1; i <= len(m.clients); i++ {
		c, err := m.Client(i)
		if err == nil {
			out = append(out, c)
		}
	}
	return out
}

// ClientByMac resolves a client index from a MAC address, case
// insensitively. Returns 0 when unknown.
func (m *Manager) ClientByMac(mac string) int {
	mac = strings.ToLower(mac)
	for i := 1; i <= len(m.clients); i++ {
		slot := m.clients[i]
		slot.mu.Lock()
		match := slot.client.Mac == mac
		slot.mu.Unlock()
		if match {
			return i
		}
	}
	return 0
}

// ClientBySnapcastID resolves a client index from the Snapcast client
// id recorded at connect time. Returns 0 when unknown.
func (m *Manager) ClientBySnapcastID(id string) int {
	for i := 1; i <= len(m.clients); i++ {
		slot := m.clients[i]
		slot.mu.Lock()
		match := slot.client.SnapcastClientID == id && id != ""
		slot.mu.Unlock()
		if match {
			return i
		}
	}
	return 0
}

// MutateZone applies fn to a copy of the zone, stores the result and
// publishes notifications for every changed field. fn returning an
// error aborts the mutation with no state change and no notifications.
func (m *Manager) MutateZone(ctx context.Context, index int, origin bus.Source, fn func(*model.Zone) error) (model.Zone, error) {
	slot, ok := m.zones[index]
	if !ok {
		return model.Zone{}, fault.NotFound("zone %d not found", index)
	}

	slot.mu.Lock()
	old := slot.zone.Clone()
	next := slot.zone.Clone()
	if err := fn(&next); err != nil {
		slot.mu.Unlock()
		return model.Zone{}, err
	}
	next.Index = index // not mutable
	if err := next.Validate(); err != nil {
		slot.mu.Unlock()
		return model.Zone{}, err
	}
	next.LastMutated = time.Now()
	slot.zone = next.Clone()
	slot.mu.Unlock()

	m.publishZoneDiff(ctx, origin, old, next)
	return next, nil
}

// MutateClient is MutateZone for clients.
func (m *Manager) MutateClient(ctx context.Context, index int, origin bus.Source, fn func(*model.Client) error) (model.Client, error) {
	slot, ok := m.clients[index]
	if !ok {
		return model.Client{}, fault.NotFound("client %d not found", index)
	}

	slot.mu.Lock()
	old := slot.client.Clone()
	next := slot.client.Clone()
	if err := fn(&next); err != nil {
		slot.mu.Unlock()
		return model.Client{}, err
	}
	next.Index = index
	if err := next.Validate(); err != nil {
		slot.mu.Unlock()
		return model.Client{}, err
	}
	next.LastMutated = time.Now()
	slot.client = next.Clone()
	slot.mu.Unlock()

	m.publishClientDiff(ctx, origin, old, next)
	return next, nil
}

// AssignClientZone moves a client to a zone. Assigning the client to
// the zone it already occupies is a conflict, not a noop, so callers
// can distinguish redundant moves.
func (m *Manager) AssignClientZone(ctx context.Context, client, zone int, origin bus.Source) (model.Client, error) {
	if _, ok := m.zones[zone]; !ok {
		return model.Client{}, fault.NotFound("zone %d not found", zone)
	}
	return m.MutateClient(ctx, client, origin, func(c *model.Client) error {
		if c.EffectiveZone() == zone {
			return fault.Conflict("client %d already assigned to zone %d", client, zone)
		}
		c.CurrentZone = zone
		return nil
	})
}

func (m *Manager) publishZoneDiff(ctx context.Context, origin bus.Source, old, next model.Zone) {
	ev := events.ZoneEvent{Base: events.Base{Origin: origin}, Zone: next.Index}
	changed := false

	if old.Volume != next.Volume {
		changed = true
		m.bus.Publish(ctx, events.ZoneVolume{ZoneEvent: ev, Volume: next.Volume})
	}
	if old.Mute != next.Mute {
		changed = true
		m.bus.Publish(ctx, events.ZoneMute{ZoneEvent: ev, Mute: next.Mute})
	}
	playbackChanged := old.Playback != next.Playback
	if playbackChanged {
		changed = true
		m.bus.Publish(ctx, events.ZonePlayback{ZoneEvent: ev, Playback: next.Playback})
	}

	trackChanged := !sameTrack(old.CurrentTrack, next.CurrentTrack)
	if trackChanged {
		changed = true
		m.bus.Publish(ctx, events.ZoneTrack{ZoneEvent: ev, Track: next.CurrentTrack})
	}
	if next.CurrentTrack != nil {
		var oldPos int64
		if old.CurrentTrack != nil {
			oldPos = old.CurrentTrack.PositionMs
		}
		delta := next.CurrentTrack.PositionMs - oldPos
		moved := delta >= positionDeltaMs || delta <= -positionDeltaMs
		// A playback transition always reports position so surfaces see
		// where the track froze or resumed.
		if trackChanged || moved || playbackChanged {
			changed = true
			m.bus.Publish(ctx, events.ZonePosition{
				ZoneEvent:  ev,
				PositionMs: next.CurrentTrack.PositionMs,
				DurationMs: next.CurrentTrack.DurationMs,
			})
		}
	}

	if !samePlaylist(old.CurrentPlaylist, next.CurrentPlaylist) {
		changed = true
		m.bus.Publish(ctx, events.ZonePlaylist{ZoneEvent: ev, Playlist: next.CurrentPlaylist})
	}
	if old.TrackRepeat != next.TrackRepeat || old.PlaylistRepeat != next.PlaylistRepeat {
		changed = true
		m.bus.Publish(ctx, events.ZoneRepeat{
			ZoneEvent:      ev,
			TrackRepeat:    next.TrackRepeat,
			PlaylistRepeat: next.PlaylistRepeat,
		})
	}
	if old.PlaylistShuffle != next.PlaylistShuffle {
		changed = true
		m.bus.Publish(ctx, events.ZoneShuffle{ZoneEvent: ev, Shuffle: next.PlaylistShuffle})
	}
	if !sameMembers(old.Clients, next.Clients) {
		changed = true
		m.bus.Publish(ctx, events.ZoneClients{ZoneEvent: ev, Clients: append([]int(nil), next.Clients...)})
	}

	if changed {
		m.bus.Publish(ctx, events.ZoneState{ZoneEvent: ev, Old: old, New: next})
	}
}

func (m *Manager) publishClientDiff(ctx context.Context, origin bus.Source, old, next model.Client) {
	ev := events.ClientEvent{Base: events.Base{Origin: origin}, Client: next.Index}
	changed := false

	if old.Volume != next.Volume {
		changed = true
		m.bus.Publish(ctx, events.ClientVolume{ClientEvent: ev, Volume: next.Volume})
	}
	if old.Mute != next.Mute {
		changed = true
		m.bus.Publish(ctx, events.ClientMute{ClientEvent: ev, Mute: next.Mute})
	}
	if old.LatencyMs != next.LatencyMs {
		changed = true
		m.bus.Publish(ctx, events.ClientLatency{ClientEvent: ev, LatencyMs: next.LatencyMs})
	}
	if old.Connected != next.Connected {
		changed = true
		m.bus.Publish(ctx, events.ClientConnection{ClientEvent: ev, Connected: next.Connected})
	}
	if old.EffectiveZone() != next.EffectiveZone() {
		changed = true
		m.bus.Publish(ctx, events.ClientZoneAssignment{
			ClientEvent: ev,
			Previous:    old.EffectiveZone(),
			Next:        next.EffectiveZone(),
		})
	}

	if changed || old.SnapcastClientID != next.SnapcastClientID {
		m.bus.Publish(ctx, events.ClientState{ClientEvent: ev, Old: old, New: next})
	}
}

func sameTrack(a, b *model.TrackInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SameTrack(*b)
}

func samePlaylist(a, b *model.PlaylistInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameMembers compares zone membership as a set; ordering differences
// are not a change.
func sameMembers(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int(nil), a...)
	bs := append([]int(nil), b...)
	sort.Ints(as)
	sort.Ints(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
