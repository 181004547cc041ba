// SPDX-License-Identifier: MIT

// Package handlers binds every bus command to its state mutation and
// adapter side effects. Each handler validates input before touching
// anything, issues the Snapcast call, and only then mutates the logical
// state so a failed adapter call leaves state untouched.
package handlers

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/model"
	"github.com/snapdog/snapdog/internal/snapcast"
	"github.com/snapdog/snapdog/internal/state"
)

// SnapControl is the slice of the Snapcast connection handlers call.
type SnapControl interface {
	IsConnected() bool
	GetServerStatus(ctx context.Context) (*snapcast.ServerStatus, error)
	SetClientVolume(ctx context.Context, clientID string, percent int, muted bool) error
	SetClientLatency(ctx context.Context, clientID string, latencyMs int) error
	SetGroupMute(ctx context.Context, groupID string, muted bool) error
}

// Regrouper triggers reconciliation passes.
type Regrouper interface {
	Trigger(ctx context.Context) (grouping.Outcome, error)
}

// Catalog is the slice of the media provider handlers need.
type Catalog interface {
	Playlist(ctx context.Context, index int) (model.PlaylistInfo, error)
	Tracks(ctx context.Context, index int) ([]model.TrackInfo, error)
	Track(ctx context.Context, playlist, track int) (model.TrackInfo, error)
}

// Handlers owns the wiring of all command handlers.
type Handlers struct {
	states  *state.Manager
	control SnapControl
	regroup Regrouper
	catalog Catalog
	sinks   map[string]int // zone sink path -> zone index
	logger  zerolog.Logger

	// streamZones caches the server's stream-id to zone mapping; it is
	// invalidated whenever the server reports a topology change.
	streamMu    sync.Mutex
	streamZones map[string]int
}

// New wires the handler set. sinkPaths maps each zone index to its
// configured sink path.
func New(states *state.Manager, control SnapControl, regroup Regrouper, catalog Catalog, sinkPaths map[int]string) *Handlers {
	sinks := make(map[string]int, len(sinkPaths))
	for zone, path := range sinkPaths {
		sinks[path] = zone
	}
	return &Handlers{
		states:  states,
		control: control,
		regroup: regroup,
		catalog: catalog,
		sinks:   sinks,
		logger:  log.WithComponent("handlers"),
	}
}

// Register binds every command name to its handler.
func (h *Handlers) Register(m *bus.Mediator) {
	m.MustRegister(commands.ZonePlay, h.handlePlay)
	m.MustRegister(commands.ZonePause, h.handlePause)
	m.MustRegister(commands.ZoneStop, h.handleStop)
	m.MustRegister(commands.ZoneNextTrack, h.handleNextTrack)
	m.MustRegister(commands.ZonePrevTrack, h.handlePrevTrack)
	m.MustRegister(commands.ZoneSetTrack, h.handleSetTrack)
	m.MustRegister(commands.ZoneSetPlaylist, h.handleSetPlaylist)
	m.MustRegister(commands.ZoneSetVolume, h.handleSetZoneVolume)
	m.MustRegister(commands.ZoneSetMute, h.handleSetZoneMute)
	m.MustRegister(commands.ZoneTrackRepeat, h.handleSetTrackRepeat)
	m.MustRegister(commands.ZonePlaylistRepeat, h.handleSetPlaylistRepeat)
	m.MustRegister(commands.ZoneShuffle, h.handleSetShuffle)

	m.MustRegister(commands.ClientSetVolume, h.handleSetClientVolume)
	m.MustRegister(commands.ClientSetMute, h.handleSetClientMute)
	m.MustRegister(commands.ClientSetLatency, h.handleSetClientLatency)
	m.MustRegister(commands.ClientSetZone, h.handleSetClientZone)

	m.MustRegister(commands.SnapcastClientConnected, h.handleSnapClientConnected)
	m.MustRegister(commands.SnapcastClientDisconnected, h.handleSnapClientDisconnected)
	m.MustRegister(commands.SnapcastClientVolume, h.handleSnapClientVolume)
	m.MustRegister(commands.SnapcastClientLatency, h.handleSnapClientLatency)
	m.MustRegister(commands.SnapcastGroupStream, h.handleSnapTopologyChange)
	m.MustRegister(commands.SnapcastServerUpdate, h.handleSnapTopologyChange)
	m.MustRegister(commands.SnapcastStreamPosition, h.handleSnapStreamPosition)
	m.MustRegister(commands.SnapcastConnectionChanged, h.handleSnapConnectionChanged)
}

// zoneGroupID resolves the Snapcast group currently bound to a zone's
// stream. Requires a live connection.
func (h *Handlers) zoneGroupID(ctx context.Context, zone int) (string, error) {
	z, err := h.states.Zone(zone)
	if err != nil {
		return "", err
	}
	status, err := h.control.GetServerStatus(ctx)
	if err != nil {
		return "", err
	}
	stream := status.StreamByPath(z.SinkPath)
	if stream == nil {
		return "", nil
	}
	for i := range status.Groups {
		if status.Groups[i].StreamID == stream.ID {
			return status.Groups[i].ID, nil
		}
	}
	return "", nil
}

// zoneForStream resolves a server stream id to a zone index, caching the
// mapping until the topology changes.
func (h *Handlers) zoneForStream(ctx context.Context, streamID string) int {
	h.streamMu.Lock()
	cached := h.streamZones
	h.streamMu.Unlock()

	if cached != nil {
		return cached[streamID]
	}

	status, err := h.control.GetServerStatus(ctx)
	if err != nil {
		return 0
	}
	fresh := make(map[string]int, len(status.Streams))
	for _, s := range status.Streams {
		if zone, ok := h.sinks[s.URI.Path]; ok {
			fresh[s.ID] = zone
		}
	}
	h.streamMu.Lock()
	h.streamZones = fresh
	h.streamMu.Unlock()
	return fresh[streamID]
}

func (h *Handlers) invalidateStreamCache() {
	h.streamMu.Lock()
	h.streamZones = nil
	h.streamMu.Unlock()
}
