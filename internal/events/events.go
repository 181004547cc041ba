// SPDX-License-Identifier: MIT

// Package events enumerates every notification type published on the
// bus. Notifications carry the Origin of the mutation that produced
// them; integration publishers use it to avoid echoing a change back to
// the surface it came from.
package events

import (
	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/model"
)

// Notification names.
const (
	ZoneVolumeChanged         = "zone.volume_changed"
	ZoneMuteChanged           = "zone.mute_changed"
	ZonePlaybackChanged       = "zone.playback_changed"
	ZoneTrackChanged          = "zone.track_changed"
	ZonePositionChanged       = "zone.position_changed"
	ZonePlaylistChanged       = "zone.playlist_changed"
	ZoneRepeatChanged         = "zone.repeat_changed"
	ZoneShuffleChanged        = "zone.shuffle_changed"
	ZoneClientsChanged        = "zone.clients_changed"
	ZoneStateChanged          = "zone.state_changed"
	ClientVolumeChanged       = "client.volume_changed"
	ClientMuteChanged         = "client.mute_changed"
	ClientLatencyChanged      = "client.latency_changed"
	ClientConnectionChanged   = "client.connection_changed"
	ClientZoneChanged         = "client.zone_changed"
	ClientStateChanged        = "client.state_changed"
	SystemStatusChanged       = "system.status_changed"
	AdapterConnectionChanged  = "system.adapter_connection_changed"
	GroupingReconcileFinished = "system.grouping_reconciled"
)

// Base carries the fields common to all notifications.
type Base struct {
	// Origin is the surface whose command produced this change.
	Origin bus.Source
}

// ZoneEvent is the shared shape of zone-scoped notifications.
type ZoneEvent struct {
	Base
	Zone int
}

// ZoneVolume reports a zone volume change.
type ZoneVolume struct {
	ZoneEvent
	Volume int
}

func (ZoneVolume) NotificationName() string { return ZoneVolumeChanged }

// ZoneMute reports a zone mute change.
type ZoneMute struct {
	ZoneEvent
	Mute bool
}

func (ZoneMute) NotificationName() string { return ZoneMuteChanged }

// ZonePlayback reports a playback state transition.
type ZonePlayback struct {
	ZoneEvent
	Playback model.Playback
}

func (ZonePlayback) NotificationName() string { return ZonePlaybackChanged }

// ZoneTrack reports the current track changing. Nil means playback was
// cleared. Position-only updates are reported separately through
// ZonePosition.
type ZoneTrack struct {
	ZoneEvent
	Track *model.TrackInfo
}

func (ZoneTrack) NotificationName() string { return ZoneTrackChanged }

// ZonePosition reports playback position progress within the current
// track. The state manager suppresses deltas under 500 ms unless the
// playback state changed in the same mutation.
type ZonePosition struct {
	ZoneEvent
	PositionMs int64
	DurationMs int64
}

func (ZonePosition) NotificationName() string { return ZonePositionChanged }

// ZonePlaylist reports the active playlist changing. Nil means no
// playlist is loaded.
type ZonePlaylist struct {
	ZoneEvent
	Playlist *model.PlaylistInfo
}

func (ZonePlaylist) NotificationName() string { return ZonePlaylistChanged }

// ZoneRepeat reports either repeat flag changing.
type ZoneRepeat struct {
	ZoneEvent
	TrackRepeat    bool
	PlaylistRepeat bool
}

func (ZoneRepeat) NotificationName() string { return ZoneRepeatChanged }

// ZoneShuffle reports the shuffle flag changing.
type ZoneShuffle struct {
	ZoneEvent
	Shuffle bool
}

func (ZoneShuffle) NotificationName() string { return ZoneShuffleChanged }

// ZoneClients reports the zone's client membership changing. Clients
// holds the member indices in ascending order; reordering alone is not
// a change.
type ZoneClients struct {
	ZoneEvent
	Clients []int
}

func (ZoneClients) NotificationName() string { return ZoneClientsChanged }

// ZoneState is the composite notification carrying full before/after
// snapshots. Published alongside the field notifications whenever any
// zone field changed.
type ZoneState struct {
	ZoneEvent
	Old model.Zone
	New model.Zone
}

func (ZoneState) NotificationName() string { return ZoneStateChanged }

// ClientEvent is the shared shape of client-scoped notifications.
type ClientEvent struct {
	Base
	Client int
}

// ClientVolume reports a client volume change.
type ClientVolume struct {
	ClientEvent
	Volume int
}

func (ClientVolume) NotificationName() string { return ClientVolumeChanged }

// ClientMute reports a client mute change.
type ClientMute struct {
	ClientEvent
	Mute bool
}

func (ClientMute) NotificationName() string { return ClientMuteChanged }

// ClientLatency reports a client latency change.
type ClientLatency struct {
	ClientEvent
	LatencyMs int
}

func (ClientLatency) NotificationName() string { return ClientLatencyChanged }

// ClientConnection reports a client connecting to or leaving the
// Snapcast server.
type ClientConnection struct {
	ClientEvent
	Connected bool
}

func (ClientConnection) NotificationName() string { return ClientConnectionChanged }

// ClientZoneAssignment reports a client moving between zones. Previous
// is 0 when the client had no zone.
type ClientZoneAssignment struct {
	ClientEvent
	Previous int
	Next     int
}

func (ClientZoneAssignment) NotificationName() string { return ClientZoneChanged }

// ClientState is the composite before/after snapshot for a client.
type ClientState struct {
	ClientEvent
	Old model.Client
	New model.Client
}

func (ClientState) NotificationName() string { return ClientStateChanged }

// SystemStatus reports overall daemon health transitions.
type SystemStatus struct {
	Base
	Online bool
}

func (SystemStatus) NotificationName() string { return SystemStatusChanged }

// AdapterConnection reports an external adapter going up or down.
type AdapterConnection struct {
	Base
	Adapter   string
	Connected bool
}

func (AdapterConnection) NotificationName() string { return AdapterConnectionChanged }

// GroupingReconciled reports the outcome of a grouping reconciliation
// pass against the Snapcast server.
type GroupingReconciled struct {
	Base
	Outcome string // healthy, reconciled, degraded
	Moves   int
}

func (GroupingReconciled) NotificationName() string { return GroupingReconcileFinished }
