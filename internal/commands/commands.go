// SPDX-License-Identifier: MIT

// Package commands enumerates every command type carried by the bus.
// Adapters construct these from their wire formats; handlers consume
// them. Names are the registry keys of the mediator.
package commands

import (
	"fmt"

	"github.com/snapdog/snapdog/internal/bus"
)

// Command names, grouped by entity.
const (
	ZonePlay           = "zone.play"
	ZonePause          = "zone.pause"
	ZoneStop           = "zone.stop"
	ZoneNextTrack      = "zone.next_track"
	ZonePrevTrack      = "zone.prev_track"
	ZoneSetTrack       = "zone.set_track"
	ZoneSetPlaylist    = "zone.set_playlist"
	ZoneSetVolume      = "zone.set_volume"
	ZoneSetMute        = "zone.set_mute"
	ZoneTrackRepeat    = "zone.set_track_repeat"
	ZonePlaylistRepeat = "zone.set_playlist_repeat"
	ZoneShuffle        = "zone.set_shuffle"

	ClientSetVolume  = "client.set_volume"
	ClientSetMute    = "client.set_mute"
	ClientSetLatency = "client.set_latency"
	ClientSetZone    = "client.set_zone"

	SnapcastClientConnected    = "snapcast.client_connected"
	SnapcastClientDisconnected = "snapcast.client_disconnected"
	SnapcastClientVolume       = "snapcast.client_volume"
	SnapcastClientLatency      = "snapcast.client_latency"
	SnapcastGroupStream        = "snapcast.group_stream"
	SnapcastServerUpdate       = "snapcast.server_update"
	SnapcastStreamPosition     = "snapcast.stream_position"
	SnapcastConnectionChanged  = "snapcast.connection_changed"
)

func zoneKey(i int) string   { return fmt.Sprintf("zone/%d", i) }
func clientKey(i int) string { return fmt.Sprintf("client/%d", i) }

// snapcastKey serializes all Snapcast-originated events so their relative
// order on the wire is preserved through the bus.
const snapcastKey = "snapcast/events"

// ZoneCommand is the shared shape of commands addressed to one zone.
type ZoneCommand struct {
	Zone   int
	Source bus.Source
}

func (c ZoneCommand) CommandSource() bus.Source { return c.Source }
func (c ZoneCommand) TargetKey() string         { return zoneKey(c.Zone) }

// ClientCommand is the shared shape of commands addressed to one client.
type ClientCommand struct {
	Client int
	Source bus.Source
}

func (c ClientCommand) CommandSource() bus.Source { return c.Source }
func (c ClientCommand) TargetKey() string         { return clientKey(c.Client) }

// Play starts or resumes playback in a zone.
type Play struct{ ZoneCommand }

func (Play) CommandName() string { return ZonePlay }

// Pause pauses playback in a zone.
type Pause struct{ ZoneCommand }

func (Pause) CommandName() string { return ZonePause }

// Stop stops playback in a zone.
type Stop struct{ ZoneCommand }

func (Stop) CommandName() string { return ZoneStop }

// NextTrack advances to the next track of the current playlist.
type NextTrack struct{ ZoneCommand }

func (NextTrack) CommandName() string { return ZoneNextTrack }

// PrevTrack returns to the previous track of the current playlist.
type PrevTrack struct{ ZoneCommand }

func (PrevTrack) CommandName() string { return ZonePrevTrack }

// SetTrack selects a 1-based track index within the current playlist.
type SetTrack struct {
	ZoneCommand
	Index int
}

func (SetTrack) CommandName() string { return ZoneSetTrack }

// SetPlaylist loads a 1-based playlist index into the zone.
type SetPlaylist struct {
	ZoneCommand
	Index int
}

func (SetPlaylist) CommandName() string { return ZoneSetPlaylist }

// SetZoneVolume sets the zone volume [0,100].
type SetZoneVolume struct {
	ZoneCommand
	Volume int
}

func (SetZoneVolume) CommandName() string { return ZoneSetVolume }

// SetZoneMute sets the zone mute flag.
type SetZoneMute struct {
	ZoneCommand
	Mute bool
}

func (SetZoneMute) CommandName() string { return ZoneSetMute }

// SetTrackRepeat toggles single-track repeat.
type SetTrackRepeat struct {
	ZoneCommand
	Enabled bool
}

func (SetTrackRepeat) CommandName() string { return ZoneTrackRepeat }

// SetPlaylistRepeat toggles playlist repeat.
type SetPlaylistRepeat struct {
	ZoneCommand
	Enabled bool
}

func (SetPlaylistRepeat) CommandName() string { return ZonePlaylistRepeat }

// SetShuffle toggles playlist shuffle.
type SetShuffle struct {
	ZoneCommand
	Enabled bool
}

func (SetShuffle) CommandName() string { return ZoneShuffle }

// SetClientVolume sets a client volume [0,100].
type SetClientVolume struct {
	ClientCommand
	Volume int
}

func (SetClientVolume) CommandName() string { return ClientSetVolume }

// SetClientMute sets a client mute flag. Mute is first-class: the
// pre-mute volume is preserved and restored on unmute.
type SetClientMute struct {
	ClientCommand
	Mute bool
}

func (SetClientMute) CommandName() string { return ClientSetMute }

// SetClientLatency sets the client latency in milliseconds [0,65535].
type SetClientLatency struct {
	ClientCommand
	LatencyMs int
}

func (SetClientLatency) CommandName() string { return ClientSetLatency }

// SetClientZone moves a client to another zone.
type SetClientZone struct {
	ClientCommand
	Zone int
}

func (SetClientZone) CommandName() string { return ClientSetZone }

// SnapcastEvent is the shared shape of commands derived from Snapcast
// server notifications. They are serialized on one key so wire order is
// preserved.
type SnapcastEvent struct{}

func (SnapcastEvent) CommandSource() bus.Source { return bus.SourceInternal }
func (SnapcastEvent) TargetKey() string         { return snapcastKey }

// ClientConnected reports a Snapcast client appearing on the server.
type ClientConnected struct {
	SnapcastEvent
	SnapcastID string
	Mac        string
	Name       string
}

func (ClientConnected) CommandName() string { return SnapcastClientConnected }

// ClientDisconnected reports a Snapcast client going away.
type ClientDisconnected struct {
	SnapcastEvent
	SnapcastID string
}

func (ClientDisconnected) CommandName() string { return SnapcastClientDisconnected }

// ClientVolumeReported carries a client volume/mute state observed by
// Snapcast. Out-of-range values are clamped by the handler, not rejected.
type ClientVolumeReported struct {
	SnapcastEvent
	SnapcastID string
	Volume     int
	Mute       bool
}

func (ClientVolumeReported) CommandName() string { return SnapcastClientVolume }

// ClientLatencyReported carries a latency the server reported for a
// client, usually after an out-of-band change through snapweb.
type ClientLatencyReported struct {
	SnapcastEvent
	SnapcastID string
	LatencyMs  int
}

func (ClientLatencyReported) CommandName() string { return SnapcastClientLatency }

// GroupStreamChanged reports a Snapcast group switching streams.
type GroupStreamChanged struct {
	SnapcastEvent
	GroupID string
	Stream  string
}

func (GroupStreamChanged) CommandName() string { return SnapcastGroupStream }

// ServerUpdated reports a full server state change; the grouping service
// reacts with a reconciliation pass.
type ServerUpdated struct {
	SnapcastEvent
}

func (ServerUpdated) CommandName() string { return SnapcastServerUpdate }

// StreamPosition carries the playback position reported for a stream.
// The handler resolves the stream id to a zone through its sink path.
type StreamPosition struct {
	SnapcastEvent
	Stream     string
	PositionMs int64
}

func (StreamPosition) CommandName() string { return SnapcastStreamPosition }

// ConnectionChanged reports the Snapcast adapter going up or down.
type ConnectionChanged struct {
	SnapcastEvent
	Connected bool
}

func (ConnectionChanged) CommandName() string { return SnapcastConnectionChanged }
