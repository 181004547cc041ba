// SPDX-License-Identifier: MIT

package knx

import (
	"github.com/vapourismo/knx-go/knx/cemi"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
)

// op enumerates the logical operations a command GA can map to.
type op int

const (
	opPlay op = iota
	opPause
	opStop
	opNext
	opPrev
	opVolume
	opMute
	opTrack
	opPlaylist
	opShuffle
	opRepeatTrack
	opRepeatPlaylist
	opClientVolume
	opClientMute
	opClientLatency
	opClientZone
)

// StatusField names a status group address slot of an entity.
type StatusField string

const (
	StatusVolume    StatusField = "volume"
	StatusMute      StatusField = "mute"
	StatusTrack     StatusField = "track"
	StatusPlaylist  StatusField = "playlist"
	StatusPlayback  StatusField = "playback"
	StatusShuffle   StatusField = "shuffle"
	StatusZone      StatusField = "zone"
	StatusConnected StatusField = "connected"
)

// binding ties an inbound GA to one entity operation.
type binding struct {
	zone   int
	client int
	op     op
}

// gaTable holds the bidirectional GA mappings built from configuration.
type gaTable struct {
	inbound      map[cemi.GroupAddr]binding
	zoneStatus   map[int]map[StatusField]cemi.GroupAddr
	clientStatus map[int]map[StatusField]cemi.GroupAddr
}

// newGATable builds the lookup tables. Configuration is validated
// upstream, so unparseable addresses are simply skipped here.
func newGATable(zones []config.ZoneConfig, clients []config.ClientConfig) *gaTable {
	t := &gaTable{
		inbound:      map[cemi.GroupAddr]binding{},
		zoneStatus:   map[int]map[StatusField]cemi.GroupAddr{},
		clientStatus: map[int]map[StatusField]cemi.GroupAddr{},
	}

	addCmd := func(ga string, b binding) {
		if ga == "" {
			return
		}
		if addr, err := cemi.NewGroupAddrString(ga); err == nil {
			t.inbound[addr] = b
		}
	}
	for i, z := range zones {
		if z.KNX == nil {
			continue
		}
		zi := i + 1
		k := z.KNX
		addCmd(k.Play, binding{zone: zi, op: opPlay})
		addCmd(k.Pause, binding{zone: zi, op: opPause})
		addCmd(k.Stop, binding{zone: zi, op: opStop})
		addCmd(k.TrackNext, binding{zone: zi, op: opNext})
		addCmd(k.TrackPrev, binding{zone: zi, op: opPrev})
		addCmd(k.Volume, binding{zone: zi, op: opVolume})
		addCmd(k.Mute, binding{zone: zi, op: opMute})
		addCmd(k.Track, binding{zone: zi, op: opTrack})
		addCmd(k.Playlist, binding{zone: zi, op: opPlaylist})
		addCmd(k.Shuffle, binding{zone: zi, op: opShuffle})
		addCmd(k.RepeatTrack, binding{zone: zi, op: opRepeatTrack})
		addCmd(k.RepeatPlaylist, binding{zone: zi, op: opRepeatPlaylist})

		t.zoneStatus[zi] = statusMap(map[StatusField]string{
			StatusVolume:   k.VolumeStatus,
			StatusMute:     k.MuteStatus,
			StatusTrack:    k.TrackStatus,
			StatusPlaylist: k.PlaylistStatus,
			StatusPlayback: k.PlaybackStatus,
			StatusShuffle:  k.ShuffleStatus,
		})
	}
	for i, c := range clients {
		if c.KNX == nil {
			continue
		}
		ci := i + 1
		k := c.KNX
		addCmd(k.Volume, binding{client: ci, op: opClientVolume})
		addCmd(k.Mute, binding{client: ci, op: opClientMute})
		addCmd(k.Latency, binding{client: ci, op: opClientLatency})
		addCmd(k.Zone, binding{client: ci, op: opClientZone})

		t.clientStatus[ci] = statusMap(map[StatusField]string{
			StatusVolume:    k.VolumeStatus,
			StatusMute:      k.MuteStatus,
			StatusZone:      k.ZoneStatus,
			StatusConnected: k.ConnectedStatus,
		})
	}
	return t
}

func statusMap(fields map[StatusField]string) map[StatusField]cemi.GroupAddr {
	out := map[StatusField]cemi.GroupAddr{}
	for f, ga := range fields {
		if ga == "" {
			continue
		}
		if addr, err := cemi.NewGroupAddrString(ga); err == nil {
			out[f] = addr
		}
	}
	return out
}

// groupAddresses lists every command GA for subscription-style logging.
func (t *gaTable) commandCount() int { return len(t.inbound) }

// command translates one inbound group write into a bus command.
// Telegrams for unmapped GAs return ok=false; mapped telegrams with
// undecodable payloads return an error.
func (t *gaTable) command(addr cemi.GroupAddr, data []byte) (bus.Command, bool, error) {
	b, ok := t.inbound[addr]
	if !ok {
		return nil, false, nil
	}

	if b.zone > 0 {
		zc := commands.ZoneCommand{Zone: b.zone, Source: bus.SourceKNX}
		switch b.op {
		case opPlay:
			// Switch semantics: on plays, off pauses.
			on, err := decodeBool(data)
			if err != nil {
				return nil, true, err
			}
			if on {
				return commands.Play{ZoneCommand: zc}, true, nil
			}
			return commands.Pause{ZoneCommand: zc}, true, nil
		case opPause:
			return commands.Pause{ZoneCommand: zc}, true, nil
		case opStop:
			return commands.Stop{ZoneCommand: zc}, true, nil
		case opNext:
			return commands.NextTrack{ZoneCommand: zc}, true, nil
		case opPrev:
			return commands.PrevTrack{ZoneCommand: zc}, true, nil
		case opVolume:
			v, err := decodeByte(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetZoneVolume{ZoneCommand: zc, Volume: int(v)}, true, nil
		case opMute:
			on, err := decodeBool(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetZoneMute{ZoneCommand: zc, Mute: on}, true, nil
		case opTrack:
			v, err := decodeByte(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetTrack{ZoneCommand: zc, Index: int(v)}, true, nil
		case opPlaylist:
			v, err := decodeByte(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetPlaylist{ZoneCommand: zc, Index: int(v)}, true, nil
		case opShuffle:
			on, err := decodeBool(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetShuffle{ZoneCommand: zc, Enabled: on}, true, nil
		case opRepeatTrack:
			on, err := decodeBool(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetTrackRepeat{ZoneCommand: zc, Enabled: on}, true, nil
		case opRepeatPlaylist:
			on, err := decodeBool(data)
			if err != nil {
				return nil, true, err
			}
			return commands.SetPlaylistRepeat{ZoneCommand: zc, Enabled: on}, true, nil
		}
	}

	cc := commands.ClientCommand{Client: b.client, Source: bus.SourceKNX}
	switch b.op {
	case opClientVolume:
		v, err := decodeByte(data)
		if err != nil {
			return nil, true, err
		}
		return commands.SetClientVolume{ClientCommand: cc, Volume: int(v)}, true, nil
	case opClientMute:
		on, err := decodeBool(data)
		if err != nil {
			return nil, true, err
		}
		return commands.SetClientMute{ClientCommand: cc, Mute: on}, true, nil
	case opClientLatency:
		v, err := decodeUint16(data)
		if err != nil {
			return nil, true, err
		}
		return commands.SetClientLatency{ClientCommand: cc, LatencyMs: int(v)}, true, nil
	case opClientZone:
		v, err := decodeByte(data)
		if err != nil {
			return nil, true, err
		}
		return commands.SetClientZone{ClientCommand: cc, Zone: int(v)}, true, nil
	}
	return nil, false, nil
}

// ZoneStatusGA resolves the status GA of a zone field.
func (t *gaTable) ZoneStatusGA(zone int, f StatusField) (cemi.GroupAddr, bool) {
	ga, ok := t.zoneStatus[zone][f]
	return ga, ok
}

// ClientStatusGA resolves the status GA of a client field.
func (t *gaTable) ClientStatusGA(client int, f StatusField) (cemi.GroupAddr, bool) {
	ga, ok := t.clientStatus[client][f]
	return ga, ok
}

// Telegram payload codecs. Small values (1 bit) ride in the APDU's low
// six bits, so a 1-bit payload is a single byte.

func decodeBool(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fault.Invalid("empty telegram payload")
	}
	return data[0]&0x01 == 1, nil
}

func decodeByte(data []byte) (uint8, error) {
	// DPT 5.010: one data byte after the APCI byte.
	if len(data) >= 2 {
		return data[1], nil
	}
	return 0, fault.Invalid("telegram payload too short for an unsigned byte")
}

func decodeUint16(data []byte) (uint16, error) {
	if len(data) >= 3 {
		return uint16(data[1])<<8 | uint16(data[2]), nil
	}
	return 0, fault.Invalid("telegram payload too short for an unsigned short")
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func encodeByte(v uint8) []byte { return []byte{0, v} }
