// SPDX-License-Identifier: MIT

// Package model holds the logical zone/client records that form the
// authoritative state of the controller. Records are value types; the
// state manager hands out copies, never references to live storage.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// Volume bounds for zones and clients.
const (
	VolumeMin = 0
	VolumeMax = 100
)

// LatencyMaxMs is the upper bound Snapcast accepts for client latency.
const LatencyMaxMs = 65535

var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// ValidVolume reports whether v lies in [VolumeMin, VolumeMax].
func ValidVolume(v int) bool {
	return v >= VolumeMin && v <= VolumeMax
}

// ClampVolume forces v into [VolumeMin, VolumeMax]. Used only for values
// received from Snapcast itself; command ingress rejects instead.
func ClampVolume(v int) int {
	if v < VolumeMin {
		return VolumeMin
	}
	if v > VolumeMax {
		return VolumeMax
	}
	return v
}

// ValidMac reports whether s is a lower-case colon-separated MAC address.
func ValidMac(s string) bool {
	return macPattern.MatchString(s)
}

// TrackInfo mirrors Subsonic track metadata. PositionMs is the only field
// refreshed after creation (from Snapcast stream position events).
type TrackInfo struct {
	Index      int    `json:"index"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	CoverID    string `json:"coverId,omitempty"`
	PositionMs int64  `json:"positionMs"`
	DurationMs int64  `json:"durationMs"`
}

// SameTrack reports metadata equality, ignoring PositionMs. Position
// changes are reported through a dedicated notification.
func (t TrackInfo) SameTrack(o TrackInfo) bool {
	t.PositionMs = 0
	o.PositionMs = 0
	return t == o
}

// PlaylistInfo mirrors Subsonic playlist metadata.
type PlaylistInfo struct {
	Index      int    `json:"index"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"trackCount"`
	CoverID    string `json:"coverId,omitempty"`
}

// Zone is a logical room: one Snapcast group with a playback pipeline.
type Zone struct {
	Index           int           `json:"index"`
	Name            string        `json:"name"`
	SinkPath        string        `json:"sinkPath"`
	Clients         []int         `json:"clients"`
	Playback        Playback      `json:"playback"`
	Volume          int           `json:"volume"`
	Mute            bool          `json:"mute"`
	TrackRepeat     bool          `json:"trackRepeat"`
	PlaylistRepeat  bool          `json:"playlistRepeat"`
	PlaylistShuffle bool          `json:"playlistShuffle"`
	CurrentPlaylist *PlaylistInfo `json:"currentPlaylist,omitempty"`
	CurrentTrack    *TrackInfo    `json:"currentTrack,omitempty"`
	LastMutated     time.Time     `json:"lastMutated"`
}

// HasClient reports whether client index ci is assigned to the zone.
func (z *Zone) HasClient(ci int) bool {
	for _, c := range z.Clients {
		if c == ci {
			return true
		}
	}
	return false
}

// Clone returns a deep value copy of the zone.
func (z Zone) Clone() Zone {
	out := z
	out.Clients = append([]int(nil), z.Clients...)
	if z.CurrentPlaylist != nil {
		pl := *z.CurrentPlaylist
		out.CurrentPlaylist = &pl
	}
	if z.CurrentTrack != nil {
		tr := *z.CurrentTrack
		out.CurrentTrack = &tr
	}
	return out
}

// Client is a Snapcast endpoint bound by default to a zone.
type Client struct {
	Index            int    `json:"index"`
	Name             string `json:"name"`
	Mac              string `json:"mac"`
	SnapcastClientID string `json:"snapcastClientId,omitempty"`
	DefaultZone      int    `json:"defaultZone"`
	CurrentZone      int    `json:"currentZone"`
	Connected        bool   `json:"connected"`
	Volume           int    `json:"volume"`
	Mute             bool   `json:"mute"`
	// PreMuteVolume remembers the audible volume across a mute cycle so
	// unmute restores it instead of guessing.
	PreMuteVolume int       `json:"-"`
	LatencyMs     int       `json:"latencyMs"`
	LastMutated   time.Time `json:"lastMutated"`
}

// Clone returns a value copy of the client.
func (c Client) Clone() Client { return c }

// EffectiveZone is the zone the client should be grouped into:
// CurrentZone when set, otherwise DefaultZone.
func (c *Client) EffectiveZone() int {
	if c.CurrentZone > 0 {
		return c.CurrentZone
	}
	return c.DefaultZone
}

// Validate checks the static invariants of a configured client record.
func (c *Client) Validate() error {
	if c.Index < 1 {
		return fmt.Errorf("client index must be >= 1, got %d", c.Index)
	}
	if c.Name == "" {
		return fmt.Errorf("client %d: name is required", c.Index)
	}
	if !ValidMac(c.Mac) {
		return fmt.Errorf("client %d: invalid mac %q (want lower-case aa:bb:cc:dd:ee:ff)", c.Index, c.Mac)
	}
	if c.DefaultZone < 1 {
		return fmt.Errorf("client %d: default zone must be >= 1, got %d", c.Index, c.DefaultZone)
	}
	if !ValidVolume(c.Volume) {
		return fmt.Errorf("client %d: volume %d out of range [0,100]", c.Index, c.Volume)
	}
	if c.LatencyMs < 0 || c.LatencyMs > LatencyMaxMs {
		return fmt.Errorf("client %d: latency %d out of range [0,%d]", c.Index, c.LatencyMs, LatencyMaxMs)
	}
	return nil
}

// Validate checks the static invariants of a configured zone record.
func (z *Zone) Validate() error {
	if z.Index < 1 {
		return fmt.Errorf("zone index must be >= 1, got %d", z.Index)
	}
	if z.Name == "" {
		return fmt.Errorf("zone %d: name is required", z.Index)
	}
	if z.SinkPath == "" {
		return fmt.Errorf("zone %d: sink path is required", z.Index)
	}
	if !ValidVolume(z.Volume) {
		return fmt.Errorf("zone %d: volume %d out of range [0,100]", z.Index, z.Volume)
	}
	if !z.Playback.IsValid() {
		return fmt.Errorf("zone %d: invalid playback state %q", z.Index, z.Playback)
	}
	return nil
}
