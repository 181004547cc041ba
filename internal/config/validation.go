// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)
	gaPattern  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{1,3}$`)
)

// Validate checks the whole configuration record. It returns the first
// violation found; startup treats any error as fatal (exit code 2).
func (c *Config) Validate() error {
	if len(c.Zones) == 0 {
		return fmt.Errorf("at least one zone must be configured (SNAPDOG_ZONE_1_NAME)")
	}

	if err := validateListenAddr(c.API.ListenAddr); err != nil {
		return fmt.Errorf("api listen address: %w", err)
	}
	if c.Snapcast.Port < 1 || c.Snapcast.Port > 65535 {
		return fmt.Errorf("snapcast port %d out of range", c.Snapcast.Port)
	}

	sinks := make(map[string]int)
	for i, z := range c.Zones {
		idx := i + 1
		if z.Name == "" {
			return fmt.Errorf("zone %d: name is required", idx)
		}
		if z.SinkPath == "" {
			return fmt.Errorf("zone %d: sink path is required", idx)
		}
		if prev, dup := sinks[z.SinkPath]; dup {
			return fmt.Errorf("zone %d: sink path %q already used by zone %d", idx, z.SinkPath, prev)
		}
		sinks[z.SinkPath] = idx
		if err := validateZoneKNX(idx, z.KNX); err != nil {
			return err
		}
	}

	macs := make(map[string]int)
	for i, cl := range c.Clients {
		idx := i + 1
		if cl.Name == "" {
			return fmt.Errorf("client %d: name is required", idx)
		}
		if !macPattern.MatchString(cl.Mac) {
			return fmt.Errorf("client %d: invalid mac %q (want lower-case aa:bb:cc:dd:ee:ff)", idx, cl.Mac)
		}
		if prev, dup := macs[cl.Mac]; dup {
			return fmt.Errorf("client %d: mac %q already used by client %d", idx, cl.Mac, prev)
		}
		macs[cl.Mac] = idx
		if cl.DefaultZone < 1 || cl.DefaultZone > len(c.Zones) {
			return fmt.Errorf("client %d: default zone %d does not exist", idx, cl.DefaultZone)
		}
		if err := validateClientKNX(idx, cl.KNX); err != nil {
			return err
		}
	}

	if c.KNX.Enabled {
		switch c.KNX.ConnType {
		case KNXConnTunnel, KNXConnRouting:
			if c.KNX.Gateway == "" {
				return fmt.Errorf("knx: gateway address is required for %s mode", c.KNX.ConnType)
			}
		case KNXConnUSB:
			// device auto-selected, nothing to validate
		default:
			return fmt.Errorf("knx: unknown connection type %q", c.KNX.ConnType)
		}
	}

	if c.Subsonic.Enabled {
		if c.Subsonic.URL == "" {
			return fmt.Errorf("subsonic: url is required when enabled")
		}
		switch c.Subsonic.Transcode {
		case TranscodeDisabled, TranscodeMp3, TranscodeOpus, TranscodeOgg:
		default:
			return fmt.Errorf("subsonic: unknown transcode format %q", c.Subsonic.Transcode)
		}
	}

	for i, r := range c.Radios {
		if r.URL == "" {
			return fmt.Errorf("radio %d (%s): url is required", i+1, r.Name)
		}
	}

	return nil
}

func validateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

func validateZoneKNX(zone int, k *ZoneKNX) error {
	if k == nil {
		return nil
	}
	fields := map[string]string{
		"play": k.Play, "pause": k.Pause, "stop": k.Stop,
		"track_next": k.TrackNext, "track_prev": k.TrackPrev,
		"volume": k.Volume, "volume_status": k.VolumeStatus,
		"mute": k.Mute, "mute_status": k.MuteStatus,
		"track": k.Track, "track_status": k.TrackStatus,
		"playlist": k.Playlist, "playlist_status": k.PlaylistStatus,
		"playback_status": k.PlaybackStatus,
		"shuffle":         k.Shuffle, "shuffle_status": k.ShuffleStatus,
		"repeat_track": k.RepeatTrack, "repeat_playlist": k.RepeatPlaylist,
	}
	return validateGAs(fmt.Sprintf("zone %d", zone), fields)
}

func validateClientKNX(client int, k *ClientKNX) error {
	if k == nil {
		return nil
	}
	fields := map[string]string{
		"volume": k.Volume, "volume_status": k.VolumeStatus,
		"mute": k.Mute, "mute_status": k.MuteStatus,
		"latency": k.Latency,
		"zone":    k.Zone, "zone_status": k.ZoneStatus,
		"connected_status": k.ConnectedStatus,
	}
	return validateGAs(fmt.Sprintf("client %d", client), fields)
}

func validateGAs(entity string, fields map[string]string) error {
	for name, ga := range fields {
		if ga == "" {
			continue
		}
		if !gaPattern.MatchString(ga) {
			return fmt.Errorf("%s: knx %s: invalid group address %q (want main/middle/sub)", entity, name, ga)
		}
		parts := strings.Split(ga, "/")
		main, _ := strconv.Atoi(parts[0])
		middle, _ := strconv.Atoi(parts[1])
		sub, _ := strconv.Atoi(parts[2])
		if main > 31 || middle > 7 || sub > 255 {
			return fmt.Errorf("%s: knx %s: group address %q out of range", entity, name, ga)
		}
	}
	return nil
}
