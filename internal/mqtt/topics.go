// SPDX-License-Identifier: MIT

package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
)

// route identifies the entity a command topic belongs to. Exactly one
// of zone/client is non-zero.
type route struct {
	base   string
	zone   int
	client int
}

// routeTable maps configured entity base topics to their entities and
// answers inbound topic lookups.
type routeTable struct {
	routes []route
}

func newRouteTable(zones []config.ZoneConfig, clients []config.ClientConfig) *routeTable {
	t := &routeTable{}
	for i, z := range zones {
		if z.MQTTTopic != "" {
			t.routes = append(t.routes, route{base: strings.TrimSuffix(z.MQTTTopic, "/"), zone: i + 1})
		}
	}
	for i, c := range clients {
		if c.MQTTTopic != "" {
			t.routes = append(t.routes, route{base: strings.TrimSuffix(c.MQTTTopic, "/"), client: i + 1})
		}
	}
	return t
}

// subscriptions lists the command filter for every routed entity.
func (t *routeTable) subscriptions() []string {
	out := make([]string, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r.base+"/cmd/#")
	}
	return out
}

// match splits an inbound topic into its route and command suffix.
func (t *routeTable) match(topic string) (route, string, bool) {
	for _, r := range t.routes {
		if rest, ok := strings.CutPrefix(topic, r.base+"/cmd/"); ok && rest != "" {
			return r, rest, true
		}
	}
	return route{}, "", false
}

// command translates one (entity, suffix, payload) triple into a bus
// command. The suffix set is closed; anything else is Invalid.
func (t *routeTable) command(r route, suffix string, payload []byte) (bus.Command, error) {
	body := strings.TrimSpace(string(payload))

	if r.zone > 0 {
		zc := commands.ZoneCommand{Zone: r.zone, Source: bus.SourceMQTT}
		switch suffix {
		case "play":
			return commands.Play{ZoneCommand: zc}, nil
		case "pause":
			return commands.Pause{ZoneCommand: zc}, nil
		case "stop":
			return commands.Stop{ZoneCommand: zc}, nil
		case "next":
			return commands.NextTrack{ZoneCommand: zc}, nil
		case "prev":
			return commands.PrevTrack{ZoneCommand: zc}, nil
		case "track":
			n, err := parseInt(body)
			if err != nil {
				return nil, err
			}
			return commands.SetTrack{ZoneCommand: zc, Index: n}, nil
		case "playlist":
			n, err := parseInt(body)
			if err != nil {
				return nil, err
			}
			return commands.SetPlaylist{ZoneCommand: zc, Index: n}, nil
		case "volume":
			n, err := parseInt(body)
			if err != nil {
				return nil, err
			}
			return commands.SetZoneVolume{ZoneCommand: zc, Volume: n}, nil
		case "mute":
			b, err := parseBool(body)
			if err != nil {
				return nil, err
			}
			return commands.SetZoneMute{ZoneCommand: zc, Mute: b}, nil
		case "repeat/track":
			b, err := parseBool(body)
			if err != nil {
				return nil, err
			}
			return commands.SetTrackRepeat{ZoneCommand: zc, Enabled: b}, nil
		case "repeat/playlist":
			b, err := parseBool(body)
			if err != nil {
				return nil, err
			}
			return commands.SetPlaylistRepeat{ZoneCommand: zc, Enabled: b}, nil
		case "shuffle":
			b, err := parseBool(body)
			if err != nil {
				return nil, err
			}
			return commands.SetShuffle{ZoneCommand: zc, Enabled: b}, nil
		}
		return nil, fault.Invalid("unknown zone command topic suffix %q", suffix)
	}

	cc := commands.ClientCommand{Client: r.client, Source: bus.SourceMQTT}
	switch suffix {
	case "volume":
		n, err := parseInt(body)
		if err != nil {
			return nil, err
		}
		return commands.SetClientVolume{ClientCommand: cc, Volume: n}, nil
	case "mute":
		b, err := parseBool(body)
		if err != nil {
			return nil, err
		}
		return commands.SetClientMute{ClientCommand: cc, Mute: b}, nil
	case "zone":
		n, err := parseInt(body)
		if err != nil {
			return nil, err
		}
		return commands.SetClientZone{ClientCommand: cc, Zone: n}, nil
	case "latency":
		n, err := parseInt(body)
		if err != nil {
			return nil, err
		}
		return commands.SetClientLatency{ClientCommand: cc, LatencyMs: n}, nil
	}
	return nil, fault.Invalid("unknown client command topic suffix %q", suffix)
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fault.Invalid("expected integer payload, got %q", s)
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on":
		return true, nil
	case "0", "false", "off":
		return false, nil
	}
	return false, fault.Invalid("expected boolean payload, got %q", s)
}

// statusTopic joins an entity base with a status suffix.
func statusTopic(base, suffix string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(base, "/"), suffix)
}
