// SPDX-License-Identifier: MIT

// Package publisher translates bus notifications into MQTT status
// topics and KNX status group writes. Each integration runs as its own
// subscriber with echo suppression: a change that arrived through a
// surface is never published back to that same surface.
package publisher

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vapourismo/knx-go/knx/cemi"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/events"
	"github.com/snapdog/snapdog/internal/knx"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/model"
	"github.com/snapdog/snapdog/internal/version"
)

// MQTTSink is the outbound slice of the MQTT adapter.
type MQTTSink interface {
	Publish(topic string, payload []byte, retain bool) error
	IsConnected() bool
}

// KNXSink is the outbound slice of the KNX adapter.
type KNXSink interface {
	ZoneStatusGA(zone int, f knx.StatusField) (cemi.GroupAddr, bool)
	ClientStatusGA(client int, f knx.StatusField) (cemi.GroupAddr, bool)
	WriteBool(ga cemi.GroupAddr, v bool)
	WriteByte(ga cemi.GroupAddr, v int)
	IsConnected() bool
}

// States provides full snapshots for the startup publish.
type States interface {
	Zones() []model.Zone
	Clients() []model.Client
}

// Publisher fans state changes out to the integrations.
type Publisher struct {
	states States
	mqtt   MQTTSink // nil when the integration is disabled
	knx    KNXSink  // nil when the integration is disabled
	logger zerolog.Logger

	baseTopic   string
	zoneBases   map[int]string
	clientBases map[int]string

	started time.Time
}

// New builds a publisher. Either sink may be nil.
func New(cfg *config.Config, states States, mqttSink MQTTSink, knxSink KNXSink) *Publisher {
	p := &Publisher{
		states:      states,
		mqtt:        mqttSink,
		knx:         knxSink,
		logger:      log.WithComponent("publisher"),
		baseTopic:   cfg.MQTT.BaseTopic,
		zoneBases:   map[int]string{},
		clientBases: map[int]string{},
		started:     time.Now(),
	}
	for i, z := range cfg.Zones {
		if z.MQTTTopic != "" {
			p.zoneBases[i+1] = trimSlash(z.MQTTTopic)
		}
	}
	for i, c := range cfg.Clients {
		if c.MQTTTopic != "" {
			p.clientBases[i+1] = trimSlash(c.MQTTTopic)
		}
	}
	return p
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Attach registers one subscriber per integration on the mediator.
func (p *Publisher) Attach(m *bus.Mediator) {
	if p.mqtt != nil {
		m.Subscribe(bus.SubscribeAll, "publisher.mqtt", p.handleMQTT)
	}
	if p.knx != nil {
		m.Subscribe(bus.SubscribeAll, "publisher.knx", p.handleKNX)
	}
}

// PublishInitial pushes the complete current state to every integration:
// a global snapshot plus one composite per zone and client. Failures are
// logged, never fatal.
func (p *Publisher) PublishInitial(ctx context.Context) {
	zones := p.states.Zones()
	clients := p.states.Clients()

	if p.mqtt != nil {
		p.publishGlobalSnapshot(len(zones), len(clients))
		for _, z := range zones {
			p.publishZoneFull(z)
		}
		for _, c := range clients {
			p.publishClientFull(c)
		}
	}
	if p.knx != nil {
		for _, z := range zones {
			p.writeZoneFull(z)
		}
		for _, c := range clients {
			p.writeClientFull(c)
		}
	}
	p.logger.Info().
		Str("event", "publisher.initial_publish").
		Int("zones", len(zones)).
		Int("clients", len(clients)).
		Msg("initial state published")
}

type globalSnapshot struct {
	Version string `json:"version"`
	UptimeS int64  `json:"uptimeS"`
	Zones   int    `json:"zones"`
	Clients int    `json:"clients"`
}

func (p *Publisher) publishGlobalSnapshot(zones, clients int) {
	p.pub(p.baseTopic+"/state", mustJSON(globalSnapshot{
		Version: version.Version,
		UptimeS: int64(time.Since(p.started).Seconds()),
		Zones:   zones,
		Clients: clients,
	}), true)
}

// MQTT side.

func (p *Publisher) handleMQTT(ctx context.Context, n bus.Notification) error {
	switch e := n.(type) {
	case events.ZoneVolume:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.zonePub(e.Zone, "volume", itoa(e.Volume), true)
	case events.ZoneMute:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.zonePub(e.Zone, "mute", boolPayload(e.Mute), true)
	case events.ZonePlayback:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.zonePub(e.Zone, "playback", []byte(e.Playback.String()), true)
	case events.ZoneTrack:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.publishTrack(e.Zone, e.Track)
	case events.ZonePosition:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.zonePub(e.Zone, "position", itoa64(e.PositionMs), true)
	case events.ZonePlaylist:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.publishPlaylist(e.Zone, e.Playlist)
	case events.ZoneRepeat:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.zonePub(e.Zone, "repeat/track", boolPayload(e.TrackRepeat), true)
		p.zonePub(e.Zone, "repeat/playlist", boolPayload(e.PlaylistRepeat), true)
	case events.ZoneShuffle:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.zonePub(e.Zone, "shuffle", boolPayload(e.Shuffle), true)
	case events.ZoneClients:
		// Membership only ever changes internally, never over MQTT.
		p.zonePub(e.Zone, "clients", mustJSON(e.Clients), true)
	case events.ZoneState:
		// The composite always goes out, even for MQTT-origin changes:
		// it is the authoritative record, not an echo of one field.
		p.zonePub(e.Zone, "state", mustJSON(e.New), true)
	case events.ClientVolume:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.clientPub(e.Client, "volume", itoa(e.Volume), true)
	case events.ClientMute:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.clientPub(e.Client, "mute", boolPayload(e.Mute), true)
	case events.ClientLatency:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.clientPub(e.Client, "latency", itoa(e.LatencyMs), true)
	case events.ClientConnection:
		p.clientPub(e.Client, "connected", boolPayload(e.Connected), true)
	case events.ClientZoneAssignment:
		if e.Origin == bus.SourceMQTT {
			return nil
		}
		p.clientPub(e.Client, "zone", itoa(e.Next), true)
	case events.ClientState:
		p.clientPub(e.Client, "state", mustJSON(e.New), true)
	case events.SystemStatus:
		p.pub(p.baseTopic+"/status", onlinePayload(e.Online), true)
	}
	return nil
}

func (p *Publisher) publishTrack(zone int, t *model.TrackInfo) {
	if t == nil {
		p.zonePub(zone, "track", []byte("0"), true)
		p.zonePub(zone, "track/info", []byte("{}"), true)
		return
	}
	p.zonePub(zone, "track", itoa(t.Index), true)
	p.zonePub(zone, "track/info", mustJSON(t), true)
}

func (p *Publisher) publishPlaylist(zone int, pl *model.PlaylistInfo) {
	if pl == nil {
		p.zonePub(zone, "playlist", []byte("0"), true)
		p.zonePub(zone, "playlist/info", []byte("{}"), true)
		return
	}
	p.zonePub(zone, "playlist", itoa(pl.Index), true)
	p.zonePub(zone, "playlist/info", mustJSON(pl), true)
}

func (p *Publisher) publishZoneFull(z model.Zone) {
	p.zonePub(z.Index, "volume", itoa(z.Volume), true)
	p.zonePub(z.Index, "mute", boolPayload(z.Mute), true)
	p.zonePub(z.Index, "playback", []byte(z.Playback.String()), true)
	p.zonePub(z.Index, "repeat/track", boolPayload(z.TrackRepeat), true)
	p.zonePub(z.Index, "repeat/playlist", boolPayload(z.PlaylistRepeat), true)
	p.zonePub(z.Index, "shuffle", boolPayload(z.PlaylistShuffle), true)
	p.publishTrack(z.Index, z.CurrentTrack)
	p.publishPlaylist(z.Index, z.CurrentPlaylist)
	p.zonePub(z.Index, "state", mustJSON(z), true)
}

func (p *Publisher) publishClientFull(c model.Client) {
	p.clientPub(c.Index, "volume", itoa(c.Volume), true)
	p.clientPub(c.Index, "mute", boolPayload(c.Mute), true)
	p.clientPub(c.Index, "latency", itoa(c.LatencyMs), true)
	p.clientPub(c.Index, "zone", itoa(c.EffectiveZone()), true)
	p.clientPub(c.Index, "connected", boolPayload(c.Connected), true)
	p.clientPub(c.Index, "state", mustJSON(c), true)
}

func (p *Publisher) zonePub(zone int, suffix string, payload []byte, retain bool) {
	base, ok := p.zoneBases[zone]
	if !ok {
		return
	}
	p.pub(base+"/"+suffix, payload, retain)
}

func (p *Publisher) clientPub(client int, suffix string, payload []byte, retain bool) {
	base, ok := p.clientBases[client]
	if !ok {
		return
	}
	p.pub(base+"/"+suffix, payload, retain)
}

func (p *Publisher) pub(topic string, payload []byte, retain bool) {
	if err := p.mqtt.Publish(topic, payload, retain); err != nil {
		p.logger.Warn().
			Err(err).
			Str("event", "publisher.mqtt_publish_failed").
			Str("topic", topic).
			Msg("status publish dropped")
	}
}

// KNX side.

func (p *Publisher) handleKNX(ctx context.Context, n bus.Notification) error {
	switch e := n.(type) {
	case events.ZoneVolume:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeZoneByte(e.Zone, knx.StatusVolume, e.Volume)
	case events.ZoneMute:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeZoneBool(e.Zone, knx.StatusMute, e.Mute)
	case events.ZonePlayback:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeZoneByte(e.Zone, knx.StatusPlayback, int(e.Playback.KNXValue()))
	case events.ZoneTrack:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeZoneByte(e.Zone, knx.StatusTrack, trackIndex(e.Track))
	case events.ZonePlaylist:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeZoneByte(e.Zone, knx.StatusPlaylist, playlistIndex(e.Playlist))
	case events.ZoneShuffle:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeZoneBool(e.Zone, knx.StatusShuffle, e.Shuffle)
	case events.ClientVolume:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeClientByte(e.Client, knx.StatusVolume, e.Volume)
	case events.ClientMute:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeClientBool(e.Client, knx.StatusMute, e.Mute)
	case events.ClientConnection:
		p.writeClientBool(e.Client, knx.StatusConnected, e.Connected)
	case events.ClientZoneAssignment:
		if e.Origin == bus.SourceKNX {
			return nil
		}
		p.writeClientByte(e.Client, knx.StatusZone, e.Next)
	}
	return nil
}

func trackIndex(t *model.TrackInfo) int {
	if t == nil {
		return 0
	}
	return t.Index
}

func playlistIndex(pl *model.PlaylistInfo) int {
	if pl == nil {
		return 0
	}
	return pl.Index
}

func (p *Publisher) writeZoneFull(z model.Zone) {
	p.writeZoneByte(z.Index, knx.StatusVolume, z.Volume)
	p.writeZoneBool(z.Index, knx.StatusMute, z.Mute)
	p.writeZoneByte(z.Index, knx.StatusPlayback, int(z.Playback.KNXValue()))
	p.writeZoneByte(z.Index, knx.StatusTrack, trackIndex(z.CurrentTrack))
	p.writeZoneByte(z.Index, knx.StatusPlaylist, playlistIndex(z.CurrentPlaylist))
	p.writeZoneBool(z.Index, knx.StatusShuffle, z.PlaylistShuffle)
}

func (p *Publisher) writeClientFull(c model.Client) {
	p.writeClientByte(c.Index, knx.StatusVolume, c.Volume)
	p.writeClientBool(c.Index, knx.StatusMute, c.Mute)
	p.writeClientByte(c.Index, knx.StatusZone, c.EffectiveZone())
	p.writeClientBool(c.Index, knx.StatusConnected, c.Connected)
}

func (p *Publisher) writeZoneBool(zone int, f knx.StatusField, v bool) {
	if ga, ok := p.knx.ZoneStatusGA(zone, f); ok {
		p.knx.WriteBool(ga, v)
	}
}

func (p *Publisher) writeZoneByte(zone int, f knx.StatusField, v int) {
	if ga, ok := p.knx.ZoneStatusGA(zone, f); ok {
		p.knx.WriteByte(ga, v)
	}
}

func (p *Publisher) writeClientBool(client int, f knx.StatusField, v bool) {
	if ga, ok := p.knx.ClientStatusGA(client, f); ok {
		p.knx.WriteBool(ga, v)
	}
}

func (p *Publisher) writeClientByte(client int, f knx.StatusField, v int) {
	if ga, ok := p.knx.ClientStatusGA(client, f); ok {
		p.knx.WriteByte(ga, v)
	}
}

// Payload helpers.

func itoa(v int) []byte     { return []byte(strconv.Itoa(v)) }
func itoa64(v int64) []byte { return []byte(strconv.FormatInt(v, 10)) }

func boolPayload(v bool) []byte {
	if v {
		return []byte("1")
	}
	return []byte("0")
}

func onlinePayload(v bool) []byte {
	if v {
		return []byte("online")
	}
	return []byte("offline")
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
