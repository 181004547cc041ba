// SPDX-License-Identifier: MIT

package publisher

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vapourismo/knx-go/knx/cemi"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/events"
	"github.com/snapdog/snapdog/internal/knx"
	"github.com/snapdog/snapdog/internal/model"
)

type mqttRecorder struct {
	mu   sync.Mutex
	msgs map[string]string
}

func newMQTTRecorder() *mqttRecorder { return &mqttRecorder{msgs: map[string]string{}} }

func (r *mqttRecorder) Publish(topic string, payload []byte, retain bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[topic] = string(payload)
	return nil
}

func (r *mqttRecorder) IsConnected() bool { return true }

func (r *mqttRecorder) get(topic string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.msgs[topic]
	return v, ok
}

type knxWrite struct {
	ga   cemi.GroupAddr
	bval bool
	ival int
	bit  bool
}

type knxRecorder struct {
	adapter *knx.Adapter // only for GA lookups
	mu      sync.Mutex
	writes  []knxWrite
}

func (r *knxRecorder) ZoneStatusGA(zone int, f knx.StatusField) (cemi.GroupAddr, bool) {
	return r.adapter.ZoneStatusGA(zone, f)
}

func (r *knxRecorder) ClientStatusGA(client int, f knx.StatusField) (cemi.GroupAddr, bool) {
	return r.adapter.ClientStatusGA(client, f)
}

func (r *knxRecorder) WriteBool(ga cemi.GroupAddr, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, knxWrite{ga: ga, bval: v, bit: true})
}

func (r *knxRecorder) WriteByte(ga cemi.GroupAddr, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, knxWrite{ga: ga, ival: v})
}

func (r *knxRecorder) IsConnected() bool { return true }

func (r *knxRecorder) all() []knxWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]knxWrite(nil), r.writes...)
}

type fakeStates struct {
	zones   []model.Zone
	clients []model.Client
}

func (f *fakeStates) Zones() []model.Zone     { return f.zones }
func (f *fakeStates) Clients() []model.Client { return f.clients }

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{BaseTopic: "snapdog"},
		Zones: []config.ZoneConfig{
			{Name: "Living Room", SinkPath: "/s/l", MQTTTopic: "snapdog/zones/living/", KNX: &config.ZoneKNX{
				VolumeStatus:   "1/2/2",
				MuteStatus:     "1/2/4",
				PlaybackStatus: "1/3/5",
				TrackStatus:    "1/3/2",
				PlaylistStatus: "1/3/4",
				ShuffleStatus:  "1/4/2",
			}},
			{Name: "Kitchen", SinkPath: "/s/k"}, // no surfaces
		},
		Clients: []config.ClientConfig{
			{Name: "Living Speaker", Mac: "aa:bb:cc:dd:ee:01", DefaultZone: 1, MQTTTopic: "snapdog/clients/living", KNX: &config.ClientKNX{
				VolumeStatus:    "2/1/2",
				MuteStatus:      "2/1/4",
				ZoneStatus:      "2/2/3",
				ConnectedStatus: "2/2/4",
			}},
		},
	}
}

func newRig(t *testing.T) (*Publisher, *mqttRecorder, *knxRecorder) {
	t.Helper()
	cfg := testConfig()
	mq := newMQTTRecorder()
	kn := &knxRecorder{adapter: knx.New(cfg.KNX, cfg.Zones, cfg.Clients, nil)}
	states := &fakeStates{
		zones: []model.Zone{{
			Index: 1, Name: "Living Room", SinkPath: "/s/l",
			Playback: model.PlaybackStopped, Volume: 50,
		}},
		clients: []model.Client{{
			Index: 1, Name: "Living Speaker", Mac: "aa:bb:cc:dd:ee:01",
			DefaultZone: 1, Volume: 50,
		}},
	}
	return New(cfg, states, mq, kn), mq, kn
}

func ga(t *testing.T, s string) cemi.GroupAddr {
	t.Helper()
	addr, err := cemi.NewGroupAddrString(s)
	require.NoError(t, err)
	return addr
}

func zoneVolume(origin bus.Source, zone, volume int) events.ZoneVolume {
	return events.ZoneVolume{
		ZoneEvent: events.ZoneEvent{Base: events.Base{Origin: origin}, Zone: zone},
		Volume:    volume,
	}
}

func TestZoneVolumeFansOutToBothSurfaces(t *testing.T) {
	p, mq, kn := newRig(t)
	ctx := context.Background()

	require.NoError(t, p.handleMQTT(ctx, zoneVolume(bus.SourceAPI, 1, 60)))
	require.NoError(t, p.handleKNX(ctx, zoneVolume(bus.SourceAPI, 1, 60)))

	v, ok := mq.get("snapdog/zones/living/volume")
	require.True(t, ok)
	assert.Equal(t, "60", v)

	writes := kn.all()
	require.Len(t, writes, 1)
	assert.Equal(t, ga(t, "1/2/2"), writes[0].ga)
	assert.Equal(t, 60, writes[0].ival)
}

func TestEchoSuppression(t *testing.T) {
	p, mq, kn := newRig(t)
	ctx := context.Background()

	require.NoError(t, p.handleMQTT(ctx, zoneVolume(bus.SourceMQTT, 1, 60)))
	require.NoError(t, p.handleKNX(ctx, zoneVolume(bus.SourceKNX, 1, 60)))

	_, ok := mq.get("snapdog/zones/living/volume")
	assert.False(t, ok, "mqtt-origin change must not echo to mqtt")
	assert.Empty(t, kn.all(), "knx-origin change must not echo to knx")

	// Cross-surface publishes still flow.
	require.NoError(t, p.handleMQTT(ctx, zoneVolume(bus.SourceKNX, 1, 61)))
	v, _ := mq.get("snapdog/zones/living/volume")
	assert.Equal(t, "61", v)
}

func TestCompositeStateAlwaysPublished(t *testing.T) {
	p, mq, _ := newRig(t)

	err := p.handleMQTT(context.Background(), events.ZoneState{
		ZoneEvent: events.ZoneEvent{Base: events.Base{Origin: bus.SourceMQTT}, Zone: 1},
		New:       model.Zone{Index: 1, Name: "Living Room", Volume: 60, Playback: model.PlaybackPlaying},
	})
	require.NoError(t, err)

	v, ok := mq.get("snapdog/zones/living/state")
	require.True(t, ok)
	assert.Contains(t, v, `"volume":60`)
	assert.Contains(t, v, `"playing"`)
}

func TestZoneMembershipPublished(t *testing.T) {
	p, mq, _ := newRig(t)

	err := p.handleMQTT(context.Background(), events.ZoneClients{
		ZoneEvent: events.ZoneEvent{Base: events.Base{Origin: bus.SourceInternal}, Zone: 1},
		Clients:   []int{1, 2},
	})
	require.NoError(t, err)

	v, ok := mq.get("snapdog/zones/living/clients")
	require.True(t, ok)
	assert.Equal(t, "[1,2]", v)
}

func TestUnroutedEntityIgnored(t *testing.T) {
	p, mq, kn := newRig(t)
	ctx := context.Background()

	require.NoError(t, p.handleMQTT(ctx, zoneVolume(bus.SourceAPI, 2, 60)))
	require.NoError(t, p.handleKNX(ctx, zoneVolume(bus.SourceAPI, 2, 60)))

	_, ok := mq.get("snapdog/zones/living/volume")
	assert.False(t, ok)
	assert.Empty(t, kn.all())
}

func TestPlaybackWrittenAsByte(t *testing.T) {
	p, _, kn := newRig(t)

	err := p.handleKNX(context.Background(), events.ZonePlayback{
		ZoneEvent: events.ZoneEvent{Base: events.Base{Origin: bus.SourceAPI}, Zone: 1},
		Playback:  model.PlaybackPaused,
	})
	require.NoError(t, err)

	writes := kn.all()
	require.Len(t, writes, 1)
	assert.Equal(t, ga(t, "1/3/5"), writes[0].ga)
	assert.Equal(t, 2, writes[0].ival)
}

func TestNilTrackClearsStatus(t *testing.T) {
	p, mq, kn := newRig(t)
	ctx := context.Background()
	ev := events.ZoneTrack{
		ZoneEvent: events.ZoneEvent{Base: events.Base{Origin: bus.SourceInternal}, Zone: 1},
	}

	require.NoError(t, p.handleMQTT(ctx, ev))
	require.NoError(t, p.handleKNX(ctx, ev))

	v, _ := mq.get("snapdog/zones/living/track")
	assert.Equal(t, "0", v)
	info, _ := mq.get("snapdog/zones/living/track/info")
	assert.Equal(t, "{}", info)

	writes := kn.all()
	require.Len(t, writes, 1)
	assert.Equal(t, 0, writes[0].ival)
}

func TestClientConnectionPublishedRegardlessOfOrigin(t *testing.T) {
	p, mq, kn := newRig(t)
	ctx := context.Background()
	ev := events.ClientConnection{
		ClientEvent: events.ClientEvent{Base: events.Base{Origin: bus.SourceKNX}, Client: 1},
		Connected:   true,
	}

	require.NoError(t, p.handleMQTT(ctx, ev))
	require.NoError(t, p.handleKNX(ctx, ev))

	v, _ := mq.get("snapdog/clients/living/connected")
	assert.Equal(t, "1", v)
	writes := kn.all()
	require.Len(t, writes, 1)
	assert.Equal(t, ga(t, "2/2/4"), writes[0].ga)
	assert.True(t, writes[0].bval)
}

func TestInitialPublishCoversEverything(t *testing.T) {
	p, mq, kn := newRig(t)

	p.PublishInitial(context.Background())

	for _, topic := range []string{
		"snapdog/state",
		"snapdog/zones/living/volume",
		"snapdog/zones/living/mute",
		"snapdog/zones/living/playback",
		"snapdog/zones/living/state",
		"snapdog/clients/living/volume",
		"snapdog/clients/living/zone",
		"snapdog/clients/living/connected",
		"snapdog/clients/living/state",
	} {
		_, ok := mq.get(topic)
		assert.True(t, ok, "missing %s", topic)
	}

	v, _ := mq.get("snapdog/zones/living/playback")
	assert.Equal(t, "stopped", v)
	v, _ = mq.get("snapdog/clients/living/zone")
	assert.Equal(t, "1", v, "unassigned client reports its default zone")

	// 6 zone writes + 4 client writes.
	assert.Len(t, kn.all(), 10)
}

func TestSystemStatusOnBaseTopic(t *testing.T) {
	p, mq, _ := newRig(t)

	err := p.handleMQTT(context.Background(), events.SystemStatus{
		Base:   events.Base{Origin: bus.SourceInternal},
		Online: false,
	})
	require.NoError(t, err)

	v, _ := mq.get("snapdog/status")
	assert.Equal(t, "offline", v)
}
