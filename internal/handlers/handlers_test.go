// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/media"
	"github.com/snapdog/snapdog/internal/model"
	"github.com/snapdog/snapdog/internal/snapcast"
	"github.com/snapdog/snapdog/internal/state"
)

type fakeControl struct {
	mu        sync.Mutex
	connected bool
	status    *snapcast.ServerStatus
	fail      error

	volumes   map[string][2]int // id -> {percent, muted(0/1)}
	latencies map[string]int
	groupMute map[string]bool
}

func newControl() *fakeControl {
	return &fakeControl{
		connected: true,
		status:    &snapcast.ServerStatus{},
		volumes:   map[string][2]int{},
		latencies: map[string]int{},
		groupMute: map[string]bool{},
	}
}

func (f *fakeControl) IsConnected() bool { return f.connected }

func (f *fakeControl) GetServerStatus(context.Context) (*snapcast.ServerStatus, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.status, nil
}

func (f *fakeControl) SetClientVolume(_ context.Context, id string, percent int, muted bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := 0
	if muted {
		m = 1
	}
	f.volumes[id] = [2]int{percent, m}
	return nil
}

func (f *fakeControl) SetClientLatency(_ context.Context, id string, ms int) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencies[id] = ms
	return nil
}

func (f *fakeControl) SetGroupMute(_ context.Context, groupID string, muted bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupMute[groupID] = muted
	return nil
}

type fakeRegroup struct {
	mu       sync.Mutex
	triggers int
	outcome  grouping.Outcome
}

func (f *fakeRegroup) Trigger(context.Context) (grouping.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	if f.outcome == "" {
		return grouping.OutcomeHealthy, nil
	}
	return f.outcome, nil
}

type rig struct {
	bus     *bus.Mediator
	states  *state.Manager
	control *fakeControl
	regroup *fakeRegroup
}

func newRig(t *testing.T) *rig {
	t.Helper()
	cfg := &config.Config{
		Zones: []config.ZoneConfig{
			{Name: "Living Room", SinkPath: "/snapsinks/living"},
			{Name: "Kitchen", SinkPath: "/snapsinks/kitchen"},
		},
		Clients: []config.ClientConfig{
			{Name: "Living Speaker", Mac: "aa:bb:cc:dd:ee:01", DefaultZone: 1},
			{Name: "Kitchen Speaker", Mac: "aa:bb:cc:dd:ee:02", DefaultZone: 2},
		},
		Radios: []config.RadioConfig{
			{Name: "Deep House FM", URL: "http://radio.example/deep"},
			{Name: "Jazz 24", URL: "http://radio.example/jazz"},
		},
	}
	m := bus.New()
	states := state.New(cfg, m)
	control := newControl()
	regroup := &fakeRegroup{}
	catalog := media.New(cfg.Radios, nil)

	h := New(states, control, regroup, catalog, map[int]string{
		1: "/snapsinks/living",
		2: "/snapsinks/kitchen",
	})
	h.Register(m)
	return &rig{bus: m, states: states, control: control, regroup: regroup}
}

func (r *rig) connectClient(t *testing.T, index int, snapID string) {
	t.Helper()
	_, err := r.states.MutateClient(context.Background(), index, bus.SourceInternal, func(c *model.Client) error {
		c.Connected = true
		c.SnapcastClientID = snapID
		return nil
	})
	require.NoError(t, err)
}

func TestPlayLoadsFirstPlaylist(t *testing.T) {
	r := newRig(t)

	z, err := bus.SendAs[model.Zone](context.Background(), r.bus,
		commands.Play{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)

	assert.Equal(t, model.PlaybackPlaying, z.Playback)
	require.NotNil(t, z.CurrentPlaylist)
	assert.Equal(t, media.RadioPlaylistID, z.CurrentPlaylist.ID)
	require.NotNil(t, z.CurrentTrack)
	assert.Equal(t, "Deep House FM", z.CurrentTrack.Title)
}

func TestPauseOnlyWhenPlaying(t *testing.T) {
	r := newRig(t)

	z, err := bus.SendAs[model.Zone](context.Background(), r.bus,
		commands.Pause{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	assert.Equal(t, model.PlaybackStopped, z.Playback, "pausing a stopped zone stays stopped")
}

func TestStopResetsPosition(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.bus.Send(ctx, commands.Play{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	_, err = r.states.MutateZone(ctx, 1, bus.SourceInternal, func(z *model.Zone) error {
		z.CurrentTrack.PositionMs = 30000
		return nil
	})
	require.NoError(t, err)

	z, err := bus.SendAs[model.Zone](ctx, r.bus,
		commands.Stop{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	assert.Equal(t, model.PlaybackStopped, z.Playback)
	assert.Zero(t, z.CurrentTrack.PositionMs)
}

func TestNextTrackAdvancesAndStopsAtEnd(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.bus.Send(ctx, commands.Play{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)

	z, err := bus.SendAs[model.Zone](ctx, r.bus,
		commands.NextTrack{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	assert.Equal(t, 2, z.CurrentTrack.Index)

	// Past the last track without playlist repeat: playback stops.
	z, err = bus.SendAs[model.Zone](ctx, r.bus,
		commands.NextTrack{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	assert.Equal(t, model.PlaybackStopped, z.Playback)
	assert.Equal(t, 2, z.CurrentTrack.Index)
}

func TestNextTrackWrapsWithPlaylistRepeat(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.bus.Send(ctx, commands.Play{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	_, err = r.bus.Send(ctx, commands.SetPlaylistRepeat{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}, Enabled: true})
	require.NoError(t, err)
	_, err = r.bus.Send(ctx, commands.SetTrack{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}, Index: 2})
	require.NoError(t, err)

	z, err := bus.SendAs[model.Zone](ctx, r.bus,
		commands.NextTrack{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)
	assert.Equal(t, 1, z.CurrentTrack.Index, "wrapped to the first track")
	assert.Equal(t, model.PlaybackPlaying, z.Playback)
}

func TestNextTrackWithoutPlaylistIsConflict(t *testing.T) {
	r := newRig(t)
	_, err := r.bus.Send(context.Background(),
		commands.NextTrack{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	assert.True(t, fault.Is(err, fault.KindConflict))
}

func TestSetTrackOutOfRange(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	_, err := r.bus.Send(ctx, commands.Play{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}})
	require.NoError(t, err)

	_, err = r.bus.Send(ctx, commands.SetTrack{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}, Index: 9})
	assert.True(t, fault.Is(err, fault.KindNotFound))
}

func TestSetZoneVolumeValidation(t *testing.T) {
	r := newRig(t)

	_, err := r.bus.Send(context.Background(),
		commands.SetZoneVolume{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}, Volume: 101})
	assert.True(t, fault.Is(err, fault.KindInvalid))

	z, _ := r.states.Zone(1)
	assert.Equal(t, 50, z.Volume, "state unchanged after rejected command")
}

func TestSetZoneVolumeFansOutToMembers(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.connectClient(t, 1, "snap-1")
	_, err := r.states.MutateZone(ctx, 1, bus.SourceInternal, func(z *model.Zone) error {
		z.Clients = []int{1}
		return nil
	})
	require.NoError(t, err)

	z, err := bus.SendAs[model.Zone](ctx, r.bus,
		commands.SetZoneVolume{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceMQTT}, Volume: 60})
	require.NoError(t, err)
	assert.Equal(t, 60, z.Volume)
	assert.Equal(t, [2]int{60, 0}, r.control.volumes["snap-1"])

	c, _ := r.states.Client(1)
	assert.Equal(t, 60, c.Volume)
}

func TestSetZoneMuteUsesGroup(t *testing.T) {
	r := newRig(t)
	r.control.status = &snapcast.ServerStatus{
		Groups: []snapcast.Group{{ID: "g1", StreamID: "living"}},
		Streams: []snapcast.Stream{
			{ID: "living", URI: snapcast.StreamURI{Path: "/snapsinks/living"}},
		},
	}

	z, err := bus.SendAs[model.Zone](context.Background(), r.bus,
		commands.SetZoneMute{ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceAPI}, Mute: true})
	require.NoError(t, err)
	assert.True(t, z.Mute)
	assert.True(t, r.control.groupMute["g1"])
}

func TestSetClientVolume(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")

	c, err := bus.SendAs[model.Client](context.Background(), r.bus,
		commands.SetClientVolume{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Volume: 70})
	require.NoError(t, err)
	assert.Equal(t, 70, c.Volume)
	assert.Equal(t, [2]int{70, 0}, r.control.volumes["snap-1"])
}

func TestSetClientVolumeInvalid(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")

	_, err := r.bus.Send(context.Background(),
		commands.SetClientVolume{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Volume: 150})
	assert.True(t, fault.Is(err, fault.KindInvalid))
	assert.Empty(t, r.control.volumes, "no side effect after validation failure")
}

func TestSetClientVolumeWhileAdapterDown(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")
	r.control.fail = fault.Unavailable("snapcast server not connected")

	_, err := r.bus.Send(context.Background(),
		commands.SetClientVolume{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Volume: 70})
	assert.True(t, fault.Is(err, fault.KindUnavailable))

	c, _ := r.states.Client(1)
	assert.Equal(t, 50, c.Volume, "state unchanged when the adapter call fails")
}

func TestClientMutePreservesVolume(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.connectClient(t, 1, "snap-1")

	_, err := r.bus.Send(ctx,
		commands.SetClientVolume{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Volume: 70})
	require.NoError(t, err)

	c, err := bus.SendAs[model.Client](ctx, r.bus,
		commands.SetClientMute{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Mute: true})
	require.NoError(t, err)
	assert.True(t, c.Mute)
	assert.Equal(t, 70, c.Volume, "mute does not zero the volume")
	assert.Equal(t, [2]int{70, 1}, r.control.volumes["snap-1"])

	c, err = bus.SendAs[model.Client](ctx, r.bus,
		commands.SetClientMute{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Mute: false})
	require.NoError(t, err)
	assert.False(t, c.Mute)
	assert.Equal(t, 70, c.Volume, "unmute restores the pre-mute volume")
}

func TestSetClientZoneTriggersReconciliation(t *testing.T) {
	r := newRig(t)

	c, err := bus.SendAs[model.Client](context.Background(), r.bus,
		commands.SetClientZone{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Zone: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, c.EffectiveZone())
	assert.Equal(t, 1, r.regroup.triggers)
}

func TestSetClientZoneSameZoneConflicts(t *testing.T) {
	r := newRig(t)

	_, err := r.bus.Send(context.Background(),
		commands.SetClientZone{ClientCommand: commands.ClientCommand{Client: 1, Source: bus.SourceAPI}, Zone: 1})
	assert.True(t, fault.Is(err, fault.KindConflict))
	assert.Zero(t, r.regroup.triggers)
}

func TestSnapClientConnectedResolvesByMac(t *testing.T) {
	r := newRig(t)

	_, err := r.bus.Send(context.Background(), commands.ClientConnected{
		SnapcastID: "snap-9", Mac: "aa:bb:cc:dd:ee:02", Name: "Kitchen",
	})
	require.NoError(t, err)

	c, _ := r.states.Client(2)
	assert.True(t, c.Connected)
	assert.Equal(t, "snap-9", c.SnapcastClientID)
	assert.Equal(t, 1, r.regroup.triggers)
}

func TestSnapClientConnectedUnknownMacIgnored(t *testing.T) {
	r := newRig(t)
	_, err := r.bus.Send(context.Background(), commands.ClientConnected{
		SnapcastID: "snap-9", Mac: "ff:ff:ff:ff:ff:ff",
	})
	require.NoError(t, err)
	assert.Zero(t, r.regroup.triggers)
}

func TestSnapClientDisconnectedClearsID(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")

	_, err := r.bus.Send(context.Background(), commands.ClientDisconnected{SnapcastID: "snap-1"})
	require.NoError(t, err)

	c, _ := r.states.Client(1)
	assert.False(t, c.Connected)
	assert.Empty(t, c.SnapcastClientID)
}

func TestSnapReportedVolumeIsClamped(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")

	_, err := r.bus.Send(context.Background(), commands.ClientVolumeReported{
		SnapcastID: "snap-1", Volume: 150, Mute: false,
	})
	require.NoError(t, err)

	c, _ := r.states.Client(1)
	assert.Equal(t, 100, c.Volume)
}

func TestSnapReportedLatencyIsMirrored(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")

	_, err := r.bus.Send(context.Background(), commands.ClientLatencyReported{
		SnapcastID: "snap-1", LatencyMs: 240,
	})
	require.NoError(t, err)

	c, _ := r.states.Client(1)
	assert.Equal(t, 240, c.LatencyMs)

	// Out-of-range reports are clamped, not rejected.
	_, err = r.bus.Send(context.Background(), commands.ClientLatencyReported{
		SnapcastID: "snap-1", LatencyMs: -5,
	})
	require.NoError(t, err)
	c, _ = r.states.Client(1)
	assert.Equal(t, 0, c.LatencyMs)
}

func TestServerConnectionLossDisconnectsAllClients(t *testing.T) {
	r := newRig(t)
	r.connectClient(t, 1, "snap-1")
	r.connectClient(t, 2, "snap-2")

	_, err := r.bus.Send(context.Background(), commands.ConnectionChanged{Connected: false})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		c, _ := r.states.Client(i)
		assert.False(t, c.Connected)
	}
}
