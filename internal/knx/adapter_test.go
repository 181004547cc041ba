// SPDX-License-Identifier: MIT

package knx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vapourismo/knx-go/knx"
	"github.com/vapourismo/knx-go/knx/cemi"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
)

var (
	testZones = []config.ZoneConfig{
		{Name: "Living Room", SinkPath: "/s/l", KNX: &config.ZoneKNX{
			Play:           "1/1/1",
			Pause:          "1/1/2",
			Stop:           "1/1/3",
			TrackNext:      "1/1/4",
			TrackPrev:      "1/1/5",
			Volume:         "1/2/1",
			VolumeStatus:   "1/2/2",
			Mute:           "1/2/3",
			MuteStatus:     "1/2/4",
			Track:          "1/3/1",
			TrackStatus:    "1/3/2",
			Playlist:       "1/3/3",
			PlaylistStatus: "1/3/4",
			PlaybackStatus: "1/3/5",
			Shuffle:        "1/4/1",
			ShuffleStatus:  "1/4/2",
			RepeatTrack:    "1/4/3",
			RepeatPlaylist: "1/4/4",
		}},
		{Name: "Kitchen", SinkPath: "/s/k"}, // no knx
	}
	testClients = []config.ClientConfig{
		{Name: "Living Speaker", Mac: "aa:bb:cc:dd:ee:01", DefaultZone: 1, KNX: &config.ClientKNX{
			Volume:          "2/1/1",
			VolumeStatus:    "2/1/2",
			Mute:            "2/1/3",
			MuteStatus:      "2/1/4",
			Latency:         "2/2/1",
			Zone:            "2/2/2",
			ZoneStatus:      "2/2/3",
			ConnectedStatus: "2/2/4",
		}},
	}
)

func ga(t *testing.T, s string) cemi.GroupAddr {
	t.Helper()
	addr, err := cemi.NewGroupAddrString(s)
	require.NoError(t, err)
	return addr
}

type fakeSender struct {
	mu   sync.Mutex
	cmds []bus.Command
	err  error
}

func (f *fakeSender) Send(_ context.Context, cmd bus.Command) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil, f.err
}

func (f *fakeSender) all() []bus.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.Command(nil), f.cmds...)
}

type fakeConn struct {
	in     chan knx.GroupEvent
	mu     sync.Mutex
	sent   []knx.GroupEvent
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan knx.GroupEvent, 16)}
}

func (f *fakeConn) Inbound() <-chan knx.GroupEvent { return f.in }

func (f *fakeConn) Send(ev knx.GroupEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
}

func (f *fakeConn) sentFrames() []knx.GroupEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]knx.GroupEvent(nil), f.sent...)
}

func newAdapter(sender Sender) *Adapter {
	return New(config.KNXConfig{
		Enabled:  true,
		ConnType: config.KNXConnTunnel,
		Gateway:  "127.0.0.1:3671",
	}, testZones, testClients, sender)
}

func TestCommandMapping(t *testing.T) {
	a := newAdapter(&fakeSender{})
	zc := commands.ZoneCommand{Zone: 1, Source: bus.SourceKNX}
	cc := commands.ClientCommand{Client: 1, Source: bus.SourceKNX}

	tests := []struct {
		name string
		addr string
		data []byte
		want bus.Command
	}{
		{"play on", "1/1/1", []byte{1}, commands.Play{ZoneCommand: zc}},
		{"play off pauses", "1/1/1", []byte{0}, commands.Pause{ZoneCommand: zc}},
		{"pause", "1/1/2", []byte{1}, commands.Pause{ZoneCommand: zc}},
		{"stop", "1/1/3", []byte{1}, commands.Stop{ZoneCommand: zc}},
		{"next", "1/1/4", []byte{1}, commands.NextTrack{ZoneCommand: zc}},
		{"prev", "1/1/5", []byte{1}, commands.PrevTrack{ZoneCommand: zc}},
		{"volume", "1/2/1", []byte{0, 60}, commands.SetZoneVolume{ZoneCommand: zc, Volume: 60}},
		{"mute", "1/2/3", []byte{1}, commands.SetZoneMute{ZoneCommand: zc, Mute: true}},
		{"track", "1/3/1", []byte{0, 3}, commands.SetTrack{ZoneCommand: zc, Index: 3}},
		{"playlist", "1/3/3", []byte{0, 2}, commands.SetPlaylist{ZoneCommand: zc, Index: 2}},
		{"shuffle", "1/4/1", []byte{1}, commands.SetShuffle{ZoneCommand: zc, Enabled: true}},
		{"repeat track", "1/4/3", []byte{1}, commands.SetTrackRepeat{ZoneCommand: zc, Enabled: true}},
		{"repeat playlist", "1/4/4", []byte{0}, commands.SetPlaylistRepeat{ZoneCommand: zc, Enabled: false}},
		{"client volume", "2/1/1", []byte{0, 45}, commands.SetClientVolume{ClientCommand: cc, Volume: 45}},
		{"client mute", "2/1/3", []byte{1}, commands.SetClientMute{ClientCommand: cc, Mute: true}},
		{"client latency", "2/2/1", []byte{0, 0, 120}, commands.SetClientLatency{ClientCommand: cc, LatencyMs: 120}},
		{"client zone", "2/2/2", []byte{0, 2}, commands.SetClientZone{ClientCommand: cc, Zone: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, mapped, err := a.table.command(ga(t, tt.addr), tt.data)
			require.NoError(t, err)
			require.True(t, mapped)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestUnmappedAddressIgnored(t *testing.T) {
	a := newAdapter(&fakeSender{})

	_, mapped, err := a.table.command(ga(t, "7/7/7"), []byte{1})
	require.NoError(t, err)
	assert.False(t, mapped)

	// Status addresses never map to commands.
	_, mapped, _ = a.table.command(ga(t, "1/2/2"), []byte{0, 60})
	assert.False(t, mapped)
}

func TestShortPayloadRejected(t *testing.T) {
	a := newAdapter(&fakeSender{})

	_, mapped, err := a.table.command(ga(t, "1/2/1"), []byte{1})
	require.True(t, mapped)
	assert.Error(t, err)

	_, mapped, err = a.table.command(ga(t, "1/1/1"), nil)
	require.True(t, mapped)
	assert.Error(t, err)
}

func TestStatusLookups(t *testing.T) {
	a := newAdapter(&fakeSender{})

	addr, ok := a.ZoneStatusGA(1, StatusVolume)
	require.True(t, ok)
	assert.Equal(t, ga(t, "1/2/2"), addr)

	_, ok = a.ZoneStatusGA(2, StatusVolume)
	assert.False(t, ok, "zone without knx block has no status addresses")

	addr, ok = a.ClientStatusGA(1, StatusConnected)
	require.True(t, ok)
	assert.Equal(t, ga(t, "2/2/4"), addr)
}

func TestServeDispatchesInbound(t *testing.T) {
	sender := &fakeSender{}
	a := newAdapter(sender)
	conn := newFakeConn()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.serve(ctx, conn)
		close(done)
	}()

	conn.in <- knx.GroupEvent{Command: knx.GroupWrite, Destination: ga(t, "1/2/1"), Data: []byte{0, 55}}
	conn.in <- knx.GroupEvent{Command: knx.GroupRead, Destination: ga(t, "1/2/1")}

	require.Eventually(t, func() bool { return len(sender.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, commands.SetZoneVolume{
		ZoneCommand: commands.ZoneCommand{Zone: 1, Source: bus.SourceKNX},
		Volume:      55,
	}, sender.all()[0])

	cancel()
	<-done
}

func TestServeReturnsWhenConnectionDrops(t *testing.T) {
	a := newAdapter(&fakeSender{})
	conn := newFakeConn()

	done := make(chan struct{})
	go func() {
		a.serve(context.Background(), conn)
		close(done)
	}()

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return after inbound channel closed")
	}
}

func TestWriteFlushesThroughQueue(t *testing.T) {
	a := newAdapter(&fakeSender{})
	conn := newFakeConn()

	a.WriteBool(ga(t, "1/2/4"), true)
	a.WriteByte(ga(t, "1/2/2"), 70)

	ctx, cancel := context.WithCancel(context.Background())
	go a.serve(ctx, conn)

	require.Eventually(t, func() bool { return len(conn.sentFrames()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	frames := conn.sentFrames()
	assert.Equal(t, knx.GroupWrite, frames[0].Command)
	assert.Equal(t, ga(t, "1/2/4"), frames[0].Destination)
	assert.Equal(t, []byte{1}, frames[0].Data)
	assert.Equal(t, ga(t, "1/2/2"), frames[1].Destination)
	assert.Equal(t, []byte{0, 70}, frames[1].Data)
}

func TestWriteByteOutOfRangeWritesZero(t *testing.T) {
	a := newAdapter(&fakeSender{})
	a.WriteByte(ga(t, "1/3/2"), 300)

	f := <-a.queue
	assert.Equal(t, []byte{0, 0}, f.data)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	a := New(config.KNXConfig{
		ConnType:  config.KNXConnTunnel,
		Gateway:   "127.0.0.1:3671",
		QueueSize: 2,
	}, testZones, testClients, &fakeSender{})

	target := ga(t, "1/2/2")
	a.WriteByte(target, 1)
	a.WriteByte(target, 2)
	a.WriteByte(target, 3)

	first := <-a.queue
	second := <-a.queue
	assert.Equal(t, []byte{0, 2}, first.data, "oldest frame is shed")
	assert.Equal(t, []byte{0, 3}, second.data)
}

func TestRunRejectsUSB(t *testing.T) {
	a := New(config.KNXConfig{ConnType: config.KNXConnUSB}, nil, nil, &fakeSender{})
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usb")
}

func TestRunReconnectsAfterDialFailure(t *testing.T) {
	a := New(config.KNXConfig{
		ConnType:          config.KNXConnTunnel,
		Gateway:           "127.0.0.1:3671",
		ReconnectInterval: 10 * time.Millisecond,
	}, testZones, testClients, &fakeSender{})

	var mu sync.Mutex
	attempts := 0
	a.dial = func() (groupConn, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, assert.AnError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
}
