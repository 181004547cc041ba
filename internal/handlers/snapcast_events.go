// SPDX-License-Identifier: MIT

package handlers

import (
	"context"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/model"
)

func (h *Handlers) handleSnapClientConnected(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.ClientConnected)
	index := h.states.ClientByMac(c.Mac)
	if index == 0 {
		h.logger.Warn().
			Str("event", "handlers.unknown_client").
			Str("mac", c.Mac).
			Str("snapcast_id", c.SnapcastID).
			Msg("snapcast reports a client that is not configured")
		return nil, nil
	}
	if _, err := h.states.MutateClient(ctx, index, bus.SourceInternal, func(mc *model.Client) error {
		mc.Connected = true
		mc.SnapcastClientID = c.SnapcastID
		return nil
	}); err != nil {
		return nil, err
	}
	_, _ = h.regroup.Trigger(ctx)
	return nil, nil
}

func (h *Handlers) handleSnapClientDisconnected(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.ClientDisconnected)
	index := h.states.ClientBySnapcastID(c.SnapcastID)
	if index == 0 {
		return nil, nil
	}
	_, err := h.states.MutateClient(ctx, index, bus.SourceInternal, func(mc *model.Client) error {
		mc.Connected = false
		mc.SnapcastClientID = ""
		return nil
	})
	return nil, err
}

// handleSnapClientVolume mirrors a volume the server reported. Values
// outside [0,100] are clamped with a warning rather than rejected, the
// server is authoritative for its own clients.
func (h *Handlers) handleSnapClientVolume(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.ClientVolumeReported)
	index := h.states.ClientBySnapcastID(c.SnapcastID)
	if index == 0 {
		return nil, nil
	}
	volume := c.Volume
	if !model.ValidVolume(volume) {
		clamped := model.ClampVolume(volume)
		h.logger.Warn().
			Str("event", "handlers.volume_clamped").
			Int("client", index).
			Int("reported", volume).
			Int("clamped", clamped).
			Msg("snapcast reported an out-of-range volume")
		volume = clamped
	}
	_, err := h.states.MutateClient(ctx, index, bus.SourceInternal, func(mc *model.Client) error {
		mc.Volume = volume
		mc.Mute = c.Mute
		return nil
	})
	return nil, err
}

// handleSnapClientLatency mirrors a latency the server reported. Values
// outside the valid range are clamped like reported volumes.
func (h *Handlers) handleSnapClientLatency(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.ClientLatencyReported)
	index := h.states.ClientBySnapcastID(c.SnapcastID)
	if index == 0 {
		return nil, nil
	}
	latency := c.LatencyMs
	if latency < 0 || latency > model.LatencyMaxMs {
		clamped := latency
		if clamped < 0 {
			clamped = 0
		}
		if clamped > model.LatencyMaxMs {
			clamped = model.LatencyMaxMs
		}
		h.logger.Warn().
			Str("event", "handlers.latency_clamped").
			Int("client", index).
			Int("reported", latency).
			Int("clamped", clamped).
			Msg("snapcast reported an out-of-range latency")
		latency = clamped
	}
	_, err := h.states.MutateClient(ctx, index, bus.SourceInternal, func(mc *model.Client) error {
		mc.LatencyMs = latency
		return nil
	})
	return nil, err
}

// handleSnapTopologyChange reacts to group or server layout changes with
// a reconciliation pass.
func (h *Handlers) handleSnapTopologyChange(ctx context.Context, _ bus.Command) (any, error) {
	h.invalidateStreamCache()
	_, err := h.regroup.Trigger(ctx)
	return nil, err
}

func (h *Handlers) handleSnapStreamPosition(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.StreamPosition)
	zone := h.zoneForStream(ctx, c.Stream)
	if zone == 0 {
		return nil, nil
	}
	_, err := h.states.MutateZone(ctx, zone, bus.SourceInternal, func(z *model.Zone) error {
		if z.CurrentTrack == nil || z.Playback != model.PlaybackPlaying {
			return nil
		}
		z.CurrentTrack.PositionMs = c.PositionMs
		return nil
	})
	return nil, err
}

func (h *Handlers) handleSnapConnectionChanged(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.ConnectionChanged)
	if c.Connected {
		h.invalidateStreamCache()
		_, _ = h.regroup.Trigger(ctx)
		return nil, nil
	}
	// Server gone: every client is unreachable until it comes back.
	for i := 1; i <= h.states.ClientCount(); i++ {
		_, _ = h.states.MutateClient(ctx, i, bus.SourceInternal, func(mc *model.Client) error {
			mc.Connected = false
			return nil
		})
	}
	return nil, nil
}
