// SPDX-License-Identifier: MIT

package handlers

import (
	"context"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/model"
)

func (h *Handlers) handleSetClientVolume(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetClientVolume)
	if !model.ValidVolume(c.Volume) {
		return nil, fault.Invalid("volume must be between 0 and 100")
	}
	cl, err := h.states.Client(c.Client)
	if err != nil {
		return nil, err
	}
	if cl.SnapcastClientID == "" {
		return nil, fault.Unavailable("client %d has never connected to snapcast", c.Client)
	}
	if err := h.control.SetClientVolume(ctx, cl.SnapcastClientID, c.Volume, cl.Mute); err != nil {
		return nil, err
	}
	return h.states.MutateClient(ctx, c.Client, c.Source, func(mc *model.Client) error {
		mc.Volume = c.Volume
		if mc.Mute {
			// A volume set while muted becomes the restore target.
			mc.PreMuteVolume = c.Volume
		} else {
			mc.PreMuteVolume = 0
		}
		return nil
	})
}

// handleSetClientMute keeps mute first class: the audible volume is
// remembered on mute and restored on unmute instead of being zeroed.
func (h *Handlers) handleSetClientMute(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetClientMute)
	cl, err := h.states.Client(c.Client)
	if err != nil {
		return nil, err
	}
	if cl.SnapcastClientID == "" {
		return nil, fault.Unavailable("client %d has never connected to snapcast", c.Client)
	}

	restore := cl.Volume
	if !c.Mute && cl.PreMuteVolume > 0 {
		restore = cl.PreMuteVolume
	}
	if err := h.control.SetClientVolume(ctx, cl.SnapcastClientID, restore, c.Mute); err != nil {
		return nil, err
	}
	return h.states.MutateClient(ctx, c.Client, c.Source, func(mc *model.Client) error {
		if c.Mute && !mc.Mute {
			mc.PreMuteVolume = mc.Volume
		}
		if !c.Mute {
			mc.Volume = restore
			mc.PreMuteVolume = 0
		}
		mc.Mute = c.Mute
		return nil
	})
}

func (h *Handlers) handleSetClientLatency(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetClientLatency)
	if c.LatencyMs < 0 || c.LatencyMs > model.LatencyMaxMs {
		return nil, fault.Invalid("latency must be between 0 and %d ms", model.LatencyMaxMs)
	}
	cl, err := h.states.Client(c.Client)
	if err != nil {
		return nil, err
	}
	if cl.SnapcastClientID == "" {
		return nil, fault.Unavailable("client %d has never connected to snapcast", c.Client)
	}
	if err := h.control.SetClientLatency(ctx, cl.SnapcastClientID, c.LatencyMs); err != nil {
		return nil, err
	}
	return h.states.MutateClient(ctx, c.Client, c.Source, func(mc *model.Client) error {
		mc.LatencyMs = c.LatencyMs
		return nil
	})
}

func (h *Handlers) handleSetClientZone(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetClientZone)
	cl, err := h.states.AssignClientZone(ctx, c.Client, c.Zone, c.Source)
	if err != nil {
		return nil, err
	}

	// Physical group membership follows on the next reconciliation pass;
	// trigger one immediately but do not fail the move if it degrades.
	if outcome, err := h.regroup.Trigger(ctx); err != nil || outcome == grouping.OutcomeDegraded {
		h.logger.Warn().
			Err(err).
			Str("event", "handlers.regroup_after_move").
			Int("client", c.Client).
			Int("zone", c.Zone).
			Msg("reconciliation after client move did not converge")
	}
	return cl, nil
}
