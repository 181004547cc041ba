// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"math/rand/v2"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/model"
)

func (h *Handlers) handlePlay(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.Play)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		if z.CurrentPlaylist == nil {
			pl, err := h.catalog.Playlist(ctx, 1)
			if err != nil {
				return err
			}
			z.CurrentPlaylist = &pl
		}
		if z.CurrentTrack == nil {
			tr, err := h.catalog.Track(ctx, z.CurrentPlaylist.Index, 1)
			if err != nil {
				return err
			}
			z.CurrentTrack = &tr
		}
		z.Playback = model.PlaybackPlaying
		return nil
	})
}

func (h *Handlers) handlePause(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.Pause)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		if z.Playback == model.PlaybackPlaying {
			z.Playback = model.PlaybackPaused
		}
		return nil
	})
}

func (h *Handlers) handleStop(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.Stop)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		z.Playback = model.PlaybackStopped
		if z.CurrentTrack != nil {
			z.CurrentTrack.PositionMs = 0
		}
		return nil
	})
}

func (h *Handlers) handleNextTrack(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.NextTrack)
	return h.advanceTrack(ctx, c.Zone, c.Source, +1)
}

func (h *Handlers) handlePrevTrack(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.PrevTrack)
	return h.advanceTrack(ctx, c.Zone, c.Source, -1)
}

// advanceTrack moves the current track by step, honouring shuffle and
// playlist repeat. Walking past either end without repeat stops playback.
func (h *Handlers) advanceTrack(ctx context.Context, zone int, source bus.Source, step int) (model.Zone, error) {
	return h.states.MutateZone(ctx, zone, source, func(z *model.Zone) error {
		if z.CurrentPlaylist == nil || z.CurrentTrack == nil {
			return fault.Conflict("zone %d has no active playlist", zone)
		}
		tracks, err := h.catalog.Tracks(ctx, z.CurrentPlaylist.Index)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			return fault.Conflict("playlist %d is empty", z.CurrentPlaylist.Index)
		}

		next := z.CurrentTrack.Index + step
		if z.PlaylistShuffle && len(tracks) > 1 {
			for {
				next = rand.IntN(len(tracks)) + 1
				if next != z.CurrentTrack.Index {
					break
				}
			}
		}
		switch {
		case next < 1:
			if !z.PlaylistRepeat {
				z.Playback = model.PlaybackStopped
				return nil
			}
			next = len(tracks)
		case next > len(tracks):
			if !z.PlaylistRepeat {
				z.Playback = model.PlaybackStopped
				return nil
			}
			next = 1
		}

		tr := tracks[next-1]
		z.CurrentTrack = &tr
		return nil
	})
}

func (h *Handlers) handleSetTrack(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetTrack)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		if z.CurrentPlaylist == nil {
			return fault.Conflict("zone %d has no active playlist", c.Zone)
		}
		tr, err := h.catalog.Track(ctx, z.CurrentPlaylist.Index, c.Index)
		if err != nil {
			return err
		}
		z.CurrentTrack = &tr
		z.Playback = model.PlaybackPlaying
		return nil
	})
}

func (h *Handlers) handleSetPlaylist(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetPlaylist)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		pl, err := h.catalog.Playlist(ctx, c.Index)
		if err != nil {
			return err
		}
		tr, err := h.catalog.Track(ctx, c.Index, 1)
		if err != nil {
			return err
		}
		z.CurrentPlaylist = &pl
		z.CurrentTrack = &tr
		return nil
	})
}

func (h *Handlers) handleSetZoneVolume(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetZoneVolume)
	if !model.ValidVolume(c.Volume) {
		return nil, fault.Invalid("volume must be between 0 and 100")
	}
	z, err := h.states.Zone(c.Zone)
	if err != nil {
		return nil, err
	}

	// Zone volume fans out to every connected member client.
	for _, ci := range z.Clients {
		cl, err := h.states.Client(ci)
		if err != nil || !cl.Connected || cl.SnapcastClientID == "" {
			continue
		}
		if err := h.control.SetClientVolume(ctx, cl.SnapcastClientID, c.Volume, cl.Mute); err != nil {
			return nil, err
		}
		if _, err := h.states.MutateClient(ctx, ci, c.Source, func(mc *model.Client) error {
			mc.Volume = c.Volume
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		z.Volume = c.Volume
		return nil
	})
}

func (h *Handlers) handleSetZoneMute(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetZoneMute)
	if _, err := h.states.Zone(c.Zone); err != nil {
		return nil, err
	}

	groupID, err := h.zoneGroupID(ctx, c.Zone)
	if err != nil {
		return nil, err
	}
	if groupID != "" {
		if err := h.control.SetGroupMute(ctx, groupID, c.Mute); err != nil {
			return nil, err
		}
	}
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		z.Mute = c.Mute
		return nil
	})
}

func (h *Handlers) handleSetTrackRepeat(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetTrackRepeat)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		z.TrackRepeat = c.Enabled
		return nil
	})
}

func (h *Handlers) handleSetPlaylistRepeat(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetPlaylistRepeat)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		z.PlaylistRepeat = c.Enabled
		return nil
	})
}

func (h *Handlers) handleSetShuffle(ctx context.Context, cmd bus.Command) (any, error) {
	c := cmd.(commands.SetShuffle)
	return h.states.MutateZone(ctx, c.Zone, c.Source, func(z *model.Zone) error {
		z.PlaylistShuffle = c.Enabled
		return nil
	})
}
