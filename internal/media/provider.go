// SPDX-License-Identifier: MIT

// Package media merges the configured radio stations and the Subsonic
// library into one 1-based playlist catalogue. When radio stations are
// configured they form playlist 1 and Subsonic playlists follow; the
// numbering is recomputed on every read so library changes show up
// without a restart.
package media

import (
	"context"
	"strconv"
	"strings"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/model"
	"github.com/snapdog/snapdog/internal/subsonic"
)

// radioIDPrefix marks track and playlist ids owned by the built-in radio
// playlist rather than Subsonic.
const radioIDPrefix = "radio:"

// RadioPlaylistID is the stable id of the built-in radio playlist.
const RadioPlaylistID = "radio"

// Library is the slice of the Subsonic client the provider needs.
type Library interface {
	Playlists(ctx context.Context) ([]subsonic.Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]subsonic.Track, error)
	StreamURL(trackID string) string
}

// Provider resolves playlist and track indices to stream sources.
type Provider struct {
	radios  []config.RadioConfig
	library Library // nil when Subsonic is disabled
}

// New creates a provider. library may be nil.
func New(radios []config.RadioConfig, library Library) *Provider {
	return &Provider{radios: radios, library: library}
}

// hasRadio reports whether the built-in radio playlist exists.
func (p *Provider) hasRadio() bool { return len(p.radios) > 0 }

// Playlists returns the full catalogue in index order.
func (p *Provider) Playlists(ctx context.Context) ([]model.PlaylistInfo, error) {
	var out []model.PlaylistInfo
	if p.hasRadio() {
		out = append(out, model.PlaylistInfo{
			Index:      1,
			ID:         RadioPlaylistID,
			Name:       "Radio",
			TrackCount: len(p.radios),
		})
	}
	if p.library != nil {
		pls, err := p.library.Playlists(ctx)
		if err != nil {
			return nil, err
		}
		base := len(out)
		for i, pl := range pls {
			out = append(out, model.PlaylistInfo{
				Index:      base + i + 1,
				ID:         pl.ID,
				Name:       pl.Name,
				TrackCount: pl.TrackCount,
				CoverID:    pl.CoverID,
			})
		}
	}
	return out, nil
}

// Playlist resolves one playlist by its 1-based index.
func (p *Provider) Playlist(ctx context.Context, index int) (model.PlaylistInfo, error) {
	pls, err := p.Playlists(ctx)
	if err != nil {
		return model.PlaylistInfo{}, err
	}
	if index < 1 || index > len(pls) {
		return model.PlaylistInfo{}, fault.NotFound("playlist %d not found (%d available)", index, len(pls))
	}
	return pls[index-1], nil
}

// Tracks lists the tracks of one playlist by its 1-based index.
func (p *Provider) Tracks(ctx context.Context, index int) ([]model.TrackInfo, error) {
	pl, err := p.Playlist(ctx, index)
	if err != nil {
		return nil, err
	}
	if pl.ID == RadioPlaylistID {
		out := make([]model.TrackInfo, 0, len(p.radios))
		for i, r := range p.radios {
			out = append(out, model.TrackInfo{
				Index: i + 1,
				ID:    radioIDPrefix + strconv.Itoa(i+1),
				Title: r.Name,
			})
		}
		return out, nil
	}
	if p.library == nil {
		return nil, fault.Unavailable("subsonic library not configured")
	}
	tracks, err := p.library.PlaylistTracks(ctx, pl.ID)
	if err != nil {
		return nil, err
	}
	out := make([]model.TrackInfo, 0, len(tracks))
	for i, tr := range tracks {
		out = append(out, model.TrackInfo{
			Index:      i + 1,
			ID:         tr.ID,
			Title:      tr.Title,
			Artist:     tr.Artist,
			Album:      tr.Album,
			CoverID:    tr.CoverID,
			DurationMs: tr.DurationMs,
		})
	}
	return out, nil
}

// Track resolves one track of a playlist by 1-based indices.
func (p *Provider) Track(ctx context.Context, playlist, track int) (model.TrackInfo, error) {
	tracks, err := p.Tracks(ctx, playlist)
	if err != nil {
		return model.TrackInfo{}, err
	}
	if track < 1 || track > len(tracks) {
		return model.TrackInfo{}, fault.NotFound("track %d not found in playlist %d (%d available)", track, playlist, len(tracks))
	}
	return tracks[track-1], nil
}

// StreamURL resolves the pull URL for a track: the station URL for radio
// tracks, the Subsonic stream endpoint for library tracks.
func (p *Provider) StreamURL(track model.TrackInfo) (string, error) {
	if idx, ok := strings.CutPrefix(track.ID, radioIDPrefix); ok {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 1 || n > len(p.radios) {
			return "", fault.NotFound("radio station %q not found", track.ID)
		}
		return p.radios[n-1].URL, nil
	}
	if p.library == nil {
		return "", fault.Unavailable("subsonic library not configured")
	}
	return p.library.StreamURL(track.ID), nil
}
