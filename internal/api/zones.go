// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/fault"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fault.Invalid("parse request body: %v", err)
	}
	return nil
}

func (s *Server) handleZoneList(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.states.Zones())
}

func (s *Server) handleZoneGet(w http.ResponseWriter, r *http.Request) {
	zone, err := indexParam(r, "zone")
	if err != nil {
		writeFault(w, err)
		return
	}
	z, err := s.states.Zone(zone)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, z)
}

func (s *Server) handleZoneTrack(w http.ResponseWriter, r *http.Request) {
	zone, err := indexParam(r, "zone")
	if err != nil {
		writeFault(w, err)
		return
	}
	z, err := s.states.Zone(zone)
	if err != nil {
		writeFault(w, err)
		return
	}
	if z.CurrentTrack == nil {
		writeFault(w, fault.NotFound("zone %d has no current track", zone))
		return
	}
	writeData(w, http.StatusOK, z.CurrentTrack)
}

// zoneAction serves the bodyless playback transitions.
func (s *Server) zoneAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zone, err := indexParam(r, "zone")
		if err != nil {
			writeFault(w, err)
			return
		}
		zc := commands.ZoneCommand{Zone: zone, Source: bus.SourceAPI}
		var cmd bus.Command
		switch action {
		case "play":
			cmd = commands.Play{ZoneCommand: zc}
		case "pause":
			cmd = commands.Pause{ZoneCommand: zc}
		case "stop":
			cmd = commands.Stop{ZoneCommand: zc}
		case "next":
			cmd = commands.NextTrack{ZoneCommand: zc}
		case "prev":
			cmd = commands.PrevTrack{ZoneCommand: zc}
		}
		s.dispatchZone(w, r, zone, cmd)
	}
}

func (s *Server) handleZoneVolume(w http.ResponseWriter, r *http.Request) {
	zone, err := indexParam(r, "zone")
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		Volume int `json:"volume"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFault(w, err)
		return
	}
	s.dispatchZone(w, r, zone, commands.SetZoneVolume{
		ZoneCommand: commands.ZoneCommand{Zone: zone, Source: bus.SourceAPI},
		Volume:      body.Volume,
	})
}

func (s *Server) handleZoneMute(w http.ResponseWriter, r *http.Request) {
	zone, err := indexParam(r, "zone")
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFault(w, err)
		return
	}
	s.dispatchZone(w, r, zone, commands.SetZoneMute{
		ZoneCommand: commands.ZoneCommand{Zone: zone, Source: bus.SourceAPI},
		Mute:        body.Muted,
	})
}

func (s *Server) handleZonePlaylist(w http.ResponseWriter, r *http.Request) {
	zone, err := indexParam(r, "zone")
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFault(w, err)
		return
	}
	s.dispatchZone(w, r, zone, commands.SetPlaylist{
		ZoneCommand: commands.ZoneCommand{Zone: zone, Source: bus.SourceAPI},
		Index:       body.Index,
	})
}

func (s *Server) handleZoneSetTrack(w http.ResponseWriter, r *http.Request) {
	zone, err := indexParam(r, "zone")
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		Index int `json:"index"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFault(w, err)
		return
	}
	s.dispatchZone(w, r, zone, commands.SetTrack{
		ZoneCommand: commands.ZoneCommand{Zone: zone, Source: bus.SourceAPI},
		Index:       body.Index,
	})
}

// dispatchZone sends the command and answers with the fresh snapshot.
func (s *Server) dispatchZone(w http.ResponseWriter, r *http.Request, zone int, cmd bus.Command) {
	if _, err := s.sender.Send(r.Context(), cmd); err != nil {
		writeFault(w, err)
		return
	}
	z, err := s.states.Zone(zone)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, z)
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.catalog.Playlists(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, lists)
}

func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	playlist, err := indexParam(r, "playlist")
	if err != nil {
		writeFault(w, err)
		return
	}
	tracks, err := s.catalog.Tracks(r.Context(), playlist)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, tracks)
}
