// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/commands"
)

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.states.Clients())
}

func (s *Server) handleClientGet(w http.ResponseWriter, r *http.Request) {
	client, err := indexParam(r, "client")
	if err != nil {
		writeFault(w, err)
		return
	}
	c, err := s.states.Client(client)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleClientVolume(w http.ResponseWriter, r *http.Request) {
	client, err := indexParam(r, "client")
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
	s.dispatchClient(w, r, client, commands.SetClientVolume{
		ClientCommand: commands.ClientCommand{Client: client, Source: bus.SourceAPI},
		Volume:        body.Volume,
	})
}

func (s *Server) handleClientMute(w http.ResponseWriter, r *http.Request) {
	client, err := indexParam(r, "client")
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
	s.dispatchClient(w, r, client, commands.SetClientMute{
		ClientCommand: commands.ClientCommand{Client: client, Source: bus.SourceAPI},
		Mute:          body.Muted,
	})
}

func (s *Server) handleClientZone(w http.ResponseWriter, r *http.Request) {
	client, err := indexParam(r, "client")
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		ZoneIndex int `json:"zoneIndex"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFault(w, err)
		return
	}
	s.dispatchClient(w, r, client, commands.SetClientZone{
		ClientCommand: commands.ClientCommand{Client: client, Source: bus.SourceAPI},
		Zone:          body.ZoneIndex,
	})
}

func (s *Server) handleClientLatency(w http.ResponseWriter, r *http.Request) {
	client, err := indexParam(r, "client")
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		LatencyMs int `json:"latencyMs"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFault(w, err)
		return
	}
	s.dispatchClient(w, r, client, commands.SetClientLatency{
		ClientCommand: commands.ClientCommand{Client: client, Source: bus.SourceAPI},
		LatencyMs:     body.LatencyMs,
	})
}

func (s *Server) dispatchClient(w http.ResponseWriter, r *http.Request, client int, cmd bus.Command) {
	if _, err := s.sender.Send(r.Context(), cmd); err != nil {
		writeFault(w, err)
		return
	}
	c, err := s.states.Client(client)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, c)
}
