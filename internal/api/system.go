// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/version"
)

type systemStatus struct {
	Online            bool  `json:"online"`
	SnapcastConnected bool  `json:"snapcastConnected"`
	UptimeS           int64 `json:"uptimeS"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, systemStatus{
		Online:            true,
		SnapcastConnected: s.snap.IsConnected(),
		UptimeS:           int64(time.Since(s.started).Seconds()),
	})
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

func (s *Server) handleSystemVersion(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, versionInfo{
		Version: version.Version,
		Commit:  version.Commit,
		Date:    version.Date,
		Go:      runtime.Version(),
	})
}

type systemStats struct {
	Zones            int   `json:"zones"`
	Clients          int   `json:"clients"`
	ClientsConnected int   `json:"clientsConnected"`
	RecentErrors     int   `json:"recentErrors"`
	Goroutines       int   `json:"goroutines"`
	UptimeS          int64 `json:"uptimeS"`
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	clients := s.states.Clients()
	connected := 0
	for _, c := range clients {
		if c.Connected {
			connected++
		}
	}
	writeData(w, http.StatusOK, systemStats{
		Zones:            len(s.states.Zones()),
		Clients:          len(clients),
		ClientsConnected: connected,
		RecentErrors:     len(log.RecentErrors()),
		Goroutines:       runtime.NumGoroutine(),
		UptimeS:          int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleSystemErrors(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, log.RecentErrors())
}

func (s *Server) handleSnapcastStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.snap.GetServerStatus(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeData(w, http.StatusOK, status)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	coverID := chi.URLParam(r, "coverId")
	if coverID == "" {
		writeFault(w, fault.Invalid("cover id is required"))
		return
	}
	if s.covers == nil {
		writeFault(w, fault.NotFound("cover art source is not configured"))
		return
	}
	data, contentType, err := s.covers.CoverArt(r.Context(), coverID)
	if err != nil {
		writeFault(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type iconsResponse struct {
	Zones   map[string]string `json:"zones"`
	Clients map[string]string `json:"clients"`
}

// handleIcons maps each entity to the cover of what it is playing. A
// client inherits the icon of its effective zone.
func (s *Server) handleIcons(w http.ResponseWriter, r *http.Request) {
	resp := iconsResponse{
		Zones:   map[string]string{},
		Clients: map[string]string{},
	}

	zoneIcons := map[int]string{}
	for _, z := range s.states.Zones() {
		var coverID string
		if z.CurrentTrack != nil && z.CurrentTrack.CoverID != "" {
			coverID = z.CurrentTrack.CoverID
		} else if z.CurrentPlaylist != nil && z.CurrentPlaylist.CoverID != "" {
			coverID = z.CurrentPlaylist.CoverID
		}
		if coverID == "" {
			continue
		}
		url := "/api/v1/cover/" + coverID
		zoneIcons[z.Index] = url
		resp.Zones[zoneKey(z.Index)] = url
	}
	for _, c := range s.states.Clients() {
		if url, ok := zoneIcons[c.EffectiveZone()]; ok {
			resp.Clients[clientKey(c.Index)] = url
		}
	}
	writeData(w, http.StatusOK, resp)
}

func zoneKey(i int) string   { return "zone_" + strconv.Itoa(i) }
func clientKey(i int) string { return "client_" + strconv.Itoa(i) }
