// SPDX-License-Identifier: MIT

// Package api serves the HTTP/JSON control surface. Handlers are thin:
// they validate the request, emit a source-tagged command on the bus and
// render the resulting snapshot in the response envelope.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/snapdog/snapdog/internal/bus"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/health"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/model"
	"github.com/snapdog/snapdog/internal/snapcast"
)

// Sender dispatches commands; satisfied by *bus.Mediator.
type Sender interface {
	Send(ctx context.Context, cmd bus.Command) (any, error)
}

// States provides read-only state snapshots.
type States interface {
	Zones() []model.Zone
	Zone(index int) (model.Zone, error)
	Clients() []model.Client
	Client(index int) (model.Client, error)
}

// SnapStatus is the read slice of the Snapcast adapter.
type SnapStatus interface {
	IsConnected() bool
	GetServerStatus(ctx context.Context) (*snapcast.ServerStatus, error)
}

// Catalog lists playlists and tracks.
type Catalog interface {
	Playlists(ctx context.Context) ([]model.PlaylistInfo, error)
	Tracks(ctx context.Context, index int) ([]model.TrackInfo, error)
}

// CoverSource fetches cover art bytes. Nil when Subsonic is disabled.
type CoverSource interface {
	CoverArt(ctx context.Context, coverID string) ([]byte, string, error)
}

// Server is the HTTP control surface.
type Server struct {
	cfg     config.APIConfig
	sender  Sender
	states  States
	snap    SnapStatus
	catalog Catalog
	covers  CoverSource
	health  *health.Manager
	logger  zerolog.Logger
	started time.Time
}

// New wires the server. covers may be nil.
func New(cfg config.APIConfig, sender Sender, states States, snap SnapStatus, catalog Catalog, covers CoverSource, hm *health.Manager) *Server {
	return &Server{
		cfg:     cfg,
		sender:  sender,
		states:  states,
		snap:    snap,
		catalog: catalog,
		covers:  covers,
		health:  hm,
		logger:  log.WithComponent("api"),
		started: time.Now(),
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.cfg.RateLimitRPS > 0 {
		burst := s.cfg.RateLimitBurst
		if burst < s.cfg.RateLimitRPS {
			burst = s.cfg.RateLimitRPS
		}
		r.Use(httprate.LimitByIP(burst, time.Second))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/system/status", s.handleSystemStatus)
		r.Get("/system/version", s.handleSystemVersion)
		r.Get("/system/stats", s.handleSystemStats)
		r.Get("/system/errors", s.handleSystemErrors)

		r.Get("/zones", s.handleZoneList)
		r.Route("/zones/{zone}", func(r chi.Router) {
			r.Get("/", s.handleZoneGet)
			r.Get("/track", s.handleZoneTrack)
			r.Put("/volume", s.handleZoneVolume)
			r.Put("/mute", s.handleZoneMute)
			r.Put("/playlist", s.handleZonePlaylist)
			r.Put("/track", s.handleZoneSetTrack)
			r.Post("/play", s.zoneAction("play"))
			r.Post("/pause", s.zoneAction("pause"))
			r.Post("/stop", s.zoneAction("stop"))
			r.Post("/next", s.zoneAction("next"))
			r.Post("/prev", s.zoneAction("prev"))
		})

		r.Get("/clients", s.handleClientList)
		r.Route("/clients/{client}", func(r chi.Router) {
			r.Get("/", s.handleClientGet)
			r.Put("/volume", s.handleClientVolume)
			r.Put("/mute", s.handleClientMute)
			r.Put("/zone", s.handleClientZone)
			r.Put("/latency", s.handleClientLatency)
		})

		r.Get("/playlists", s.handlePlaylists)
		r.Get("/playlists/{playlist}/tracks", s.handlePlaylistTracks)

		r.Get("/snapcast/status", s.handleSnapcastStatus)
		r.Get("/cover/{coverId}", s.handleCover)
		r.Get("/icons", s.handleIcons)
	})

	r.Get("/health", s.health.ServeHealth)
	r.Get("/health/ready", s.health.ServeReady)
	r.Get("/health/live", s.health.ServeLive)
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "snapdog-api")
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "api.listening").
			Str("addr", s.cfg.ListenAddr).
			Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fault.Wrap(err, fault.KindUnavailable, "http serve")
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		// Route pattern keeps metric cardinality bounded.
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		s.logger.Debug().
			Str("event", "api.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

// indexParam parses a positive integer URL parameter.
func indexParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fault.Invalid("%s index must be a positive integer, got %q", name, raw)
	}
	return n, nil
}
