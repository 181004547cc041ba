// SPDX-License-Identifier: MIT

// Package subsonic implements the read-only Subsonic REST client used to
// browse playlists and resolve stream and cover art URLs. All requests go
// through a circuit breaker so a dead media server degrades queries fast
// instead of stacking timeouts.
package subsonic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/log"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/resilience"
)

const (
	adapterName = "subsonic"

	// apiVersion is the Subsonic REST protocol version we speak.
	apiVersion = "1.16.1"

	// maxCoverBytes bounds a cover art download.
	maxCoverBytes = 8 << 20

	// requestAttempts bounds the retries of one logical API call.
	requestAttempts = 3
)

// Client talks to one Subsonic-compatible server.
type Client struct {
	cfg     config.SubsonicConfig
	http    *http.Client
	breaker *resilience.CircuitBreaker
	backoff resilience.BackoffPolicy
	logger  zerolog.Logger
}

// Playlist is Subsonic playlist metadata.
type Playlist struct {
	ID         string
	Name       string
	TrackCount int
	CoverID    string
}

// Track is Subsonic song metadata.
type Track struct {
	ID         string
	Title      string
	Artist     string
	Album      string
	CoverID    string
	DurationMs int64
}

// New creates a client from configuration.
func New(cfg config.SubsonicConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker(adapterName, 5, 30*time.Second),
		backoff: resilience.DefaultBackoff,
		logger:  log.WithComponent("subsonic"),
	}
}

// query builds the mandatory Subsonic auth and format parameters.
func (c *Client) query() url.Values {
	v := url.Values{}
	v.Set("u", c.cfg.Username)
	v.Set("p", c.cfg.Password)
	v.Set("v", apiVersion)
	v.Set("c", c.cfg.ClientName)
	v.Set("f", "json")
	return v
}

func (c *Client) endpoint(name string, extra url.Values) string {
	v := c.query()
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return fmt.Sprintf("%s/rest/%s?%s", c.cfg.URL, name, v.Encode())
}

// StreamURL returns the URL snapcast's stream source should pull the
// given track from, including transcoding parameters when configured.
func (c *Client) StreamURL(trackID string) string {
	extra := url.Values{}
	extra.Set("id", trackID)
	if c.cfg.Transcode != config.TranscodeDisabled {
		extra.Set("format", string(c.cfg.Transcode))
		if c.cfg.MaxBitRate > 0 {
			extra.Set("maxBitRate", strconv.Itoa(c.cfg.MaxBitRate))
		}
	}
	return c.endpoint("stream", extra)
}

// get performs one API call through the circuit breaker, retrying
// transient failures with jittered backoff.
func (c *Client) get(ctx context.Context, operation string, u string) ([]byte, string, error) {
	var body []byte
	var contentType string

	start := time.Now()
	var lastErr error
	err := resilience.Retry(ctx, requestAttempts, c.backoff, func(ctx context.Context) error {
		lastErr = c.breaker.Execute(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return fault.Internal("build %s request: %v", operation, err)
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return fault.Wrap(err, fault.KindUnavailable, "%s request failed", operation)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fault.New(fault.KindExternal, "%s returned HTTP %d", operation, resp.StatusCode)
			}
			contentType = resp.Header.Get("Content-Type")
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
			if err != nil {
				return fault.Wrap(err, fault.KindExternal, "read %s response", operation)
			}
			return nil
		})
		if lastErr != nil && !retryable(lastErr) {
			// Surface lastErr as is instead of burning attempts.
			return nil
		}
		return lastErr
	})
	if err == nil {
		err = lastErr
	}
	if err != nil {
		result := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			result = "circuit_open"
			err = fault.Wrap(err, fault.KindUnavailable, "subsonic circuit open")
		}
		metrics.RecordAdapterRequest(adapterName, operation, result)
		return nil, "", err
	}
	metrics.RecordAdapterRequest(adapterName, operation, "ok")
	metrics.AdapterRequestDuration.WithLabelValues(adapterName, operation).Observe(time.Since(start).Seconds())
	return body, contentType, nil
}

// retryable reports whether another attempt can help. An open circuit
// and request construction bugs cannot; transport failures can.
func retryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	switch fault.KindOf(err) {
	case fault.KindUnavailable, fault.KindTimeout, fault.KindExternal:
		return true
	}
	return false
}

// getEnvelope performs a JSON API call and unwraps the subsonic-response
// envelope, translating API-level failures into faults.
func (c *Client) getEnvelope(ctx context.Context, operation, u string) (*subsonicResponse, error) {
	body, _, err := c.get(ctx, operation, u)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fault.New(fault.KindExternal, "decode %s response: %v", operation, err)
	}
	r := env.Response
	if r.Status != "ok" {
		if r.Error != nil {
			// Code 70 is "requested data not found".
			if r.Error.Code == 70 {
				return nil, fault.NotFound("%s: %s", operation, r.Error.Message)
			}
			return nil, fault.New(fault.KindExternal, "%s failed: %s (code %d)", operation, r.Error.Message, r.Error.Code)
		}
		return nil, fault.New(fault.KindExternal, "%s failed with status %q", operation, r.Status)
	}
	return &r, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.getEnvelope(ctx, "ping", c.endpoint("ping", nil))
	return err
}

// Playlists lists all playlists visible to the configured user.
func (c *Client) Playlists(ctx context.Context) ([]Playlist, error) {
	r, err := c.getEnvelope(ctx, "getPlaylists", c.endpoint("getPlaylists", nil))
	if err != nil {
		return nil, err
	}
	out := make([]Playlist, 0, len(r.Playlists.Playlist))
	for _, p := range r.Playlists.Playlist {
		out = append(out, Playlist{
			ID:         p.ID,
			Name:       p.Name,
			TrackCount: p.SongCount,
			CoverID:    p.CoverArt,
		})
	}
	return out, nil
}

// PlaylistTracks lists the tracks of one playlist in order.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	extra := url.Values{}
	extra.Set("id", playlistID)
	r, err := c.getEnvelope(ctx, "getPlaylist", c.endpoint("getPlaylist", extra))
	if err != nil {
		return nil, err
	}
	out := make([]Track, 0, len(r.Playlist.Entry))
	for _, e := range r.Playlist.Entry {
		out = append(out, Track{
			ID:         e.ID,
			Title:      e.Title,
			Artist:     e.Artist,
			Album:      e.Album,
			CoverID:    e.CoverArt,
			DurationMs: int64(e.Duration) * 1000,
		})
	}
	return out, nil
}

// CoverArt fetches cover art bytes. Content type is taken from the
// response header when present, otherwise sniffed from magic bytes.
func (c *Client) CoverArt(ctx context.Context, coverID string) ([]byte, string, error) {
	extra := url.Values{}
	extra.Set("id", coverID)
	body, contentType, err := c.get(ctx, "getCoverArt", c.endpoint("getCoverArt", extra))
	if err != nil {
		return nil, "", err
	}
	// Some servers answer errors as a JSON envelope with status 200.
	if len(body) > 0 && body[0] == '{' {
		var env envelope
		if json.Unmarshal(body, &env) == nil && env.Response.Status != "" && env.Response.Status != "ok" {
			if env.Response.Error != nil && env.Response.Error.Code == 70 {
				return nil, "", fault.NotFound("cover %s not found", coverID)
			}
			return nil, "", fault.New(fault.KindExternal, "getCoverArt failed")
		}
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffImageType(body)
	}
	return body, contentType, nil
}

var (
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// sniffImageType identifies cover art by magic bytes, defaulting to JPEG.
func sniffImageType(b []byte) string {
	switch {
	case bytes.HasPrefix(b, pngMagic):
		return "image/png"
	case bytes.HasPrefix(b, jpegMagic):
		return "image/jpeg"
	default:
		return "image/jpeg"
	}
}
