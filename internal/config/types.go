// SPDX-License-Identifier: MIT

// Package config builds the immutable configuration record of the daemon
// from SNAPDOG_* environment variables. Configuration is validated once at
// startup and never mutated afterwards.
package config

import "time"

// Config is the root configuration record handed to every constructor.
type Config struct {
	System    SystemConfig
	API       APIConfig
	Snapcast  SnapcastConfig
	MQTT      MQTTConfig
	KNX       KNXConfig
	Subsonic  SubsonicConfig
	Telemetry TelemetryConfig

	Zones   []ZoneConfig
	Clients []ClientConfig
	Radios  []RadioConfig
}

// SystemConfig covers process-wide settings.
type SystemConfig struct {
	LogLevel    string
	Environment string
	DataDir     string
}

// APIConfig covers the HTTP control surface.
type APIConfig struct {
	ListenAddr     string
	RateLimitRPS   int
	RateLimitBurst int
}

// SnapcastConfig covers the Snapcast JSON-RPC connection.
type SnapcastConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
	// ReconcileInterval is the steady-state group reconciliation period.
	ReconcileInterval time.Duration
}

// MQTTConfig covers the MQTT integration.
type MQTTConfig struct {
	Enabled   bool
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	// BaseTopic is the root of all system-level topics, e.g. "snapdog".
	BaseTopic string
	// QueueSize bounds the outbound publish queue.
	QueueSize int
}

// KNXConnType selects how the KNX bus is reached.
type KNXConnType string

const (
	KNXConnTunnel  KNXConnType = "tunnel"
	KNXConnRouting KNXConnType = "routing"
	KNXConnUSB     KNXConnType = "usb"
)

// KNXConfig covers the KNX integration.
type KNXConfig struct {
	Enabled           bool
	ConnType          KNXConnType
	Gateway           string // host:port for tunnel, multicast addr for routing
	ReconnectInterval time.Duration
	QueueSize         int
}

// TranscodeFormat enumerates Subsonic stream transcoding targets.
type TranscodeFormat string

const (
	TranscodeDisabled TranscodeFormat = ""
	TranscodeMp3      TranscodeFormat = "mp3"
	TranscodeOpus     TranscodeFormat = "opus"
	TranscodeOgg      TranscodeFormat = "ogg"
)

// SubsonicConfig covers the Subsonic music library connection.
type SubsonicConfig struct {
	Enabled    bool
	URL        string
	Username   string
	Password   string
	ClientName string
	Transcode  TranscodeFormat
	MaxBitRate int // kbps, only sent when transcoding
	Timeout    time.Duration
}

// TelemetryConfig covers the OpenTelemetry trace exporter.
type TelemetryConfig struct {
	Enabled      bool
	ExporterType string // "grpc" or "http"
	Endpoint     string
	SamplingRate float64
}

// ZoneKNX lists the group addresses of one zone. Command GAs are
// subscribed, status GAs are written. Empty fields are unmapped.
type ZoneKNX struct {
	Play           string
	Pause          string
	Stop           string
	TrackNext      string
	TrackPrev      string
	Volume         string
	VolumeStatus   string
	Mute           string
	MuteStatus     string
	Track          string
	TrackStatus    string
	Playlist       string
	PlaylistStatus string
	PlaybackStatus string
	Shuffle        string
	ShuffleStatus  string
	RepeatTrack    string
	RepeatPlaylist string
}

// ZoneConfig declares one logical zone. Zone indices are 1-based and
// derived from declaration order.
type ZoneConfig struct {
	Name      string
	SinkPath  string
	MQTTTopic string // base topic; empty disables MQTT for the zone
	KNX       *ZoneKNX
}

// ClientKNX lists the group addresses of one client.
type ClientKNX struct {
	Volume          string
	VolumeStatus    string
	Mute            string
	MuteStatus      string
	Latency         string
	Zone            string
	ZoneStatus      string
	ConnectedStatus string
}

// ClientConfig declares one Snapcast endpoint.
type ClientConfig struct {
	Name        string
	Mac         string
	DefaultZone int
	MQTTTopic   string
	KNX         *ClientKNX
}

// RadioConfig declares one internet radio station. Stations form the
// built-in playlist at index 1; Subsonic playlists follow.
type RadioConfig struct {
	Name string
	URL  string
}
