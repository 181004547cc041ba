// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"time"
)

// Indexed entity blocks stop at the first index whose NAME key is unset.
// maxEntities is a sanity bound against runaway loops on broken setups.
const maxEntities = 256

// FromEnv reads the full configuration from SNAPDOG_* environment
// variables and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		System: SystemConfig{
			LogLevel:    ParseString("SNAPDOG_SYSTEM_LOG_LEVEL", "info"),
			Environment: ParseString("SNAPDOG_SYSTEM_ENV", "production"),
			DataDir:     ParseString("SNAPDOG_SYSTEM_DATA_DIR", "/var/lib/snapdog"),
		},
		API: APIConfig{
			ListenAddr:     ParseString("SNAPDOG_API_LISTEN_ADDR", ":8080"),
			RateLimitRPS:   ParseInt("SNAPDOG_API_RATE_LIMIT_RPS", 50),
			RateLimitBurst: ParseInt("SNAPDOG_API_RATE_LIMIT_BURST", 100),
		},
		Snapcast: SnapcastConfig{
			Host:              ParseString("SNAPDOG_SERVICES_SNAPCAST_HOST", "localhost"),
			Port:              ParseInt("SNAPDOG_SERVICES_SNAPCAST_PORT", 1705),
			Timeout:           ParseDuration("SNAPDOG_SERVICES_SNAPCAST_TIMEOUT", 5*time.Second),
			ReconcileInterval: ParseDuration("SNAPDOG_SERVICES_SNAPCAST_RECONCILE_INTERVAL", 30*time.Second),
		},
		MQTT: MQTTConfig{
			Enabled:   ParseBool("SNAPDOG_SERVICES_MQTT_ENABLED", false),
			BrokerURL: ParseString("SNAPDOG_SERVICES_MQTT_BROKER", "mqtt://localhost:1883"),
			Username:  ParseString("SNAPDOG_SERVICES_MQTT_USERNAME", ""),
			Password:  ParseString("SNAPDOG_SERVICES_MQTT_PASSWORD", ""),
			ClientID:  ParseString("SNAPDOG_SERVICES_MQTT_CLIENT_ID", "snapdog"),
			BaseTopic: ParseString("SNAPDOG_SERVICES_MQTT_BASE_TOPIC", "snapdog"),
			QueueSize: ParseInt("SNAPDOG_SERVICES_MQTT_QUEUE_SIZE", 1024),
		},
		KNX: KNXConfig{
			Enabled:           ParseBool("SNAPDOG_SERVICES_KNX_ENABLED", false),
			ConnType:          KNXConnType(ParseString("SNAPDOG_SERVICES_KNX_CONN_TYPE", string(KNXConnTunnel))),
			Gateway:           ParseString("SNAPDOG_SERVICES_KNX_GATEWAY", ""),
			ReconnectInterval: ParseDuration("SNAPDOG_SERVICES_KNX_RECONNECT_INTERVAL", 30*time.Second),
			QueueSize:         ParseInt("SNAPDOG_SERVICES_KNX_QUEUE_SIZE", 1024),
		},
		Subsonic: SubsonicConfig{
			Enabled:    ParseBool("SNAPDOG_SERVICES_SUBSONIC_ENABLED", false),
			URL:        ParseString("SNAPDOG_SERVICES_SUBSONIC_URL", ""),
			Username:   ParseString("SNAPDOG_SERVICES_SUBSONIC_USERNAME", ""),
			Password:   ParseString("SNAPDOG_SERVICES_SUBSONIC_PASSWORD", ""),
			ClientName: ParseString("SNAPDOG_SERVICES_SUBSONIC_CLIENT", "snapdog"),
			Transcode:  TranscodeFormat(ParseString("SNAPDOG_SERVICES_SUBSONIC_TRANSCODE_FORMAT", "")),
			MaxBitRate: ParseInt("SNAPDOG_SERVICES_SUBSONIC_TRANSCODE_BITRATE", 0),
			Timeout:    ParseDuration("SNAPDOG_SERVICES_SUBSONIC_TIMEOUT", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      ParseBool("SNAPDOG_TELEMETRY_ENABLED", false),
			ExporterType: ParseString("SNAPDOG_TELEMETRY_EXPORTER", "grpc"),
			Endpoint:     ParseString("SNAPDOG_TELEMETRY_ENDPOINT", "localhost:4317"),
			SamplingRate: ParseFloat("SNAPDOG_TELEMETRY_SAMPLING", 1.0),
		},
	}

	cfg.Zones = loadZones()
	cfg.Clients = loadClients()
	cfg.Radios = loadRadios()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadZones() []ZoneConfig {
	var zones []ZoneConfig
	for i := 1; i <= maxEntities; i++ {
		prefix := fmt.Sprintf("SNAPDOG_ZONE_%d_", i)
		name, ok := os.LookupEnv(prefix + "NAME")
		if !ok {
			break
		}
		z := ZoneConfig{
			Name:      name,
			SinkPath:  ParseString(prefix+"SINK", fmt.Sprintf("/snapsinks/zone%d", i)),
			MQTTTopic: ParseString(prefix+"MQTT_TOPIC", ""),
			KNX:       loadZoneKNX(prefix),
		}
		zones = append(zones, z)
	}
	return zones
}

func loadZoneKNX(prefix string) *ZoneKNX {
	k := ZoneKNX{
		Play:           os.Getenv(prefix + "KNX_PLAY"),
		Pause:          os.Getenv(prefix + "KNX_PAUSE"),
		Stop:           os.Getenv(prefix + "KNX_STOP"),
		TrackNext:      os.Getenv(prefix + "KNX_TRACK_NEXT"),
		TrackPrev:      os.Getenv(prefix + "KNX_TRACK_PREV"),
		Volume:         os.Getenv(prefix + "KNX_VOLUME"),
		VolumeStatus:   os.Getenv(prefix + "KNX_VOLUME_STATUS"),
		Mute:           os.Getenv(prefix + "KNX_MUTE"),
		MuteStatus:     os.Getenv(prefix + "KNX_MUTE_STATUS"),
		Track:          os.Getenv(prefix + "KNX_TRACK"),
		TrackStatus:    os.Getenv(prefix + "KNX_TRACK_STATUS"),
		Playlist:       os.Getenv(prefix + "KNX_PLAYLIST"),
		PlaylistStatus: os.Getenv(prefix + "KNX_PLAYLIST_STATUS"),
		PlaybackStatus: os.Getenv(prefix + "KNX_PLAYBACK_STATUS"),
		Shuffle:        os.Getenv(prefix + "KNX_SHUFFLE"),
		ShuffleStatus:  os.Getenv(prefix + "KNX_SHUFFLE_STATUS"),
		RepeatTrack:    os.Getenv(prefix + "KNX_REPEAT_TRACK"),
		RepeatPlaylist: os.Getenv(prefix + "KNX_REPEAT_PLAYLIST"),
	}
	if k == (ZoneKNX{}) {
		return nil
	}
	return &k
}

func loadClients() []ClientConfig {
	var clients []ClientConfig
	for i := 1; i <= maxEntities; i++ {
		prefix := fmt.Sprintf("SNAPDOG_CLIENT_%d_", i)
		name, ok := os.LookupEnv(prefix + "NAME")
		if !ok {
			break
		}
		c := ClientConfig{
			Name:        name,
			Mac:         ParseString(prefix+"MAC", ""),
			DefaultZone: ParseInt(prefix+"DEFAULT_ZONE", 1),
			MQTTTopic:   ParseString(prefix+"MQTT_TOPIC", ""),
			KNX:         loadClientKNX(prefix),
		}
		clients = append(clients, c)
	}
	return clients
}

func loadClientKNX(prefix string) *ClientKNX {
	k := ClientKNX{
		Volume:          os.Getenv(prefix + "KNX_VOLUME"),
		VolumeStatus:    os.Getenv(prefix + "KNX_VOLUME_STATUS"),
		Mute:            os.Getenv(prefix + "KNX_MUTE"),
		MuteStatus:      os.Getenv(prefix + "KNX_MUTE_STATUS"),
		Latency:         os.Getenv(prefix + "KNX_LATENCY"),
		Zone:            os.Getenv(prefix + "KNX_ZONE"),
		ZoneStatus:      os.Getenv(prefix + "KNX_ZONE_STATUS"),
		ConnectedStatus: os.Getenv(prefix + "KNX_CONNECTED_STATUS"),
	}
	if k == (ClientKNX{}) {
		return nil
	}
	return &k
}

func loadRadios() []RadioConfig {
	var radios []RadioConfig
	for i := 1; i <= maxEntities; i++ {
		prefix := fmt.Sprintf("SNAPDOG_RADIO_%d_", i)
		name, ok := os.LookupEnv(prefix + "NAME")
		if !ok {
			break
		}
		radios = append(radios, RadioConfig{
			Name: name,
			URL:  ParseString(prefix+"URL", ""),
		})
	}
	return radios
}
