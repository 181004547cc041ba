// SPDX-License-Identifier: MIT
package model

// Playback represents the playback state of a zone.
type Playback string

// Playback state constants define all possible zone playback states.
const (
	// PlaybackStopped indicates the zone pipeline is idle.
	PlaybackStopped Playback = "stopped"

	// PlaybackPlaying indicates the zone is actively streaming audio.
	PlaybackPlaying Playback = "playing"

	// PlaybackPaused indicates the zone pipeline is paused mid-track.
	PlaybackPaused Playback = "paused"
)

// String implements fmt.Stringer.
func (p Playback) String() string {
	return string(p)
}

// IsValid checks whether the playback state is valid.
func (p Playback) IsValid() bool {
	switch p {
	case PlaybackStopped, PlaybackPlaying, PlaybackPaused:
		return true
	default:
		return false
	}
}

// KNXValue returns the DPT 5.010 encoding of the playback state:
// 0=stopped, 1=playing, 2=paused.
func (p Playback) KNXValue() uint8 {
	switch p {
	case PlaybackPlaying:
		return 1
	case PlaybackPaused:
		return 2
	default:
		return 0
	}
}
