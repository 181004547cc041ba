// SPDX-License-Identifier: MIT

package subsonic

// Wire types for the subsonic-response JSON envelope. Only the fields we
// read are declared.

type envelope struct {
	Response subsonicResponse `json:"subsonic-response"`
}

type subsonicResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Error     *apiError      `json:"error,omitempty"`
	Playlists playlistsBlock `json:"playlists"`
	Playlist  playlistBlock  `json:"playlist"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type playlistsBlock struct {
	Playlist []playlistEntry `json:"playlist"`
}

type playlistEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SongCount int    `json:"songCount"`
	CoverArt  string `json:"coverArt"`
}

type playlistBlock struct {
	playlistEntry
	Entry []songEntry `json:"entry"`
}

type songEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	CoverArt string `json:"coverArt"`
	Duration int    `json:"duration"` // seconds
}
