// SPDX-License-Identifier: MIT

package snapcast

import "encoding/json"

// Wire types for the Snapcast JSON-RPC API (control protocol v2).
// Field names follow the server's JSON exactly.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// rpcEnvelope covers both responses (ID set) and notifications (Method set).
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ClientVolume is the volume object attached to a Snapcast client.
type ClientVolume struct {
	Muted   bool `json:"muted"`
	Percent int  `json:"percent"`
}

// ClientConfig is the server-side configuration of a Snapcast client.
type ClientConfig struct {
	Instance int          `json:"instance"`
	Latency  int          `json:"latency"`
	Name     string       `json:"name"`
	Volume   ClientVolume `json:"volume"`
}

// ClientHost describes the machine a Snapcast client runs on.
type ClientHost struct {
	Arch string `json:"arch"`
	IP   string `json:"ip"`
	Mac  string `json:"mac"`
	Name string `json:"name"`
	OS   string `json:"os"`
}

// Client is one Snapcast endpoint as the server reports it.
type Client struct {
	ID        string       `json:"id"`
	Connected bool         `json:"connected"`
	Config    ClientConfig `json:"config"`
	Host      ClientHost   `json:"host"`
}

// Group is a set of clients bound to one stream.
type Group struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Muted    bool     `json:"muted"`
	StreamID string   `json:"stream_id"`
	Clients  []Client `json:"clients"`
}

// StreamURI carries the source definition of a stream.
type StreamURI struct {
	Raw   string            `json:"raw"`
	Path  string            `json:"path"`
	Query map[string]string `json:"query"`
}

// Stream is one audio source configured on the server.
type Stream struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	URI    StreamURI `json:"uri"`
}

// ServerStatus is the full server state returned by Server.GetStatus.
type ServerStatus struct {
	Groups  []Group  `json:"groups"`
	Streams []Stream `json:"streams"`
}

type serverStatusResult struct {
	Server ServerStatus `json:"server"`
}

// GroupByClient finds the group containing the given client id.
func (s *ServerStatus) GroupByClient(clientID string) *Group {
	for i := range s.Groups {
		for _, c := range s.Groups[i].Clients {
			if c.ID == clientID {
				return &s.Groups[i]
			}
		}
	}
	return nil
}

// ClientByID finds a client record anywhere in the group tree.
func (s *ServerStatus) ClientByID(clientID string) *Client {
	for i := range s.Groups {
		for j := range s.Groups[i].Clients {
			if s.Groups[i].Clients[j].ID == clientID {
				return &s.Groups[i].Clients[j]
			}
		}
	}
	return nil
}

// StreamByPath finds the stream whose source path matches the given
// pipe or file path.
func (s *ServerStatus) StreamByPath(path string) *Stream {
	for i := range s.Streams {
		if s.Streams[i].URI.Path == path {
			return &s.Streams[i]
		}
	}
	return nil
}

// Notification parameter shapes.

type clientConnectParams struct {
	ID     string `json:"id"`
	Client Client `json:"client"`
}

type clientVolumeParams struct {
	ID     string       `json:"id"`
	Volume ClientVolume `json:"volume"`
}

type clientLatencyParams struct {
	ID      string `json:"id"`
	Latency int    `json:"latency"`
}

type groupStreamParams struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
}

type streamPropertiesParams struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"` // seconds
}
