// SPDX-License-Identifier: MIT

package snapcast

import "context"

// GetServerStatus fetches the full server state.
func (c *Conn) GetServerStatus(ctx context.Context) (*ServerStatus, error) {
	var res serverStatusResult
	if err := c.call(ctx, "Server.GetStatus", nil, &res); err != nil {
		return nil, err
	}
	return &res.Server, nil
}

// SetClientVolume sets volume percent and mute flag of a client.
func (c *Conn) SetClientVolume(ctx context.Context, clientID string, percent int, muted bool) error {
	params := map[string]any{
		"id":     clientID,
		"volume": ClientVolume{Percent: percent, Muted: muted},
	}
	return c.call(ctx, "Client.SetVolume", params, nil)
}

// SetClientLatency sets the playback latency of a client in milliseconds.
func (c *Conn) SetClientLatency(ctx context.Context, clientID string, latencyMs int) error {
	params := map[string]any{"id": clientID, "latency": latencyMs}
	return c.call(ctx, "Client.SetLatency", params, nil)
}

// SetClientName renames a client on the server.
func (c *Conn) SetClientName(ctx context.Context, clientID, name string) error {
	params := map[string]any{"id": clientID, "name": name}
	return c.call(ctx, "Client.SetName", params, nil)
}

// SetGroupClients replaces the client membership of a group. Snapcast
// creates and garbage-collects groups implicitly through this call.
func (c *Conn) SetGroupClients(ctx context.Context, groupID string, clientIDs []string) error {
	params := map[string]any{"id": groupID, "clients": clientIDs}
	return c.call(ctx, "Group.SetClients", params, nil)
}

// SetGroupStream binds a group to a stream.
func (c *Conn) SetGroupStream(ctx context.Context, groupID, streamID string) error {
	params := map[string]any{"id": groupID, "stream_id": streamID}
	return c.call(ctx, "Group.SetStream", params, nil)
}

// SetGroupMute mutes or unmutes a whole group.
func (c *Conn) SetGroupMute(ctx context.Context, groupID string, muted bool) error {
	params := map[string]any{"id": groupID, "mute": muted}
	return c.call(ctx, "Group.SetMute", params, nil)
}

// SetGroupName renames a group on the server.
func (c *Conn) SetGroupName(ctx context.Context, groupID, name string) error {
	params := map[string]any{"id": groupID, "name": name}
	return c.call(ctx, "Group.SetName", params, nil)
}
