package lifecycle

import (
	"context"

	"hexhold/server/logging"
)

const (
	// EventPlayerConnected is emitted when a player opens a session.
	EventPlayerConnected logging.EventType = "lifecycle.player_connected"
	// EventPlayerDisconnected is emitted when a player session ends.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
)

// PlayerConnectedPayload records the remote address of a new session.
type PlayerConnectedPayload struct {
	RemoteAddr string `json:"remoteAddr"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// PlayerConnected publishes a player session start.
func PlayerConnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PlayerConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerConnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerDisconnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}
