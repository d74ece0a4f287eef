package network

import (
	"context"

	"hexhold/server/logging"
)

const (
	// EventRequestRejected is emitted when a client request cannot be queued.
	EventRequestRejected logging.EventType = "network.request_rejected"
	// EventSubscriptionChanged is emitted when a client subscribes to or leaves a chunk.
	EventSubscriptionChanged logging.EventType = "network.subscription_changed"
)

// RequestRejectedPayload captures why a client request was refused.
type RequestRejectedPayload struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// SubscriptionPayload describes a chunk subscription change.
type SubscriptionPayload struct {
	Chunk      string `json:"chunk"`
	Subscribed bool   `json:"subscribed"`
}

// RequestRejected publishes a warning for a refused client request.
func RequestRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload RequestRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventRequestRejected,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SubscriptionChanged publishes a debug event when a client's chunk interest changes.
func SubscriptionChanged(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SubscriptionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSubscriptionChanged,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
