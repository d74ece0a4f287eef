package actions

import (
	"context"
	"strconv"

	"hexhold/server/logging"
)

const (
	// EventQueued is emitted when a player request becomes a pending action.
	EventQueued logging.EventType = "actions.queued"
	// EventPromoted is emitted when a pending action starts.
	EventPromoted logging.EventType = "actions.promoted"
	// EventCompleted is emitted when an in-progress action finishes.
	EventCompleted logging.EventType = "actions.completed"
	// EventFailed is emitted when an action is abandoned.
	EventFailed logging.EventType = "actions.failed"
	// EventPersistRetry is emitted when a transition could not be stored and will be retried next tick.
	EventPersistRetry logging.EventType = "actions.persist_retry"
	// EventRestored is emitted after active actions are reloaded from storage.
	EventRestored logging.EventType = "actions.restored"
)

// LifecyclePayload describes an action at a transition.
type LifecyclePayload struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Chunk    string `json:"chunk"`
	Cell     string `json:"cell"`
	TargetID int64  `json:"targetId,omitempty"`
}

// FailedPayload carries the reason an action was abandoned.
type FailedPayload struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PersistRetryPayload names the step that failed to persist.
type PersistRetryPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// RestoredPayload counts the actions reloaded at startup.
type RestoredPayload struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
}

// ActionRef references an action by id.
func ActionRef(id int64) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatInt(id, 10), Kind: logging.EntityKindAction}
}

// Queued publishes a new pending action.
func Queued(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, action int64, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventQueued, logging.SeverityDebug, tick, actor, action, payload, extra)
}

// Promoted publishes a pending to in-progress transition.
func Promoted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, action int64, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventPromoted, logging.SeverityInfo, tick, actor, action, payload, extra)
}

// Completed publishes an in-progress to completed transition.
func Completed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, action int64, payload LifecyclePayload, extra map[string]any) {
	publish(ctx, pub, EventCompleted, logging.SeverityInfo, tick, actor, action, payload, extra)
}

// Failed publishes an abandoned action.
func Failed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, action int64, payload FailedPayload, extra map[string]any) {
	publish(ctx, pub, EventFailed, logging.SeverityWarn, tick, actor, action, payload, extra)
}

// PersistRetry publishes a storage failure that leaves the action in its previous state.
func PersistRetry(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, action int64, payload PersistRetryPayload, extra map[string]any) {
	publish(ctx, pub, EventPersistRetry, logging.SeverityError, tick, actor, action, payload, extra)
}

// Restored publishes the outcome of reloading active actions.
func Restored(ctx context.Context, pub logging.Publisher, payload RestoredPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRestored,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryActions,
		Payload:  payload,
		Extra:    extra,
	})
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, action int64, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{ActionRef(action)},
		Severity: severity,
		Category: logging.CategoryActions,
		Payload:  payload,
		Extra:    extra,
	})
}
