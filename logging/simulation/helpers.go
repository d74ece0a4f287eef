package simulation

import (
	"context"

	"hexhold/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when the action loop exceeds the allotted tick budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventTickFailed is emitted when a tick returns an error.
	EventTickFailed logging.EventType = "simulation.tick_failed"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// TickFailedPayload carries the tick error.
type TickFailedPayload struct {
	Error string `json:"error"`
}

// TickBudgetOverrun publishes a warning when the loop exceeds the configured tick budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// TickFailed publishes an error returned by a tick.
func TickFailed(ctx context.Context, pub logging.Publisher, tick uint64, payload TickFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickFailed,
		Tick:     tick,
		Severity: logging.SeverityError,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}
