package actions

import (
	"context"
	"time"

	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
	"hexhold/server/logging/simulation"
)

// Ticker is advanced by a Loop.
type Ticker interface {
	Tick(ctx context.Context) error
}

// LoopConfig tunes the tick loop.
type LoopConfig struct {
	// Interval between ticks. Default: 250ms.
	Interval time.Duration
}

// TickResult reports one loop iteration.
type TickResult struct {
	Tick     uint64
	Now      time.Time
	Duration time.Duration
	Budget   time.Duration
	Err      error
}

// LoopHooks observe the loop.
type LoopHooks struct {
	AfterTick func(TickResult)
}

// Loop drives a Ticker on a fixed interval.
type Loop struct {
	target    Ticker
	config    LoopConfig
	hooks     LoopHooks
	clock     logging.Clock
	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics

	overrunStreak uint64
}

func NewLoop(target Ticker, cfg LoopConfig, hooks LoopHooks, deps Deps) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	loop := &Loop{
		target:    target,
		config:    cfg,
		hooks:     hooks,
		clock:     deps.Clock,
		logger:    deps.Logger,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
	}
	if loop.clock == nil {
		loop.clock = logging.SystemClock{}
	}
	if loop.logger == nil {
		loop.logger = telemetry.DiscardLogger()
	}
	if loop.publisher == nil {
		loop.publisher = logging.NopPublisher()
	}
	if loop.metrics == nil {
		loop.metrics = telemetry.NopMetrics()
	}
	return loop
}

// Run ticks until ctx is cancelled. A tick in progress always finishes.
func (l *Loop) Run(ctx context.Context) {
	if l == nil || l.target == nil {
		return
	}
	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			l.Step(context.WithoutCancel(ctx), tick)
		}
	}
}

// Step runs a single tick and reports it.
func (l *Loop) Step(ctx context.Context, tick uint64) TickResult {
	start := l.clock.Now()
	err := l.target.Tick(ctx)
	result := TickResult{
		Tick:     tick,
		Now:      start,
		Duration: l.clock.Now().Sub(start),
		Budget:   l.config.Interval,
		Err:      err,
	}
	if err != nil {
		l.logger.Printf("[loop] tick %d failed: %v", tick, err)
		simulation.TickFailed(ctx, l.publisher, tick, simulation.TickFailedPayload{Error: err.Error()}, nil)
	}
	if result.Duration > result.Budget {
		l.overrunStreak++
		l.metrics.Add(telemetry.MetricTickOverruns, 1)
		simulation.TickBudgetOverrun(ctx, l.publisher, tick, simulation.TickBudgetOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          float64(result.Duration) / float64(result.Budget),
			Streak:         l.overrunStreak,
		}, nil)
	} else {
		l.overrunStreak = 0
	}
	if l.hooks.AfterTick != nil {
		l.hooks.AfterTick(result)
	}
	return result
}
