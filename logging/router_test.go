package logging_test

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"hexhold/server/logging"
	"hexhold/server/logging/sinks"
)

func TestRouterDeliversEventsWithFields(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Level = logging.SeverityDebug
	cfg.Fields = map[string]any{"service": "hexhold"}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	router, err := logging.NewRouter(cfg, logging.ClockFunc(func() time.Time { return fixed }), log.New(&bytes.Buffer{}, "", 0), []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "test.event", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: ""})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Extra["service"] != "hexhold" {
		t.Fatalf("expected router fields merged, got %v", events[0].Extra)
	}
	if !events[0].Time.Equal(fixed) {
		t.Fatalf("expected clock time stamped, got %v", events[0].Time)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected 1 routed event, got %d", stats.EventsTotal)
	}
}

func TestRouterFiltersBelowLevel(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Level = logging.SeverityWarn
	router, err := logging.NewRouter(cfg, nil, log.New(&bytes.Buffer{}, "", 0), []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "debug.event", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "warn.event", Severity: logging.SeverityWarn})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	events := memory.Events()
	if len(events) != 1 || events[0].Type != "warn.event" {
		t.Fatalf("expected only the warn event, got %+v", events)
	}
}

func TestRouterAppliesCategoryLevels(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Level = logging.SeverityInfo
	cfg.CategoryLevels = map[string]logging.Severity{
		logging.CategoryRoads:   logging.SeverityDebug,
		logging.CategoryActions: logging.SeverityWarn,
	}
	router, err := logging.NewRouter(cfg, nil, log.New(&bytes.Buffer{}, "", 0), []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "roads.merged", Category: logging.CategoryRoads, Severity: logging.SeverityDebug})
	router.Publish(ctx, logging.Event{Type: "roads.built", Category: logging.CategoryRoads, Severity: logging.SeverityInfo})
	router.Publish(ctx, logging.Event{Type: "actions.started", Category: logging.CategoryActions, Severity: logging.SeverityInfo})
	router.Publish(ctx, logging.Event{Type: "actions.failed", Category: logging.CategoryActions, Severity: logging.SeverityWarn})
	router.Publish(ctx, logging.Event{Type: "system.tick", Category: logging.CategorySystem, Severity: logging.SeverityDebug})
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	var types []string
	for _, e := range memory.Events() {
		types = append(types, e.Type)
	}
	want := []string{"roads.merged", "roads.built", "actions.failed"}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}

	stats := router.Stats()
	if stats.EventsTotal != 3 || stats.FilteredTotal != 2 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.ByCategory[logging.CategoryRoads] != 2 || stats.ByCategory[logging.CategoryActions] != 1 {
		t.Fatalf("unexpected category counts %v", stats.ByCategory)
	}
	if _, ok := stats.ByCategory[logging.CategorySystem]; ok {
		t.Fatalf("filtered category must not be counted, got %v", stats.ByCategory)
	}
}

func TestNewRouterRequiresSink(t *testing.T) {
	if _, err := logging.NewRouter(logging.DefaultConfig(), nil, nil, nil); err != logging.ErrNoSinks {
		t.Fatalf("expected ErrNoSinks, got %v", err)
	}
}

func TestWithFieldsDoesNotOverrideEventExtra(t *testing.T) {
	var got logging.Event
	pub := logging.WithFields(logging.PublisherFunc(func(_ context.Context, e logging.Event) { got = e }), map[string]any{"player": "a", "zone": "north"})
	pub.Publish(context.Background(), logging.Event{Type: "x", Extra: map[string]any{"player": "b"}})
	if got.Extra["player"] != "b" || got.Extra["zone"] != "north" {
		t.Fatalf("unexpected extras %v", got.Extra)
	}
}

func TestMetricsSnapshotIsACopy(t *testing.T) {
	var m logging.Metrics
	m.TelemetryAdd("roads.merged", 2)
	m.TelemetryAdd("roads.merged", 1)
	m.TelemetryStore("actions.active", 4)
	snap := m.Snapshot()
	if snap["roads.merged"] != 3 || snap["actions.active"] != 4 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	snap["roads.merged"] = 100
	if m.Snapshot()["roads.merged"] != 3 {
		t.Fatalf("snapshot must not alias internal state")
	}
	if keys := m.Keys(); len(keys) != 2 || keys[0] != "actions.active" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug":   logging.SeverityDebug,
		"WARN":    logging.SeverityWarn,
		"error":   logging.SeverityError,
		"":        logging.SeverityInfo,
		"verbose": logging.SeverityInfo,
	}
	for in, want := range cases {
		if got := logging.ParseSeverity(in); got != want {
			t.Fatalf("ParseSeverity(%q) = %v, want %v", in, got, want)
		}
	}
}
