package logging

import (
	"maps"
	"slices"
	"time"
)

// Config controls the event router.
type Config struct {
	// Sinks names the sinks the server attaches: "console", "json".
	Sinks []string
	// QueueSize bounds the events waiting for dispatch.
	QueueSize int
	// Level is the lowest severity routed.
	Level Severity
	// CategoryLevels overrides Level for events of one category, for example
	// debug for roads while actions stay at info.
	CategoryLevels map[string]Severity
	// Fields are added to the Extra of every routed event.
	Fields map[string]any
	// DropReportInterval rate-limits the fallback line reporting drops.
	DropReportInterval time.Duration

	JSON    JSONConfig
	Console ConsoleConfig
}

type JSONConfig struct {
	// Path selects a rotated log file. Empty writes to stdout.
	Path          string
	FlushInterval time.Duration
}

type ConsoleConfig struct {
	// Verbose includes event extras on console lines.
	Verbose bool
}

func DefaultConfig() Config {
	return Config{
		Sinks:              []string{"console"},
		QueueSize:          512,
		Level:              SeverityInfo,
		DropReportInterval: 5 * time.Second,
		JSON:               JSONConfig{FlushInterval: 2 * time.Second},
	}
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.Sinks, name)
}

// LevelFor returns the severity floor for events of category.
func (c Config) LevelFor(category string) Severity {
	if level, ok := c.CategoryLevels[category]; ok {
		return level
	}
	return c.Level
}

func (c Config) clone() Config {
	c.Sinks = slices.Clone(c.Sinks)
	c.CategoryLevels = maps.Clone(c.CategoryLevels)
	c.Fields = maps.Clone(c.Fields)
	return c
}
