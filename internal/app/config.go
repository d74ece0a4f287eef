package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/observability"
	"hexhold/server/internal/roads/spline"
	"hexhold/server/internal/sdf"
	"hexhold/server/logging"
)

// Config is the process configuration, read from HEXHOLD_* variables.
type Config struct {
	ListenAddr string `env:"HEXHOLD_LISTEN_ADDR" envDefault:":8080"`
	// DatabasePath selects the SQLite file. Empty keeps all state in memory.
	DatabasePath string        `env:"HEXHOLD_DB_PATH"`
	TickInterval time.Duration `env:"HEXHOLD_TICK_INTERVAL" envDefault:"250ms"`
	TerrainName  string        `env:"HEXHOLD_TERRAIN_NAME"  envDefault:"default"`

	HexSize        float64 `env:"HEXHOLD_HEX_SIZE"         envDefault:"1"`
	ChunkWorldSize float64 `env:"HEXHOLD_CHUNK_WORLD_SIZE" envDefault:"32"`

	SDFResolution  int     `env:"HEXHOLD_SDF_RESOLUTION"   envDefault:"64"`
	SDFMaxDistance float64 `env:"HEXHOLD_SDF_MAX_DISTANCE" envDefault:"4"`
	SDFWorkers     int     `env:"HEXHOLD_SDF_WORKERS"      envDefault:"4"`

	SplineSamples   int     `env:"HEXHOLD_SPLINE_SAMPLES"   envDefault:"8"`
	SplineSmoothing float64 `env:"HEXHOLD_SPLINE_SMOOTHING" envDefault:"0.5"`

	RoadBaseDuration time.Duration `env:"HEXHOLD_ROAD_BASE_DURATION" envDefault:"2s"`
	RoadCellDuration time.Duration `env:"HEXHOLD_ROAD_CELL_DURATION" envDefault:"500ms"`

	LogSinks    []string `env:"HEXHOLD_LOG_SINKS"     envSeparator:"," envDefault:"console"`
	LogLevel    string   `env:"HEXHOLD_LOG_LEVEL"     envDefault:"info"`
	LogJSONPath string   `env:"HEXHOLD_LOG_JSON_PATH"`
	LogVerbose  bool     `env:"HEXHOLD_LOG_VERBOSE"`

	// LogCategoryLevels sets per-category floors, e.g. "roads:debug,actions:warn".
	LogCategoryLevels map[string]string `env:"HEXHOLD_LOG_CATEGORY_LEVELS"`

	// The JSON log file rotates at LogJSONMaxSizeMB, keeping LogJSONMaxBackups
	// old files.
	LogJSONMaxSizeMB  int `env:"HEXHOLD_LOG_JSON_MAX_SIZE_MB" envDefault:"100"`
	LogJSONMaxBackups int `env:"HEXHOLD_LOG_JSON_MAX_BACKUPS" envDefault:"5"`

	Observability observability.Config `envPrefix:"HEXHOLD_"`
}

// LoadConfig parses the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the tunables that the core packages would otherwise
// silently replace with defaults.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("app: HEXHOLD_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if !(c.HexSize > 0) || !(c.ChunkWorldSize > 0) {
		return fmt.Errorf("app: hex size and chunk world size must be positive")
	}
	if err := c.SDFConfig().Validate(); err != nil {
		return err
	}
	if err := c.SplineConfig().Validate(); err != nil {
		return err
	}
	if c.LogJSONMaxSizeMB < 0 || c.LogJSONMaxBackups < 0 {
		return fmt.Errorf("app: log rotation limits must not be negative")
	}
	for category, level := range c.LogCategoryLevels {
		switch category {
		case logging.CategoryActions, logging.CategoryRoads, logging.CategorySystem:
		default:
			return fmt.Errorf("app: unknown log category %q", category)
		}
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("app: unknown log level %q for category %s", level, category)
		}
	}
	for _, name := range c.LogSinks {
		switch name {
		case sinkConsole, sinkJSON:
		default:
			return fmt.Errorf("app: unknown log sink %q", name)
		}
	}
	return nil
}

func (c Config) Layout() hexgrid.Layout {
	return hexgrid.Layout{HexSize: c.HexSize, ChunkWorldSize: c.ChunkWorldSize}
}

func (c Config) SDFConfig() sdf.Config {
	cfg := sdf.RoadConfig()
	cfg.Resolution = c.SDFResolution
	cfg.MaxDistance = c.SDFMaxDistance
	cfg.ChunkWorldSize = c.Layout().ChunkSize()
	return cfg
}

func (c Config) SplineConfig() spline.Config {
	return spline.Config{SamplesPerSegment: c.SplineSamples, SmoothingInfluence: c.SplineSmoothing}
}

func (c Config) ProcessorConfig() actions.Config {
	cfg := actions.DefaultConfig()
	cfg.TerrainName = c.TerrainName
	cfg.RoadBaseDuration = c.RoadBaseDuration
	cfg.RoadCellDuration = c.RoadCellDuration
	cfg.SDFWorkers = c.SDFWorkers
	return cfg
}

func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		cfg.Sinks = append([]string(nil), c.LogSinks...)
	}
	cfg.Level = logging.ParseSeverity(c.LogLevel)
	if len(c.LogCategoryLevels) > 0 {
		cfg.CategoryLevels = make(map[string]logging.Severity, len(c.LogCategoryLevels))
		for category, level := range c.LogCategoryLevels {
			cfg.CategoryLevels[category] = logging.ParseSeverity(level)
		}
	}
	cfg.JSON.Path = c.LogJSONPath
	cfg.Console.Verbose = c.LogVerbose
	cfg.Fields = map[string]any{"terrain": c.TerrainName}
	return cfg
}
