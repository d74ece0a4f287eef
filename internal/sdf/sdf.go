// Package sdf rasterizes per-chunk distance fields from polylines such as road
// centrelines and land/water contours.
package sdf

import (
	"math"
	"sync"

	"hexhold/server/internal/hexgrid"
)

type Vec2 = hexgrid.Vec2

// Config describes the raster and the distance range it encodes.
type Config struct {
	// Resolution is the side length of the square output grid.
	// Default: 64
	Resolution int

	// ChunkWorldSize is the side length of a chunk in world units.
	// Default: hexgrid.DefaultChunkWorldSize
	ChunkWorldSize float64

	// MaxDistance is the world distance mapped to the far end of the 8-bit
	// range. Larger distances clamp.
	// Default: 4.0
	MaxDistance float64

	// EdgeThreshold drops input segments whose endpoints both lie within this
	// distance of the same chunk boundary. Such segments come from chunk-local
	// contour extraction and bias distances along seams. 0 disables the filter.
	// Default: 0.25
	EdgeThreshold float64
}

// DefaultConfig returns the configuration used for contour fields.
func DefaultConfig() Config {
	return Config{
		Resolution:     64,
		ChunkWorldSize: hexgrid.DefaultChunkWorldSize,
		MaxDistance:    4.0,
		EdgeThreshold:  0.25,
	}
}

// RoadConfig returns the configuration used for road centreline fields. Roads
// legitimately run along chunk edges, so the seam filter is disabled.
func RoadConfig() Config {
	cfg := DefaultConfig()
	cfg.EdgeThreshold = 0
	return cfg
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Resolution < 1 {
		return &ConfigError{Field: "Resolution", Reason: "must be at least 1"}
	}
	if c.Resolution > 4096 {
		return &ConfigError{Field: "Resolution", Reason: "must be at most 4096"}
	}
	if !(c.ChunkWorldSize > 0) {
		return &ConfigError{Field: "ChunkWorldSize", Reason: "must be positive"}
	}
	if !(c.MaxDistance > 0) {
		return &ConfigError{Field: "MaxDistance", Reason: "must be positive"}
	}
	if c.EdgeThreshold < 0 {
		return &ConfigError{Field: "EdgeThreshold", Reason: "must not be negative"}
	}
	return nil
}

// ConfigError describes an invalid raster configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "sdf: invalid config." + e.Field + ": " + e.Reason
}

// Field is a square grid of quantized distances in row-major order.
type Field struct {
	Resolution int
	Data       []byte
}

// At returns the value of texel (x, y).
func (f Field) At(x, y int) byte {
	return f.Data[y*f.Resolution+x]
}

// Uniform reports whether every texel holds the same value.
func (f Field) Uniform() bool {
	for _, v := range f.Data {
		if v != f.Data[0] {
			return false
		}
	}
	return true
}

func uniformField(resolution int, value byte) Field {
	data := make([]byte, resolution*resolution)
	if value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	return Field{Resolution: resolution, Data: data}
}

// Classifier reports whether a world position lies inside the region whose
// boundary the polylines describe.
type Classifier func(p Vec2) bool

// Rasterize computes the unsigned distance field of polylines over the chunk
// whose minimum corner is origin. A texel on a polyline is 0 and texels at or
// beyond MaxDistance are 255.
func Rasterize(polylines [][]Vec2, origin Vec2, cfg Config) (Field, error) {
	if err := cfg.Validate(); err != nil {
		return Field{}, err
	}
	segments := collectSegments(polylines, origin, cfg)
	if len(segments) == 0 {
		return uniformField(cfg.Resolution, 255), nil
	}
	field := uniformField(cfg.Resolution, 0)
	forEachRow(cfg.Resolution, func(y int) {
		for x := 0; x < cfg.Resolution; x++ {
			d := minDistance(segments, texelCenter(origin, cfg, x, y), cfg.MaxDistance)
			field.Data[y*cfg.Resolution+x] = quantizeUnsigned(d / cfg.MaxDistance)
		}
	})
	return field, nil
}

// RasterizeSigned computes a signed field: texels classified inside carry
// negative distance. 128 marks the boundary, 0 is deep inside and 255 far
// outside. With no usable segments the chunk centre is classified once and the
// whole field takes the matching extreme.
func RasterizeSigned(polylines [][]Vec2, origin Vec2, cfg Config, inside Classifier) (Field, error) {
	if err := cfg.Validate(); err != nil {
		return Field{}, err
	}
	if inside == nil {
		inside = func(Vec2) bool { return false }
	}
	segments := collectSegments(polylines, origin, cfg)
	if len(segments) == 0 {
		half := cfg.ChunkWorldSize / 2
		if inside(Vec2{X: origin.X + half, Y: origin.Y + half}) {
			return uniformField(cfg.Resolution, 0), nil
		}
		return uniformField(cfg.Resolution, 255), nil
	}
	field := uniformField(cfg.Resolution, 0)
	forEachRow(cfg.Resolution, func(y int) {
		for x := 0; x < cfg.Resolution; x++ {
			p := texelCenter(origin, cfg, x, y)
			s := math.Min(minDistance(segments, p, cfg.MaxDistance)/cfg.MaxDistance, 1)
			if inside(p) {
				s = -s
			}
			field.Data[y*cfg.Resolution+x] = quantizeSigned(s)
		}
	})
	return field, nil
}

type segment struct {
	a, b Vec2
}

// collectSegments flattens polylines into segments, dropping seam artifacts
// and anything too far from the chunk to affect a texel.
func collectSegments(polylines [][]Vec2, origin Vec2, cfg Config) []segment {
	chunk := hexgrid.Bounds{
		Min: origin,
		Max: Vec2{X: origin.X + cfg.ChunkWorldSize, Y: origin.Y + cfg.ChunkWorldSize},
	}
	reach := chunk.Expand(cfg.MaxDistance)
	var segments []segment
	add := func(a, b Vec2) {
		if cfg.EdgeThreshold > 0 && alongChunkEdge(a, b, chunk, cfg.EdgeThreshold) {
			return
		}
		bounds, _ := hexgrid.BoundsOf([]Vec2{a, b})
		if !bounds.Overlaps(reach) {
			return
		}
		segments = append(segments, segment{a: a, b: b})
	}
	for _, line := range polylines {
		switch len(line) {
		case 0:
			continue
		case 1:
			add(line[0], line[0])
		default:
			for i := 1; i < len(line); i++ {
				add(line[i-1], line[i])
			}
		}
	}
	return segments
}

// alongChunkEdge reports whether both endpoints hug the same chunk boundary,
// i.e. the segment runs parallel to and on top of it.
func alongChunkEdge(a, b Vec2, chunk hexgrid.Bounds, threshold float64) bool {
	near := func(v, edge float64) bool { return math.Abs(v-edge) <= threshold }
	switch {
	case near(a.X, chunk.Min.X) && near(b.X, chunk.Min.X):
		return true
	case near(a.X, chunk.Max.X) && near(b.X, chunk.Max.X):
		return true
	case near(a.Y, chunk.Min.Y) && near(b.Y, chunk.Min.Y):
		return true
	case near(a.Y, chunk.Max.Y) && near(b.Y, chunk.Max.Y):
		return true
	}
	return false
}

func texelCenter(origin Vec2, cfg Config, x, y int) Vec2 {
	step := cfg.ChunkWorldSize / float64(cfg.Resolution)
	return Vec2{
		X: origin.X + (float64(x)+0.5)*step,
		Y: origin.Y + (float64(y)+0.5)*step,
	}
}

// minDistance returns the distance to the nearest segment, stopping early once
// a texel is known to be on a line.
func minDistance(segments []segment, p Vec2, limit float64) float64 {
	best := math.Inf(1)
	for _, s := range segments {
		d := pointSegmentDistance(p, s.a, s.b)
		if d < best {
			best = d
			if best == 0 {
				break
			}
		}
	}
	if math.IsInf(best, 1) {
		return limit
	}
	return best
}

// pointSegmentDistance projects p onto ab with the parameter clamped to [0, 1].
func pointSegmentDistance(p, a, b Vec2) float64 {
	ab := b.Sub(a)
	ap := p.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return p.Dist(a)
	}
	t := hexgrid.Clamp(ap.Dot(ab)/lenSq, 0, 1)
	return p.Dist(a.Add(ab.Scale(t)))
}

func quantizeUnsigned(normalized float64) byte {
	return byte(math.Round(hexgrid.Clamp(normalized, 0, 1) * 255))
}

func quantizeSigned(normalized float64) byte {
	return byte(math.Round((hexgrid.Clamp(normalized, -1, 1) + 1) * 127.5))
}

// forEachRow splits rows across a fixed set of workers.
func forEachRow(rows int, fn func(y int)) {
	const numWorkers = 4
	perWorker := (rows + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		end := min(start+perWorker, rows)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				fn(y)
			}
		}(start, end)
	}
	wg.Wait()
}
