// Package spline turns ordered control points into the rendered polyline of
// a road.
package spline

import (
	"math"

	"hexhold/server/internal/hexgrid"
)

type Vec2 = hexgrid.Vec2

// Config tunes sampling density and how far an extension reaches back into an
// existing curve.
type Config struct {
	// SamplesPerSegment is the number of samples emitted per control span.
	// Default: 8
	SamplesPerSegment int

	// SmoothingInfluence is the fraction, in [0, 1], of the last existing span
	// that Extend re-blends towards the extended curve. 0 keeps every old
	// sample verbatim.
	// Default: 0.5
	SmoothingInfluence float64
}

// DefaultConfig returns the tuning used for road splines.
func DefaultConfig() Config {
	return Config{
		SamplesPerSegment:  8,
		SmoothingInfluence: 0.5,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.SamplesPerSegment < 1 {
		return &ConfigError{Field: "SamplesPerSegment", Reason: "must be at least 1"}
	}
	if c.SmoothingInfluence < 0 || c.SmoothingInfluence > 1 || math.IsNaN(c.SmoothingInfluence) {
		return &ConfigError{Field: "SmoothingInfluence", Reason: "must be in [0, 1]"}
	}
	return nil
}

// ConfigError describes an invalid spline configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "spline: invalid config." + e.Field + ": " + e.Reason
}

// Generator samples Catmull-Rom splines. It holds no mutable state and is safe
// for concurrent use.
type Generator struct {
	config Config
}

// NewGenerator returns a generator for cfg, substituting defaults for an
// invalid configuration.
func NewGenerator(cfg Config) *Generator {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Generator{config: cfg}
}

// Config returns the generator's configuration.
func (g *Generator) Config() Config {
	return g.config
}

// SampleCount returns the number of points Generate emits for n control points.
func (g *Generator) SampleCount(n int) int {
	if n <= 1 {
		return n
	}
	return (n-1)*g.config.SamplesPerSegment + 1
}

// Generate returns the rendered polyline through the control points.
//
// Zero or one point is returned unchanged, two points are joined linearly and
// three or more are interpolated with a Catmull-Rom spline whose ends are
// padded by duplicating the first and last control point. The output always
// ends exactly on the final control point.
func (g *Generator) Generate(control []Vec2) []Vec2 {
	switch len(control) {
	case 0:
		return nil
	case 1:
		return []Vec2{control[0]}
	case 2:
		return g.linear(control[0], control[1])
	}

	samples := g.config.SamplesPerSegment
	padded := make([]Vec2, 0, len(control)+2)
	padded = append(padded, control[0])
	padded = append(padded, control...)
	padded = append(padded, control[len(control)-1])

	out := make([]Vec2, 0, g.SampleCount(len(control)))
	for i := 0; i+3 < len(padded); i++ {
		p0, p1, p2, p3 := padded[i], padded[i+1], padded[i+2], padded[i+3]
		for s := 0; s < samples; s++ {
			t := float64(s) / float64(samples)
			out = append(out, catmullRom(p0, p1, p2, p3, t))
		}
	}
	return append(out, control[len(control)-1])
}

// Extend grows an existing curve by one control point without rebuilding it.
//
// Spans before the last existing span are kept verbatim. Within the last
// span, the trailing SmoothingInfluence share of samples is blended towards
// the curve that includes newEnd, with the blend weight ramping up to 1 at the
// old end point so the joint carries the new tangent. The new span is then
// appended. Points that do not match the layout Generate would have produced
// for oldCells are rebuilt from scratch.
func (g *Generator) Extend(oldCells, oldPoints []Vec2, newEnd Vec2) []Vec2 {
	control := make([]Vec2, 0, len(oldCells)+1)
	control = append(control, oldCells...)
	control = append(control, newEnd)

	n := len(oldCells)
	if n < 2 || len(oldPoints) != g.SampleCount(n) {
		return g.Generate(control)
	}

	samples := g.config.SamplesPerSegment
	extended := g.Generate(control)
	lastSpan := (n - 2) * samples

	window := int(math.Round(g.config.SmoothingInfluence * float64(samples)))
	blendStart := samples - window

	out := make([]Vec2, 0, len(extended))
	out = append(out, oldPoints[:lastSpan]...)
	for j := 0; j < samples; j++ {
		idx := lastSpan + j
		if j < blendStart {
			out = append(out, oldPoints[idx])
			continue
		}
		w := float64(j-blendStart+1) / float64(window)
		out = append(out, hexgrid.Lerp(oldPoints[idx], extended[idx], w))
	}
	return append(out, extended[(n-1)*samples:]...)
}

func (g *Generator) linear(a, b Vec2) []Vec2 {
	samples := g.config.SamplesPerSegment
	out := make([]Vec2, 0, samples+1)
	for s := 0; s <= samples; s++ {
		out = append(out, hexgrid.Lerp(a, b, float64(s)/float64(samples)))
	}
	return out
}

func catmullRom(p0, p1, p2, p3 Vec2, t float64) Vec2 {
	t2 := t * t
	t3 := t2 * t
	c0 := -0.5*t3 + t2 - 0.5*t
	c1 := 1.5*t3 - 2.5*t2 + 1
	c2 := -1.5*t3 + 2*t2 + 0.5*t
	c3 := 0.5*t3 - 0.5*t2
	return Vec2{
		X: p0.X*c0 + p1.X*c1 + p2.X*c2 + p3.X*c3,
		Y: p0.Y*c0 + p1.Y*c1 + p2.Y*c2 + p3.Y*c3,
	}
}
