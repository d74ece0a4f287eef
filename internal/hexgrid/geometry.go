package hexgrid

import "math"

// Vec2 is a world-space position on the ground plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Dist returns the Euclidean distance between two positions.
func (v Vec2) Dist(o Vec2) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// Lerp interpolates between a and b by t.
func Lerp(a, b Vec2, t float64) Vec2 {
	return Vec2{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// Clamp limits value to the range [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Bounds is an axis-aligned rectangle in world space.
type Bounds struct {
	Min Vec2
	Max Vec2
}

// BoundsOf returns the bounding box of points. ok is false for an empty slice.
func BoundsOf(points []Vec2) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
	}
	return b, true
}

// Expand grows the rectangle by pad on every side.
func (b Bounds) Expand(pad float64) Bounds {
	return Bounds{
		Min: Vec2{X: b.Min.X - pad, Y: b.Min.Y - pad},
		Max: Vec2{X: b.Max.X + pad, Y: b.Max.Y + pad},
	}
}

// Overlaps reports whether two rectangles intersect (touching counts).
func (b Bounds) Overlaps(o Bounds) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y
}
