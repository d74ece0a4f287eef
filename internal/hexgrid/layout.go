package hexgrid

import (
	"fmt"
	"math"
)

const (
	DefaultHexSize        = 1.0
	DefaultChunkWorldSize = 32.0
)

// ChunkID addresses a square terrain chunk on the chunk grid.
type ChunkID struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c ChunkID) String() string {
	return fmt.Sprintf("[%d,%d]", c.X, c.Y)
}

// Layout maps pointy-top hex cells to world positions and positions to chunks.
type Layout struct {
	HexSize        float64
	ChunkWorldSize float64
}

// DefaultLayout returns the layout used by the server when none is configured.
func DefaultLayout() Layout {
	return Layout{HexSize: DefaultHexSize, ChunkWorldSize: DefaultChunkWorldSize}
}

func (l Layout) normalized() Layout {
	if l.HexSize <= 0 {
		l.HexSize = DefaultHexSize
	}
	if l.ChunkWorldSize <= 0 {
		l.ChunkWorldSize = DefaultChunkWorldSize
	}
	return l
}

// ChunkSize returns the edge length of a chunk in world units.
func (l Layout) ChunkSize() float64 {
	return l.normalized().ChunkWorldSize
}

// CellToWorld returns the world-space centre of a cell.
func (l Layout) CellToWorld(c Cell) Vec2 {
	l = l.normalized()
	return Vec2{
		X: l.HexSize * math.Sqrt(3) * (float64(c.Q) + float64(c.R)/2),
		Y: l.HexSize * 1.5 * float64(c.R),
	}
}

// CellsToWorld maps every cell of a path to its centre.
func (l Layout) CellsToWorld(cells []Cell) []Vec2 {
	if len(cells) == 0 {
		return nil
	}
	out := make([]Vec2, len(cells))
	for i, c := range cells {
		out[i] = l.CellToWorld(c)
	}
	return out
}

// WorldToCell returns the cell containing a world position.
func (l Layout) WorldToCell(p Vec2) Cell {
	l = l.normalized()
	q := (math.Sqrt(3)/3*p.X - p.Y/3) / l.HexSize
	r := (2.0 / 3 * p.Y) / l.HexSize
	return roundAxial(q, r)
}

// ChunkOf returns the chunk containing a world position.
func (l Layout) ChunkOf(p Vec2) ChunkID {
	l = l.normalized()
	return ChunkID{
		X: int(math.Floor(p.X / l.ChunkWorldSize)),
		Y: int(math.Floor(p.Y / l.ChunkWorldSize)),
	}
}

// ChunkOfCell returns the chunk containing the centre of a cell.
func (l Layout) ChunkOfCell(c Cell) ChunkID {
	return l.ChunkOf(l.CellToWorld(c))
}

// ChunkOrigin returns the minimum corner of a chunk in world space.
func (l Layout) ChunkOrigin(c ChunkID) Vec2 {
	l = l.normalized()
	return Vec2{X: float64(c.X) * l.ChunkWorldSize, Y: float64(c.Y) * l.ChunkWorldSize}
}

// ChunkBounds returns the world-space rectangle covered by a chunk.
func (l Layout) ChunkBounds(c ChunkID) Bounds {
	l = l.normalized()
	origin := l.ChunkOrigin(c)
	return Bounds{Min: origin, Max: Vec2{X: origin.X + l.ChunkWorldSize, Y: origin.Y + l.ChunkWorldSize}}
}

// ChunksInBounds returns every chunk that intersects the rectangle, row by row.
func (l Layout) ChunksInBounds(b Bounds) []ChunkID {
	lo := l.ChunkOf(b.Min)
	hi := l.ChunkOf(b.Max)
	chunks := make([]ChunkID, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1))
	for y := lo.Y; y <= hi.Y; y++ {
		for x := lo.X; x <= hi.X; x++ {
			chunks = append(chunks, ChunkID{X: x, Y: y})
		}
	}
	return chunks
}
