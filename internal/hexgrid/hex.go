// Package hexgrid provides axial hex cells, the world layout that maps them to
// positions and terrain chunks, and routing between cells.
package hexgrid

import (
	"fmt"
	"math"
)

// Cell addresses a hex grid cell in axial coordinates. The third cube
// coordinate is derived as s = -q - r.
type Cell struct {
	Q int `json:"q"`
	R int `json:"r"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Q, c.R)
}

// S returns the implicit third cube coordinate.
func (c Cell) S() int {
	return -c.Q - c.R
}

// Directions lists the six neighbour offsets in a fixed order. Routing relies
// on the order being stable.
var Directions = [6]Cell{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent cells.
func (c Cell) Neighbors() [6]Cell {
	var result [6]Cell
	for i, dir := range Directions {
		result[i] = Cell{Q: c.Q + dir.Q, R: c.R + dir.R}
	}
	return result
}

// Distance returns the number of steps between two cells.
func Distance(a, b Cell) int {
	dq := absInt(a.Q - b.Q)
	dr := absInt(a.R - b.R)
	ds := absInt(a.S() - b.S())
	return max(dq, dr, ds)
}

// IsNeighbor reports whether a and b share an edge.
func IsNeighbor(a, b Cell) bool {
	return Distance(a, b) == 1
}

// SharedNeighbor returns the first cell, in direction order, adjacent to both
// a and b. Only cells two steps apart can share a neighbour.
func SharedNeighbor(a, b Cell) (Cell, bool) {
	if Distance(a, b) != 2 {
		return Cell{}, false
	}
	for _, n := range a.Neighbors() {
		if IsNeighbor(n, b) {
			return n, true
		}
	}
	return Cell{}, false
}

// Line returns the cells on the straight line from a to b, both inclusive.
func Line(a, b Cell) []Cell {
	n := Distance(a, b)
	if n == 0 {
		return []Cell{a}
	}
	// Nudge off exact cell edges so ties round consistently.
	const eps = 1e-6
	aq, ar := float64(a.Q)+eps, float64(a.R)+eps
	bq, br := float64(b.Q)+eps, float64(b.R)+eps
	cells := make([]Cell, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		cells = append(cells, roundAxial(aq+(bq-aq)*t, ar+(br-ar)*t))
	}
	return cells
}

// roundAxial rounds fractional axial coordinates to the containing cell.
func roundAxial(q, r float64) Cell {
	s := -q - r
	rq := math.Round(q)
	rr := math.Round(r)
	rs := math.Round(s)
	dq := math.Abs(rq - q)
	dr := math.Abs(rr - r)
	ds := math.Abs(rs - s)
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return Cell{Q: int(rq), R: int(rr)}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
