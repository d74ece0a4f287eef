// Package roads stores road segments, keeps the chunk visibility index in step
// with them, and folds chains of segments into single segments as the network
// grows.
package roads

import (
	"errors"
	"fmt"
	"slices"

	"hexhold/server/internal/hexgrid"
)

var (
	// ErrSegmentNotFound is returned by stores for unknown segment ids.
	ErrSegmentNotFound = errors.New("roads: segment not found")
	// ErrInvalidSegment wraps structural problems reported by Segment.Validate.
	ErrInvalidSegment = errors.New("roads: invalid segment")
)

// Segment is a stored piece of road between two cells. ID zero marks a
// segment that has not been saved yet. Chunk is the chunk that held Start when
// the segment was built.
type Segment struct {
	ID         int64           `json:"id"`
	Start      hexgrid.Cell    `json:"start"`
	End        hexgrid.Cell    `json:"end"`
	Chunk      hexgrid.ChunkID `json:"chunk"`
	CellPath   []hexgrid.Cell  `json:"cellPath"`
	Points     []hexgrid.Vec2  `json:"points"`
	Importance int             `json:"importance"`
	Type       Type            `json:"type"`
}

// Validate checks the path invariants: the path runs from Start to End, a
// segment with Start == End has exactly one cell, and a non-empty path has
// rendered points.
func (s Segment) Validate() error {
	if len(s.CellPath) == 0 {
		return fmt.Errorf("%w: empty cell path", ErrInvalidSegment)
	}
	if s.CellPath[0] != s.Start {
		return fmt.Errorf("%w: path starts at %s, segment at %s", ErrInvalidSegment, s.CellPath[0], s.Start)
	}
	if last := s.CellPath[len(s.CellPath)-1]; last != s.End {
		return fmt.Errorf("%w: path ends at %s, segment at %s", ErrInvalidSegment, last, s.End)
	}
	if s.Start == s.End && len(s.CellPath) != 1 {
		return fmt.Errorf("%w: closed segment with %d cells", ErrInvalidSegment, len(s.CellPath))
	}
	if len(s.Points) == 0 {
		return fmt.Errorf("%w: no rendered points", ErrInvalidSegment)
	}
	return nil
}

// Touches reports whether the segment starts or ends at c.
func (s Segment) Touches(c hexgrid.Cell) bool {
	return s.Start == c || s.End == c
}

// OtherEnd returns the endpoint opposite c. The second result is false when c
// is not an endpoint.
func (s Segment) OtherEnd(c hexgrid.Cell) (hexgrid.Cell, bool) {
	switch c {
	case s.Start:
		return s.End, true
	case s.End:
		return s.Start, true
	}
	return hexgrid.Cell{}, false
}

// Reversed returns a copy running from End to Start.
func (s Segment) Reversed() Segment {
	out := s.Clone()
	out.Start, out.End = s.End, s.Start
	slices.Reverse(out.CellPath)
	slices.Reverse(out.Points)
	return out
}

// Clone returns a deep copy.
func (s Segment) Clone() Segment {
	s.CellPath = slices.Clone(s.CellPath)
	s.Points = slices.Clone(s.Points)
	return s
}
