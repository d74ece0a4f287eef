package roads

import (
	"context"
	"fmt"
	"sort"

	"hexhold/server/internal/hexgrid"
)

// VisibilityEntry records that a segment must be drawn when a chunk is rendered.
type VisibilityEntry struct {
	SegmentID  int64           `json:"segmentId"`
	Chunk      hexgrid.ChunkID `json:"chunk"`
	IsEndpoint bool            `json:"isEndpoint"`
}

// ComputeVisibility returns the chunks a segment is visible in: the chunk of
// every path cell plus every chunk overlapped by the bounding box of its
// rendered points. Chunks holding Start or End are flagged as endpoints.
// Entries are ordered by chunk row, then column.
func ComputeVisibility(layout hexgrid.Layout, seg Segment) []VisibilityEntry {
	chunks := make(map[hexgrid.ChunkID]bool)
	for _, c := range seg.CellPath {
		chunks[layout.ChunkOfCell(c)] = false
	}
	if bounds, ok := hexgrid.BoundsOf(seg.Points); ok {
		for _, id := range layout.ChunksInBounds(bounds) {
			if _, seen := chunks[id]; !seen {
				chunks[id] = false
			}
		}
	}
	if len(seg.CellPath) > 0 {
		chunks[layout.ChunkOfCell(seg.Start)] = true
		chunks[layout.ChunkOfCell(seg.End)] = true
	}

	entries := make([]VisibilityEntry, 0, len(chunks))
	for id, endpoint := range chunks {
		entries = append(entries, VisibilityEntry{SegmentID: seg.ID, Chunk: id, IsEndpoint: endpoint})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Chunk, entries[j].Chunk
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return entries
}

// Indexer keeps the persisted visibility rows of segments current.
type Indexer struct {
	layout hexgrid.Layout
	store  Store
}

func NewIndexer(layout hexgrid.Layout, store Store) *Indexer {
	return &Indexer{layout: layout, store: store}
}

func (ix *Indexer) Compute(seg Segment) []VisibilityEntry {
	return ComputeVisibility(ix.layout, seg)
}

// Reindex recomputes a saved segment's visibility and replaces its stored rows.
func (ix *Indexer) Reindex(ctx context.Context, seg Segment) ([]VisibilityEntry, error) {
	if seg.ID == 0 {
		return nil, fmt.Errorf("reindex: %w: segment not saved", ErrInvalidSegment)
	}
	entries := ix.Compute(seg)
	if err := ix.store.ReplaceVisibility(ctx, seg.ID, entries); err != nil {
		return nil, fmt.Errorf("reindex segment %d: %w", seg.ID, err)
	}
	return entries, nil
}

// ChunksOf extracts the chunk ids of entries in order.
func ChunksOf(entries []VisibilityEntry) []hexgrid.ChunkID {
	out := make([]hexgrid.ChunkID, len(entries))
	for i, e := range entries {
		out[i] = e.Chunk
	}
	return out
}
