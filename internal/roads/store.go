package roads

import (
	"context"

	"hexhold/server/internal/hexgrid"
)

// Store is the system of record for segments and their chunk visibility.
type Store interface {
	// SaveSegment inserts a segment with ID zero and returns the new id, or
	// overwrites an existing one.
	SaveSegment(ctx context.Context, seg Segment) (int64, error)
	LoadSegment(ctx context.Context, id int64) (Segment, error)
	// DeleteSegment removes a segment together with its visibility rows.
	DeleteSegment(ctx context.Context, id int64) error
	// SegmentsAtCell returns the segments that start or end at c, ordered by id.
	SegmentsAtCell(ctx context.Context, c hexgrid.Cell) ([]Segment, error)
	// ChunksForSegment returns the chunks a segment is currently indexed in.
	ChunksForSegment(ctx context.Context, id int64) ([]hexgrid.ChunkID, error)
	// ReplaceVisibility deletes every visibility row of a segment, then
	// inserts entries.
	ReplaceVisibility(ctx context.Context, id int64, entries []VisibilityEntry) error
	// ReplaceSegments saves merged (ID zero) with the given visibility and
	// deletes the absorbed segments as one unit: either every change is
	// applied or none is. It returns the id of the merged segment.
	ReplaceSegments(ctx context.Context, merged Segment, entries []VisibilityEntry, absorbed []int64) (int64, error)
	// SegmentsInChunk returns the segments visible in a chunk, ordered by id.
	SegmentsInChunk(ctx context.Context, chunk hexgrid.ChunkID) ([]Segment, error)
}
