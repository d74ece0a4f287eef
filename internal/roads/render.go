package roads

import (
	"context"
	"fmt"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/sdf"
)

// ChunkRenderer rasterizes the road centrelines visible in a chunk.
type ChunkRenderer struct {
	store  Store
	layout hexgrid.Layout
	config sdf.Config
}

// NewChunkRenderer returns a renderer whose field covers exactly one chunk of
// layout. Road centrelines cross chunk borders, so the seam filter is off.
func NewChunkRenderer(store Store, layout hexgrid.Layout, cfg sdf.Config) *ChunkRenderer {
	cfg.ChunkWorldSize = layout.ChunkSize()
	cfg.EdgeThreshold = 0
	return &ChunkRenderer{store: store, layout: layout, config: cfg}
}

func (r *ChunkRenderer) Config() sdf.Config { return r.config }

// Render returns the chunk's road field and the number of segments drawn.
func (r *ChunkRenderer) Render(ctx context.Context, chunk hexgrid.ChunkID) (sdf.Field, int, error) {
	segments, err := r.store.SegmentsInChunk(ctx, chunk)
	if err != nil {
		return sdf.Field{}, 0, fmt.Errorf("segments in chunk %s: %w", chunk, err)
	}
	polylines := make([][]hexgrid.Vec2, 0, len(segments))
	for _, seg := range segments {
		points := seg.Points
		if len(points) == 0 {
			points = r.layout.CellsToWorld(seg.CellPath)
		}
		if len(points) > 0 {
			polylines = append(polylines, points)
		}
	}
	field, err := sdf.Rasterize(polylines, r.layout.ChunkOrigin(chunk), r.config)
	if err != nil {
		return sdf.Field{}, 0, err
	}
	return field, len(segments), nil
}
