package roads

import (
	"context"
	"strconv"

	"hexhold/server/logging"
)

const (
	// EventSegmentMerged is emitted when a chain of segments collapses into one.
	EventSegmentMerged logging.EventType = "roads.segment_merged"
	// EventChunkRebuilt is emitted after a chunk's road distance field is regenerated.
	EventChunkRebuilt logging.EventType = "roads.chunk_rebuilt"
	// EventLegacyPath is emitted when a stored segment has no usable cell path.
	EventLegacyPath logging.EventType = "roads.legacy_path"
)

// SegmentMergedPayload summarises a merge.
type SegmentMergedPayload struct {
	Absorbed       []int64  `json:"absorbed"`
	Cells          int      `json:"cells"`
	AffectedChunks []string `json:"affectedChunks"`
	Extended       bool     `json:"extended"`
}

// ChunkRebuiltPayload describes a regenerated chunk field.
type ChunkRebuiltPayload struct {
	Chunk      string `json:"chunk"`
	Segments   int    `json:"segments"`
	Resolution int    `json:"resolution"`
}

// LegacyPathPayload names the endpoints used to reconstruct a path.
type LegacyPathPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SegmentRef references a road segment by id.
func SegmentRef(id int64) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatInt(id, 10), Kind: logging.EntityKindSegment}
}

// ChunkRef references a chunk by its display key.
func ChunkRef(key string) logging.EntityRef {
	return logging.EntityRef{ID: key, Kind: logging.EntityKindChunk}
}

// SegmentMerged publishes a completed merge with the surviving segment as actor.
func SegmentMerged(ctx context.Context, pub logging.Publisher, merged int64, payload SegmentMergedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	targets := make([]logging.EntityRef, 0, len(payload.Absorbed))
	for _, id := range payload.Absorbed {
		targets = append(targets, SegmentRef(id))
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSegmentMerged,
		Actor:    SegmentRef(merged),
		Targets:  targets,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRoads,
		Payload:  payload,
		Extra:    extra,
	})
}

// ChunkRebuilt publishes a regenerated chunk field.
func ChunkRebuilt(ctx context.Context, pub logging.Publisher, tick uint64, payload ChunkRebuiltPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventChunkRebuilt,
		Tick:     tick,
		Actor:    ChunkRef(payload.Chunk),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryRoads,
		Payload:  payload,
		Extra:    extra,
	})
}

// LegacyPath publishes a cell path reconstructed from endpoints.
func LegacyPath(ctx context.Context, pub logging.Publisher, segment int64, payload LegacyPathPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLegacyPath,
		Actor:    SegmentRef(segment),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryRoads,
		Payload:  payload,
		Extra:    extra,
	})
}
