package roads

import (
	"context"
	"errors"
	"slices"
	"testing"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads/spline"
	"hexhold/server/internal/sdf"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
)

func cells(qs ...int) []hexgrid.Cell {
	out := make([]hexgrid.Cell, len(qs))
	for i, q := range qs {
		out[i] = hexgrid.Cell{Q: q}
	}
	return out
}

func newTestNetwork(t *testing.T) (*Network, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewNetwork(store, hexgrid.DefaultLayout(), spline.NewGenerator(spline.Config{SamplesPerSegment: 4, SmoothingInfluence: 0.5})), store
}

// saveIndexed stores a segment along path without merging it.
func saveIndexed(t *testing.T, n *Network, path []hexgrid.Cell, importance int) Segment {
	t.Helper()
	ctx := context.Background()
	seg, err := n.NewSegment(path, DefaultType, importance)
	if err != nil {
		t.Fatalf("new segment: %v", err)
	}
	id, err := n.store.SaveSegment(ctx, seg)
	if err != nil {
		t.Fatalf("save segment: %v", err)
	}
	seg.ID = id
	if _, err := n.indexer.Reindex(ctx, seg); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	return seg
}

func TestMergeFoldsThreeSegmentChain(t *testing.T) {
	n, store := newTestNetwork(t)
	ctx := context.Background()
	a := saveIndexed(t, n, cells(0, 1), 1)
	b := saveIndexed(t, n, cells(1, 2), 3)
	c := saveIndexed(t, n, cells(2, 3), 2)

	result, err := n.Merge(ctx, b.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if want := cells(0, 1, 2, 3); !slices.Equal(result.Merged.CellPath, want) {
		t.Fatalf("merged path = %v, want %v", result.Merged.CellPath, want)
	}
	if result.Merged.Importance != 3 {
		t.Fatalf("expected max importance 3, got %d", result.Merged.Importance)
	}
	if want := []int64{a.ID, b.ID, c.ID}; !slices.Equal(result.Absorbed, want) {
		t.Fatalf("absorbed = %v, want %v", result.Absorbed, want)
	}
	for _, id := range result.Absorbed {
		if _, err := store.LoadSegment(ctx, id); !errors.Is(err, ErrSegmentNotFound) {
			t.Fatalf("expected segment %d deleted, got %v", id, err)
		}
		if len(store.Visibility(id)) != 0 {
			t.Fatalf("expected visibility of %d dropped", id)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("expected a single stored segment, got %d", store.Len())
	}
	stored, err := store.LoadSegment(ctx, result.Merged.ID)
	if err != nil {
		t.Fatalf("load merged: %v", err)
	}
	if stored.Start != (hexgrid.Cell{Q: 0}) || stored.End != (hexgrid.Cell{Q: 3}) {
		t.Fatalf("unexpected merged endpoints %v -> %v", stored.Start, stored.End)
	}
	if len(store.Visibility(result.Merged.ID)) == 0 {
		t.Fatalf("merged segment must be indexed")
	}
	if len(result.AffectedChunks) == 0 {
		t.Fatalf("expected affected chunks")
	}
}

func TestMergeStopsAtJunction(t *testing.T) {
	n, store := newTestNetwork(t)
	a := saveIndexed(t, n, cells(0, 1), 1)
	saveIndexed(t, n, cells(1, 2), 1)
	saveIndexed(t, n, []hexgrid.Cell{{Q: 1}, {Q: 1, R: 1}}, 1)

	result, err := n.Merge(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Merged.ID != a.ID || len(result.Absorbed) != 0 {
		t.Fatalf("junction must not merge, got %+v", result)
	}
	if store.Len() != 3 {
		t.Fatalf("expected all three segments kept, got %d", store.Len())
	}
}

func TestMergeReorientsReversedNeighbour(t *testing.T) {
	n, _ := newTestNetwork(t)
	saveIndexed(t, n, cells(1, 0), 1)
	b := saveIndexed(t, n, cells(1, 2), 1)

	result, err := n.Merge(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if want := cells(0, 1, 2); !slices.Equal(result.Merged.CellPath, want) {
		t.Fatalf("merged path = %v, want %v", result.Merged.CellPath, want)
	}
	if result.Extended {
		t.Fatalf("reversed neighbour must be regenerated, not extended")
	}
}

func TestMergeLeavesRingsAlone(t *testing.T) {
	n, store := newTestNetwork(t)
	a := saveIndexed(t, n, cells(0, 1), 1)
	saveIndexed(t, n, cells(1, 2), 1)
	saveIndexed(t, n, cells(2, 0), 1)

	result, err := n.Merge(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Merged.ID != a.ID || store.Len() != 3 {
		t.Fatalf("ring must not collapse, got %+v with %d stored", result, store.Len())
	}
}

func TestBuildExtendsRoadByOneCell(t *testing.T) {
	n, store := newTestNetwork(t)
	ctx := context.Background()
	if _, err := n.Build(ctx, cells(0, 1, 2), DefaultType, 1); err != nil {
		t.Fatalf("build: %v", err)
	}
	result, err := n.Build(ctx, cells(2, 3), DefaultType, 1)
	if err != nil {
		t.Fatalf("build extension: %v", err)
	}
	if !result.Extended {
		t.Fatalf("expected in-place extension")
	}
	if want := cells(0, 1, 2, 3); !slices.Equal(result.Merged.CellPath, want) {
		t.Fatalf("merged path = %v, want %v", result.Merged.CellPath, want)
	}
	if got, want := len(result.Merged.Points), n.spline.SampleCount(4); got != want {
		t.Fatalf("expected %d points, got %d", want, got)
	}
	last := result.Merged.Points[len(result.Merged.Points)-1]
	if last != n.layout.CellToWorld(hexgrid.Cell{Q: 3}) {
		t.Fatalf("curve must end on the new cell, got %v", last)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one segment after extension, got %d", store.Len())
	}
}

func TestMergePublishesEventAndCountsMetric(t *testing.T) {
	var events []logging.Event
	var metrics logging.Metrics
	store := NewMemoryStore()
	n := NewNetwork(store, hexgrid.DefaultLayout(), nil,
		WithPublisher(logging.PublisherFunc(func(_ context.Context, e logging.Event) { events = append(events, e) })),
		WithMetrics(telemetry.WrapMetrics(&metrics)),
	)
	saveIndexed(t, n, cells(0, 1), 1)
	b := saveIndexed(t, n, cells(1, 2), 1)
	if _, err := n.Merge(context.Background(), b.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(events) != 1 || events[0].Category != logging.CategoryRoads {
		t.Fatalf("expected one roads event, got %+v", events)
	}
	if got := metrics.Snapshot()[telemetry.MetricSegmentsMerged]; got != 2 {
		t.Fatalf("expected 2 merged segments counted, got %d", got)
	}
}

func TestMergeReportsStoreFailure(t *testing.T) {
	n, store := newTestNetwork(t)
	a := saveIndexed(t, n, cells(0, 1), 1)
	b := saveIndexed(t, n, cells(1, 2), 1)
	before := store.Visibility(a.ID)
	boom := errors.New("disk full")
	store.Fault = func(op string) error {
		if op == "ReplaceSegments" {
			return boom
		}
		return nil
	}
	if _, err := n.Merge(context.Background(), b.ID); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	store.Fault = nil
	if store.Len() != 2 {
		t.Fatalf("failed merge must leave exactly the originals, got %d segments", store.Len())
	}
	if !slices.Equal(store.Visibility(a.ID), before) || len(store.Visibility(b.ID)) == 0 {
		t.Fatalf("failed merge must keep the originals indexed")
	}

	result, err := n.Merge(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("merge retry: %v", err)
	}
	if store.Len() != 1 || !slices.Equal(result.Merged.CellPath, cells(0, 1, 2)) {
		t.Fatalf("expected retry to fold the chain, got %d segments and %v", store.Len(), result.Merged.CellPath)
	}
}

func TestReplaceSegmentsIsAllOrNothing(t *testing.T) {
	n, store := newTestNetwork(t)
	ctx := context.Background()
	a := saveIndexed(t, n, cells(0, 1), 1)
	merged, err := n.NewSegment(cells(0, 1, 2), DefaultType, 1)
	if err != nil {
		t.Fatalf("new segment: %v", err)
	}
	if _, err := store.ReplaceSegments(ctx, merged, n.indexer.Compute(merged), []int64{a.ID, a.ID + 50}); !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("expected ErrSegmentNotFound, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("rejected replace must not touch the store, got %d segments", store.Len())
	}
	if _, err := store.LoadSegment(ctx, a.ID); err != nil {
		t.Fatalf("original must survive: %v", err)
	}

	id, err := store.ReplaceSegments(ctx, merged, n.indexer.Compute(merged), []int64{a.ID})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected only the merged segment, got %d", store.Len())
	}
	for _, e := range store.Visibility(id) {
		if e.SegmentID != id {
			t.Fatalf("visibility entry not bound to merged segment: %+v", e)
		}
	}
}

func TestComputeVisibilityFlagsEndpointChunks(t *testing.T) {
	layout := hexgrid.Layout{HexSize: 1, ChunkWorldSize: 4}
	n := NewNetwork(NewMemoryStore(), layout, nil)
	seg, err := n.NewSegment(cells(0, 1, 2, 3, 4, 5, 6), DefaultType, 1)
	if err != nil {
		t.Fatalf("new segment: %v", err)
	}
	seg.ID = 7
	entries := ComputeVisibility(layout, seg)
	want := []VisibilityEntry{
		{SegmentID: 7, Chunk: hexgrid.ChunkID{X: 0, Y: 0}, IsEndpoint: true},
		{SegmentID: 7, Chunk: hexgrid.ChunkID{X: 1, Y: 0}},
		{SegmentID: 7, Chunk: hexgrid.ChunkID{X: 2, Y: 0}, IsEndpoint: true},
	}
	if !slices.Equal(entries, want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
}

func TestComputeVisibilityIncludesChunksCrossedBetweenCells(t *testing.T) {
	layout := hexgrid.Layout{HexSize: 1, ChunkWorldSize: 2}
	n := NewNetwork(NewMemoryStore(), layout, nil)
	// The centres land in chunks (0,0) and (1,1); the line between them also
	// spans (1,0) and (0,1).
	seg, err := n.NewSegment([]hexgrid.Cell{{Q: 0, R: 0}, {Q: 1, R: 2}}, DefaultType, 1)
	if err != nil {
		t.Fatalf("new segment: %v", err)
	}
	seg.ID = 3
	entries := ComputeVisibility(layout, seg)
	want := []VisibilityEntry{
		{SegmentID: 3, Chunk: hexgrid.ChunkID{X: 0, Y: 0}, IsEndpoint: true},
		{SegmentID: 3, Chunk: hexgrid.ChunkID{X: 1, Y: 0}},
		{SegmentID: 3, Chunk: hexgrid.ChunkID{X: 0, Y: 1}},
		{SegmentID: 3, Chunk: hexgrid.ChunkID{X: 1, Y: 1}, IsEndpoint: true},
	}
	if !slices.Equal(entries, want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
	if seg.Chunk != (hexgrid.ChunkID{}) {
		t.Fatalf("segment chunk = %s, want the start cell's chunk", seg.Chunk)
	}
}

func TestReindexIsIdempotent(t *testing.T) {
	n, store := newTestNetwork(t)
	ctx := context.Background()
	seg := saveIndexed(t, n, []hexgrid.Cell{{Q: 0}, {Q: 10, R: 10}, {Q: 20, R: 25}}, 1)
	first := store.Visibility(seg.ID)
	if _, err := n.indexer.Reindex(ctx, seg); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	second := store.Visibility(seg.ID)
	if !slices.Equal(first, second) {
		t.Fatalf("reindex changed entries: %v vs %v", first, second)
	}
	if !slices.Equal(n.indexer.Compute(seg), n.indexer.Compute(seg)) {
		t.Fatalf("compute must be deterministic")
	}
	for _, e := range second {
		found, err := store.SegmentsInChunk(ctx, e.Chunk)
		if err != nil {
			t.Fatalf("segments in chunk: %v", err)
		}
		if len(found) != 1 || found[0].ID != seg.ID {
			t.Fatalf("chunk %s should list the segment", e.Chunk)
		}
	}
}

func TestChunkRendererDrawsVisibleRoads(t *testing.T) {
	n, store := newTestNetwork(t)
	ctx := context.Background()
	// Row r=2 sits at y=3, inside chunk (0,0).
	path := make([]hexgrid.Cell, 0, 10)
	for q := 0; q < 10; q++ {
		path = append(path, hexgrid.Cell{Q: q, R: 2})
	}
	if _, err := n.Build(ctx, path, DefaultType, 1); err != nil {
		t.Fatalf("build: %v", err)
	}
	renderer := NewChunkRenderer(store, n.layout, sdf.Config{Resolution: 32, MaxDistance: 4})
	field, count, err := renderer.Render(ctx, hexgrid.ChunkID{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one segment drawn, got %d", count)
	}
	if field.At(10, 3) >= field.At(10, 20) {
		t.Fatalf("texel on the road (%d) should be nearer than one far away (%d)", field.At(10, 3), field.At(10, 20))
	}

	empty, count, err := renderer.Render(ctx, hexgrid.ChunkID{X: 5, Y: 5})
	if err != nil {
		t.Fatalf("render empty: %v", err)
	}
	if count != 0 || !empty.Uniform() || empty.Data[0] != 255 {
		t.Fatalf("chunk without roads must render uniform far field")
	}
}

func TestSegmentValidate(t *testing.T) {
	good := Segment{Start: hexgrid.Cell{}, End: hexgrid.Cell{Q: 1}, CellPath: cells(0, 1), Points: []hexgrid.Vec2{{}, {X: 1}}}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid segment rejected: %v", err)
	}
	bad := []Segment{
		{},
		{Start: hexgrid.Cell{Q: 5}, End: hexgrid.Cell{Q: 1}, CellPath: cells(0, 1), Points: good.Points},
		{Start: hexgrid.Cell{}, End: hexgrid.Cell{}, CellPath: cells(0, 1, 0), Points: good.Points},
		{Start: hexgrid.Cell{}, End: hexgrid.Cell{Q: 1}, CellPath: cells(0, 1)},
	}
	for i, seg := range bad {
		if err := seg.Validate(); !errors.Is(err, ErrInvalidSegment) {
			t.Fatalf("case %d: expected ErrInvalidSegment, got %v", i, err)
		}
	}
}

func TestTypeCatalogue(t *testing.T) {
	typ, err := ParseType("cobble/1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ.Category != CategoryCobble || typ.Variant != 1 || typ.ID() != 2<<8|1 {
		t.Fatalf("unexpected type %+v id %d", typ, typ.ID())
	}
	back, err := TypeFromID(typ.ID())
	if err != nil || back != typ {
		t.Fatalf("id round trip: %v %v", back, err)
	}
	if _, err := ParseType("marble"); !errors.Is(err, ErrUnknownRoadType) {
		t.Fatalf("expected ErrUnknownRoadType, got %v", err)
	}
	if _, err := TypeFromID(9 << 8); !errors.Is(err, ErrUnknownRoadType) {
		t.Fatalf("expected ErrUnknownRoadType for id, got %v", err)
	}
}

func TestCodecRejectsCorruptBlobs(t *testing.T) {
	path := []hexgrid.Cell{{Q: -3, R: 7}, {Q: 100000, R: -1}}
	decoded, err := DecodeCells(EncodeCells(path))
	if err != nil || !slices.Equal(decoded, path) {
		t.Fatalf("cells round trip: %v %v", decoded, err)
	}
	points := []hexgrid.Vec2{{X: 1.25, Y: -3.5}}
	decodedPoints, err := DecodePoints(EncodePoints(points))
	if err != nil || !slices.Equal(decodedPoints, points) {
		t.Fatalf("points round trip: %v %v", decodedPoints, err)
	}
	blob := EncodeCells(path)
	if _, err := DecodeCells(blob[:len(blob)-1]); !errors.Is(err, ErrCorruptEncoding) {
		t.Fatalf("expected ErrCorruptEncoding, got %v", err)
	}
	if _, err := DecodePoints([]byte{1}); !errors.Is(err, ErrCorruptEncoding) {
		t.Fatalf("expected ErrCorruptEncoding for short header, got %v", err)
	}
}

func TestLegacyPathFallbackIsCounted(t *testing.T) {
	var metrics logging.Metrics
	decoder := PathDecoder{Metrics: telemetry.WrapMetrics(&metrics)}
	ctx := context.Background()

	path, legacy, err := decoder.DecodeCellPath(ctx, 1, hexgrid.Cell{}, hexgrid.Cell{Q: 3}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !legacy || !slices.Equal(path, cells(0, 1, 2, 3)) {
		t.Fatalf("expected straight line fallback, got %v legacy=%v", path, legacy)
	}
	if _, legacy, err := decoder.DecodeCellPath(ctx, 2, hexgrid.Cell{}, hexgrid.Cell{Q: 1}, EncodeCells(cells(0, 1))); err != nil || legacy {
		t.Fatalf("encoded path must decode directly, legacy=%v err=%v", legacy, err)
	}
	if got := metrics.Snapshot()[telemetry.MetricLegacyPathFallback]; got != 1 {
		t.Fatalf("expected one fallback counted, got %d", got)
	}
}
