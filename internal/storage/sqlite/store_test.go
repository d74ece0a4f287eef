package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hexhold.db")
	store, err := Open(context.Background(), path, roads.PathDecoder{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func testSegment(qs ...int) roads.Segment {
	path := make([]hexgrid.Cell, len(qs))
	for i, q := range qs {
		path[i] = hexgrid.Cell{Q: q}
	}
	return roads.Segment{
		Start:      path[0],
		End:        path[len(path)-1],
		CellPath:   path,
		Points:     hexgrid.DefaultLayout().CellsToWorld(path),
		Importance: 2,
		Type:       roads.Type{Category: roads.CategoryGravel, Variant: 3},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "", roads.PathDecoder{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), path, roads.PathDecoder{})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seg := testSegment(0, 1, 2)
	seg.Chunk = hexgrid.ChunkID{X: 1, Y: -2}
	id, err := store.SaveSegment(ctx, seg)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.LoadSegment(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != id || !slices.Equal(loaded.CellPath, seg.CellPath) || !slices.Equal(loaded.Points, seg.Points) {
		t.Fatalf("unexpected segment %+v", loaded)
	}
	if loaded.Type != seg.Type || loaded.Importance != seg.Importance || loaded.Chunk != seg.Chunk {
		t.Fatalf("type, importance or chunk lost: %+v", loaded)
	}

	loaded.Importance = 9
	if _, err := store.SaveSegment(ctx, loaded); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := store.LoadSegment(ctx, id)
	if again.Importance != 9 {
		t.Fatalf("expected update to persist, got %d", again.Importance)
	}

	if _, err := store.LoadSegment(ctx, id+100); !errors.Is(err, roads.ErrSegmentNotFound) {
		t.Fatalf("expected ErrSegmentNotFound, got %v", err)
	}
}

func TestSegmentsAtCellMatchesEitherEnd(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	a, _ := store.SaveSegment(ctx, testSegment(0, 1))
	b, _ := store.SaveSegment(ctx, testSegment(1, 2))
	store.SaveSegment(ctx, testSegment(5, 6))

	found, err := store.SegmentsAtCell(ctx, hexgrid.Cell{Q: 1})
	if err != nil {
		t.Fatalf("segments at cell: %v", err)
	}
	if len(found) != 2 || found[0].ID != a || found[1].ID != b {
		t.Fatalf("expected segments %d and %d, got %+v", a, b, found)
	}
}

func TestReplaceVisibilityAndDeleteCascade(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seg := testSegment(0, 1)
	id, _ := store.SaveSegment(ctx, seg)
	seg.ID = id
	entries := roads.ComputeVisibility(hexgrid.Layout{HexSize: 1, ChunkWorldSize: 1}, seg)

	for i := 0; i < 2; i++ {
		if err := store.ReplaceVisibility(ctx, id, entries); err != nil {
			t.Fatalf("replace visibility %d: %v", i, err)
		}
	}
	stored, err := store.VisibilityEntries(ctx, id)
	if err != nil {
		t.Fatalf("visibility entries: %v", err)
	}
	if !slices.Equal(stored, entries) {
		t.Fatalf("stored %+v, want %+v", stored, entries)
	}
	inChunk, err := store.SegmentsInChunk(ctx, entries[0].Chunk)
	if err != nil || len(inChunk) != 1 || inChunk[0].ID != id {
		t.Fatalf("segments in chunk: %+v %v", inChunk, err)
	}

	if err := store.DeleteSegment(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	chunks, err := store.ChunksForSegment(ctx, id)
	if err != nil || len(chunks) != 0 {
		t.Fatalf("expected visibility removed, got %v %v", chunks, err)
	}
	if err := store.DeleteSegment(ctx, id); !errors.Is(err, roads.ErrSegmentNotFound) {
		t.Fatalf("expected ErrSegmentNotFound on second delete, got %v", err)
	}
	if err := store.ReplaceVisibility(ctx, id, entries); !errors.Is(err, roads.ErrSegmentNotFound) {
		t.Fatalf("expected ErrSegmentNotFound for unknown segment, got %v", err)
	}
}

func TestLegacyRowsWithoutCellPath(t *testing.T) {
	var metrics logging.Metrics
	path := filepath.Join(t.TempDir(), "legacy.db")
	store, err := Open(context.Background(), path, roads.PathDecoder{Metrics: telemetry.WrapMetrics(&metrics)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	points := roads.EncodePoints([]hexgrid.Vec2{{}, {X: 3}})
	res, err := store.sqlDB.Exec(`INSERT INTO road_segments (start_q, start_r, end_q, end_r, cell_path, points) VALUES (0, 0, 2, 0, NULL, ?)`, points)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	id, _ := res.LastInsertId()

	seg, err := store.LoadSegment(context.Background(), id)
	if err != nil {
		t.Fatalf("load legacy segment: %v", err)
	}
	want := []hexgrid.Cell{{Q: 0}, {Q: 1}, {Q: 2}}
	if !slices.Equal(seg.CellPath, want) {
		t.Fatalf("expected reconstructed path %v, got %v", want, seg.CellPath)
	}
	if metrics.Snapshot()[telemetry.MetricLegacyPathFallback] != 1 {
		t.Fatalf("expected fallback counted")
	}
}

func TestActionLifecyclePersistence(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	info := actions.Info{
		PlayerID:       "p1",
		Chunk:          hexgrid.ChunkID{X: -1, Y: 2},
		Cell:           hexgrid.Cell{Q: -20, R: 44},
		EndCell:        hexgrid.Cell{Q: -18, R: 44},
		Type:           actions.TypeBuildRoad,
		Status:         actions.StatusPending,
		StartTime:      start,
		Duration:       3500 * time.Millisecond,
		CompletionTime: start.Add(3500 * time.Millisecond),
		RoadType:       roads.Type{Category: roads.CategoryPaved},
		CellPath:       []hexgrid.Cell{{Q: -20, R: 44}, {Q: -19, R: 44}, {Q: -18, R: 44}},
	}
	id, err := store.CreateAction(ctx, info)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info.ID = id

	active, err := store.LoadActiveActions(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("load active: %+v %v", active, err)
	}
	got := active[0]
	if !got.StartTime.Equal(start) || got.Duration != info.Duration || got.RoadType != info.RoadType || !slices.Equal(got.CellPath, info.CellPath) {
		t.Fatalf("action fields lost: %+v", got)
	}

	info.Status = actions.StatusCompleted
	info.TargetID = 12
	info.AffectedChunks = []hexgrid.ChunkID{{X: -1, Y: 2}}
	if err := store.UpdateAction(ctx, info); err != nil {
		t.Fatalf("update: %v", err)
	}
	if active, _ := store.LoadActiveActions(ctx); len(active) != 0 {
		t.Fatalf("completed action must not be active")
	}
	done, err := store.LoadAction(ctx, id)
	if err != nil {
		t.Fatalf("load action: %v", err)
	}
	if done.TargetID != 12 || !slices.Equal(done.AffectedChunks, info.AffectedChunks) {
		t.Fatalf("completed action fields lost: %+v", done)
	}
	info.ID = id + 50
	if err := store.UpdateAction(ctx, info); !errors.Is(err, actions.ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}

func TestBuildingStore(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	id, err := store.SaveBuilding(ctx, actions.Building{PlayerID: "p1", Type: actions.BuildingFarm, Cell: hexgrid.Cell{Q: 3, R: 1}})
	if err != nil {
		t.Fatalf("save building: %v", err)
	}
	if err := store.MarkBuildingBuilt(ctx, id); err != nil {
		t.Fatalf("mark built: %v", err)
	}
	b, err := store.LoadBuilding(ctx, id)
	if err != nil || !b.Built || b.Type != actions.BuildingFarm {
		t.Fatalf("unexpected building %+v %v", b, err)
	}
	if err := store.DeleteBuilding(ctx, id); err != nil {
		t.Fatalf("delete building: %v", err)
	}
	if err := store.MarkBuildingBuilt(ctx, id); !errors.Is(err, actions.ErrBuildingNotFound) {
		t.Fatalf("expected ErrBuildingNotFound, got %v", err)
	}
}

func TestNetworkMergeOnSQLite(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	network := roads.NewNetwork(store, hexgrid.DefaultLayout(), nil)
	for _, path := range [][]hexgrid.Cell{
		{{Q: 0}, {Q: 1}},
		{{Q: 1}, {Q: 2}},
		{{Q: 2}, {Q: 3}},
	} {
		if _, err := network.Build(ctx, path, roads.DefaultType, 1); err != nil {
			t.Fatalf("build %v: %v", path, err)
		}
	}
	segments, err := store.SegmentsAtCell(ctx, hexgrid.Cell{Q: 0})
	if err != nil || len(segments) != 1 {
		t.Fatalf("expected one merged segment, got %+v %v", segments, err)
	}
	want := []hexgrid.Cell{{Q: 0}, {Q: 1}, {Q: 2}, {Q: 3}}
	if !slices.Equal(segments[0].CellPath, want) {
		t.Fatalf("merged path = %v, want %v", segments[0].CellPath, want)
	}
	if mid, _ := store.SegmentsAtCell(ctx, hexgrid.Cell{Q: 1}); len(mid) != 0 {
		t.Fatalf("originals must be gone, found %+v", mid)
	}
}

func TestReplaceSegmentsRollsBackOnMissingOriginal(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	layout := hexgrid.DefaultLayout()
	a, _ := store.SaveSegment(ctx, testSegment(0, 1))
	b, _ := store.SaveSegment(ctx, testSegment(1, 2))
	merged := testSegment(0, 1, 2)
	entries := roads.ComputeVisibility(layout, merged)

	if _, err := store.ReplaceSegments(ctx, merged, entries, []int64{a, b, b + 10}); !errors.Is(err, roads.ErrSegmentNotFound) {
		t.Fatalf("expected ErrSegmentNotFound, got %v", err)
	}
	for _, id := range []int64{a, b} {
		if _, err := store.LoadSegment(ctx, id); err != nil {
			t.Fatalf("original %d must survive the rollback: %v", id, err)
		}
	}
	if found, _ := store.SegmentsAtCell(ctx, hexgrid.Cell{Q: 2}); len(found) != 1 {
		t.Fatalf("rolled back merge must not leave a merged segment, got %+v", found)
	}

	id, err := store.ReplaceSegments(ctx, merged, entries, []int64{a, b})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	stored, err := store.VisibilityEntries(ctx, id)
	if err != nil || len(stored) != len(entries) {
		t.Fatalf("expected merged visibility stored, got %+v %v", stored, err)
	}
	if _, err := store.LoadSegment(ctx, a); !errors.Is(err, roads.ErrSegmentNotFound) {
		t.Fatalf("expected originals deleted, got %v", err)
	}
}
