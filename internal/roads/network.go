package roads

import (
	"context"
	"fmt"
	"slices"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads/spline"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
	loggingroads "hexhold/server/logging/roads"
)

// Network builds segments and keeps the stored graph merged and indexed.
type Network struct {
	store     Store
	indexer   *Indexer
	layout    hexgrid.Layout
	spline    *spline.Generator
	publisher logging.Publisher
	metrics   telemetry.Metrics
}

// Option customises a Network.
type Option func(*Network)

func WithPublisher(pub logging.Publisher) Option {
	return func(n *Network) {
		if pub != nil {
			n.publisher = pub
		}
	}
}

func WithMetrics(metrics telemetry.Metrics) Option {
	return func(n *Network) {
		if metrics != nil {
			n.metrics = metrics
		}
	}
}

func NewNetwork(store Store, layout hexgrid.Layout, gen *spline.Generator, opts ...Option) *Network {
	if gen == nil {
		gen = spline.NewGenerator(spline.DefaultConfig())
	}
	n := &Network{
		store:     store,
		indexer:   NewIndexer(layout, store),
		layout:    layout,
		spline:    gen,
		publisher: logging.NopPublisher(),
		metrics:   telemetry.NopMetrics(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Network) Layout() hexgrid.Layout { return n.layout }

func (n *Network) Indexer() *Indexer { return n.indexer }

func (n *Network) Store() Store { return n.store }

// NewSegment returns an unsaved segment along path with rendered points.
func (n *Network) NewSegment(path []hexgrid.Cell, typ Type, importance int) (Segment, error) {
	if len(path) == 0 {
		return Segment{}, fmt.Errorf("%w: empty cell path", ErrInvalidSegment)
	}
	if !typ.Category.Valid() {
		return Segment{}, fmt.Errorf("%w: %s", ErrUnknownRoadType, typ)
	}
	seg := Segment{
		Start:      path[0],
		End:        path[len(path)-1],
		Chunk:      n.layout.ChunkOfCell(path[0]),
		CellPath:   slices.Clone(path),
		Importance: importance,
		Type:       typ,
	}
	seg.Points = n.spline.Generate(n.layout.CellsToWorld(seg.CellPath))
	if err := seg.Validate(); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

// Save stores a new segment along path without indexing or merging it. The
// returned segment carries its id; pass it to Merge to finish the build.
func (n *Network) Save(ctx context.Context, path []hexgrid.Cell, typ Type, importance int) (Segment, error) {
	seg, err := n.NewSegment(path, typ, importance)
	if err != nil {
		return Segment{}, err
	}
	id, err := n.store.SaveSegment(ctx, seg)
	if err != nil {
		return Segment{}, fmt.Errorf("save segment: %w", err)
	}
	seg.ID = id
	return seg, nil
}

// Build saves a new segment along path and merges it into the network.
// Callers that must survive a failed merge use Save and Merge separately and
// retry Merge with the saved id.
func (n *Network) Build(ctx context.Context, path []hexgrid.Cell, typ Type, importance int) (MergeResult, error) {
	seg, err := n.Save(ctx, path, typ, importance)
	if err != nil {
		return MergeResult{}, err
	}
	return n.Merge(ctx, seg.ID)
}

// MergeResult describes the segment left in the store after Merge.
type MergeResult struct {
	Merged Segment
	// Absorbed lists the deleted ids, including the merged-in segment itself.
	Absorbed []int64
	// AffectedChunks holds every chunk the surviving segment or any deleted
	// segment was visible in, ordered by row then column.
	AffectedChunks []hexgrid.ChunkID
	// Extended is set when the curve was grown in place instead of regenerated.
	Extended bool
}

// Merge folds the unbranched chains on both sides of a saved segment into a
// single new segment.
//
// Walking outward from an endpoint, the walk continues while exactly one
// other segment touches the current cell. No other segment ends the road and
// two or more form a junction, which is never merged through. The result is
// saved as a new segment (highest importance of the chain, the type of the
// starting segment) and indexed while the originals are deleted, in a single
// store call, so a failure leaves the chain as it was. When nothing can be
// merged the segment is reindexed and returned unchanged. Merging an already
// merged segment again only reindexes it.
func (n *Network) Merge(ctx context.Context, id int64) (MergeResult, error) {
	seg, err := n.store.LoadSegment(ctx, id)
	if err != nil {
		return MergeResult{}, err
	}

	visited := map[int64]bool{seg.ID: true}
	var backward, forward []link
	if seg.Start != seg.End {
		backward, err = n.walk(ctx, seg, seg.Start, false, visited)
		if err != nil {
			return MergeResult{}, err
		}
		forward, err = n.walk(ctx, seg, seg.End, true, visited)
		if err != nil {
			return MergeResult{}, err
		}
	}

	chain := make([]Segment, 0, len(backward)+1+len(forward))
	for i := len(backward) - 1; i >= 0; i-- {
		chain = append(chain, backward[i].Segment)
	}
	chain = append(chain, seg)
	for _, l := range forward {
		chain = append(chain, l.Segment)
	}

	path := joinPaths(chain)
	if len(chain) == 1 || path[0] == path[len(path)-1] {
		// Nothing to fold, or the chain closes a ring.
		entries, err := n.indexer.Reindex(ctx, seg)
		if err != nil {
			return MergeResult{}, err
		}
		return MergeResult{Merged: seg, AffectedChunks: ChunksOf(entries)}, nil
	}

	merged := Segment{
		Start:    path[0],
		End:      path[len(path)-1],
		Chunk:    n.layout.ChunkOfCell(path[0]),
		CellPath: path,
		Type:     seg.Type,
	}
	for _, c := range chain {
		merged.Importance = max(merged.Importance, c.Importance)
	}
	extended := false
	if len(chain) == 2 && len(backward) == 1 && !backward[0].reversed && len(seg.CellPath) == 2 {
		// A one-cell extension of an existing road grows the curve in place.
		prev := backward[0].Segment
		merged.Points = n.spline.Extend(n.layout.CellsToWorld(prev.CellPath), prev.Points, n.layout.CellToWorld(seg.End))
		extended = true
	} else {
		merged.Points = n.spline.Generate(n.layout.CellsToWorld(path))
	}

	affected := make(map[hexgrid.ChunkID]struct{})
	absorbed := make([]int64, 0, len(chain))
	for _, c := range chain {
		chunks, err := n.store.ChunksForSegment(ctx, c.ID)
		if err != nil {
			return MergeResult{}, fmt.Errorf("chunks for segment %d: %w", c.ID, err)
		}
		for _, chunk := range chunks {
			affected[chunk] = struct{}{}
		}
		absorbed = append(absorbed, c.ID)
	}

	entries := n.indexer.Compute(merged)
	mergedID, err := n.store.ReplaceSegments(ctx, merged, entries, absorbed)
	if err != nil {
		return MergeResult{}, fmt.Errorf("replace %d segments with merged segment: %w", len(absorbed), err)
	}
	merged.ID = mergedID
	for _, e := range entries {
		affected[e.Chunk] = struct{}{}
	}
	slices.Sort(absorbed)

	result := MergeResult{
		Merged:         merged,
		Absorbed:       absorbed,
		AffectedChunks: sortChunks(affected),
		Extended:       extended,
	}
	n.metrics.Add(telemetry.MetricSegmentsMerged, uint64(len(absorbed)))
	loggingroads.SegmentMerged(ctx, n.publisher, mergedID, loggingroads.SegmentMergedPayload{
		Absorbed:       absorbed,
		Cells:          len(path),
		AffectedChunks: chunkKeys(result.AffectedChunks),
		Extended:       extended,
	}, nil)
	return result, nil
}

// link is a segment oriented along the walk direction.
type link struct {
	Segment
	reversed bool
}

// walk follows the unbranched chain leaving from cell. Forward walks orient
// each segment to start at the joint, backward walks to end at it.
func (n *Network) walk(ctx context.Context, from Segment, cell hexgrid.Cell, forward bool, visited map[int64]bool) ([]link, error) {
	var chain []link
	current := from.ID
	for {
		touching, err := n.store.SegmentsAtCell(ctx, cell)
		if err != nil {
			return nil, fmt.Errorf("segments at %s: %w", cell, err)
		}
		others := touching[:0]
		for _, t := range touching {
			if t.ID != current {
				others = append(others, t)
			}
		}
		if len(others) != 1 {
			return chain, nil
		}
		next := others[0]
		if visited[next.ID] {
			return chain, nil
		}
		visited[next.ID] = true

		oriented := link{Segment: next}
		if forward && next.Start != cell || !forward && next.End != cell {
			oriented = link{Segment: next.Reversed(), reversed: true}
		}
		chain = append(chain, oriented)
		if forward {
			cell = oriented.End
		} else {
			cell = oriented.Start
		}
		current = next.ID
	}
}

func joinPaths(chain []Segment) []hexgrid.Cell {
	var out []hexgrid.Cell
	for _, seg := range chain {
		path := seg.CellPath
		if len(out) > 0 && len(path) > 0 && path[0] == out[len(out)-1] {
			path = path[1:]
		}
		out = append(out, path...)
	}
	return out
}

func sortChunks(set map[hexgrid.ChunkID]struct{}) []hexgrid.ChunkID {
	out := make([]hexgrid.ChunkID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	SortChunks(out)
	return out
}

// SortChunks orders chunk ids by row, then column.
func SortChunks(chunks []hexgrid.ChunkID) {
	slices.SortFunc(chunks, func(a, b hexgrid.ChunkID) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
}

func chunkKeys(chunks []hexgrid.ChunkID) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.String()
	}
	return out
}
