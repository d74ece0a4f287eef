package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
	loggingactions "hexhold/server/logging/actions"
	loggingroads "hexhold/server/logging/roads"
)

// Config tunes the processor.
type Config struct {
	// TerrainName is stamped on road field broadcasts.
	TerrainName string
	// RoadBaseDuration is the fixed part of a road's build time.
	RoadBaseDuration time.Duration
	// RoadCellDuration is added for every cell on the road's path.
	RoadCellDuration time.Duration
	// RoadImportance is assigned to newly built segments.
	RoadImportance int
	// SDFWorkers bounds the chunks rendered concurrently for one road.
	SDFWorkers int
}

func DefaultConfig() Config {
	return Config{
		TerrainName:      "default",
		RoadBaseDuration: 2 * time.Second,
		RoadCellDuration: 500 * time.Millisecond,
		RoadImportance:   1,
		SDFWorkers:       4,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.TerrainName == "" {
		c.TerrainName = def.TerrainName
	}
	if c.RoadBaseDuration < 0 {
		c.RoadBaseDuration = def.RoadBaseDuration
	}
	if c.RoadCellDuration < 0 {
		c.RoadCellDuration = def.RoadCellDuration
	}
	if c.RoadImportance <= 0 {
		c.RoadImportance = def.RoadImportance
	}
	if c.SDFWorkers <= 0 {
		c.SDFWorkers = def.SDFWorkers
	}
	return c
}

// Deps carries the collaborators of a Processor. Actions, Buildings, Network
// and Renderer are required.
type Deps struct {
	Actions   Store
	Buildings BuildingStore
	Network   *roads.Network
	Renderer  *roads.ChunkRenderer
	Router    hexgrid.Router
	Notifier  Notifier
	Clock     logging.Clock
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Processor owns the cache of active actions and advances them on Tick.
type Processor struct {
	config Config
	deps   Deps

	// tickMu serializes ticks with requests and FailAction.
	tickMu sync.Mutex
	tick   uint64

	mu     sync.RWMutex
	active map[int64]Info
}

func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	switch {
	case deps.Actions == nil:
		return nil, errors.New("actions: processor requires an action store")
	case deps.Buildings == nil:
		return nil, errors.New("actions: processor requires a building store")
	case deps.Network == nil:
		return nil, errors.New("actions: processor requires a road network")
	case deps.Renderer == nil:
		return nil, errors.New("actions: processor requires a chunk renderer")
	}
	if deps.Router.Terrain == nil {
		deps.Router.Terrain = hexgrid.OpenTerrain{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.DiscardLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	return &Processor{
		config: cfg.normalized(),
		deps:   deps,
		active: make(map[int64]Info),
	}, nil
}

// RoadRequest asks for a road between two cells.
type RoadRequest struct {
	PlayerID string
	Start    hexgrid.Cell
	End      hexgrid.Cell
	RoadType roads.Type
}

// RequestRoad routes a road and queues it as a pending action. A route that
// cannot be found is reported as hexgrid.ErrNoPath and creates no action.
func (p *Processor) RequestRoad(ctx context.Context, req RoadRequest) (Info, error) {
	if !req.RoadType.Category.Valid() {
		return Info{}, fmt.Errorf("request road: %w", roads.ErrUnknownRoadType)
	}
	path, _, err := p.deps.Router.Route(req.Start, req.End)
	if err != nil {
		return Info{}, fmt.Errorf("request road %s -> %s: %w", req.Start, req.End, err)
	}
	layout := p.deps.Network.Layout()
	info := Info{
		PlayerID: req.PlayerID,
		Chunk:    layout.ChunkOfCell(req.Start),
		Cell:     req.Start,
		EndCell:  req.End,
		Type:     TypeBuildRoad,
		RoadType: req.RoadType,
		Duration: p.config.RoadBaseDuration + time.Duration(len(path))*p.config.RoadCellDuration,
		CellPath: path,
	}
	return p.enqueue(ctx, info)
}

// BuildingRequest asks for a building on a cell.
type BuildingRequest struct {
	PlayerID     string
	Chunk        hexgrid.ChunkID
	Cell         hexgrid.Cell
	BuildingType BuildingType
}

// RequestBuilding queues a building as a pending action.
func (p *Processor) RequestBuilding(ctx context.Context, req BuildingRequest) (Info, error) {
	duration, err := req.BuildingType.BuildDuration()
	if err != nil {
		return Info{}, fmt.Errorf("request building: %w", err)
	}
	if chunk := p.deps.Network.Layout().ChunkOfCell(req.Cell); chunk != req.Chunk {
		return Info{}, fmt.Errorf("request building at %s: %w (cell is in %s, not %s)", req.Cell, ErrCellOutsideChunk, chunk, req.Chunk)
	}
	info := Info{
		PlayerID:     req.PlayerID,
		Chunk:        req.Chunk,
		Cell:         req.Cell,
		Type:         TypeBuildBuilding,
		BuildingType: req.BuildingType,
		Duration:     duration,
	}
	return p.enqueue(ctx, info)
}

func (p *Processor) enqueue(ctx context.Context, info Info) (Info, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	info.Status = StatusPending
	info.StartTime = p.deps.Clock.Now()
	info.CompletionTime = info.StartTime.Add(info.Duration)
	id, err := p.deps.Actions.CreateAction(ctx, info)
	if err != nil {
		return Info{}, fmt.Errorf("create action: %w", err)
	}
	info.ID = id
	p.store(info)

	loggingactions.Queued(ctx, p.deps.Publisher, p.tick, logging.PlayerRef(info.PlayerID), info.ID, lifecyclePayload(info), nil)
	p.notify(ctx, info)
	return info.Clone(), nil
}

// Restore replaces the cache with the active actions found in the store.
func (p *Processor) Restore(ctx context.Context) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	loaded, err := p.deps.Actions.LoadActiveActions(ctx)
	if err != nil {
		return fmt.Errorf("load active actions: %w", err)
	}
	active := make(map[int64]Info, len(loaded))
	var payload loggingactions.RestoredPayload
	for _, info := range loaded {
		active[info.ID] = info.Clone()
		switch info.Status {
		case StatusPending:
			payload.Pending++
		case StatusInProgress:
			payload.InProgress++
		}
	}
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
	p.deps.Metrics.Store(telemetry.MetricActionsActive, uint64(len(active)))
	loggingactions.Restored(ctx, p.deps.Publisher, payload, nil)
	return nil
}

// Tick promotes pending actions, completes in-progress actions that are due
// and drops finished actions from the cache. Failures leave an action in its
// current state for the next tick.
func (p *Processor) Tick(ctx context.Context) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.tick++
	now := p.deps.Clock.Now()
	for _, info := range p.Snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.FailureReason != "" {
			// A failure whose rollback or record could not be written.
			p.fail(ctx, info, info.FailureReason)
			continue
		}
		switch info.Status {
		case StatusPending:
			p.promote(ctx, info)
		case StatusInProgress:
			if !now.Before(info.CompletionTime) {
				p.complete(ctx, info)
			}
		}
	}

	p.mu.Lock()
	for id, info := range p.active {
		if info.Status.Terminal() {
			delete(p.active, id)
		}
	}
	remaining := len(p.active)
	p.mu.Unlock()
	p.deps.Metrics.Store(telemetry.MetricActionsActive, uint64(remaining))
	return nil
}

// TickCount returns the number of ticks run so far.
func (p *Processor) TickCount() uint64 {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	return p.tick
}

func (p *Processor) promote(ctx context.Context, info Info) {
	switch info.Type {
	case TypeBuildRoad:
		if info.TargetID == 0 {
			path := info.CellPath
			if len(path) == 0 {
				routed, _, err := p.deps.Router.Route(info.Cell, info.EndCell)
				if err != nil {
					p.fail(ctx, info, err.Error())
					return
				}
				path = routed
				info.CellPath = routed
			}
			seg, err := p.deps.Network.Save(ctx, path, info.RoadType, p.config.RoadImportance)
			if errors.Is(err, roads.ErrInvalidSegment) || errors.Is(err, roads.ErrUnknownRoadType) {
				p.fail(ctx, info, err.Error())
				return
			}
			if err != nil {
				p.retry(ctx, info, "save road", err)
				return
			}
			// From here on a retry merges the saved segment instead of saving
			// another one.
			info.TargetID = seg.ID
			p.store(info)
			if err := p.deps.Actions.UpdateAction(ctx, info); err != nil {
				p.retry(ctx, info, "record road", err)
				return
			}
		}
		result, err := p.deps.Network.Merge(ctx, info.TargetID)
		switch {
		case errors.Is(err, roads.ErrSegmentNotFound):
			// Another road already folded this segment into its own.
			p.deps.Logger.Printf("[actions] action %d: segment %d was merged away before promotion", info.ID, info.TargetID)
		case err != nil:
			p.retry(ctx, info, "merge road", err)
			return
		default:
			info.TargetID = result.Merged.ID
			info.AffectedChunks = mergeChunks(info.AffectedChunks, result.AffectedChunks)
			p.store(info)
		}
	case TypeBuildBuilding:
		if _, err := info.BuildingType.BuildDuration(); err != nil {
			p.deps.Logger.Printf("[actions] action %d: %v", info.ID, err)
			p.fail(ctx, info, err.Error())
			return
		}
		if info.TargetID == 0 {
			id, err := p.deps.Buildings.SaveBuilding(ctx, Building{
				PlayerID: info.PlayerID,
				Type:     info.BuildingType,
				Chunk:    info.Chunk,
				Cell:     info.Cell,
			})
			if err != nil {
				p.retry(ctx, info, "save building", err)
				return
			}
			info.TargetID = id
			p.store(info)
		}
	default:
		p.deps.Logger.Printf("[actions] action %d: %v %d", info.ID, ErrUnknownActionType, int(info.Type))
		p.fail(ctx, info, ErrUnknownActionType.Error())
		return
	}

	next := info.Clone()
	next.Status = StatusInProgress
	if err := p.deps.Actions.UpdateAction(ctx, next); err != nil {
		p.retry(ctx, info, "promote", err)
		return
	}
	p.store(next)
	loggingactions.Promoted(ctx, p.deps.Publisher, p.tick, logging.PlayerRef(next.PlayerID), next.ID, lifecyclePayload(next), nil)
	p.notify(ctx, next)
}

func (p *Processor) complete(ctx context.Context, info Info) {
	switch info.Type {
	case TypeBuildBuilding:
		err := p.deps.Buildings.MarkBuildingBuilt(ctx, info.TargetID)
		if errors.Is(err, ErrBuildingNotFound) {
			p.fail(ctx, info, fmt.Sprintf("building %d is gone", info.TargetID))
			return
		}
		if err != nil {
			p.retry(ctx, info, "mark building built", err)
			return
		}
	case TypeBuildRoad:
		if err := p.rebuildRoadFields(ctx, info); err != nil {
			p.retry(ctx, info, "rebuild road fields", err)
			return
		}
	default:
		p.fail(ctx, info, ErrUnknownActionType.Error())
		return
	}

	next := info.Clone()
	next.Status = StatusCompleted
	if err := p.deps.Actions.UpdateAction(ctx, next); err != nil {
		p.retry(ctx, info, "complete", err)
		return
	}
	p.store(next)
	p.notify(ctx, next)
	if err := p.deps.Notifier.BroadcastCompleted(ctx, Completion{ActionID: next.ID, Chunk: next.Chunk, Cell: next.Cell, Type: next.Type}); err != nil {
		p.deps.Logger.Printf("[actions] broadcast completion of action %d: %v", next.ID, err)
	}
	p.deps.Metrics.Add(telemetry.MetricActionsCompleted, 1)
	loggingactions.Completed(ctx, p.deps.Publisher, p.tick, logging.PlayerRef(next.PlayerID), next.ID, lifecyclePayload(next), nil)
}

// roadChunks returns the chunks whose road field must be rebuilt: those
// recorded when the road was built plus wherever its segment is visible now.
// The segment may since have been merged away, in which case only the
// recorded chunks and the action's own chunk remain.
func (p *Processor) roadChunks(ctx context.Context, info Info) ([]hexgrid.ChunkID, error) {
	set := map[hexgrid.ChunkID]struct{}{info.Chunk: {}}
	for _, c := range info.AffectedChunks {
		set[c] = struct{}{}
	}
	if info.TargetID != 0 {
		current, err := p.deps.Network.Store().ChunksForSegment(ctx, info.TargetID)
		if err != nil && !errors.Is(err, roads.ErrSegmentNotFound) {
			return nil, err
		}
		for _, c := range current {
			set[c] = struct{}{}
		}
	}
	chunks := make([]hexgrid.ChunkID, 0, len(set))
	for c := range set {
		chunks = append(chunks, c)
	}
	roads.SortChunks(chunks)
	return chunks, nil
}

// rebuildRoadFields renders and broadcasts every affected chunk, returning
// once all of them are done. Broadcast failures are logged only.
func (p *Processor) rebuildRoadFields(ctx context.Context, info Info) error {
	chunks, err := p.roadChunks(ctx, info)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.SDFWorkers)
	for _, chunk := range chunks {
		g.Go(func() error {
			field, segments, err := p.deps.Renderer.Render(gctx, chunk)
			if err != nil {
				return fmt.Errorf("render chunk %s: %w", chunk, err)
			}
			p.deps.Metrics.Add(telemetry.MetricChunksRebuilt, 1)
			loggingroads.ChunkRebuilt(gctx, p.deps.Publisher, p.tick, loggingroads.ChunkRebuiltPayload{
				Chunk:      chunk.String(),
				Segments:   segments,
				Resolution: field.Resolution,
			}, nil)
			update := ChunkField{TerrainName: p.config.TerrainName, Chunk: chunk, Field: field}
			if err := p.deps.Notifier.BroadcastRoadSDF(gctx, update); err != nil {
				p.deps.Logger.Printf("[actions] broadcast road field %s: %v", chunk, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// FailAction abandons an active action, removing a building it had already
// placed.
func (p *Processor) FailAction(ctx context.Context, id int64, reason string) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.mu.RLock()
	info, ok := p.active[id]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("fail action %d: %w", id, ErrActionNotFound)
	}
	if info.Status.Terminal() {
		return fmt.Errorf("fail action %d: %w", id, ErrActionTerminal)
	}
	return p.fail(ctx, info.Clone(), reason)
}

// fail rolls back a placed building and records the action as failed. When
// either write fails the reason is kept on the cached action and Tick calls
// fail again until the action is terminal.
func (p *Processor) fail(ctx context.Context, info Info, reason string) error {
	if info.Type == TypeBuildBuilding && info.TargetID != 0 {
		err := p.deps.Buildings.DeleteBuilding(ctx, info.TargetID)
		if err != nil && !errors.Is(err, ErrBuildingNotFound) {
			info.FailureReason = reason
			p.store(info)
			p.retry(ctx, info, "roll back building", err)
			return fmt.Errorf("roll back building %d: %w", info.TargetID, err)
		}
		info.TargetID = 0
	}
	next := info.Clone()
	next.Status = StatusFailed
	next.FailureReason = reason
	if err := p.deps.Actions.UpdateAction(ctx, next); err != nil {
		info.FailureReason = reason
		p.store(info)
		p.retry(ctx, info, "fail", err)
		return fmt.Errorf("persist failed action %d: %w", info.ID, err)
	}
	p.mu.Lock()
	delete(p.active, next.ID)
	p.mu.Unlock()
	p.deps.Metrics.Add(telemetry.MetricActionsFailed, 1)
	loggingactions.Failed(ctx, p.deps.Publisher, p.tick, logging.PlayerRef(next.PlayerID), next.ID, loggingactions.FailedPayload{Type: next.Type.String(), Reason: reason}, nil)
	p.notify(ctx, next)
	return nil
}

func (p *Processor) retry(ctx context.Context, info Info, stage string, err error) {
	p.deps.Logger.Printf("[actions] action %d %s failed, retrying next tick: %v", info.ID, stage, err)
	p.deps.Metrics.Add(telemetry.MetricPersistRetries, 1)
	loggingactions.PersistRetry(ctx, p.deps.Publisher, p.tick, logging.PlayerRef(info.PlayerID), info.ID, loggingactions.PersistRetryPayload{Stage: stage, Error: err.Error()}, nil)
}

func (p *Processor) notify(ctx context.Context, info Info) {
	if err := p.deps.Notifier.NotifyPlayer(ctx, statusUpdate(info)); err != nil {
		p.deps.Logger.Printf("[actions] notify player %s about action %d: %v", info.PlayerID, info.ID, err)
	}
}

func (p *Processor) store(info Info) {
	p.mu.Lock()
	p.active[info.ID] = info.Clone()
	p.mu.Unlock()
}

// Snapshot returns copies of the cached actions ordered by id.
func (p *Processor) Snapshot() []Info {
	p.mu.RLock()
	out := make([]Info, 0, len(p.active))
	for _, info := range p.active {
		out = append(out, info.Clone())
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status returns a copy of a cached action.
func (p *Processor) Status(id int64) (Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.active[id]
	if !ok {
		return Info{}, false
	}
	return info.Clone(), true
}

func mergeChunks(recorded, added []hexgrid.ChunkID) []hexgrid.ChunkID {
	set := make(map[hexgrid.ChunkID]struct{}, len(recorded)+len(added))
	for _, c := range recorded {
		set[c] = struct{}{}
	}
	for _, c := range added {
		set[c] = struct{}{}
	}
	out := make([]hexgrid.ChunkID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	roads.SortChunks(out)
	return out
}

func lifecyclePayload(info Info) loggingactions.LifecyclePayload {
	return loggingactions.LifecyclePayload{
		Type:     info.Type.String(),
		Status:   info.Status.String(),
		Chunk:    info.Chunk.String(),
		Cell:     info.Cell.String(),
		TargetID: info.TargetID,
	}
}
