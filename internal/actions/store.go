package actions

import (
	"context"
	"errors"
	"time"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/sdf"
)

// ErrBuildingNotFound is returned by building stores for unknown ids.
var ErrBuildingNotFound = errors.New("actions: building not found")

// Store persists action records.
type Store interface {
	// CreateAction inserts a new action and returns its id.
	CreateAction(ctx context.Context, info Info) (int64, error)
	// UpdateAction overwrites a stored action.
	UpdateAction(ctx context.Context, info Info) error
	// LoadActiveActions returns every pending or in-progress action ordered by id.
	LoadActiveActions(ctx context.Context) ([]Info, error)
}

// BuildingStore persists buildings created by actions.
type BuildingStore interface {
	SaveBuilding(ctx context.Context, b Building) (int64, error)
	MarkBuildingBuilt(ctx context.Context, id int64) error
	DeleteBuilding(ctx context.Context, id int64) error
}

// StatusUpdate tells a player where one of their actions stands.
type StatusUpdate struct {
	ActionID       int64
	PlayerID       string
	Chunk          hexgrid.ChunkID
	Cell           hexgrid.Cell
	Status         Status
	Type           Type
	CompletionTime time.Time
	Reason         string
}

// Completion announces a finished action to observers of its chunk.
type Completion struct {
	ActionID int64
	Chunk    hexgrid.ChunkID
	Cell     hexgrid.Cell
	Type     Type
}

// ChunkField carries a regenerated road distance field for one chunk.
type ChunkField struct {
	TerrainName string
	Chunk       hexgrid.ChunkID
	Field       sdf.Field
}

// Notifier delivers action updates to connected players. Failures are
// reported but never retried.
type Notifier interface {
	NotifyPlayer(ctx context.Context, update StatusUpdate) error
	BroadcastCompleted(ctx context.Context, done Completion) error
	BroadcastRoadSDF(ctx context.Context, update ChunkField) error
}

func statusUpdate(info Info) StatusUpdate {
	return StatusUpdate{
		ActionID:       info.ID,
		PlayerID:       info.PlayerID,
		Chunk:          info.Chunk,
		Cell:           info.Cell,
		Status:         info.Status,
		Type:           info.Type,
		CompletionTime: info.CompletionTime,
		Reason:         info.FailureReason,
	}
}

type nopNotifier struct{}

func (nopNotifier) NotifyPlayer(context.Context, StatusUpdate) error     { return nil }
func (nopNotifier) BroadcastCompleted(context.Context, Completion) error { return nil }
func (nopNotifier) BroadcastRoadSDF(context.Context, ChunkField) error   { return nil }
