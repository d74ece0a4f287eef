// Package actions runs the lifecycle of player build actions: requests are
// queued as pending actions, promoted when their road or building is created
// and completed once their build time has elapsed.
package actions

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads"
)

var (
	ErrUnknownActionType   = errors.New("actions: unknown action type")
	ErrUnknownBuildingType = errors.New("actions: unknown building type")
	ErrActionNotFound      = errors.New("actions: action not found")
	ErrActionTerminal      = errors.New("actions: action already finished")
	ErrCellOutsideChunk    = errors.New("actions: cell is not inside the requested chunk")
)

// Status is the lifecycle state of an action.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "inProgress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Type identifies what an action builds.
type Type int

const (
	TypeBuildRoad Type = iota + 1
	TypeBuildBuilding
)

func (t Type) String() string {
	switch t {
	case TypeBuildRoad:
		return "buildRoad"
	case TypeBuildBuilding:
		return "buildBuilding"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Valid reports whether t is a known action type.
func (t Type) Valid() bool {
	return t == TypeBuildRoad || t == TypeBuildBuilding
}

// BuildingType is the closed set of constructible buildings.
type BuildingType string

const (
	BuildingHouse     BuildingType = "house"
	BuildingFarm      BuildingType = "farm"
	BuildingWorkshop  BuildingType = "workshop"
	BuildingWarehouse BuildingType = "warehouse"
	BuildingTower     BuildingType = "tower"
)

var buildDurations = map[BuildingType]time.Duration{
	BuildingHouse:     10 * time.Second,
	BuildingFarm:      15 * time.Second,
	BuildingWorkshop:  20 * time.Second,
	BuildingWarehouse: 25 * time.Second,
	BuildingTower:     40 * time.Second,
}

// BuildingTypes lists the catalogue in a stable order.
func BuildingTypes() []BuildingType {
	return []BuildingType{BuildingHouse, BuildingFarm, BuildingWorkshop, BuildingWarehouse, BuildingTower}
}

// ParseBuildingType validates a building type name.
func ParseBuildingType(value string) (BuildingType, error) {
	bt := BuildingType(value)
	if _, ok := buildDurations[bt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBuildingType, value)
	}
	return bt, nil
}

// BuildDuration returns how long the building takes to construct.
func (b BuildingType) BuildDuration() (time.Duration, error) {
	d, ok := buildDurations[b]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBuildingType, string(b))
	}
	return d, nil
}

// Info is the record of one action. ID zero marks an action that has not been
// persisted yet.
type Info struct {
	ID             int64
	PlayerID       string
	Chunk          hexgrid.ChunkID
	Cell           hexgrid.Cell
	Type           Type
	Status         Status
	StartTime      time.Time
	Duration       time.Duration
	CompletionTime time.Time

	// EndCell is the far end of a road.
	EndCell hexgrid.Cell
	// RoadType is the surface of a road.
	RoadType roads.Type
	// BuildingType is set for building actions.
	BuildingType BuildingType
	// TargetID is the segment or building created on promotion. It is kept
	// even when persisting the promotion fails so a retry never builds twice.
	TargetID int64
	// CellPath is the road route chosen at request time.
	CellPath []hexgrid.Cell
	// AffectedChunks are the chunks whose road field changed when the road
	// was built.
	AffectedChunks []hexgrid.ChunkID
	// FailureReason explains a failed action. On a cached action that is not
	// yet terminal it marks a failure whose record is still being written.
	FailureReason string
}

// Clone returns a deep copy.
func (i Info) Clone() Info {
	i.CellPath = slices.Clone(i.CellPath)
	i.AffectedChunks = slices.Clone(i.AffectedChunks)
	return i
}

// Building is a structure placed by a building action.
type Building struct {
	ID       int64
	PlayerID string
	Type     BuildingType
	Chunk    hexgrid.ChunkID
	Cell     hexgrid.Cell
	Built    bool
}
