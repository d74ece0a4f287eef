package intake

import (
	"context"
	"errors"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/net/proto"
	"hexhold/server/internal/roads"
)

// Kind classifies a staged client command.
type Kind int

const (
	KindBuildRoad Kind = iota + 1
	KindBuildBuilding
	KindSubscribe
	KindUnsubscribe
	KindHeartbeat
)

// Command is a validated client message bound to the sending player.
type Command struct {
	Kind     Kind
	Seq      uint64
	Road     *actions.RoadRequest
	Building *actions.BuildingRequest
	Chunk    hexgrid.ChunkID
	SentAt   int64
}

// Requester queues build actions. *actions.Processor satisfies it.
type Requester interface {
	RequestRoad(ctx context.Context, req actions.RoadRequest) (actions.Info, error)
	RequestBuilding(ctx context.Context, req actions.BuildingRequest) (actions.Info, error)
}

// StageClientCommand validates msg for playerID. On failure it returns a
// proto reject reason.
func StageClientCommand(playerID string, msg proto.ClientMessage) (Command, bool, string) {
	var zero Command

	if msg.PlayerID != "" && msg.PlayerID != playerID {
		return zero, false, proto.RejectPlayerMismatch
	}

	cmd := Command{Seq: msg.Seq, SentAt: msg.SentAt}
	switch msg.Type {
	case proto.TypeBuildRoad:
		if msg.Start == nil || msg.End == nil {
			return zero, false, proto.RejectInvalidMessage
		}
		roadType := roads.DefaultType
		if msg.RoadType != "" {
			parsed, err := roads.ParseType(msg.RoadType)
			if err != nil {
				return zero, false, proto.RejectUnknownRoadType
			}
			roadType = parsed
		}
		cmd.Kind = KindBuildRoad
		cmd.Road = &actions.RoadRequest{
			PlayerID: playerID,
			Start:    *msg.Start,
			End:      *msg.End,
			RoadType: roadType,
		}
	case proto.TypeBuildBuilding:
		if msg.Chunk == nil || msg.Cell == nil {
			return zero, false, proto.RejectInvalidMessage
		}
		buildingType, err := actions.ParseBuildingType(msg.BuildingType)
		if err != nil {
			return zero, false, proto.RejectUnknownBuildingType
		}
		cmd.Kind = KindBuildBuilding
		cmd.Building = &actions.BuildingRequest{
			PlayerID:     playerID,
			Chunk:        *msg.Chunk,
			Cell:         *msg.Cell,
			BuildingType: buildingType,
		}
	case proto.TypeSubscribeChunk, proto.TypeUnsubscribeChunk:
		if msg.Chunk == nil {
			return zero, false, proto.RejectInvalidMessage
		}
		cmd.Kind = KindSubscribe
		if msg.Type == proto.TypeUnsubscribeChunk {
			cmd.Kind = KindUnsubscribe
		}
		cmd.Chunk = *msg.Chunk
	case proto.TypeHeartbeat:
		cmd.Kind = KindHeartbeat
	default:
		return zero, false, proto.RejectUnknownType
	}
	return cmd, true, ""
}

// Submit hands a build command to the processor. Errors are mapped to a reject
// reason and a retry hint.
func Submit(ctx context.Context, requester Requester, cmd Command) (actions.Info, string, bool) {
	var (
		info actions.Info
		err  error
	)
	switch {
	case cmd.Kind == KindBuildRoad && cmd.Road != nil:
		info, err = requester.RequestRoad(ctx, *cmd.Road)
	case cmd.Kind == KindBuildBuilding && cmd.Building != nil:
		info, err = requester.RequestBuilding(ctx, *cmd.Building)
	default:
		return actions.Info{}, proto.RejectInvalidMessage, false
	}
	if err == nil {
		return info, "", false
	}
	reason, retry := RejectReason(err)
	return actions.Info{}, reason, retry
}

// RejectReason maps a request error to its wire reason. Unrecognised errors
// are treated as transient.
func RejectReason(err error) (string, bool) {
	switch {
	case errors.Is(err, hexgrid.ErrNoPath):
		return proto.RejectNoPath, false
	case errors.Is(err, roads.ErrUnknownRoadType):
		return proto.RejectUnknownRoadType, false
	case errors.Is(err, actions.ErrUnknownBuildingType):
		return proto.RejectUnknownBuildingType, false
	case errors.Is(err, actions.ErrCellOutsideChunk):
		return proto.RejectCellOutsideChunk, false
	default:
		return proto.RejectUnavailable, true
	}
}
