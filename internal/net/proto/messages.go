package proto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1
)

// Client message type identifiers.
const (
	TypeBuildRoad        = "buildRoad"
	TypeBuildBuilding    = "buildBuilding"
	TypeSubscribeChunk   = "subscribeChunk"
	TypeUnsubscribeChunk = "unsubscribeChunk"
	TypeHeartbeat        = "heartbeat"
)

// Server message type identifiers.
const (
	TypeActionStatus    = "actionStatus"
	TypeActionCompleted = "actionCompleted"
	TypeRoadChunkSDF    = "roadChunkSdf"
	TypeRequestAccepted = "requestAccepted"
	TypeRequestRejected = "requestRejected"
	TypeSubscribed      = "subscribed"
)

// Reject reasons carried by RequestRejected.
const (
	RejectInvalidMessage      = "invalid_message"
	RejectUnknownType         = "unknown_type"
	RejectPlayerMismatch      = "player_mismatch"
	RejectNoPath              = "no_path"
	RejectUnknownRoadType     = "unknown_road_type"
	RejectUnknownBuildingType = "unknown_building_type"
	RejectCellOutsideChunk    = "cell_outside_chunk"
	RejectUnavailable         = "unavailable"
)

// ClientMessage captures an inbound websocket message from the client. Which
// fields are meaningful depends on Type.
type ClientMessage struct {
	Ver      int    `json:"ver,omitempty"`
	Type     string `json:"type" jsonschema:"enum=buildRoad,enum=buildBuilding,enum=subscribeChunk,enum=unsubscribeChunk,enum=heartbeat"`
	Seq      uint64 `json:"seq,omitempty" jsonschema:"description=Client sequence number; repeats are acknowledged without queuing twice"`
	PlayerID string `json:"playerId,omitempty" jsonschema:"description=Must match the session player when present"`

	Start    *hexgrid.Cell `json:"start,omitempty"`
	End      *hexgrid.Cell `json:"end,omitempty"`
	RoadType string        `json:"roadType,omitempty" jsonschema:"description=Road surface as category or category/variant,example=cobble/1"`

	Chunk        *hexgrid.ChunkID `json:"chunk,omitempty"`
	Cell         *hexgrid.Cell    `json:"cell,omitempty"`
	BuildingType string           `json:"buildingType,omitempty" jsonschema:"enum=house,enum=farm,enum=workshop,enum=warehouse,enum=tower"`

	SentAt int64 `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts a raw websocket payload into a structured message.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("decode client message: missing type")
	}
	return msg, nil
}

// ActionStatus tells a player where one of their actions stands.
type ActionStatus struct {
	Ver            int             `json:"ver"`
	Type           string          `json:"type"`
	ActionID       int64           `json:"actionId"`
	PlayerID       string          `json:"playerId"`
	Chunk          hexgrid.ChunkID `json:"chunk"`
	Cell           hexgrid.Cell    `json:"cell"`
	Status         string          `json:"status"`
	ActionType     string          `json:"actionType"`
	CompletionTime int64           `json:"completionTime"`
	Reason         string          `json:"reason,omitempty"`
}

// NewActionStatus renders a processor status update for the wire.
func NewActionStatus(update actions.StatusUpdate) ActionStatus {
	return ActionStatus{
		Ver:            Version,
		Type:           TypeActionStatus,
		ActionID:       update.ActionID,
		PlayerID:       update.PlayerID,
		Chunk:          update.Chunk,
		Cell:           update.Cell,
		Status:         update.Status.String(),
		ActionType:     update.Type.String(),
		CompletionTime: update.CompletionTime.UnixMilli(),
		Reason:         update.Reason,
	}
}

// ActionCompleted announces a finished action to every observer of its chunk.
type ActionCompleted struct {
	Ver        int             `json:"ver"`
	Type       string          `json:"type"`
	ActionID   int64           `json:"actionId"`
	Chunk      hexgrid.ChunkID `json:"chunk"`
	Cell       hexgrid.Cell    `json:"cell"`
	ActionType string          `json:"actionType"`
}

func NewActionCompleted(done actions.Completion) ActionCompleted {
	return ActionCompleted{
		Ver:        Version,
		Type:       TypeActionCompleted,
		ActionID:   done.ActionID,
		Chunk:      done.Chunk,
		Cell:       done.Cell,
		ActionType: done.Type.String(),
	}
}

// RoadChunkSDF carries a regenerated road distance field. RoadSDFData is the
// base64 encoding of Resolution*Resolution bytes in row-major order.
type RoadChunkSDF struct {
	Ver         int             `json:"ver"`
	Type        string          `json:"type"`
	TerrainName string          `json:"terrainName"`
	Chunk       hexgrid.ChunkID `json:"chunk"`
	RoadSDFData string          `json:"roadSdfData" jsonschema:"description=Base64 of resolution squared bytes in row-major order"`
	Resolution  int             `json:"resolution"`
}

func NewRoadChunkSDF(update actions.ChunkField) RoadChunkSDF {
	return RoadChunkSDF{
		Ver:         Version,
		Type:        TypeRoadChunkSDF,
		TerrainName: update.TerrainName,
		Chunk:       update.Chunk,
		RoadSDFData: base64.StdEncoding.EncodeToString(update.Field.Data),
		Resolution:  update.Field.Resolution,
	}
}

// DecodeField reverses the base64 payload of a RoadChunkSDF.
func (m RoadChunkSDF) DecodeField() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(m.RoadSDFData)
	if err != nil {
		return nil, fmt.Errorf("decode road sdf: %w", err)
	}
	if len(data) != m.Resolution*m.Resolution {
		return nil, fmt.Errorf("decode road sdf: %d bytes for resolution %d", len(data), m.Resolution)
	}
	return data, nil
}

// RequestAccepted acknowledges a queued build request.
type RequestAccepted struct {
	Ver            int    `json:"ver"`
	Type           string `json:"type"`
	Seq            uint64 `json:"seq,omitempty"`
	ActionID       int64  `json:"actionId"`
	CompletionTime int64  `json:"completionTime"`
}

func NewRequestAccepted(seq uint64, info actions.Info) RequestAccepted {
	return RequestAccepted{
		Ver:            Version,
		Type:           TypeRequestAccepted,
		Seq:            seq,
		ActionID:       info.ID,
		CompletionTime: info.CompletionTime.UnixMilli(),
	}
}

// RequestRejected reports a request that was not queued. Retry is set when
// the failure was transient.
type RequestRejected struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq,omitempty"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

func NewRequestRejected(seq uint64, reason string, retry bool) RequestRejected {
	return RequestRejected{Ver: Version, Type: TypeRequestRejected, Seq: seq, Reason: reason, Retry: retry}
}

// Subscribed echoes a chunk subscription change.
type Subscribed struct {
	Ver        int             `json:"ver"`
	Type       string          `json:"type"`
	Chunk      hexgrid.ChunkID `json:"chunk"`
	Subscribed bool            `json:"subscribed"`
}

// Heartbeat answers a client heartbeat.
type Heartbeat struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
}

// Encode renders any server message.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return data, nil
}

// ServerMessages lists one value of every server message type, for schema
// generation.
func ServerMessages() []any {
	return []any{
		ActionStatus{},
		ActionCompleted{},
		RoadChunkSDF{},
		RequestAccepted{},
		RequestRejected{},
		Subscribed{},
		Heartbeat{},
	}
}
