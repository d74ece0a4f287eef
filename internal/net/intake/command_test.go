package intake

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/net/proto"
	"hexhold/server/internal/roads"
)

type fakeRequester struct {
	err       error
	roads     []actions.RoadRequest
	buildings []actions.BuildingRequest
}

func (f *fakeRequester) RequestRoad(_ context.Context, req actions.RoadRequest) (actions.Info, error) {
	f.roads = append(f.roads, req)
	if f.err != nil {
		return actions.Info{}, f.err
	}
	return actions.Info{ID: int64(len(f.roads)), PlayerID: req.PlayerID, Type: actions.TypeBuildRoad}, nil
}

func (f *fakeRequester) RequestBuilding(_ context.Context, req actions.BuildingRequest) (actions.Info, error) {
	f.buildings = append(f.buildings, req)
	if f.err != nil {
		return actions.Info{}, f.err
	}
	return actions.Info{ID: int64(len(f.buildings)), PlayerID: req.PlayerID, Type: actions.TypeBuildBuilding}, nil
}

func cell(q, r int) *hexgrid.Cell { return &hexgrid.Cell{Q: q, R: r} }

func TestStageClientCommand(t *testing.T) {
	tests := []struct {
		name   string
		msg    proto.ClientMessage
		kind   Kind
		reason string
	}{
		{
			name: "road with default type",
			msg:  proto.ClientMessage{Type: proto.TypeBuildRoad, Start: cell(0, 0), End: cell(3, 0)},
			kind: KindBuildRoad,
		},
		{
			name:   "road missing end",
			msg:    proto.ClientMessage{Type: proto.TypeBuildRoad, Start: cell(0, 0)},
			reason: proto.RejectInvalidMessage,
		},
		{
			name:   "road with unknown surface",
			msg:    proto.ClientMessage{Type: proto.TypeBuildRoad, Start: cell(0, 0), End: cell(1, 0), RoadType: "marble"},
			reason: proto.RejectUnknownRoadType,
		},
		{
			name: "building",
			msg:  proto.ClientMessage{Type: proto.TypeBuildBuilding, Chunk: &hexgrid.ChunkID{}, Cell: cell(1, 1), BuildingType: "house"},
			kind: KindBuildBuilding,
		},
		{
			name:   "building with unknown type",
			msg:    proto.ClientMessage{Type: proto.TypeBuildBuilding, Chunk: &hexgrid.ChunkID{}, Cell: cell(1, 1), BuildingType: "castle"},
			reason: proto.RejectUnknownBuildingType,
		},
		{
			name: "subscribe",
			msg:  proto.ClientMessage{Type: proto.TypeSubscribeChunk, Chunk: &hexgrid.ChunkID{X: 2, Y: 1}},
			kind: KindSubscribe,
		},
		{
			name: "unsubscribe",
			msg:  proto.ClientMessage{Type: proto.TypeUnsubscribeChunk, Chunk: &hexgrid.ChunkID{X: 2, Y: 1}},
			kind: KindUnsubscribe,
		},
		{
			name:   "subscribe without chunk",
			msg:    proto.ClientMessage{Type: proto.TypeSubscribeChunk},
			reason: proto.RejectInvalidMessage,
		},
		{
			name:   "other player's request",
			msg:    proto.ClientMessage{Type: proto.TypeBuildRoad, PlayerID: "mallory", Start: cell(0, 0), End: cell(1, 0)},
			reason: proto.RejectPlayerMismatch,
		},
		{
			name:   "unknown type",
			msg:    proto.ClientMessage{Type: "teleport"},
			reason: proto.RejectUnknownType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, ok, reason := StageClientCommand("p1", tc.msg)
			if tc.reason != "" {
				if ok {
					t.Fatalf("expected rejection %q, got command %+v", tc.reason, cmd)
				}
				if reason != tc.reason {
					t.Fatalf("expected reason %q, got %q", tc.reason, reason)
				}
				return
			}
			if !ok {
				t.Fatalf("expected command to be staged, got reason %q", reason)
			}
			if cmd.Kind != tc.kind {
				t.Fatalf("expected kind %d, got %d", tc.kind, cmd.Kind)
			}
		})
	}
}

func TestStageClientCommandBindsPlayer(t *testing.T) {
	cmd, ok, _ := StageClientCommand("p1", proto.ClientMessage{Type: proto.TypeBuildRoad, Seq: 9, Start: cell(0, 0), End: cell(2, 0), RoadType: "paved/0"})
	if !ok {
		t.Fatalf("expected road command")
	}
	if cmd.Seq != 9 {
		t.Fatalf("expected seq 9, got %d", cmd.Seq)
	}
	if cmd.Road.PlayerID != "p1" {
		t.Fatalf("expected request bound to p1, got %q", cmd.Road.PlayerID)
	}
	if cmd.Road.RoadType.Category != roads.CategoryPaved {
		t.Fatalf("expected paved road, got %v", cmd.Road.RoadType)
	}
}

func TestSubmit(t *testing.T) {
	requester := &fakeRequester{}
	cmd, _, _ := StageClientCommand("p1", proto.ClientMessage{Type: proto.TypeBuildBuilding, Chunk: &hexgrid.ChunkID{}, Cell: cell(0, 0), BuildingType: "farm"})

	info, reason, _ := Submit(context.Background(), requester, cmd)
	if reason != "" {
		t.Fatalf("unexpected reject %q", reason)
	}
	if info.ID != 1 || len(requester.buildings) != 1 {
		t.Fatalf("expected one building request, got %+v", requester.buildings)
	}

	requester.err = fmt.Errorf("request road: %w", hexgrid.ErrNoPath)
	roadCmd, _, _ := StageClientCommand("p1", proto.ClientMessage{Type: proto.TypeBuildRoad, Start: cell(0, 0), End: cell(5, 0)})
	if _, reason, retry := Submit(context.Background(), requester, roadCmd); reason != proto.RejectNoPath || retry {
		t.Fatalf("expected no_path without retry, got %q retry=%v", reason, retry)
	}

	requester.err = errors.New("disk full")
	if _, reason, retry := Submit(context.Background(), requester, roadCmd); reason != proto.RejectUnavailable || !retry {
		t.Fatalf("expected transient rejection, got %q retry=%v", reason, retry)
	}

	if _, reason, _ := Submit(context.Background(), requester, Command{Kind: KindSubscribe}); reason != proto.RejectInvalidMessage {
		t.Fatalf("expected non-build command to be refused, got %q", reason)
	}
}
