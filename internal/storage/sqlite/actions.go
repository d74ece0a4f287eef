package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads"
)

const actionColumns = `id, player_id, chunk_x, chunk_y, cell_q, cell_r, end_q, end_r, action_type, status,
    start_time, duration_ms, completion_time, road_type, building_type, target_id, cell_path, affected_chunks, failure_reason`

func (s *Store) CreateAction(ctx context.Context, info actions.Info) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	args, err := actionArgs(info)
	if err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `INSERT INTO actions (player_id, chunk_x, chunk_y, cell_q, cell_r, end_q, end_r, action_type, status,
    start_time, duration_ms, completion_time, road_type, building_type, target_id, cell_path, affected_chunks, failure_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateAction(ctx context.Context, info actions.Info) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	args, err := actionArgs(info)
	if err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE actions SET player_id = ?, chunk_x = ?, chunk_y = ?, cell_q = ?, cell_r = ?, end_q = ?, end_r = ?,
    action_type = ?, status = ?, start_time = ?, duration_ms = ?, completion_time = ?, road_type = ?, building_type = ?,
    target_id = ?, cell_path = ?, affected_chunks = ?, failure_reason = ?
WHERE id = ?`, append(args, info.ID)...)
	if err != nil {
		return fmt.Errorf("update action %d: %w", info.ID, err)
	}
	return expectRow(res, fmt.Errorf("update action %d: %w", info.ID, actions.ErrActionNotFound))
}

func (s *Store) LoadActiveActions(ctx context.Context) ([]actions.Info, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE status IN (?, ?) ORDER BY id`,
		int(actions.StatusPending), int(actions.StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("query active actions: %w", err)
	}
	defer rows.Close()
	var out []actions.Info
	for rows.Next() {
		info, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// LoadAction returns a stored action regardless of status.
func (s *Store) LoadAction(ctx context.Context, id int64) (actions.Info, error) {
	if err := s.ready(ctx); err != nil {
		return actions.Info{}, err
	}
	info, err := scanAction(s.sqlDB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return actions.Info{}, fmt.Errorf("load action %d: %w", id, actions.ErrActionNotFound)
	}
	return info, err
}

func actionArgs(info actions.Info) ([]any, error) {
	chunks := info.AffectedChunks
	if chunks == nil {
		chunks = []hexgrid.ChunkID{}
	}
	affected, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("encode affected chunks: %w", err)
	}
	var path []byte
	if len(info.CellPath) > 0 {
		path = roads.EncodeCells(info.CellPath)
	}
	return []any{
		info.PlayerID, info.Chunk.X, info.Chunk.Y, info.Cell.Q, info.Cell.R, info.EndCell.Q, info.EndCell.R,
		int(info.Type), int(info.Status),
		info.StartTime.UnixMilli(), info.Duration.Milliseconds(), info.CompletionTime.UnixMilli(),
		info.RoadType.ID(), string(info.BuildingType), info.TargetID, path, string(affected), info.FailureReason,
	}, nil
}

func scanAction(row rowScanner) (actions.Info, error) {
	var (
		info                         actions.Info
		actionType, status, roadType int
		startMS, durationMS, doneMS  int64
		buildingType, affected       string
		path                         []byte
	)
	err := row.Scan(&info.ID, &info.PlayerID, &info.Chunk.X, &info.Chunk.Y, &info.Cell.Q, &info.Cell.R, &info.EndCell.Q, &info.EndCell.R,
		&actionType, &status, &startMS, &durationMS, &doneMS, &roadType, &buildingType, &info.TargetID, &path, &affected, &info.FailureReason)
	if err != nil {
		return actions.Info{}, err
	}
	info.Type = actions.Type(actionType)
	info.Status = actions.Status(status)
	info.StartTime = time.UnixMilli(startMS).UTC()
	info.Duration = time.Duration(durationMS) * time.Millisecond
	info.CompletionTime = time.UnixMilli(doneMS).UTC()
	info.RoadType = roads.Type{Category: roads.Category(roadType >> 8), Variant: uint8(roadType & 0xff)}
	info.BuildingType = actions.BuildingType(buildingType)
	if len(path) > 0 {
		if info.CellPath, err = roads.DecodeCells(path); err != nil {
			return actions.Info{}, fmt.Errorf("decode path of action %d: %w", info.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(affected), &info.AffectedChunks); err != nil {
		return actions.Info{}, fmt.Errorf("decode chunks of action %d: %w", info.ID, err)
	}
	if len(info.AffectedChunks) == 0 {
		info.AffectedChunks = nil
	}
	return info, nil
}

func (s *Store) SaveBuilding(ctx context.Context, b actions.Building) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `INSERT INTO buildings (player_id, building_type, chunk_x, chunk_y, cell_q, cell_r, built)
VALUES (?, ?, ?, ?, ?, ?, ?)`, b.PlayerID, string(b.Type), b.Chunk.X, b.Chunk.Y, b.Cell.Q, b.Cell.R, boolToInt(b.Built))
	if err != nil {
		return 0, fmt.Errorf("insert building: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) MarkBuildingBuilt(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE buildings SET built = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark building %d: %w", id, err)
	}
	return expectRow(res, fmt.Errorf("mark building %d: %w", id, actions.ErrBuildingNotFound))
}

func (s *Store) DeleteBuilding(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM buildings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete building %d: %w", id, err)
	}
	return expectRow(res, fmt.Errorf("delete building %d: %w", id, actions.ErrBuildingNotFound))
}

// LoadBuilding returns a stored building.
func (s *Store) LoadBuilding(ctx context.Context, id int64) (actions.Building, error) {
	if err := s.ready(ctx); err != nil {
		return actions.Building{}, err
	}
	var (
		b     actions.Building
		typ   string
		built int
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, player_id, building_type, chunk_x, chunk_y, cell_q, cell_r, built FROM buildings WHERE id = ?`, id).
		Scan(&b.ID, &b.PlayerID, &typ, &b.Chunk.X, &b.Chunk.Y, &b.Cell.Q, &b.Cell.R, &built)
	if errors.Is(err, sql.ErrNoRows) {
		return actions.Building{}, fmt.Errorf("load building %d: %w", id, actions.ErrBuildingNotFound)
	}
	if err != nil {
		return actions.Building{}, fmt.Errorf("load building %d: %w", id, err)
	}
	b.Type = actions.BuildingType(typ)
	b.Built = built != 0
	return b, nil
}
