package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads"
)

const segmentColumns = `s.id, s.start_q, s.start_r, s.end_q, s.end_r, s.chunk_x, s.chunk_y, s.cell_path, s.points, s.importance, s.road_type`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) SaveSegment(ctx context.Context, seg roads.Segment) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if err := seg.Validate(); err != nil {
		return 0, err
	}
	if seg.ID == 0 {
		return insertSegment(ctx, s.sqlDB, seg)
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE road_segments
SET start_q = ?, start_r = ?, end_q = ?, end_r = ?, chunk_x = ?, chunk_y = ?, cell_path = ?, points = ?, importance = ?, road_type = ?
WHERE id = ?`,
		seg.Start.Q, seg.Start.R, seg.End.Q, seg.End.R, seg.Chunk.X, seg.Chunk.Y,
		roads.EncodeCells(seg.CellPath), roads.EncodePoints(seg.Points), seg.Importance, seg.Type.ID(), seg.ID)
	if err != nil {
		return 0, fmt.Errorf("update segment %d: %w", seg.ID, err)
	}
	if err := expectRow(res, fmt.Errorf("update segment %d: %w", seg.ID, roads.ErrSegmentNotFound)); err != nil {
		return 0, err
	}
	return seg.ID, nil
}

func insertSegment(ctx context.Context, db execer, seg roads.Segment) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO road_segments
    (start_q, start_r, end_q, end_r, chunk_x, chunk_y, cell_path, points, importance, road_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.Start.Q, seg.Start.R, seg.End.Q, seg.End.R, seg.Chunk.X, seg.Chunk.Y,
		roads.EncodeCells(seg.CellPath), roads.EncodePoints(seg.Points), seg.Importance, seg.Type.ID())
	if err != nil {
		return 0, fmt.Errorf("insert segment: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) LoadSegment(ctx context.Context, id int64) (roads.Segment, error) {
	if err := s.ready(ctx); err != nil {
		return roads.Segment{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM road_segments s WHERE s.id = ?`, id)
	seg, err := s.scanSegment(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return roads.Segment{}, fmt.Errorf("load segment %d: %w", id, roads.ErrSegmentNotFound)
	}
	if err != nil {
		return roads.Segment{}, fmt.Errorf("load segment %d: %w", id, err)
	}
	return seg, nil
}

func (s *Store) DeleteSegment(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM road_chunk_visibility WHERE segment_id = ?`, id); err != nil {
			return fmt.Errorf("delete visibility of %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM road_segments WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete segment %d: %w", id, err)
		}
		return expectRow(res, fmt.Errorf("delete segment %d: %w", id, roads.ErrSegmentNotFound))
	})
}

func (s *Store) SegmentsAtCell(ctx context.Context, c hexgrid.Cell) ([]roads.Segment, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.querySegments(ctx, `SELECT `+segmentColumns+` FROM road_segments s
WHERE (s.start_q = ? AND s.start_r = ?) OR (s.end_q = ? AND s.end_r = ?)
ORDER BY s.id`, c.Q, c.R, c.Q, c.R)
}

func (s *Store) SegmentsInChunk(ctx context.Context, chunk hexgrid.ChunkID) ([]roads.Segment, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.querySegments(ctx, `SELECT `+segmentColumns+` FROM road_segments s
JOIN road_chunk_visibility v ON v.segment_id = s.id
WHERE v.chunk_x = ? AND v.chunk_y = ?
ORDER BY s.id`, chunk.X, chunk.Y)
}

func (s *Store) ChunksForSegment(ctx context.Context, id int64) ([]hexgrid.ChunkID, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT chunk_x, chunk_y FROM road_chunk_visibility
WHERE segment_id = ? ORDER BY chunk_y, chunk_x`, id)
	if err != nil {
		return nil, fmt.Errorf("query chunks of %d: %w", id, err)
	}
	defer rows.Close()
	var out []hexgrid.ChunkID
	for rows.Next() {
		var c hexgrid.ChunkID
		if err := rows.Scan(&c.X, &c.Y); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceVisibility deletes then inserts inside one transaction.
func (s *Store) ReplaceVisibility(ctx context.Context, id int64, entries []roads.VisibilityEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM road_segments WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("replace visibility %d: %w", id, roads.ErrSegmentNotFound)
		}
		if err != nil {
			return fmt.Errorf("replace visibility %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM road_chunk_visibility WHERE segment_id = ?`, id); err != nil {
			return fmt.Errorf("clear visibility %d: %w", id, err)
		}
		return insertVisibility(ctx, tx, id, entries)
	})
}

// ReplaceSegments inserts the merged segment and its visibility and deletes
// the absorbed segments inside one transaction.
func (s *Store) ReplaceSegments(ctx context.Context, merged roads.Segment, entries []roads.VisibilityEntry, absorbed []int64) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if merged.ID != 0 {
		return 0, fmt.Errorf("%w: merged segment already has id %d", roads.ErrInvalidSegment, merged.ID)
	}
	if err := merged.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, old := range absorbed {
			if _, err := tx.ExecContext(ctx, `DELETE FROM road_chunk_visibility WHERE segment_id = ?`, old); err != nil {
				return fmt.Errorf("delete visibility of %d: %w", old, err)
			}
			res, err := tx.ExecContext(ctx, `DELETE FROM road_segments WHERE id = ?`, old)
			if err != nil {
				return fmt.Errorf("delete segment %d: %w", old, err)
			}
			if err := expectRow(res, fmt.Errorf("replace segment %d: %w", old, roads.ErrSegmentNotFound)); err != nil {
				return err
			}
		}
		var err error
		if id, err = insertSegment(ctx, tx, merged); err != nil {
			return err
		}
		return insertVisibility(ctx, tx, id, entries)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertVisibility(ctx context.Context, tx *sql.Tx, id int64, entries []roads.VisibilityEntry) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO road_chunk_visibility (segment_id, chunk_x, chunk_y, is_endpoint) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare visibility insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, id, e.Chunk.X, e.Chunk.Y, boolToInt(e.IsEndpoint)); err != nil {
			return fmt.Errorf("insert visibility %d %s: %w", id, e.Chunk, err)
		}
	}
	return nil
}

// VisibilityEntries returns the stored entries of a segment ordered by chunk row, then column.
func (s *Store) VisibilityEntries(ctx context.Context, id int64) ([]roads.VisibilityEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT chunk_x, chunk_y, is_endpoint FROM road_chunk_visibility
WHERE segment_id = ? ORDER BY chunk_y, chunk_x`, id)
	if err != nil {
		return nil, fmt.Errorf("query visibility of %d: %w", id, err)
	}
	defer rows.Close()
	var out []roads.VisibilityEntry
	for rows.Next() {
		e := roads.VisibilityEntry{SegmentID: id}
		var endpoint int
		if err := rows.Scan(&e.Chunk.X, &e.Chunk.Y, &endpoint); err != nil {
			return nil, fmt.Errorf("scan visibility: %w", err)
		}
		e.IsEndpoint = endpoint != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]roads.Segment, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	var raw []segmentRow
	for rows.Next() {
		r, err := scanSegmentRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		raw = append(raw, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]roads.Segment, 0, len(raw))
	for _, r := range raw {
		seg, err := s.decodeSegment(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

type segmentRow struct {
	seg      roads.Segment
	cells    []byte
	points   []byte
	roadType int
}

func scanSegmentRow(row rowScanner) (segmentRow, error) {
	var r segmentRow
	err := row.Scan(&r.seg.ID, &r.seg.Start.Q, &r.seg.Start.R, &r.seg.End.Q, &r.seg.End.R, &r.seg.Chunk.X, &r.seg.Chunk.Y, &r.cells, &r.points, &r.seg.Importance, &r.roadType)
	return r, err
}

func (s *Store) scanSegment(ctx context.Context, row rowScanner) (roads.Segment, error) {
	r, err := scanSegmentRow(row)
	if err != nil {
		return roads.Segment{}, err
	}
	return s.decodeSegment(ctx, r)
}

func (s *Store) decodeSegment(ctx context.Context, r segmentRow) (roads.Segment, error) {
	seg := r.seg
	path, _, err := s.decoder.DecodeCellPath(ctx, seg.ID, seg.Start, seg.End, r.cells)
	if err != nil {
		return roads.Segment{}, fmt.Errorf("decode cell path of %d: %w", seg.ID, err)
	}
	seg.CellPath = path
	if seg.Points, err = roads.DecodePoints(r.points); err != nil {
		return roads.Segment{}, fmt.Errorf("decode points of %d: %w", seg.ID, err)
	}
	// Unknown ids are kept as stored; building with them fails later.
	seg.Type = roads.Type{Category: roads.Category(r.roadType >> 8), Variant: uint8(r.roadType & 0xff)}
	return seg, nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
