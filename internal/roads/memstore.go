package roads

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hexhold/server/internal/hexgrid"
)

// MemoryStore keeps segments in process. It backs servers started without a
// database and the package tests.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	segments   map[int64]Segment
	visibility map[int64][]VisibilityEntry

	// Fault, when set, is consulted before every operation. A non-nil
	// return aborts the operation with that error.
	Fault func(op string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		segments:   make(map[int64]Segment),
		visibility: make(map[int64][]VisibilityEntry),
	}
}

func (s *MemoryStore) fault(op string) error {
	if s.Fault == nil {
		return nil
	}
	return s.Fault(op)
}

func (s *MemoryStore) SaveSegment(_ context.Context, seg Segment) (int64, error) {
	if err := s.fault("SaveSegment"); err != nil {
		return 0, err
	}
	if err := seg.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seg.ID == 0 {
		s.nextID++
		seg.ID = s.nextID
	} else if _, ok := s.segments[seg.ID]; !ok {
		return 0, fmt.Errorf("save segment %d: %w", seg.ID, ErrSegmentNotFound)
	}
	s.segments[seg.ID] = seg.Clone()
	return seg.ID, nil
}

func (s *MemoryStore) LoadSegment(_ context.Context, id int64) (Segment, error) {
	if err := s.fault("LoadSegment"); err != nil {
		return Segment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return Segment{}, fmt.Errorf("load segment %d: %w", id, ErrSegmentNotFound)
	}
	return seg.Clone(), nil
}

func (s *MemoryStore) DeleteSegment(_ context.Context, id int64) error {
	if err := s.fault("DeleteSegment"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.segments[id]; !ok {
		return fmt.Errorf("delete segment %d: %w", id, ErrSegmentNotFound)
	}
	delete(s.segments, id)
	delete(s.visibility, id)
	return nil
}

func (s *MemoryStore) SegmentsAtCell(_ context.Context, c hexgrid.Cell) ([]Segment, error) {
	if err := s.fault("SegmentsAtCell"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Segment
	for _, seg := range s.segments {
		if seg.Touches(c) {
			out = append(out, seg.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) ChunksForSegment(_ context.Context, id int64) ([]hexgrid.ChunkID, error) {
	if err := s.fault("ChunksForSegment"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.visibility[id]
	out := make([]hexgrid.ChunkID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Chunk)
	}
	return out, nil
}

func (s *MemoryStore) ReplaceVisibility(_ context.Context, id int64, entries []VisibilityEntry) error {
	if err := s.fault("ReplaceVisibility"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.segments[id]; !ok {
		return fmt.Errorf("replace visibility %d: %w", id, ErrSegmentNotFound)
	}
	copied := make([]VisibilityEntry, len(entries))
	copy(copied, entries)
	s.visibility[id] = copied
	return nil
}

func (s *MemoryStore) ReplaceSegments(_ context.Context, merged Segment, entries []VisibilityEntry, absorbed []int64) (int64, error) {
	if err := s.fault("ReplaceSegments"); err != nil {
		return 0, err
	}
	if merged.ID != 0 {
		return 0, fmt.Errorf("%w: merged segment already has id %d", ErrInvalidSegment, merged.ID)
	}
	if err := merged.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range absorbed {
		if _, ok := s.segments[id]; !ok {
			return 0, fmt.Errorf("replace segment %d: %w", id, ErrSegmentNotFound)
		}
	}
	for _, id := range absorbed {
		delete(s.segments, id)
		delete(s.visibility, id)
	}
	s.nextID++
	merged.ID = s.nextID
	s.segments[merged.ID] = merged.Clone()
	copied := make([]VisibilityEntry, len(entries))
	for i, e := range entries {
		e.SegmentID = merged.ID
		copied[i] = e
	}
	s.visibility[merged.ID] = copied
	return merged.ID, nil
}

func (s *MemoryStore) SegmentsInChunk(_ context.Context, chunk hexgrid.ChunkID) ([]Segment, error) {
	if err := s.fault("SegmentsInChunk"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Segment
	for id, entries := range s.visibility {
		for _, e := range entries {
			if e.Chunk == chunk {
				out = append(out, s.segments[id].Clone())
				break
			}
		}
	}
	sortByID(out)
	return out, nil
}

// Visibility returns the stored entries of a segment.
func (s *MemoryStore) Visibility(id int64) []VisibilityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]VisibilityEntry, len(s.visibility[id]))
	copy(copied, s.visibility[id])
	return copied
}

// Len returns the number of stored segments.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

func sortByID(segments []Segment) {
	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })
}
