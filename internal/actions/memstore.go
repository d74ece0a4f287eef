package actions

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps actions and buildings in process. Completed and failed
// actions stay stored for audit.
type MemoryStore struct {
	mu           sync.RWMutex
	nextAction   int64
	nextBuilding int64
	actions      map[int64]Info
	buildings    map[int64]Building

	// Fault, when set, is consulted before every operation. A non-nil
	// return aborts the operation with that error.
	Fault func(op string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions:   make(map[int64]Info),
		buildings: make(map[int64]Building),
	}
}

func (s *MemoryStore) fault(op string) error {
	if s.Fault == nil {
		return nil
	}
	return s.Fault(op)
}

func (s *MemoryStore) CreateAction(_ context.Context, info Info) (int64, error) {
	if err := s.fault("CreateAction"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAction++
	info.ID = s.nextAction
	s.actions[info.ID] = info.Clone()
	return info.ID, nil
}

func (s *MemoryStore) UpdateAction(_ context.Context, info Info) error {
	if err := s.fault("UpdateAction"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[info.ID]; !ok {
		return fmt.Errorf("update action %d: %w", info.ID, ErrActionNotFound)
	}
	s.actions[info.ID] = info.Clone()
	return nil
}

func (s *MemoryStore) LoadActiveActions(_ context.Context) ([]Info, error) {
	if err := s.fault("LoadActiveActions"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Info
	for _, info := range s.actions {
		if !info.Status.Terminal() {
			out = append(out, info.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Action returns the stored record of an action.
func (s *MemoryStore) Action(id int64) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.actions[id]
	return info.Clone(), ok
}

func (s *MemoryStore) SaveBuilding(_ context.Context, b Building) (int64, error) {
	if err := s.fault("SaveBuilding"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBuilding++
	b.ID = s.nextBuilding
	s.buildings[b.ID] = b
	return b.ID, nil
}

func (s *MemoryStore) MarkBuildingBuilt(_ context.Context, id int64) error {
	if err := s.fault("MarkBuildingBuilt"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buildings[id]
	if !ok {
		return fmt.Errorf("mark building %d: %w", id, ErrBuildingNotFound)
	}
	b.Built = true
	s.buildings[id] = b
	return nil
}

func (s *MemoryStore) DeleteBuilding(_ context.Context, id int64) error {
	if err := s.fault("DeleteBuilding"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buildings[id]; !ok {
		return fmt.Errorf("delete building %d: %w", id, ErrBuildingNotFound)
	}
	delete(s.buildings, id)
	return nil
}

// Building returns a stored building.
func (s *MemoryStore) Building(id int64) (Building, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buildings[id]
	return b, ok
}
