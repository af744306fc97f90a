package memory

import (
	"context"
	"sync"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
)

// RoomStore is the in-memory room store used for single-node runs and tests.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]*ports.RoomRecord
}

var _ ports.RoomStore = (*RoomStore)(nil)

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[domain.RoomName]*ports.RoomRecord)}
}

func (s *RoomStore) GetRoomByName(ctx context.Context, name domain.RoomName) (*ports.RoomRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.rooms[name]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *RoomStore) SaveRoom(ctx context.Context, record *ports.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[record.Name]; exists {
		return domain.ErrRoomNameTaken
	}
	copied := *record
	s.rooms[record.Name] = &copied
	return nil
}

func (s *RoomStore) UpdateRoom(ctx context.Context, record *ports.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[record.Name]; !exists {
		return domain.ErrRoomNotFound
	}
	copied := *record
	s.rooms[record.Name] = &copied
	return nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, name domain.RoomName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[name]; !exists {
		return domain.ErrRoomNotFound
	}
	delete(s.rooms, name)
	return nil
}

func (s *RoomStore) IsRoomNameTaken(ctx context.Context, name domain.RoomName) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.rooms[name]
	return exists, nil
}
