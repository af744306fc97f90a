package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"roomcast/pkg/lock"

	"go.uber.org/zap"
)

// RoomAnnouncer is notified when rooms load and unload so balancer links can
// route clients to the owning monolith.
type RoomAnnouncer interface {
	AnnounceRoomLoaded(room domain.RoomName)
	AnnounceRoomUnloaded(room domain.RoomName)
}

// roomManager owns the set of rooms loaded in this process. Before loading a
// room it claims the room's ownership lock, so no two monoliths ever hold
// the same room's live state.
type roomManager struct {
	store    ports.RoomStore
	locks    *lock.Manager
	announce RoomAnnouncer
	deps     RoomDeps
	log      *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
	held  map[domain.RoomName]*lock.OwnershipLock
}

func NewRoomManager(store ports.RoomStore, locks *lock.Manager, announce RoomAnnouncer, deps RoomDeps) ports.RoomManager {
	return &roomManager{
		store:    store,
		locks:    locks,
		announce: announce,
		deps:     deps,
		log:      deps.Logger.With("component", "room_manager"),
		rooms:    make(map[domain.RoomName]*Room),
		held:     make(map[domain.RoomName]*lock.OwnershipLock),
	}
}

func (m *roomManager) CreateRoom(ctx context.Context, opts ports.CreateRoomOptions) error {
	taken, err := m.store.IsRoomNameTaken(ctx, opts.Name)
	if err != nil {
		return fmt.Errorf("failed to check room name: %w", err)
	}
	if taken {
		return domain.ErrRoomNameTaken
	}
	m.mu.RLock()
	_, loaded := m.rooms[opts.Name]
	m.mu.RUnlock()
	if loaded {
		return domain.ErrRoomNameTaken
	}

	record := &ports.RoomRecord{
		Name:        opts.Name,
		Title:       opts.Title,
		Description: opts.Description,
		Visibility:  opts.Visibility,
		IsTemporary: opts.IsTemporary,
		OwnerUserID: opts.OwnerUserID,
		QueueMode:   domain.QueueModeManual,
	}
	if record.Visibility == "" {
		record.Visibility = domain.VisibilityPublic
	}
	if !opts.IsTemporary {
		if err := m.store.SaveRoom(ctx, record); err != nil {
			return fmt.Errorf("failed to save room: %w", err)
		}
	}
	_, err = m.loadFromRecord(ctx, record)
	return err
}

func (m *roomManager) GetRoom(name domain.RoomName) (ports.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

func (m *roomManager) GetOrLoadRoom(ctx context.Context, name domain.RoomName) (ports.RoomService, error) {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}

	// a fast-restore snapshot from a recent ownership handoff beats a trip
	// to the persistent store
	if record := m.snapshotRecord(ctx, name); record != nil {
		return m.loadFromRecord(ctx, record)
	}

	record, err := m.store.GetRoomByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to look up room: %w", err)
	}
	return m.loadFromRecord(ctx, record)
}

func (m *roomManager) snapshotRecord(ctx context.Context, name domain.RoomName) *ports.RoomRecord {
	if m.deps.Snapshots == nil {
		return nil
	}
	data, err := m.deps.Snapshots.GetSnapshot(ctx, name)
	if err != nil || len(data) == 0 {
		return nil
	}
	var record ports.RoomRecord
	if err := json.Unmarshal(data, &record); err != nil {
		m.log.Warnw("corrupt room snapshot, loading from store", "room", name, "error", err)
		return nil
	}
	return &record
}

func (m *roomManager) loadFromRecord(ctx context.Context, record *ports.RoomRecord) (*Room, error) {
	var held *lock.OwnershipLock
	if m.locks != nil {
		held = m.locks.For("room:" + string(record.Name))
		acquired, err := held.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to claim room ownership: %w", err)
		}
		if !acquired {
			// another monolith owns this room; callers must relay instead
			return nil, domain.ErrRoomAlreadyLoaded
		}
	}

	grants := domain.NewGrants()
	if record.Grants != "" {
		if err := grants.Deserialize(record.Grants); err != nil {
			m.log.Warnw("failed to restore grants, using defaults", "room", record.Name, "error", err)
			grants = domain.NewGrants()
		}
	}

	room := NewRoom(RoomOptions{
		Name:                 record.Name,
		Title:                record.Title,
		Description:          record.Description,
		Visibility:           record.Visibility,
		QueueMode:            record.QueueMode,
		IsTemporary:          record.IsTemporary,
		OwnerUserID:          record.OwnerUserID,
		Grants:               grants,
		UserRoles:            record.UserRoles,
		PrevQueue:            record.PrevQueue,
		RestoreQueueBehavior: record.RestoreQueueBehavior,
		AutoSkipSegments:     record.AutoSkipSegments,
		EnableVoteSkip:       record.EnableVoteSkip,
	}, m.deps)

	m.mu.Lock()
	if existing, ok := m.rooms[record.Name]; ok {
		m.mu.Unlock()
		if held != nil {
			_ = held.Release(ctx)
		}
		return existing, nil
	}
	m.rooms[record.Name] = room
	if held != nil {
		m.held[record.Name] = held
	}
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordRoomLoaded()
	}
	if m.announce != nil {
		m.announce.AnnounceRoomLoaded(record.Name)
	}
	m.log.Infow("room loaded", "room", record.Name, "temporary", record.IsTemporary)
	return room, nil
}

func (m *roomManager) UnloadRoom(ctx context.Context, name domain.RoomName) error {
	m.mu.Lock()
	room, ok := m.rooms[name]
	held := m.held[name]
	delete(m.rooms, name)
	delete(m.held, name)
	m.mu.Unlock()
	if !ok {
		return domain.ErrRoomNotFound
	}

	if err := room.OnBeforeUnload(ctx); err != nil {
		m.log.Warnw("room unload hook failed", "room", name, "error", err)
	}
	if !room.isTemporary {
		if err := m.store.UpdateRoom(ctx, room.Record()); err != nil {
			m.log.Errorw("failed to persist room on unload", "room", name, "error", err)
		}
	}
	if m.deps.Snapshots != nil {
		if err := m.deps.Snapshots.DeleteSnapshot(ctx, name); err != nil {
			m.log.Warnw("failed to drop room snapshot", "room", name, "error", err)
		}
	}
	if held != nil {
		if err := held.Release(ctx); err != nil {
			m.log.Warnw("failed to release room ownership", "room", name, "error", err)
		}
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordRoomUnloaded()
	}
	if m.announce != nil {
		m.announce.AnnounceRoomUnloaded(name)
	}
	m.log.Infow("room unloaded", "room", name)
	return nil
}

func (m *roomManager) ListLoaded() []domain.GossipRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]domain.GossipRoom, 0, len(m.rooms))
	for name, room := range m.rooms {
		list = append(list, domain.GossipRoom{
			Name:     name,
			Users:    len(room.Users()),
			IsLoaded: true,
		})
	}
	return list
}

// Run drives the update tick: each loaded room advances playback and stale
// rooms are unloaded. Blocks until the context is cancelled, then unloads
// everything.
func (m *roomManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *roomManager) tick(ctx context.Context) {
	m.mu.RLock()
	rooms := make(map[domain.RoomName]*Room, len(m.rooms))
	for name, room := range m.rooms {
		rooms[name] = room
	}
	m.mu.RUnlock()

	for name, room := range rooms {
		if err := room.Update(ctx); err != nil {
			m.log.Warnw("room update failed", "room", name, "error", err)
		}
		if room.IsStale() {
			if err := m.UnloadRoom(ctx, name); err != nil {
				m.log.Warnw("failed to unload stale room", "room", name, "error", err)
			}
		}
	}
}

func (m *roomManager) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m.mu.RLock()
	names := make([]domain.RoomName, 0, len(m.rooms))
	for name := range m.rooms {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		if err := m.UnloadRoom(ctx, name); err != nil {
			m.log.Warnw("failed to unload room during shutdown", "room", name, "error", err)
		}
	}
}
