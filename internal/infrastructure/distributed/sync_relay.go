package distributed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"go.uber.org/zap"
)

// LocalFanout is the slice of the client manager the relay needs.
type LocalFanout interface {
	BroadcastToRoom(room domain.RoomName, msg *domain.ServerMessage)
	BroadcastAll(msg *domain.ServerMessage)
	HasRoomClients(room domain.RoomName) bool
	RoomsWithClients() []domain.RoomName
}

// SyncRelay keeps this monolith's local clients in sync for rooms owned by
// peer monoliths. It subscribes to the sync channel of every room that has
// local viewers but no local state, and forwards whatever the owner
// publishes. It also relays global announcements to every local client.
type SyncRelay struct {
	pub    *RedisSyncPublisher
	fanout LocalFanout
	rooms  ports.RoomManager
	log    *zap.SugaredLogger

	mu   sync.Mutex
	subs map[domain.RoomName]func()
}

func NewSyncRelay(pub *RedisSyncPublisher, fanout LocalFanout, rooms ports.RoomManager, log *zap.SugaredLogger) *SyncRelay {
	return &SyncRelay{
		pub:    pub,
		fanout: fanout,
		rooms:  rooms,
		log:    log.With("component", "sync_relay"),
		subs:   make(map[domain.RoomName]func()),
	}
}

// Run blocks until the context is cancelled, reconciling subscriptions once
// a second and relaying announcements the whole time.
func (r *SyncRelay) Run(ctx context.Context, interval time.Duration) {
	go r.runAnnouncements(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.unsubscribeAll()
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile subscribes rooms that gained remote-owned viewers and drops
// rooms whose last local viewer left or that this monolith now owns.
func (r *SyncRelay) reconcile(ctx context.Context) {
	wanted := make(map[domain.RoomName]struct{})
	for _, room := range r.fanout.RoomsWithClients() {
		if _, ownedHere := r.rooms.GetRoom(room); ownedHere {
			continue
		}
		wanted[room] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for room, cancel := range r.subs {
		if _, ok := wanted[room]; !ok {
			cancel()
			delete(r.subs, room)
			r.log.Debugw("sync relay unsubscribed", "room", room)
		}
	}
	for room := range wanted {
		if _, ok := r.subs[room]; ok {
			continue
		}
		ch, cancel, err := r.pub.SubscribeSync(ctx, room)
		if err != nil {
			r.log.Warnw("sync relay subscribe failed", "room", room, "error", err)
			continue
		}
		r.subs[room] = cancel
		go r.relayRoom(room, ch)
		r.log.Debugw("sync relay subscribed", "room", room)
	}
}

func (r *SyncRelay) relayRoom(room domain.RoomName, ch <-chan []byte) {
	for payload := range ch {
		var msg domain.ServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.log.Warnw("dropping malformed relayed sync", "room", room, "error", err)
			continue
		}
		r.fanout.BroadcastToRoom(room, &msg)
	}
}

func (r *SyncRelay) runAnnouncements(ctx context.Context) {
	ch, cancel, err := r.pub.SubscribeAnnouncements(ctx)
	if err != nil {
		r.log.Errorw("announcement subscription failed", "error", err)
		return
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var msg domain.ServerMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				r.log.Warnw("dropping malformed announcement", "error", err)
				continue
			}
			r.fanout.BroadcastAll(&msg)
		}
	}
}

func (r *SyncRelay) unsubscribeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, cancel := range r.subs {
		cancel()
		delete(r.subs, room)
	}
}
