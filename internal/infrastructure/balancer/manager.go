package balancer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// MessageSink is where validated B2M traffic goes; the client manager
// implements it.
type MessageSink interface {
	HandleBalancerJoin(ctx context.Context, conn *Connection, msg *domain.B2MMessage)
	HandleBalancerLeave(ctx context.Context, conn *Connection, msg *domain.B2MMessage)
	HandleBalancerClientMessage(ctx context.Context, conn *Connection, msg *domain.B2MMessage)
}

// LoadedRoomsSource supplies the room summary for gossip broadcasts.
type LoadedRoomsSource interface {
	ListLoaded() []domain.GossipRoom
}

// Manager owns every configured balancer link. It auto-reconnects any link
// that drops unless the link was intentionally torn down.
type Manager struct {
	sink    MessageSink
	rooms   LoadedRoomsSource
	metrics *monitoring.PrometheusCollector
	log     *zap.SugaredLogger

	mu    sync.RWMutex
	conns map[string]*Connection
}

var _ Observer = (*Manager)(nil)

func NewManager(sink MessageSink, metrics *monitoring.PrometheusCollector, log *zap.SugaredLogger) *Manager {
	return &Manager{
		sink:    sink,
		metrics: metrics,
		log:     log.With("component", "balancer_manager"),
		conns:   make(map[string]*Connection),
	}
}

// SetRoomSource wires the loaded-rooms supplier after construction; the room
// manager and balancer manager reference each other.
func (m *Manager) SetRoomSource(rooms LoadedRoomsSource) {
	m.rooms = rooms
}

// Start opens a connection per configured balancer.
func (m *Manager) Start(configs []Config) {
	for _, cfg := range configs {
		conn := NewConnection(cfg, m, m.log)
		m.mu.Lock()
		m.conns[conn.ID()] = conn
		m.mu.Unlock()
		if err := conn.Connect(); err != nil {
			m.log.Warnw("initial balancer connect failed, retrying", "error", err)
			conn.Reconnect()
		}
	}
}

// Stop tears every link down for good.
func (m *Manager) Stop() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()
	for _, conn := range conns {
		conn.Disconnect()
	}
}

// Get looks a connection up by id.
func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[id]
	return conn, ok
}

func (m *Manager) OnBalancerConnect(conn *Connection) {
	if m.metrics != nil {
		m.metrics.RecordBalancerConnected()
	}
	// a newly attached balancer needs to know what we own
	if m.rooms != nil {
		for _, room := range m.rooms.ListLoaded() {
			if err := conn.Send(domain.NewLoadedMessage(room.Name)); err != nil {
				m.log.Warnw("failed to announce room to balancer", "room", room.Name, "error", err)
			}
		}
	}
}

func (m *Manager) OnBalancerDisconnect(conn *Connection) {
	if m.metrics != nil {
		m.metrics.RecordBalancerDisconnected()
	}
	if conn.Intentional() {
		return
	}
	m.mu.RLock()
	_, tracked := m.conns[conn.ID()]
	m.mu.RUnlock()
	if tracked && conn.State() == StateDisconnected && conn.ReconnectAttempts() == 0 {
		// first drop on a link that wasn't already backing off
		conn.Reconnect()
	}
}

func (m *Manager) OnBalancerMessage(conn *Connection, msg *domain.B2MMessage) {
	ctx := context.Background()
	switch msg.Type {
	case domain.B2MJoin:
		m.sink.HandleBalancerJoin(ctx, conn, msg)
	case domain.B2MLeave:
		m.sink.HandleBalancerLeave(ctx, conn, msg)
	case domain.B2MClientMsg:
		m.sink.HandleBalancerClientMessage(ctx, conn, msg)
	}
}

// Broadcast sends an M2B message to every connected link.
func (m *Manager) Broadcast(msg *domain.M2BMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.conns {
		if conn.State() != StateConnected {
			continue
		}
		if err := conn.Send(msg); err != nil {
			m.log.Warnw("balancer broadcast failed", "balancer", conn.ID(), "error", err)
		}
	}
}

// AnnounceRoomLoaded implements the room manager's announcer hook.
func (m *Manager) AnnounceRoomLoaded(room domain.RoomName) {
	m.Broadcast(domain.NewLoadedMessage(room))
}

func (m *Manager) AnnounceRoomUnloaded(room domain.RoomName) {
	m.Broadcast(domain.NewUnloadedMessage(room))
}

// BroadcastRoomMessage relays a server message for a room to every balancer,
// addressed to one client or to the whole room.
func (m *Manager) BroadcastRoomMessage(room domain.RoomName, clientID domain.ClientID, msg *domain.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	m.Broadcast(domain.NewRoomMessage(room, clientID, payload))
}

// RunGossip periodically broadcasts the loaded-room summary to every link.
func (m *Manager) RunGossip(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.rooms == nil {
				continue
			}
			m.Broadcast(domain.NewGossipMessage(m.rooms.ListLoaded()))
		}
	}
}
