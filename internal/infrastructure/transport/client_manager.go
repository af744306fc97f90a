package transport

import (
	"context"
	"errors"
	"sync"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/core/services"
	"roomcast/internal/infrastructure/balancer"
	"roomcast/internal/infrastructure/monitoring"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	clientTypeDirect   = "direct"
	clientTypeBalancer = "balancer"
)

// ClientManager is the glue between transports and rooms: it accepts
// sockets, runs the auth handshake, routes client messages to the owning
// room, and fans room messages back out to every local client.
type ClientManager struct {
	tokens  ports.TokenStore
	rooms   ports.RoomManager
	metrics *monitoring.PrometheusCollector
	log     *zap.SugaredLogger

	// messages per second allowed per direct connection
	msgRate  rate.Limit
	msgBurst int

	mu       sync.RWMutex
	clients  map[domain.ClientID]ports.Client
	byRoom   map[domain.RoomName]map[domain.ClientID]struct{}
	balancer *balancer.Manager
}

var _ ports.ClientObserver = (*ClientManager)(nil)
var _ services.MessageFanout = (*ClientManager)(nil)
var _ balancer.MessageSink = (*ClientManager)(nil)

func NewClientManager(
	tokens ports.TokenStore,
	metrics *monitoring.PrometheusCollector,
	msgRate rate.Limit,
	msgBurst int,
	log *zap.SugaredLogger,
) *ClientManager {
	return &ClientManager{
		tokens:   tokens,
		metrics:  metrics,
		msgRate:  msgRate,
		msgBurst: msgBurst,
		log:      log.With("component", "client_manager"),
		clients:  make(map[domain.ClientID]ports.Client),
		byRoom:   make(map[domain.RoomName]map[domain.ClientID]struct{}),
	}
}

// SetRoomManager wires the room manager after construction; the two
// managers reference each other.
func (cm *ClientManager) SetRoomManager(rooms ports.RoomManager) {
	cm.rooms = rooms
}

// SetBalancerManager wires the balancer manager for cross-process fan-out.
func (cm *ClientManager) SetBalancerManager(bm *balancer.Manager) {
	cm.mu.Lock()
	cm.balancer = bm
	cm.mu.Unlock()
}

func clientType(c ports.Client) string {
	if _, ok := c.(*BalancerClient); ok {
		return clientTypeBalancer
	}
	return clientTypeDirect
}

// AcceptDirect registers a freshly upgraded socket for a room and blocks
// until the connection dies.
func (cm *ClientManager) AcceptDirect(ctx context.Context, conn *websocket.Conn, room domain.RoomName) {
	id := domain.ClientID(uuid.NewString())
	limiter := rate.NewLimiter(cm.msgRate, cm.msgBurst)
	client := NewDirectClient(id, room, conn, cm.tokens, cm, limiter, cm.log)
	cm.register(client)
	client.Run(ctx)
}

func (cm *ClientManager) register(client ports.Client) {
	cm.mu.Lock()
	cm.clients[client.ID()] = client
	if cm.byRoom[client.Room()] == nil {
		cm.byRoom[client.Room()] = make(map[domain.ClientID]struct{})
	}
	cm.byRoom[client.Room()][client.ID()] = struct{}{}
	cm.mu.Unlock()
	if cm.metrics != nil {
		cm.metrics.RecordClientConnected(clientType(client), client.JoinStatus())
	}
}

func (cm *ClientManager) unregister(client ports.Client) bool {
	cm.mu.Lock()
	_, known := cm.clients[client.ID()]
	delete(cm.clients, client.ID())
	if set, ok := cm.byRoom[client.Room()]; ok {
		delete(set, client.ID())
		if len(set) == 0 {
			delete(cm.byRoom, client.Room())
		}
	}
	cm.mu.Unlock()
	if known && cm.metrics != nil {
		cm.metrics.RecordClientDisconnected(clientType(client), client.JoinStatus())
	}
	return known
}

// OnAuth joins the authed client into its room.
func (cm *ClientManager) OnAuth(client ports.Client) {
	ctx := context.Background()
	room, err := cm.rooms.GetOrLoadRoom(ctx, client.Room())
	if err != nil {
		cm.log.Warnw("failed to load room for client",
			"room", client.Room(), "client", client.ID(), "error", err)
		code := domain.CloseCodeRoomNotFound
		if errors.Is(err, domain.ErrRoomAlreadyLoaded) {
			// owned by a peer monolith; the balancer should have routed there
			code = domain.CloseCodeRoomUnloaded
		}
		_ = client.Kick(code)
		return
	}
	err = room.ProcessRequest(ctx, &domain.JoinRequest{
		Client: client.ID(),
		Info:   client.ClientInfo(),
	})
	if err != nil {
		cm.log.Errorw("join failed", "room", client.Room(), "client", client.ID(), "error", err)
	}
}

// OnMessage routes a validated client message to the room as a request.
func (cm *ClientManager) OnMessage(client ports.Client, msg *domain.ClientMessage) {
	if msg.Action == domain.ActionKickMe {
		_ = client.Kick(domain.CloseCodeSelfRequested)
		return
	}
	if client.JoinStatus() != domain.JoinStatusJoined {
		cm.log.Debugw("dropping message from unauthenticated client", "client", client.ID())
		return
	}
	req := msg.ToRequest(client.ID())
	if req == nil {
		return
	}
	room, ok := cm.rooms.GetRoom(client.Room())
	if !ok {
		cm.log.Warnw("message for unloaded room", "room", client.Room(), "client", client.ID())
		return
	}
	if err := room.ProcessRequest(context.Background(), req); err != nil {
		var denied *domain.PermissionDeniedError
		if errors.As(err, &denied) {
			// reported to the requester only; room state is untouched
			_ = client.Send(domain.NewAnnouncementMessage(denied.Error()))
			return
		}
		cm.log.Warnw("request failed", "type", req.Type(), "client", client.ID(), "error", err)
	}
}

// OnDisconnect removes the client and leaves the room. Safe to call more
// than once; cleanup runs exactly once.
func (cm *ClientManager) OnDisconnect(client ports.Client) {
	if !cm.unregister(client) {
		return
	}
	room, ok := cm.rooms.GetRoom(client.Room())
	if !ok {
		return
	}
	err := room.ProcessRequest(context.Background(), &domain.LeaveRequest{Client: client.ID()})
	if err != nil {
		cm.log.Warnw("leave failed", "room", client.Room(), "client", client.ID(), "error", err)
	}
}

// BroadcastToRoom sends a message to every locally held client of the room.
func (cm *ClientManager) BroadcastToRoom(room domain.RoomName, msg *domain.ServerMessage) {
	for _, client := range cm.roomClients(room) {
		if client.JoinStatus() != domain.JoinStatusJoined {
			continue
		}
		if err := client.Send(msg); err != nil {
			cm.log.Debugw("send failed", "client", client.ID(), "error", err)
		}
	}
}

// BroadcastAll sends a message to every joined client regardless of room.
func (cm *ClientManager) BroadcastAll(msg *domain.ServerMessage) {
	cm.mu.RLock()
	clients := make([]ports.Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	cm.mu.RUnlock()
	for _, client := range clients {
		if client.JoinStatus() != domain.JoinStatusJoined {
			continue
		}
		_ = client.Send(msg)
	}
}

// PublishAnnouncement delivers a site-wide announcement to every local
// client. In a multi-node deployment the redis publisher takes this role and
// the sync relay delivers it here instead.
func (cm *ClientManager) PublishAnnouncement(ctx context.Context, text string) error {
	cm.BroadcastAll(domain.NewAnnouncementMessage(text))
	return nil
}

func (cm *ClientManager) roomClients(room domain.RoomName) []ports.Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	ids := cm.byRoom[room]
	clients := make([]ports.Client, 0, len(ids))
	for id := range ids {
		if client, ok := cm.clients[id]; ok {
			clients = append(clients, client)
		}
	}
	return clients
}

func (cm *ClientManager) SendToClient(id domain.ClientID, msg *domain.ServerMessage) error {
	cm.mu.RLock()
	client, ok := cm.clients[id]
	cm.mu.RUnlock()
	if !ok {
		return domain.ErrClientNotFound
	}
	return client.Send(msg)
}

func (cm *ClientManager) KickClient(id domain.ClientID, code int) {
	cm.mu.RLock()
	client, ok := cm.clients[id]
	cm.mu.RUnlock()
	if ok {
		_ = client.Kick(code)
	}
}

// HasRoomClients reports whether any local client belongs to the room. The
// sync relay uses it to decide which rooms to subscribe to.
func (cm *ClientManager) HasRoomClients(room domain.RoomName) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byRoom[room]) > 0
}

// RoomsWithClients lists every room that has at least one local client.
func (cm *ClientManager) RoomsWithClients() []domain.RoomName {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	rooms := make([]domain.RoomName, 0, len(cm.byRoom))
	for room := range cm.byRoom {
		rooms = append(rooms, room)
	}
	return rooms
}

// HandleBalancerJoin registers a remote viewer relayed by a balancer.
func (cm *ClientManager) HandleBalancerJoin(ctx context.Context, conn *balancer.Connection, msg *domain.B2MMessage) {
	client := NewBalancerClient(msg.Client, msg.Room, conn, cm.tokens)
	if err := client.Auth(ctx, msg.Token); err != nil {
		cm.log.Infow("balancer client auth failed", "client", msg.Client, "error", err)
		return
	}
	cm.register(client)
	cm.OnAuth(client)
}

func (cm *ClientManager) HandleBalancerLeave(ctx context.Context, conn *balancer.Connection, msg *domain.B2MMessage) {
	cm.mu.RLock()
	client, ok := cm.clients[msg.Client]
	cm.mu.RUnlock()
	if !ok {
		return
	}
	cm.OnDisconnect(client)
}

// HandleBalancerClientMessage feeds a relayed payload through the same path
// a direct socket message takes.
func (cm *ClientManager) HandleBalancerClientMessage(ctx context.Context, conn *balancer.Connection, msg *domain.B2MMessage) {
	cm.mu.RLock()
	client, ok := cm.clients[msg.ClientID]
	cm.mu.RUnlock()
	if !ok {
		cm.log.Debugw("client_msg for unknown client", "client", msg.ClientID)
		return
	}
	decoded, err := domain.DecodeClientMessage(msg.Payload)
	if err != nil {
		cm.log.Debugw("dropping malformed relayed message", "client", msg.ClientID, "error", err)
		return
	}
	if decoded.Action == domain.ActionAuth {
		if err := client.Auth(ctx, decoded.Token); err == nil {
			cm.OnAuth(client)
		}
		return
	}
	cm.OnMessage(client, decoded)
}
