package ports

import (
	"context"
	"time"

	"roomcast/internal/core/domain"
)

// Client is the transport-agnostic handle for a connected viewer, whether
// its socket lives in this process or behind a balancer.
type Client interface {
	ID() domain.ClientID
	Room() domain.RoomName
	Token() string
	Session() *domain.SessionInfo
	JoinStatus() domain.JoinStatus
	ClientInfo() domain.ClientInfo

	Auth(ctx context.Context, token string) error
	Send(msg *domain.ServerMessage) error
	SendRaw(data []byte) error
	Kick(code int) error
}

// ClientObserver receives client lifecycle events. Implementations must not
// block.
type ClientObserver interface {
	OnAuth(client Client)
	OnMessage(client Client, msg *domain.ClientMessage)
	OnDisconnect(client Client)
}

// RoomService is the per-room state machine boundary.
type RoomService interface {
	Name() domain.RoomName
	ProcessRequest(ctx context.Context, req domain.RoomRequest) error
	Sync(ctx context.Context) error
	Update(ctx context.Context) error
	IsStale() bool
	Users() []domain.RoomUserInfo
	OnBeforeUnload(ctx context.Context) error
}

type RoomManager interface {
	CreateRoom(ctx context.Context, opts CreateRoomOptions) error
	GetOrLoadRoom(ctx context.Context, name domain.RoomName) (RoomService, error)
	GetRoom(name domain.RoomName) (RoomService, bool)
	UnloadRoom(ctx context.Context, name domain.RoomName) error
	ListLoaded() []domain.GossipRoom
	Run(ctx context.Context, interval time.Duration)
}

type CreateRoomOptions struct {
	Name        domain.RoomName
	Title       string
	Description string
	Visibility  domain.Visibility
	IsTemporary bool
	OwnerUserID int64
}
