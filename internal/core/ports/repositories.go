package ports

import (
	"context"

	"roomcast/internal/core/domain"
)

// RoomRecord is the persisted form of a room, everything that survives an
// unload.
type RoomRecord struct {
	Name                 domain.RoomName             `json:"name"`
	Title                string                      `json:"title"`
	Description          string                      `json:"description"`
	Visibility           domain.Visibility           `json:"visibility"`
	QueueMode            domain.QueueMode            `json:"queueMode"`
	IsTemporary          bool                        `json:"isTemporary"`
	OwnerUserID          int64                       `json:"owner,omitempty"`
	Grants               string                      `json:"grants,omitempty"`
	UserRoles            map[domain.Role][]int64     `json:"userRoles,omitempty"`
	PrevQueue            []*domain.QueueItem         `json:"prevQueue,omitempty"`
	RestoreQueueBehavior domain.RestoreQueueBehavior `json:"restoreQueueBehavior,omitempty"`
	AutoSkipSegments     bool                        `json:"autoSkipSegments"`
	EnableVoteSkip       bool                        `json:"enableVoteSkip"`
}

type RoomStore interface {
	GetRoomByName(ctx context.Context, name domain.RoomName) (*RoomRecord, error)
	SaveRoom(ctx context.Context, record *RoomRecord) error
	UpdateRoom(ctx context.Context, record *RoomRecord) error
	DeleteRoom(ctx context.Context, name domain.RoomName) error
	IsRoomNameTaken(ctx context.Context, name domain.RoomName) (bool, error)
}

type TokenStore interface {
	Validate(ctx context.Context, token string) (bool, error)
	GetSessionInfo(ctx context.Context, token string) (*domain.SessionInfo, error)
	SetSessionInfo(ctx context.Context, token string, session *domain.SessionInfo) error
}

type InfoExtractor interface {
	GetVideoInfo(ctx context.Context, service, id string) (*domain.Video, error)
	GetManyVideoInfo(ctx context.Context, ids []domain.VideoID) ([]*domain.Video, error)
}

// SyncPublisher fans room sync payloads and global announcements out to peer
// monoliths.
type SyncPublisher interface {
	PublishSync(ctx context.Context, room domain.RoomName, payload []byte) error
	SubscribeSync(ctx context.Context, room domain.RoomName) (<-chan []byte, func(), error)
	SubscribeAnnouncements(ctx context.Context) (<-chan []byte, func(), error)
}

// SnapshotCache holds serialized room state for fast restore after an
// ownership handoff.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, name domain.RoomName, snapshot []byte) error
	GetSnapshot(ctx context.Context, name domain.RoomName) ([]byte, error)
	DeleteSnapshot(ctx context.Context, name domain.RoomName) error
}
