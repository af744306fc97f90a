package domain

type ClientID string
type RoomName string

// Visibility controls how a room is discovered.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

// QueueMode is the policy governing how the next video is selected.
type QueueMode string

const (
	QueueModeManual QueueMode = "manual"
	QueueModeVote   QueueMode = "vote"
	QueueModeLoop   QueueMode = "loop"
	QueueModeDj     QueueMode = "dj"
)

func (m QueueMode) Valid() bool {
	switch m {
	case QueueModeManual, QueueModeVote, QueueModeLoop, QueueModeDj:
		return true
	}
	return false
}

// RestoreQueueBehavior decides what happens to a persisted previous queue when
// a room is loaded with an empty queue.
type RestoreQueueBehavior string

const (
	RestoreQueueAlways RestoreQueueBehavior = "always"
	RestoreQueueNever  RestoreQueueBehavior = "never"
	RestoreQueuePrompt RestoreQueueBehavior = "prompt"
)

// PlayerStatus is the client-reported state of its local player.
type PlayerStatus string

const (
	PlayerStatusNone      PlayerStatus = "none"
	PlayerStatusReady     PlayerStatus = "ready"
	PlayerStatusBuffering PlayerStatus = "buffering"
	PlayerStatusError     PlayerStatus = "error"
)

// JoinStatus tracks where a client is in the auth handshake.
type JoinStatus int

const (
	JoinStatusWaitingForAuth JoinStatus = iota
	JoinStatusJoined
)

func (s JoinStatus) String() string {
	switch s {
	case JoinStatusWaitingForAuth:
		return "waiting_for_auth"
	case JoinStatusJoined:
		return "joined"
	}
	return "unknown"
}

// Websocket close codes sent on kick. 4000-range codes are application
// defined per RFC 6455.
const (
	CloseCodeMissingToken  = 4001
	CloseCodeRoomNotFound  = 4002
	CloseCodeRoomUnloaded  = 4003
	CloseCodeKickedByUser  = 4004
	CloseCodeSelfRequested = 4005
)

// SessionInfo is what the token store resolves a token to. Exactly one of
// UserID or Username is meaningful: logged-in sessions carry a user id,
// anonymous sessions a chosen display name.
type SessionInfo struct {
	IsLoggedIn bool   `json:"isLoggedIn"`
	UserID     int64  `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Name returns the display name for the session.
func (s SessionInfo) Name(fallback string) string {
	if s.Username != "" {
		return s.Username
	}
	return fallback
}

// ClientInfo identifies a client to the balancer and to peer monoliths.
// Before auth completes only the id is known.
type ClientInfo struct {
	ID       ClientID `json:"id"`
	UserID   int64    `json:"user_id,omitempty"`
	Username string   `json:"username,omitempty"`
}

// RoomUserInfo is the per-user entry published in the room's user list.
type RoomUserInfo struct {
	ID         ClientID     `json:"id"`
	Name       string       `json:"name"`
	IsLoggedIn bool         `json:"isLoggedIn"`
	Role       Role         `json:"role"`
	Status     PlayerStatus `json:"status"`
}
