package domain

import (
	"encoding/json"
	"fmt"
)

// ClientMessage is a message from a viewer's browser, discriminated by the
// "action" field. Unknown actions are rejected at decode time.
type ClientMessage struct {
	Action   string          `json:"action"`
	Token    string          `json:"token,omitempty"`
	Position *float64        `json:"position,omitempty"`
	Current  *int            `json:"currentIdx,omitempty"`
	Target   *int            `json:"targetIdx,omitempty"`
	Text     string          `json:"text,omitempty"`
	Status   PlayerStatus    `json:"status,omitempty"`
	ClientID ClientID        `json:"clientId,omitempty"`
	Role     *Role           `json:"role,omitempty"`
	Video    *VideoID        `json:"video,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

const (
	ActionAuth      = "auth"
	ActionPlay      = "play"
	ActionPause     = "pause"
	ActionSkip      = "skip"
	ActionSeek      = "seek"
	ActionQueueMove = "queue-move"
	ActionChat      = "chat"
	ActionKickMe    = "kickme"
	ActionStatus    = "status"
	ActionSetRole   = "set-role"
	ActionPlayNow   = "play-now"
)

// DecodeClientMessage parses and validates an inbound client frame.
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode client message: %w", err)
	}
	msg.Raw = raw
	switch msg.Action {
	case ActionAuth, ActionPlay, ActionPause, ActionSkip, ActionSeek,
		ActionQueueMove, ActionChat, ActionKickMe, ActionStatus,
		ActionSetRole, ActionPlayNow:
		return &msg, nil
	}
	return nil, fmt.Errorf("unknown client action %q", msg.Action)
}

// ToRequest translates a validated client message into the room request it
// stands for. Auth and kickme are handled at the transport layer and return
// nil here.
func (m *ClientMessage) ToRequest(client ClientID) RoomRequest {
	switch m.Action {
	case ActionPlay:
		return &PlaybackRequest{Client: client, State: true}
	case ActionPause:
		return &PlaybackRequest{Client: client, State: false}
	case ActionSkip:
		return &SkipRequest{Client: client}
	case ActionSeek:
		return &SeekRequest{Client: client, Value: m.Position}
	case ActionQueueMove:
		if m.Current == nil || m.Target == nil {
			return nil
		}
		return &OrderRequest{Client: client, FromIdx: *m.Current, ToIdx: *m.Target}
	case ActionChat:
		return &ChatRequest{Client: client, Text: m.Text}
	case ActionStatus:
		return &UpdateUserRequest{Client: client, Status: m.Status}
	case ActionSetRole:
		if m.Role == nil {
			return nil
		}
		return &PromoteRequest{Client: client, TargetID: m.ClientID, Role: *m.Role}
	case ActionPlayNow:
		if m.Video == nil {
			return nil
		}
		return &PlayNowRequest{Client: client, Video: *m.Video}
	}
	return nil
}

// ServerMessage is a message to a viewer, discriminated by "action".
type ServerMessage struct {
	Action string          `json:"action"`
	Sync   json.RawMessage `json:"sync,omitempty"`
	From   *RoomUserInfo   `json:"from,omitempty"`
	Text   string          `json:"text,omitempty"`
	Event  *RoomEvent      `json:"event,omitempty"`
	User   *RoomUserInfo   `json:"user,omitempty"`
	Users  []RoomUserInfo  `json:"users,omitempty"`
	Info   *ClientInfo     `json:"info,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

const (
	ServerActionSync         = "sync"
	ServerActionUnload       = "unload"
	ServerActionChat         = "chat"
	ServerActionEvent        = "event"
	ServerActionAnnouncement = "announcement"
	ServerActionUser         = "user"
	ServerActionYou          = "you"
)

func NewSyncMessage(delta json.RawMessage) *ServerMessage {
	return &ServerMessage{Action: ServerActionSync, Sync: delta}
}

func NewUnloadMessage() *ServerMessage {
	return &ServerMessage{Action: ServerActionUnload}
}

func NewChatMessage(from RoomUserInfo, text string) *ServerMessage {
	return &ServerMessage{Action: ServerActionChat, From: &from, Text: text}
}

func NewEventMessage(event RoomEvent) *ServerMessage {
	return &ServerMessage{Action: ServerActionEvent, Event: &event}
}

func NewAnnouncementMessage(text string) *ServerMessage {
	return &ServerMessage{Action: ServerActionAnnouncement, Text: text}
}

func NewUserListMessage(users []RoomUserInfo) *ServerMessage {
	return &ServerMessage{Action: ServerActionUser, Users: users}
}

// NewYouMessage tells the joining client which user list entry is itself.
func NewYouMessage(info ClientInfo) *ServerMessage {
	return &ServerMessage{Action: ServerActionYou, Info: &info}
}
