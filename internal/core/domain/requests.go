package domain

import (
	"encoding/json"
	"fmt"
)

// RequestType discriminates the RoomRequest union.
type RequestType string

const (
	RequestJoin          RequestType = "join"
	RequestLeave         RequestType = "leave"
	RequestPlayback      RequestType = "playback"
	RequestSkip          RequestType = "skip"
	RequestSeek          RequestType = "seek"
	RequestAdd           RequestType = "add"
	RequestRemove        RequestType = "remove"
	RequestOrder         RequestType = "order"
	RequestVote          RequestType = "vote"
	RequestPromote       RequestType = "promote"
	RequestUpdateUser    RequestType = "update-user"
	RequestChat          RequestType = "chat"
	RequestUndo          RequestType = "undo"
	RequestApplySettings RequestType = "apply-settings"
	RequestPlayNow       RequestType = "play-now"
	RequestShuffle       RequestType = "shuffle"
	RequestPlaybackSpeed RequestType = "playback-speed"
	RequestRestoreQueue  RequestType = "restore-queue"
)

// RoomRequest is the closed union of everything a client can ask a room to
// do. Every request carries the issuing client's id; the room resolves the
// requester's role and permission from it before dispatching.
type RoomRequest interface {
	Type() RequestType
}

type JoinRequest struct {
	Client ClientID
	Info   ClientInfo
}

type LeaveRequest struct {
	Client ClientID
}

type PlaybackRequest struct {
	Client ClientID
	State  bool
}

type SkipRequest struct {
	Client ClientID
}

type SeekRequest struct {
	Client ClientID
	Value  *float64
}

type AddRequest struct {
	Client ClientID
	Video  *VideoID
	Videos []VideoID
	URL    string
}

type RemoveRequest struct {
	Client ClientID
	Video  VideoID
}

type OrderRequest struct {
	Client  ClientID
	FromIdx int
	ToIdx   int
}

type VoteRequest struct {
	Client ClientID
	Video  VideoID
	Add    bool
}

type PromoteRequest struct {
	Client   ClientID
	TargetID ClientID
	Role     Role
}

type UpdateUserRequest struct {
	Client ClientID
	Info   ClientInfo
	Status PlayerStatus
}

type ChatRequest struct {
	Client ClientID
	Text   string
}

type UndoRequest struct {
	Client ClientID
	Event  *RoomEvent
}

// RoomSettings carries the fields ApplySettings may change. Pointer fields
// distinguish "leave unchanged" from an explicit zero value.
type RoomSettings struct {
	Title                *string               `json:"title,omitempty"`
	Description          *string               `json:"description,omitempty"`
	Visibility           *Visibility           `json:"visibility,omitempty"`
	QueueMode            *QueueMode            `json:"queueMode,omitempty"`
	Grants               *Grants               `json:"grants,omitempty"`
	AutoSkipSegments     *bool                 `json:"autoSkipSegments,omitempty"`
	EnableVoteSkip       *bool                 `json:"enableVoteSkip,omitempty"`
	RestoreQueueBehavior *RestoreQueueBehavior `json:"restoreQueueBehavior,omitempty"`
}

type ApplySettingsRequest struct {
	Client   ClientID
	Settings RoomSettings
}

type PlayNowRequest struct {
	Client ClientID
	Video  VideoID
}

type ShuffleRequest struct {
	Client ClientID
}

type PlaybackSpeedRequest struct {
	Client ClientID
	Speed  float64
}

type RestoreQueueRequest struct {
	Client  ClientID
	Discard bool
}

func (r *JoinRequest) Type() RequestType          { return RequestJoin }
func (r *LeaveRequest) Type() RequestType         { return RequestLeave }
func (r *PlaybackRequest) Type() RequestType      { return RequestPlayback }
func (r *SkipRequest) Type() RequestType          { return RequestSkip }
func (r *SeekRequest) Type() RequestType          { return RequestSeek }
func (r *AddRequest) Type() RequestType           { return RequestAdd }
func (r *RemoveRequest) Type() RequestType        { return RequestRemove }
func (r *OrderRequest) Type() RequestType         { return RequestOrder }
func (r *VoteRequest) Type() RequestType          { return RequestVote }
func (r *PromoteRequest) Type() RequestType       { return RequestPromote }
func (r *UpdateUserRequest) Type() RequestType    { return RequestUpdateUser }
func (r *ChatRequest) Type() RequestType          { return RequestChat }
func (r *UndoRequest) Type() RequestType          { return RequestUndo }
func (r *ApplySettingsRequest) Type() RequestType { return RequestApplySettings }
func (r *PlayNowRequest) Type() RequestType       { return RequestPlayNow }
func (r *ShuffleRequest) Type() RequestType       { return RequestShuffle }
func (r *PlaybackSpeedRequest) Type() RequestType { return RequestPlaybackSpeed }
func (r *RestoreQueueRequest) Type() RequestType  { return RequestRestoreQueue }

// RequestPermission maps a request type to the grant it needs. Types absent
// from the map are either always allowed (join, leave, update-user) or
// checked field by field during dispatch (promote, undo, apply-settings).
func RequestPermission(t RequestType) (string, bool) {
	perm, ok := requestPermissions[t]
	return perm, ok
}

var requestPermissions = map[RequestType]string{
	RequestPlayback:      "playback.play-pause",
	RequestSkip:          "playback.skip",
	RequestSeek:          "playback.seek",
	RequestAdd:           "manage-queue.add",
	RequestRemove:        "manage-queue.remove",
	RequestOrder:         "manage-queue.order",
	RequestVote:          "manage-queue.vote",
	RequestChat:          "chat",
	RequestPlayNow:       "manage-queue.add",
	RequestShuffle:       "manage-queue.order",
	RequestPlaybackSpeed: "playback.speed",
	RequestRestoreQueue:  "manage-queue.restore",
}

// RoomEvent records an applied request so it can be broadcast and, for some
// types, undone.
type RoomEvent struct {
	RequestType RequestType     `json:"request"`
	User        RoomUserInfo    `json:"user"`
	Additional  json.RawMessage `json:"additional,omitempty"`
}

// requestEnvelope is the wire form of a RoomRequest.
type requestEnvelope struct {
	Type RequestType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalRequest encodes a RoomRequest into its envelope form.
func MarshalRequest(req RoomRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestEnvelope{Type: req.Type(), Data: data})
}

// UnmarshalRequest decodes an envelope back into the concrete request type.
func UnmarshalRequest(raw []byte) (RoomRequest, error) {
	var env requestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode request envelope: %w", err)
	}
	var req RoomRequest
	switch env.Type {
	case RequestJoin:
		req = &JoinRequest{}
	case RequestLeave:
		req = &LeaveRequest{}
	case RequestPlayback:
		req = &PlaybackRequest{}
	case RequestSkip:
		req = &SkipRequest{}
	case RequestSeek:
		req = &SeekRequest{}
	case RequestAdd:
		req = &AddRequest{}
	case RequestRemove:
		req = &RemoveRequest{}
	case RequestOrder:
		req = &OrderRequest{}
	case RequestVote:
		req = &VoteRequest{}
	case RequestPromote:
		req = &PromoteRequest{}
	case RequestUpdateUser:
		req = &UpdateUserRequest{}
	case RequestChat:
		req = &ChatRequest{}
	case RequestUndo:
		req = &UndoRequest{}
	case RequestApplySettings:
		req = &ApplySettingsRequest{}
	case RequestPlayNow:
		req = &PlayNowRequest{}
	case RequestShuffle:
		req = &ShuffleRequest{}
	case RequestPlaybackSpeed:
		req = &PlaybackSpeedRequest{}
	case RequestRestoreQueue:
		req = &RestoreQueueRequest{}
	default:
		return nil, fmt.Errorf("unknown request type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, req); err != nil {
		return nil, fmt.Errorf("failed to decode %s request: %w", env.Type, err)
	}
	return req, nil
}
