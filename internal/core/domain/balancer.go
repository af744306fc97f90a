package domain

import (
	"encoding/json"
	"fmt"
)

// Balancer protocol. B2M messages flow balancer to monolith, M2B the other
// way. The B2M set is validated structurally on receipt; anything that does
// not match a known variant is dropped.

type B2MType string

const (
	B2MJoin      B2MType = "join"
	B2MLeave     B2MType = "leave"
	B2MClientMsg B2MType = "client_msg"
)

// B2MMessage is the decoded form of a balancer-to-monolith frame.
type B2MMessage struct {
	Type     B2MType         `json:"type"`
	Room     RoomName        `json:"room,omitempty"`
	Client   ClientID        `json:"client,omitempty"`
	Token    string          `json:"token,omitempty"`
	ClientID ClientID        `json:"client_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// DecodeB2M parses and structurally validates a balancer frame. A non-nil
// error means the frame must be logged and dropped.
func DecodeB2M(raw []byte) (*B2MMessage, error) {
	var msg B2MMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unparseable balancer message: %w", err)
	}
	switch msg.Type {
	case B2MJoin:
		if msg.Room == "" || msg.Client == "" {
			return nil, fmt.Errorf("join message missing room or client")
		}
	case B2MLeave:
		if msg.Client == "" {
			return nil, fmt.Errorf("leave message missing client")
		}
	case B2MClientMsg:
		if msg.ClientID == "" {
			return nil, fmt.Errorf("client_msg message missing client_id")
		}
		var payload map[string]any
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, fmt.Errorf("client_msg payload is not an object: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown balancer message type %q", msg.Type)
	}
	return &msg, nil
}

type M2BType string

const (
	M2BLoaded   M2BType = "loaded"
	M2BUnloaded M2BType = "unloaded"
	M2BGossip   M2BType = "gossip"
	M2BRoomMsg  M2BType = "room_msg"
	M2BKick     M2BType = "kick"
)

// GossipRoom is the per-room entry in a gossip summary.
type GossipRoom struct {
	Name     RoomName `json:"name"`
	Users    int      `json:"users"`
	IsLoaded bool     `json:"isLoaded"`
}

// M2BMessage is a monolith-to-balancer frame.
type M2BMessage struct {
	Type     M2BType         `json:"type"`
	Room     RoomName        `json:"room,omitempty"`
	Rooms    []GossipRoom    `json:"rooms,omitempty"`
	ClientID ClientID        `json:"client_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Reason   int             `json:"reason,omitempty"`
}

func NewLoadedMessage(room RoomName) *M2BMessage {
	return &M2BMessage{Type: M2BLoaded, Room: room}
}

func NewUnloadedMessage(room RoomName) *M2BMessage {
	return &M2BMessage{Type: M2BUnloaded, Room: room}
}

func NewGossipMessage(rooms []GossipRoom) *M2BMessage {
	return &M2BMessage{Type: M2BGossip, Rooms: rooms}
}

// NewRoomMessage addresses a payload to one client, or to every client in the
// room when clientID is empty.
func NewRoomMessage(room RoomName, clientID ClientID, payload json.RawMessage) *M2BMessage {
	return &M2BMessage{Type: M2BRoomMsg, Room: room, ClientID: clientID, Payload: payload}
}

func NewKickMessage(clientID ClientID, reason int) *M2BMessage {
	return &M2BMessage{Type: M2BKick, ClientID: clientID, Reason: reason}
}
