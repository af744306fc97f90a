package transport

import (
	"errors"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/infrastructure/balancer"
)

// ErrRawSendUnsupported: raw bytes never flow to a balancer-held client,
// only structured envelopes do.
var ErrRawSendUnsupported = errors.New("balancer clients only accept structured messages")

// BalancerClient represents a viewer whose socket lives in another process,
// reached through a balancer link. Sends become room_msg envelopes addressed
// to (room, client); kicks become kick envelopes.
type BalancerClient struct {
	clientCore
	conn *balancer.Connection
}

var _ ports.Client = (*BalancerClient)(nil)

func NewBalancerClient(
	id domain.ClientID,
	room domain.RoomName,
	conn *balancer.Connection,
	tokens ports.TokenStore,
) *BalancerClient {
	c := &BalancerClient{
		clientCore: newClientCore(id, room, tokens),
		conn:       conn,
	}
	c.kick = c.Kick
	return c
}

// Connection returns the balancer link this client is reached through.
func (c *BalancerClient) Connection() *balancer.Connection { return c.conn }

func (c *BalancerClient) Send(msg *domain.ServerMessage) error {
	payload, err := marshalServerMessage(msg)
	if err != nil {
		return err
	}
	return c.conn.Send(domain.NewRoomMessage(c.room, c.id, payload))
}

func (c *BalancerClient) SendRaw(data []byte) error {
	return ErrRawSendUnsupported
}

// Kick tells the balancer to close the viewer's socket; nothing closes
// locally.
func (c *BalancerClient) Kick(code int) error {
	return c.conn.Send(domain.NewKickMessage(c.id, code))
}
