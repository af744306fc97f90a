package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
)

// clientCore carries the state shared by both client transports: identity,
// room, auth handshake. The concrete transports provide sendRaw and kick.
type clientCore struct {
	id     domain.ClientID
	room   domain.RoomName
	tokens ports.TokenStore

	mu      sync.RWMutex
	token   string
	session *domain.SessionInfo
	status  domain.JoinStatus

	kick func(code int) error
}

func newClientCore(id domain.ClientID, room domain.RoomName, tokens ports.TokenStore) clientCore {
	return clientCore{
		id:     id,
		room:   room,
		tokens: tokens,
		status: domain.JoinStatusWaitingForAuth,
	}
}

func (c *clientCore) ID() domain.ClientID   { return c.id }
func (c *clientCore) Room() domain.RoomName { return c.room }

func (c *clientCore) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *clientCore) Session() *domain.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *clientCore) JoinStatus() domain.JoinStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Auth resolves the token to a session. An empty or unknown token kicks the
// client with the missing-token close code.
func (c *clientCore) Auth(ctx context.Context, token string) error {
	if token == "" {
		_ = c.kick(domain.CloseCodeMissingToken)
		return domain.ErrMissingToken
	}
	session, err := c.tokens.GetSessionInfo(ctx, token)
	if err != nil {
		_ = c.kick(domain.CloseCodeMissingToken)
		return fmt.Errorf("session lookup failed: %w", err)
	}
	c.mu.Lock()
	c.token = token
	c.session = session
	c.status = domain.JoinStatusJoined
	c.mu.Unlock()
	return nil
}

// ClientInfo derives the identity the balancer and peers see. Before auth it
// is just the id.
func (c *clientCore) ClientInfo() domain.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := domain.ClientInfo{ID: c.id}
	if c.session == nil {
		return info
	}
	if c.session.IsLoggedIn {
		info.UserID = c.session.UserID
		info.Username = c.session.Username
	} else {
		info.Username = c.session.Username
	}
	return info
}

func marshalServerMessage(msg *domain.ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize server message: %w", err)
	}
	return data, nil
}
