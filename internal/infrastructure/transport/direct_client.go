package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 16 * 1024
)

// DirectClient owns a live websocket in this process. Reads run in their own
// goroutine; writes are serialized through a channel so the write pump is the
// only goroutine touching the socket for sends.
type DirectClient struct {
	clientCore

	conn     *websocket.Conn
	observer ports.ClientObserver
	limiter  *rate.Limiter
	log      *zap.SugaredLogger

	sendCh    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

var _ ports.Client = (*DirectClient)(nil)

func NewDirectClient(
	id domain.ClientID,
	room domain.RoomName,
	conn *websocket.Conn,
	tokens ports.TokenStore,
	observer ports.ClientObserver,
	limiter *rate.Limiter,
	log *zap.SugaredLogger,
) *DirectClient {
	c := &DirectClient{
		clientCore: newClientCore(id, room, tokens),
		conn:       conn,
		observer:   observer,
		limiter:    limiter,
		log:        log.With("client", id, "room", room),
		sendCh:     make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
	c.kick = c.Kick
	return c
}

// Run drives the read and write pumps until the socket dies. Always fires
// the disconnect observer exactly once on the way out.
func (c *DirectClient) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
	c.close(websocket.CloseNormalClosure)
	c.observer.OnDisconnect(c)
}

func (c *DirectClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugw("socket read failed", "error", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.log.Warnw("message rate limit exceeded, dropping")
			continue
		}
		c.onData(ctx, data)
	}
}

// onData intercepts auth frames; everything else goes to the observer as a
// validated client message.
func (c *DirectClient) onData(ctx context.Context, data []byte) {
	msg, err := domain.DecodeClientMessage(data)
	if err != nil {
		c.log.Debugw("dropping malformed client message", "error", err)
		return
	}
	if msg.Action == domain.ActionAuth {
		if err := c.Auth(ctx, msg.Token); err != nil {
			c.log.Infow("auth failed", "error", err)
			return
		}
		c.observer.OnAuth(c)
		return
	}
	c.observer.OnMessage(c, msg)
}

func (c *DirectClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debugw("socket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *DirectClient) Send(msg *domain.ServerMessage) error {
	data, err := marshalServerMessage(msg)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

func (c *DirectClient) SendRaw(data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	case <-c.closed:
		return errors.New("client disconnected")
	default:
		// a client that can't drain its buffer gets dropped
		c.close(websocket.CloseGoingAway)
		return errors.New("client send buffer full")
	}
}

// Kick closes the socket with the given close code. Safe to call on an
// already-closed client.
func (c *DirectClient) Kick(code int) error {
	c.close(code)
	return nil
}

func (c *DirectClient) close(code int) {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeTimeout)
		msg := websocket.FormatCloseMessage(code, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	})
}
