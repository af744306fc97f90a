package balancer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/pkg/backoff"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

func (c Config) URL() string {
	path := c.Path
	if path == "" {
		path = "/monolith"
	}
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", c.Host, c.Port), Path: path}
	return u.String()
}

// Observer receives link lifecycle events and validated inbound messages.
type Observer interface {
	OnBalancerConnect(conn *Connection)
	OnBalancerDisconnect(conn *Connection)
	OnBalancerMessage(conn *Connection, msg *domain.B2MMessage)
}

// Connection is the state machine for one balancer link. On abnormal close
// while reconnecting it schedules a retry with exponential backoff; only an
// explicit Disconnect prevents auto-reconnection.
type Connection struct {
	id       string
	cfg      Config
	schedule backoff.Schedule
	observer Observer
	log      *zap.SugaredLogger

	writeMu           sync.Mutex
	mu                sync.Mutex
	socket            *websocket.Conn
	state             State
	reconnecting      bool
	reconnectAttempts int
	intentional       bool
	retryTimer        *time.Timer
}

func NewConnection(cfg Config, observer Observer, log *zap.SugaredLogger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:       id,
		cfg:      cfg,
		schedule: backoff.DefaultSchedule(),
		observer: observer,
		log:      log.With("balancer", id, "addr", cfg.URL()),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempts
}

// Connect opens the link. Fails if a socket already exists.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.socket != nil {
		c.mu.Unlock()
		return fmt.Errorf("balancer connection already open")
	}
	c.state = StateConnecting
	c.intentional = false
	c.mu.Unlock()

	socket, _, err := websocket.DefaultDialer.Dial(c.cfg.URL(), nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		reconnecting := c.reconnecting
		c.mu.Unlock()
		if reconnecting {
			c.scheduleRetry()
		}
		return fmt.Errorf("failed to dial balancer: %w", err)
	}

	c.mu.Lock()
	c.socket = socket
	c.state = StateConnected
	c.reconnecting = false
	c.reconnectAttempts = 0
	c.mu.Unlock()

	c.log.Infow("balancer link established")
	c.observer.OnBalancerConnect(c)
	go c.readLoop(socket)
	return nil
}

// Reconnect force-closes any existing socket and dials again, counting the
// attempt for backoff.
func (c *Connection) Reconnect() {
	c.mu.Lock()
	if c.socket != nil {
		_ = c.socket.Close()
		c.socket = nil
	}
	c.reconnecting = true
	c.reconnectAttempts++
	c.cancelRetryLocked()
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		c.log.Warnw("balancer reconnect failed", "attempts", c.ReconnectAttempts(), "error", err)
	}
}

// Disconnect tears the link down for good: cancels any pending retry and
// clears the backoff state so nothing reconnects it.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.reconnecting = false
	c.reconnectAttempts = 0
	c.intentional = true
	c.cancelRetryLocked()
	socket := c.socket
	c.socket = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if socket != nil {
		_ = socket.Close()
	}
}

// Intentional reports whether the last disconnect was requested rather than
// a link failure.
func (c *Connection) Intentional() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentional
}

func (c *Connection) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Connection) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reconnecting {
		return
	}
	delay := c.schedule.Delay(c.reconnectAttempts)
	c.cancelRetryLocked()
	c.retryTimer = time.AfterFunc(delay, c.Reconnect)
	c.log.Infow("balancer retry scheduled", "attempts", c.reconnectAttempts, "delay", delay)
}

func (c *Connection) readLoop(socket *websocket.Conn) {
	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			c.handleClose(socket)
			return
		}
		msg, err := domain.DecodeB2M(data)
		if err != nil {
			// invalid frames are dropped, never propagated
			c.log.Warnw("dropping invalid balancer message", "error", err)
			continue
		}
		c.observer.OnBalancerMessage(c, msg)
	}
}

func (c *Connection) handleClose(socket *websocket.Conn) {
	c.mu.Lock()
	if c.socket != socket {
		// a newer socket replaced this one, nothing to do
		c.mu.Unlock()
		return
	}
	c.socket = nil
	c.state = StateDisconnected
	reconnecting := c.reconnecting
	c.mu.Unlock()

	c.log.Infow("balancer link lost")
	c.observer.OnBalancerDisconnect(c)
	if reconnecting {
		c.scheduleRetry()
	}
}

// Send serializes and writes an M2B message. Fails when not connected.
func (c *Connection) Send(msg *domain.M2BMessage) error {
	c.mu.Lock()
	socket := c.socket
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || socket == nil {
		return fmt.Errorf("balancer %s not connected", c.id)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize balancer message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := socket.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write to balancer: %w", err)
	}
	return nil
}
