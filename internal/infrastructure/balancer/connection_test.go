package balancer

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"roomcast/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	messages    []*domain.B2MMessage
	gotMessage  chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{gotMessage: make(chan struct{}, 16)}
}

func (o *recordingObserver) OnBalancerConnect(conn *Connection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connects++
}

func (o *recordingObserver) OnBalancerDisconnect(conn *Connection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnects++
}

func (o *recordingObserver) OnBalancerMessage(conn *Connection, msg *domain.B2MMessage) {
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	o.mu.Unlock()
	o.gotMessage <- struct{}{}
}

func (o *recordingObserver) messageCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

// fakeBalancer upgrades inbound connections and pushes canned frames.
type fakeBalancer struct {
	t      *testing.T
	srv    *httptest.Server
	frames chan []byte

	mu     sync.Mutex
	socket *websocket.Conn
}

func newFakeBalancer(t *testing.T) *fakeBalancer {
	fb := &fakeBalancer{t: t, frames: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.socket = socket
		fb.mu.Unlock()
		for frame := range fb.frames {
			if err := socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		close(fb.frames)
		fb.srv.Close()
	})
	return fb
}

func (fb *fakeBalancer) config() Config {
	host, portStr, err := net.SplitHostPort(fb.srv.Listener.Addr().String())
	require.NoError(fb.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(fb.t, err)
	return Config{Host: host, Port: port, Path: "/monolith"}
}

func TestConfigURL(t *testing.T) {
	cfg := Config{Host: "lb1", Port: 8081}
	assert.Equal(t, "ws://lb1:8081/monolith", cfg.URL())

	cfg = Config{Host: "lb2", Port: 9000, Path: "/custom"}
	assert.Equal(t, "ws://lb2:9000/custom", cfg.URL())
}

func TestConnectionSendWhenDisconnected(t *testing.T) {
	obs := newRecordingObserver()
	conn := NewConnection(Config{Host: "nowhere", Port: 1}, obs, zap.NewNop().Sugar())

	err := conn.Send(domain.NewLoadedMessage("foo"))
	assert.Error(t, err)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestConnectionDeliversValidFrames(t *testing.T) {
	fb := newFakeBalancer(t)
	obs := newRecordingObserver()
	conn := NewConnection(fb.config(), obs, zap.NewNop().Sugar())
	require.NoError(t, conn.Connect())
	defer conn.Disconnect()

	fb.frames <- []byte(`{"type":"join","room":"foo","client":"c1","token":"tok"}`)

	select {
	case <-obs.gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balancer message")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.messages, 1)
	assert.Equal(t, domain.B2MJoin, obs.messages[0].Type)
	assert.Equal(t, domain.RoomName("foo"), obs.messages[0].Room)
	assert.Equal(t, 1, obs.connects)
}

func TestConnectionDropsInvalidFrames(t *testing.T) {
	fb := newFakeBalancer(t)
	obs := newRecordingObserver()
	conn := NewConnection(fb.config(), obs, zap.NewNop().Sugar())
	require.NoError(t, conn.Connect())
	defer conn.Disconnect()

	// garbage and structurally incomplete frames are dropped silently
	fb.frames <- []byte(`not json`)
	fb.frames <- []byte(`{"type":"join","room":"foo"}`)
	fb.frames <- []byte(`{"type":"leave","client":"c1"}`)

	select {
	case <-obs.gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balancer message")
	}

	require.Equal(t, 1, obs.messageCount())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, domain.B2MLeave, obs.messages[0].Type)
}

func TestConnectionSendRoundTrip(t *testing.T) {
	fb := newFakeBalancer(t)
	obs := newRecordingObserver()
	conn := NewConnection(fb.config(), obs, zap.NewNop().Sugar())
	require.NoError(t, conn.Connect())
	defer conn.Disconnect()

	require.NoError(t, conn.Send(domain.NewLoadedMessage("foo")))

	deadline := time.Now().Add(2 * time.Second)
	for {
		fb.mu.Lock()
		socket := fb.socket
		fb.mu.Unlock()
		if socket != nil {
			require.NoError(t, socket.SetReadDeadline(deadline))
			_, data, err := socket.ReadMessage()
			require.NoError(t, err)
			assert.JSONEq(t, `{"type":"loaded","room":"foo"}`, string(data))
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("server never saw the connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectionDisconnectIsIntentional(t *testing.T) {
	fb := newFakeBalancer(t)
	obs := newRecordingObserver()
	conn := NewConnection(fb.config(), obs, zap.NewNop().Sugar())
	require.NoError(t, conn.Connect())

	conn.Disconnect()
	assert.True(t, conn.Intentional())
	assert.Equal(t, StateDisconnected, conn.State())

	// second connect after an intentional teardown is allowed
	require.NoError(t, conn.Connect())
	conn.Disconnect()
}

func TestConnectionConnectTwiceFails(t *testing.T) {
	fb := newFakeBalancer(t)
	obs := newRecordingObserver()
	conn := NewConnection(fb.config(), obs, zap.NewNop().Sugar())
	require.NoError(t, conn.Connect())
	defer conn.Disconnect()

	assert.Error(t, conn.Connect())
}
