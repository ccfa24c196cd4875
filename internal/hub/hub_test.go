package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/Loonyc-c/flint-sub001/internal/event"
	"github.com/Loonyc-c/flint-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init(&logger.Config{Level: "error", Format: "json"})
	os.Exit(m.Run())
}

// testServer serves the hub behind a stub auth middleware that trusts the
// user id from a header
func testServer(h *Hub) *httptest.Server {
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		userID, err := uuid.Parse(c.GetHeader("X-Test-User"))
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("user_id", userID)
		h.ServeWS(c)
	})
	return httptest.NewServer(router)
}

func dial(t *testing.T, server *httptest.Server, userID uuid.UUID) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Origin", "http://localhost:3000")
	header.Set("X-Test-User", userID.String())

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	assert.NoError(t, err)
	return conn
}

func TestSendReachesConnectedUser(t *testing.T) {
	h := NewHub(nil)
	server := testServer(h)
	defer server.Close()

	userID := uuid.New()
	conn := dial(t, server, userID)
	defer conn.Close()

	assert.Eventually(t, func() bool { return h.IsConnected(userID) },
		time.Second, 5*time.Millisecond)

	h.Send(userID, event.Event{Type: event.StagePrompt})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	assert.Contains(t, string(data), event.StagePrompt)
}

func TestSendToOfflineUserIsDropped(t *testing.T) {
	h := NewHub(nil)

	// Must not panic or block
	h.Send(uuid.New(), event.Event{Type: event.StagePrompt})
	assert.Equal(t, 0, h.ConnectionCount())
}

func TestNewConnectionReplacesOld(t *testing.T) {
	h := NewHub(nil)
	server := testServer(h)
	defer server.Close()

	userID := uuid.New()

	first := dial(t, server, userID)
	defer first.Close()
	assert.Eventually(t, func() bool { return h.IsConnected(userID) },
		time.Second, 5*time.Millisecond)

	second := dial(t, server, userID)
	defer second.Close()

	// The first connection is force-closed with a policy violation
	first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
	if closeErr, ok := err.(*websocket.CloseError); ok {
		assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
		assert.Equal(t, CloseReasonSessionReplaced, closeErr.Text)
	}

	// Events flow to the replacement
	assert.Eventually(t, func() bool { return h.IsConnected(userID) },
		time.Second, 5*time.Millisecond)
	h.Send(userID, event.Event{Type: event.MatchFound})

	second.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := second.ReadMessage()
	assert.NoError(t, err)
	assert.Contains(t, string(data), event.MatchFound)
}

func TestKickedConnectionDoesNotFireDisconnect(t *testing.T) {
	h := NewHub(nil)

	var mu sync.Mutex
	disconnects := 0
	h.SetCallbacks(nil, func(userID uuid.UUID) {
		mu.Lock()
		disconnects++
		mu.Unlock()
	})

	server := testServer(h)
	defer server.Close()

	userID := uuid.New()
	first := dial(t, server, userID)
	defer first.Close()
	assert.Eventually(t, func() bool { return h.IsConnected(userID) },
		time.Second, 5*time.Millisecond)

	second := dial(t, server, userID)

	// The kicked connection unregisters without firing the callback; only
	// closing the current connection does
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, disconnects)
	mu.Unlock()

	second.Close()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return disconnects == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchReceivesInboundEvents(t *testing.T) {
	h := NewHub(nil)

	type received struct {
		userID    uuid.UUID
		eventType string
	}
	got := make(chan received, 1)
	h.SetDispatch(func(client *Client, eventType string, payload json.RawMessage) {
		got <- received{client.UserID(), eventType}
	})

	server := testServer(h)
	defer server.Close()

	userID := uuid.New()
	conn := dial(t, server, userID)
	defer conn.Close()

	err := conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"join-queue","payload":{}}`))
	assert.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, userID, msg.userID)
		assert.Equal(t, event.JoinQueue, msg.eventType)
	case <-time.After(time.Second):
		t.Fatal("dispatch was not invoked")
	}
}

func TestBroadcastReachesAllUsers(t *testing.T) {
	h := NewHub(nil)
	server := testServer(h)
	defer server.Close()

	userA := uuid.New()
	userB := uuid.New()
	connA := dial(t, server, userA)
	defer connA.Close()
	connB := dial(t, server, userB)
	defer connB.Close()

	assert.Eventually(t, func() bool { return h.ConnectionCount() == 2 },
		time.Second, 5*time.Millisecond)

	h.Broadcast(event.Event{Type: event.UserBusyStateChanged})

	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		assert.NoError(t, err)
		assert.Contains(t, string(data), event.UserBusyStateChanged)
	}
}
