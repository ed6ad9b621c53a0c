package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// dialHub connects a test websocket client to a hub registered under userID.
func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(userID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, userID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount(userID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %s never reached %d connections", userID, want)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestPublishReachesOwnerOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice := dialHub(t, hub, "alice")
	bob := dialHub(t, hub, "bob")
	waitForConnections(t, hub, "alice", 1)
	waitForConnections(t, hub, "bob", 1)

	hub.Publish("alice", Event{
		Type:  EventStatusChanged,
		JobID: "job-1",
		Data:  map[string]interface{}{"status": "processing"},
	})

	event := readEvent(t, alice)
	assert.Equal(t, EventStatusChanged, event.Type)
	assert.Equal(t, "job-1", event.JobID)
	assert.Equal(t, "processing", event.Data["status"])

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var other Event
	assert.Error(t, bob.ReadJSON(&other), "bob must not see alice's events")
}

func TestPublishFansOutToAllUserConnections(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	first := dialHub(t, hub, "alice")
	second := dialHub(t, hub, "alice")
	waitForConnections(t, hub, "alice", 2)

	hub.Publish("alice", Event{Type: EventProgressUpdated, JobID: "job-2", Data: map[string]interface{}{"processed": float64(10)}})

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		assert.Equal(t, EventProgressUpdated, event.Type)
		assert.Equal(t, float64(10), event.Data["processed"])
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice := dialHub(t, hub, "alice")
	bob := dialHub(t, hub, "bob")
	waitForConnections(t, hub, "alice", 1)
	waitForConnections(t, hub, "bob", 1)

	hub.Broadcast(Event{Type: EventSystemAlert, Data: map[string]interface{}{"message": "erp circuit open"}})

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		assert.Equal(t, EventSystemAlert, event.Type)
	}
}

func TestDisconnectCleansUp(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialHub(t, hub, "alice")
	waitForConnections(t, hub, "alice", 1)

	conn.Close()
	waitForConnections(t, hub, "alice", 0)

	// Publishing to a user with no connections is a no-op.
	hub.Publish("alice", Event{Type: EventStatusChanged})
}
