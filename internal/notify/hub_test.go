package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func TestEventWireFormat(t *testing.T) {
	event, err := NewEvent("task", ActionCreate, map[string]string{"id": "t1", "title": "hello"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "task_updated", event.Name())
	assert.NotEqual(t, "", event.ID)

	data, err := json.Marshal(event)
	assert.Equal(t, nil, err)

	// The payload rides under a key named for the kind.
	var wire map[string]json.RawMessage
	assert.Equal(t, nil, json.Unmarshal(data, &wire))
	if _, ok := wire["task"]; !ok {
		t.Fatalf("wire message missing kind key: %s", data)
	}

	var decoded Event
	assert.Equal(t, nil, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "task", decoded.Kind)
	assert.Equal(t, ActionCreate, decoded.Action)

	var payload map[string]string
	assert.Equal(t, nil, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "hello", payload["title"])
}

func TestEventDeleteCarriesID(t *testing.T) {
	event, err := NewEvent("habit", ActionDelete, "h42")
	assert.Equal(t, nil, err)

	data, _ := json.Marshal(event)
	var decoded Event
	assert.Equal(t, nil, json.Unmarshal(data, &decoded))

	var id string
	assert.Equal(t, nil, json.Unmarshal(decoded.Payload, &id))
	assert.Equal(t, "h42", id)
}

func TestEventRejectsBadName(t *testing.T) {
	var decoded Event
	err := json.Unmarshal([]byte(`{"event":"ping","action":"create"}`), &decoded)
	assert.NotEqual(t, nil, err)
}

// dialTestConn connects a websocket for user and returns a receive channel.
func dialTestConn(t *testing.T, serverURL, user string) (*websocket.Conn, chan Event) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}

	received := make(chan Event, 8)
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			var event Event
			if json.Unmarshal(msg, &event) == nil {
				received <- event
			}
		}
	}()
	return ws, received
}

func expectEvent(t *testing.T, ch chan Event, kind, action string) {
	t.Helper()
	select {
	case event := <-ch:
		assert.Equal(t, kind, event.Kind)
		assert.Equal(t, action, event.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func expectSilence(t *testing.T, ch chan Event) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %s for other user", event.Name())
	case <-time.After(150 * time.Millisecond):
	}
}

func TestFanOutIsPerUser(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	defer server.Close()

	aliceA, receivedA := dialTestConn(t, server.URL, "alice")
	defer aliceA.Close()
	aliceB, receivedB := dialTestConn(t, server.URL, "alice")
	defer aliceB.Close()
	bob, receivedBob := dialTestConn(t, server.URL, "bob")
	defer bob.Close()

	waitForConns(t, hub, "alice", 2)
	waitForConns(t, hub, "bob", 1)

	event, err := NewEvent("task", ActionUpdate, map[string]string{"id": "t1"})
	assert.Equal(t, nil, err)
	hub.Publish("alice", event)

	// Both of alice's sessions get it, including the one that caused it.
	expectEvent(t, receivedA, "task", ActionUpdate)
	expectEvent(t, receivedB, "task", ActionUpdate)
	expectSilence(t, receivedBob)
}

func TestPublishToEmptyGroupDrops(t *testing.T) {
	hub := NewHub()
	event, err := NewEvent("task", ActionCreate, map[string]string{})
	assert.Equal(t, nil, err)
	hub.Publish("nobody", event) // must not panic or block
	assert.Equal(t, 0, hub.Connections("nobody"))
}

func TestDisconnectLeavesGroup(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "alice")
	}))
	defer server.Close()

	ws, _ := dialTestConn(t, server.URL, "alice")
	waitForConns(t, hub, "alice", 1)

	ws.Close()
	waitForConns(t, hub, "alice", 0)
}

func waitForConns(t *testing.T, hub *Hub, user string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Connections(user) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s has %d connections, want %d", user, hub.Connections(user), want)
}
