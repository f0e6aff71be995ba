package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(steamID, id string, buffer int) *Client {
	return &Client{send: make(chan []byte, buffer), steamID: steamID, id: id}
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestPublishReachesOnlyUsersClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	alice1 := testClient("alice", "a1", 8)
	alice2 := testClient("alice", "a2", 8)
	bob := testClient("bob", "b1", 8)
	h.register <- alice1
	h.register <- alice2
	h.register <- bob

	h.Publish("alice", map[string]string{"type": "progress"})

	var msg map[string]string
	require.NoError(t, json.Unmarshal(recv(t, alice1), &msg))
	assert.Equal(t, "progress", msg["type"])
	require.NoError(t, json.Unmarshal(recv(t, alice2), &msg))
	assert.Equal(t, "progress", msg["type"])

	select {
	case <-bob.send:
		t.Fatal("event leaked to another user's connection")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishPreservesOrderPerClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := testClient("alice", "a1", 16)
	h.register <- c

	for i := 0; i < 10; i++ {
		h.Publish("alice", map[string]int{"seq": i})
	}

	for i := 0; i < 10; i++ {
		var msg map[string]int
		require.NoError(t, json.Unmarshal(recv(t, c), &msg))
		assert.Equal(t, i, msg["seq"])
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub()
	go h.Run()

	slow := testClient("alice", "a1", 1)
	fast := testClient("alice", "a2", 16)
	h.register <- slow
	h.register <- fast

	// The second publish overflows the slow client's buffer and evicts it;
	// the fast client keeps receiving.
	h.Publish("alice", map[string]int{"seq": 0})
	h.Publish("alice", map[string]int{"seq": 1})
	h.Publish("alice", map[string]int{"seq": 2})

	for i := 0; i < 3; i++ {
		recv(t, fast)
	}

	// The slow client's channel was closed on eviction.
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "evicted client's send channel should be closed")
}

func TestUnregisterRemovesClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := testClient("alice", "a1", 8)
	h.register <- c
	h.unregister <- c

	_, open := <-c.send
	assert.False(t, open)

	// Publishing to a user with no connections must not block or panic.
	h.Publish("alice", map[string]string{"type": "noop"})
}
