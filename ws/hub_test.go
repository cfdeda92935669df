package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tripmesh/tripmesh-server/auth"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	return hub
}

// registerClient mirrors the websocket handler: announce the pending
// registration, then wait until the hub has processed it.
func registerClient(t *testing.T, hub *Hub, userId string) *Client {
	t.Helper()
	identity := &auth.Identity{UserId: userId, Username: userId}
	c := NewClient(hub, nil, identity, nil, make(chan struct{}))
	c.Add(1)
	hub.Register <- c
	c.Wait()
	return c
}

func receiveEvent(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event: %s", string(data))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterSubscribesPersonalChannel(t *testing.T) {
	hub := newRunningHub(t)
	c := registerClient(t, hub, "u1")

	assert.Equal(t, 1, hub.NoClients())
	assert.True(t, hub.IsSubscribed("u1", PersonalChannel("u1")))
	assert.False(t, hub.IsSubscribed("u1", RoomChannel("trip1")))

	hub.Publish(PersonalChannel("u1"), []byte(`{"event":"ping"}`))
	data := receiveEvent(t, c)
	assert.JSONEq(t, `{"event":"ping"}`, string(data))
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	hub := newRunningHub(t)
	inRoom := registerClient(t, hub, "u1")
	outside := registerClient(t, hub, "u2")

	hub.Subscribe(inRoom, RoomChannel("trip1"))

	hub.Publish(RoomChannel("trip1"), []byte(`{"event":"x"}`))
	receiveEvent(t, inRoom)
	assertNoEvent(t, outside)
}

func TestSubscribeRequiresRegistration(t *testing.T) {
	hub := newRunningHub(t)
	identity := &auth.Identity{UserId: "ghost"}
	c := NewClient(hub, nil, identity, nil, make(chan struct{}))

	hub.Subscribe(c, RoomChannel("trip1"))
	assert.False(t, hub.IsSubscribed("ghost", RoomChannel("trip1")))
}

func TestSubscriberIds(t *testing.T) {
	hub := newRunningHub(t)
	a := registerClient(t, hub, "u1")
	b := registerClient(t, hub, "u2")
	registerClient(t, hub, "u3")

	hub.Subscribe(a, RoomChannel("trip1"))
	hub.Subscribe(b, RoomChannel("trip1"))

	ids := hub.SubscriberIds(RoomChannel("trip1"))
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "u1")
	assert.Contains(t, ids, "u2")
	assert.NotContains(t, ids, "u3")
}

func TestUnregisterRemovesSubscriptions(t *testing.T) {
	hub := newRunningHub(t)
	c := registerClient(t, hub, "u1")
	hub.Subscribe(c, RoomChannel("trip1"))

	hub.Unregister <- c

	// the unregister path runs asynchronously and closes Send when done
	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
	assert.Equal(t, 0, hub.NoClients())
	assert.False(t, hub.IsSubscribed("u1", PersonalChannel("u1")))
	assert.False(t, hub.IsSubscribed("u1", RoomChannel("trip1")))
}

func TestSendEventDroppedAfterUnregister(t *testing.T) {
	hub := newRunningHub(t)
	c := registerClient(t, hub, "u1")
	hub.Unregister <- c
	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}

	// must not panic on the closed channel
	c.SendEvent([]byte(`{"event":"late"}`))
}

func TestErrorEventShape(t *testing.T) {
	hub := newRunningHub(t)
	c := registerClient(t, hub, "u1")

	c.SendError("boom")
	data := receiveEvent(t, c)

	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "error", envelope.Event)
	assert.JSONEq(t, `{"message":"boom"}`, string(envelope.Data))
}
