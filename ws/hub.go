package ws

import (
	"sync"
	"time"

	"github.com/tripmesh/tripmesh-server/globals"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// PersonalChannel is the per-user delivery channel every authenticated
// connection subscribes to on register. Notifications arrive here no matter
// which room the user is currently viewing.
func PersonalChannel(userId string) string {
	return "user_" + userId
}

// RoomChannel is the per-trip chat channel. Connections subscribe only
// after an explicit join that has passed the membership check.
func RoomChannel(tripId string) string {
	return "trip_" + tripId
}

// Hub maintains the live connections and the channel subscription table.
// There is one hub per server process; channels are logical partitions
// within it. The subscriber sets are process-local, in-memory state and are
// only ever mutated under the hub lock.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// channel id -> subscribed clients
	channels map[string]map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// mutex for manipulating the clients and the subscription table
	sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		channels:   make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribeLocked(client *Client, channel string) {
	subscribers, ok := h.channels[channel]
	if !ok {
		subscribers = make(map[*Client]struct{})
		h.channels[channel] = subscribers
	}
	subscribers[client] = struct{}{}
}

func (h *Hub) unsubscribeAllLocked(client *Client) {
	for channel, subscribers := range h.channels {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Subscribe adds the client to a channel. Room channels are only ever
// subscribed through the session controller, after the membership check.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	h.subscribeLocked(client, channel)
}

// Unsubscribe removes the client from one channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.Lock()
	defer h.Unlock()
	if subscribers, ok := h.channels[channel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}
}

// IsSubscribed reports whether any of the user's connections is on channel.
func (h *Hub) IsSubscribed(userId, channel string) bool {
	h.RLock()
	defer h.RUnlock()
	for client := range h.channels[channel] {
		if client.identity.UserId == userId {
			return true
		}
	}
	return false
}

// SubscriberIds returns the distinct user ids currently on channel.
func (h *Hub) SubscriberIds(channel string) map[string]struct{} {
	h.RLock()
	defer h.RUnlock()
	ids := make(map[string]struct{}, len(h.channels[channel]))
	for client := range h.channels[channel] {
		ids[client.identity.UserId] = struct{}{}
	}
	return ids
}

// Publish delivers an already-encoded event to every connection subscribed
// to the channel. Connections not subscribed (offline, or never joined)
// receive nothing; durability for them is the notification store's job, not
// the hub's.
func (h *Hub) Publish(channel string, data []byte) {
	h.RLock()
	defer h.RUnlock()
	for client := range h.channels[channel] {
		client.Add(1)
		go func(c *Client) {
			defer c.Done()
			c.Send <- data
		}(client)
	}
}

// Run is the main hub event loop handling register and unregister events.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			globals.AppLogger.Debug("register new client", "user", client.identity.UserId)
			h.Lock()
			h.clients[client] = struct{}{}
			h.subscribeLocked(client, PersonalChannel(client.identity.UserId))
			h.Unlock()
			client.Done()

		case client := <-h.Unregister:
			go func() {
				h.RLock()
				if _, ok := h.clients[client]; ok {
					h.RUnlock()
					globals.AppLogger.Debug("unregister client", "user", client.identity.UserId)

					h.Lock()
					delete(h.clients, client)
					h.unsubscribeAllLocked(client)
					if client.conn != nil {
						// probably already closed, just to make sure
						client.conn.Close()
					}
					// wait for all loops and in-flight writes to the Send
					// channel to finish, only then is closing it safe (the
					// write side always holds the client WaitGroup)
					client.Wait()
					close(client.Send)
					h.Unlock()
				} else {
					h.RUnlock()
				}
			}()
		}
	}
}
