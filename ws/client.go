package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/types"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	identity *auth.Identity

	controller *Controller

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write access to Send. If the WaitGroup is done,
	// it is safe to close all channels (all loops are done and there are no more write operations on the channels)
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, controller *Controller, doneChan chan struct{}) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		Send:       make(chan []byte, sendChannelSize),
		identity:   identity,
		controller: controller,
		doneChan:   doneChan,
	}
}

func (c *Client) Identity() *auth.Identity {
	return c.identity
}

// SendEvent enqueues an encoded event for this connection only, provided
// the client is still registered.
func (c *Client) SendEvent(data []byte) {
	c.hub.RLock()
	if _, ok := c.hub.clients[c]; ok {
		c.Send <- data
	}
	c.hub.RUnlock()
}

// SendError delivers an error event to this connection only. Every rejected
// operation ends up here, nothing is silently dropped.
func (c *Client) SendError(message string) {
	data, err := types.NewErrorEvent(message)
	if err != nil {
		globals.AppLogger.Error("could not marshal error event", "error", err)
		return
	}
	c.SendEvent(data)
}

// ReadLoop pumps messages from the websocket connection to the session
// controller.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}

		message := &types.WebsocketMessage{}
		if err := json.Unmarshal(raw, message); err != nil {
			c.SendError("malformed message")
			continue
		}

		switch message.Event {
		case types.EventJoinChat:
			payloadMap := make(map[string]interface{})
			if err := json.Unmarshal(message.Data, &payloadMap); err != nil {
				c.SendError("malformed join payload")
				continue
			}
			payload := types.JoinPayload{}
			if err := mapstructure.WeakDecode(payloadMap, &payload); err != nil {
				c.SendError("malformed join payload")
				continue
			}
			c.controller.JoinRoom(c, payload.TripId)

		case types.EventSendMessage:
			payloadMap := make(map[string]interface{})
			if err := json.Unmarshal(message.Data, &payloadMap); err != nil {
				c.SendError("malformed message payload")
				continue
			}
			payload := types.SendMessagePayload{}
			if err := mapstructure.WeakDecode(payloadMap, &payload); err != nil {
				c.SendError("malformed message payload")
				continue
			}
			c.controller.Send(c, payload)

		default:
			c.SendError("unknown event: " + message.Event)
		}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
