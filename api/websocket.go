package api

import (
	"net/http"

	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/types"
	"github.com/tripmesh/tripmesh-server/ws"
)

// websocketHandler upgrades the connection and runs it until the client
// disconnects. The identity is verified before the upgrade; an anonymous
// request never reaches the hub.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	c := ws.NewClient(s.hub, conn, identity, s.controller, doneChan)

	// The register channel is read asynchronously, wait until the hub has
	// actually added the client before sending anything.
	c.Add(1)
	s.hub.Register <- c
	c.Wait()
	defer func() {
		s.hub.Unregister <- c
	}()

	c.Add(2)
	go c.ReadLoop()
	go c.WriteLoop()

	if data, err := types.NewConnectedEvent(identity.UserId, identity.Username); err == nil {
		c.SendEvent(data)
	}
	globals.AppLogger.Debug("client connected", "user", identity.UserId)

	<-doneChan
	globals.AppLogger.Debug("connection closed", "user", identity.UserId)
}
