package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

// getMessageHistory returns the trip's messages oldest first. The membership
// check runs on every call; fetching history is gated exactly like joining
// the room.
func (s *Server) getMessageHistory(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	tripId := mux.Vars(r)["tripId"]

	res, err := s.authority.Check(r.Context(), identity.UserId, tripId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("membership check failed", "error", err, "trip", tripId)
		writeMessage(w, http.StatusInternalServerError, "could not verify trip membership")
		return
	}
	if !res.Allowed {
		writeMessage(w, http.StatusForbidden, accessDeniedMessage)
		return
	}

	messages, err := s.store.GetMessageHistory(tripId)
	if err != nil {
		globals.AppLogger.Error("could not load message history", "error", err, "trip", tripId)
		writeMessage(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
