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

// getNotifications returns the newest page of the caller's notifications.
func (s *Server) getNotifications(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	notifications, err := s.store.GetNotifications(identity.UserId, s.cfg.NotificationPageSize())
	if err != nil {
		globals.AppLogger.Error("could not load notifications", "error", err, "user", identity.UserId)
		writeMessage(w, http.StatusInternalServerError, "could not load notifications")
		return
	}
	if notifications == nil {
		notifications = []*types.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// markNotificationRead marks a single notification as read. The first
// acknowledgement of a chat_message notification starts the retention
// countdown on the referenced message; repeating the call changes nothing.
func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	notification := &types.Notification{Id: id}
	if err := s.store.GetNotification(notification); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Notification not found")
			return
		}
		globals.AppLogger.Error("could not load notification", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "could not load notification")
		return
	}
	if notification.UserId != identity.UserId {
		writeMessage(w, http.StatusForbidden, "not your notification")
		return
	}

	notification, changed, err := s.store.MarkNotificationRead(id)
	if err != nil {
		globals.AppLogger.Error("could not mark notification read", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "could not update notification")
		return
	}
	if changed && notification.Type == types.NotificationTypeChatMessage && notification.RelatedId != "" {
		if err := s.store.ScheduleMessageExpiry(notification.RelatedId, s.cfg.MessageTTL()); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			globals.AppLogger.Error("could not schedule message expiry", "error", err, "message", notification.RelatedId)
		}
	}
	writeJSON(w, http.StatusOK, notification)
}

// markAllNotificationsRead flips every unread notification of the caller.
// Unlike the single-notification variant it does not touch message
// retention, a bulk clear is not an acknowledgement of any one message.
func (s *Server) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	count, err := s.store.MarkAllNotificationsRead(identity.UserId)
	if err != nil {
		globals.AppLogger.Error("could not mark notifications read", "error", err, "user", identity.UserId)
		writeMessage(w, http.StatusInternalServerError, "could not update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": count})
}
