package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/membership"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

const (
	membershipTimeout = 5 * time.Second

	accessDeniedMessage = "You are not an approved member of this trip."
)

// Controller orchestrates room joins and the send pipeline. The ordering
// rules live here: membership before anything else, persistence before
// broadcast.
type Controller struct {
	hub       *Hub
	store     persistence.Store
	authority *membership.Authority
	notifier  *Notifier
	validate  *validator.Validate
}

func NewController(hub *Hub, store persistence.Store, authority *membership.Authority) *Controller {
	return &Controller{
		hub:       hub,
		store:     store,
		authority: authority,
		notifier:  NewNotifier(hub, store),
		validate:  validator.New(),
	}
}

// checkMembership runs the membership check bounded by a timeout so that an
// unavailable store cannot leave a connection in limbo.
func (ctrl *Controller) checkMembership(userId, tripId string) (membership.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), membershipTimeout)
	defer cancel()
	type outcome struct {
		res membership.Result
		err error
	}
	resChan := make(chan outcome, 1)
	go func() {
		res, err := ctrl.authority.Check(ctx, userId, tripId)
		resChan <- outcome{res: res, err: err}
	}()
	select {
	case <-ctx.Done():
		return membership.Result{}, ctx.Err()
	case out := <-resChan:
		return out.res, out.err
	}
}

// JoinRoom subscribes the connection to the trip's room channel after a
// fresh membership check. A failed check changes no state and is reported
// to this connection only. The tripId comes straight from the client and is
// never trusted.
func (ctrl *Controller) JoinRoom(c *Client, tripId string) {
	if err := ctrl.validate.Struct(&types.JoinPayload{TripId: tripId}); err != nil {
		c.SendError("tripId is required")
		return
	}
	res, err := ctrl.checkMembership(c.identity.UserId, tripId)
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			c.SendError("Trip not found")
		case errors.Is(err, context.DeadlineExceeded):
			c.SendError("membership check timed out")
		default:
			globals.AppLogger.Error("membership check failed", "error", err, "trip", tripId)
			c.SendError("could not verify trip membership")
		}
		return
	}
	if !res.Allowed {
		c.SendError(accessDeniedMessage)
		return
	}
	channel := RoomChannel(tripId)
	ctrl.hub.Subscribe(c, channel)
	data, err := types.NewRoomJoinedEvent(channel)
	if err != nil {
		globals.AppLogger.Error("could not marshal join event", "error", err)
		return
	}
	c.SendEvent(data)
	globals.AppLogger.Debug("client joined room", "user", c.identity.UserId, "room", channel, "role", res.Role)
}

// Send runs the message pipeline:
//  1. re-check membership (a revoked member may still hold a stale room
//     subscription from before the revoke)
//  2. validate the content shape
//  3. persist
//  4. broadcast to the room channel
//  5. notify approved members who are not in the room
//
// Broadcast strictly follows persistence: a client must never see a message
// that a later history fetch would not also return.
func (ctrl *Controller) Send(c *Client, payload types.SendMessagePayload) {
	if err := ctrl.validate.Struct(&payload); err != nil {
		c.SendError("invalid message payload")
		return
	}
	res, err := ctrl.checkMembership(c.identity.UserId, payload.TripId)
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			c.SendError("Trip not found")
		case errors.Is(err, context.DeadlineExceeded):
			c.SendError("membership check timed out")
		default:
			globals.AppLogger.Error("membership check failed", "error", err, "trip", payload.TripId)
			c.SendError("could not verify trip membership")
		}
		return
	}
	if !res.Allowed {
		c.SendError(accessDeniedMessage)
		return
	}

	msg := &types.Message{
		TripId:   payload.TripId,
		UserId:   c.identity.UserId,
		Username: c.identity.Username,
		Body:     payload.Message,
		Kind:     payload.Kind,
		ImageUrl: payload.ImageUrl,
	}
	if err := msg.Validate(); err != nil {
		c.SendError(err.Error())
		return
	}

	if err := ctrl.store.AppendMessage(msg); err != nil {
		if errors.Is(err, types.ErrEmptyContent) {
			c.SendError(err.Error())
			return
		}
		globals.AppLogger.Error("could not store message", "error", err, "trip", msg.TripId)
		c.SendError("could not store message")
		return
	}

	data, err := types.NewMessageEvent(msg)
	if err != nil {
		globals.AppLogger.Error("could not marshal message event", "error", err)
		return
	}
	ctrl.hub.Publish(RoomChannel(msg.TripId), data)

	ctrl.notifyAbsentMembers(msg)
}

// notifyAbsentMembers stores a chat_message notification for every approved
// member who is not currently subscribed to the room, and pushes it on their
// personal channel if they happen to be connected elsewhere. The stored
// notification is the durable fallback, the push is best effort.
func (ctrl *Controller) notifyAbsentMembers(msg *types.Message) {
	memberIds, err := ctrl.authority.ApprovedMemberIds(msg.TripId)
	if err != nil {
		globals.AppLogger.Error("could not resolve trip members", "error", err, "trip", msg.TripId)
		return
	}
	inRoom := ctrl.hub.SubscriberIds(RoomChannel(msg.TripId))
	for _, userId := range memberIds {
		if userId == msg.UserId {
			continue
		}
		if _, ok := inRoom[userId]; ok {
			continue
		}
		_, err := ctrl.notifier.Notify(userId, types.NotificationTypeChatMessage,
			fmt.Sprintf("New message from %s", msg.Username), "/chat/"+msg.TripId, msg.Id)
		if err != nil {
			globals.AppLogger.Error("could not store chat notification", "error", err, "user", userId)
		}
	}
}
