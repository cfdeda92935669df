package ws

import (
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

// Notifier stores a notification and pushes it on the recipient's personal
// channel. Store first: a dropped push only delays delivery until the next
// notification fetch, a dropped store would lose it.
type Notifier struct {
	hub   *Hub
	store persistence.Store
}

func NewNotifier(hub *Hub, store persistence.Store) *Notifier {
	return &Notifier{hub: hub, store: store}
}

func (n *Notifier) Notify(userId, notificationType, body, link, relatedId string) (*types.Notification, error) {
	notification := &types.Notification{
		UserId:    userId,
		Type:      notificationType,
		RelatedId: relatedId,
		Body:      body,
		Link:      link,
	}
	if err := n.store.StoreNotification(notification); err != nil {
		return nil, err
	}
	data, err := types.NewNotificationEvent(notification)
	if err != nil {
		globals.AppLogger.Error("could not marshal notification event", "error", err)
		return notification, nil
	}
	n.hub.Publish(PersonalChannel(userId), data)
	return notification, nil
}
