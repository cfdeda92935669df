package types

import "time"

const (
	NotificationTypeBookingRequest = "booking_request"
	NotificationTypeBookingStatus  = "booking_status"
	NotificationTypeSystem         = "system"
	NotificationTypeChatMessage    = "chat_message"
)

// Notification is a per-user inbox entry. For chat_message notifications,
// RelatedId carries the message id so that acknowledging the notification
// can start that message's retention countdown.
type Notification struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	UserId    string    `json:"userId" gorm:"index"`
	Type      string    `json:"type"`
	RelatedId string    `json:"relatedId,omitempty"`
	Body      string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}
