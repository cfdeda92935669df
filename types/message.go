package types

import (
	"errors"
	"strings"
	"time"
)

const (
	MessageKindText  = "text"
	MessageKindImage = "image"
)

// ErrEmptyContent is returned when a message carries neither text nor an image.
var ErrEmptyContent = errors.New("message needs text or an image")

// Message is one chat message in a trip room. Immutable once stored, except
// for ExpiresAt, which is set when the recipient acknowledges the associated
// notification and starts the retention countdown.
type Message struct {
	Seq       int64      `json:"seq" gorm:"primaryKey;autoIncrement"` // store-assigned, defines room order
	Id        string     `json:"id" gorm:"uniqueIndex"`
	TripId    string     `json:"tripId" gorm:"index:idx_messages_trip_seq"`
	UserId    string     `json:"userId"`
	Username  string     `json:"username"`
	Body      string     `json:"message"`
	Kind      string     `json:"type" gorm:"default:text"`
	ImageUrl  string     `json:"imageUrl,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" gorm:"index"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Validate rejects messages with no content. The kind defaults to text.
func (m *Message) Validate() error {
	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	if m.Kind != MessageKindText && m.Kind != MessageKindImage {
		return errors.New("unknown message type: " + m.Kind)
	}
	if strings.TrimSpace(m.Body) == "" && m.ImageUrl == "" {
		return ErrEmptyContent
	}
	return nil
}

// Expired reports whether the retention horizon has passed.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}
