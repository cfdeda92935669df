package types

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TripStatusPending  = "pending"
	TripStatusApproved = "approved"
	TripStatusRejected = "rejected"
)

// Trip is a generated itinerary. It doubles as the chat room scope: one room
// per trip, room id = trip id, no separate room creation step.
type Trip struct {
	Id               string         `json:"id" gorm:"primaryKey"`
	UserId           string         `json:"userId" gorm:"index"` // creator
	Destination      string         `json:"destination"`
	TripData         datatypes.JSON `json:"tripData"` // itinerary blob from the AI collaborator
	Duration         int            `json:"duration"`
	Budget           string         `json:"budget"`
	IsPublic         bool           `json:"isPublic"`
	Status           string         `json:"status" gorm:"default:pending"`
	Capacity         int            `json:"capacity"`
	Price            float64        `json:"price"`
	RequestOrganiser bool           `json:"requestOrganiser"`
	OrganiserStatus  string         `json:"organiserStatus" gorm:"default:pending"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"-"`
}
