package types

import "time"

const (
	BookingStatusPending  = "pending"
	BookingStatusApproved = "approved"
	BookingStatusRejected = "rejected"
	BookingStatusRevoked  = "revoked"
)

// Booking is a join request for a trip. An approved booking is the only
// thing (besides trip ownership and the admin role) that grants access to
// the trip's chat room. At most one booking per (user, trip) pair.
type Booking struct {
	Id           string    `json:"id" gorm:"primaryKey"`
	UserId       string    `json:"userId" gorm:"index;uniqueIndex:idx_bookings_user_trip"`
	TripId       string    `json:"tripId" gorm:"index;uniqueIndex:idx_bookings_user_trip"`
	Destination  string    `json:"destination"`
	HotelId      string    `json:"hotelId"`
	HotelName    string    `json:"hotelName"`
	HotelImage   string    `json:"hotelImage"`
	HotelAddress string    `json:"hotelAddress"`
	Price        string    `json:"price"`
	UserName     string    `json:"userName"`
	UserEmail    string    `json:"userEmail"`
	Status       string    `json:"status" gorm:"default:pending"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}
