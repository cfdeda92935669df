package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/types"
)

var (
	// ErrNotFound is returned when a record does not exist. Callers must be
	// able to tell this apart from an access-denied condition.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a booking already exists for the same
	// (user, trip) pair.
	ErrDuplicate = errors.New("record already exists")
)

// TripFilter narrows trip searches on the public explore surface.
type TripFilter struct {
	Query        string
	MinDays      int
	MaxDays      int
	Budget       string
	PublicOnly   bool
	ApprovedOnly bool
}

// Store is the storage contract shared by all backends. All mutations go
// through these narrow operations; nothing else touches persisted state.
type Store interface {
	// users
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsersByRole(role string) ([]*types.User, error)
	DeleteUser(*types.User) error

	// trips
	StoreTrip(types.Trip) error
	GetTrip(*types.Trip) error
	SearchTrips(TripFilter) ([]*types.Trip, error)
	GetUserTrips(userId string) ([]*types.Trip, error)
	GetAllTrips() ([]*types.Trip, error)
	DeleteTrip(*types.Trip) error

	// bookings
	StoreBooking(*types.Booking) error
	GetBooking(*types.Booking) error
	FindBooking(userId, tripId string) (*types.Booking, error)
	GetUserBookings(userId string) ([]*types.Booking, error)
	GetTripBookings(tripId, status string) ([]*types.Booking, error)
	GetBookingsByStatus(status string) ([]*types.Booking, error)
	UpdateBookingStatus(id, status string) (*types.Booking, error)
	DeleteBooking(*types.Booking) error

	// messages
	AppendMessage(*types.Message) error
	GetMessage(*types.Message) error
	GetMessageHistory(tripId string) ([]*types.Message, error)
	ScheduleMessageExpiry(messageId string, ttl time.Duration) error
	SweepExpiredMessages() (int64, error)

	// notifications
	StoreNotification(*types.Notification) error
	GetNotification(*types.Notification) error
	GetNotifications(userId string, limit int) ([]*types.Notification, error)
	MarkNotificationRead(id string) (*types.Notification, bool, error)
	MarkAllNotificationsRead(userId string) (int64, error)

	Close() error
}

// NewStore selects the storage backend from the configuration. An empty
// persistence type defaults to buntdb.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		return NewBuntStore(cfg)
	case "sqlite", "postgres":
		return NewGormStore(cfg)
	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
	}
}
