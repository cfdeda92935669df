package persistence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the relational backend (sqlite or postgres). Unlike buntdb
// there is no native TTL, so expired messages are filtered on read and
// removed for good by the periodic retention sweep.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(cfg *config.Config) (Store, error) {
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&types.User{}, &types.Trip{}, &types.Booking{}, &types.Message{}, &types.Notification{})
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func gormErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// users

func (s *GormStore) StoreUser(user types.User) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (s *GormStore) GetUser(user *types.User) error {
	return gormErr(s.db.First(user).Error)
}

func (s *GormStore) GetUsersByRole(role string) ([]*types.User, error) {
	users := make([]*types.User, 0)
	q := s.db
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Find(&users).Error
	return users, err
}

func (s *GormStore) DeleteUser(user *types.User) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		trips := make([]*types.Trip, 0)
		if err := tx.Where("user_id = ?", user.Id).Find(&trips).Error; err != nil {
			return err
		}
		for _, trip := range trips {
			if err := deleteTripTx(tx, trip.Id); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", user.Id).Delete(&types.Booking{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.Id).Delete(&types.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.Id).Delete(&types.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
}

// trips

func (s *GormStore) StoreTrip(trip types.Trip) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&trip).Error
}

func (s *GormStore) GetTrip(trip *types.Trip) error {
	return gormErr(s.db.First(trip).Error)
}

func (s *GormStore) SearchTrips(filter TripFilter) ([]*types.Trip, error) {
	trips := make([]*types.Trip, 0)
	q := s.db.Order("created_at DESC")
	if filter.PublicOnly {
		q = q.Where("is_public = ?", true)
	}
	if filter.ApprovedOnly {
		q = q.Where("status = ?", types.TripStatusApproved)
	}
	if filter.Query != "" {
		q = q.Where("LOWER(destination) LIKE ?", "%"+strings.ToLower(filter.Query)+"%")
	}
	if filter.MinDays > 0 {
		q = q.Where("duration >= ?", filter.MinDays)
	}
	if filter.MaxDays > 0 {
		q = q.Where("duration <= ?", filter.MaxDays)
	}
	if filter.Budget != "" {
		q = q.Where("budget = ?", filter.Budget)
	}
	err := q.Find(&trips).Error
	return trips, err
}

func (s *GormStore) GetUserTrips(userId string) ([]*types.Trip, error) {
	trips := make([]*types.Trip, 0)
	err := s.db.Where("user_id = ?", userId).Order("created_at DESC").Find(&trips).Error
	return trips, err
}

func (s *GormStore) GetAllTrips() ([]*types.Trip, error) {
	trips := make([]*types.Trip, 0)
	err := s.db.Order("created_at DESC").Find(&trips).Error
	return trips, err
}

func deleteTripTx(tx *gorm.DB, tripId string) error {
	if err := tx.Where("trip_id = ?", tripId).Delete(&types.Booking{}).Error; err != nil {
		return err
	}
	if err := tx.Where("trip_id = ?", tripId).Delete(&types.Message{}).Error; err != nil {
		return err
	}
	return tx.Delete(&types.Trip{Id: tripId}).Error
}

func (s *GormStore) DeleteTrip(trip *types.Trip) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return deleteTripTx(tx, trip.Id)
	})
}

// bookings

func (s *GormStore) StoreBooking(booking *types.Booking) error {
	if booking.UserId == "" || booking.TripId == "" {
		return fmt.Errorf("booking needs a user and a trip")
	}
	if booking.Id == "" {
		booking.Id = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = types.BookingStatusPending
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&types.Booking{}).
			Where("user_id = ? AND trip_id = ?", booking.UserId, booking.TripId).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return tx.Create(booking).Error
	})
}

func (s *GormStore) GetBooking(booking *types.Booking) error {
	return gormErr(s.db.First(booking).Error)
}

func (s *GormStore) FindBooking(userId, tripId string) (*types.Booking, error) {
	booking := &types.Booking{}
	err := s.db.Where("user_id = ? AND trip_id = ?", userId, tripId).First(booking).Error
	if err != nil {
		return nil, gormErr(err)
	}
	return booking, nil
}

func (s *GormStore) GetUserBookings(userId string) ([]*types.Booking, error) {
	bookings := make([]*types.Booking, 0)
	err := s.db.Where("user_id = ?", userId).Order("created_at DESC").Find(&bookings).Error
	return bookings, err
}

func (s *GormStore) GetTripBookings(tripId, status string) ([]*types.Booking, error) {
	bookings := make([]*types.Booking, 0)
	q := s.db.Where("trip_id = ?", tripId)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Find(&bookings).Error
	return bookings, err
}

func (s *GormStore) GetBookingsByStatus(status string) ([]*types.Booking, error) {
	bookings := make([]*types.Booking, 0)
	q := s.db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&bookings).Error
	return bookings, err
}

func (s *GormStore) UpdateBookingStatus(id, status string) (*types.Booking, error) {
	booking := &types.Booking{Id: id}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(booking).Error; err != nil {
			return gormErr(err)
		}
		booking.Status = status
		return tx.Model(booking).Update("status", status).Error
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *GormStore) DeleteBooking(booking *types.Booking) error {
	return s.db.Delete(booking).Error
}

// messages

func (s *GormStore) AppendMessage(msg *types.Message) error {
	if msg.TripId == "" {
		return fmt.Errorf("no trip id")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	return s.db.Create(msg).Error
}

func (s *GormStore) GetMessage(msg *types.Message) error {
	if msg.Id == "" {
		return fmt.Errorf("no message id")
	}
	return gormErr(s.db.Where("id = ?", msg.Id).First(msg).Error)
}

func (s *GormStore) GetMessageHistory(tripId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := s.db.
		Where("trip_id = ? AND (expires_at IS NULL OR expires_at > ?)", tripId, time.Now().UTC()).
		Order("seq ASC").
		Find(&messages).Error
	return messages, err
}

func (s *GormStore) ScheduleMessageExpiry(messageId string, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl)
	res := s.db.Model(&types.Message{}).Where("id = ?", messageId).Update("expires_at", expires)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepExpiredMessages deletes messages past their retention horizon. Called
// periodically; reads already exclude them, the sweep just reclaims rows.
func (s *GormStore) SweepExpiredMessages() (int64, error) {
	res := s.db.Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now().UTC()).Delete(&types.Message{})
	return res.RowsAffected, res.Error
}

// notifications

func (s *GormStore) StoreNotification(n *types.Notification) error {
	if n.UserId == "" {
		return fmt.Errorf("no user id")
	}
	if n.Id == "" {
		n.Id = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	return s.db.Create(n).Error
}

func (s *GormStore) GetNotification(n *types.Notification) error {
	return gormErr(s.db.First(n).Error)
}

func (s *GormStore) GetNotifications(userId string, limit int) ([]*types.Notification, error) {
	notifications := make([]*types.Notification, 0)
	q := s.db.Where("user_id = ?", userId).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&notifications).Error
	return notifications, err
}

func (s *GormStore) MarkNotificationRead(id string) (*types.Notification, bool, error) {
	n := &types.Notification{Id: id}
	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(n).Error; err != nil {
			return gormErr(err)
		}
		if n.IsRead {
			return nil
		}
		n.IsRead = true
		changed = true
		return tx.Model(n).Update("is_read", true).Error
	})
	if err != nil {
		return nil, false, err
	}
	return n, changed, nil
}

func (s *GormStore) MarkAllNotificationsRead(userId string) (int64, error) {
	res := s.db.Model(&types.Notification{}).
		Where("user_id = ? AND is_read = ?", userId, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (s *GormStore) Close() error {
	return nil
}
