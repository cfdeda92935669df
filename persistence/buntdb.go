package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/types"
)

// BuntStore is the default storage backend. Messages are keyed by
// (trip, store-assigned sequence) so that lexical key order is room order,
// and the retention horizon is implemented with buntdb's native TTL: once a
// message's countdown is started, the database removes it on its own.
type BuntStore struct {
	db *buntdb.DB
}

func NewBuntStore(cfg *config.Config) (Store, error) {
	name := cfg.PersistenceConfig.DSN
	if name == "" {
		name = ":memory:"
	}
	db, err := buntdb.Open(name)
	if err != nil {
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func mapErr(err error) error {
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	return err
}

// nextSeq increments the named persistent counter inside tx.
func nextSeq(tx *buntdb.Tx, name string) (int64, error) {
	key := "counter:" + name
	var seq int64
	if val, err := tx.Get(key); err == nil {
		seq, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	seq++
	_, _, err := tx.Set(key, strconv.FormatInt(seq, 10), nil)
	return seq, err
}

func messageKey(tripId string, seq int64) string {
	return fmt.Sprintf("message:%s:%020d", tripId, seq)
}

func (s *BuntStore) setJSON(tx *buntdb.Tx, key string, v interface{}, opts *buntdb.SetOptions) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(raw), opts)
	return err
}

func (s *BuntStore) getJSON(key string, v interface{}) error {
	return s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		return json.Unmarshal([]byte(val), v)
	})
}

// collectKeys gathers the keys matching pattern; buntdb forbids mutating
// the tree while iterating, so deletes and updates go through this first.
func collectKeys(tx *buntdb.Tx, pattern string) ([]string, error) {
	keys := make([]string, 0)
	err := tx.AscendKeys(pattern, func(key, _ string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// users

func (s *BuntStore) StoreUser(user types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		return s.setJSON(tx, "user:"+user.Id, user, nil)
	})
}

func (s *BuntStore) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return s.getJSON("user:"+user.Id, user)
}

func (s *BuntStore) GetUsersByRole(role string) ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(_, val string) bool {
			user := &types.User{}
			if err := json.Unmarshal([]byte(val), user); err == nil {
				if role == "" || user.Role == role {
					users = append(users, user)
				}
			}
			return true
		})
	})
	return users, err
}

func (s *BuntStore) DeleteUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	trips, err := s.GetUserTrips(user.Id)
	if err != nil {
		return err
	}
	for _, trip := range trips {
		if err := s.DeleteTrip(trip); err != nil {
			return err
		}
	}
	bookings, err := s.GetUserBookings(user.Id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, b := range bookings {
			if _, err := tx.Delete("booking:" + b.TripId + ":" + b.UserId); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			if _, err := tx.Delete("bookingref:" + b.Id); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		for _, pattern := range []string{"notification:" + user.Id + ":*"} {
			keys, err := collectKeys(tx, pattern)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if _, err := tx.Delete(key); err != nil {
					return err
				}
			}
		}
		// messages the user authored in other people's trips; the keys are
		// trip-scoped, so this needs a value scan
		authored := make([]*types.Message, 0)
		err := tx.AscendKeys("message:*", func(_, val string) bool {
			msg := &types.Message{}
			if err := json.Unmarshal([]byte(val), msg); err == nil && msg.UserId == user.Id {
				authored = append(authored, msg)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, msg := range authored {
			if _, err := tx.Delete(messageKey(msg.TripId, msg.Seq)); err != nil && err != buntdb.ErrNotFound {
				return err
			}
			if _, err := tx.Delete("messageref:" + msg.Id); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		_, err = tx.Delete("user:" + user.Id)
		return mapErr(err)
	})
}

// trips

func (s *BuntStore) StoreTrip(trip types.Trip) error {
	if trip.Id == "" {
		return fmt.Errorf("no trip id")
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		return s.setJSON(tx, "trip:"+trip.Id, trip, nil)
	})
}

func (s *BuntStore) GetTrip(trip *types.Trip) error {
	if trip.Id == "" {
		return fmt.Errorf("no trip id")
	}
	return s.getJSON("trip:"+trip.Id, trip)
}

func (s *BuntStore) scanTrips(keep func(*types.Trip) bool) ([]*types.Trip, error) {
	trips := make([]*types.Trip, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("trip:*", func(_, val string) bool {
			trip := &types.Trip{}
			if err := json.Unmarshal([]byte(val), trip); err == nil && keep(trip) {
				trips = append(trips, trip)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].CreatedAt.After(trips[j].CreatedAt) })
	return trips, nil
}

func (s *BuntStore) SearchTrips(filter TripFilter) ([]*types.Trip, error) {
	query := strings.ToLower(filter.Query)
	return s.scanTrips(func(t *types.Trip) bool {
		if filter.PublicOnly && !t.IsPublic {
			return false
		}
		if filter.ApprovedOnly && t.Status != types.TripStatusApproved {
			return false
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Destination), query) {
			return false
		}
		if filter.MinDays > 0 && t.Duration < filter.MinDays {
			return false
		}
		if filter.MaxDays > 0 && t.Duration > filter.MaxDays {
			return false
		}
		if filter.Budget != "" && t.Budget != filter.Budget {
			return false
		}
		return true
	})
}

func (s *BuntStore) GetUserTrips(userId string) ([]*types.Trip, error) {
	return s.scanTrips(func(t *types.Trip) bool { return t.UserId == userId })
}

func (s *BuntStore) GetAllTrips() ([]*types.Trip, error) {
	return s.scanTrips(func(*types.Trip) bool { return true })
}

func (s *BuntStore) DeleteTrip(trip *types.Trip) error {
	if trip.Id == "" {
		return fmt.Errorf("no trip id")
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		refs := make([]string, 0)
		for _, pattern := range []string{"booking:" + trip.Id + ":*", "message:" + trip.Id + ":*"} {
			keys, err := collectKeys(tx, pattern)
			if err != nil {
				return err
			}
			for _, key := range keys {
				val, err := tx.Get(key)
				if err == nil {
					var ref struct {
						Id string `json:"id"`
					}
					if json.Unmarshal([]byte(val), &ref) == nil && ref.Id != "" {
						if strings.HasPrefix(key, "booking:") {
							refs = append(refs, "bookingref:"+ref.Id)
						} else {
							refs = append(refs, "messageref:"+ref.Id)
						}
					}
				}
				if _, err := tx.Delete(key); err != nil {
					return err
				}
			}
		}
		for _, ref := range refs {
			if _, err := tx.Delete(ref); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		_, err := tx.Delete("trip:" + trip.Id)
		return mapErr(err)
	})
}

// bookings

func (s *BuntStore) StoreBooking(booking *types.Booking) error {
	if booking.UserId == "" || booking.TripId == "" {
		return fmt.Errorf("booking needs a user and a trip")
	}
	key := "booking:" + booking.TripId + ":" + booking.UserId
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(key); err == nil {
			return ErrDuplicate
		} else if err != buntdb.ErrNotFound {
			return err
		}
		if booking.Id == "" {
			booking.Id = uuid.NewString()
		}
		if booking.Status == "" {
			booking.Status = types.BookingStatusPending
		}
		booking.CreatedAt = time.Now().UTC()
		booking.UpdatedAt = booking.CreatedAt
		if err := s.setJSON(tx, key, booking, nil); err != nil {
			return err
		}
		_, _, err := tx.Set("bookingref:"+booking.Id, key, nil)
		return err
	})
}

func (s *BuntStore) GetBooking(booking *types.Booking) error {
	if booking.Id == "" {
		return fmt.Errorf("no booking id")
	}
	return s.db.View(func(tx *buntdb.Tx) error {
		key, err := tx.Get("bookingref:" + booking.Id)
		if err != nil {
			return mapErr(err)
		}
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		return json.Unmarshal([]byte(val), booking)
	})
}

func (s *BuntStore) FindBooking(userId, tripId string) (*types.Booking, error) {
	booking := &types.Booking{}
	err := s.getJSON("booking:"+tripId+":"+userId, booking)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BuntStore) scanBookings(pattern string, keep func(*types.Booking) bool) ([]*types.Booking, error) {
	bookings := make([]*types.Booking, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pattern, func(_, val string) bool {
			booking := &types.Booking{}
			if err := json.Unmarshal([]byte(val), booking); err == nil && keep(booking) {
				bookings = append(bookings, booking)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (s *BuntStore) GetUserBookings(userId string) ([]*types.Booking, error) {
	return s.scanBookings("booking:*", func(b *types.Booking) bool { return b.UserId == userId })
}

func (s *BuntStore) GetTripBookings(tripId, status string) ([]*types.Booking, error) {
	return s.scanBookings("booking:"+tripId+":*", func(b *types.Booking) bool {
		return status == "" || b.Status == status
	})
}

func (s *BuntStore) GetBookingsByStatus(status string) ([]*types.Booking, error) {
	return s.scanBookings("booking:*", func(b *types.Booking) bool {
		return status == "" || b.Status == status
	})
}

func (s *BuntStore) UpdateBookingStatus(id, status string) (*types.Booking, error) {
	booking := &types.Booking{}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key, err := tx.Get("bookingref:" + id)
		if err != nil {
			return mapErr(err)
		}
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		if err := json.Unmarshal([]byte(val), booking); err != nil {
			return err
		}
		booking.Status = status
		booking.UpdatedAt = time.Now().UTC()
		return s.setJSON(tx, key, booking, nil)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BuntStore) DeleteBooking(booking *types.Booking) error {
	if booking.Id == "" {
		return fmt.Errorf("no booking id")
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		key, err := tx.Get("bookingref:" + booking.Id)
		if err != nil {
			return mapErr(err)
		}
		if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
			return err
		}
		_, err = tx.Delete("bookingref:" + booking.Id)
		return mapErr(err)
	})
}

// messages

func (s *BuntStore) AppendMessage(msg *types.Message) error {
	if msg.TripId == "" {
		return fmt.Errorf("no trip id")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		seq, err := nextSeq(tx, "message")
		if err != nil {
			return err
		}
		msg.Seq = seq
		if msg.Id == "" {
			msg.Id = uuid.NewString()
		}
		msg.CreatedAt = time.Now().UTC()
		key := messageKey(msg.TripId, seq)
		if err := s.setJSON(tx, key, msg, nil); err != nil {
			return err
		}
		_, _, err = tx.Set("messageref:"+msg.Id, key, nil)
		return err
	})
}

func (s *BuntStore) GetMessage(msg *types.Message) error {
	if msg.Id == "" {
		return fmt.Errorf("no message id")
	}
	return s.db.View(func(tx *buntdb.Tx) error {
		key, err := tx.Get("messageref:" + msg.Id)
		if err != nil {
			return mapErr(err)
		}
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		return json.Unmarshal([]byte(val), msg)
	})
}

// GetMessageHistory returns the room's messages oldest first. Key order is
// sequence order, and entries past their retention horizon have already
// been dropped by the TTL machinery.
func (s *BuntStore) GetMessageHistory(tripId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("message:"+tripId+":*", func(_, val string) bool {
			msg := &types.Message{}
			if err := json.Unmarshal([]byte(val), msg); err == nil {
				messages = append(messages, msg)
			}
			return true
		})
	})
	return messages, err
}

func (s *BuntStore) ScheduleMessageExpiry(messageId string, ttl time.Duration) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		key, err := tx.Get("messageref:" + messageId)
		if err != nil {
			return mapErr(err)
		}
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		msg := &types.Message{}
		if err := json.Unmarshal([]byte(val), msg); err != nil {
			return err
		}
		expires := time.Now().UTC().Add(ttl)
		msg.ExpiresAt = &expires
		opts := &buntdb.SetOptions{Expires: true, TTL: ttl}
		if err := s.setJSON(tx, key, msg, opts); err != nil {
			return err
		}
		// expire the ref together with the record so no dangling pointer survives
		_, _, err = tx.Set("messageref:"+messageId, key, opts)
		return err
	})
}

// SweepExpiredMessages is a no-op here, buntdb removes expired entries itself.
func (s *BuntStore) SweepExpiredMessages() (int64, error) {
	return 0, nil
}

// notifications

func (s *BuntStore) StoreNotification(n *types.Notification) error {
	if n.UserId == "" {
		return fmt.Errorf("no user id")
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		seq, err := nextSeq(tx, "notification")
		if err != nil {
			return err
		}
		if n.Id == "" {
			n.Id = uuid.NewString()
		}
		n.CreatedAt = time.Now().UTC()
		key := fmt.Sprintf("notification:%s:%020d", n.UserId, seq)
		if err := s.setJSON(tx, key, n, nil); err != nil {
			return err
		}
		_, _, err = tx.Set("notificationref:"+n.Id, key, nil)
		return err
	})
}

func (s *BuntStore) GetNotification(n *types.Notification) error {
	if n.Id == "" {
		return fmt.Errorf("no notification id")
	}
	return s.db.View(func(tx *buntdb.Tx) error {
		key, err := tx.Get("notificationref:" + n.Id)
		if err != nil {
			return mapErr(err)
		}
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		return json.Unmarshal([]byte(val), n)
	})
}

// GetNotifications returns the user's inbox newest first, bounded by limit.
func (s *BuntStore) GetNotifications(userId string, limit int) ([]*types.Notification, error) {
	notifications := make([]*types.Notification, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendKeys("notification:"+userId+":*", func(_, val string) bool {
			n := &types.Notification{}
			if err := json.Unmarshal([]byte(val), n); err == nil {
				notifications = append(notifications, n)
			}
			return limit <= 0 || len(notifications) < limit
		})
	})
	return notifications, err
}

// MarkNotificationRead flips the read flag. The second return value reports
// whether the flag actually changed, so callers can keep the retention side
// effect idempotent.
func (s *BuntStore) MarkNotificationRead(id string) (*types.Notification, bool, error) {
	n := &types.Notification{}
	changed := false
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key, err := tx.Get("notificationref:" + id)
		if err != nil {
			return mapErr(err)
		}
		val, err := tx.Get(key)
		if err != nil {
			return mapErr(err)
		}
		if err := json.Unmarshal([]byte(val), n); err != nil {
			return err
		}
		if n.IsRead {
			return nil
		}
		n.IsRead = true
		changed = true
		return s.setJSON(tx, key, n, nil)
	})
	if err != nil {
		return nil, false, err
	}
	return n, changed, nil
}

func (s *BuntStore) MarkAllNotificationsRead(userId string) (int64, error) {
	var count int64
	err := s.db.Update(func(tx *buntdb.Tx) error {
		type entry struct {
			key string
			n   *types.Notification
		}
		unread := make([]entry, 0)
		err := tx.AscendKeys("notification:"+userId+":*", func(key, val string) bool {
			n := &types.Notification{}
			if err := json.Unmarshal([]byte(val), n); err == nil && !n.IsRead {
				unread = append(unread, entry{key: key, n: n})
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, e := range unread {
			e.n.IsRead = true
			if err := s.setJSON(tx, e.key, e.n, nil); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}
