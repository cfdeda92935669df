package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/types"
)

func newGormTestStore(t *testing.T) Store {
	t.Helper()
	cfg := &config.Config{}
	cfg.PersistenceConfig.Type = "sqlite"
	// named per test so the shared-cache memory db is not reused across tests
	cfg.PersistenceConfig.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewGormStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGormMessageHistoryOrder(t *testing.T) {
	store := newGormTestStore(t)

	for _, body := range []string{"first", "second", "third"} {
		msg := &types.Message{TripId: "trip1", UserId: "u1", Username: "alice", Body: body}
		assert.NoError(t, store.AppendMessage(msg))
	}

	history, err := store.GetMessageHistory("trip1")
	assert.NoError(t, err)
	if assert.Len(t, history, 3) {
		assert.Equal(t, "first", history[0].Body)
		assert.Equal(t, "third", history[2].Body)
		assert.Less(t, history[0].Seq, history[1].Seq)
	}
}

func TestGormHistoryExcludesExpired(t *testing.T) {
	store := newGormTestStore(t)

	expired := &types.Message{TripId: "trip1", UserId: "u1", Body: "old"}
	assert.NoError(t, store.AppendMessage(expired))
	alive := &types.Message{TripId: "trip1", UserId: "u1", Body: "new"}
	assert.NoError(t, store.AppendMessage(alive))

	// a horizon in the past makes the row invisible immediately
	assert.NoError(t, store.ScheduleMessageExpiry(expired.Id, -time.Minute))

	history, err := store.GetMessageHistory("trip1")
	assert.NoError(t, err)
	if assert.Len(t, history, 1) {
		assert.Equal(t, "new", history[0].Body)
	}
}

func TestGormSweepExpiredMessages(t *testing.T) {
	store := newGormTestStore(t)

	expired := &types.Message{TripId: "trip1", UserId: "u1", Body: "old"}
	assert.NoError(t, store.AppendMessage(expired))
	alive := &types.Message{TripId: "trip1", UserId: "u1", Body: "new"}
	assert.NoError(t, store.AppendMessage(alive))
	assert.NoError(t, store.ScheduleMessageExpiry(expired.Id, -time.Minute))
	assert.NoError(t, store.ScheduleMessageExpiry(alive.Id, time.Hour))

	count, err := store.SweepExpiredMessages()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = store.GetMessage(&types.Message{Id: expired.Id})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.GetMessage(&types.Message{Id: alive.Id}))

	// nothing left to reclaim
	count, err = store.SweepExpiredMessages()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestGormScheduleExpiryMissingMessage(t *testing.T) {
	store := newGormTestStore(t)

	err := store.ScheduleMessageExpiry("no-such-message", time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormBookingUniquePerUserAndTrip(t *testing.T) {
	store := newGormTestStore(t)

	b := &types.Booking{UserId: "u1", TripId: "trip1", Status: types.BookingStatusPending}
	assert.NoError(t, store.StoreBooking(b))

	dup := &types.Booking{UserId: "u1", TripId: "trip1", Status: types.BookingStatusPending}
	err := store.StoreBooking(dup)
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := store.FindBooking("u1", "trip1")
	assert.NoError(t, err)
	assert.Equal(t, b.Id, found.Id)
}

func TestGormDeleteUserRemovesAuthoredMessages(t *testing.T) {
	store := newGormTestStore(t)

	assert.NoError(t, store.StoreUser(types.User{Id: "author", Username: "author", Email: "author@example.com"}))
	assert.NoError(t, store.StoreTrip(types.Trip{Id: "trip1", UserId: "owner"}))
	msg := &types.Message{TripId: "trip1", UserId: "author", Username: "author", Body: "hi"}
	assert.NoError(t, store.AppendMessage(msg))
	kept := &types.Message{TripId: "trip1", UserId: "owner", Username: "owner", Body: "mine"}
	assert.NoError(t, store.AppendMessage(kept))

	assert.NoError(t, store.DeleteUser(&types.User{Id: "author"}))

	history, err := store.GetMessageHistory("trip1")
	assert.NoError(t, err)
	if assert.Len(t, history, 1) {
		assert.Equal(t, "owner", history[0].UserId)
	}
}
