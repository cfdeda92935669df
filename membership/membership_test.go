package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

func newTestAuthority(t *testing.T) (*Authority, persistence.Store) {
	t.Helper()
	store, err := persistence.NewBuntStore(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewAuthority(store), store
}

func TestCheckCreator(t *testing.T) {
	authority, store := newTestAuthority(t)
	assert.NoError(t, store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))

	res, err := authority.Check(context.Background(), "creator", "trip1")
	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, RoleCreator, res.Role)
}

func TestCheckAdmin(t *testing.T) {
	authority, store := newTestAuthority(t)
	assert.NoError(t, store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))
	assert.NoError(t, store.StoreUser(types.User{Id: "root", Role: types.RoleAdmin}))

	res, err := authority.Check(context.Background(), "root", "trip1")
	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, RoleAdmin, res.Role)
}

func TestCheckApprovedBooking(t *testing.T) {
	authority, store := newTestAuthority(t)
	assert.NoError(t, store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))
	booking := &types.Booking{UserId: "member", TripId: "trip1", Status: types.BookingStatusPending}
	assert.NoError(t, store.StoreBooking(booking))

	// pending booking grants nothing
	res, err := authority.Check(context.Background(), "member", "trip1")
	assert.NoError(t, err)
	assert.False(t, res.Allowed)

	// approval takes effect on the next check, no reconnect needed
	_, err = store.UpdateBookingStatus(booking.Id, types.BookingStatusApproved)
	assert.NoError(t, err)
	res, err = authority.Check(context.Background(), "member", "trip1")
	assert.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, RoleApprovedMember, res.Role)

	// so does revocation
	_, err = store.UpdateBookingStatus(booking.Id, types.BookingStatusRevoked)
	assert.NoError(t, err)
	res, err = authority.Check(context.Background(), "member", "trip1")
	assert.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, RoleNone, res.Role)
}

func TestCheckNoBooking(t *testing.T) {
	authority, store := newTestAuthority(t)
	assert.NoError(t, store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))

	res, err := authority.Check(context.Background(), "stranger", "trip1")
	assert.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestCheckMissingTrip(t *testing.T) {
	authority, _ := newTestAuthority(t)

	_, err := authority.Check(context.Background(), "anyone", "no-such-trip")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestApprovedMemberIds(t *testing.T) {
	authority, store := newTestAuthority(t)
	assert.NoError(t, store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))
	assert.NoError(t, store.StoreBooking(&types.Booking{UserId: "member", TripId: "trip1", Status: types.BookingStatusApproved}))
	assert.NoError(t, store.StoreBooking(&types.Booking{UserId: "pending", TripId: "trip1", Status: types.BookingStatusPending}))

	ids, err := authority.ApprovedMemberIds("trip1")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"creator", "member"}, ids)
}
