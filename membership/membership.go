package membership

import (
	"context"
	"errors"

	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

// Role describes how a user relates to a trip's chat room.
type Role string

const (
	RoleNone           Role = "none"
	RoleCreator        Role = "creator"
	RoleApprovedMember Role = "approvedMember"
	RoleAdmin          Role = "admin"
)

// Result of a membership check. A denied check is a Result, not an error,
// so callers can tell "not a member" apart from "trip does not exist".
type Result struct {
	Allowed bool
	Role    Role
}

// Authority derives chat-room access from approved bookings, trip ownership
// and the admin role. Nothing is cached across calls: approval status can
// change between connections, so every history read and every join attempt
// re-derives the answer from the store.
type Authority struct {
	store persistence.Store
}

func NewAuthority(store persistence.Store) *Authority {
	return &Authority{store: store}
}

// Check reports whether userId may read and write tripId's room. Allowed
// iff any of: the trip's creator, an admin, or the holder of an approved
// booking for the trip. A missing trip surfaces persistence.ErrNotFound.
func (a *Authority) Check(ctx context.Context, userId, tripId string) (Result, error) {
	deny := Result{Allowed: false, Role: RoleNone}
	if userId == "" || tripId == "" {
		return deny, errors.New("user and trip id required")
	}
	trip := &types.Trip{Id: tripId}
	if err := a.store.GetTrip(trip); err != nil {
		return deny, err
	}
	if trip.UserId == userId {
		return Result{Allowed: true, Role: RoleCreator}, nil
	}
	if err := ctx.Err(); err != nil {
		return deny, err
	}
	user := &types.User{Id: userId}
	if err := a.store.GetUser(user); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return deny, err
	}
	if user.IsAdmin() {
		return Result{Allowed: true, Role: RoleAdmin}, nil
	}
	if err := ctx.Err(); err != nil {
		return deny, err
	}
	booking, err := a.store.FindBooking(userId, tripId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return deny, nil
		}
		return deny, err
	}
	if booking.Status == types.BookingStatusApproved {
		return Result{Allowed: true, Role: RoleApprovedMember}, nil
	}
	return deny, nil
}

// ApprovedMemberIds returns everyone entitled to the trip's room events:
// the creator plus all approved bookings. The chat controller diffs this
// against the current room subscribers to find offline recipients.
func (a *Authority) ApprovedMemberIds(tripId string) ([]string, error) {
	trip := &types.Trip{Id: tripId}
	if err := a.store.GetTrip(trip); err != nil {
		return nil, err
	}
	bookings, err := a.store.GetTripBookings(tripId, types.BookingStatusApproved)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(bookings)+1)
	seen := map[string]struct{}{trip.UserId: {}}
	ids = append(ids, trip.UserId)
	for _, b := range bookings {
		if _, ok := seen[b.UserId]; ok {
			continue
		}
		seen[b.UserId] = struct{}{}
		ids = append(ids, b.UserId)
	}
	return ids, nil
}
