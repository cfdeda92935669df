package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
	"github.com/tripmesh/tripmesh-server/ws"
)

const testSecret = "test-secret"

type fixture struct {
	server *Server
	store  persistence.Store
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{SessionSecret: testSecret}
	store, err := persistence.NewBuntStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	hub := ws.NewHub()
	go hub.Run()
	server := NewServer(cfg, store, hub)
	return &fixture{server: server, store: store, router: server.Router()}
}

func (f *fixture) request(t *testing.T, method, target string, body interface{}, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, target, reader)
	if identity != nil {
		token, err := auth.NewToken(identity, testSecret, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func member(id string) *auth.Identity {
	return &auth.Identity{UserId: id, Username: id, Role: types.RoleUser}
}

func admin(id string) *auth.Identity {
	return &auth.Identity{UserId: id, Username: id, Role: types.RoleAdmin}
}

func TestMessageHistoryRequiresAuth(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, http.MethodGet, "/api/messages/trip1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMessageHistoryGating(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))
	assert.NoError(t, f.store.StoreBooking(&types.Booking{UserId: "friend", TripId: "trip1", Status: types.BookingStatusApproved}))
	assert.NoError(t, f.store.AppendMessage(&types.Message{TripId: "trip1", UserId: "creator", Username: "creator", Body: "hi"}))

	w := f.request(t, http.MethodGet, "/api/messages/trip1", nil, member("stranger"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"You are not an approved member of this trip."}`, w.Body.String())

	w = f.request(t, http.MethodGet, "/api/messages/no-such-trip", nil, member("stranger"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, id := range []string{"creator", "friend"} {
		w = f.request(t, http.MethodGet, "/api/messages/trip1", nil, member(id))
		assert.Equal(t, http.StatusOK, w.Code)
		messages := []*types.Message{}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
		assert.Len(t, messages, 1)
	}
}

func TestNotificationsPage(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		assert.NoError(t, f.store.StoreNotification(&types.Notification{UserId: "u1", Type: types.NotificationTypeSystem, Body: "n"}))
	}

	w := f.request(t, http.MethodGet, "/api/notifications", nil, member("u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	notifications := []*types.Notification{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &notifications))
	assert.Len(t, notifications, 20)
}

func TestMarkNotificationReadSchedulesExpiry(t *testing.T) {
	f := newFixture(t)
	msg := &types.Message{TripId: "trip1", UserId: "u2", Username: "bob", Body: "hi"}
	assert.NoError(t, f.store.AppendMessage(msg))
	n := &types.Notification{UserId: "u1", Type: types.NotificationTypeChatMessage, RelatedId: msg.Id, Body: "New message from bob"}
	assert.NoError(t, f.store.StoreNotification(n))

	// only the recipient may acknowledge
	w := f.request(t, http.MethodPut, "/api/notifications/"+n.Id+"/read", nil, member("intruder"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, http.MethodPut, "/api/notifications/"+n.Id+"/read", nil, member("u1"))
	assert.Equal(t, http.StatusOK, w.Code)

	got := &types.Message{Id: msg.Id}
	assert.NoError(t, f.store.GetMessage(got))
	assert.NotNil(t, got.ExpiresAt)

	// acknowledging again is a no-op
	w = f.request(t, http.MethodPut, "/api/notifications/"+n.Id+"/read", nil, member("u1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMarkAllReadDoesNotTouchRetention(t *testing.T) {
	f := newFixture(t)
	msg := &types.Message{TripId: "trip1", UserId: "u2", Username: "bob", Body: "hi"}
	assert.NoError(t, f.store.AppendMessage(msg))
	assert.NoError(t, f.store.StoreNotification(&types.Notification{UserId: "u1", Type: types.NotificationTypeChatMessage, RelatedId: msg.Id, Body: "New message from bob"}))

	w := f.request(t, http.MethodPut, "/api/notifications/mark-all-read", nil, member("u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())

	got := &types.Message{Id: msg.Id}
	assert.NoError(t, f.store.GetMessage(got))
	assert.Nil(t, got.ExpiresAt)
}

func TestBookingLifecycle(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator", Destination: "Lisbon"}))
	assert.NoError(t, f.store.StoreUser(types.User{Id: "root", Role: types.RoleAdmin}))

	w := f.request(t, http.MethodPost, "/api/bookings/join", map[string]string{"tripId": "trip1"}, member("guest"))
	assert.Equal(t, http.StatusCreated, w.Code)
	booking := &types.Booking{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), booking))
	assert.Equal(t, types.BookingStatusPending, booking.Status)

	// the admin got a booking_request notification
	stored, err := f.store.GetNotifications("root", 20)
	assert.NoError(t, err)
	if assert.Len(t, stored, 1) {
		assert.Equal(t, types.NotificationTypeBookingRequest, stored[0].Type)
	}

	// one booking per user and trip
	w = f.request(t, http.MethodPost, "/api/bookings/join", map[string]string{"tripId": "trip1"}, member("guest"))
	assert.Equal(t, http.StatusConflict, w.Code)

	// pending booking does not open the chat
	w = f.request(t, http.MethodGet, "/api/messages/trip1", nil, member("guest"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// only admins (or the approved organiser) validate
	w = f.request(t, http.MethodPut, "/api/bookings/validate/"+booking.Id, map[string]string{"status": "approved"}, member("guest"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, http.MethodPut, "/api/bookings/validate/"+booking.Id, map[string]string{"status": "approved"}, admin("root"))
	assert.Equal(t, http.StatusOK, w.Code)

	// approval opens the chat immediately
	w = f.request(t, http.MethodGet, "/api/messages/trip1", nil, member("guest"))
	assert.Equal(t, http.StatusOK, w.Code)

	// and the member was told
	stored, err = f.store.GetNotifications("guest", 20)
	assert.NoError(t, err)
	if assert.Len(t, stored, 1) {
		assert.Equal(t, types.NotificationTypeBookingStatus, stored[0].Type)
		assert.Equal(t, "/chat/trip1", stored[0].Link)
	}

	// revocation closes it again
	w = f.request(t, http.MethodPut, "/api/bookings/validate/"+booking.Id, map[string]string{"status": "revoked"}, admin("root"))
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.request(t, http.MethodGet, "/api/messages/trip1", nil, member("guest"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOrganiserValidatesOwnTrip(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "organiser", Destination: "Lisbon", OrganiserStatus: types.TripStatusApproved}))
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip2", UserId: "other", Destination: "Porto"}))

	w := f.request(t, http.MethodPost, "/api/bookings/join", map[string]string{"tripId": "trip1"}, member("guest"))
	assert.Equal(t, http.StatusCreated, w.Code)
	booking := &types.Booking{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), booking))

	// the approved organiser was notified instead of the admins
	stored, err := f.store.GetNotifications("organiser", 20)
	assert.NoError(t, err)
	assert.Len(t, stored, 1)

	w = f.request(t, http.MethodPut, "/api/bookings/validate/"+booking.Id, map[string]string{"status": "approved"}, member("organiser"))
	assert.Equal(t, http.StatusOK, w.Code)

	// but not bookings on someone else's trip
	w2 := f.request(t, http.MethodPost, "/api/bookings/join", map[string]string{"tripId": "trip2"}, member("guest"))
	assert.Equal(t, http.StatusCreated, w2.Code)
	other := &types.Booking{}
	assert.NoError(t, json.Unmarshal(w2.Body.Bytes(), other))
	w2 = f.request(t, http.MethodPut, "/api/bookings/validate/"+other.Id, map[string]string{"status": "approved"}, member("organiser"))
	assert.Equal(t, http.StatusForbidden, w2.Code)
}

func TestValidateOrphanedBooking(t *testing.T) {
	f := newFixture(t)
	booking := &types.Booking{UserId: "guest", TripId: "gone-trip", Status: types.BookingStatusPending}
	assert.NoError(t, f.store.StoreBooking(booking))

	w := f.request(t, http.MethodPut, "/api/bookings/validate/"+booking.Id, map[string]string{"status": "approved"}, admin("root"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Trip not found"}`, w.Body.String())

	// the booking stays untouched and the owner is not notified
	got := &types.Booking{Id: booking.Id}
	assert.NoError(t, f.store.GetBooking(got))
	assert.Equal(t, types.BookingStatusPending, got.Status)
	stored, err := f.store.GetNotifications("guest", 20)
	assert.NoError(t, err)
	assert.Len(t, stored, 0)
}

func TestBookingStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))

	w := f.request(t, http.MethodGet, "/api/bookings/status/trip1", nil, member("guest"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"none"}`, w.Body.String())

	assert.NoError(t, f.store.StoreBooking(&types.Booking{UserId: "guest", TripId: "trip1", Status: types.BookingStatusPending}))
	w = f.request(t, http.MethodGet, "/api/bookings/status/trip1", nil, member("guest"))
	assert.Equal(t, http.StatusOK, w.Code)
	booking := &types.Booking{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), booking))
	assert.Equal(t, types.BookingStatusPending, booking.Status)
}

func TestCreateAndSearchTrips(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/api/trips", map[string]interface{}{
		"destination": "Lisbon",
		"duration":    5,
		"budget":      "moderate",
		"isPublic":    true,
	}, member("creator"))
	assert.Equal(t, http.StatusCreated, w.Code)
	trip := &types.Trip{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), trip))
	assert.NotEmpty(t, trip.Id)
	assert.Equal(t, "creator", trip.UserId)
	assert.Equal(t, types.TripStatusPending, trip.Status)

	// pending trips are not listed publicly
	w = f.request(t, http.MethodGet, "/api/trips", nil, member("someone"))
	assert.Equal(t, http.StatusOK, w.Code)
	trips := []*types.Trip{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &trips))
	assert.Len(t, trips, 0)

	w = f.request(t, http.MethodPut, "/api/trips/"+trip.Id+"/status", map[string]string{"status": "approved"}, admin("root"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/trips?q=lisbon", nil, member("someone"))
	assert.Equal(t, http.StatusOK, w.Code)
	trips = []*types.Trip{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &trips))
	assert.Len(t, trips, 1)
}

func TestTripVisibility(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator", IsPublic: false}))

	w := f.request(t, http.MethodGet, "/api/trips/trip1", nil, member("stranger"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.request(t, http.MethodGet, "/api/trips/trip1", nil, member("creator"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/trips/trip1", nil, admin("root"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrganiserApprovalPromotesCreator(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreUser(types.User{Id: "creator", Role: types.RoleUser}))
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator", Destination: "Lisbon", RequestOrganiser: true}))

	w := f.request(t, http.MethodPut, "/api/trips/trip1/organiser-status", map[string]string{"status": "approved"}, member("creator"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, http.MethodPut, "/api/trips/trip1/organiser-status", map[string]string{"status": "approved"}, admin("root"))
	assert.Equal(t, http.StatusOK, w.Code)

	user := &types.User{Id: "creator"}
	assert.NoError(t, f.store.GetUser(user))
	assert.Equal(t, types.RoleOrganiser, user.Role)
}

func TestDeleteTrip(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.store.StoreTrip(types.Trip{Id: "trip1", UserId: "creator"}))

	w := f.request(t, http.MethodDelete, "/api/trips/trip1", nil, member("stranger"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, http.MethodDelete, "/api/trips/trip1", nil, member("creator"))
	assert.Equal(t, http.StatusOK, w.Code)

	err := f.store.GetTrip(&types.Trip{Id: "trip1"})
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
