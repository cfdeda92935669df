package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
)

type createBookingRequest struct {
	TripId       string `json:"tripId" validate:"required"`
	Destination  string `json:"destination"`
	HotelId      string `json:"hotelId"`
	HotelName    string `json:"hotelName"`
	HotelImage   string `json:"hotelImage"`
	HotelAddress string `json:"hotelAddress"`
	Price        string `json:"price"`
	UserName     string `json:"userName"`
	UserEmail    string `json:"userEmail"`
}

// createBooking files a join request for a trip. Membership in the room is
// not granted here, only once the request is validated.
func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "tripId is required")
		return
	}

	trip := &types.Trip{Id: req.TripId}
	if err := s.store.GetTrip(trip); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("could not load trip", "error", err, "trip", req.TripId)
		writeMessage(w, http.StatusInternalServerError, "could not load trip")
		return
	}

	booking := &types.Booking{
		UserId:       identity.UserId,
		TripId:       req.TripId,
		Destination:  req.Destination,
		HotelId:      req.HotelId,
		HotelName:    req.HotelName,
		HotelImage:   req.HotelImage,
		HotelAddress: req.HotelAddress,
		Price:        req.Price,
		UserName:     req.UserName,
		UserEmail:    req.UserEmail,
		Status:       types.BookingStatusPending,
	}
	if booking.UserName == "" {
		booking.UserName = identity.Username
	}
	if err := s.store.StoreBooking(booking); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			writeMessage(w, http.StatusConflict, "You already have a booking for this trip")
			return
		}
		globals.AppLogger.Error("could not store booking", "error", err, "trip", req.TripId)
		writeMessage(w, http.StatusInternalServerError, "could not store booking")
		return
	}

	s.notifyBookingRequest(booking, trip)
	writeJSON(w, http.StatusCreated, booking)
}

// notifyBookingRequest alerts whoever can validate the booking: the trip
// creator when they are an approved organiser, otherwise every admin.
func (s *Server) notifyBookingRequest(booking *types.Booking, trip *types.Trip) {
	body := fmt.Sprintf("New booking request from %s for %s", booking.UserName, trip.Destination)
	link := "/bookings/pending"

	if trip.OrganiserStatus == types.TripStatusApproved && trip.UserId != booking.UserId {
		if _, err := s.notifier.Notify(trip.UserId, types.NotificationTypeBookingRequest, body, link, booking.Id); err != nil {
			globals.AppLogger.Error("could not notify organiser", "error", err, "user", trip.UserId)
		}
		return
	}
	admins, err := s.store.GetUsersByRole(types.RoleAdmin)
	if err != nil {
		globals.AppLogger.Error("could not list admins", "error", err)
		return
	}
	for _, admin := range admins {
		if _, err := s.notifier.Notify(admin.Id, types.NotificationTypeBookingRequest, body, link, booking.Id); err != nil {
			globals.AppLogger.Error("could not notify admin", "error", err, "user", admin.Id)
		}
	}
}

// getBookingStatus tells the caller where their booking for a trip stands.
func (s *Server) getBookingStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	tripId := mux.Vars(r)["tripId"]

	booking, err := s.store.FindBooking(identity.UserId, tripId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "none"})
			return
		}
		globals.AppLogger.Error("could not load booking", "error", err, "trip", tripId)
		writeMessage(w, http.StatusInternalServerError, "could not load booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) getUserBookings(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	bookings, err := s.store.GetUserBookings(identity.UserId)
	if err != nil {
		globals.AppLogger.Error("could not load bookings", "error", err, "user", identity.UserId)
		writeMessage(w, http.StatusInternalServerError, "could not load bookings")
		return
	}
	if bookings == nil {
		bookings = []*types.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// getTripMembers lists the approved bookings of a trip. Members only.
func (s *Server) getTripMembers(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	tripId := mux.Vars(r)["tripId"]

	res, err := s.authority.Check(r.Context(), identity.UserId, tripId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("membership check failed", "error", err, "trip", tripId)
		writeMessage(w, http.StatusInternalServerError, "could not verify trip membership")
		return
	}
	if !res.Allowed {
		writeMessage(w, http.StatusForbidden, accessDeniedMessage)
		return
	}

	bookings, err := s.store.GetTripBookings(tripId, types.BookingStatusApproved)
	if err != nil {
		globals.AppLogger.Error("could not load trip bookings", "error", err, "trip", tripId)
		writeMessage(w, http.StatusInternalServerError, "could not load members")
		return
	}
	if bookings == nil {
		bookings = []*types.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *Server) getPendingBookings(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "admin only")
		return
	}
	bookings, err := s.store.GetBookingsByStatus(types.BookingStatusPending)
	if err != nil {
		globals.AppLogger.Error("could not load pending bookings", "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not load bookings")
		return
	}
	if bookings == nil {
		bookings = []*types.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *Server) getAllBookings(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "admin only")
		return
	}
	bookings, err := s.store.GetBookingsByStatus("")
	if err != nil {
		globals.AppLogger.Error("could not load bookings", "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not load bookings")
		return
	}
	if bookings == nil {
		bookings = []*types.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

type validateBookingRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected revoked"`
}

// validateBooking settles a booking request. Admins may validate any
// booking, an approved organiser only those on their own trips. Approval
// takes effect on the next membership check; revocation likewise, a revoked
// member's next send or join is refused even if their room subscription is
// still live.
func (s *Server) validateBooking(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var req validateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "status must be approved, rejected or revoked")
		return
	}

	booking := &types.Booking{Id: id}
	if err := s.store.GetBooking(booking); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Booking not found")
			return
		}
		globals.AppLogger.Error("could not load booking", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "could not load booking")
		return
	}

	trip := &types.Trip{Id: booking.TripId}
	if err := s.store.GetTrip(trip); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("could not load trip", "error", err, "trip", booking.TripId)
		writeMessage(w, http.StatusInternalServerError, "could not load trip")
		return
	}
	isOrganiser := trip.UserId == identity.UserId && trip.OrganiserStatus == types.TripStatusApproved
	if !identity.IsAdmin() && !isOrganiser {
		writeMessage(w, http.StatusForbidden, "not allowed to validate this booking")
		return
	}

	booking, err := s.store.UpdateBookingStatus(id, req.Status)
	if err != nil {
		globals.AppLogger.Error("could not update booking", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "could not update booking")
		return
	}

	s.notifyBookingStatus(booking, trip)
	writeJSON(w, http.StatusOK, booking)
}

// notifyBookingStatus tells the booking's owner about the decision. An
// approved member gets a link straight into the trip's chat room.
func (s *Server) notifyBookingStatus(booking *types.Booking, trip *types.Trip) {
	var body, link string
	switch booking.Status {
	case types.BookingStatusApproved:
		body = fmt.Sprintf("Your booking for %s was approved", trip.Destination)
		link = "/chat/" + booking.TripId
	case types.BookingStatusRejected:
		body = fmt.Sprintf("Your booking for %s was rejected", trip.Destination)
		link = "/bookings"
	case types.BookingStatusRevoked:
		body = fmt.Sprintf("Your access to %s was revoked", trip.Destination)
		link = "/bookings"
	default:
		return
	}
	if _, err := s.notifier.Notify(booking.UserId, types.NotificationTypeBookingStatus, body, link, booking.Id); err != nil {
		globals.AppLogger.Error("could not notify booking owner", "error", err, "user", booking.UserId)
	}
}

// deleteBooking removes a booking. The owner may withdraw their own request,
// admins may remove any.
func (s *Server) deleteBooking(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	booking := &types.Booking{Id: id}
	if err := s.store.GetBooking(booking); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Booking not found")
			return
		}
		globals.AppLogger.Error("could not load booking", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "could not load booking")
		return
	}
	if booking.UserId != identity.UserId && !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "not your booking")
		return
	}
	if err := s.store.DeleteBooking(booking); err != nil {
		globals.AppLogger.Error("could not delete booking", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "could not delete booking")
		return
	}
	writeMessage(w, http.StatusOK, "Booking deleted")
}
