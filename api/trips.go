package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/globals"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/types"
	"gorm.io/datatypes"
)

type createTripRequest struct {
	Destination      string          `json:"destination" validate:"required"`
	TripData         json.RawMessage `json:"tripData"`
	Duration         int             `json:"duration"`
	Budget           string          `json:"budget"`
	IsPublic         bool            `json:"isPublic"`
	Capacity         int             `json:"capacity"`
	Price            float64         `json:"price"`
	RequestOrganiser bool            `json:"requestOrganiser"`
}

// createTrip stores a generated itinerary. The trip id doubles as the chat
// room id, so creating a trip is also the only way a room comes into being.
func (s *Server) createTrip(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "destination is required")
		return
	}

	trip := types.Trip{
		Id:               uuid.NewString(),
		UserId:           identity.UserId,
		Destination:      req.Destination,
		TripData:         datatypes.JSON(req.TripData),
		Duration:         req.Duration,
		Budget:           req.Budget,
		IsPublic:         req.IsPublic,
		Status:           types.TripStatusPending,
		Capacity:         req.Capacity,
		Price:            req.Price,
		RequestOrganiser: req.RequestOrganiser,
		OrganiserStatus:  types.TripStatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.StoreTrip(trip); err != nil {
		globals.AppLogger.Error("could not store trip", "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not store trip")
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// searchTrips is the public explore surface: only public, approved trips
// are returned.
func (s *Server) searchTrips(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	filter := persistence.TripFilter{
		Query:        vals.Get("q"),
		Budget:       vals.Get("budget"),
		PublicOnly:   true,
		ApprovedOnly: true,
	}
	if v := vals.Get("minDays"); v != "" {
		filter.MinDays, _ = strconv.Atoi(v)
	}
	if v := vals.Get("maxDays"); v != "" {
		filter.MaxDays, _ = strconv.Atoi(v)
	}

	trips, err := s.store.SearchTrips(filter)
	if err != nil {
		globals.AppLogger.Error("could not search trips", "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not search trips")
		return
	}
	if trips == nil {
		trips = []*types.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *Server) getUserTrips(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	trips, err := s.store.GetUserTrips(identity.UserId)
	if err != nil {
		globals.AppLogger.Error("could not load trips", "error", err, "user", identity.UserId)
		writeMessage(w, http.StatusInternalServerError, "could not load trips")
		return
	}
	if trips == nil {
		trips = []*types.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}

// getTrip returns a single trip. Private pending trips are visible to their
// creator and to admins only.
func (s *Server) getTrip(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	trip := &types.Trip{Id: id}
	if err := s.store.GetTrip(trip); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("could not load trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not load trip")
		return
	}
	visible := trip.IsPublic || trip.UserId == identity.UserId || identity.IsAdmin()
	if !visible {
		writeMessage(w, http.StatusNotFound, "Trip not found")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) getAllTrips(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "admin only")
		return
	}
	trips, err := s.store.GetAllTrips()
	if err != nil {
		globals.AppLogger.Error("could not load trips", "error", err)
		writeMessage(w, http.StatusInternalServerError, "could not load trips")
		return
	}
	if trips == nil {
		trips = []*types.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}

type tripStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

// setTripStatus moderates a trip's public listing. Admin only.
func (s *Server) setTripStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "admin only")
		return
	}
	id := mux.Vars(r)["id"]

	var req tripStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}

	trip := &types.Trip{Id: id}
	if err := s.store.GetTrip(trip); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("could not load trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not load trip")
		return
	}
	trip.Status = req.Status
	if err := s.store.StoreTrip(*trip); err != nil {
		globals.AppLogger.Error("could not update trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not update trip")
		return
	}

	body := "Your trip to " + trip.Destination + " was " + req.Status
	if _, err := s.notifier.Notify(trip.UserId, types.NotificationTypeSystem, body, "/trips/"+trip.Id, trip.Id); err != nil {
		globals.AppLogger.Error("could not notify trip owner", "error", err, "user", trip.UserId)
	}
	writeJSON(w, http.StatusOK, trip)
}

// setOrganiserStatus settles an organiser request. Approval also promotes
// the creator to the organiser role so they can validate bookings on their
// own trips.
func (s *Server) setOrganiserStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "admin only")
		return
	}
	id := mux.Vars(r)["id"]

	var req tripStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}

	trip := &types.Trip{Id: id}
	if err := s.store.GetTrip(trip); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("could not load trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not load trip")
		return
	}
	trip.OrganiserStatus = req.Status
	if err := s.store.StoreTrip(*trip); err != nil {
		globals.AppLogger.Error("could not update trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not update trip")
		return
	}

	if req.Status == types.TripStatusApproved {
		user := &types.User{Id: trip.UserId}
		if err := s.store.GetUser(user); err == nil && user.Role == types.RoleUser {
			user.Role = types.RoleOrganiser
			if err := s.store.StoreUser(*user); err != nil {
				globals.AppLogger.Error("could not promote user", "error", err, "user", user.Id)
			}
		}
	}

	body := "Your organiser request for " + trip.Destination + " was " + req.Status
	if _, err := s.notifier.Notify(trip.UserId, types.NotificationTypeSystem, body, "/trips/"+trip.Id, trip.Id); err != nil {
		globals.AppLogger.Error("could not notify trip owner", "error", err, "user", trip.UserId)
	}
	writeJSON(w, http.StatusOK, trip)
}

// deleteTrip removes a trip together with its bookings. Creator or admin.
func (s *Server) deleteTrip(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	trip := &types.Trip{Id: id}
	if err := s.store.GetTrip(trip); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Trip not found")
			return
		}
		globals.AppLogger.Error("could not load trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not load trip")
		return
	}
	if trip.UserId != identity.UserId && !identity.IsAdmin() {
		writeMessage(w, http.StatusForbidden, "not your trip")
		return
	}
	if err := s.store.DeleteTrip(trip); err != nil {
		globals.AppLogger.Error("could not delete trip", "error", err, "trip", id)
		writeMessage(w, http.StatusInternalServerError, "could not delete trip")
		return
	}
	writeMessage(w, http.StatusOK, "Trip deleted")
}
