package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tripmesh/tripmesh-server/auth"
	"github.com/tripmesh/tripmesh-server/config"
	"github.com/tripmesh/tripmesh-server/membership"
	"github.com/tripmesh/tripmesh-server/persistence"
	"github.com/tripmesh/tripmesh-server/ws"
)

// Server wires the REST surface and the websocket endpoint to the store and
// the hub. Every route below /api requires a verified session identity.
type Server struct {
	cfg        *config.Config
	store      persistence.Store
	hub        *ws.Hub
	authority  *membership.Authority
	controller *ws.Controller
	notifier   *ws.Notifier
	validate   *validator.Validate
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, store persistence.Store, hub *ws.Hub) *Server {
	authority := membership.NewAuthority(store)
	return &Server{
		cfg:        cfg,
		store:      store,
		hub:        hub,
		authority:  authority,
		controller: ws.NewController(hub, store, authority),
		notifier:   ws.NewNotifier(hub, store),
		validate:   validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	authed := auth.Middleware(s.cfg.SessionSecret)

	router.Handle("/ws", authed(http.HandlerFunc(s.websocketHandler))).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authed)

	api.HandleFunc("/messages/{tripId}", s.getMessageHistory).Methods(http.MethodGet)

	api.HandleFunc("/notifications", s.getNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/mark-all-read", s.markAllNotificationsRead).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}/read", s.markNotificationRead).Methods(http.MethodPut)

	api.HandleFunc("/bookings/join", s.createBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/user-bookings", s.getUserBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/status/{tripId}", s.getBookingStatus).Methods(http.MethodGet)
	api.HandleFunc("/bookings/trip/{tripId}/members", s.getTripMembers).Methods(http.MethodGet)
	api.HandleFunc("/bookings/pending", s.getPendingBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/all", s.getAllBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/validate/{id}", s.validateBooking).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}", s.deleteBooking).Methods(http.MethodDelete)

	api.HandleFunc("/trips", s.createTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips", s.searchTrips).Methods(http.MethodGet)
	api.HandleFunc("/trips/user-trips", s.getUserTrips).Methods(http.MethodGet)
	api.HandleFunc("/trips/all", s.getAllTrips).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id}/status", s.setTripStatus).Methods(http.MethodPut)
	api.HandleFunc("/trips/{id}/organiser-status", s.setOrganiserStatus).Methods(http.MethodPut)
	api.HandleFunc("/trips/{id}", s.getTrip).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id}", s.deleteTrip).Methods(http.MethodDelete)

	return router
}
