package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gorilla/schema"
	"github.com/syntrixbase/concierge/internal/ask"
	"github.com/syntrixbase/concierge/internal/realtime"
)

// registry is the introspection surface of the subscription coordinator.
type registry interface {
	teardown
	ListRooms() []realtime.RoomInfo
	RoomsCount() int
	CustomersCount() int
}

// Server is the gateway front-end: the websocket endpoint clients subscribe
// through, plus a small REST surface for health and room introspection.
type Server struct {
	config Config
	hub    *Hub
	bus    *ask.Bus
	clerk  registry
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates the gateway server.
func NewServer(config Config, hub *Hub, bus *ask.Bus, clerk registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		hub:    hub,
		bus:    bus,
		clerk:  clerk,
		mux:    http.NewServeMux(),
		logger: logger.With("component", "gateway"),
	}
	s.mux.HandleFunc("/v1/realtime", s.handleRealtime)
	s.mux.HandleFunc("/v1/rooms", s.handleRooms)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the listen address for the configured host and port.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	serveWs(s.hub, s.bus, s.clerk, s.logger, w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// roomsQuery are the paging parameters of the room listing.
type roomsQuery struct {
	From int `schema:"from"`
	Size int `schema:"size"`
}

// roomsResponse is the room listing envelope.
type roomsResponse struct {
	Total       int                 `json:"total"`
	Connections int                 `json:"connections"`
	Rooms       []realtime.RoomInfo `json:"rooms"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := roomsQuery{Size: 50}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&query, r.URL.Query()); err != nil {
		s.logger.Warn("Rooms: invalid query parameters", "error", err)
		writeError(w, http.StatusBadRequest, "invalid query parameters")
		return
	}
	if query.From < 0 || query.Size < 0 {
		writeError(w, http.StatusBadRequest, "paging parameters must be positive")
		return
	}

	rooms := s.clerk.ListRooms()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })

	total := len(rooms)
	if query.From > total {
		query.From = total
	}
	end := query.From + query.Size
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, roomsResponse{
		Total:       total,
		Connections: s.clerk.CustomersCount(),
		Rooms:       rooms[query.From:end],
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
