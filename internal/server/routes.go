package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs/signalroom/internal/config"
	"github.com/relabs/signalroom/internal/signaling"
)

// Server wires the REST and websocket surface to the signaling core.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *signaling.Registry
	handler  *signaling.Handler
	upgrader websocket.Upgrader
}

// New builds a Server around a shared registry.
func New(cfg *config.Config, logger *slog.Logger, registry *signaling.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		handler:  signaling.NewHandler(registry, logger, cfg.SendQueueSize),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowedOrigin == "" || cfg.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == cfg.AllowedOrigin
		},
	}
	return s
}

// RegisterRoutes attaches all endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms/create", s.withCORS(s.handleCreateRoom))
	mux.HandleFunc("GET /api/rooms/verify/{room_id}", s.withCORS(s.handleVerifyRoom))
	mux.HandleFunc("GET /api/health", s.withCORS(s.handleHealth))
	mux.HandleFunc("OPTIONS /api/", s.withCORS(func(w http.ResponseWriter, r *http.Request) {}))
	mux.HandleFunc("GET /ws/{room_id}", s.handleWS)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	id, key := s.registry.CreateRoom()
	s.logger.Info("room created", "room", id)

	writeJSON(w, http.StatusOK, map[string]string{
		"room_id":  id,
		"room_key": key,
	})
}

func (s *Server) handleVerifyRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	roomKey := r.URL.Query().Get("room_key")
	if roomKey == "" {
		writeError(w, http.StatusBadRequest, "Missing room key")
		return
	}

	switch err := s.registry.VerifyRoom(roomID, roomKey); {
	case errors.Is(err, signaling.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, signaling.ErrInvalidRoomKey):
		writeError(w, http.StatusUnauthorized, "Invalid room key")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"timestamp":    time.Now().Format(time.RFC3339),
		"active_rooms": s.registry.RoomCount(),
	})
}

// handleWS upgrades the connection and hands it to the signaling core. The
// room key travels in the "key" query parameter; admission checks happen
// before the connection joins any room.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	roomKey := r.URL.Query().Get("key")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "err", err)
		return
	}

	s.handler.Relay(conn, roomID, roomKey)
}

// withCORS mirrors the permissive CORS policy of the REST endpoints onto
// every response, including preflights.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := s.cfg.AllowedOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
