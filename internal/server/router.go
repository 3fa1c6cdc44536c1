package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"topthat/internal/room"
)

// Lister reports the open lobbies.
type Lister interface {
	List() []room.Info
}

func NewRouter(h *Hub, d Dispatcher, rooms Lister, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/rooms", func(w http.ResponseWriter, req *http.Request) {
		list := rooms.List()
		if list == nil {
			list = []room.Info{}
		}
		writeJSON(w, log, list)
	})
	r.Get("/ws", h.ServeWS(d))
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, log *logrus.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("write json response")
	}
}
