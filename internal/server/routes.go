package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arena-server/internal/database"
)

const defaultMatchLimit = 20

// Admin is the HTTP surface a remote control panel uses to watch and stop
// the arena. The store fields are optional.
type Admin struct {
	server *Server
	hub    *EventHub
	repo   *StatsRepository
	db     database.Service
	logger *slog.Logger
}

func NewAdmin(s *Server, hub *EventHub, repo *StatsRepository, db database.Service) *Admin {
	return &Admin{server: s, hub: hub, repo: repo, db: db, logger: s.logger}
}

func (a *Admin) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", a.healthHandler)
	r.Get("/status", a.statusHandler)
	r.Get("/matches", a.matchesHandler)
	r.Post("/close", a.closeHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.server.metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/events", a.eventsHandler)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Admin) writeJSON(w http.ResponseWriter, status int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		a.logger.Debug("failed to write response", "err", err)
	}
}

func (a *Admin) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"phase":  a.server.arena.Phase().String(),
	}
	if a.db != nil {
		resp["database"] = a.db.Health(r.Context())
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *Admin) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.server.Status())
}

func (a *Admin) matchesHandler(w http.ResponseWriter, r *http.Request) {
	if a.repo == nil {
		http.Error(w, "match store not configured", http.StatusNotFound)
		return
	}

	limit := defaultMatchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive number", http.StatusBadRequest)
			return
		}
		limit = n
	}

	matches, err := a.repo.RecentMatches(r.Context(), limit)
	if err != nil {
		a.logger.Error("loading matches", "err", err)
		http.Error(w, "failed to load matches", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []MatchRecord{}
	}
	a.writeJSON(w, http.StatusOK, matches)
}

// closeHandler mirrors the control panel's rule: no closing mid-match.
func (a *Admin) closeHandler(w http.ResponseWriter, r *http.Request) {
	if a.server.InGame() {
		a.writeJSON(w, http.StatusConflict, map[string]string{
			"error": "MATCH_IN_PROGRESS: cannot close while a match is running",
		})
		return
	}
	a.server.Close()
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (a *Admin) eventsHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		a.logger.Debug("events upgrade failed", "err", err)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	id, events := a.hub.Subscribe()
	defer a.hub.Unsubscribe(id)
	a.logger.Debug("admin feed connected", "subscriber", id)

	// the feed is one-way; CloseRead notices when the client goes away
	ctx := socket.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("admin feed closed", "subscriber", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := a.send(ctx, socket, ev); err != nil {
				a.logger.Debug("admin feed write failed", "subscriber", id, "err", err)
				return
			}
		}
	}
}

func (a *Admin) send(ctx context.Context, socket *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return socket.Write(ctx, websocket.MessageText, data)
}
