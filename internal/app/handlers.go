package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pairs_go/internal/domain"
	"pairs_go/internal/infra/feed"
	"pairs_go/internal/infra/storage"
	"pairs_go/internal/service"
)

const (
	defaultIntentLimit = 100
	resetTimeout       = 5 * time.Second
)

// API is the HTTP surface served next to /metrics. Store, Router and Feed
// may be nil; routes that need them are then not registered.
type API struct {
	Monitor *service.PairMonitor
	Store   *storage.Storage
	Router  *feed.Router
	Feed    domain.BarFeed
}

type healthResponse struct {
	Status        string `json:"status"`
	FeedConnected bool   `json:"feed_connected"`
}

// Routes returns the handlers keyed by ServeMux pattern.
func (a *API) Routes() map[string]http.Handler {
	routes := map[string]http.Handler{
		"GET /healthz":    http.HandlerFunc(a.health),
		"GET /pairs":      http.HandlerFunc(a.listPairs),
		"GET /pairs/{id}": http.HandlerFunc(a.getPair),
	}
	if a.Store != nil {
		routes["GET /pairs/{id}/intents"] = http.HandlerFunc(a.listIntents)
		routes["GET /registry"] = http.HandlerFunc(a.registry)
	}
	if a.Router != nil {
		routes["POST /pairs/{id}/reset"] = http.HandlerFunc(a.resetPair)
	}
	return routes
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a.Feed != nil {
		resp.FeedConnected = a.Feed.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listPairs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Monitor.GetAll())
}

func (a *API) getPair(w http.ResponseWriter, r *http.Request) {
	st, ok := a.Monitor.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown pair")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) listIntents(w http.ResponseWriter, r *http.Request) {
	limit := defaultIntentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	intents, err := a.Store.ListIntents(r.PathValue("id"), limit)
	if err != nil {
		slog.Error("Failed to list intents", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, intents)
}

// registry lists every pair the database has seen, including halted ones.
func (a *API) registry(w http.ResponseWriter, _ *http.Request) {
	pairs, err := a.Store.GetAllPairs()
	if err != nil {
		slog.Error("Failed to list pairs", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

// resetPair queues a reset behind the pair's pending bars.
func (a *API) resetPair(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "operator request"
	}

	ctx, cancel := context.WithTimeout(r.Context(), resetTimeout)
	defer cancel()
	err := a.Router.Reset(ctx, id, reason)
	switch {
	case err == nil:
		slog.Info("Reset queued", slog.String("pair", id), slog.String("reason", reason))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case errors.Is(err, feed.ErrUnknownPair):
		writeError(w, http.StatusNotFound, "unknown pair")
	case errors.Is(err, feed.ErrPairHalted):
		writeError(w, http.StatusConflict, "pair halted")
	default:
		writeError(w, http.StatusServiceUnavailable, "inbox busy")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.Any("error", err))
	}
}
