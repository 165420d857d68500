package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/schema"
)

type roomStats struct {
	RoomID    string               `json:"roomId"`
	SessionID string               `json:"sessionId"`
	Status    string               `json:"status"`
	LatencyMS float64              `json:"latencyMs"`
	Decode    schema.StatsSnapshot `json:"decode"`
}

// newDebugRouter serves the metrics registry and a live view of rm.
func newDebugRouter(reg *prometheus.Registry, rm *room.Room) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := rm.Status()
		if status != room.StatusJoined {
			http.Error(w, status.String(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, rm.State())
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, roomStats{
			RoomID:    rm.ID(),
			SessionID: rm.SessionID(),
			Status:    rm.Status().String(),
			LatencyMS: float64(rm.Latency().Microseconds()) / 1000,
			Decode:    rm.Stats(),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
