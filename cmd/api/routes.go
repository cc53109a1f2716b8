package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/riplimit/backend/internal/middleware"
)

const maxRequestBody = 1 << 20

// buildHandler mounts the API next to the health and metrics endpoints.
// Chain: CORS -> RequestLog -> MaxBody -> mux.
func buildHandler(api http.Handler, reg *prometheus.Registry, be *backend, origins []string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		healthz(w, r, be)
	})

	var h http.Handler = mux
	h = middleware.MaxBody(maxRequestBody)(h)
	h = middleware.RequestLog(logger)(h)
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(h)
}

func healthz(w http.ResponseWriter, r *http.Request, be *backend) {
	w.Header().Set("Content-Type", "application/json")
	if be.pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := be.pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
