package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailcrab/mailcrab/internal/broadcast"
	"github.com/mailcrab/mailcrab/internal/live"
	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/observability"
	"github.com/mailcrab/mailcrab/internal/store"
)

// NewRouter builds the full HTTP API, mounted under prefix (which may be
// empty), wired to st for message data and bus for the live subscription.
// metrics may be nil, in which case /metrics is not mounted.
func NewRouter(prefix string, st *store.Store, bus *broadcast.Bus[mail.Message], logger *slog.Logger, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := NewHandlers(st)
	liveHandler := live.NewHandler(bus, st, logger, metrics)

	mount := func(r chi.Router) {
		r.Get("/api/messages", h.ListMessages)
		r.Get("/api/message/{id}", h.GetMessage)
		r.Get("/api/message/{id}/body", h.GetMessageBody)
		r.Post("/api/delete/{id}", h.DeleteMessage)
		r.Post("/api/delete-all", h.DeleteAll)
		r.Get("/api/version", h.Version)
		r.Get("/ws", liveHandler.ServeHTTP)
		if metrics != nil {
			r.Handle("/metrics", promhttp.Handler())
		}
	}

	if prefix == "" {
		mount(r)
		return r
	}

	r.Route(prefix, mount)
	return r
}
