// Package testutil holds small helpers shared across handler and session
// tests.
package testutil

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRouter creates a chi router with a route registration function.
// Handler tests can use it to mount specific handler methods; the current
// handler tests call the methods directly through WithURLParam instead.
func SetupRouter(register func(r chi.Router)) *chi.Mux {
	r := chi.NewRouter()
	register(r)
	return r
}

// WithURLParam adds a single chi URL parameter to the request context, for
// unit-testing a handler method directly without going through the router.
func WithURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithURLParams adds multiple chi URL parameters to the request context.
func WithURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
