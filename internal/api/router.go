package api

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/kiranshivaraju/genforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	CreateToolTask http.HandlerFunc
	TaskStatus     http.HandlerFunc
	TaskResult     http.HandlerFunc

	ListHistory   http.HandlerFunc
	GetHistory    http.HandlerFunc
	DeleteHistory http.HandlerFunc
	ReuseHistory  http.HandlerFunc

	// DataDir is served read-only under /data/. Empty disables the route.
	DataDir string

	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Identify(deps.TrustedProxies))
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/tools", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit.Limit)
			}
			r.Post("/{toolType}/create", orNotImplemented(deps.CreateToolTask))
		})

		r.Get("/history", orNotImplemented(deps.ListHistory))
		r.Get("/history/{recordID}", orNotImplemented(deps.GetHistory))
		r.Delete("/history/{recordID}", orNotImplemented(deps.DeleteHistory))
		r.Get("/history/{recordID}/reuse", orNotImplemented(deps.ReuseHistory))
	})

	r.Get("/api/tasks/{taskID}/status", orNotImplemented(deps.TaskStatus))
	r.Get("/api/tasks/{taskID}/result", orNotImplemented(deps.TaskResult))

	if deps.DataDir != "" {
		files := http.StripPrefix("/data/", http.FileServer(http.Dir(deps.DataDir)))
		r.Method(http.MethodGet, "/data/*", files)
		r.Method(http.MethodHead, "/data/*", files)
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
