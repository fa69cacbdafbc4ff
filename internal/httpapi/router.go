package httpapi

import (
	"net/http"
)

// RouterConfig lists the handlers mounted by NewRouter. Nil handlers are
// skipped.
type RouterConfig struct {
	Rooms    *RoomHandler
	Sessions *SessionHandler

	// Metrics is served at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string

	// Observer sees every request with its matched route pattern.
	Observer RequestObserver

	// Middleware wraps the whole router, outermost first.
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Rooms != nil {
		mux.HandleFunc("GET /api/rooms", cfg.Rooms.List)
		mux.HandleFunc("POST /api/rooms", cfg.Rooms.Create)
		mux.HandleFunc("PUT /api/rooms/{id}", cfg.Rooms.Rename)
		mux.HandleFunc("DELETE /api/rooms/{id}", cfg.Rooms.Delete)
	}

	if cfg.Sessions != nil {
		mux.HandleFunc("GET /api/sessions", cfg.Sessions.List)
		mux.HandleFunc("GET /api/sessions/today", cfg.Sessions.Today)
		mux.HandleFunc("GET /api/sessions/{date}", cfg.Sessions.Get)
		mux.HandleFunc("POST /api/sessions/{date}/check-in", cfg.Sessions.CheckIn)
	}

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, cfg.Metrics)
	}

	var handler http.Handler = Observe(cfg.Observer)(mux)
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
