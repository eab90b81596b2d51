package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forkchat/pkg/api/handlers"
	"forkchat/pkg/config"
	"forkchat/pkg/logger"
)

// New assembles the full HTTP handler: health and metrics endpoints plus
// the versioned API, wrapped in logging, CORS, and rate-limit middleware.
func New(h *handlers.Handlers, cfg *config.Config) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterThreads(v1, h)
	handlers.RegisterMessages(v1, h)
	handlers.RegisterContext(v1, h)
	handlers.RegisterChat(v1, h)
	handlers.RegisterSnapshot(v1, h)

	var out http.Handler = r
	out = corsMiddleware(out, cfg.Server.CORS.AllowedOrigins)
	out = rateLimitMiddleware(out, cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	out = loggingMiddleware(out)
	return out
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}
