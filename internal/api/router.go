// Package api exposes the research stores as a read-only HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/factorlab/internal/api/handlers"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// RouterOptions configures middleware
type RouterOptions struct {
	// RequestsPerSecond limits the whole API; 0 disables limiting
	RequestsPerSecond float64
	Burst             int
	Metrics           *metrics.Metrics
}

// NewRouter creates and configures the HTTP router
func NewRouter(query *handlers.QueryHandler, log *logger.Logger, opts RouterOptions) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
	}

	// API routes hang off the root router so a wrong method answers 405, not 404
	limit := func(h http.HandlerFunc) http.Handler { return h }
	if opts.RequestsPerSecond > 0 {
		limiter := rateLimitMiddleware(rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(opts.Burst, 1)))
		limit = func(h http.HandlerFunc) http.Handler { return limiter(h) }
	}
	r.Handle("/api/calendar/next", limit(query.GetNextDate)).Methods("GET")
	r.Handle("/api/available", limit(query.GetAvailable)).Methods("GET")
	r.Handle("/api/factors/{stage}/{class}", limit(query.GetFactors)).Methods("GET")
	r.Handle("/api/css", limit(query.GetCSS)).Methods("GET")
	r.Handle("/api/icov", limit(query.GetICov)).Methods("GET")
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	r.Use(loggingMiddleware(log, opts.Metrics))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "factorlab-api",
	})
}

// methodNotAllowedHandler answers a known path requested with the wrong method
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "method not allowed",
	})
}

// statusRecorder keeps the status code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests and counts them per route template
func loggingMiddleware(log *logger.Logger, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.ObserveRequest(route, strconv.Itoa(rec.status))
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// rateLimitMiddleware rejects requests beyond the limiter budget
func rateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
