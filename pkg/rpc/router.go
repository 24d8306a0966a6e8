package rpc

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nexusd/nexuscore/internal/logger"
)

// router builds the chi router for the RPC surface.
//
// Middleware stack and route grouping follow the teacher's
// pkg/controlplane/api/router.go: RequestID/RealIP/custom
// requestLogger/Recoverer/Timeout globally, a bearer-JWT group wrapping
// every mutating or state-reading Nexus route.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(s.verifier))

			r.Route("/nexus", func(r chi.Router) {
				r.Post("/", s.handleCreateNexus)
				r.Get("/", s.handleListNexus)

				r.Route("/{name}", func(r chi.Router) {
					r.Delete("/", s.handleDestroyNexus)
					r.Get("/", s.handleGetNexus)

					r.Post("/publish", s.handlePublishNexus)
					r.Post("/unpublish", s.handleUnpublishNexus)

					// Child URIs (aio://, nvmf://...) contain slashes, so they
					// travel in the request body rather than a path segment.
					r.Post("/children", s.handleAddChild)
					r.Post("/children/remove", s.handleRemoveChild)
					r.Post("/children/offline", s.handleOfflineChild)
					r.Post("/children/online", s.handleOnlineChild)

					// Rebuild jobs are addressed by destination child URI (at
					// most one job per destination), not job ID: stop takes
					// it in the POST body, progress as a query parameter,
					// since the URI itself may contain slashes.
					r.Post("/rebuild/start", s.handleStartRebuild)
					r.Post("/rebuild/stop", s.handleStopRebuild)
					r.Get("/rebuild/progress", s.handleRebuildProgress)

					r.Get("/events", s.handleEvents)
				})
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isHealthPath(path string) bool {
	return path == "/health"
}

// requestLogger logs request start/completion, matching the teacher's
// pattern of quieting healthcheck noise to DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			logger.RequestID(requestID),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.DurationMs(float64(time.Since(start).Microseconds()) / 1000),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("RPC request completed", attrs...)
		} else {
			logger.Info("RPC request completed", attrs...)
		}
	})
}
