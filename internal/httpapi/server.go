package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the agent-facing HTTP surface (/access/*), generalizing the
// teacher's ConsoleServer wiring: same global middleware stack, same
// grouped-routes shape, but with no auth middleware in front of it — the
// bearer credential itself is the authorization artifact here, checked
// per-endpoint rather than by a blanket group like the console's RS256
// session guard.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
}

func NewServer(access *AccessHandler, logger *zap.Logger) *Server {
	s := &Server{router: chi.NewRouter(), logger: logger.Named("httpapi")}
	s.routes(access)
	return s
}

func (s *Server) routes(access *AccessHandler) {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/access", func(r chi.Router) {
		r.Post("/request", access.RequestAccess)
		r.Post("/validate", access.Validate)
		r.Get("/logs", access.ListAccessLogs)
		r.Route("/requests/{id}", func(r chi.Router) {
			r.Get("/", access.GetAccessRequest)
		})
	})

	r.Route("/credentials", func(r chi.Router) {
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/revoke", access.RevokeCredential)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
