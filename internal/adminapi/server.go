package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/adminapi/handler"
	"github.com/toolaccess/broker/internal/adminapi/middleware"
	"github.com/toolaccess/broker/internal/credential"
)

// Server is the operator-facing HTTP surface, grounded directly on the
// teacher's console/server/server.go: one public route group for login and
// health, one protected group behind a session-auth middleware for
// everything else.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
}

type Handlers struct {
	Auth     *handler.AuthHandler
	Tool     *handler.ToolHandler
	Agent    *handler.AgentHandler
	Policy   *handler.PolicyHandler
	Approval *handler.ApprovalHandler
	Logs     *handler.AccessLogHandler
}

func NewServer(h Handlers, sessions *credential.SessionIssuer, logger *zap.Logger) *Server {
	s := &Server{router: chi.NewRouter(), logger: logger.Named("adminapi")}
	s.routes(h, sessions)
	return s
}

func (s *Server) routes(h Handlers, sessions *credential.SessionIssuer) {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Handle("/metrics", promhttp.Handler())
		r.Post("/auth/token", h.Auth.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(sessions, s.logger))

		r.Route("/tools", func(r chi.Router) {
			r.Post("/", h.Tool.Create)
			r.Get("/", h.Tool.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Tool.Get)
				r.Patch("/", h.Tool.Update)
				r.Post("/deactivate", h.Tool.Deactivate)
			})
		})

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", h.Agent.Create)
			r.Get("/", h.Agent.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Agent.Get)
				r.Patch("/roles", h.Agent.UpdateRoles)
				r.Post("/deactivate", h.Agent.Deactivate)
			})
		})

		r.Route("/policies", func(r chi.Router) {
			r.Post("/", h.Policy.Create)
			r.Get("/", h.Policy.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Policy.Get)
				r.Patch("/", h.Policy.Update)
				r.Delete("/", h.Policy.Delete)
			})
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", h.Approval.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Approval.GetDetails)
				r.Post("/decide", h.Approval.Decide)
			})
		})

		r.Get("/audit-logs", h.Logs.GetLogs)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
