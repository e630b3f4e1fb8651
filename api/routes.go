package api

import (
	"net/http"

	"incident-desk/api/handlers"
	"incident-desk/api/routegroups"
	"incident-desk/core/rbac"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type routeHandlers struct {
	auth          *handlers.AuthHandler
	incidents     *handlers.IncidentsHandler
	notifications *handlers.NotificationsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:          handlers.NewAuthHandler(s.cfg, s.identity, s.sessionManager, s.policy, s.logger),
		incidents:     handlers.NewIncidentsHandler(s.incidentsSvc, s.responsesSvc, s.logger),
		notifications: handlers.NewNotificationsHandler(s.deliveries, s.logger),
	}
}

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{
		WithSession:       s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc { return s.requirePermission(rbac.Permission(p)) },
	}
}

func (s *Server) registerRoutes() {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(chimw.Timeout(s.cfg.EffectiveRequestTimeout()))

	r.Get("/healthz", s.health)

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		apiRouter.MethodFunc("POST", "/auth/register", s.rateLimitMiddleware(h.auth.Register))
		apiRouter.MethodFunc("POST", "/auth/login", s.rateLimitMiddleware(h.auth.Login))
		apiRouter.MethodFunc("POST", "/auth/forgot-password", s.rateLimitMiddleware(h.auth.ForgotPassword))
		apiRouter.MethodFunc("POST", "/auth/reset-password", s.rateLimitMiddleware(h.auth.ResetPassword))

		g := s.guards()
		apiRouter.MethodFunc("POST", "/auth/logout", g.Session(h.auth.Logout))
		apiRouter.MethodFunc("GET", "/auth/me", g.Session(h.auth.Me))
		routegroups.RegisterIncidents(apiRouter, g, h.incidents)
		routegroups.RegisterNotifications(apiRouter, g, h.notifications)
	})
	s.router = r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			state = "db unavailable"
		}
	}
	writeJSON(w, status, map[string]string{"status": state})
}
