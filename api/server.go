package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"incident-desk/config"
	"incident-desk/core/auth"
	"incident-desk/core/identity"
	"incident-desk/core/incidents"
	"incident-desk/core/rbac"
	"incident-desk/core/responses"
	"incident-desk/core/store"
	"incident-desk/core/utils"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	router          chi.Router
	db              *sql.DB
	policy          *rbac.Policy
	users           store.UsersStore
	sessions        store.SessionStore
	deliveries      store.DeliveriesStore
	sessionManager  *auth.SessionManager
	identity        *identity.Service
	incidentsSvc    *incidents.Service
	responsesSvc    *responses.Service
	activityTracker *sessionActivity
	loginLimiter    *requestLimiter
	httpServer      *http.Server
}

// Deps is everything the HTTP layer needs from the core.
type Deps struct {
	DB             *sql.DB
	Policy         *rbac.Policy
	Users          store.UsersStore
	Sessions       store.SessionStore
	Deliveries     store.DeliveriesStore
	SessionManager *auth.SessionManager
	Identity       *identity.Service
	Incidents      *incidents.Service
	Responses      *responses.Service
}

func NewServer(cfg *config.AppConfig, deps Deps, logger *utils.Logger) *Server {
	burst := cfg.Security.LoginBurst
	if burst <= 0 {
		burst = 5
	}
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		db:              deps.DB,
		policy:          deps.Policy,
		users:           deps.Users,
		sessions:        deps.Sessions,
		deliveries:      deps.Deliveries,
		sessionManager:  deps.SessionManager,
		identity:        deps.Identity,
		incidentsSvc:    deps.Incidents,
		responsesSvc:    deps.Responses,
		activityTracker: newSessionActivity(),
		loginLimiter:    newLimiter(burst, time.Minute),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.EffectiveRequestTimeout() + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer.ErrorLog = slog.NewLogLogger(s.logger.Slog().Handler(), slog.LevelError)
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s (tls=%v)", s.cfg.ListenAddr, s.cfg.TLSEnabled)
		var err error
		if s.cfg.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
