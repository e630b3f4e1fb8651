package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"incident-desk/api"
	"incident-desk/config"
	"incident-desk/core/auth"
	"incident-desk/core/identity"
	"incident-desk/core/incidents"
	"incident-desk/core/janitor"
	"incident-desk/core/notify"
	"incident-desk/core/rbac"
	"incident-desk/core/responses"
	"incident-desk/core/store"
	"incident-desk/core/utils"

	"golang.org/x/sync/errgroup"
)

const (
	notifyDrainTimeout  = 15 * time.Second
	workerStopTimeout   = 10 * time.Second
	migrationRunTimeout = 2 * time.Minute
)

type runtimeComposition struct {
	server     *api.Server
	dispatcher *notify.Dispatcher
	janitor    *janitor.Scheduler
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	responsesStore := store.NewResponsesStore(db)
	resetTokens := store.NewResetTokensStore(db)
	deliveries := store.NewDeliveriesStore(db)
	tx := store.NewTxManager(db)

	policy, err := rbac.BuildPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, fmt.Errorf("rbac policy: %w", err)
	}
	issuer, err := auth.NewResetTokenIssuer(cfg.ResetSecret(), cfg.EffectiveResetTTL())
	if err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher(notify.NewSender(cfg.Mail, logger), deliveries, cfg.Notify, logger.With("component", "notify"))
	notifier := notify.NewNotifier(notify.DefaultTemplates(), dispatcher, logger)

	identitySvc := identity.NewService(cfg, tx, users, issuer, notifier, logger)
	incidentsSvc := incidents.NewService(tx, incidentsStore, notifier, logger)
	responsesSvc := responses.NewService(tx, incidentsStore, responsesStore, notifier, cfg.Notify.OnResponse, logger)

	server := api.NewServer(cfg, api.Deps{
		DB:             db,
		Policy:         policy,
		Users:          users,
		Sessions:       sessions,
		Deliveries:     deliveries,
		SessionManager: auth.NewSessionManager(sessions, cfg, logger),
		Identity:       identitySvc,
		Incidents:      incidentsSvc,
		Responses:      responsesSvc,
	}, logger)

	return &runtimeComposition{
		server:     server,
		dispatcher: dispatcher,
		janitor:    janitor.NewScheduler(cfg.Scheduler, sessions, resetTokens, logger.With("component", "janitor")),
	}, nil
}

// Run opens the database, applies migrations and serves until ctx is done.
// Queued notifications are drained before it returns.
func Run(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return err
	}
	rt, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	if err := rt.janitor.StartWithContext(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.server.Run(gctx)
	})
	g.Go(func() error {
		return rt.dispatcher.Run(gctx, notifyDrainTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), workerStopTimeout)
		defer cancel()
		return rt.janitor.StopWithContext(stopCtx)
	})
	err = g.Wait()
	logger.Printf("shutdown complete")
	return err
}

// Migrate applies pending schema migrations and exits.
func Migrate(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, migrationRunTimeout)
	defer cancel()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return store.ApplyMigrations(ctx, db, logger)
}
