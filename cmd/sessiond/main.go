// Command sessiond keeps the classroom app's auth session resolved: it follows
// the hosted identity provider, provisions profiles on first sign-in, and
// serves the session state and admin user management over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classroomhub/classroom/internal/api"
	"github.com/classroomhub/classroom/internal/api/handler"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/core/service"
	mongostore "github.com/classroomhub/classroom/internal/infrastructure/db/mongo"
	pgstore "github.com/classroomhub/classroom/internal/infrastructure/db/postgres"
	redisstore "github.com/classroomhub/classroom/internal/infrastructure/db/redis"
	"github.com/classroomhub/classroom/internal/infrastructure/gotrue"
	"github.com/classroomhub/classroom/internal/infrastructure/queue"
	"github.com/classroomhub/classroom/internal/pkg/config"
	"github.com/classroomhub/classroom/pkg/logger"
)

const (
	serviceName     = "sessiond"
	shutdownTimeout = 10 * time.Second
	eventBuffer     = 64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// profileStore is the selected profile backend plus its health check.
type profileStore interface {
	ports.ProfileRepository
	handler.Pinger
}

func run(ctx context.Context) error {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: serviceName,
		Env:     cfg.Env,
	})

	repo, closeRepo, err := openProfileStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	checks := map[string]handler.Pinger{cfg.ProfileStore: repo}

	var sessions ports.SessionStore
	if cfg.PersistSessions() {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		store, err := redisstore.NewSessionStore(rdb, cfg.Auth.SessionStorageKey, cfg.Auth.SessionKey, 0)
		if err != nil {
			return err
		}
		sessions = store
		checks["redis"] = store
	} else {
		log.Warn().Msg("session persistence disabled; set REDIS_ADDR and SESSION_KEY to keep sign-ins across restarts")
	}

	provider := gotrue.NewProvider(
		gotrue.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Auth.CallTimeout),
		gotrue.NewClaimsParser(cfg.Auth.JWTSecret),
		sessions,
		gotrue.Options{RefreshMargin: cfg.Auth.RefreshMargin},
		logger.Component("gotrue"),
	)
	if err := provider.Restore(ctx); err != nil {
		// A stale or undecryptable session just means signing in again.
		log.Warn().Err(err).Msg("could not restore session")
	}

	roles := service.NewRoleResolver(repo, service.RoleResolverOptions{
		Timeout:    cfg.Roles.Timeout,
		MaxRetries: cfg.Roles.MaxRetries,
		RetryDelay: cfg.Roles.RetryDelay,
	}, logger.Component("roles"))
	boot := service.NewBootstrapper(provider, repo, roles, cfg.Auth.CallTimeout, logger.Component("bootstrap"))
	events := queue.NewDispatcher(eventBuffer, logger.Component("events"))
	reconciler := service.NewReconciler(provider, boot, roles, events, logger.Component("reconciler"))
	defer reconciler.Close()
	users := service.NewUserService(repo, roles, cfg.Auth.CallTimeout, logger.Component("users"))

	e, err := api.NewRouter(api.Deps{
		Sessions: reconciler,
		SignIn:   provider,
		Users:    users,
		Checks:   checks,
		Log:      logger.Component("http"),
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	go provider.Run(ctx)
	go reconciler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("profile_store", cfg.ProfileStore).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	reconciler.Close()
	events.Wait()
	return nil
}

func openProfileStore(ctx context.Context, cfg *config.Config) (profileStore, func(), error) {
	switch cfg.ProfileStore {
	case config.StoreMongo:
		repo, disconnect, err := mongostore.OpenProfileRepository(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = disconnect(context.Background()) }, nil

	default:
		pool, err := pgstore.Connect(ctx, pgstore.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgstore.NewProfileRepository(pool), pool.Close, nil
	}
}
