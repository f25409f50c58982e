package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-tickets/internal/api/http"
	"github.com/spec-kit/support-tickets/internal/api/http/handlers"
	"github.com/spec-kit/support-tickets/internal/api/realtime"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/clock"
	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/observability"
	"github.com/spec-kit/support-tickets/internal/persistence"
	"github.com/spec-kit/support-tickets/internal/repository"
	"github.com/spec-kit/support-tickets/internal/service"
	"github.com/spec-kit/support-tickets/internal/session"
	"github.com/spec-kit/support-tickets/internal/worker"
)

// tokenTTLMinutes only matters for tokens minted locally; production tokens
// come from the identity provider.
const tokenTTLMinutes = 60

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	var fb *persistence.Firebase
	if cfg.UsesFirebase() {
		fb, err = persistence.NewFirebase(ctx, cfg.Firestore, logger)
		if err != nil {
			logger.Fatal("failed to init firebase", zap.Error(err))
		}
		defer fb.Close()
	}

	health := map[string]handlers.Pinger{}

	tickets, closeStore, err := buildTicketRepository(ctx, cfg, fb, logger)
	if err != nil {
		logger.Fatal("failed to init ticket store", zap.Error(err))
	}
	defer closeStore()
	health["store"] = tickets

	sessions, closeSessions, err := buildSessionStore(ctx, cfg, logger, health)
	if err != nil {
		logger.Fatal("failed to init session store", zap.Error(err))
	}
	defer closeSessions()

	dispatcher := events.NewInMemoryDispatcher(logger)

	var bridge *events.NATSBridge
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS, logger)
		if err != nil {
			logger.Fatal("failed to connect nats", zap.Error(err))
		}
		defer nc.Drain() //nolint:errcheck
		bridge = events.NewNATSBridge(nc, cfg.NATS.SubjectPrefix, logger)
	}

	var pusher service.Pusher
	if cfg.Notification.FCMEnabled {
		client, err := fb.Messaging(ctx)
		if err != nil {
			logger.Fatal("failed to init fcm", zap.Error(err))
		}
		pusher = client
	}
	notificationService := service.NewNotificationService(dispatcher, pusher, logger, cfg.Notification)
	worker.StartNotificationWorker(dispatcher, notificationService, bridge)

	admins := auth.NewAdminAllowlist(cfg.Auth.AdminEmails)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, tokenTTLMinutes)
	resolver := auth.NewResolver(tokens, sessions)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Repo:       tickets,
		Dispatcher: dispatcher,
		Clock:      clock.Real(),
		Admins:     admins,
		Metrics:    metrics,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, health),
		Sessions:       handlers.NewSessionsHandler(sessions, admins, cfg.Session),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AdminTickets:   handlers.NewAdminTicketsHandler(ticketService),
		AuthMiddleware: auth.NewMiddleware(resolver, cfg.Session.HeaderName),
		Admins:         admins,
		Metrics:        metrics,
		MetricsPath:    cfg.Metrics.Path,
	})

	realtimeServer := &http.Server{
		Addr:              cfg.Realtime.Addr(),
		Handler:           realtime.NewServer(ticketService, resolver, cfg.Realtime, cfg.Session.HeaderName, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("realtime listening", zap.String("addr", realtimeServer.Addr))
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	_ = realtimeServer.Shutdown(shutdownCtx)
}

// buildTicketRepository selects the document store named by STORE_DRIVER.
func buildTicketRepository(ctx context.Context, cfg *config.Config, fb *persistence.Firebase, logger *zap.Logger) (repository.TicketRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		client, err := fb.Firestore(ctx)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using firestore ticket store", zap.String("collection", cfg.Store.Collection))
		return repository.NewFirestoreTicketRepository(client, cfg.Store.Collection, logger), func() {}, nil
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresTicketRepository(pg.Pool, logger)
		logger.Info("using postgres ticket store")
		return repo, func() {
			repo.Close()
			pg.Close()
		}, nil
	default:
		logger.Warn("using in-memory ticket store; tickets are lost on restart")
		return repository.NewMemoryTicketRepository(), func() {}, nil
	}
}

// buildSessionStore selects the anonymous session registry and registers
// its health probe.
func buildSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, health map[string]handlers.Pinger) (session.Store, func(), error) {
	if cfg.Session.Driver != config.SessionDriverRedis {
		return session.NewMemoryStore(clock.Real(), cfg.Session.TTL()), func() {}, nil
	}
	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, nil, err
	}
	health["redis"] = rdb
	return session.NewRedisStore(rdb.Client, cfg.Session.KeyPrefix, cfg.Session.TTL()), rdb.Close, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
