package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parkdash/backend/libs/db"
	libredis "parkdash/backend/libs/redis"
	"parkdash/backend/services/dashboard/internal/clients"
	"parkdash/backend/services/dashboard/internal/config"
	"parkdash/backend/services/dashboard/internal/gateway"
	httpserver "parkdash/backend/services/dashboard/internal/http"
	"parkdash/backend/services/dashboard/internal/http/handlers"
	"parkdash/backend/services/dashboard/internal/http/middleware"
	"parkdash/backend/services/dashboard/internal/journal"
	"parkdash/backend/services/dashboard/internal/metrics"
	"parkdash/backend/services/dashboard/internal/repository"
	"parkdash/backend/services/dashboard/internal/session"
	"parkdash/backend/services/dashboard/internal/stream"
	"parkdash/backend/services/dashboard/internal/ws"
)

// App wires dashboard dependencies.
type App struct {
	cfg       *config.Config
	server    *httpserver.Server
	gateway   *gateway.Gateway
	manager   *ws.Manager
	publisher *ws.Publisher
	redis     *goredis.Client
	db        *sql.DB
	logger    *zap.Logger
}

// New constructs application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	newJournal := a.journalFactory(ctx)

	var audit session.AuditLog
	if cfg.AuditEnabled() {
		sqlDB, err := db.NewPostgresDB(ctx, cfg.Audit.DSN)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.db = sqlDB
		repo := repository.NewStreamLogRepository(sqlDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
		audit = repo
	}

	httpClient := clients.NewDefaultHTTPClient(cfg.Backend.Timeout)
	parking := clients.NewParkingClient(cfg.Backend.BaseURL, httpClient)
	dialer := stream.NewWebsocketDialer(cfg.Stream.PingInterval, cfg.Stream.WriteTimeout)

	a.manager = ws.NewManager(cfg.Console.PingInterval)
	a.publisher = ws.NewPublisher(a.manager, logger.Named("console"))

	factory := func(creds clients.Credentials) *session.Session {
		return session.New(session.Options{
			API:            parking.WithCredentials(creds),
			Dialer:         dialer,
			StreamURL:      cfg.Backend.StreamURL,
			Header:         creds.Header,
			NewJournal:     newJournal,
			Audit:          audit,
			Metrics:        m,
			DefaultCountry: cfg.DefaultCountry,
			StreamOptions:  []stream.Option{stream.WithBackoff(cfg.Stream.InitialBackoff, cfg.Stream.MaxBackoff)},
			FetchTimeout:   cfg.Roster.FetchTimeout,
			RecentPayments: cfg.Payments.RecentLimit,
			OnStreamState:  a.publisher.StreamChanged,
		}, logger)
	}
	logout := gateway.LogoutFunc(func(ctx context.Context, creds clients.Credentials) error {
		return parking.WithCredentials(creds).Logout(ctx)
	})
	a.gateway = gateway.New(parking, logout, factory, logger.Named("gateway"),
		gateway.WithSessionHook(a.publisher.Attach),
	)

	wsServer := ws.NewServer(a.manager, a.publisher, cfg.Console.WriteTimeout, logger.Named("console"))
	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandlers:    handlers.NewAuthHandlers(a.gateway, logger),
		StateHandlers:   handlers.NewStateHandlers(&historySource{gateway: a.gateway, client: parking}, logger),
		VehicleHandlers: handlers.NewVehicleHandlers(logger),
		PaymentHandlers: handlers.NewPaymentHandlers(logger),
		HealthHandler:   handlers.NewHealthHandler(parking),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		StateStream:     wsServer.HandleWS,
	}, middleware.RequireSession(a.gateway))

	a.server = httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

// journalFactory picks the Redis journal when configured and reachable, the in-memory
// ring otherwise.
func (a *App) journalFactory(ctx context.Context) func(string) journal.Journal {
	capacity := a.cfg.Journal.Capacity
	if !a.cfg.RedisEnabled() {
		return func(string) journal.Journal { return journal.NewMemoryJournal(capacity) }
	}
	client, err := libredis.NewRedisClient(ctx, libredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		a.logger.Warn("redis unavailable, keeping activity journal in memory", zap.String("addr", a.cfg.Redis.Addr), zap.Error(err))
		return func(string) journal.Journal { return journal.NewMemoryJournal(capacity) }
	}
	a.redis = client
	ttl := a.cfg.Redis.TTL
	return func(sessionID string) journal.Journal {
		return journal.NewRedisJournal(client, sessionID, capacity, ttl)
	}
}

// Run serves the console until ctx is done. A configured operator is logged in first.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		a.manager.Start(gctx)
		return nil
	})

	if a.cfg.AutoLogin() {
		if _, err := a.gateway.Login(gctx, a.cfg.Operator.Username, a.cfg.Operator.Password); err != nil {
			a.logger.Error("operator auto-login failed", zap.String("user", a.cfg.Operator.Username), zap.Error(err))
		}
	}

	err := g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close logs out and releases connections.
func (a *App) Close(ctx context.Context) {
	if a.gateway != nil {
		a.gateway.Close(ctx)
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close audit database", zap.Error(err))
		}
	}
}

type historySource struct {
	gateway *gateway.Gateway
	client  *clients.ParkingClient
}

func (h *historySource) History(ctx context.Context) (map[string][]clients.HistoryRecord, error) {
	creds, err := h.gateway.Credentials()
	if err != nil {
		return nil, err
	}
	return h.client.WithCredentials(creds).History(ctx)
}
