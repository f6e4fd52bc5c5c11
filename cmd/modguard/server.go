package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sbnz-social/modguard/moderation"
	"github.com/sbnz-social/modguard/moderation/cachestore"
	"github.com/sbnz-social/modguard/moderation/engine"
	"github.com/sbnz-social/modguard/moderation/eventstore"
	"github.com/sbnz-social/modguard/moderation/suspendstore"
	"github.com/sbnz-social/modguard/moderation/userdir"
	"github.com/sbnz-social/modguard/util/cliutil"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/time/rate"
)

type StorageConfig struct {
	Logger           *slog.Logger
	DatabaseURL      string
	MaxDBConnections int
	RedisURL         string
	CacheTTL         time.Duration
}

// Backends selected from StorageConfig. Users is the uncached registry, for seeding.
type Stores struct {
	Users       userdir.Registry
	Events      eventstore.EventStore
	Suspensions suspendstore.SuspendStore
	Cache       cachestore.CacheStore
}

// Picks backends: redis for events, suspensions and cache when configured; otherwise the database when configured; otherwise process memory. The user directory is the database `users` table, or memory.
func SetupStores(config StorageConfig) (*Stores, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	st := &Stores{}

	if config.DatabaseURL != "" {
		db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
		if err != nil {
			return nil, fmt.Errorf("setting up database: %w", err)
		}
		dir, err := userdir.NewGormDirectory(db)
		if err != nil {
			return nil, err
		}
		st.Users = dir
		if config.RedisURL == "" {
			evt, err := eventstore.NewGormEventStore(db)
			if err != nil {
				return nil, err
			}
			sus, err := suspendstore.NewGormSuspendStore(db)
			if err != nil {
				return nil, err
			}
			st.Events = evt
			st.Suspensions = sus
		}
		logger.Info("using database for moderation storage", "redis", config.RedisURL != "")
	} else {
		st.Users = userdir.NewMemDirectory()
	}

	if config.RedisURL != "" {
		evt, err := eventstore.NewRedisEventStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis event store: %w", err)
		}
		st.Events = evt
		st.Suspensions = suspendstore.NewRedisSuspendStore(evt.Client)
		st.Cache = cachestore.NewRedisCacheStore(evt.Client, 10_000, ttl)
		logger.Info("using redis for moderation events and suspensions")
	} else {
		st.Cache = cachestore.NewMemCacheStore(10_000, ttl)
	}

	if st.Events == nil {
		logger.Warn("no database or redis configured, moderation state is in-process only")
		st.Events = eventstore.NewMemEventStore()
		st.Suspensions = suspendstore.NewMemSuspendStore()
	}
	return st, nil
}

type ServiceOptions struct {
	SlackWebhookURL string
	TriggerInterval time.Duration
	Concurrency     int
	// per-user reads per second during a pass; 0 is unlimited
	ReadRate float64
}

func NewModerationService(config StorageConfig, opts ServiceOptions) (*moderation.Service, *Stores, error) {
	stores, err := SetupStores(config)
	if err != nil {
		return nil, nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var notifier engine.Notifier
	if opts.SlackWebhookURL != "" {
		notifier = &engine.SlackNotifier{
			SlackWebhookURL: opts.SlackWebhookURL,
			Client:          cliutil.NewHttpClient(),
		}
	}

	svc, err := moderation.NewService(moderation.ServiceConfig{
		Logger:          logger,
		Users:           userdir.NewCachedDirectory(stores.Users, stores.Cache, logger),
		Events:          stores.Events,
		Suspensions:     suspendstore.NewCachedSuspendStore(stores.Suspensions, stores.Cache, logger),
		Notifier:        notifier,
		TriggerInterval: opts.TriggerInterval,
		Concurrency:     opts.Concurrency,
	})
	if err != nil {
		return nil, nil, err
	}
	if opts.ReadRate > 0 {
		svc.Engine.Limiter = rate.NewLimiter(rate.Limit(opts.ReadRate), 1)
	}
	return svc, stores, nil
}

type Server struct {
	svc        *moderation.Service
	stores     *Stores
	echo       *echo.Echo
	httpd      *http.Server
	logger     *slog.Logger
	adminToken string
}

type Config struct {
	StorageConfig
	Bind            string
	AdminToken      string
	SlackWebhookURL string
	TriggerInterval time.Duration
	Concurrency     int
	ReadRate        float64

	// HTTP metrics registry; defaults to the global prometheus registerer
	MetricsRegisterer prometheus.Registerer
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		config.Logger = logger
	}

	svc, stores, err := NewModerationService(config.StorageConfig, ServiceOptions{
		SlackWebhookURL: config.SlackWebhookURL,
		TriggerInterval: config.TriggerInterval,
		Concurrency:     config.Concurrency,
		ReadRate:        config.ReadRate,
	})
	if err != nil {
		return nil, err
	}
	return newServer(svc, stores, config, logger), nil
}

func newServer(svc *moderation.Service, stores *Stores, config Config, logger *slog.Logger) *Server {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		svc:        svc,
		stores:     stores,
		echo:       e,
		logger:     logger,
		adminToken: config.AdminToken,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	reg := config.MetricsRegisterer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "modguard",
		Registerer: reg,
	}))
	e.Use(otelecho.Middleware("modguard"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Validator = newRequestValidator()

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/metrics", echoprometheus.NewHandler())

	mod := e.Group("/api/moderation")
	mod.POST("/reports", srv.HandleReport)
	mod.POST("/blocks", srv.HandleBlock)
	mod.GET("/suspensions/:userId", srv.HandleSuspensionStatus)

	admin := e.Group("/api/admin", middleware.KeyAuth(srv.checkAdminToken))
	admin.POST("/detect", srv.HandleDetect)
	admin.GET("/mod/flags", srv.HandleRecentFlags)

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitSignals
	srv.logger.Info("received OS exit signal", "signal", sig)

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

// Stops accepting requests, then waits for any scheduled detection pass.
func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.httpd.Shutdown(ctx)
	srv.svc.Close()
	return err
}
