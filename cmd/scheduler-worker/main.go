package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/postpilot/postpilot-backend/api"
	"github.com/postpilot/postpilot-backend/api/routes"
	"github.com/postpilot/postpilot-backend/internal/calendar"
	"github.com/postpilot/postpilot-backend/internal/connections"
	"github.com/postpilot/postpilot-backend/internal/permissions"
	"github.com/postpilot/postpilot-backend/internal/posts"
	"github.com/postpilot/postpilot-backend/internal/publishing"
	"github.com/postpilot/postpilot-backend/internal/scheduler"
	"github.com/postpilot/postpilot-backend/pkg/config"
	"github.com/postpilot/postpilot-backend/pkg/db"
	"github.com/postpilot/postpilot-backend/pkg/instance"
	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/metrics"
	"github.com/postpilot/postpilot-backend/pkg/migrate"
	"github.com/postpilot/postpilot-backend/pkg/outbox"
	"github.com/postpilot/postpilot-backend/pkg/redis"
	"github.com/postpilot/postpilot-backend/pkg/security"
)

const (
	serviceName     = "scheduler-worker"
	shutdownTimeout = 60 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured, permission cache disabled")
	}

	cipher, err := security.NewTokenCipher(cfg.Security.TokenKey)
	if err != nil {
		logg.Error(context.Background(), "failed to load token key", err)
		os.Exit(1)
	}
	if cipher == nil && cfg.App.IsProd() {
		logg.Error(context.Background(), "token key is required in prod", errors.New("missing token key"))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulerMetrics := metrics.NewSchedulerMetrics(reg)

	registry, err := publishing.NewHTTPRegistry(
		cfg.Publishers,
		connections.NewService(dbClient.DB(), cipher),
		&http.Client{Transport: http.DefaultTransport},
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build publisher registry", err)
		os.Exit(1)
	}
	dispatcher, err := publishing.NewDispatcher(publishing.DispatcherParams{
		Registry:    registry,
		Logger:      logg,
		Metrics:     schedulerMetrics,
		Concurrency: cfg.Scheduler.DispatchConcurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build dispatcher", err)
		os.Exit(1)
	}

	planOracle, err := permissions.NewPlanOracle(permissions.NewPlanRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to build permission oracle", err)
		os.Exit(1)
	}
	var oracle permissions.Oracle = planOracle
	var permissionCache *permissions.CachedOracle
	if redisClient != nil {
		oracle = permissions.NewCachedOracle(planOracle, redisClient, cfg.Permissions.CacheTTL, logg)
		permissionCache, _ = oracle.(*permissions.CachedOracle)
	}

	workerID := instance.GetID()
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	postRepo := posts.NewRepository(dbClient.DB(), emitter, &outbox.ActorRef{Service: serviceName, Instance: workerID})
	calendarRepo := calendar.NewRepository(dbClient.DB())
	svc, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:     logg,
		Posts:      postRepo,
		Calendar:   calendarRepo,
		Oracle:     oracle,
		Dispatcher: dispatcher,
		Metrics:    schedulerMetrics,
		Config:     cfg.Scheduler,
		WorkerID:   workerID,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build scheduler", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		DB:         dbClient,
		Scheduler:  svc,
		Posts:      postRepo,
		Calendar:   calendarRepo,
		Publishers: registry,
		Gatherer:   reg,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	if permissionCache != nil {
		deps.PermissionCache = permissionCache
	}
	server := api.NewServer(cfg.App, routes.NewRouter(cfg, logg, deps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"addr":        server.Addr,
		"instance":    workerID,
		"platforms":   registry.Platforms(),
	})
	logg.Info(ctx, "starting scheduler worker")

	if cfg.Scheduler.AutoStart {
		svc.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		svc.Stop(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logg.Error(ctx, "scheduler worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "scheduler worker shutting down gracefully")
}
