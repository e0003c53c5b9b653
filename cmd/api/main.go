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
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/splitpay-backend/api/routes"
	"github.com/angelmondragon/splitpay-backend/internal/items"
	"github.com/angelmondragon/splitpay-backend/internal/ledger"
	"github.com/angelmondragon/splitpay-backend/internal/payments"
	"github.com/angelmondragon/splitpay-backend/internal/realtime"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/config"
	"github.com/angelmondragon/splitpay-backend/pkg/db"
	"github.com/angelmondragon/splitpay-backend/pkg/instance"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/metrics"
	"github.com/angelmondragon/splitpay-backend/pkg/migrate"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox"
	"github.com/angelmondragon/splitpay-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/splitpay-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	instanceID := instance.GetID()
	var relay realtime.Relay
	if cfg.Realtime.Relay {
		relay = realtime.NewRedisRelay(redisClient)
	}
	hub, err := realtime.NewHub(realtime.HubParams{
		Config: realtime.Config{
			WriteWait:       cfg.Realtime.WriteWait,
			PongWait:        cfg.Realtime.PongWait(),
			PingInterval:    cfg.Realtime.HeartbeatInterval,
			SendBuffer:      cfg.Realtime.SendBuffer,
			MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
			AllowedOrigins:  cfg.App.AllowedOrigins(),
		},
		InstanceID: instanceID,
		Relay:      relay,
		Metrics:    appMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime hub", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	sessionsRepo := sessions.NewRepository(dbClient.DB())
	itemsRepo := items.NewRepository(dbClient.DB())

	sessionsSvc, err := sessions.NewService(sessions.ServiceParams{
		Repo:              sessionsRepo,
		TransactionRunner: dbClient,
		Outbox:            outboxSvc,
		Announcer:         hub,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	itemsSvc, err := items.NewService(items.ServiceParams{
		Repo:              itemsRepo,
		Sessions:          sessionsRepo,
		TransactionRunner: dbClient,
		Announcer:         hub,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create item service", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:              ledger.NewRepository(dbClient.DB()),
		Items:             itemsRepo,
		Sessions:          sessionsRepo,
		TransactionRunner: dbClient,
		Outbox:            outboxSvc,
		Announcer:         hub,
		Metrics:           appMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	gateway := payments.NewStripeGateway(stripeClient)
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(dbClient.DB()),
		Sessions:          sessionsRepo,
		Ledger:            ledgerSvc,
		Processor:         gateway,
		Verifier:          gateway,
		TransactionRunner: dbClient,
		Outbox:            outboxSvc,
		Announcer:         hub,
		Metrics:           appMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instanceID,
		"relay":    cfg.Realtime.Relay,
		"stripe":   stripeClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Store:    redisClient,
			Gatherer: registry,
			Hub:      hub,
			Sessions: sessionsSvc,
			Items:    itemsSvc,
			Ledger:   ledgerSvc,
			Payments: paymentsSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return hub.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	runErr := group.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	closeErr := multierr.Combine(redisClient.Close(), dbClient.Close())
	if err := multierr.Append(runErr, closeErr); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
