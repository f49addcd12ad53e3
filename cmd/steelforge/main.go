package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/steelforge-erp/steelforge/internal/app"
	"github.com/steelforge-erp/steelforge/internal/billing"
	"github.com/steelforge-erp/steelforge/internal/masterdata"
	"github.com/steelforge-erp/steelforge/internal/observability"
	"github.com/steelforge-erp/steelforge/internal/orders"
	"github.com/steelforge-erp/steelforge/internal/platform/db"
	"github.com/steelforge-erp/steelforge/internal/production"
	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/shipping"
	"github.com/steelforge-erp/steelforge/internal/stock"
	"github.com/steelforge-erp/steelforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, stock.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataService := masterdata.NewService(logger, masterdataRepo, stockService)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	stockHandler := stock.NewHandler(logger, stockService, masterdataService)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(logger, productionRepo, stockService, auditLogger)
	productionHandler := production.NewHandler(logger, productionService)

	shippingRepo := shipping.NewRepository(pool)
	shippingService := shipping.NewService(logger, shippingRepo, stockService, auditLogger)
	shippingHandler := shipping.NewHandler(logger, shippingService)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(logger, ordersRepo, stockService, idempotencyStore, auditLogger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(logger, billingRepo, auditLogger)
	billingHandler := billing.NewHandler(logger, billingService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockHandler:      stockHandler,
		MasterDataHandler: masterdataHandler,
		ProductionHandler: productionHandler,
		ShippingHandler:   shippingHandler,
		OrdersHandler:     ordersHandler,
		BillingHandler:    billingHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
