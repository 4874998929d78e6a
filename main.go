package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taoshinakamoto/VOLTAGEGPU/config"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/api"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/upstream"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
)

// @title VoltageGPU Gateway API
// @version 1.0
// @description Pricing and provisioning gateway for resold GPU compute.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if _, err := database.Connect(cfg.DSN()); err != nil {
		logger.Log.Fatal("failed to connect database", zap.Error(err))
	}

	if err := database.DB.AutoMigrate(
		&models.Account{},
		&models.PricingPolicy{},
		&models.PricingQuote{},
		&models.Instance{},
		&models.Hold{},
		&models.LedgerEntry{},
		&models.Invoice{},
	); err != nil {
		logger.Log.Fatal("failed to migrate database", zap.Error(err))
	}

	if err := database.ConnectRedis(cfg); err != nil {
		logger.Log.Fatal("failed to connect redis", zap.Error(err))
	}

	if err := services.EnsureDefaultPolicy(cfg.PricingMarkup); err != nil {
		logger.Log.Fatal("failed to ensure pricing policy", zap.Error(err))
	}

	provider := upstream.NewClient(cfg)

	catalog := services.NewCatalogService(provider, cfg.CatalogMaxFailures)
	catalog.Start(cfg.CatalogRefreshInterval())
	defer catalog.Stop()

	pricing := services.NewPricingService(catalog, cfg.QuoteTTL())
	instanceSvc := services.NewInstanceService(provider, pricing, cfg.MinLease(), cfg.BillingInterval(), cfg.UpstreamTimeout())

	poller := services.NewStatusPoller(instanceSvc, cfg.PollInterval())
	if err := poller.Resume(); err != nil {
		logger.Log.Fatal("failed to resume instance tracking", zap.Error(err))
	}
	poller.Start()
	defer poller.Stop()

	scheduler := services.NewBillingScheduler(instanceSvc, cfg.BillingInterval()/4)
	scheduler.Start()
	defer scheduler.Stop()

	reconciler := services.NewReconciler(instanceSvc, cfg.ReconcileInterval(), cfg.ReconcileGrace())
	reconciler.Start()
	defer reconciler.Stop()

	invoiceCron, err := services.StartInvoiceCron(cfg.InvoiceCron)
	if err != nil {
		logger.Log.Fatal("failed to start invoice cron", zap.Error(err))
	}
	defer invoiceCron.Stop()

	router := api.NewRouter(cfg, api.Deps{
		Catalog:   catalog,
		Pricing:   pricing,
		Instances: instanceSvc,
		Poller:    poller,
	})

	go func() {
		logger.Log.Info("server starting", zap.String("port", cfg.ServerPort))
		if err := router.Run(":" + cfg.ServerPort); err != nil {
			logger.Log.Fatal("server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")
}
