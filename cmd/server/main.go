package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/config"
	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/internal/repository/mongodb"
	"github.com/mamadbah2/medistock/internal/repository/sheets"
	"github.com/mamadbah2/medistock/internal/scheduler"
	"github.com/mamadbah2/medistock/internal/server/handlers"
	"github.com/mamadbah2/medistock/internal/server/router"
	"github.com/mamadbah2/medistock/internal/service/alerts"
	"github.com/mamadbah2/medistock/internal/service/billing"
	commandsvc "github.com/mamadbah2/medistock/internal/service/commands"
	"github.com/mamadbah2/medistock/internal/service/inventory"
	"github.com/mamadbah2/medistock/internal/service/patients"
	reportingsvc "github.com/mamadbah2/medistock/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/medistock/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/medistock/pkg/clients/whatsapp"
	"github.com/mamadbah2/medistock/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Env))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	// Amounts travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	mongoClient, err := mongodb.Connect(startupCtx, cfg.MongoDB, baseLogger.Named("repo.mongodb"))
	if err != nil {
		baseLogger.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	patientRepo := mongodb.NewPatientRepository(mongoClient.Database())
	medicineRepo := mongodb.NewMedicineRepository(mongoClient.Database())
	reportRepo := mongodb.NewReportRepository(mongoClient.Database())

	if err := patientRepo.EnsureIndexes(startupCtx); err != nil {
		baseLogger.Fatal("failed to create patient indexes", zap.Error(err))
	}
	if err := medicineRepo.EnsureIndexes(startupCtx); err != nil {
		baseLogger.Fatal("failed to create medicine indexes", zap.Error(err))
	}

	var mirror reportingsvc.ReportMirror
	if cfg.Sheets.Enabled() {
		sheetClient, err := sheets.NewGoogleSheetClient(startupCtx, cfg.Sheets)
		if err != nil {
			baseLogger.Fatal("failed to init sheets client", zap.Error(err))
		}
		mirror = sheets.NewReportSheet(sheetClient, baseLogger.Named("repo.sheets"))
		baseLogger.Info("daily reports mirrored to google sheets")
	} else {
		baseLogger.Warn("google sheets not configured, daily reports stored in mongodb only")
	}

	whatsClient := whatsappclient.NewClient(cfg.WhatsApp)

	var sender alerts.Sender
	if cfg.WhatsApp.Enabled() && cfg.Alerts.Recipient != "" {
		sender = alerts.NewWhatsAppSender(whatsClient, cfg.Alerts.Recipient, baseLogger.Named("alerts.whatsapp"))
	} else {
		baseLogger.Warn("whatsapp alerts not configured, alerts will only be logged")
		sender = alerts.NewLogSender(baseLogger.Named("alerts.log"))
	}

	dispatcher := alerts.NewDispatcher(sender, alerts.Options{
		QueueSize:   cfg.Alerts.QueueSize,
		MaxAttempts: cfg.Alerts.MaxAttempts,
		BaseDelay:   cfg.Alerts.BaseDelay,
	}, baseLogger.Named("alerts"))
	dispatcher.Start()

	policy := models.StockPolicy{
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
		ExpiryWindowDays:  cfg.Inventory.ExpiryWindowDays,
	}

	billingSvc := billing.NewService(patientRepo, medicineRepo, mongoClient, dispatcher, billing.Options{
		Policy:        policy,
		RemoveSoldOut: cfg.Inventory.RemoveSoldOut,
	}, baseLogger.Named("svc.billing"))
	inventorySvc := inventory.NewService(medicineRepo, dispatcher, policy, baseLogger.Named("svc.inventory"))
	patientSvc := patients.NewService(patientRepo, baseLogger.Named("svc.patients"))
	reportingSvc := reportingsvc.NewService(reportRepo, medicineRepo, mirror, policy, cfg.Reporting.Location(), baseLogger.Named("svc.reporting"))
	commandDispatcher := commandsvc.NewService(inventorySvc, patientSvc, baseLogger.Named("svc.commands"))
	messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, baseLogger.Named("svc.whatsapp"))

	engine := router.New(router.Handlers{
		Patients:  handlers.NewPatientHandler(patientSvc, baseLogger.Named("handlers.patients")),
		Billing:   handlers.NewBillingHandler(billingSvc, baseLogger.Named("handlers.billing")),
		Medicines: handlers.NewMedicineHandler(inventorySvc, baseLogger.Named("handlers.medicines")),
		Dashboard: handlers.NewDashboardHandler(reportingSvc, baseLogger.Named("handlers.dashboard")),
		Webhook:   handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp")),
	}, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Reporting, inventorySvc, reportingSvc, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}

	sched.Stop()

	if err := dispatcher.Stop(shutdownCtx); err != nil {
		baseLogger.Warn("pending alerts dropped at shutdown", zap.Error(err))
	}
}
