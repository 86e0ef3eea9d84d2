package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appinvoicing "github.com/faktura/backend/internal/application/invoicing"
	"github.com/faktura/backend/internal/domain/invoicing"
	"github.com/faktura/backend/internal/infrastructure/config"
	"github.com/faktura/backend/internal/infrastructure/logger"
	"github.com/faktura/backend/internal/infrastructure/mail"
	"github.com/faktura/backend/internal/infrastructure/notify"
	"github.com/faktura/backend/internal/infrastructure/pdf"
	"github.com/faktura/backend/internal/infrastructure/persistence"
	"github.com/faktura/backend/internal/interfaces/http/handler"
	"github.com/faktura/backend/internal/interfaces/http/middleware"
	"github.com/faktura/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Faktura Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database connection with zap-backed GORM logging
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	recipientRepo := persistence.NewGormRecipientRepository(db.DB)
	categoryRepo := persistence.NewGormCategoryRepository(db.DB)
	settingsRepo := persistence.NewGormSettingsRepository(db.DB)

	// PDF pipeline: template builder, headless browser, on-disk cache
	builder, err := pdf.NewDocumentBuilder(log)
	if err != nil {
		log.Fatal("Failed to parse invoice template", zap.Error(err))
	}
	builder.WithDefaultLogo(cfg.PDF.DefaultLogo)
	renderer := pdf.NewChromedpRenderer(&pdf.ChromedpConfig{
		ExecPath:  cfg.PDF.ChromePath,
		RemoteURL: cfg.PDF.RemoteURL,
		Timeout:   cfg.PDF.RenderTimeout,
		NoSandbox: os.Getuid() == 0,
		Logger:    log,
	})
	defer renderer.Close()

	store, err := pdf.NewMaterializer(cfg.Storage.PDFDir, log)
	if err != nil {
		log.Fatal("Failed to prepare PDF storage", zap.Error(err))
	}

	// Outbound mail: real SMTP dialing only when enabled, otherwise a
	// dry-run mailer that logs what would have gone out.
	var mailer mail.Mailer
	if cfg.Mail.Enabled {
		mailer = mail.NewGomailMailer(log)
	} else {
		mailer = mail.NewDryRunMailer(log)
		log.Warn("Mail delivery is disabled, sends become dry runs")
	}

	// Environment-level SMTP fallback behind category and DB settings.
	var envAccount *invoicing.SMTPAccount
	if cfg.Mail.Host != "" {
		envAccount = &invoicing.SMTPAccount{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		}
	}

	// Reservation-system notifier (fire and forget)
	var notifier appinvoicing.StatusNotifier
	if cfg.Sync.Enabled {
		notifier = notify.NewReservationClient(cfg.Sync.BaseURL, cfg.Sync.Token, cfg.Sync.NotifyTimeout, log)
		log.Info("Reservation sync enabled", zap.String("base_url", cfg.Sync.BaseURL))
	}

	// Application services
	invoiceService := appinvoicing.NewInvoiceService(invoiceRepo, recipientRepo, store, notifier, log)
	documentService := appinvoicing.NewDocumentService(invoiceRepo, categoryRepo, settingsRepo, builder, renderer, store, log)
	exportService := appinvoicing.NewExportService(invoiceRepo, categoryRepo, settingsRepo, documentService, mailer, notifier, envAccount, cfg.Mail.Enabled, log)

	// Gin engine and middleware stack
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))

	// Routes
	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithAuth(middleware.Auth(cfg.HTTP.APIToken)),
	)
	r.RegisterPublic(handler.NewSystemHandler(db))
	r.RegisterPublic(handler.NewReservationHandler(invoiceService, cfg.Sync.Token))
	r.Register(handler.NewInvoiceHandler(invoiceService))
	r.Register(handler.NewDocumentHandler(documentService))
	r.Register(handler.NewExportHandler(exportService))
	r.Setup()

	// HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
