package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagado/internal/api"
	"pagado/internal/api/handlers"
	"pagado/internal/repository"
	"pagado/internal/service"
	"pagado/pkg/auth"
	"pagado/pkg/config"
	"pagado/pkg/logger"
	"pagado/pkg/postgres"

	"go.uber.org/zap"
)

// @title Pagado Bot API
// @version 1.0
// @description Asistente de WhatsApp para registrar gastos e ingresos

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:3008
// @BasePath /

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting Pagado bot", zap.String("ai_provider", cfg.AI.Provider))

	ctx := context.Background()

	// Backend profile and ledger API
	backend := repository.NewBackendRepository(&cfg.Backend, auth.NewTokenSource(&cfg.Backend), logger.Named("backend"))

	// Commit journal
	var journal repository.CommitJournal = repository.NewMemoryJournal(24 * time.Hour)
	if cfg.Database.Enabled {
		db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		journalRepo := repository.NewJournalRepository(db, logger.Named("journal"))
		if err := journalRepo.EnsureSchema(ctx); err != nil {
			appLogger.Fatal("Failed to prepare commit journal", zap.Error(err))
		}
		journal = journalRepo
	}

	// Optional media archive and extraction audit
	var archive repository.MediaArchive = repository.NopArchive{}
	if cfg.Storage.MediaBucket != "" {
		gcsArchive, err := repository.NewGCSArchive(ctx, cfg.Storage.MediaBucket, logger.Named("archive"))
		if err != nil {
			appLogger.Fatal("Failed to initialize media archive", zap.Error(err))
		}
		defer gcsArchive.Close()
		archive = gcsArchive
	}

	var audit repository.AuditSink = repository.NopAuditSink{}
	if cfg.Audit.ProjectID != "" {
		auditRepo, err := repository.NewAuditRepository(ctx, &cfg.Audit, logger.Named("audit"))
		if err != nil {
			appLogger.Fatal("Failed to initialize extraction audit", zap.Error(err))
		}
		defer auditRepo.Close()
		audit = auditRepo
	}

	// Extraction model
	model, closeModel, err := newExtractionModel(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize extraction model", zap.Error(err))
	}
	defer closeModel()

	// Initialize services
	messenger := service.NewWhatsAppService(&cfg.WhatsApp, logger.Named("whatsapp"))
	store := service.NewSessionStore(backend, cfg.Session.ProfileTTL, logger.Named("session"))
	gate := service.NewAuthorizationGate(cfg.AI.AuthorizedNumbers, cfg.AI.EntitleAll)
	lifecycle := service.NewLifecycleManager(store, gate, messenger, service.ClockScheduler(), cfg.Session.InactivityTimeout, logger.Named("lifecycle"))
	extractor := service.NewExtractionService(model, service.NewOCRService(appLogger), audit, cfg.AI.DefaultCurrency, logger.Named("extraction"))
	committer := service.NewCommitter(backend, journal, cfg.AI.DefaultCurrency, logger.Named("committer"))

	conversation := service.NewConversationService(
		store,
		gate,
		lifecycle,
		extractor,
		service.NewNormalizer(cfg.AI.DefaultCurrency, appLogger),
		service.NewDisambiguationController(cfg.Session.MaxSelectionAttempts, appLogger),
		committer,
		messenger,
		archive,
		logger.Named("conversation"),
	)
	dispatcher := service.NewDispatcher(conversation, cfg.Session.MessageTimeout, appLogger)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(dispatcher, cfg.WhatsApp.VerifyToken, logger.Named("webhook"))

	// Setup router
	app := api.SetupRouter(webhookHandler, cfg, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}

	lifecycle.Shutdown()

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.MessageTimeout)
	defer cancel()
	if err := dispatcher.Wait(waitCtx); err != nil {
		appLogger.Warn("In-flight messages cancelled", zap.Error(err))
	}
}

func newExtractionModel(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (service.ExtractionModel, func(), error) {
	switch cfg.AI.Provider {
	case "gigachat":
		llm, err := service.NewLLMService(ctx, &cfg.GigaChat, logger.Named("gigachat"))
		if err != nil {
			return nil, nil, err
		}
		return llm, func() {
			if err := llm.Close(); err != nil {
				appLogger.Warn("Failed to close GigaChat client", zap.Error(err))
			}
		}, nil
	case "gemini":
		gemini, err := service.NewGeminiService(ctx, &cfg.Gemini, logger.Named("gemini"))
		if err != nil {
			return nil, nil, err
		}
		return gemini, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.AI.Provider)
	}
}
