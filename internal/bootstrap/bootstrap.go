package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fkoehler/taxagent/internal/config"
	"github.com/fkoehler/taxagent/internal/core/ports"
	"github.com/fkoehler/taxagent/internal/core/usecase"
	"github.com/fkoehler/taxagent/internal/infrastructure/queue/nats"
	"github.com/fkoehler/taxagent/internal/infrastructure/repository/postgres"
	"github.com/fkoehler/taxagent/internal/infrastructure/resilience"
	"github.com/fkoehler/taxagent/internal/infrastructure/storage/minio"
	"github.com/fkoehler/taxagent/internal/infrastructure/token"
	"github.com/fkoehler/taxagent/internal/infrastructure/webhook/flowhook"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    ports.MessageQueue
	Tokens   *token.Manager
	Accounts ports.AccountService

	Documents ports.DocumentRepository
	Batches   ports.BatchRepository
	Mandants  ports.MandantRepository

	IngestUC   ports.BatchIngestor
	DedupUC    ports.DuplicateChecker
	DispatchUC ports.BatchDispatcher
	ReviewUC   ports.BookingReviewer
	ExportUC   ports.Exporter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	documents := postgres.NewDocumentRepository(db)
	batches := postgres.NewBatchRepository(db)
	bookings := postgres.NewBookingRepository(db)
	exports := postgres.NewExportRepository(db)
	mandants := postgres.NewMandantRepository(db)
	users := postgres.NewUserRepository(db)

	storage, err := minio.New(ctx, minio.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSBatchSubject, cfg.NATSChangeSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	webhook := flowhook.New(
		cfg.FlowForwardURL,
		flowhook.WithResilienceExecutor(executor),
		flowhook.WithAuthToken(cfg.FlowAuthToken),
	)
	mailer := flowhook.NewMailer(cfg.MailSignupURL, cfg.MailDecisionURL)

	tokens, err := token.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTExpiryHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	accountLabels, err := config.LoadAccountLabels(cfg.AccountMapPath)
	if err != nil {
		return nil, fmt.Errorf("load account labels: %w", err)
	}

	validator := usecase.NewValidator()
	dedupUC := usecase.NewDuplicateService(documents, logger)
	ingestUC := usecase.NewIngestUseCase(validator, dedupUC, documents, batches, mandants, storage, queue, logger)
	dispatchUC := usecase.NewDispatchUseCase(batches, documents, storage, webhook, logger)
	reviewUC := usecase.NewReviewUseCase(bookings, queue, logger)
	exportUC := usecase.NewExportUseCase(bookings, exports, storage, queue, accountLabels, logger)
	accountUC := usecase.NewAccountUseCase(users, mailer, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:    queue,
		Tokens:   tokens,
		Accounts: accountUC,

		Documents: documents,
		Batches:   batches,
		Mandants:  mandants,

		IngestUC:   ingestUC,
		DedupUC:    dedupUC,
		DispatchUC: dispatchUC,
		ReviewUC:   reviewUC,
		ExportUC:   exportUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
