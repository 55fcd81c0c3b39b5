package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/config"
	"github.com/lexflow/case-analysis/internal/core/budget"
	"github.com/lexflow/case-analysis/internal/core/ports"
	"github.com/lexflow/case-analysis/internal/core/usecase"
	"github.com/lexflow/case-analysis/internal/infrastructure/export"
	"github.com/lexflow/case-analysis/internal/infrastructure/extract"
	"github.com/lexflow/case-analysis/internal/infrastructure/llm/anthropic"
	"github.com/lexflow/case-analysis/internal/infrastructure/llm/openai"
	"github.com/lexflow/case-analysis/internal/infrastructure/queue/nats"
	"github.com/lexflow/case-analysis/internal/infrastructure/repository/postgres"
	"github.com/lexflow/case-analysis/internal/infrastructure/resilience"
	"github.com/lexflow/case-analysis/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    ports.MessageQueue
	Repo     ports.DocumentRepository
	Ledger   ports.LedgerStore
	Audit    ports.AuditLog
	Guard    *budget.Guard
	BudgetUS decimal.Decimal

	AnalyzeUC *usecase.AnalyzeDocumentUseCase
	BulkUC    *usecase.BulkAnalysisUseCase
	Exporter  *export.Exporter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure documents schema: %w", err)
	}
	ledger := postgres.NewLedgerRepository(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	audit := postgres.NewAuditRepository(db)
	if err := audit.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	dailyBudget := decimal.NewFromFloat(cfg.DailyBudgetUSD)
	ttl := time.Duration(cfg.ReservationTTLMinutes) * time.Minute
	guard := budget.NewGuard(ledger, dailyBudget, ttl, logger)

	var ocr *extract.OCRClient
	if cfg.OCRServiceURL != "" {
		ocr = extract.NewOCRClient(cfg.OCRServiceURL)
	}
	extractor := extract.NewEngine(storage, ocr, logger)

	primary := anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.ModelRPS, executor)
	mode := usecase.ParseAnalysisMode(cfg.AnalysisMode)

	var secondary ports.EntityExtractor
	if mode == usecase.ModeHybrid && cfg.OpenAIAPIKey != "" {
		secondary = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.ModelRPS, executor)
	}

	orchestrator := usecase.NewModelOrchestrator(primary, secondary, mode, logger)
	analyzeUC := usecase.NewAnalyzeDocumentUseCase(repo, extractor, orchestrator, guard, audit, logger)
	bulkUC := usecase.NewBulkAnalysisUseCase(repo, guard, queue, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Queue:    queue,
		Repo:     repo,
		Ledger:   ledger,
		Audit:    audit,
		Guard:    guard,
		BudgetUS: dailyBudget,

		AnalyzeUC: analyzeUC,
		BulkUC:    bulkUC,
		Exporter:  export.NewExporter(),

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
