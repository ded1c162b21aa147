package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/receipt-search/internal/core/embedding"
	"github.com/jinford/receipt-search/internal/core/maintenance"
	"github.com/jinford/receipt-search/internal/core/queue"
	"github.com/jinford/receipt-search/internal/core/search"
	"github.com/jinford/receipt-search/internal/core/worker"
	"github.com/jinford/receipt-search/internal/infra/openai"
	"github.com/jinford/receipt-search/internal/infra/postgres"
	"github.com/jinford/receipt-search/pkg/config"
	"github.com/jinford/receipt-search/pkg/db"
)

// ServiceContainer はアプリケーションの依存関係を保持する。
type ServiceContainer struct {
	EmbeddingService   *embedding.Service
	QueueService       *queue.Service
	SearchService      *search.Service
	MaintenanceService *maintenance.Service
	Worker             *worker.Worker
	Embedder           *openai.Embedder

	logger   *slog.Logger
	database *db.DB
}

// New は設定とロガーからコンテナを生成する。
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*ServiceContainer, error) {
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	return NewWithDB(logger, cfg, database)
}

// NewWithDB は既存のデータベース接続を受け取りコンテナを生成する。
func NewWithDB(logger *slog.Logger, cfg *config.Config, database *db.DB) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)

	// TokenCounter (tiktoken)
	tokenCounter, err := newTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
	}

	// Repository (PostgreSQL)
	pool := database.Pool
	embeddingRepo := postgres.NewEmbeddingRepository(pool)
	metricRepo := postgres.NewMetricRepository(pool)
	queueRepo := postgres.NewQueueRepository(pool)
	searchRepo := postgres.NewSearchRepository(pool)
	maintenanceRepo := postgres.NewMaintenanceRepository(pool)
	sourceRepo := postgres.NewSourceRepository(pool)
	roleRepo := postgres.NewRoleRepository(pool)

	// Service (core)
	embeddingService := embedding.NewService(embeddingRepo, metricRepo, embedding.WithLogger(logger))
	queueService := queue.NewService(queueRepo, queue.WithLogger(logger))
	searchService := search.NewService(searchRepo, search.WithLogger(logger))
	maintenanceService := maintenance.NewService(maintenanceRepo, sourceRepo, roleRepo, maintenance.WithLogger(logger))

	// Worker
	embeddingWorker := worker.New(queueService, embeddingService, embedder, sourceRepo,
		worker.Config{
			BatchSize:    cfg.Worker.BatchSize,
			PollInterval: cfg.Worker.PollInterval,
			Lease:        cfg.Worker.LeaseDuration,
		},
		worker.WithLogger(logger),
		worker.WithTokenCounter(tokenCounter),
	)

	return &ServiceContainer{
		EmbeddingService:   embeddingService,
		QueueService:       queueService,
		SearchService:      searchService,
		MaintenanceService: maintenanceService,
		Worker:             embeddingWorker,
		Embedder:           embedder,
		logger:             logger,
		database:           database,
	}, nil
}

// DB はデータベース接続を返す。
func (c *ServiceContainer) DB() *db.DB {
	return c.database
}

// Close はコンテナが保持するリソースを解放する。
func (c *ServiceContainer) Close() {
	if c.database != nil {
		c.database.Close()
	}
}

// tokenCounter は tiktoken を利用した worker.TokenCounter 実装。
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter() (*tokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &tokenCounter{encoding: enc}, nil
}

// Count はテキストのトークン数を返す。
func (t *tokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
