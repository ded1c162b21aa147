package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/internal/core/embedding"
	"github.com/jinford/receipt-search/pkg/models"
)

// QueueAPI はワーカーが必要とするキュー操作です（queue.Serviceが実装）
type QueueAPI interface {
	Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*models.QueueTask, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.QueueStatus, errorMessage *string) (*models.QueueTask, error)
	ReapExpired(ctx context.Context) (int64, error)
}

// WriterAPI はワーカーが必要とするEmbeddingストア操作です（embedding.Serviceが実装）
type WriterAPI interface {
	Upsert(ctx context.Context, params embedding.UpsertParams) (*models.EmbeddingRecord, error)
	DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) (int64, error)
	RecordMetric(ctx context.Context, metric *models.EmbeddingMetric)
}

// Worker はキューからタスクを取得してEmbeddingを生成・永続化するループです
// タスクの完了マークは必ずEmbedding書き込みの成功後に行う。逆順だと
// クラッシュ時に未書き込みのタスクが完了扱いになってしまう
type Worker struct {
	queue    QueueAPI
	writer   WriterAPI
	embedder Embedder
	provider ContentProvider
	tokens   TokenCounter
	logger   *slog.Logger

	workerID     string
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration
}

// Config はワーカーの設定です
type Config struct {
	WorkerID     string
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
}

// Option は Worker のオプション設定
type Option func(*Worker)

// WithLogger はロガーを上書きする
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithTokenCounter はメトリクス用トークンカウンターを設定する
func WithTokenCounter(tokens TokenCounter) Option {
	return func(w *Worker) {
		w.tokens = tokens
	}
}

// New は新しいWorkerを作成する
func New(queue QueueAPI, writer WriterAPI, embedder Embedder, provider ContentProvider, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		queue:        queue,
		writer:       writer,
		embedder:     embedder,
		provider:     provider,
		logger:       slog.Default(),
		workerID:     cfg.WorkerID,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		lease:        cfg.Lease,
	}
	if w.workerID == "" {
		w.workerID = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	}
	if w.batchSize <= 0 {
		w.batchSize = 10
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.lease <= 0 {
		w.lease = 2 * time.Minute
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run はコンテキストがキャンセルされるまでキューを消費し続ける
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("embedding worker started",
		slog.String("workerID", w.workerID),
		slog.Int("batchSize", w.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("embedding worker stopped", slog.String("workerID", w.workerID))
			return ctx.Err()
		default:
		}

		// リース切れタスクの回収を試みてからバッチを取得する
		if _, err := w.queue.ReapExpired(ctx); err != nil {
			w.logger.Error("lease reaping failed", slog.String("error", err.Error()))
		}

		tasks, err := w.queue.Claim(ctx, w.workerID, w.batchSize, w.lease)
		if err != nil {
			w.logger.Error("failed to claim tasks", slog.String("error", err.Error()))
			tasks = nil
		}

		if len(tasks) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollInterval):
			}
			continue
		}

		for _, task := range tasks {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.ProcessTask(ctx, task)
		}
	}
}

// ProcessTask はタスク1件を処理する
// 失敗はタスクのfailed遷移として記録され、呼び出し元には伝播しない
func (w *Worker) ProcessTask(ctx context.Context, task *models.QueueTask) {
	start := time.Now()

	tokens, err := w.processOperation(ctx, task)

	metric := &models.EmbeddingMetric{
		TaskID:     &task.ID,
		SourceType: task.SourceType,
		Success:    err == nil,
		LatencyMS:  time.Since(start).Milliseconds(),
		Tokens:     tokens,
	}

	if err != nil {
		class := classifyError(err)
		metric.ErrorClass = &class
		w.writer.RecordMetric(ctx, metric)

		msg := err.Error()
		if _, updateErr := w.queue.UpdateStatus(ctx, task.ID, models.StatusFailed, &msg); updateErr != nil {
			w.logger.Error("failed to mark task as failed",
				slog.String("taskID", task.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
		return
	}

	w.writer.RecordMetric(ctx, metric)

	// 完了マークはEmbedding書き込み成功の後でなければならない
	if _, err := w.queue.UpdateStatus(ctx, task.ID, models.StatusCompleted, nil); err != nil {
		w.logger.Error("failed to mark task as completed",
			slog.String("taskID", task.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// processOperation は操作種別ごとの本処理を行い、消費トークン数を返す
func (w *Worker) processOperation(ctx context.Context, task *models.QueueTask) (int, error) {
	if task.Operation == models.OperationDelete {
		if _, err := w.writer.DeleteBySource(ctx, task.SourceType, task.SourceID); err != nil {
			return 0, fmt.Errorf("delete embeddings: %w", err)
		}
		return 0, nil
	}

	pieces, err := w.provider.ContentPieces(ctx, task.SourceType, task.SourceID)
	if err != nil {
		return 0, fmt.Errorf("load source content: %w", err)
	}
	if len(pieces) == 0 {
		w.logger.Warn("source record has no embeddable content",
			slog.String("sourceType", string(task.SourceType)),
			slog.String("sourceID", task.SourceID.String()),
		)
		return 0, nil
	}

	totalTokens := 0
	for _, piece := range pieces {
		vector, err := w.embedder.Embed(ctx, piece.Text)
		if err != nil {
			return totalTokens, fmt.Errorf("embed %s content: %w", piece.ContentType, err)
		}

		sourceID := task.SourceID
		if piece.SourceID != uuid.Nil {
			sourceID = piece.SourceID
		}

		if _, err := w.writer.Upsert(ctx, embedding.UpsertParams{
			SourceType:  task.SourceType,
			SourceID:    sourceID,
			ContentType: piece.ContentType,
			ContentText: piece.Text,
			Embedding:   vector,
			Metadata:    piece.Metadata,
			UserID:      piece.UserID,
			TeamID:      piece.TeamID,
			Language:    piece.Language,
		}); err != nil {
			return totalTokens, fmt.Errorf("upsert %s embedding: %w", piece.ContentType, err)
		}

		if w.tokens != nil {
			totalTokens += w.tokens.Count(piece.Text)
		}
	}

	return totalTokens, nil
}

// classifyError はメトリクス用にエラーを分類する
func classifyError(err error) string {
	if embedding.IsValidationError(err) {
		return "validation_error"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "load source content"):
		return "source_error"
	case strings.Contains(msg, "embed "):
		return "embed_error"
	default:
		return "store_error"
	}
}
