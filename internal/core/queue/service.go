package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// Service はEmbeddingキューのビジネスロジックを提供します
// 複数ワーカーの同時実行を前提とし、排他はClaimの条件付き更新で担保する
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// Option は Service のオプション設定
type Option func(*Service)

// WithLogger はロガーを上書きする
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue はソース行の変更1件に対してタスクを1件投入する
// 優先度は操作種別から導出（insert→high, update→medium, delete→low）
// 同一ソースへの重複タスクは許容される（下流のupsertが冪等のため）
func (s *Service) Enqueue(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, operation models.QueueOperation, metadata map[string]any) (*models.QueueTask, error) {
	if sourceID == uuid.Nil {
		return nil, fmt.Errorf("sourceID is required")
	}
	switch operation {
	case models.OperationInsert, models.OperationUpdate, models.OperationDelete:
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}

	task := &models.QueueTask{
		SourceType: sourceType,
		SourceID:   sourceID,
		Operation:  operation,
		Priority:   models.PriorityForOperation(operation),
		Status:     models.StatusPending,
		MaxRetries: models.DefaultMaxRetries,
		Metadata:   metadata,
	}

	created, err := s.repo.Enqueue(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return created, nil
}

// FetchPending は処理可能なタスクを優先度バンド順・バンド内FIFOで返す
// retry_count >= max_retries のタスクは決して返らない
func (s *Service) FetchPending(ctx context.Context, limit int, priority *models.QueuePriority) ([]*models.QueueTask, error) {
	if limit <= 0 {
		limit = 10
	}

	tasks, err := s.repo.FetchPending(ctx, limit, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}

	return tasks, nil
}

// Claim はワーカーにタスクを排他的に割り当てる
// リース期限内はほかのワーカーから見えなくなり、期限切れはReapExpiredで回収される
func (s *Service) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*models.QueueTask, error) {
	if workerID == "" {
		return nil, fmt.Errorf("workerID is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}

	tasks, err := s.repo.Claim(ctx, workerID, limit, lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}

	return tasks, nil
}

// UpdateStatus はタスクの状態を遷移させる
// 再試行上限に達した失敗はerrorレベルでログし、オペレーターに可視化する
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.QueueStatus, errorMessage *string) (*models.QueueTask, error) {
	switch status {
	case models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
	default:
		return nil, fmt.Errorf("unknown status: %s", status)
	}

	task, err := s.repo.UpdateStatus(ctx, id, StatusTransition{
		Status:       status,
		ErrorMessage: errorMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	if task.Exhausted() {
		msg := ""
		if task.ErrorMessage != nil {
			msg = *task.ErrorMessage
		}
		s.logger.Error("queue task permanently failed",
			slog.String("taskID", task.ID.String()),
			slog.String("sourceType", string(task.SourceType)),
			slog.String("sourceID", task.SourceID.String()),
			slog.Int("retryCount", task.RetryCount),
			slog.String("lastError", msg),
		)
	}

	return task, nil
}

// ReapExpired はリース切れのprocessingタスクをpendingに戻す
func (s *Service) ReapExpired(ctx context.Context) (int64, error) {
	reaped, err := s.repo.ReapExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	if reaped > 0 {
		s.logger.Warn("reclaimed expired task leases", slog.Int64("count", reaped))
	}
	return reaped, nil
}

// Retry は失敗タスクをオペレーター操作でpendingに戻す
// 自動再試行とは別経路で、retry_countは意図的にリセットされる
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*models.QueueTask, error) {
	task, err := s.repo.ResetForRetry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reset task for retry: %w", err)
	}

	s.logger.Info("task manually requeued",
		slog.String("taskID", task.ID.String()),
		slog.String("sourceType", string(task.SourceType)),
	)

	return task, nil
}

// ListDead は恒久的に失敗したタスクを返す（監査・オペレーター提示用）
func (s *Service) ListDead(ctx context.Context, limit int) ([]*models.QueueTask, error) {
	if limit <= 0 {
		limit = 50
	}

	tasks, err := s.repo.ListDead(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead tasks: %w", err)
	}

	return tasks, nil
}

// Stats はキューの件数集計を返す
func (s *Service) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return stats, nil
}
