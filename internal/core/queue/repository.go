package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// StatusTransition はタスク状態遷移の入力です
type StatusTransition struct {
	Status       models.QueueStatus
	ErrorMessage *string
}

// Repository はキューテーブルへのデータアクセスを抽象化するインターフェース
type Repository interface {
	// Enqueue は新しいpendingタスクを1件追加する
	Enqueue(ctx context.Context, task *models.QueueTask) (*models.QueueTask, error)

	// FetchPending は pending かつ retry_count < max_retries のタスクを
	// 優先度バンド順（high→medium→low）、バンド内は作成時刻昇順で返す
	FetchPending(ctx context.Context, limit int, priority *models.QueuePriority) ([]*models.QueueTask, error)

	// Claim は pending→processing の条件付き更新を原子的に行い、
	// locked_by とリース期限を刻印して取得したタスクを返す
	Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*models.QueueTask, error)

	// UpdateStatus はタスクの状態を遷移させる
	// failed では retry_count をインクリメントし error_message を記録、
	// 終端状態では processed_at を刻印する
	UpdateStatus(ctx context.Context, id uuid.UUID, transition StatusTransition) (*models.QueueTask, error)

	// ReapExpired はリース切れの processing タスクを pending に戻し件数を返す
	ReapExpired(ctx context.Context) (int64, error)

	// ResetForRetry は失敗タスクを retry_count=0 で pending に戻す（オペレーター操作）
	ResetForRetry(ctx context.Context, id uuid.UUID) (*models.QueueTask, error)

	// ListDead は retry_count >= max_retries で failed のタスクを返す
	ListDead(ctx context.Context, limit int) ([]*models.QueueTask, error)

	// Stats は状態別・優先度別の件数を集計する
	Stats(ctx context.Context) (*models.QueueStats, error)
}
