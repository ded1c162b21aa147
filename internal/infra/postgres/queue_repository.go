package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/receipt-search/internal/core/queue"
	"github.com/jinford/receipt-search/pkg/models"
)

// QueueRepository は core/queue.Repository を実装する PostgreSQL リポジトリ。
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository は新しい QueueRepository を返す。
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

var _ queue.Repository = (*QueueRepository)(nil)

const queueColumns = `id, source_type, source_id, operation, priority, status, retry_count, max_retries, error_message, metadata, locked_by, lease_expires_at, created_at, updated_at, processed_at`

// priorityOrder は優先度バンドの厳密な順序（high→medium→low）
const priorityOrder = `CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`

func (r *QueueRepository) Enqueue(ctx context.Context, task *models.QueueTask) (*models.QueueTask, error) {
	query := `
INSERT INTO embedding_queue (source_type, source_id, operation, priority, status, max_retries, metadata)
VALUES ($1, $2, $3, $4, 'pending', $5, $6)
RETURNING ` + queueColumns

	row := r.db.QueryRow(ctx, query,
		string(task.SourceType),
		UUIDToPgtype(task.SourceID),
		string(task.Operation),
		string(task.Priority),
		task.MaxRetries,
		JSONBFromMap(task.Metadata),
	)

	saved, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return saved, nil
}

func (r *QueueRepository) FetchPending(ctx context.Context, limit int, priority *models.QueuePriority) ([]*models.QueueTask, error) {
	b := &queryBuilder{}
	b.where("status = 'pending'")
	b.where("retry_count < max_retries")
	if priority != nil {
		b.where(fmt.Sprintf("priority = %s", b.arg(string(*priority))))
	}

	query := fmt.Sprintf(`
SELECT %s
FROM embedding_queue
WHERE %s
ORDER BY %s, created_at
LIMIT %s`, queueColumns, b.whereClause(), priorityOrder, b.arg(limit))

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *QueueRepository) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*models.QueueTask, error) {
	// SKIP LOCKEDで取得行を奪い合わず、同一タスクの二重処理を防ぐ
	query := `
UPDATE embedding_queue
SET status = 'processing',
    locked_by = $1,
    lease_expires_at = now() + make_interval(secs => $2),
    updated_at = now()
WHERE id IN (
    SELECT id
    FROM embedding_queue
    WHERE status = 'pending' AND retry_count < max_retries
    ORDER BY ` + priorityOrder + `, created_at
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + queueColumns

	rows, err := r.db.Query(ctx, query, workerID, lease.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *QueueRepository) UpdateStatus(ctx context.Context, id uuid.UUID, transition queue.StatusTransition) (*models.QueueTask, error) {
	// 終端状態の再マーク（at-least-once配送で起こり得る）の副作用は
	// エラーメッセージの上書きのみ。retry_countは実際のfailed遷移でだけ増える
	query := `
UPDATE embedding_queue
SET status = $2,
    error_message = CASE WHEN $2 = 'failed' THEN $3 ELSE error_message END,
    retry_count = CASE WHEN $2 = 'failed' AND status <> 'failed' THEN retry_count + 1 ELSE retry_count END,
    processed_at = CASE WHEN $2 IN ('completed', 'failed') AND status NOT IN ('completed', 'failed') THEN now() ELSE processed_at END,
    locked_by = CASE WHEN $2 = 'processing' THEN locked_by ELSE NULL END,
    lease_expires_at = CASE WHEN $2 = 'processing' THEN lease_expires_at ELSE NULL END,
    updated_at = now()
WHERE id = $1
RETURNING ` + queueColumns

	row := r.db.QueryRow(ctx, query, UUIDToPgtype(id), string(transition.Status), StringPtrToPgtext(transition.ErrorMessage))

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	return task, nil
}

func (r *QueueRepository) ReapExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE embedding_queue
SET status = 'pending',
    locked_by = NULL,
    lease_expires_at = NULL,
    updated_at = now()
WHERE status = 'processing'
  AND lease_expires_at IS NOT NULL
  AND lease_expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *QueueRepository) ResetForRetry(ctx context.Context, id uuid.UUID) (*models.QueueTask, error) {
	query := `
UPDATE embedding_queue
SET status = 'pending',
    retry_count = 0,
    error_message = NULL,
    locked_by = NULL,
    lease_expires_at = NULL,
    processed_at = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'failed'
RETURNING ` + queueColumns

	row := r.db.QueryRow(ctx, query, UUIDToPgtype(id))

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task not found or not in failed state: %s", id)
		}
		return nil, fmt.Errorf("failed to reset task: %w", err)
	}
	return task, nil
}

func (r *QueueRepository) ListDead(ctx context.Context, limit int) ([]*models.QueueTask, error) {
	query := `
SELECT ` + queueColumns + `
FROM embedding_queue
WHERE status = 'failed' AND retry_count >= max_retries
ORDER BY updated_at DESC
LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead tasks: %w", err)
	}
	return collectTasks(rows)
}

func (r *QueueRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{
		ByStatus:   make(map[models.QueueStatus]int),
		ByPriority: make(map[models.QueuePriority]int),
	}

	rows, err := r.db.Query(ctx, `
SELECT status, priority, COUNT(*)::int
FROM embedding_queue
GROUP BY status, priority`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status   string
			priority string
			count    int
		)
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats.ByStatus[models.QueueStatus(status)] += count
		stats.ByPriority[models.QueuePriority(priority)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
SELECT COUNT(*)::int
FROM embedding_queue
WHERE status = 'failed' AND retry_count >= max_retries`)
	if err := row.Scan(&stats.Dead); err != nil {
		return nil, fmt.Errorf("failed to count dead tasks: %w", err)
	}

	return stats, nil
}

// scanTask は queueColumns の順でSELECTした1行を変換する。
func scanTask(row pgx.Row) (*models.QueueTask, error) {
	var (
		id             pgtype.UUID
		sourceType     string
		sourceID       pgtype.UUID
		operation      string
		priority       string
		status         string
		retryCount     int
		maxRetries     int
		errorMessage   pgtype.Text
		metadata       []byte
		lockedBy       pgtype.Text
		leaseExpiresAt pgtype.Timestamptz
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
		processedAt    pgtype.Timestamptz
	)
	if err := row.Scan(&id, &sourceType, &sourceID, &operation, &priority, &status, &retryCount, &maxRetries, &errorMessage, &metadata, &lockedBy, &leaseExpiresAt, &createdAt, &updatedAt, &processedAt); err != nil {
		return nil, err
	}

	return &models.QueueTask{
		ID:             PgtypeToUUID(id),
		SourceType:     models.SourceType(sourceType),
		SourceID:       PgtypeToUUID(sourceID),
		Operation:      models.QueueOperation(operation),
		Priority:       models.QueuePriority(priority),
		Status:         models.QueueStatus(status),
		RetryCount:     retryCount,
		MaxRetries:     maxRetries,
		ErrorMessage:   PgtextToStringPtr(errorMessage),
		Metadata:       MapFromJSONB(metadata),
		LockedBy:       PgtextToStringPtr(lockedBy),
		LeaseExpiresAt: PgtypeToTimePtr(leaseExpiresAt),
		CreatedAt:      PgtypeToTime(createdAt),
		UpdatedAt:      PgtypeToTime(updatedAt),
		ProcessedAt:    PgtypeToTimePtr(processedAt),
	}, nil
}

// collectTasks は複数行版の scanTask。
func collectTasks(rows pgx.Rows) ([]*models.QueueTask, error) {
	defer rows.Close()

	tasks := make([]*models.QueueTask, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
