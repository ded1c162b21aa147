package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueOperation はキュー投入の契機となったソース行の操作種別です
type QueueOperation string

const (
	OperationInsert QueueOperation = "insert"
	OperationUpdate QueueOperation = "update"
	OperationDelete QueueOperation = "delete"
)

// QueuePriority はタスクの優先度です
type QueuePriority string

const (
	PriorityHigh   QueuePriority = "high"
	PriorityMedium QueuePriority = "medium"
	PriorityLow    QueuePriority = "low"
)

// PriorityForOperation は操作種別からデフォルト優先度を導出します
// insert→high, update→medium, delete→low
func PriorityForOperation(op QueueOperation) QueuePriority {
	switch op {
	case OperationInsert:
		return PriorityHigh
	case OperationUpdate:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// QueueStatus はタスクのライフサイクル状態です
// pending → processing → {completed | failed}
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

// IsTerminal は終端状態（completed / failed）かどうかを返します
func (s QueueStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultMaxRetries はタスクのデフォルト再試行上限
const DefaultMaxRetries = 3

// QueueTask はEmbedding生成の遅延作業1件を表します
// 終端状態の行も監査のために保持される。retry_count >= max_retries かつ
// failed のタスクは恒久的に死んでおり、再試行せずオペレーターに提示する
type QueueTask struct {
	ID             uuid.UUID      `json:"id"`
	SourceType     SourceType     `json:"sourceType"`
	SourceID       uuid.UUID      `json:"sourceID"`
	Operation      QueueOperation `json:"operation"`
	Priority       QueuePriority  `json:"priority"`
	Status         QueueStatus    `json:"status"`
	RetryCount     int            `json:"retryCount"`
	MaxRetries     int            `json:"maxRetries"`
	ErrorMessage   *string        `json:"errorMessage,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	LockedBy       *string        `json:"lockedBy,omitempty"`
	LeaseExpiresAt *time.Time     `json:"leaseExpiresAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ProcessedAt    *time.Time     `json:"processedAt,omitempty"`
}

// Exhausted は再試行上限に達した失敗タスクかどうかを返します
func (t *QueueTask) Exhausted() bool {
	return t.Status == StatusFailed && t.RetryCount >= t.MaxRetries
}

// QueueStats はキューの状態別・優先度別の件数集計です
type QueueStats struct {
	ByStatus   map[QueueStatus]int   `json:"byStatus"`
	ByPriority map[QueuePriority]int `json:"byPriority"`
	Dead       int                   `json:"dead"`
}
