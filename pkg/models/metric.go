package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingMetric はEmbedding生成1試行分の観測値です（追記専用・更新しない）
type EmbeddingMetric struct {
	ID          uuid.UUID   `json:"id"`
	TaskID      *uuid.UUID  `json:"taskID,omitempty"`
	SourceType  SourceType  `json:"sourceType"`
	ContentType ContentType `json:"contentType"`
	Success     bool        `json:"success"`
	LatencyMS   int64       `json:"latencyMS"`
	Tokens      int         `json:"tokens"`
	ErrorClass  *string     `json:"errorClass,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
