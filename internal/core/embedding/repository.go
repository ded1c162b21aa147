package embedding

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// ErrNotFound は自然キーに対応するレコードが存在しないことを表します
var ErrNotFound = errors.New("embedding record not found")

// Repository はEmbeddingストアへの永続化を抽象化するインターフェース
type Repository interface {
	// Upsert は自然キー (source_type, source_id, content_type) で
	// Embeddingレコードを作成または上書きする
	Upsert(ctx context.Context, record *models.EmbeddingRecord) (*models.EmbeddingRecord, error)

	// DeleteBySource は1ソースレコードに紐づく全ContentTypeのレコードを削除する
	DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) (int64, error)

	// GetByNaturalKey は自然キーで1レコードを取得する（存在しない場合はErrNotFound）
	GetByNaturalKey(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, contentType models.ContentType) (*models.EmbeddingRecord, error)
}

// MetricRepository はEmbedding処理メトリクスの追記を抽象化するインターフェース
type MetricRepository interface {
	// Insert はメトリクス1行を追記する（追記専用）
	Insert(ctx context.Context, metric *models.EmbeddingMetric) error
}
