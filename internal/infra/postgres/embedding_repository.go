package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/receipt-search/internal/core/embedding"
	"github.com/jinford/receipt-search/pkg/models"
)

// EmbeddingRepository は core/embedding.Repository を実装する PostgreSQL リポジトリ。
type EmbeddingRepository struct {
	db DBTX
}

// NewEmbeddingRepository は新しい EmbeddingRepository を返す。
func NewEmbeddingRepository(db DBTX) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

var _ embedding.Repository = (*EmbeddingRepository)(nil)

const embeddingColumns = `id, source_type, source_id, content_type, content_text, embedding, metadata, user_id, team_id, language, created_at, updated_at`

func (r *EmbeddingRepository) Upsert(ctx context.Context, record *models.EmbeddingRecord) (*models.EmbeddingRecord, error) {
	query := `
INSERT INTO embeddings (source_type, source_id, content_type, content_text, embedding, metadata, user_id, team_id, language)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (source_type, source_id, content_type) DO UPDATE SET
    content_text = EXCLUDED.content_text,
    embedding    = EXCLUDED.embedding,
    metadata     = EXCLUDED.metadata,
    user_id      = EXCLUDED.user_id,
    team_id      = EXCLUDED.team_id,
    language     = EXCLUDED.language,
    updated_at   = now()
RETURNING ` + embeddingColumns

	row := r.db.QueryRow(ctx, query,
		string(record.SourceType),
		UUIDToPgtype(record.SourceID),
		string(record.ContentType),
		record.ContentText,
		pgvector.NewVector(record.Embedding),
		MetadataToJSONB(record.Metadata),
		UUIDPtrToPgtype(record.UserID),
		UUIDPtrToPgtype(record.TeamID),
		record.Language,
	)

	saved, err := scanEmbedding(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return saved, nil
}

func (r *EmbeddingRepository) DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM embeddings WHERE source_type = $1 AND source_id = $2`,
		string(sourceType), UUIDToPgtype(sourceID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EmbeddingRepository) GetByNaturalKey(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, contentType models.ContentType) (*models.EmbeddingRecord, error) {
	query := `SELECT ` + embeddingColumns + `
FROM embeddings
WHERE source_type = $1 AND source_id = $2 AND content_type = $3`

	row := r.db.QueryRow(ctx, query, string(sourceType), UUIDToPgtype(sourceID), string(contentType))

	record, err := scanEmbedding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, embedding.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return record, nil
}

// scanEmbedding は embeddingColumns の順でSELECTした1行を変換する。
func scanEmbedding(row pgx.Row) (*models.EmbeddingRecord, error) {
	var (
		id          pgtype.UUID
		sourceType  string
		sourceID    pgtype.UUID
		contentType string
		contentText string
		vec         pgvector.Vector
		metadata    []byte
		userID      pgtype.UUID
		teamID      pgtype.UUID
		language    string
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &sourceType, &sourceID, &contentType, &contentText, &vec, &metadata, &userID, &teamID, &language, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	return &models.EmbeddingRecord{
		ID:          PgtypeToUUID(id),
		SourceType:  models.SourceType(sourceType),
		SourceID:    PgtypeToUUID(sourceID),
		ContentType: models.ContentType(contentType),
		ContentText: contentText,
		Embedding:   vec.Slice(),
		Metadata:    MetadataFromJSONB(metadata),
		UserID:      PgtypeToUUIDPtr(userID),
		TeamID:      PgtypeToUUIDPtr(teamID),
		Language:    language,
		CreatedAt:   PgtypeToTime(createdAt),
		UpdatedAt:   PgtypeToTime(updatedAt),
	}, nil
}

// MetricRepository は core/embedding.MetricRepository を実装する PostgreSQL リポジトリ。
// メトリクスは追記専用でUPDATEしない
type MetricRepository struct {
	db DBTX
}

// NewMetricRepository は新しい MetricRepository を返す。
func NewMetricRepository(db DBTX) *MetricRepository {
	return &MetricRepository{db: db}
}

var _ embedding.MetricRepository = (*MetricRepository)(nil)

func (r *MetricRepository) Insert(ctx context.Context, metric *models.EmbeddingMetric) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO embedding_metrics (task_id, source_type, content_type, success, latency_ms, tokens, error_class)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		UUIDPtrToPgtype(metric.TaskID),
		string(metric.SourceType),
		string(metric.ContentType),
		metric.Success,
		metric.LatencyMS,
		metric.Tokens,
		StringPtrToPgtext(metric.ErrorClass),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding metric: %w", err)
	}
	return nil
}
