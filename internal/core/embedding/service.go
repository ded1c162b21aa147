package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// Service はEmbeddingストアへの検証付きupsert経路を提供します
// content_text が空、またはベクトルが欠けた行は決して永続化しない
type Service struct {
	repo    Repository
	metrics MetricRepository
	logger  *slog.Logger
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
func NewService(repo Repository, metrics MetricRepository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		metrics: metrics,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertParams は検証付きupsertの入力です
type UpsertParams struct {
	SourceType  models.SourceType
	SourceID    uuid.UUID
	ContentType models.ContentType
	ContentText string
	Embedding   []float32
	Metadata    models.EmbeddingMetadata
	UserID      *uuid.UUID
	TeamID      *uuid.UUID
	Language    string
}

// Upsert はEmbeddingレコードを検証して作成または上書きする
// 自然キー (source_type, source_id, content_type) への2回目以降の書き込みは
// 既存行の上書きになる（冪等）
func (s *Service) Upsert(ctx context.Context, params UpsertParams) (*models.EmbeddingRecord, error) {
	if strings.TrimSpace(params.ContentText) == "" {
		// 多層防御: ハード失敗に加えて警告イベントも出す
		s.logger.Warn("embedding upsert received empty content",
			slog.String("sourceType", string(params.SourceType)),
			slog.String("sourceID", params.SourceID.String()),
			slog.String("contentType", string(params.ContentType)),
		)
		return nil, &ValidationError{Field: "contentText", Reason: "must not be empty"}
	}
	if len(params.Embedding) == 0 {
		return nil, &ValidationError{Field: "embedding", Reason: "must not be null"}
	}
	if len(params.Embedding) != models.EmbeddingDimension {
		return nil, &ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("must have %d dimensions, got %d", models.EmbeddingDimension, len(params.Embedding)),
		}
	}
	if params.SourceID == uuid.Nil {
		return nil, &ValidationError{Field: "sourceID", Reason: "is required"}
	}

	language := params.Language
	if language == "" {
		language = models.DefaultLanguage
	}

	record := &models.EmbeddingRecord{
		SourceType:  params.SourceType,
		SourceID:    params.SourceID,
		ContentType: params.ContentType,
		ContentText: params.ContentText,
		Embedding:   params.Embedding,
		Metadata:    params.Metadata,
		UserID:      params.UserID,
		TeamID:      params.TeamID,
		Language:    language,
	}

	saved, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert embedding: %w", err)
	}

	s.logger.Info("embedding upserted",
		slog.String("sourceType", string(params.SourceType)),
		slog.String("sourceID", params.SourceID.String()),
		slog.String("contentType", string(params.ContentType)),
		slog.Int("contentLength", len(params.ContentText)),
	)

	return saved, nil
}

// DeleteBySource は1ソースレコードに紐づく全Embeddingを削除する
func (s *Service) DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) (int64, error) {
	if sourceID == uuid.Nil {
		return 0, &ValidationError{Field: "sourceID", Reason: "is required"}
	}

	deleted, err := s.repo.DeleteBySource(ctx, sourceType, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}

	s.logger.Info("embeddings deleted",
		slog.String("sourceType", string(sourceType)),
		slog.String("sourceID", sourceID.String()),
		slog.Int64("deleted", deleted),
	)

	return deleted, nil
}

// RecordMetric は処理1試行分のメトリクスを追記する
// メトリクスの記録失敗は本処理を失敗させない（ログのみ）
func (s *Service) RecordMetric(ctx context.Context, metric *models.EmbeddingMetric) {
	if err := s.metrics.Insert(ctx, metric); err != nil {
		s.logger.Error("failed to record embedding metric",
			slog.String("sourceType", string(metric.SourceType)),
			slog.String("error", err.Error()),
		)
	}
}
