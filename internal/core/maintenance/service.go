package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// AdminRole は統計関数の呼び出しに必要なロール名
const AdminRole = "admin"

// AuthorizationError は呼び出し元に必要なロールが無いことを表します
type AuthorizationError struct {
	Role string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("caller lacks required role: %s", e.Role)
}

// Service はEmbeddingストアの保守・修復ジョブを提供します
// バッチ処理は1レコードの失敗でバッチ全体を失敗させず、
// レコードごとの結果をデータとして返す
type Service struct {
	repo    Repository
	sources SourceContentReader
	authz   Authorizer
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
func NewService(repo Repository, sources SourceContentReader, authz Authorizer, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		sources: sources,
		authz:   authz,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeContentHealth は種別ごとのコンテンツカバレッジを診断する（読み取り専用）
func (s *Service) AnalyzeContentHealth(ctx context.Context) ([]*ContentHealthRow, error) {
	rows, err := s.repo.ContentHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze content health: %w", err)
	}
	return rows, nil
}

// repairBatchLimit は1回の修復バッチで処理するレコード数の上限
const repairBatchLimit = 500

// RepairMalformedContent は不正コンテンツのレコードをソーステーブルの
// 正とされる値で書き換える。1レコードの例外は捕捉して結果に記録し、
// ループは継続する（不正レコード1件が残り全件をブロックしてはならない）
func (s *Service) RepairMalformedContent(ctx context.Context) (*RepairSummary, error) {
	malformed, err := s.repo.ListMalformed(ctx, repairBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list malformed records: %w", err)
	}

	summary := &RepairSummary{Outcomes: make([]RepairOutcome, 0, len(malformed))}
	for _, record := range malformed {
		outcome := s.repairOne(ctx, record)
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch outcome.Status {
		case RepairFixed:
			summary.Fixed++
		case RepairSkippedNoData:
			summary.Skipped++
		case RepairError:
			summary.Errors++
		}
	}

	s.logger.Info("content repair finished",
		slog.Int("scanned", len(malformed)),
		slog.Int("fixed", summary.Fixed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)

	return summary, nil
}

// repairOne は1レコード分の修復を行う
func (s *Service) repairOne(ctx context.Context, record *MalformedRecord) RepairOutcome {
	outcome := RepairOutcome{
		RecordID:    record.ID,
		SourceType:  record.SourceType,
		SourceID:    record.SourceID,
		ContentType: record.ContentType,
	}

	content, found, err := s.sources.AuthoritativeContent(ctx, record.SourceType, record.SourceID, record.ContentType)
	if err != nil {
		outcome.Status = RepairError
		outcome.Message = fmt.Sprintf("source lookup failed: %v", err)
		return outcome
	}
	if !found || content == "" {
		outcome.Status = RepairSkippedNoData
		outcome.Message = "no authoritative content available"
		return outcome
	}

	provenance := fmt.Sprintf("repair:%s", record.Reason)
	if err := s.repo.RewriteContent(ctx, record.ID, content, provenance); err != nil {
		outcome.Status = RepairError
		outcome.Message = fmt.Sprintf("rewrite failed: %v", err)
		return outcome
	}

	outcome.Status = RepairFixed
	return outcome
}

// FindMissingEmbeddings はEmbedding未生成のソースレコードを新しい順に返す
// バックログ充填ワーカーの入力になる
func (s *Service) FindMissingEmbeddings(ctx context.Context, limit int) ([]*MissingSource, error) {
	if limit <= 0 {
		limit = 100
	}

	missing, err := s.sources.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find missing embeddings: %w", err)
	}

	return missing, nil
}

// SearchStats は管理者向けの検索基盤統計を返す
// 呼び出し元が admin ロールを持たない場合は AuthorizationError
func (s *Service) SearchStats(ctx context.Context, callerID uuid.UUID) (*SearchStats, error) {
	ok, err := s.authz.HasRole(ctx, callerID, AdminRole)
	if err != nil {
		return nil, fmt.Errorf("role check failed: %w", err)
	}
	if !ok {
		return nil, &AuthorizationError{Role: AdminRole}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect search stats: %w", err)
	}

	return stats, nil
}
