package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/receipt-search/internal/core/maintenance"
	"github.com/jinford/receipt-search/pkg/models"
)

// MaintenanceRepository は core/maintenance.Repository を実装する PostgreSQL リポジトリ。
type MaintenanceRepository struct {
	db DBTX
}

// NewMaintenanceRepository は新しい MaintenanceRepository を返す。
func NewMaintenanceRepository(db DBTX) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

var _ maintenance.Repository = (*MaintenanceRepository)(nil)

func (r *MaintenanceRepository) ContentHealth(ctx context.Context) ([]*maintenance.ContentHealthRow, error) {
	rows, err := r.db.Query(ctx, `
SELECT source_type,
       content_type,
       COUNT(*)::int AS total,
       COUNT(*) FILTER (WHERE length(btrim(coalesce(content_text, ''))) = 0)::int AS empty
FROM embeddings
GROUP BY source_type, content_type
ORDER BY source_type, content_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze content health: %w", err)
	}
	defer rows.Close()

	health := make([]*maintenance.ContentHealthRow, 0)
	for rows.Next() {
		var (
			sourceType  string
			contentType string
			total       int
			empty       int
		)
		if err := rows.Scan(&sourceType, &contentType, &total, &empty); err != nil {
			return nil, fmt.Errorf("failed to scan content health row: %w", err)
		}
		row := &maintenance.ContentHealthRow{
			SourceType:  models.SourceType(sourceType),
			ContentType: models.ContentType(contentType),
			Total:       total,
			Empty:       empty,
			Populated:   total - empty,
		}
		if total > 0 {
			row.CoveragePct = float64(row.Populated) / float64(total) * 100
		}
		health = append(health, row)
	}
	return health, rows.Err()
}

func (r *MaintenanceRepository) ListMalformed(ctx context.Context, limit int) ([]*maintenance.MalformedRecord, error) {
	// 2種類の不正を検出する:
	//   empty_content   空または空白のみのコンテンツ
	//   merchant_copied 明細行のコンテンツが説明文ではなく親レシートの
	//                   マーチャント名になっているもの
	rows, err := r.db.Query(ctx, `
SELECT id, source_type, source_id, content_type, coalesce(content_text, ''), reason
FROM (
    SELECT e.id, e.source_type, e.source_id, e.content_type, e.content_text,
           'empty_content' AS reason
    FROM embeddings e
    WHERE length(btrim(coalesce(e.content_text, ''))) = 0

    UNION ALL

    SELECT e.id, e.source_type, e.source_id, e.content_type, e.content_text,
           'merchant_copied' AS reason
    FROM embeddings e
    JOIN receipt_line_items li ON li.id = e.source_id
    JOIN receipts r ON r.id = li.receipt_id
    WHERE e.source_type = 'receipt'
      AND e.content_type = 'line_item'
      AND e.content_text = r.merchant
      AND e.content_text IS DISTINCT FROM li.description
) malformed
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list malformed records: %w", err)
	}
	defer rows.Close()

	records := make([]*maintenance.MalformedRecord, 0)
	for rows.Next() {
		var (
			id          pgtype.UUID
			sourceType  string
			sourceID    pgtype.UUID
			contentType string
			contentText string
			reason      string
		)
		if err := rows.Scan(&id, &sourceType, &sourceID, &contentType, &contentText, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan malformed record: %w", err)
		}
		records = append(records, &maintenance.MalformedRecord{
			ID:          PgtypeToUUID(id),
			SourceType:  models.SourceType(sourceType),
			SourceID:    PgtypeToUUID(sourceID),
			ContentType: models.ContentType(contentType),
			ContentText: contentText,
			Reason:      maintenance.MalformedReason(reason),
		})
	}
	return records, rows.Err()
}

func (r *MaintenanceRepository) RewriteContent(ctx context.Context, id uuid.UUID, content string, provenance string) error {
	// 修復来歴をメタデータに残し、後から修復由来の行を追跡できるようにする
	tag, err := r.db.Exec(ctx, `
UPDATE embeddings
SET content_text = $2,
    metadata = jsonb_set(coalesce(metadata, '{}'::jsonb), '{migratedFrom}', to_jsonb($3::text), true),
    updated_at = now()
WHERE id = $1`, UUIDToPgtype(id), content, provenance)
	if err != nil {
		return fmt.Errorf("failed to rewrite content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("embedding record not found: %s", id)
	}
	return nil
}

func (r *MaintenanceRepository) Stats(ctx context.Context) (*maintenance.SearchStats, error) {
	stats := &maintenance.SearchStats{
		BySourceType: make(map[models.SourceType]int),
		ByLanguage:   make(map[string]int),
	}

	row := r.db.QueryRow(ctx, `
SELECT COUNT(*)::int, COALESCE(AVG(length(content_text)), 0)::float8
FROM embeddings`)
	if err := row.Scan(&stats.TotalRecords, &stats.AvgContentLength); err != nil {
		return nil, fmt.Errorf("failed to collect search stats: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT source_type, COUNT(*)::int FROM embeddings GROUP BY source_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect source type stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sourceType string
			count      int
		)
		if err := rows.Scan(&sourceType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source type stats: %w", err)
		}
		stats.BySourceType[models.SourceType(sourceType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	langRows, err := r.db.Query(ctx, `SELECT language, COUNT(*)::int FROM embeddings GROUP BY language`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect language stats: %w", err)
	}
	defer langRows.Close()
	for langRows.Next() {
		var (
			language string
			count    int
		)
		if err := langRows.Scan(&language, &count); err != nil {
			return nil, fmt.Errorf("failed to scan language stats: %w", err)
		}
		stats.ByLanguage[language] = count
	}
	return stats, langRows.Err()
}
