package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/receipt-search/internal/core/maintenance"
	"github.com/jinford/receipt-search/internal/core/worker"
	"github.com/jinford/receipt-search/pkg/models"
)

// SourceRepository はソーステーブル（レシート・請求・明細行）から
// 正とされるコンテンツを読み出すリポジトリ。
// maintenance.SourceContentReader と worker.ContentProvider を実装する
type SourceRepository struct {
	db DBTX
}

// NewSourceRepository は新しい SourceRepository を返す。
func NewSourceRepository(db DBTX) *SourceRepository {
	return &SourceRepository{db: db}
}

var _ maintenance.SourceContentReader = (*SourceRepository)(nil)
var _ worker.ContentProvider = (*SourceRepository)(nil)

func (r *SourceRepository) AuthoritativeContent(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, contentType models.ContentType) (string, bool, error) {
	var query string
	switch {
	case sourceType == models.SourceTypeReceipt && contentType == models.ContentTypeMerchant,
		sourceType == models.SourceTypeReceipt && contentType == models.ContentTypeFallback:
		query = `SELECT coalesce(merchant, '') FROM receipts WHERE id = $1`
	case sourceType == models.SourceTypeReceipt && contentType == models.ContentTypeFullText:
		query = `SELECT coalesce(full_text, '') FROM receipts WHERE id = $1`
	case sourceType == models.SourceTypeReceipt && contentType == models.ContentTypeNotes:
		query = `SELECT coalesce(notes, '') FROM receipts WHERE id = $1`
	case sourceType == models.SourceTypeReceipt && contentType == models.ContentTypeLineItem:
		// 明細行EmbeddingのsourceIDは明細行自身のID
		query = `SELECT coalesce(description, '') FROM receipt_line_items WHERE id = $1`
	case sourceType == models.SourceTypeClaim:
		query = `SELECT btrim(coalesce(title, '') || ' ' || coalesce(description, '')) FROM claims WHERE id = $1`
	default:
		return "", false, nil
	}

	var content string
	err := r.db.QueryRow(ctx, query, UUIDToPgtype(sourceID)).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read source content: %w", err)
	}

	content = strings.TrimSpace(content)
	return content, content != "", nil
}

func (r *SourceRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*maintenance.MissingSource, error) {
	rows, err := r.db.Query(ctx, `
SELECT source_type, source_id, candidate_text, updated_at
FROM (
    SELECT 'receipt' AS source_type, r.id AS source_id,
           coalesce(r.merchant, '') AS candidate_text, r.updated_at
    FROM receipts r
    WHERE length(btrim(coalesce(r.merchant, ''))) > 0
      AND NOT EXISTS (
          SELECT 1 FROM embeddings e
          WHERE e.source_type = 'receipt' AND e.source_id = r.id
      )

    UNION ALL

    SELECT 'claim', c.id, coalesce(c.title, ''), c.updated_at
    FROM claims c
    WHERE length(btrim(coalesce(c.title, ''))) > 0
      AND NOT EXISTS (
          SELECT 1 FROM embeddings e
          WHERE e.source_type = 'claim' AND e.source_id = c.id
      )
) missing
ORDER BY updated_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing embeddings: %w", err)
	}
	defer rows.Close()

	missing := make([]*maintenance.MissingSource, 0)
	for rows.Next() {
		var (
			sourceType string
			sourceID   pgtype.UUID
			text       string
			updatedAt  pgtype.Timestamptz
		)
		if err := rows.Scan(&sourceType, &sourceID, &text, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan missing source: %w", err)
		}
		missing = append(missing, &maintenance.MissingSource{
			SourceType:    models.SourceType(sourceType),
			SourceID:      PgtypeToUUID(sourceID),
			CandidateText: text,
			UpdatedAt:     PgtypeToTime(updatedAt),
		})
	}
	return missing, rows.Err()
}

// ContentPieces はソースレコード1件からEmbedding対象ピースを組み立てる
// レシートは merchant / full_text / notes / 明細行ごとの line_item に分解し、
// どのフィールドも空なら fallback ピース1件に縮退する
func (r *SourceRepository) ContentPieces(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) ([]worker.ContentPiece, error) {
	switch sourceType {
	case models.SourceTypeReceipt:
		return r.receiptPieces(ctx, sourceID)
	case models.SourceTypeClaim:
		return r.claimPieces(ctx, sourceID)
	default:
		return nil, nil
	}
}

func (r *SourceRepository) receiptPieces(ctx context.Context, receiptID uuid.UUID) ([]worker.ContentPiece, error) {
	var (
		merchant pgtype.Text
		fullText pgtype.Text
		notes    pgtype.Text
		userID   pgtype.UUID
		teamID   pgtype.UUID
		total    *float64
		currency pgtype.Text
		date     pgtype.Timestamptz
		language pgtype.Text
	)
	err := r.db.QueryRow(ctx, `
SELECT merchant, full_text, notes, user_id, team_id, total::float8, currency, date, language
FROM receipts
WHERE id = $1`, UUIDToPgtype(receiptID)).
		Scan(&merchant, &fullText, &notes, &userID, &teamID, &total, &currency, &date, &language)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// receipt_line_items のトリガーは行自身のIDをsource_idとして積むため、
			// receiptタスクのIDが明細行を指していることがある
			return r.singleLineItemPiece(ctx, receiptID)
		}
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}

	metadata := models.EmbeddingMetadata{
		Amount:   total,
		Currency: PgtextToStringPtr(currency),
		Date:     PgtypeToTimePtr(date),
	}
	base := worker.ContentPiece{
		Metadata: metadata,
		UserID:   PgtypeToUUIDPtr(userID),
		TeamID:   PgtypeToUUIDPtr(teamID),
		Language: language.String,
	}

	pieces := make([]worker.ContentPiece, 0, 4)
	appendPiece := func(contentType models.ContentType, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		p := base
		p.ContentType = contentType
		p.Text = text
		pieces = append(pieces, p)
	}

	appendPiece(models.ContentTypeMerchant, merchant.String)
	appendPiece(models.ContentTypeFullText, fullText.String)
	appendPiece(models.ContentTypeNotes, notes.String)

	lineItems, err := r.lineItemPieces(ctx, receiptID, base)
	if err != nil {
		return nil, err
	}
	pieces = append(pieces, lineItems...)

	if len(pieces) == 0 && merchant.Valid {
		// 全フィールドが空でもマーチャント名があればfallbackとして残す
		p := base
		p.ContentType = models.ContentTypeFallback
		p.Text = strings.TrimSpace(merchant.String)
		if p.Text != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces, nil
}

func (r *SourceRepository) lineItemPieces(ctx context.Context, receiptID uuid.UUID, base worker.ContentPiece) ([]worker.ContentPiece, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, coalesce(description, ''), amount::float8
FROM receipt_line_items
WHERE receipt_id = $1
ORDER BY created_at`, UUIDToPgtype(receiptID))
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	pieces := make([]worker.ContentPiece, 0)
	for rows.Next() {
		var (
			id          pgtype.UUID
			description string
			amount      *float64
		)
		if err := rows.Scan(&id, &description, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}

		description = strings.TrimSpace(description)
		if description == "" {
			continue
		}

		p := base
		p.ContentType = models.ContentTypeLineItem
		// コンテンツは必ず明細の説明文（親レシートのマーチャント名ではない）
		p.Text = description
		p.SourceID = PgtypeToUUID(id)
		p.Metadata.Amount = amount
		pieces = append(pieces, p)
	}
	return pieces, rows.Err()
}

// singleLineItemPiece は明細行ID1件から line_item ピースを組み立てる
// 明細行の挿入・更新で積まれたタスクはこの経路で処理される
func (r *SourceRepository) singleLineItemPiece(ctx context.Context, lineItemID uuid.UUID) ([]worker.ContentPiece, error) {
	var (
		description string
		amount      *float64
		userID      pgtype.UUID
		teamID      pgtype.UUID
		currency    pgtype.Text
		date        pgtype.Timestamptz
		language    pgtype.Text
	)
	err := r.db.QueryRow(ctx, `
SELECT coalesce(li.description, ''), li.amount::float8,
       r.user_id, r.team_id, r.currency, r.date, r.language
FROM receipt_line_items li
JOIN receipts r ON r.id = li.receipt_id
WHERE li.id = $1`, UUIDToPgtype(lineItemID)).
		Scan(&description, &amount, &userID, &teamID, &currency, &date, &language)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("receipt not found: %s", lineItemID)
		}
		return nil, fmt.Errorf("failed to load line item: %w", err)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, nil
	}

	return []worker.ContentPiece{{
		ContentType: models.ContentTypeLineItem,
		Text:        description,
		SourceID:    lineItemID,
		Metadata: models.EmbeddingMetadata{
			Amount:   amount,
			Currency: PgtextToStringPtr(currency),
			Date:     PgtypeToTimePtr(date),
		},
		UserID:   PgtypeToUUIDPtr(userID),
		TeamID:   PgtypeToUUIDPtr(teamID),
		Language: language.String,
	}}, nil
}

func (r *SourceRepository) claimPieces(ctx context.Context, claimID uuid.UUID) ([]worker.ContentPiece, error) {
	var (
		title       pgtype.Text
		description pgtype.Text
		userID      pgtype.UUID
		teamID      pgtype.UUID
		amount      *float64
		currency    pgtype.Text
		incurredAt  pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `
SELECT title, description, user_id, team_id, amount::float8, currency, incurred_at
FROM claims
WHERE id = $1`, UUIDToPgtype(claimID)).
		Scan(&title, &description, &userID, &teamID, &amount, &currency, &incurredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim not found: %s", claimID)
		}
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}

	text := strings.TrimSpace(strings.TrimSpace(title.String) + " " + strings.TrimSpace(description.String))
	if text == "" {
		return nil, nil
	}

	return []worker.ContentPiece{{
		ContentType: models.ContentTypeFullText,
		Text:        text,
		Metadata: models.EmbeddingMetadata{
			Amount:   amount,
			Currency: PgtextToStringPtr(currency),
			Date:     PgtypeToTimePtr(incurredAt),
		},
		UserID: PgtypeToUUIDPtr(userID),
		TeamID: PgtypeToUUIDPtr(teamID),
	}}, nil
}

// RoleRepository は maintenance.Authorizer を実装する PostgreSQL リポジトリ。
type RoleRepository struct {
	db DBTX
}

// NewRoleRepository は新しい RoleRepository を返す。
func NewRoleRepository(db DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

var _ maintenance.Authorizer = (*RoleRepository)(nil)

func (r *RoleRepository) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		UUIDToPgtype(userID), role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}
