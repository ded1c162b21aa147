package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/receipt-search/internal/core/search"
	"github.com/jinford/receipt-search/pkg/models"
)

// SearchRepository は core/search.Repository を実装する PostgreSQL リポジトリ。
// 各ブランチのSQLは閾値の適用までをデータベース側で行い、
// 融合アルゴリズムはサービス層（Go側）に置く
type SearchRepository struct {
	db DBTX
}

// NewSearchRepository は新しい SearchRepository を返す。
func NewSearchRepository(db DBTX) *SearchRepository {
	return &SearchRepository{db: db}
}

var _ search.Repository = (*SearchRepository)(nil)

// queryBuilder はWHERE条件と位置パラメータを組み立てる。
type queryBuilder struct {
	conds []string
	args  []any
}

// arg は引数を登録してそのプレースホルダを返す。
func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// where は条件を1つ追加する。
func (b *queryBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

// whereClause は全条件をANDで結合して返す。
func (b *queryBuilder) whereClause() string {
	if len(b.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(b.conds, "\n  AND ")
}

// applyAccessScope は所有権述語を追加する
// 可視性ルールの定義はこの関数だけに置き、全ての読み取り経路
// （各検索ブランチ・マーチャント曖昧検索）が必ずここを通る
func applyAccessScope(b *queryBuilder, scope search.AccessScope) {
	teamIDs := make([]string, 0, len(scope.TeamIDs))
	for _, id := range scope.TeamIDs {
		teamIDs = append(teamIDs, id.String())
	}
	b.where(fmt.Sprintf(
		"(e.user_id = %s OR (e.team_id IS NOT NULL AND e.team_id = ANY(%s::uuid[])) OR e.source_type = %s)",
		b.arg(UUIDToPgtype(scope.UserID)),
		b.arg(teamIDs),
		b.arg(string(models.SourceTypeBusinessDirectory)),
	))
}

// applyFilters は構造的フィルタを追加する
// 日付・金額は非正規化メタデータ上で評価し、receipt / claim 以外の
// 種別には適用しない（他種別にとってno-opであることを条件自体が保証する）
func applyFilters(b *queryBuilder, filters search.Filters) {
	if len(filters.SourceTypes) > 0 {
		types := make([]string, 0, len(filters.SourceTypes))
		for _, st := range filters.SourceTypes {
			types = append(types, string(st))
		}
		b.where(fmt.Sprintf("e.source_type = ANY(%s::text[])", b.arg(types)))
	}
	if len(filters.ContentTypes) > 0 {
		types := make([]string, 0, len(filters.ContentTypes))
		for _, ct := range filters.ContentTypes {
			types = append(types, string(ct))
		}
		b.where(fmt.Sprintf("e.content_type = ANY(%s::text[])", b.arg(types)))
	}
	if filters.Language != nil {
		b.where(fmt.Sprintf("e.language = %s", b.arg(*filters.Language)))
	}

	const monetary = "e.source_type NOT IN ('receipt', 'claim')"
	if filters.DateFrom != nil {
		b.where(fmt.Sprintf("(%s OR (e.metadata->>'date')::timestamptz >= %s)", monetary, b.arg(TimeToPgtype(*filters.DateFrom))))
	}
	if filters.DateTo != nil {
		b.where(fmt.Sprintf("(%s OR (e.metadata->>'date')::timestamptz <= %s)", monetary, b.arg(TimeToPgtype(*filters.DateTo))))
	}
	if filters.AmountMin != nil {
		b.where(fmt.Sprintf("(%s OR (e.metadata->>'amount')::numeric >= %s)", monetary, b.arg(*filters.AmountMin)))
	}
	if filters.AmountMax != nil {
		b.where(fmt.Sprintf("(%s OR (e.metadata->>'amount')::numeric <= %s)", monetary, b.arg(*filters.AmountMax)))
	}
}

const candidateColumns = `e.id, e.source_type, e.source_id, e.content_type, e.content_text, e.user_id, e.team_id, e.language`

func (r *SearchRepository) SemanticCandidates(ctx context.Context, queryVector []float32, threshold float64, limit int, scope search.AccessScope, filters search.Filters) ([]*search.Candidate, error) {
	b := &queryBuilder{}
	vec := b.arg(pgvector.NewVector(queryVector))
	score := fmt.Sprintf("1 - (e.embedding <=> %s)", vec)

	applyAccessScope(b, scope)
	applyFilters(b, filters)
	b.where("e.embedding IS NOT NULL")
	b.where(fmt.Sprintf("%s > %s", score, b.arg(threshold)))

	query := fmt.Sprintf(`
SELECT %s, %s AS score
FROM embeddings e
WHERE %s
ORDER BY score DESC
LIMIT %s`, candidateColumns, score, b.whereClause(), b.arg(limit))

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run semantic search: %w", err)
	}
	return scanCandidates(rows)
}

func (r *SearchRepository) TrigramCandidates(ctx context.Context, queryText string, threshold float64, limit int, scope search.AccessScope, filters search.Filters) ([]*search.Candidate, error) {
	b := &queryBuilder{}
	q := b.arg(queryText)
	score := fmt.Sprintf("similarity(e.content_text, %s)", q)

	applyAccessScope(b, scope)
	applyFilters(b, filters)
	b.where(fmt.Sprintf("%s > %s", score, b.arg(threshold)))

	query := fmt.Sprintf(`
SELECT %s, %s::float8 AS score
FROM embeddings e
WHERE %s
ORDER BY score DESC
LIMIT %s`, candidateColumns, score, b.whereClause(), b.arg(limit))

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run trigram search: %w", err)
	}
	return scanCandidates(rows)
}

func (r *SearchRepository) KeywordCandidates(ctx context.Context, queryText string, epsilon float64, limit int, scope search.AccessScope, filters search.Filters) ([]*search.Candidate, error) {
	b := &queryBuilder{}
	q := b.arg(queryText)
	// 正規化フラグ32でランクを (0,1) に収め、他ブランチのスコアと合成できるようにする
	score := fmt.Sprintf("ts_rank(to_tsvector('english', e.content_text), plainto_tsquery('english', %s), 32)", q)

	applyAccessScope(b, scope)
	applyFilters(b, filters)
	b.where(fmt.Sprintf("to_tsvector('english', e.content_text) @@ plainto_tsquery('english', %s)", q))
	b.where(fmt.Sprintf("%s > %s", score, b.arg(epsilon)))

	query := fmt.Sprintf(`
SELECT %s, %s::float8 AS score
FROM embeddings e
WHERE %s
ORDER BY score DESC
LIMIT %s`, candidateColumns, score, b.whereClause(), b.arg(limit))

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	return scanCandidates(rows)
}

func (r *SearchRepository) FuzzyMerchants(ctx context.Context, query string, threshold float64, limit int, scope search.AccessScope) ([]*search.MerchantSuggestion, error) {
	b := &queryBuilder{}
	q := b.arg(query)

	applyAccessScope(b, scope)
	b.where(fmt.Sprintf("e.content_type = %s", b.arg(string(models.ContentTypeMerchant))))
	b.where(fmt.Sprintf("similarity(e.content_text, %s) > %s", q, b.arg(threshold)))

	sql := fmt.Sprintf(`
SELECT e.content_text,
       COUNT(*)::int AS matches,
       COALESCE(SUM((e.metadata->>'amount')::numeric), 0)::float8 AS total_amount,
       MAX(similarity(e.content_text, %s))::float8 AS sim
FROM embeddings e
WHERE %s
GROUP BY e.content_text
ORDER BY sim DESC, matches DESC
LIMIT %s`, q, b.whereClause(), b.arg(limit))

	rows, err := r.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run fuzzy merchant search: %w", err)
	}
	defer rows.Close()

	suggestions := make([]*search.MerchantSuggestion, 0)
	for rows.Next() {
		s := &search.MerchantSuggestion{}
		if err := rows.Scan(&s.Merchant, &s.Matches, &s.TotalAmount, &s.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan merchant suggestion: %w", err)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// scanCandidates は candidateColumns + score の順でSELECTした行を変換する。
func scanCandidates(rows pgx.Rows) ([]*search.Candidate, error) {
	defer rows.Close()

	candidates := make([]*search.Candidate, 0)
	for rows.Next() {
		var (
			id          pgtype.UUID
			sourceType  string
			sourceID    pgtype.UUID
			contentType string
			contentText string
			userID      pgtype.UUID
			teamID      pgtype.UUID
			language    string
			score       float64
		)
		if err := rows.Scan(&id, &sourceType, &sourceID, &contentType, &contentText, &userID, &teamID, &language, &score); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, &search.Candidate{
			ID:          PgtypeToUUID(id),
			SourceType:  models.SourceType(sourceType),
			SourceID:    PgtypeToUUID(sourceID),
			ContentType: models.ContentType(contentType),
			ContentText: contentText,
			UserID:      PgtypeToUUIDPtr(userID),
			TeamID:      PgtypeToUUIDPtr(teamID),
			Language:    language,
			Score:       score,
		})
	}
	return candidates, rows.Err()
}
