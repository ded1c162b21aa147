package search

import (
	"context"
)

// Repository は候補生成の全ブランチを統合するインターフェース
// 各ブランチは構造的フィルタと所有権述語を適用したうえで、
// ブランチ閾値を超えた候補のみを返す
type Repository interface {
	// SemanticCandidates はコサイン類似度による候補を返す
	SemanticCandidates(ctx context.Context, queryVector []float32, threshold float64, limit int, scope AccessScope, filters Filters) ([]*Candidate, error)

	// TrigramCandidates は文字トライグラム類似度による候補を返す
	TrigramCandidates(ctx context.Context, queryText string, threshold float64, limit int, scope AccessScope, filters Filters) ([]*Candidate, error)

	// KeywordCandidates は全文検索ランクによる候補を返す（正規化済みランク）
	KeywordCandidates(ctx context.Context, queryText string, epsilon float64, limit int, scope AccessScope, filters Filters) ([]*Candidate, error)

	// FuzzyMerchants はマーチャント種別コンテンツに限定したトライグラム検索を
	// マーチャント文字列でグルーピングして返す
	FuzzyMerchants(ctx context.Context, query string, threshold float64, limit int, scope AccessScope) ([]*MerchantSuggestion, error)
}
