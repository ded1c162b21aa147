package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Service はハイブリッド検索のビジネスロジックを提供します
// セマンティック・トライグラム・キーワードの3ブランチを並行実行し、
// レコードIDで外部結合して重み付き合成スコアで順位付けする
type Service struct {
	repo   Repository
	logger *slog.Logger
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
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type branchResult struct {
	candidates []*Candidate
	err        error
}

// HybridSearch はベクトル+テキストのハイブリッド検索を実行する
// クエリテキストが空ならトライグラム/キーワードブランチが、ベクトルが
// 無ければセマンティックブランチが無効化される（呼び出し全体は失敗しない）
func (s *Service) HybridSearch(ctx context.Context, params HybridSearchParams) ([]*Result, error) {
	queryText := strings.TrimSpace(params.QueryText)
	hasVector := len(params.QueryVector) > 0
	hasText := queryText != ""

	if !hasVector && !hasText {
		return nil, fmt.Errorf("either queryVector or queryText is required")
	}

	simThreshold := params.SimilarityThreshold
	if simThreshold <= 0 {
		simThreshold = DefaultSimilarityThreshold
	}
	trgmThreshold := params.TrigramThreshold
	if trgmThreshold <= 0 {
		trgmThreshold = DefaultTrigramThreshold
	}
	matchCount := params.MatchCount
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}
	weights := DefaultWeights
	if params.Weights != nil {
		weights = *params.Weights
	}

	// 各ブランチは結果上限より広めに候補を集める
	candidateLimit := matchCount * 4

	semanticCh := make(chan branchResult, 1)
	trigramCh := make(chan branchResult, 1)
	keywordCh := make(chan branchResult, 1)

	if hasVector {
		go func() {
			candidates, err := s.repo.SemanticCandidates(ctx, params.QueryVector, simThreshold, candidateLimit, params.Scope, params.Filters)
			semanticCh <- branchResult{candidates: candidates, err: err}
		}()
	} else {
		semanticCh <- branchResult{}
	}

	if hasText {
		go func() {
			candidates, err := s.repo.TrigramCandidates(ctx, queryText, trgmThreshold, candidateLimit, params.Scope, params.Filters)
			trigramCh <- branchResult{candidates: candidates, err: err}
		}()
		go func() {
			candidates, err := s.repo.KeywordCandidates(ctx, queryText, KeywordRankEpsilon, candidateLimit, params.Scope, params.Filters)
			keywordCh <- branchResult{candidates: candidates, err: err}
		}()
	} else {
		trigramCh <- branchResult{}
		keywordCh <- branchResult{}
	}

	semanticRes := <-semanticCh
	trigramRes := <-trigramCh
	keywordRes := <-keywordCh

	if semanticRes.err != nil {
		return nil, fmt.Errorf("semantic branch failed: %w", semanticRes.err)
	}
	if trigramRes.err != nil {
		return nil, fmt.Errorf("trigram branch failed: %w", trigramRes.err)
	}
	if keywordRes.err != nil {
		return nil, fmt.Errorf("keyword branch failed: %w", keywordRes.err)
	}

	results := fuseCandidates(semanticRes.candidates, trigramRes.candidates, keywordRes.candidates, fuseOptions{
		weights:    weights,
		queryText:  queryText,
		matchCount: matchCount,
	})

	s.logger.Debug("hybrid search executed",
		slog.Bool("semantic", hasVector),
		slog.Bool("lexical", hasText),
		slog.Int("results", len(results)),
	)

	return results, nil
}

// TextSearch はテキストのみの簡易変種を実行する
// トライグラム閾値にsimilarity_thresholdを流用し、重みは0.4/0.3/0.3、
// キーワード成分は完全一致1.0 / 先頭・末尾トークン出現0.7に底上げされる
func (s *Service) TextSearch(ctx context.Context, params HybridSearchParams) ([]*Result, error) {
	queryText := strings.TrimSpace(params.QueryText)
	if queryText == "" {
		return nil, fmt.Errorf("queryText is required")
	}

	simThreshold := params.SimilarityThreshold
	if simThreshold <= 0 {
		simThreshold = DefaultSimilarityThreshold
	}
	matchCount := params.MatchCount
	if matchCount <= 0 {
		matchCount = DefaultMatchCount
	}
	weights := TextOnlyWeights
	if params.Weights != nil {
		weights = *params.Weights
	}

	candidateLimit := matchCount * 4

	trigramCh := make(chan branchResult, 1)
	keywordCh := make(chan branchResult, 1)

	go func() {
		// テキストのみ変種ではトライグラム閾値もsimilarity_thresholdを使う
		candidates, err := s.repo.TrigramCandidates(ctx, queryText, simThreshold, candidateLimit, params.Scope, params.Filters)
		trigramCh <- branchResult{candidates: candidates, err: err}
	}()
	go func() {
		candidates, err := s.repo.KeywordCandidates(ctx, queryText, KeywordRankEpsilon, candidateLimit, params.Scope, params.Filters)
		keywordCh <- branchResult{candidates: candidates, err: err}
	}()

	trigramRes := <-trigramCh
	keywordRes := <-keywordCh

	if trigramRes.err != nil {
		return nil, fmt.Errorf("trigram branch failed: %w", trigramRes.err)
	}
	if keywordRes.err != nil {
		return nil, fmt.Errorf("keyword branch failed: %w", keywordRes.err)
	}

	return fuseCandidates(nil, trigramRes.candidates, keywordRes.candidates, fuseOptions{
		weights:    weights,
		queryText:  queryText,
		tokenBoost: true,
		matchCount: matchCount,
	}), nil
}

// FuzzyMerchantSearch はマーチャント名の曖昧検索を実行する
// 「このマーチャントのことでは?」候補の提示に使う
func (s *Service) FuzzyMerchantSearch(ctx context.Context, query string, threshold float64, limit int, scope AccessScope) ([]*MerchantSuggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if threshold <= 0 {
		threshold = DefaultTrigramThreshold
	}
	if limit <= 0 {
		limit = 10
	}

	suggestions, err := s.repo.FuzzyMerchants(ctx, query, threshold, limit, scope)
	if err != nil {
		return nil, fmt.Errorf("fuzzy merchant search failed: %w", err)
	}

	return suggestions, nil
}
