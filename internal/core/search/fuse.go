package search

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// fuseOptions はブランチ融合の設定です
type fuseOptions struct {
	weights    Weights
	queryText  string
	tokenBoost bool // テキストのみ変種: 先頭/末尾クエリトークンの出現で0.7に底上げ
	matchCount int
}

// fuseCandidates は3ブランチの候補をレコードIDで外部結合し、重み付き合成
// スコアで順位付けする。いずれかのブランチで閾値を超えたレコードは、合成
// スコアが低くても結果から除外されない（候補に現れた時点で許容済み）
//
// 順序: 合成スコア降順 → トライグラム降順 → キーワード降順
func fuseCandidates(semantic, trigram, keyword []*Candidate, opts fuseOptions) []*Result {
	merged := make(map[uuid.UUID]*Result)

	ensure := func(c *Candidate) *Result {
		if r, ok := merged[c.ID]; ok {
			return r
		}
		r := &Result{
			ID:          c.ID,
			SourceType:  c.SourceType,
			SourceID:    c.SourceID,
			ContentType: c.ContentType,
			ContentText: c.ContentText,
		}
		merged[c.ID] = r
		return r
	}

	for _, c := range semantic {
		r := ensure(c)
		if c.Score > r.SemanticScore {
			r.SemanticScore = c.Score
		}
	}
	for _, c := range trigram {
		r := ensure(c)
		if c.Score > r.TrigramScore {
			r.TrigramScore = c.Score
		}
	}
	for _, c := range keyword {
		r := ensure(c)
		if c.Score > r.KeywordScore {
			r.KeywordScore = c.Score
		}
	}

	query := strings.TrimSpace(opts.queryText)
	queryTokens := strings.Fields(strings.ToLower(query))

	results := make([]*Result, 0, len(merged))
	for _, r := range merged {
		if query != "" {
			content := strings.TrimSpace(r.ContentText)
			if strings.EqualFold(content, query) {
				// 完全一致はキーワード成分の最大値
				r.KeywordScore = 1.0
			} else if opts.tokenBoost && len(queryTokens) > 0 {
				lower := strings.ToLower(content)
				first := queryTokens[0]
				last := queryTokens[len(queryTokens)-1]
				if strings.Contains(lower, first) || strings.Contains(lower, last) {
					if r.KeywordScore < 0.7 {
						r.KeywordScore = 0.7
					}
				}
			}
		}

		r.CombinedScore = r.SemanticScore*opts.weights.Semantic +
			r.TrigramScore*opts.weights.Trigram +
			r.KeywordScore*opts.weights.Keyword
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.TrigramScore != b.TrigramScore {
			return a.TrigramScore > b.TrigramScore
		}
		if a.KeywordScore != b.KeywordScore {
			return a.KeywordScore > b.KeywordScore
		}
		// 完全同点は決定的な順序のためIDで比較する
		return a.ID.String() < b.ID.String()
	})

	if opts.matchCount > 0 && len(results) > opts.matchCount {
		results = results[:opts.matchCount]
	}

	return results
}
