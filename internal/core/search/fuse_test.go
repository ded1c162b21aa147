package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id uuid.UUID, content string, score float64) *Candidate {
	return &Candidate{
		ID:          id,
		SourceType:  models.SourceTypeReceipt,
		SourceID:    uuid.New(),
		ContentType: models.ContentTypeMerchant,
		ContentText: content,
		Score:       score,
	}
}

func TestFuseCombinesWeightedScores(t *testing.T) {
	id := uuid.New()
	results := fuseCandidates(
		[]*Candidate{candidate(id, "Acme Store", 0.8)},
		[]*Candidate{candidate(id, "Acme Store", 0.5)},
		[]*Candidate{candidate(id, "Acme Store", 0.4)},
		fuseOptions{weights: DefaultWeights, matchCount: 20},
	)

	require.Len(t, results, 1)
	r := results[0]
	assert.InDelta(t, 0.8, r.SemanticScore, 1e-9)
	assert.InDelta(t, 0.5, r.TrigramScore, 1e-9)
	assert.InDelta(t, 0.4, r.KeywordScore, 1e-9)
	assert.InDelta(t, 0.8*0.6+0.5*0.15+0.4*0.25, r.CombinedScore, 1e-9)
}

func TestFuseKeepsSingleBranchHits(t *testing.T) {
	// 1ブランチだけ閾値を超えたレコードも結果から除外されない
	semOnly := uuid.New()
	trgmOnly := uuid.New()

	results := fuseCandidates(
		[]*Candidate{candidate(semOnly, "monthly parking fee", 0.25)},
		[]*Candidate{candidate(trgmOnly, "coffee beans", 0.9)},
		nil,
		fuseOptions{weights: DefaultWeights, matchCount: 20},
	)

	require.Len(t, results, 2)
	ids := []uuid.UUID{results[0].ID, results[1].ID}
	assert.Contains(t, ids, semOnly)
	assert.Contains(t, ids, trgmOnly)
}

func TestFuseOrdersByCombinedThenTrigramThenKeyword(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	// a と b は合成スコア同点、トライグラムで a が勝つ
	// b と c は合成・トライグラム同点、キーワードで b が勝つ
	results := fuseCandidates(
		nil,
		[]*Candidate{
			candidate(a, "alpha", 0.6),
			candidate(b, "bravo", 0.4),
			candidate(c, "charlie", 0.4),
		},
		[]*Candidate{
			candidate(b, "bravo", 0.4),
			candidate(c, "charlie", 0.4),
		},
		fuseOptions{
			weights:    Weights{Semantic: 0.0, Trigram: 0.5, Keyword: 0.25},
			matchCount: 20,
		},
	)

	require.Len(t, results, 3)
	// a: 0.6*0.5 = 0.30, b: 0.4*0.5+0.4*0.25 = 0.30, c: 同じく0.30
	assert.InDelta(t, results[0].CombinedScore, results[1].CombinedScore, 1e-9)
	assert.Equal(t, a, results[0].ID) // トライグラム0.6で先頭
	// bとcは全成分同点なのでID順（決定的であることだけ確認）
	again := fuseCandidates(
		nil,
		[]*Candidate{
			candidate(a, "alpha", 0.6),
			candidate(b, "bravo", 0.4),
			candidate(c, "charlie", 0.4),
		},
		[]*Candidate{
			candidate(b, "bravo", 0.4),
			candidate(c, "charlie", 0.4),
		},
		fuseOptions{
			weights:    Weights{Semantic: 0.0, Trigram: 0.5, Keyword: 0.25},
			matchCount: 20,
		},
	)
	assert.Equal(t, results[1].ID, again[1].ID)
	assert.Equal(t, results[2].ID, again[2].ID)
}

func TestFuseExactMatchForcesMaxKeywordScore(t *testing.T) {
	// コンテンツがクエリと完全一致するレコードはキーワード成分が1.0になる
	id := uuid.New()
	results := fuseCandidates(
		nil,
		[]*Candidate{candidate(id, "Acme Store", 0.95)},
		nil,
		fuseOptions{weights: DefaultWeights, queryText: "acme store", matchCount: 20},
	)

	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-9)
	assert.Greater(t, results[0].CombinedScore, 0.0)
}

func TestFuseTokenBoostOnlyInTextOnlyMode(t *testing.T) {
	id := uuid.New()

	// tokenBoost無効（ハイブリッド変種）では部分一致の底上げはない
	hybrid := fuseCandidates(
		nil,
		[]*Candidate{candidate(id, "Acme Store Berlin", 0.6)},
		nil,
		fuseOptions{weights: DefaultWeights, queryText: "Acme receipts", matchCount: 20},
	)
	require.Len(t, hybrid, 1)
	assert.InDelta(t, 0.0, hybrid[0].KeywordScore, 1e-9)

	// tokenBoost有効（テキストのみ変種）では先頭トークン出現で0.7に底上げ
	textOnly := fuseCandidates(
		nil,
		[]*Candidate{candidate(id, "Acme Store Berlin", 0.6)},
		nil,
		fuseOptions{weights: TextOnlyWeights, queryText: "Acme receipts", tokenBoost: true, matchCount: 20},
	)
	require.Len(t, textOnly, 1)
	assert.InDelta(t, 0.7, textOnly[0].KeywordScore, 1e-9)
}

func TestFuseCapsAtMatchCount(t *testing.T) {
	var trigram []*Candidate
	for i := 0; i < 30; i++ {
		trigram = append(trigram, candidate(uuid.New(), "content", float64(i)/30.0))
	}

	results := fuseCandidates(nil, trigram, nil, fuseOptions{weights: DefaultWeights, matchCount: 5})
	assert.Len(t, results, 5)
	// 上位から切り出されている
	assert.GreaterOrEqual(t, results[0].CombinedScore, results[4].CombinedScore)
}

func TestFuseTakesMaxScoreForDuplicateCandidates(t *testing.T) {
	id := uuid.New()
	results := fuseCandidates(
		[]*Candidate{candidate(id, "x", 0.3), candidate(id, "x", 0.9)},
		nil,
		nil,
		fuseOptions{weights: DefaultWeights, matchCount: 20},
	)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.9, results[0].SemanticScore, 1e-9)
}
