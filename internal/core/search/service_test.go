package search

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearchRepo struct {
	semantic []*Candidate
	trigram  []*Candidate
	keyword  []*Candidate

	semanticCalled bool
	trigramCalled  bool
	keywordCalled  bool

	lastTrigramThreshold float64
}

func (r *stubSearchRepo) SemanticCandidates(ctx context.Context, queryVector []float32, threshold float64, limit int, scope AccessScope, filters Filters) ([]*Candidate, error) {
	r.semanticCalled = true
	return r.semantic, nil
}

func (r *stubSearchRepo) TrigramCandidates(ctx context.Context, queryText string, threshold float64, limit int, scope AccessScope, filters Filters) ([]*Candidate, error) {
	r.trigramCalled = true
	r.lastTrigramThreshold = threshold
	return r.trigram, nil
}

func (r *stubSearchRepo) KeywordCandidates(ctx context.Context, queryText string, epsilon float64, limit int, scope AccessScope, filters Filters) ([]*Candidate, error) {
	r.keywordCalled = true
	return r.keyword, nil
}

func (r *stubSearchRepo) FuzzyMerchants(ctx context.Context, query string, threshold float64, limit int, scope AccessScope) ([]*MerchantSuggestion, error) {
	return nil, nil
}

func testSearchService(repo *stubSearchRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, WithLogger(logger))
}

func TestHybridSearchRequiresVectorOrText(t *testing.T) {
	svc := testSearchService(&stubSearchRepo{})

	_, err := svc.HybridSearch(context.Background(), HybridSearchParams{})
	require.Error(t, err)
}

func TestHybridSearchDisablesLexicalBranchesWithoutText(t *testing.T) {
	repo := &stubSearchRepo{
		semantic: []*Candidate{candidate(uuid.New(), "groceries", 0.5)},
	}
	svc := testSearchService(repo)

	results, err := svc.HybridSearch(context.Background(), HybridSearchParams{
		QueryVector: []float32{1, 2, 3},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, repo.semanticCalled)
	assert.False(t, repo.trigramCalled)
	assert.False(t, repo.keywordCalled)
}

func TestHybridSearchDisablesSemanticBranchWithoutVector(t *testing.T) {
	repo := &stubSearchRepo{
		trigram: []*Candidate{candidate(uuid.New(), "groceries", 0.5)},
	}
	svc := testSearchService(repo)

	results, err := svc.HybridSearch(context.Background(), HybridSearchParams{
		QueryText: "groceries",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, repo.semanticCalled)
	assert.True(t, repo.trigramCalled)
	assert.True(t, repo.keywordCalled)
}

func TestHybridSearchExactMatchAdmittedWithMaxKeyword(t *testing.T) {
	// コンテンツ==クエリのレコードはキーワード成分が1.0で必ず許容される
	id := uuid.New()
	repo := &stubSearchRepo{
		trigram: []*Candidate{candidate(id, "Acme Store", 1.0)},
	}
	svc := testSearchService(repo)

	results, err := svc.HybridSearch(context.Background(), HybridSearchParams{
		QueryText: "Acme Store",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-9)
	assert.Greater(t, results[0].CombinedScore, 0.0)
}

func TestTextSearchUsesSimilarityThresholdForTrigram(t *testing.T) {
	repo := &stubSearchRepo{}
	svc := testSearchService(repo)

	_, err := svc.TextSearch(context.Background(), HybridSearchParams{
		QueryText:           "coffee",
		SimilarityThreshold: 0.15,
	})
	require.NoError(t, err)
	assert.False(t, repo.semanticCalled)
	assert.InDelta(t, 0.15, repo.lastTrigramThreshold, 1e-9)
}

func TestTextSearchRequiresText(t *testing.T) {
	svc := testSearchService(&stubSearchRepo{})

	_, err := svc.TextSearch(context.Background(), HybridSearchParams{QueryVector: []float32{1}})
	require.Error(t, err)
}

func TestFuzzyMerchantSearchValidation(t *testing.T) {
	svc := testSearchService(&stubSearchRepo{})

	_, err := svc.FuzzyMerchantSearch(context.Background(), "  ", 0.3, 10, AccessScope{})
	require.Error(t, err)
}
