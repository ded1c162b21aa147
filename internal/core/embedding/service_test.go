package embedding

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	upsertCalls int
	lastRecord  *models.EmbeddingRecord
	deleted     int64
}

func (r *stubRepo) Upsert(ctx context.Context, record *models.EmbeddingRecord) (*models.EmbeddingRecord, error) {
	r.upsertCalls++
	r.lastRecord = record
	saved := *record
	saved.ID = uuid.New()
	return &saved, nil
}

func (r *stubRepo) DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) (int64, error) {
	return r.deleted, nil
}

func (r *stubRepo) GetByNaturalKey(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, contentType models.ContentType) (*models.EmbeddingRecord, error) {
	return nil, ErrNotFound
}

type stubMetrics struct {
	inserted []*models.EmbeddingMetric
}

func (m *stubMetrics) Insert(ctx context.Context, metric *models.EmbeddingMetric) error {
	m.inserted = append(m.inserted, metric)
	return nil
}

func testService(repo *stubRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, &stubMetrics{}, WithLogger(logger))
}

func validVector() []float32 {
	vec := make([]float32, models.EmbeddingDimension)
	for i := range vec {
		vec[i] = 0.01
	}
	return vec
}

func TestUpsertRejectsEmptyContent(t *testing.T) {
	repo := &stubRepo{}
	svc := testService(repo)

	tests := []struct {
		name    string
		content string
	}{
		{name: "空文字", content: ""},
		{name: "空白のみ", content: "   \t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upsert(context.Background(), UpsertParams{
				SourceType:  models.SourceTypeReceipt,
				SourceID:    uuid.New(),
				ContentType: models.ContentTypeMerchant,
				ContentText: tt.content,
				Embedding:   validVector(),
			})
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			// 部分的な行は書き込まれない
			assert.Equal(t, 0, repo.upsertCalls)
		})
	}
}

func TestUpsertRejectsMissingVector(t *testing.T) {
	repo := &stubRepo{}
	svc := testService(repo)

	_, err := svc.Upsert(context.Background(), UpsertParams{
		SourceType:  models.SourceTypeReceipt,
		SourceID:    uuid.New(),
		ContentType: models.ContentTypeMerchant,
		ContentText: "Acme Store",
		Embedding:   nil,
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 0, repo.upsertCalls)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	repo := &stubRepo{}
	svc := testService(repo)

	_, err := svc.Upsert(context.Background(), UpsertParams{
		SourceType:  models.SourceTypeReceipt,
		SourceID:    uuid.New(),
		ContentType: models.ContentTypeMerchant,
		ContentText: "Acme Store",
		Embedding:   []float32{1, 2, 3},
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 0, repo.upsertCalls)
}

func TestUpsertAppliesDefaultLanguage(t *testing.T) {
	repo := &stubRepo{}
	svc := testService(repo)

	saved, err := svc.Upsert(context.Background(), UpsertParams{
		SourceType:  models.SourceTypeReceipt,
		SourceID:    uuid.New(),
		ContentType: models.ContentTypeMerchant,
		ContentText: "Acme Store",
		Embedding:   validVector(),
	})
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, models.DefaultLanguage, repo.lastRecord.Language)
	assert.Equal(t, 1, repo.upsertCalls)
}

func TestDeleteBySourceRequiresID(t *testing.T) {
	svc := testService(&stubRepo{})

	_, err := svc.DeleteBySource(context.Background(), models.SourceTypeReceipt, uuid.Nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
