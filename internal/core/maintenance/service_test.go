package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	malformed  []*MalformedRecord
	rewriteErr map[uuid.UUID]error
	rewritten  map[uuid.UUID]string
}

func (r *stubRepo) ContentHealth(ctx context.Context) ([]*ContentHealthRow, error) {
	return []*ContentHealthRow{
		{SourceType: models.SourceTypeReceipt, ContentType: models.ContentTypeMerchant, Total: 10, Empty: 1, Populated: 9, CoveragePct: 90},
	}, nil
}

func (r *stubRepo) ListMalformed(ctx context.Context, limit int) ([]*MalformedRecord, error) {
	return r.malformed, nil
}

func (r *stubRepo) RewriteContent(ctx context.Context, id uuid.UUID, content string, provenance string) error {
	if err, ok := r.rewriteErr[id]; ok {
		return err
	}
	if r.rewritten == nil {
		r.rewritten = make(map[uuid.UUID]string)
	}
	r.rewritten[id] = content
	return nil
}

func (r *stubRepo) Stats(ctx context.Context) (*SearchStats, error) {
	return &SearchStats{TotalRecords: 42}, nil
}

type stubSources struct {
	content map[uuid.UUID]string
	failOn  map[uuid.UUID]error
}

func (s *stubSources) AuthoritativeContent(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, contentType models.ContentType) (string, bool, error) {
	if err, ok := s.failOn[sourceID]; ok {
		return "", false, err
	}
	content, ok := s.content[sourceID]
	return content, ok, nil
}

func (s *stubSources) ListMissingEmbeddings(ctx context.Context, limit int) ([]*MissingSource, error) {
	return nil, nil
}

type stubAuthz struct {
	admin bool
}

func (a *stubAuthz) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	return a.admin && role == AdminRole, nil
}

func testService(repo *stubRepo, sources *stubSources, authz *stubAuthz) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, sources, authz, WithLogger(logger))
}

func malformedRecord(sourceID uuid.UUID, reason MalformedReason) *MalformedRecord {
	return &MalformedRecord{
		ID:          uuid.New(),
		SourceType:  models.SourceTypeReceipt,
		SourceID:    sourceID,
		ContentType: models.ContentTypeLineItem,
		Reason:      reason,
	}
}

func TestRepairContinuesPastIndividualFailures(t *testing.T) {
	okID := uuid.New()
	brokenID := uuid.New()
	missingID := uuid.New()

	repo := &stubRepo{
		malformed: []*MalformedRecord{
			malformedRecord(okID, ReasonEmptyContent),
			malformedRecord(brokenID, ReasonEmptyContent),
			malformedRecord(missingID, ReasonMerchantCopied),
		},
	}
	sources := &stubSources{
		content: map[uuid.UUID]string{okID: "Organic coffee beans 500g"},
		failOn:  map[uuid.UUID]error{brokenID: errors.New("connection reset")},
	}
	svc := testService(repo, sources, &stubAuthz{})

	summary, err := svc.RepairMalformedContent(context.Background())
	require.NoError(t, err)

	// 1件の失敗がバッチを止めない
	assert.Len(t, summary.Outcomes, 3)
	assert.Equal(t, 1, summary.Fixed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Skipped)

	byStatus := map[RepairStatus]int{}
	for _, o := range summary.Outcomes {
		byStatus[o.Status]++
	}
	assert.Equal(t, 1, byStatus[RepairFixed])
	assert.Equal(t, 1, byStatus[RepairError])
	assert.Equal(t, 1, byStatus[RepairSkippedNoData])
}

func TestRepairRecordsRewriteFailureAsError(t *testing.T) {
	sourceID := uuid.New()
	record := malformedRecord(sourceID, ReasonEmptyContent)

	repo := &stubRepo{
		malformed:  []*MalformedRecord{record},
		rewriteErr: map[uuid.UUID]error{record.ID: errors.New("deadlock detected")},
	}
	sources := &stubSources{content: map[uuid.UUID]string{sourceID: "Parking fee"}}
	svc := testService(repo, sources, &stubAuthz{})

	summary, err := svc.RepairMalformedContent(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, RepairError, summary.Outcomes[0].Status)
	assert.Contains(t, summary.Outcomes[0].Message, "rewrite failed")
}

func TestSearchStatsRequiresAdminRole(t *testing.T) {
	svc := testService(&stubRepo{}, &stubSources{}, &stubAuthz{admin: false})

	_, err := svc.SearchStats(context.Background(), uuid.New())
	require.Error(t, err)

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AdminRole, authErr.Role)
}

func TestSearchStatsAllowsAdmin(t *testing.T) {
	svc := testService(&stubRepo{}, &stubSources{}, &stubAuthz{admin: true})

	stats, err := svc.SearchStats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 42, stats.TotalRecords)
}

func TestAnalyzeContentHealth(t *testing.T) {
	svc := testService(&stubRepo{}, &stubSources{}, &stubAuthz{})

	rows, err := svc.AnalyzeContentHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 90.0, rows[0].CoveragePct, 1e-9)
}
