package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/internal/core/embedding"
	"github.com/jinford/receipt-search/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string // "upsert", "delete", "status"
	data string
}

type stubQueue struct {
	events     *[]event
	lastStatus models.QueueStatus
	lastError  *string
}

func (q *stubQueue) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*models.QueueTask, error) {
	return nil, nil
}

func (q *stubQueue) UpdateStatus(ctx context.Context, id uuid.UUID, status models.QueueStatus, errorMessage *string) (*models.QueueTask, error) {
	*q.events = append(*q.events, event{kind: "status", data: string(status)})
	q.lastStatus = status
	q.lastError = errorMessage
	return &models.QueueTask{ID: id, Status: status, MaxRetries: models.DefaultMaxRetries}, nil
}

func (q *stubQueue) ReapExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type stubWriter struct {
	events    *[]event
	upsertErr error
	metrics   []*models.EmbeddingMetric
}

func (w *stubWriter) Upsert(ctx context.Context, params embedding.UpsertParams) (*models.EmbeddingRecord, error) {
	if w.upsertErr != nil {
		return nil, w.upsertErr
	}
	*w.events = append(*w.events, event{kind: "upsert", data: string(params.ContentType)})
	return &models.EmbeddingRecord{ID: uuid.New()}, nil
}

func (w *stubWriter) DeleteBySource(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) (int64, error) {
	*w.events = append(*w.events, event{kind: "delete"})
	return 1, nil
}

func (w *stubWriter) RecordMetric(ctx context.Context, metric *models.EmbeddingMetric) {
	w.metrics = append(w.metrics, metric)
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, models.EmbeddingDimension), nil
}

type stubProvider struct {
	pieces []ContentPiece
	err    error
}

func (p *stubProvider) ContentPieces(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) ([]ContentPiece, error) {
	return p.pieces, p.err
}

type fixedTokens struct{}

func (fixedTokens) Count(text string) int { return 7 }

func newTestWorker(q *stubQueue, w *stubWriter, e *stubEmbedder, p *stubProvider) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(q, w, e, p, Config{WorkerID: "test-worker"}, WithLogger(logger), WithTokenCounter(fixedTokens{}))
}

func insertTask() *models.QueueTask {
	return &models.QueueTask{
		ID:         uuid.New(),
		SourceType: models.SourceTypeReceipt,
		SourceID:   uuid.New(),
		Operation:  models.OperationInsert,
		Status:     models.StatusProcessing,
		MaxRetries: models.DefaultMaxRetries,
	}
}

func TestProcessTaskCompletesAfterUpsert(t *testing.T) {
	var events []event
	q := &stubQueue{events: &events}
	w := &stubWriter{events: &events}
	p := &stubProvider{pieces: []ContentPiece{
		{ContentType: models.ContentTypeMerchant, Text: "Acme Store"},
		{ContentType: models.ContentTypeFullText, Text: "Acme Store receipt total 12.30"},
	}}

	worker := newTestWorker(q, w, &stubEmbedder{}, p)
	worker.ProcessTask(context.Background(), insertTask())

	// 完了マークは全upsertの後に来る
	require.Len(t, events, 3)
	assert.Equal(t, "upsert", events[0].kind)
	assert.Equal(t, "upsert", events[1].kind)
	assert.Equal(t, "status", events[2].kind)
	assert.Equal(t, models.StatusCompleted, q.lastStatus)

	// メトリクスは1試行1件、トークン数はピース合計
	require.Len(t, w.metrics, 1)
	assert.True(t, w.metrics[0].Success)
	assert.Equal(t, 14, w.metrics[0].Tokens)
}

func TestProcessTaskMarksFailedOnEmbedError(t *testing.T) {
	var events []event
	q := &stubQueue{events: &events}
	w := &stubWriter{events: &events}
	p := &stubProvider{pieces: []ContentPiece{{ContentType: models.ContentTypeMerchant, Text: "Acme"}}}

	worker := newTestWorker(q, w, &stubEmbedder{err: errors.New("rate limited")}, p)
	worker.ProcessTask(context.Background(), insertTask())

	assert.Equal(t, models.StatusFailed, q.lastStatus)
	require.NotNil(t, q.lastError)
	assert.Contains(t, *q.lastError, "rate limited")

	require.Len(t, w.metrics, 1)
	assert.False(t, w.metrics[0].Success)
	require.NotNil(t, w.metrics[0].ErrorClass)
	assert.Equal(t, "embed_error", *w.metrics[0].ErrorClass)
}

func TestProcessTaskMarksFailedOnSourceError(t *testing.T) {
	var events []event
	q := &stubQueue{events: &events}
	w := &stubWriter{events: &events}
	p := &stubProvider{err: errors.New("source row gone")}

	worker := newTestWorker(q, w, &stubEmbedder{}, p)
	worker.ProcessTask(context.Background(), insertTask())

	assert.Equal(t, models.StatusFailed, q.lastStatus)
	require.Len(t, w.metrics, 1)
	require.NotNil(t, w.metrics[0].ErrorClass)
	assert.Equal(t, "source_error", *w.metrics[0].ErrorClass)
}

func TestProcessTaskDeleteOperation(t *testing.T) {
	var events []event
	q := &stubQueue{events: &events}
	w := &stubWriter{events: &events}

	task := insertTask()
	task.Operation = models.OperationDelete

	worker := newTestWorker(q, w, &stubEmbedder{}, &stubProvider{})
	worker.ProcessTask(context.Background(), task)

	require.Len(t, events, 2)
	assert.Equal(t, "delete", events[0].kind)
	assert.Equal(t, "status", events[1].kind)
	assert.Equal(t, models.StatusCompleted, q.lastStatus)
}

func TestProcessTaskEmptyContentCompletes(t *testing.T) {
	var events []event
	q := &stubQueue{events: &events}
	w := &stubWriter{events: &events}

	worker := newTestWorker(q, w, &stubEmbedder{}, &stubProvider{pieces: nil})
	worker.ProcessTask(context.Background(), insertTask())

	assert.Equal(t, models.StatusCompleted, q.lastStatus)
}
