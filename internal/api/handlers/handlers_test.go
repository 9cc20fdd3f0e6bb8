package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvoloshyn/statement-insights/internal/api/middleware"
	"github.com/dvoloshyn/statement-insights/internal/domain"
	"github.com/dvoloshyn/statement-insights/internal/jobs"
	"github.com/dvoloshyn/statement-insights/internal/logger"
)

type fakePublisher struct {
	published []*jobs.ProcessStatementJob
	err       error
}

func (p *fakePublisher) PublishProcessStatement(ctx context.Context, job *jobs.ProcessStatementJob) error {
	if p.err != nil {
		return p.err
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	p.published = append(p.published, job)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func ownedRequest(r *http.Request, ownerID string) *http.Request {
	ctx := middleware.WithOwner(r.Context(), middleware.OwnerIdentity{ID: ownerID})
	ctx = logger.WithContext(ctx, logger.NewWithWriter(io.Discard))
	return r.WithContext(ctx)
}

func newSubmitHandler(t *testing.T, pub *fakePublisher) *StatementsHandler {
	t.Helper()
	return NewStatementsHandler(nil, nil, pub, t.TempDir(), 1<<20)
}

func TestSubmitAcceptsAndEnqueues(t *testing.T) {
	pub := &fakePublisher{}
	h := newSubmitHandler(t, pub)

	body, contentType := multipartUpload(t, "statement", "january.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/statements", body)
	req.Header.Set("Content-Type", contentType)
	req = ownedRequest(req, "owner-1")

	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.published, 1)
	job := pub.published[0]
	assert.Equal(t, "owner-1", job.OwnerID)
	assert.Equal(t, "january.pdf", job.Filename)
	assert.Equal(t, int64(len("%PDF-1.4")), job.ByteSize)

	// The upload was spooled for the worker.
	data, err := os.ReadFile(job.SpoolPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestSubmitRejectsMissingOwner(t *testing.T) {
	h := newSubmitHandler(t, &fakePublisher{})

	body, contentType := multipartUpload(t, "statement", "january.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/statements", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	pub := &fakePublisher{}
	h := newSubmitHandler(t, pub)

	body, contentType := multipartUpload(t, "statement", "statement.csv", []byte("a,b,c"))
	req := httptest.NewRequest(http.MethodPost, "/api/statements", body)
	req.Header.Set("Content-Type", contentType)
	req = ownedRequest(req, "owner-1")

	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.published)
}

func TestSubmitRequiresStatementField(t *testing.T) {
	h := newSubmitHandler(t, &fakePublisher{})

	body, contentType := multipartUpload(t, "wrongfield", "january.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/statements", body)
	req.Header.Set("Content-Type", contentType)
	req = ownedRequest(req, "owner-1")

	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOversizedBodyRejectedDuringRead(t *testing.T) {
	pub := &fakePublisher{}
	h := NewStatementsHandler(nil, nil, pub, t.TempDir(), 64)

	body, contentType := multipartUpload(t, "statement", "january.pdf", bytes.Repeat([]byte("x"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/api/statements", body)
	req.Header.Set("Content-Type", contentType)
	req = ownedRequest(req, "owner-1")

	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, pub.published)
}

type fakeAnalyzer struct {
	analysis *domain.RecurringAnalysis
	err      error
}

func (a *fakeAnalyzer) AnalyzeRecurring(ctx context.Context, statementID uuid.UUID, ownerID string) (*domain.RecurringAnalysis, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.analysis, nil
}

func TestRecurringDegradesOnParseFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: domain.NewParseError(domain.ReasonNoJSONFound, nil)}
	h := NewStatementsHandler(nil, analyzer, &fakePublisher{}, t.TempDir(), 1<<20)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/statements/"+id+"/recurring", nil)
	req = ownedRequest(req, "owner-1")

	rec := httptest.NewRecorder()
	h.Recurring(rec, req, id)

	// A parse failure in the sub-flow presents an empty result, not
	// an error; the statement itself stays untouched.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No recurring payments detected")
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestRecurringRejectsIncompleteStatement(t *testing.T) {
	analyzer := &fakeAnalyzer{err: domain.NewValidationError("notCompleted", nil)}
	h := NewStatementsHandler(nil, analyzer, &fakePublisher{}, t.TempDir(), 1<<20)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/statements/"+id+"/recurring", nil)
	req = ownedRequest(req, "owner-1")

	rec := httptest.NewRecorder()
	h.Recurring(rec, req, id)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOwnerMiddlewareRejectsAnonymous(t *testing.T) {
	called := false
	handler := middleware.Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/statements", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestOwnerMiddlewareAllowsHealth(t *testing.T) {
	called := false
	handler := middleware.Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
}
