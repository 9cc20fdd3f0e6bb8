// Package handlers is the inbound HTTP seam: uploads in, formatted
// text blocks and JSON out.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvoloshyn/statement-insights/internal/api/middleware"
	"github.com/dvoloshyn/statement-insights/internal/domain"
	"github.com/dvoloshyn/statement-insights/internal/format"
	"github.com/dvoloshyn/statement-insights/internal/jobs"
	"github.com/dvoloshyn/statement-insights/internal/logger"
	"github.com/dvoloshyn/statement-insights/internal/storage"
)

// RecurringAnalyzer runs the on-demand recurring-payment sub-flow for
// a completed statement.
type RecurringAnalyzer interface {
	AnalyzeRecurring(ctx context.Context, statementID uuid.UUID, ownerID string) (*domain.RecurringAnalysis, error)
}

// StatementsHandler handles statement-related endpoints.
type StatementsHandler struct {
	repo      storage.Repository
	analyzer  RecurringAnalyzer
	publisher jobs.Publisher
	spoolDir  string
	maxBytes  int64
}

// NewStatementsHandler creates a new statements handler. spoolDir is
// where uploads are staged until the queue hands them to the pipeline.
func NewStatementsHandler(repo storage.Repository, analyzer RecurringAnalyzer, publisher jobs.Publisher, spoolDir string, maxBytes int64) *StatementsHandler {
	return &StatementsHandler{
		repo:      repo,
		analyzer:  analyzer,
		publisher: publisher,
		spoolDir:  spoolDir,
		maxBytes:  maxBytes,
	}
}

// Submit handles POST /api/statements.
// The upload is validated, spooled to disk, and enqueued; processing
// happens asynchronously and the response carries the job id to poll.
func (h *StatementsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing owner identity")
		return
	}
	log := logger.FromContext(r.Context())

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Document exceeds the %d byte limit", h.maxBytes))
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	file, header, err := r.FormFile("statement")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "A 'statement' file field is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		middleware.WriteError(w, http.StatusBadRequest, "Only PDF statements are supported")
		return
	}
	if header.Size <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Uploaded document is empty")
		return
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Document exceeds the %d byte limit", h.maxBytes))
		return
	}

	spoolPath, written, err := h.spool(file)
	if err != nil {
		log.Error().Err(err).Msg("Failed to spool upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to accept upload")
		return
	}

	job := &jobs.ProcessStatementJob{
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
		Filename:  filename,
		ByteSize:  written,
		SpoolPath: spoolPath,
	}
	if err := h.publisher.PublishProcessStatement(r.Context(), job); err != nil {
		os.Remove(spoolPath)
		log.Error().Err(err).Msg("Failed to enqueue statement job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue statement for processing")
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Str("owner_id", owner.ID).
		Str("filename", filename).
		Int64("bytes", written).
		Msg("Statement enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"filename": filename,
		"status":   string(job.Status),
	})
}

// spool stages the upload on local disk for the queue hand-off.
func (h *StatementsHandler) spool(src io.Reader) (string, int64, error) {
	if err := os.MkdirAll(h.spoolDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating spool dir: %w", err)
	}
	f, err := os.CreateTemp(h.spoolDir, "upload-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("creating spool file: %w", err)
	}
	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("writing spool file: %w", err)
	}
	return f.Name(), written, nil
}

// List handles GET /api/statements.
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing owner identity")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	statements, err := h.repo.ListStatements(r.Context(), owner.ID, limit)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	type statementView struct {
		ID          string    `json:"id"`
		Filename    string    `json:"filename"`
		UploadedAt  time.Time `json:"uploaded_at"`
		State       string    `json:"state"`
		FailureKind string    `json:"failure_kind,omitempty"`
	}
	views := make([]statementView, 0, len(statements))
	for _, s := range statements {
		views = append(views, statementView{
			ID:          s.ID.String(),
			Filename:    s.Filename,
			UploadedAt:  s.UploadedAt,
			State:       string(s.State),
			FailureKind: s.FailureKind,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": views,
		"count":      len(views),
	})
}

// Transactions handles GET /api/statements/{id}/transactions.
// The response carries the formatted text block.
func (h *StatementsHandler) Transactions(w http.ResponseWriter, r *http.Request, statementID string) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing owner identity")
		return
	}

	id, err := uuid.Parse(statementID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid statement id")
		return
	}

	txs, err := h.repo.ListTransactions(r.Context(), id, owner.ID)
	if err != nil {
		h.writeRepoError(w, r, err, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id": id.String(),
		"count":        len(txs),
		"text":         format.Transactions(txs, format.DefaultTransactionLimit),
	})
}

// Recurring handles POST /api/statements/{id}/recurring.
// A parse failure in this sub-flow degrades to an empty analysis
// instead of failing the interaction.
func (h *StatementsHandler) Recurring(w http.ResponseWriter, r *http.Request, statementID string) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing owner identity")
		return
	}

	id, err := uuid.Parse(statementID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid statement id")
		return
	}

	analysis, err := h.analyzer.AnalyzeRecurring(r.Context(), id, owner.ID)
	if err != nil {
		if domain.IsParseError(err) {
			log := logger.FromContext(r.Context())
			log.Warn().Err(err).Stringer("statement_id", id).Msg("Recurring analysis degraded")
			analysis = &domain.RecurringAnalysis{RecurringPayments: []domain.RecurringPayment{}}
		} else {
			h.writeRepoError(w, r, err, "Failed to analyze recurring payments")
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id": id.String(),
		"count":        len(analysis.RecurringPayments),
		"text":         format.Summary(analysis),
	})
}

// writeRepoError maps storage and taxonomy errors onto HTTP statuses.
func (h *StatementsHandler) writeRepoError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, storage.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Statement not found")
		return
	}
	if kind, ok := domain.KindOf(err); ok && kind == domain.KindValidation {
		middleware.WriteError(w, http.StatusConflict, domain.UserMessage(err))
		return
	}
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Msg(fallback)
	middleware.WriteError(w, http.StatusInternalServerError, fallback)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}. Jobs are visible only to the
// owner who submitted them.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing owner identity")
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil || job.OwnerID != owner.ID {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs, scoped to the calling owner.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Missing owner identity")
		return
	}

	query := r.URL.Query()
	filter := jobs.JobFilter{
		OwnerID: owner.ID,
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
