package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvoloshyn/statement-insights/internal/classifier"
	"github.com/dvoloshyn/statement-insights/internal/domain"
	"github.com/dvoloshyn/statement-insights/internal/extract"
	"github.com/dvoloshyn/statement-insights/internal/logger"
	"github.com/dvoloshyn/statement-insights/internal/pipeline"
	"github.com/dvoloshyn/statement-insights/internal/storage"
)

// fakeRepo is an in-memory stand-in for the GORM repository.
type fakeRepo struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	statements  map[uuid.UUID]*domain.Statement
	transitions []domain.StatementState
	txs         map[uuid.UUID][]domain.Transaction
	saveCalls   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:      make(map[string]*domain.User),
		statements: make(map[uuid.UUID]*domain.Statement),
		txs:        make(map[uuid.UUID][]domain.Transaction),
	}
}

func (r *fakeRepo) EnsureUser(ctx context.Context, ownerID, displayName string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[ownerID]
	if !ok {
		u = &domain.User{OwnerID: ownerID, DisplayName: displayName, Active: true, CreatedAt: time.Now()}
		r.users[ownerID] = u
	}
	return u, nil
}

func (r *fakeRepo) CreateStatement(ctx context.Context, st *domain.Statement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *st
	r.statements[st.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateStatementState(ctx context.Context, id uuid.UUID, state domain.StatementState, failureKind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.statements[id]
	if !ok {
		return storage.ErrNotFound
	}
	st.State = state
	st.FailureKind = failureKind
	r.transitions = append(r.transitions, state)
	return nil
}

func (r *fakeRepo) SetStatementArtifacts(ctx context.Context, id uuid.UUID, rawText, parsedPayload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.statements[id]
	if !ok {
		return storage.ErrNotFound
	}
	st.RawText = rawText
	st.ParsedPayload = parsedPayload
	return nil
}

func (r *fakeRepo) GetStatement(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Statement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.statements[id]
	if !ok || st.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *fakeRepo) ListStatements(ctx context.Context, ownerID string, limit int) ([]domain.Statement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Statement
	for _, st := range r.statements {
		if st.OwnerID == ownerID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveTransactions(ctx context.Context, statementID uuid.UUID, rows []classifier.RawRow) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	mapped, skipped := storage.MapRows(statementID, rows, logger.NewWithWriter(io.Discard))
	r.txs[statementID] = append(r.txs[statementID], mapped...)
	return len(mapped), skipped, nil
}

func (r *fakeRepo) ListTransactions(ctx context.Context, statementID uuid.UUID, ownerID string) ([]domain.Transaction, error) {
	if _, err := r.GetStatement(ctx, statementID, ownerID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Transaction(nil), r.txs[statementID]...), nil
}

// fakeScoped records releases.
type fakeScoped struct {
	path     string
	releases int
}

func (f *fakeScoped) Path() string   { return f.path }
func (f *fakeScoped) Release() error { f.releases++; return nil }

// fakeDocs hands out fakeScoped files.
type fakeDocs struct {
	err  error
	last *fakeScoped
}

func (d *fakeDocs) Acquire(ownerID, filename string, src io.Reader) (pipeline.ScopedFile, error) {
	if d.err != nil {
		return nil, d.err
	}
	io.Copy(io.Discard, src)
	d.last = &fakeScoped{path: "/tmp/" + ownerID + "-" + filename}
	return d.last, nil
}

// fakeExtractor returns canned pages.
type fakeExtractor struct {
	pages []extract.PageText
	err   error
}

func (e *fakeExtractor) Extract(ctx context.Context, path string) ([]extract.PageText, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.pages, nil
}

// fakeParser returns a canned extraction and records its input.
type fakeParser struct {
	extraction *classifier.StatementExtraction
	err        error
	sawText    string
}

func (p *fakeParser) ExtractStatement(ctx context.Context, pageText string) (*classifier.StatementExtraction, error) {
	p.sawText = pageText
	if p.err != nil {
		return nil, p.err
	}
	return p.extraction, nil
}

// fakeDetector returns a canned analysis.
type fakeDetector struct {
	analysis *domain.RecurringAnalysis
	err      error
	sawTxs   []domain.Transaction
}

func (d *fakeDetector) Detect(ctx context.Context, txs []domain.Transaction) (*domain.RecurringAnalysis, error) {
	d.sawTxs = txs
	if d.err != nil {
		return nil, d.err
	}
	return d.analysis, nil
}

func row(date, description string, amount float64, category string) classifier.RawRow {
	return classifier.RawRow{
		"date":        date,
		"description": description,
		"amount":      amount,
		"category":    category,
	}
}

func validSubmission() pipeline.Submission {
	return pipeline.Submission{
		OwnerID:   "owner-1",
		OwnerName: "Owner One",
		Filename:  "january.pdf",
		ByteSize:  1024,
		Source:    strings.NewReader("%PDF-1.4 fake"),
	}
}

func newTestPipeline(repo *fakeRepo, docs *fakeDocs, ex *fakeExtractor, parser *fakeParser, det *fakeDetector) *pipeline.Pipeline {
	return pipeline.New(repo, docs, ex, parser, det, 50<<20, logger.NewWithWriter(io.Discard))
}

func TestRunCompletesTwoPageStatement(t *testing.T) {
	repo := newFakeRepo()
	docs := &fakeDocs{}
	ex := &fakeExtractor{pages: []extract.PageText{
		{Number: 1, Text: "Itemized Account Activity\n01/05 GROCERY MART -45.67"},
		{Number: 2, Text: "01/03 STREAMFLIX -15.99\n02/03 STREAMFLIX -15.99\nTotal interest charged this period"},
	}}
	parser := &fakeParser{extraction: &classifier.StatementExtraction{
		Transactions: []classifier.RawRow{
			row("2026-01-05", "GROCERY MART", -45.67, "groceries"),
			row("2026-01-03", "STREAMFLIX", -15.99, "subscription"),
			row("2026-02-03", "STREAMFLIX", -15.99, "subscription"),
		},
		RawJSON: `{"transactions": []}`,
	}}
	det := &fakeDetector{}

	p := newTestPipeline(repo, docs, ex, parser, det)
	outcome, err := p.Run(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, outcome.State)
	assert.Equal(t, 3, outcome.SavedTransactions)
	assert.Zero(t, outcome.SkippedTransactions)

	// Stages advanced in order, each exactly once.
	assert.Equal(t, []domain.StatementState{
		domain.StateDownloading,
		domain.StateExtracting,
		domain.StateParsing,
		domain.StatePersisting,
		domain.StateCompleted,
	}, repo.transitions)

	// The scoped document was released exactly once.
	require.NotNil(t, docs.last)
	assert.Equal(t, 1, docs.last.releases)

	// The parser saw both page markers in order.
	assert.Contains(t, parser.sawText, "=== PAGE 1 ===")
	assert.Contains(t, parser.sawText, "=== PAGE 2 ===")
	assert.Less(t, strings.Index(parser.sawText, "=== PAGE 1 ==="), strings.Index(parser.sawText, "=== PAGE 2 ==="))

	// Artifacts were recorded on the statement row.
	st, err := repo.GetStatement(context.Background(), outcome.StatementID, "owner-1")
	require.NoError(t, err)
	assert.Contains(t, st.RawText, "=== PAGE 1 ===")
	assert.Equal(t, `{"transactions": []}`, st.ParsedPayload)

	// Signs survived persistence verbatim.
	txs, err := repo.ListTransactions(context.Background(), outcome.StatementID, "owner-1")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		assert.Negative(t, tx.Amount)
	}
}

func TestRunParseFailureWritesNoTransactions(t *testing.T) {
	repo := newFakeRepo()
	docs := &fakeDocs{}
	ex := &fakeExtractor{pages: []extract.PageText{{Number: 1, Text: "text"}}}
	parser := &fakeParser{err: domain.NewParseError(domain.ReasonNoJSONFound, fmt.Errorf("prose only"))}

	p := newTestPipeline(repo, docs, ex, parser, &fakeDetector{})
	outcome, err := p.Run(context.Background(), validSubmission())
	require.Error(t, err)
	assert.True(t, domain.IsParseError(err))

	require.NotNil(t, outcome)
	assert.Equal(t, domain.StateFailed, outcome.State)
	assert.Equal(t, string(domain.KindParse), outcome.FailureKind)
	assert.NotEmpty(t, outcome.Message)

	// No transaction rows were ever written.
	assert.Zero(t, repo.saveCalls)

	// The statement row records the terminal failure.
	st, getErr := repo.GetStatement(context.Background(), outcome.StatementID, "owner-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StateFailed, st.State)
	assert.Equal(t, "parse", st.FailureKind)

	// Cleanup ran regardless.
	require.NotNil(t, docs.last)
	assert.Equal(t, 1, docs.last.releases)
}

func TestRunExtractionFailure(t *testing.T) {
	repo := newFakeRepo()
	docs := &fakeDocs{}
	ex := &fakeExtractor{err: domain.NewExtractionError(domain.ReasonEncrypted, fmt.Errorf("password protected"))}

	p := newTestPipeline(repo, docs, ex, &fakeParser{}, &fakeDetector{})
	outcome, err := p.Run(context.Background(), validSubmission())
	require.Error(t, err)

	require.NotNil(t, outcome)
	assert.Equal(t, string(domain.KindExtraction), outcome.FailureKind)
	assert.Equal(t, 1, docs.last.releases)
}

func TestRunAcquireFailure(t *testing.T) {
	repo := newFakeRepo()
	docs := &fakeDocs{err: domain.NewStorageError(fmt.Errorf("disk full"))}

	p := newTestPipeline(repo, docs, &fakeExtractor{}, &fakeParser{}, &fakeDetector{})
	outcome, err := p.Run(context.Background(), validSubmission())
	require.Error(t, err)

	require.NotNil(t, outcome)
	assert.Equal(t, domain.StateFailed, outcome.State)
	assert.Equal(t, string(domain.KindStorage), outcome.FailureKind)
}

func TestRunRejectsInvalidSubmissions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pipeline.Submission)
	}{
		{"missing owner", func(s *pipeline.Submission) { s.OwnerID = " " }},
		{"missing filename", func(s *pipeline.Submission) { s.Filename = "" }},
		{"wrong extension", func(s *pipeline.Submission) { s.Filename = "statement.csv" }},
		{"empty document", func(s *pipeline.Submission) { s.ByteSize = 0 }},
		{"oversized document", func(s *pipeline.Submission) { s.ByteSize = 51 << 20 }},
		{"missing content", func(s *pipeline.Submission) { s.Source = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			p := newTestPipeline(repo, &fakeDocs{}, &fakeExtractor{}, &fakeParser{}, &fakeDetector{})

			sub := validSubmission()
			tt.mutate(&sub)

			_, err := p.Run(context.Background(), sub)
			require.Error(t, err)
			kind, ok := domain.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, domain.KindValidation, kind)

			// Nothing was allocated for the rejected submission.
			assert.Empty(t, repo.statements)
		})
	}
}

func TestRunSkipsMalformedRows(t *testing.T) {
	rows := make([]classifier.RawRow, 0, 10)
	for i := 0; i < 9; i++ {
		rows = append(rows, row(fmt.Sprintf("2026-01-%02d", i+1), "MERCHANT", -1.00, ""))
	}
	rows = append(rows, row("not-a-date", "BROKEN", -9.99, ""))

	repo := newFakeRepo()
	parser := &fakeParser{extraction: &classifier.StatementExtraction{Transactions: rows, RawJSON: "{}"}}
	ex := &fakeExtractor{pages: []extract.PageText{{Number: 1, Text: "text"}}}

	p := newTestPipeline(repo, &fakeDocs{}, ex, parser, &fakeDetector{})
	outcome, err := p.Run(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, outcome.State)
	assert.Equal(t, 9, outcome.SavedTransactions)
	assert.Equal(t, 1, outcome.SkippedTransactions)
}

func TestAnalyzeRecurringFromCompletedStatement(t *testing.T) {
	repo := newFakeRepo()
	stID := uuid.New()
	repo.statements[stID] = &domain.Statement{ID: stID, OwnerID: "owner-1", State: domain.StateCompleted}
	repo.txs[stID] = []domain.Transaction{
		{StatementID: stID, Description: "STREAMFLIX", Amount: -15.99, Date: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
		{StatementID: stID, Description: "STREAMFLIX", Amount: -15.99, Date: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
	}

	det := &fakeDetector{analysis: &domain.RecurringAnalysis{
		RecurringPayments: []domain.RecurringPayment{
			{MerchantName: "STREAMFLIX", Frequency: "monthly", Occurrences: 2},
		},
	}}

	p := newTestPipeline(repo, &fakeDocs{}, &fakeExtractor{}, &fakeParser{}, det)
	analysis, err := p.AnalyzeRecurring(context.Background(), stID, "owner-1")
	require.NoError(t, err)

	require.Len(t, analysis.RecurringPayments, 1)
	assert.Equal(t, "STREAMFLIX", analysis.RecurringPayments[0].MerchantName)
	assert.Equal(t, 2, analysis.RecurringPayments[0].Occurrences)
	assert.Equal(t, "monthly", analysis.RecurringPayments[0].Frequency)
	assert.Len(t, det.sawTxs, 2)

	// The sub-flow never touches the primary state.
	st, err := repo.GetStatement(context.Background(), stID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
}

func TestAnalyzeRecurringRequiresCompleted(t *testing.T) {
	repo := newFakeRepo()
	stID := uuid.New()
	repo.statements[stID] = &domain.Statement{ID: stID, OwnerID: "owner-1", State: domain.StateFailed, FailureKind: "parse"}

	p := newTestPipeline(repo, &fakeDocs{}, &fakeExtractor{}, &fakeParser{}, &fakeDetector{})
	_, err := p.AnalyzeRecurring(context.Background(), stID, "owner-1")
	require.Error(t, err)

	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindValidation, kind)
}

func TestAnalyzeRecurringOwnerScoped(t *testing.T) {
	repo := newFakeRepo()
	stID := uuid.New()
	repo.statements[stID] = &domain.Statement{ID: stID, OwnerID: "owner-1", State: domain.StateCompleted}

	p := newTestPipeline(repo, &fakeDocs{}, &fakeExtractor{}, &fakeParser{}, &fakeDetector{})
	_, err := p.AnalyzeRecurring(context.Background(), stID, "someone-else")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
