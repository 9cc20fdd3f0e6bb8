// Package pipeline sequences the statement-processing stages and owns
// the statement state machine. One Run handles exactly one upload;
// uploads never share mutable state, so runs may execute concurrently.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvoloshyn/statement-insights/internal/classifier"
	"github.com/dvoloshyn/statement-insights/internal/docstore"
	"github.com/dvoloshyn/statement-insights/internal/domain"
	"github.com/dvoloshyn/statement-insights/internal/extract"
	"github.com/dvoloshyn/statement-insights/internal/storage"
)

// ScopedFile is a temporary document owned by one in-flight run.
type ScopedFile interface {
	Path() string
	Release() error
}

// DocumentStore acquires the uploaded binary into a scoped temporary
// resource.
type DocumentStore interface {
	Acquire(ownerID, filename string, src io.Reader) (ScopedFile, error)
}

// Extractor turns a document into ordered page texts.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]extract.PageText, error)
}

// StatementParser extracts structured transactions from page text.
type StatementParser interface {
	ExtractStatement(ctx context.Context, pageText string) (*classifier.StatementExtraction, error)
}

// RecurringDetector finds recurring-payment candidates in a
// transaction set.
type RecurringDetector interface {
	Detect(ctx context.Context, txs []domain.Transaction) (*domain.RecurringAnalysis, error)
}

// Submission is one upload handed to the orchestrator.
type Submission struct {
	OwnerID   string
	OwnerName string
	Filename  string
	ByteSize  int64
	Source    io.Reader
}

// Outcome is the result of one pipeline run. When the run fails after
// the statement row exists, StatementID still identifies it and
// FailureKind carries the recorded error kind.
type Outcome struct {
	StatementID         uuid.UUID
	State               domain.StatementState
	FailureKind         string
	SavedTransactions   int
	SkippedTransactions int
	Message             string
}

// Pipeline is the orchestrator. Construct it once with all stage
// dependencies and share it across runs.
type Pipeline struct {
	repo      storage.Repository
	docs      DocumentStore
	extractor Extractor
	parser    StatementParser
	detector  RecurringDetector
	maxBytes  int64
	log       zerolog.Logger
}

// New creates a Pipeline.
func New(repo storage.Repository, docs DocumentStore, extractor Extractor, parser StatementParser, detector RecurringDetector, maxBytes int64, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		repo:      repo,
		docs:      docs,
		extractor: extractor,
		parser:    parser,
		detector:  detector,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// Run processes one uploaded statement end to end. Stages execute
// strictly sequentially; any stage error transitions the statement to
// failed with the originating error kind, and the scoped document is
// released on every exit path. There is no re-entry from failed: a new
// upload restarts from received.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (*Outcome, error) {
	// 1. Validate the submission shape before allocating anything.
	if err := p.validate(sub); err != nil {
		return nil, err
	}

	if _, err := p.repo.EnsureUser(ctx, sub.OwnerID, sub.OwnerName); err != nil {
		return nil, err
	}

	// 2. Create the statement row in its initial state so the run has
	// a durable identity from the start.
	st := &domain.Statement{
		ID:         uuid.New(),
		OwnerID:    sub.OwnerID,
		Filename:   sub.Filename,
		ByteSize:   sub.ByteSize,
		UploadedAt: time.Now().UTC(),
		State:      domain.StateReceived,
	}
	if err := p.repo.CreateStatement(ctx, st); err != nil {
		return nil, err
	}

	log := p.log.With().
		Stringer("statement_id", st.ID).
		Str("owner_id", st.OwnerID).
		Str("filename", st.Filename).
		Logger()

	// 3. Acquire the document into a scoped temporary file.
	if err := p.advance(ctx, st, domain.StateDownloading); err != nil {
		return p.fail(ctx, st, err, log), err
	}
	doc, err := p.docs.Acquire(sub.OwnerID, sub.Filename, sub.Source)
	if err != nil {
		return p.fail(ctx, st, err, log), err
	}
	defer func() {
		if relErr := doc.Release(); relErr != nil {
			log.Error().Err(relErr).Msg("releasing scoped document")
		}
	}()

	// 4. Extract per-page text.
	if err := p.advance(ctx, st, domain.StateExtracting); err != nil {
		return p.fail(ctx, st, err, log), err
	}
	pages, err := p.extractor.Extract(ctx, doc.Path())
	if err != nil {
		return p.fail(ctx, st, err, log), err
	}
	documentText := extract.BuildDocumentText(pages)

	// 5. Parse the concatenated text into structured transactions.
	if err := p.advance(ctx, st, domain.StateParsing); err != nil {
		return p.fail(ctx, st, err, log), err
	}
	extraction, err := p.parser.ExtractStatement(ctx, documentText)
	if err != nil {
		return p.fail(ctx, st, err, log), err
	}
	if err := p.repo.SetStatementArtifacts(ctx, st.ID, documentText, extraction.RawJSON); err != nil {
		return p.fail(ctx, st, err, log), err
	}

	// 6. Persist the transaction rows, best effort per row.
	if err := p.advance(ctx, st, domain.StatePersisting); err != nil {
		return p.fail(ctx, st, err, log), err
	}
	saved, skipped, err := p.repo.SaveTransactions(ctx, st.ID, extraction.Transactions)
	if err != nil {
		return p.fail(ctx, st, err, log), err
	}

	// 7. Done.
	if err := p.advance(ctx, st, domain.StateCompleted); err != nil {
		return p.fail(ctx, st, err, log), err
	}

	log.Info().
		Int("pages", len(pages)).
		Int("saved", saved).
		Int("skipped", skipped).
		Msg("statement processed")

	return &Outcome{
		StatementID:         st.ID,
		State:               st.State,
		SavedTransactions:   saved,
		SkippedTransactions: skipped,
	}, nil
}

// AnalyzeRecurring runs the on-demand recurring-payment sub-flow. It
// is entered only from a completed statement, never mutates the
// statement's primary state, and may be invoked any number of times.
func (p *Pipeline) AnalyzeRecurring(ctx context.Context, statementID uuid.UUID, ownerID string) (*domain.RecurringAnalysis, error) {
	st, err := p.repo.GetStatement(ctx, statementID, ownerID)
	if err != nil {
		return nil, err
	}
	if st.State != domain.StateCompleted {
		return nil, domain.NewValidationError("notCompleted",
			fmt.Errorf("statement %s is %s, recurring analysis requires completed", st.ID, st.State))
	}

	txs, err := p.repo.ListTransactions(ctx, statementID, ownerID)
	if err != nil {
		return nil, err
	}

	return p.detector.Detect(ctx, txs)
}

// validate rejects malformed submissions before any resource is
// allocated for them.
func (p *Pipeline) validate(sub Submission) error {
	if strings.TrimSpace(sub.OwnerID) == "" {
		return domain.NewValidationError("missingOwner", fmt.Errorf("owner id is required"))
	}
	if strings.TrimSpace(sub.Filename) == "" {
		return domain.NewValidationError("missingFilename", fmt.Errorf("filename is required"))
	}
	if ext := strings.ToLower(filepath.Ext(sub.Filename)); ext != ".pdf" {
		return domain.NewValidationError("unsupportedType",
			fmt.Errorf("unsupported document type %q", ext))
	}
	if sub.ByteSize <= 0 {
		return domain.NewValidationError("emptyDocument", fmt.Errorf("document is empty"))
	}
	if p.maxBytes > 0 && sub.ByteSize > p.maxBytes {
		return domain.NewValidationError("tooLarge",
			fmt.Errorf("document is %d bytes, limit is %d", sub.ByteSize, p.maxBytes))
	}
	if sub.Source == nil {
		return domain.NewValidationError("missingContent", fmt.Errorf("document content is required"))
	}
	return nil
}

// advance moves the statement one step forward, recording the new
// state durably before the next stage runs.
func (p *Pipeline) advance(ctx context.Context, st *domain.Statement, next domain.StatementState) error {
	if !st.State.CanAdvanceTo(next) {
		return domain.NewPersistenceError(
			fmt.Errorf("illegal state transition %s -> %s for statement %s", st.State, next, st.ID))
	}
	if err := p.repo.UpdateStatementState(ctx, st.ID, next, ""); err != nil {
		return err
	}
	st.State = next
	return nil
}

// fail transitions the statement to its terminal failed state carrying
// the originating error kind. The failure write is best effort: the
// original stage error is what the caller sees either way.
func (p *Pipeline) fail(ctx context.Context, st *domain.Statement, cause error, log zerolog.Logger) *Outcome {
	kind, ok := domain.KindOf(cause)
	if !ok {
		kind = domain.KindPersistence
	}

	log.Error().Err(cause).Str("kind", string(kind)).Str("state", string(st.State)).Msg("pipeline run failed")

	if st.State.CanAdvanceTo(domain.StateFailed) {
		if err := p.repo.UpdateStatementState(ctx, st.ID, domain.StateFailed, string(kind)); err != nil {
			log.Error().Err(err).Msg("recording failed state")
		}
	}
	st.State = domain.StateFailed
	st.FailureKind = string(kind)

	return &Outcome{
		StatementID: st.ID,
		State:       domain.StateFailed,
		FailureKind: string(kind),
		Message:     domain.UserMessage(cause),
	}
}

// docStoreAdapter lifts the concrete docstore onto the DocumentStore
// seam without leaking a typed nil through the interface.
type docStoreAdapter struct {
	store *docstore.Store
}

// WrapStore adapts a docstore.Store for use as the pipeline's
// DocumentStore.
func WrapStore(s *docstore.Store) DocumentStore {
	return docStoreAdapter{store: s}
}

func (a docStoreAdapter) Acquire(ownerID, filename string, src io.Reader) (ScopedFile, error) {
	f, err := a.store.Acquire(ownerID, filename, src)
	if err != nil {
		return nil, err
	}
	return f, nil
}
