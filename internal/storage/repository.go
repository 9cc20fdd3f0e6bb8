package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/dvoloshyn/statement-insights/internal/classifier"
	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// ErrNotFound is returned when a lookup matches nothing the caller is
// allowed to see. Cross-owner lookups are indistinguishable from
// missing rows on purpose.
var ErrNotFound = errors.New("storage: not found")

// Repository is the persistence seam used by the orchestrator and the
// transport handlers.
type Repository interface {
	EnsureUser(ctx context.Context, ownerID, displayName string) (*domain.User, error)

	CreateStatement(ctx context.Context, st *domain.Statement) error
	UpdateStatementState(ctx context.Context, id uuid.UUID, state domain.StatementState, failureKind string) error
	SetStatementArtifacts(ctx context.Context, id uuid.UUID, rawText, parsedPayload string) error
	GetStatement(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Statement, error)
	ListStatements(ctx context.Context, ownerID string, limit int) ([]domain.Statement, error)

	SaveTransactions(ctx context.Context, statementID uuid.UUID, rows []classifier.RawRow) (saved, skipped int, err error)
	ListTransactions(ctx context.Context, statementID uuid.UUID, ownerID string) ([]domain.Transaction, error)
}

type gormRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewRepository creates the GORM-backed repository.
func NewRepository(db *gorm.DB, log zerolog.Logger) Repository {
	return &gormRepository{db: db, log: log}
}

// EnsureUser fetches the user for ownerID, creating it on first
// interaction. Users are never deleted.
func (r *gormRepository) EnsureUser(ctx context.Context, ownerID, displayName string) (*domain.User, error) {
	var row User
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = User{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			DisplayName: displayName,
			Active:      true,
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, domain.NewPersistenceError(fmt.Errorf("creating user %q: %w", ownerID, err))
		}
	} else if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("looking up user %q: %w", ownerID, err))
	}

	return &domain.User{
		OwnerID:     row.OwnerID,
		DisplayName: row.DisplayName,
		Active:      row.Active,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// CreateStatement writes the statement row first so the rest of the
// run has a stable identity to hang transactions off.
func (r *gormRepository) CreateStatement(ctx context.Context, st *domain.Statement) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	row := Statement{
		ID:          st.ID,
		OwnerID:     st.OwnerID,
		Filename:    st.Filename,
		ByteSize:    st.ByteSize,
		UploadedAt:  st.UploadedAt,
		State:       string(st.State),
		FailureKind: st.FailureKind,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.NewPersistenceError(fmt.Errorf("creating statement: %w", err))
	}
	return nil
}

// UpdateStatementState records a state transition. The orchestrator
// owns transition legality; this just writes.
func (r *gormRepository) UpdateStatementState(ctx context.Context, id uuid.UUID, state domain.StatementState, failureKind string) error {
	updates := map[string]interface{}{
		"state":        string(state),
		"failure_kind": failureKind,
	}
	err := r.db.WithContext(ctx).Model(&Statement{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return domain.NewPersistenceError(fmt.Errorf("updating statement %s state: %w", id, err))
	}
	return nil
}

// SetStatementArtifacts stores the raw page text and the located
// classifier JSON on the statement row.
func (r *gormRepository) SetStatementArtifacts(ctx context.Context, id uuid.UUID, rawText, parsedPayload string) error {
	updates := map[string]interface{}{
		"raw_text":       rawText,
		"parsed_payload": parsedPayload,
	}
	err := r.db.WithContext(ctx).Model(&Statement{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return domain.NewPersistenceError(fmt.Errorf("updating statement %s artifacts: %w", id, err))
	}
	return nil
}

// GetStatement reads a statement by id, verifying ownership.
func (r *gormRepository) GetStatement(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Statement, error) {
	var row Statement
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("reading statement %s: %w", id, err))
	}
	return row.toDomain(), nil
}

// ListStatements returns the owner's statements, newest first.
func (r *gormRepository) ListStatements(ctx context.Context, ownerID string, limit int) ([]domain.Statement, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Statement
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("uploaded_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("listing statements for %q: %w", ownerID, err))
	}
	out := make([]domain.Statement, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}

// SaveTransactions persists the extracted rows best-effort: malformed
// rows are logged and skipped, never fatal, because partial data is
// still useful to the user. A failure writing the surviving batch is
// statement-level and therefore fatal.
func (r *gormRepository) SaveTransactions(ctx context.Context, statementID uuid.UUID, rows []classifier.RawRow) (int, int, error) {
	txs, skipped := MapRows(statementID, rows, r.log)
	if len(txs) == 0 {
		return 0, skipped, nil
	}

	models := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		models = append(models, Transaction{
			ID:          t.ID,
			StatementID: t.StatementID,
			Date:        t.Date,
			Description: t.Description,
			Amount:      t.Amount,
			Balance:     t.Balance,
			Category:    t.Category,
		})
	}

	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return 0, skipped, domain.NewPersistenceError(fmt.Errorf("inserting %d transactions: %w", len(models), err))
	}
	return len(models), skipped, nil
}

// ListTransactions returns a statement's transactions after verifying
// the statement belongs to ownerID.
func (r *gormRepository) ListTransactions(ctx context.Context, statementID uuid.UUID, ownerID string) ([]domain.Transaction, error) {
	if _, err := r.GetStatement(ctx, statementID, ownerID); err != nil {
		return nil, err
	}

	var rows []Transaction
	err := r.db.WithContext(ctx).
		Where("statement_id = ?", statementID).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Errorf("listing transactions for %s: %w", statementID, err))
	}
	out := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
