package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// User row. Identity is the external account id from the transport.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID     string    `gorm:"uniqueIndex;not null;size:64"`
	DisplayName string    `gorm:"size:255"`
	Active      bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time
}

// Statement row. One per upload; re-uploads mint a fresh row.
type Statement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID     string    `gorm:"index;not null;size:64"`
	Filename    string    `gorm:"not null;size:512"`
	ByteSize    int64
	UploadedAt  time.Time `gorm:"not null"`
	State       string    `gorm:"not null;size:32"`
	FailureKind string    `gorm:"size:32"`

	RawText       string `gorm:"type:text"`
	ParsedPayload string `gorm:"type:text"`

	Transactions []Transaction `gorm:"foreignKey:StatementID"`
}

// Transaction row. Bulk-created when a statement completes extraction,
// immutable thereafter.
type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	StatementID uuid.UUID `gorm:"type:uuid;index;not null"`
	Date        time.Time `gorm:"not null"`
	Description string    `gorm:"not null"`
	Amount      float64   `gorm:"not null"`
	Balance     *float64
	Category    string `gorm:"size:64"`
	CreatedAt   time.Time
}

func (s *Statement) toDomain() *domain.Statement {
	return &domain.Statement{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		Filename:      s.Filename,
		ByteSize:      s.ByteSize,
		UploadedAt:    s.UploadedAt,
		State:         domain.StatementState(s.State),
		FailureKind:   s.FailureKind,
		RawText:       s.RawText,
		ParsedPayload: s.ParsedPayload,
	}
}

func (t *Transaction) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          t.ID,
		StatementID: t.StatementID,
		Date:        t.Date,
		Description: t.Description,
		Amount:      t.Amount,
		Balance:     t.Balance,
		Category:    t.Category,
	}
}
