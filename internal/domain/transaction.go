package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is one normalized debit/credit line item belonging to a
// Statement. The sign convention is fixed end to end: debits negative,
// credits positive. No stage may flip it.
type Transaction struct {
	ID          uuid.UUID
	StatementID uuid.UUID

	Date        time.Time // parsed from "date" (YYYY-MM-DD)
	Description string    // from "description"
	Amount      float64   // from "amount", sign preserved verbatim
	Balance     *float64  // from "balance" or nil
	Category    string    // best-guess label from the classifier
}

// Debit reports whether the transaction is money out.
func (t Transaction) Debit() bool {
	return t.Amount < 0
}
