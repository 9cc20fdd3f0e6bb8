package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvoloshyn/statement-insights/internal/classifier"
	"github.com/dvoloshyn/statement-insights/internal/domain"
)

const dateLayout = "2006-01-02"

// MapRows converts raw extracted rows into transactions. A row missing
// its date, description, or amount is logged and skipped; the rest of
// the batch is unaffected. A damaged optional balance keeps the row but
// drops the balance.
func MapRows(statementID uuid.UUID, rows []classifier.RawRow, log zerolog.Logger) ([]domain.Transaction, int) {
	out := make([]domain.Transaction, 0, len(rows))
	skipped := 0

	for i, row := range rows {
		dateStr, err := row.String("date")
		if err != nil {
			log.Warn().Int("row", i).Err(err).Msg("skipping transaction row")
			skipped++
			continue
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			log.Warn().Int("row", i).Str("date", dateStr).Err(err).Msg("skipping transaction row")
			skipped++
			continue
		}

		description, err := row.String("description")
		if err != nil {
			log.Warn().Int("row", i).Err(err).Msg("skipping transaction row")
			skipped++
			continue
		}

		amount, err := row.Float("amount")
		if err != nil {
			log.Warn().Int("row", i).Err(err).Msg("skipping transaction row")
			skipped++
			continue
		}

		balance, err := row.OptionalFloat("balance")
		if err != nil {
			log.Warn().Int("row", i).Err(err).Msg("dropping unreadable balance")
			balance = nil
		}

		category := ""
		if c := row.OptionalString("category"); c != nil {
			category = *c
		}

		out = append(out, domain.Transaction{
			ID:          uuid.New(),
			StatementID: statementID,
			Date:        date,
			Description: description,
			Amount:      amount,
			Balance:     balance,
			Category:    category,
		})
	}

	return out, skipped
}
