package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// AccountInfo is the statement-level metadata reported by the service.
// All fields are best effort and may be empty.
type AccountInfo struct {
	AccountNumber   string
	BankName        string
	StatementPeriod string
}

// RawRow is one transaction object exactly as the service returned it.
// Rows stay loosely typed until the persistence mapper converts them,
// so one malformed row cannot poison the batch.
type RawRow map[string]interface{}

// StatementExtraction is the validated result of the transaction
// extraction stage.
type StatementExtraction struct {
	Account      AccountInfo
	Transactions []RawRow
	RawJSON      string // the located JSON object, kept for audit
}

// Classifier drives the classification service with the fixed prompt
// contracts and parses its responses defensively.
type Classifier struct {
	model Model
	log   zerolog.Logger
}

// New creates a Classifier on top of any Model implementation.
func New(model Model, log zerolog.Logger) *Classifier {
	return &Classifier{model: model, log: log}
}

// TranscribePage asks the service to read one page of the document
// verbatim. Used when a page has no usable embedded text layer.
func (c *Classifier) TranscribePage(ctx context.Context, document []byte, pageNumber int) (string, error) {
	text, err := c.model.Generate(ctx, Request{
		Prompt:   transcriptionPrompt(pageNumber),
		Document: document,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe page %d: %w", pageNumber, err)
	}
	return text, nil
}

// ExtractStatement sends the concatenated page text to the service and
// parses the schema-constrained JSON result. Failures are terminal for
// the statement: the usual cause is non-transient input ambiguity, so
// there is no retry.
func (c *Classifier) ExtractStatement(ctx context.Context, pageText string) (*StatementExtraction, error) {
	raw, err := c.model.Generate(ctx, Request{
		Prompt: statementPrompt + "\nParse this bank statement and extract all transactions:\n\n" + pageText,
	})
	if err != nil {
		return nil, domain.NewParseError(domain.ReasonServiceUnavailable, err)
	}

	jsonStr, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, domain.NewParseError(domain.ReasonMalformedJSON, err)
	}

	txAny, ok := payload["transactions"]
	if !ok {
		return nil, domain.NewParseError(domain.ReasonMissingRequiredField,
			fmt.Errorf("missing 'transactions' array"))
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, domain.NewParseError(domain.ReasonMissingRequiredField,
			fmt.Errorf("'transactions' is %T, want array", txAny))
	}

	rows := make([]RawRow, 0, len(txSlice))
	for i, item := range txSlice {
		obj, ok := item.(map[string]interface{})
		if !ok {
			// A non-object element is skippable row damage, not a
			// statement-level failure.
			c.log.Warn().Int("index", i).Msgf("transaction element is %T, skipping", item)
			continue
		}
		rows = append(rows, RawRow(obj))
	}

	extraction := &StatementExtraction{
		Transactions: rows,
		RawJSON:      jsonStr,
	}

	if accAny, ok := payload["account_info"].(map[string]interface{}); ok {
		extraction.Account = accountInfoFrom(accAny)
	}

	return extraction, nil
}

// AnalyzeRecurring submits the normalized transaction set and parses
// merchant-grouped recurring-payment candidates plus their summary.
// Failures carry the same parse taxonomy as ExtractStatement; callers
// running the on-demand sub-flow may degrade instead of failing.
func (c *Classifier) AnalyzeRecurring(ctx context.Context, txs []domain.Transaction) (*domain.RecurringAnalysis, error) {
	serialized, err := serializeTransactions(txs)
	if err != nil {
		return nil, fmt.Errorf("analyze recurring: serialize transactions: %w", err)
	}

	raw, err := c.model.Generate(ctx, Request{
		Prompt: recurringPrompt + "\nAnalyze these transactions for recurring patterns:\n\n" + serialized,
	})
	if err != nil {
		return nil, domain.NewParseError(domain.ReasonServiceUnavailable, err)
	}

	jsonStr, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &probe); err != nil {
		return nil, domain.NewParseError(domain.ReasonMalformedJSON, err)
	}
	if _, ok := probe["recurring_payments"]; !ok {
		return nil, domain.NewParseError(domain.ReasonMissingRequiredField,
			fmt.Errorf("missing 'recurring_payments' array"))
	}

	var analysis domain.RecurringAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		return nil, domain.NewParseError(domain.ReasonMalformedJSON, err)
	}

	return &analysis, nil
}

// serializeTransactions renders the transaction set as the JSON the
// recurring-analysis prompt expects.
func serializeTransactions(txs []domain.Transaction) (string, error) {
	type wire struct {
		Date        string   `json:"date"`
		Description string   `json:"description"`
		Amount      float64  `json:"amount"`
		Balance     *float64 `json:"balance,omitempty"`
		Category    string   `json:"category,omitempty"`
	}
	rows := make([]wire, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, wire{
			Date:        t.Date.Format("2006-01-02"),
			Description: t.Description,
			Amount:      t.Amount,
			Balance:     t.Balance,
			Category:    t.Category,
		})
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func accountInfoFrom(m map[string]interface{}) AccountInfo {
	get := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	return AccountInfo{
		AccountNumber:   get("account_number"),
		BankName:        get("bank_name"),
		StatementPeriod: get("statement_period"),
	}
}
