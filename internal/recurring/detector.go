// Package recurring finds merchant-grouped recurring-payment
// candidates in a statement's transaction set.
package recurring

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// Analyzer submits a transaction set for recurring-pattern analysis.
// The classifier satisfies this.
type Analyzer interface {
	AnalyzeRecurring(ctx context.Context, txs []domain.Transaction) (*domain.RecurringAnalysis, error)
}

// Detector is the on-demand recurring-payment stage. It runs only
// against completed statements and never mutates statement state.
type Detector struct {
	analyzer Analyzer
	log      zerolog.Logger
}

// New creates a Detector.
func New(analyzer Analyzer, log zerolog.Logger) *Detector {
	return &Detector{analyzer: analyzer, log: log}
}

// Detect analyzes the transaction set. Results are computed fresh on
// every call, never cached, so repeated invocations reflect exactly
// the persisted transactions. An empty set short-circuits to an empty
// analysis without calling the service.
//
// A ParseError from the service propagates to the caller, who may
// choose to present a degraded empty result instead of failing the
// whole interaction.
func (d *Detector) Detect(ctx context.Context, txs []domain.Transaction) (*domain.RecurringAnalysis, error) {
	if len(txs) == 0 {
		return &domain.RecurringAnalysis{
			RecurringPayments: []domain.RecurringPayment{},
		}, nil
	}

	analysis, err := d.analyzer.AnalyzeRecurring(ctx, txs)
	if err != nil {
		return nil, err
	}

	d.log.Debug().
		Int("transactions", len(txs)).
		Int("candidates", len(analysis.RecurringPayments)).
		Msg("recurring analysis complete")

	return analysis, nil
}
