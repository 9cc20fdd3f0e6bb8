package domain

// RecurringPayment is one merchant-grouped recurring-payment candidate
// inferred from a statement's transaction set. Candidates are derived on
// demand and never persisted; recomputation from the same inputs is
// expected to produce the same set, modulo classifier nondeterminism.
type RecurringPayment struct {
	MerchantName    string  `json:"merchant_name"`
	Category        string  `json:"category"`
	AverageAmount   float64 `json:"average_amount"`
	Frequency       string  `json:"frequency"` // monthly, weekly, etc.
	Occurrences     int     `json:"occurrences"`
	LastPaymentDate string  `json:"last_payment_date"`
	Confidence      string  `json:"confidence"`
}

// RecurringSummary aggregates a full recurring-payment analysis.
type RecurringSummary struct {
	TotalRecurringAmount    float64 `json:"total_recurring_amount"`
	RecurringPaymentCount   int     `json:"recurring_payment_count"`
	LargestRecurringPayment string  `json:"largest_recurring_payment"`
}

// RecurringAnalysis is the full result of the recurring-payment
// detection sub-flow.
type RecurringAnalysis struct {
	RecurringPayments []RecurringPayment `json:"recurring_payments"`
	Summary           RecurringSummary   `json:"summary"`
}
