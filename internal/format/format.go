// Package format renders analysis results as plain structured text
// for the transport layer. Output is deterministic: the same input
// always produces byte-identical text.
package format

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

const (
	// DefaultTransactionLimit caps how many entries a transaction
	// listing shows.
	DefaultTransactionLimit = 20

	maxDescriptionLen = 30

	debitMarker  = "🔴"
	creditMarker = "🟢"
)

// categoryIcons maps a recurring-payment category to its display
// icon. Unknown categories get the generic card.
var categoryIcons = map[string]string{
	"utilities":     "⚡",
	"entertainment": "🎬",
	"groceries":     "🛒",
	"transport":     "🚗",
	"insurance":     "🛡️",
	"subscription":  "📱",
	"rent":          "🏠",
	"dining":        "🍽️",
}

func categoryIcon(category string) string {
	if icon, ok := categoryIcons[strings.ToLower(category)]; ok {
		return icon
	}
	return "💳"
}

// money renders a currency value as its absolute magnitude with two
// decimal places. Sign is never part of the number in user-facing
// text; the line's marker carries it.
func money(v float64) string {
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("$%.2f", v)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Transactions renders the most recent transactions as one text block.
// The list is sorted by date descending and capped at limit (or
// DefaultTransactionLimit when limit <= 0) before formatting. The
// input slice is not modified.
func Transactions(list []domain.Transaction, limit int) string {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}

	sorted := make([]domain.Transaction, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	var b strings.Builder
	b.WriteString("📝 Recent Transactions\n\n")

	if len(sorted) == 0 {
		b.WriteString("No transactions found.\n")
		return b.String()
	}

	for _, t := range sorted {
		marker := creditMarker
		if t.Debit() {
			marker = debitMarker
		}
		fmt.Fprintf(&b, "%s %s  %s  %s\n",
			marker,
			t.Date.Format("2006-01-02"),
			truncate(t.Description, maxDescriptionLen),
			money(t.Amount))
	}

	return b.String()
}

// Summary renders a recurring-payment analysis as one text block.
func Summary(analysis *domain.RecurringAnalysis) string {
	var b strings.Builder
	b.WriteString("📊 Recurring Payments Summary\n\n")

	s := analysis.Summary
	fmt.Fprintf(&b, "💰 Total monthly recurring: %s\n", money(s.TotalRecurringAmount))
	fmt.Fprintf(&b, "📋 Number of recurring payments: %d\n", s.RecurringPaymentCount)
	if s.LargestRecurringPayment != "" {
		fmt.Fprintf(&b, "🏆 Largest payment: %s\n", s.LargestRecurringPayment)
	}

	b.WriteString("\n" + strings.Repeat("=", 30) + "\n\n")

	if len(analysis.RecurringPayments) == 0 {
		b.WriteString("No recurring payments detected in this statement.\n")
		return b.String()
	}

	b.WriteString("📝 Detailed Breakdown:\n\n")
	for _, p := range analysis.RecurringPayments {
		fmt.Fprintf(&b, "%s %s\n", categoryIcon(p.Category), p.MerchantName)
		fmt.Fprintf(&b, "   Amount: %s (%s)\n", money(p.AverageAmount), p.Frequency)
		fmt.Fprintf(&b, "   Category: %s\n", titleCase(p.Category))
		fmt.Fprintf(&b, "   Occurrences: %d\n\n", p.Occurrences)
	}

	return b.String()
}
