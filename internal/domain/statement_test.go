package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateAdvancesOneStepForward(t *testing.T) {
	order := []StatementState{
		StateReceived,
		StateDownloading,
		StateExtracting,
		StateParsing,
		StatePersisting,
		StateCompleted,
	}

	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanAdvanceTo(order[i+1]),
			"%s should advance to %s", order[i], order[i+1])
	}
}

func TestStateNeverSkipsOrRegresses(t *testing.T) {
	assert.False(t, StateReceived.CanAdvanceTo(StateExtracting))
	assert.False(t, StateReceived.CanAdvanceTo(StateCompleted))
	assert.False(t, StateParsing.CanAdvanceTo(StateDownloading))
	assert.False(t, StateExtracting.CanAdvanceTo(StateExtracting))
}

func TestFailedReachableFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []StatementState{
		StateReceived, StateDownloading, StateExtracting, StateParsing, StatePersisting,
	} {
		assert.True(t, s.CanAdvanceTo(StateFailed), "%s should reach failed", s)
	}
}

func TestTerminalStatesAreStuck(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())

	assert.False(t, StateCompleted.CanAdvanceTo(StateFailed))
	assert.False(t, StateFailed.CanAdvanceTo(StateReceived))
	assert.False(t, StateFailed.CanAdvanceTo(StateFailed))
}

func TestErrorTaxonomy(t *testing.T) {
	err := NewExtractionError(ReasonEncrypted, nil)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindExtraction, kind)
	assert.False(t, IsParseError(err))

	parseErr := NewParseError(ReasonMalformedJSON, nil)
	assert.True(t, IsParseError(parseErr))

	_, ok = KindOf(assert.AnError)
	assert.False(t, ok)
}

func TestUserMessagesByKind(t *testing.T) {
	msgs := map[string]string{
		"validation":  UserMessage(NewValidationError("tooLarge", nil)),
		"storage":     UserMessage(NewStorageError(nil)),
		"extraction":  UserMessage(NewExtractionError(ReasonCorrupted, nil)),
		"parse":       UserMessage(NewParseError(ReasonNoJSONFound, nil)),
		"persistence": UserMessage(NewPersistenceError(nil)),
	}

	seen := map[string]bool{}
	for kind, msg := range msgs {
		assert.NotEmpty(t, msg, kind)
		assert.False(t, seen[msg], "message for %s duplicates another kind", kind)
		seen[msg] = true
	}
}
