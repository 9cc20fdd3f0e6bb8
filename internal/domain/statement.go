package domain

import (
	"time"

	"github.com/google/uuid"
)

// StatementState is the processing state of an uploaded statement.
// States only advance forward; Completed and Failed are terminal.
type StatementState string

const (
	StateReceived    StatementState = "received"
	StateDownloading StatementState = "downloading"
	StateExtracting  StatementState = "extracting"
	StateParsing     StatementState = "parsing"
	StatePersisting  StatementState = "persisting"
	StateCompleted   StatementState = "completed"
	StateFailed      StatementState = "failed"
)

// stateOrder defines the forward-only ordering of the primary flow.
// Failed is reachable from any non-terminal state and is not part of
// the ordering.
var stateOrder = map[StatementState]int{
	StateReceived:    0,
	StateDownloading: 1,
	StateExtracting:  2,
	StateParsing:     3,
	StatePersisting:  4,
	StateCompleted:   5,
}

// Terminal reports whether no further primary-flow transition is allowed.
func (s StatementState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanAdvanceTo reports whether a transition from s to next is legal:
// one step forward in the primary flow, or to Failed from any
// non-terminal state.
func (s StatementState) CanAdvanceTo(next StatementState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	cur, ok := stateOrder[s]
	if !ok {
		return false
	}
	nxt, ok := stateOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// Statement is one uploaded document's processing record.
// Identity is minted fresh per upload: re-submitting the same file
// creates a new Statement rather than merging into a prior one.
type Statement struct {
	ID          uuid.UUID
	OwnerID     string
	Filename    string
	ByteSize    int64
	UploadedAt  time.Time
	State       StatementState
	FailureKind string // error kind when State == StateFailed

	RawText       string // concatenated page text with page markers
	ParsedPayload string // raw classifier JSON kept for audit
}
