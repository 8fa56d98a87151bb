// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into a flat ledger log.
package queue

// BorrowEvent is published after a borrow or return transaction commits.
// It carries enough identity and timing for downstream consumers to log,
// notify, or feed dashboards without querying the primary database.
type BorrowEvent struct {
	Action     string `json:"action"` // "borrowed" or "returned"
	BorrowID   uint64 `json:"borrow_id"`
	BookID     uint64 `json:"book_id"`
	BookTitle  string `json:"book_title"`
	MemberID   uint64 `json:"member_id"`
	MemberName string `json:"member_name"`
	BorrowedAt string `json:"borrowed_at"`
	DueDate    string `json:"due_date"`
	ReturnedAt string `json:"returned_at,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// Actions carried by BorrowEvent.
const (
	ActionBorrowed = "borrowed"
	ActionReturned = "returned"
)
