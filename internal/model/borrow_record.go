package model

import "time"

// Borrow record statuses.  A record is created as BORROWED and flips
// to RETURNED exactly once; it is never deleted afterwards so the
// table doubles as a historical ledger.
const (
	StatusBorrowed = "BORROWED"
	StatusReturned = "RETURNED"
)

// BorrowRecord links a member to a book for one lending cycle, as
// stored in the `borrow_records` table.  Exactly one of the two
// states holds at any time: status BORROWED with ReturnedAt null, or
// status RETURNED with ReturnedAt set.  A member may hold at most
// one active record per book and at most the configured number of
// active records in total; both rules are enforced by the borrow
// engine inside the same transaction that locks the book row.
//
// Fields:
//  ID         – primary key identifier.
//  BookID     – borrowed book (foreign key, RESTRICT on delete).
//  MemberID   – borrowing member (foreign key, RESTRICT on delete).
//  BorrowedAt – when the copy left the shelf.
//  DueDate    – BorrowedAt plus the configured loan duration.
//  ReturnedAt – when the copy came back (null while active).
//  Status     – BORROWED or RETURNED.
type BorrowRecord struct {
	ID         uint64     `json:"id"`                    // borrow_records.id
	BookID     uint64     `json:"book_id"`               // borrow_records.book_id
	MemberID   uint64     `json:"member_id"`             // borrow_records.member_id
	BorrowedAt time.Time  `json:"borrowed_at"`           // borrow_records.borrowed_at
	DueDate    time.Time  `json:"due_date"`              // borrow_records.due_date
	ReturnedAt *time.Time `json:"returned_at,omitempty"` // borrow_records.returned_at (nullable)
	Status     string     `json:"status"`                // borrow_records.status
	BookTitle  string     `json:"book_title,omitempty"`  // joined from books.title for responses
	MemberName string     `json:"member_name,omitempty"` // joined from members.name for responses
}

// Active reports whether the record still represents an outstanding
// loan.
func (r *BorrowRecord) Active() bool { return r.Status == StatusBorrowed }

// Overdue reports whether an active record has passed its due date
// at the supplied instant.
func (r *BorrowRecord) Overdue(now time.Time) bool {
	return r.Status == StatusBorrowed && now.After(r.DueDate)
}
