package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// Typed domain errors raised by the repositories and the borrow/return
// engine.  Handlers translate them to HTTP statuses; the engine itself
// never encodes transport concerns.  None of these are retried: they are
// deterministic business outcomes, not transient faults.
var (
	// ErrBookNotFound is returned when a book id matches no row.
	ErrBookNotFound = errors.New("book not found")
	// ErrMemberNotFound is returned when a member id matches no row.
	ErrMemberNotFound = errors.New("member not found")
	// ErrBorrowNotFound is returned when a borrow record id matches no row.
	ErrBorrowNotFound = errors.New("borrow record not found")
	// ErrBorrowLimitExceeded is returned when a member is already at the
	// maximum number of active borrows.
	ErrBorrowLimitExceeded = errors.New("member has reached the maximum number of active borrows")
	// ErrDuplicateActiveBorrow is returned when a member already holds an
	// active borrow for the same book.
	ErrDuplicateActiveBorrow = errors.New("member already has an active borrow for this book")
	// ErrInventoryUnavailable is returned when no copies are left at lock
	// time.
	ErrInventoryUnavailable = errors.New("no copies available for borrowing")
	// ErrAlreadyReturned is returned when a return targets a record that is
	// not in the BORROWED state.
	ErrAlreadyReturned = errors.New("borrow record is already returned")
	// ErrConstraintViolation is returned when a unique or referential
	// constraint rejects a write (duplicate isbn/email, delete of a
	// referenced row).
	ErrConstraintViolation = errors.New("constraint violation")
)

// MySQL error numbers for constraint failures.
const (
	mysqlErrDupEntry      = 1062
	mysqlErrRowReferenced = 1451
	mysqlErrNoReferenced  = 1452
)

// asConstraintViolation maps MySQL duplicate-key and foreign-key errors
// to ErrConstraintViolation and passes every other error through.
func asConstraintViolation(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDupEntry, mysqlErrRowReferenced, mysqlErrNoReferenced:
			return ErrConstraintViolation
		}
	}
	return err
}
