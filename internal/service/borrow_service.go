// Package service hosts the transactional engines and the analytics
// assembly that sit between the HTTP handlers and the repositories.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/citylib/library-service/internal/database"
	"github.com/citylib/library-service/internal/metrics"
	"github.com/citylib/library-service/internal/middleware"
	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/queue"
	"github.com/citylib/library-service/internal/repository"
)

// BorrowService is the borrow/return transaction engine.  Every
// operation runs inside one database transaction executed through the
// retry runner: business rejections roll back deterministically and are
// never retried, transient contention is retried with backoff, and no
// partial inventory mutation is ever observable.
type BorrowService struct {
	db      *sql.DB
	books   *repository.BookRepo
	members *repository.MemberRepo
	borrows *repository.BorrowRepo
	metrics *metrics.BorrowMetrics

	policy       database.RetryPolicy
	maxActive    int
	loanDuration time.Duration

	now     func() time.Time
	publish func(ctx context.Context, ev queue.BorrowEvent) error
}

// NewBorrowService wires the engine.  maxActive is the per-member borrow
// ceiling and loanDuration the borrowed_at → due_date distance.  The
// transaction handle comes from the ledger repository; one transaction
// spans all three repositories.
func NewBorrowService(books *repository.BookRepo, members *repository.MemberRepo,
	borrows *repository.BorrowRepo, m *metrics.BorrowMetrics, maxActive int, loanDuration time.Duration) *BorrowService {
	if books == nil || members == nil || borrows == nil {
		panic("nil repository passed to NewBorrowService")
	}
	return &BorrowService{
		db:           borrows.DB(),
		books:        books,
		members:      members,
		borrows:      borrows,
		metrics:      m,
		policy:       database.DefaultRetryPolicy(),
		maxActive:    maxActive,
		loanDuration: loanDuration,
		now:          func() time.Time { return time.Now().UTC() },
		publish:      queue.PublishBorrowEvent,
	}
}

// Borrow lends a book to a member.  Steps, all inside one transaction:
// count the member's active borrows against the ceiling, verify the
// member, reject a duplicate active borrow of the same pair, lock the
// book row, re-check availability under the lock (the earlier checks ran
// unlocked and the state may have moved), decrement the inventory and
// insert the ledger row.  The availability re-check is what turns N
// concurrent borrowers of a nearly-empty title into exactly
// available-many successes.
func (s *BorrowService) Borrow(ctx context.Context, bookID, memberID uint64) (*model.BorrowRecord, error) {
	s.metrics.Attempts.Inc()

	var rec *model.BorrowRecord
	err := database.RunInTx(ctx, s.db, s.policy, func(tx *sql.Tx) error {
		active, err := s.borrows.CountActiveTx(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if active >= s.maxActive {
			return repository.ErrBorrowLimitExceeded
		}

		ok, err := s.members.ExistsTx(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrMemberNotFound
		}

		dup, err := s.borrows.ActiveExistsTx(ctx, tx, bookID, memberID)
		if err != nil {
			return err
		}
		if dup {
			return repository.ErrDuplicateActiveBorrow
		}

		book, err := s.books.GetForUpdateTx(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies < 1 {
			return repository.ErrInventoryUnavailable
		}
		if err := s.books.DecrementAvailableTx(ctx, tx, bookID); err != nil {
			return err
		}

		now := s.now()
		rec = &model.BorrowRecord{
			BookID:     bookID,
			MemberID:   memberID,
			BorrowedAt: now,
			DueDate:    now.Add(s.loanDuration),
			Status:     model.StatusBorrowed,
		}
		if err := s.borrows.CreateTx(ctx, tx, rec); err != nil {
			return err
		}
		full, err := s.borrows.GetByIDTx(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		rec = full
		return nil
	})
	if err != nil {
		s.metrics.BorrowFailed(failureReason(err))
		return nil, err
	}

	s.metrics.BorrowSucceeded()
	log.Printf("[%s] borrow committed: record=%d book=%d member=%d due=%s",
		middleware.CorrelationID(ctx), rec.ID, rec.BookID, rec.MemberID, rec.DueDate.Format(time.RFC3339))
	s.publishEvent(ctx, queue.BorrowEvent{
		Action:     queue.ActionBorrowed,
		BorrowID:   rec.ID,
		BookID:     rec.BookID,
		BookTitle:  rec.BookTitle,
		MemberID:   rec.MemberID,
		MemberName: rec.MemberName,
		BorrowedAt: rec.BorrowedAt.UTC().Format(time.RFC3339),
		DueDate:    rec.DueDate.UTC().Format(time.RFC3339),
		OccurredAt: s.now().Format(time.RFC3339),
	})
	return rec, nil
}

// Return closes out a loan.  One transaction: lock the ledger row,
// reject a record that is not BORROWED, flip it to RETURNED, then lock
// the book row and put the copy back, clamped so available never
// exceeds total.
func (s *BorrowService) Return(ctx context.Context, borrowID uint64) (*model.BorrowRecord, error) {
	var rec *model.BorrowRecord
	var late bool
	err := database.RunInTx(ctx, s.db, s.policy, func(tx *sql.Tx) error {
		current, err := s.borrows.GetForUpdateTx(ctx, tx, borrowID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return repository.ErrAlreadyReturned
		}
		late = current.Overdue(s.now())

		if err := s.borrows.MarkReturnedTx(ctx, tx, borrowID, s.now()); err != nil {
			return err
		}

		// Lock the book row before adjusting inventory; the FK guarantees
		// it exists but the lock ordering matters against the borrow path.
		if _, err := s.books.GetForUpdateTx(ctx, tx, current.BookID); err != nil {
			return err
		}
		if err := s.books.IncrementAvailableTx(ctx, tx, current.BookID); err != nil {
			return err
		}

		full, err := s.borrows.GetByIDTx(ctx, tx, borrowID)
		if err != nil {
			return err
		}
		rec = full
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ReturnSucceeded()
	log.Printf("[%s] return committed: record=%d book=%d member=%d late=%t",
		middleware.CorrelationID(ctx), rec.ID, rec.BookID, rec.MemberID, late)
	ev := queue.BorrowEvent{
		Action:     queue.ActionReturned,
		BorrowID:   rec.ID,
		BookID:     rec.BookID,
		BookTitle:  rec.BookTitle,
		MemberID:   rec.MemberID,
		MemberName: rec.MemberName,
		BorrowedAt: rec.BorrowedAt.UTC().Format(time.RFC3339),
		DueDate:    rec.DueDate.UTC().Format(time.RFC3339),
		OccurredAt: s.now().Format(time.RFC3339),
	}
	if rec.ReturnedAt != nil {
		ev.ReturnedAt = rec.ReturnedAt.UTC().Format(time.RFC3339)
	}
	s.publishEvent(ctx, ev)
	return rec, nil
}

// publishEvent hands the event to the broker without blocking the
// request; failures are logged by the publisher and dropped.
func (s *BorrowService) publishEvent(ctx context.Context, ev queue.BorrowEvent) {
	detached := context.WithoutCancel(ctx)
	go func() {
		pubCtx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		_ = s.publish(pubCtx, ev)
	}()
}

// failureReason maps an error to the metrics label of the failure
// counter.
func failureReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrBorrowLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, repository.ErrDuplicateActiveBorrow):
		return "duplicate_active"
	case errors.Is(err, repository.ErrInventoryUnavailable):
		return "unavailable"
	case errors.Is(err, repository.ErrBookNotFound), errors.Is(err, repository.ErrMemberNotFound):
		return "not_found"
	case errors.Is(err, database.ErrTransientFailure):
		return "transient"
	default:
		return "error"
	}
}
