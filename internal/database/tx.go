package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers that indicate transient lock contention.
// Transactions hitting these are safe to retry from scratch.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// ErrTransientFailure is returned when a transaction keeps failing with
// deadlocks or lock wait timeouts after the retry budget is spent.  The
// wrapped error is the last driver error observed.
var ErrTransientFailure = errors.New("transient database failure")

// RetryPolicy bounds how often and how long a transaction is retried on
// transient contention.  Waits grow as BaseDelay*2^attempt plus a jitter
// of up to 10% and are capped at MaxDelay per wait.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the documented borrow/return retry budget:
// three retries starting at 100ms and never waiting more than a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
}

// IsTransient reports whether err is a MySQL deadlock or lock wait
// timeout, the only errors the runner retries.  Business rejections are
// deterministic and must not be classified here.
func IsTransient(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
	}
	return false
}

// RunInTx executes fn inside a transaction and commits it when fn
// returns nil.  Every exit path releases the transaction: fn errors and
// panics roll back, commit errors are returned to the caller.  When the
// failure is transient the whole transaction is re-executed under the
// policy; any other error is returned as-is so typed domain errors pass
// through untouched.
func RunInTx(ctx context.Context, db *sql.DB, policy RetryPolicy, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt >= policy.MaxRetries {
			log.Printf("tx: giving up after %d attempts: %v", attempt+1, lastErr)
			return fmt.Errorf("%w after %d attempts: %v", ErrTransientFailure, attempt+1, lastErr)
		}
		wait := backoff(policy, attempt)
		log.Printf("tx: transient error (attempt %d/%d), retrying in %s: %v",
			attempt+1, policy.MaxRetries, wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func runOnce(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// backoff computes the wait before the next attempt: exponential in the
// attempt number with up to 10% uniform jitter, capped at MaxDelay.
func backoff(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseDelay << uint(attempt)
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
