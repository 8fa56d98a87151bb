package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRunInTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = RunInTx(context.Background(), db, fastPolicy(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("UPDATE books SET available_copies = available_copies - 1 WHERE id = ?", 1)
		return execErr
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackBusinessErrorWithoutRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("borrow limit exceeded")
	err = RunInTx(context.Background(), db, fastPolicy(), func(tx *sql.Tx) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRetriesDeadlockThenSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books").WillReturnError(deadlock)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err = RunInTx(context.Background(), db, fastPolicy(), func(tx *sql.Tx) error {
		calls++
		_, execErr := tx.Exec("UPDATE books SET available_copies = available_copies - 1 WHERE id = ?", 1)
		return execErr
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxExhaustsRetryBudget(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockWait := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	// 1 initial attempt + 3 retries
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE books").WillReturnError(lockWait)
		mock.ExpectRollback()
	}

	err = RunInTx(context.Background(), db, fastPolicy(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("UPDATE books SET available_copies = available_copies - 1 WHERE id = ?", 1)
		return execErr
	})
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsTransient(&mysql.MySQLError{Number: 1205}))
	assert.False(t, IsTransient(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestBackoffStaysWithinCap(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		wait := backoff(policy, attempt)
		assert.GreaterOrEqual(t, wait, policy.BaseDelay)
		// cap plus the 10% jitter ceiling
		assert.LessOrEqual(t, wait, policy.MaxDelay+policy.MaxDelay/10)
	}
}
