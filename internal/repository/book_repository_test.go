package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/pagination"
)

var bookCreatedAt = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func bookRows(ids ...uint64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "title", "author", "isbn", "total_copies", "available_copies", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "Title", "Author", "isbn", 3, 2, bookCreatedAt, bookCreatedAt)
	}
	return rows
}

func TestBookListFirstPageFetchesLimitPlusOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookRepo(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(5))
	// limit 2 requests 3 rows; the extra row signals another page
	mock.ExpectQuery("ORDER BY title ASC, id ASC LIMIT").WithArgs(3).
		WillReturnRows(bookRows(1, 2, 3))

	books, total, hasMore, err := repo.List(context.Background(), BookListQuery{
		Page: pagination.Page{Limit: 2, SortField: "title"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.True(t, hasMore)
	assert.Len(t, books, 2, "the look-ahead row must be trimmed from the page")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookListCursorResumesAfterPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookRepo(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(5))
	// keyset predicate carries the cursor value twice plus the tiebreak id
	mock.ExpectQuery("ORDER BY title ASC, id ASC LIMIT").
		WithArgs("Moby Dick", "Moby Dick", uint64(17), 3).
		WillReturnRows(bookRows(18, 19))

	books, _, hasMore, err := repo.List(context.Background(), BookListQuery{
		Page: pagination.Page{
			Limit:     2,
			SortField: "title",
			Cursor:    &pagination.Cursor{Value: "Moby Dick", ID: 17},
			Offset:    40, // must be ignored when a cursor is present
		},
	})
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Len(t, books, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookListDescendingMirrorsOrderAndPredicate(t *testing.T) {
	p := pagination.Page{Limit: 10, SortField: "title", Desc: true,
		Cursor: &pagination.Cursor{Value: "K", ID: 9}}

	cond, args := keysetPredicate(p, "")
	assert.Equal(t, "(title < ? OR (title = ? AND id < ?))", cond)
	assert.Equal(t, []any{"K", "K", uint64(9)}, args)
	assert.Equal(t, "title DESC, id DESC", orderBy(p, ""))
}

func TestBookListSearchMatchesThreeColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookRepo(db)

	mock.ExpectQuery("SELECT COUNT").WithArgs("%dune%", "%dune%", "%dune%").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery("LOWER").WithArgs("%dune%", "%dune%", "%dune%", 21).
		WillReturnRows(bookRows(4))

	books, total, hasMore, err := repo.List(context.Background(), BookListQuery{
		Search: "Dune",
		Page:   pagination.Page{Limit: 20, SortField: "title"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.False(t, hasMore)
	assert.Len(t, books, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementAvailableRefusesLastGuard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("available_copies - 1").WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.DecrementAvailableTx(context.Background(), tx, 7)
	assert.ErrorIs(t, err, ErrInventoryUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsDuplicateISBN(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookRepo(db)

	mock.ExpectExec("INSERT INTO books").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	book := &model.Book{Title: "Dune", Author: "Herbert", ISBN: "9780441172719", TotalCopies: 2, AvailableCopies: 2}
	err = repo.Create(context.Background(), book)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBookRepo(db)

	mock.ExpectQuery("FROM books WHERE id").WithArgs(404).
		WillReturnRows(bookRows())

	_, err = repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
