package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/pagination"
)

func TestBorrowKeysetPredicateHandlesNullReturnedAt(t *testing.T) {
	dated := &pagination.Cursor{Value: "2026-08-01 12:00:00", ID: 42, Sort: "returned_at"}
	atNull := &pagination.Cursor{ID: 7, Sort: "returned_at", Null: true}

	// ascending from inside the NULL block: finish it by id, then every dated row
	cond, args := borrowKeysetPredicate(pagination.Page{SortField: "returned_at", Cursor: atNull}, "br.")
	assert.Equal(t, "((br.returned_at IS NULL AND br.id > ?) OR br.returned_at IS NOT NULL)", cond)
	assert.Equal(t, []any{uint64(7)}, args)

	// ascending from a dated boundary: the NULL block is already behind us
	cond, args = borrowKeysetPredicate(pagination.Page{SortField: "returned_at", Cursor: dated}, "br.")
	assert.Equal(t, "(br.returned_at > ? OR (br.returned_at = ? AND br.id > ?))", cond)
	assert.Equal(t, []any{dated.Value, dated.Value, uint64(42)}, args)

	// descending from a dated boundary: the NULL block still lies ahead
	cond, args = borrowKeysetPredicate(pagination.Page{SortField: "returned_at", Desc: true, Cursor: dated}, "br.")
	assert.Equal(t, "(br.returned_at < ? OR (br.returned_at = ? AND br.id < ?) OR br.returned_at IS NULL)", cond)
	assert.Equal(t, []any{dated.Value, dated.Value, uint64(42)}, args)

	// descending from inside the NULL block: only the rest of it remains
	cond, args = borrowKeysetPredicate(pagination.Page{SortField: "returned_at", Desc: true, Cursor: atNull}, "br.")
	assert.Equal(t, "(br.returned_at IS NULL AND br.id < ?)", cond)
	assert.Equal(t, []any{uint64(7)}, args)

	// any other sort field takes the plain comparable predicate
	cond, _ = borrowKeysetPredicate(pagination.Page{SortField: "due_date",
		Cursor: &pagination.Cursor{Value: "2026-08-15 00:00:00", ID: 3, Sort: "due_date"}}, "br.")
	assert.Equal(t, "(br.due_date > ? OR (br.due_date = ? AND br.id > ?))", cond)
}

func TestBorrowCursorFlagsNullBoundary(t *testing.T) {
	borrowed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	active := model.BorrowRecord{ID: 9, BorrowedAt: borrowed, DueDate: borrowed.AddDate(0, 0, 14), Status: model.StatusBorrowed}

	c := BorrowCursor(active, "returned_at")
	assert.True(t, c.Null)
	assert.Empty(t, c.Value)
	assert.Equal(t, uint64(9), c.ID)
	assert.Equal(t, "returned_at", c.Sort)

	returnedAt := borrowed.AddDate(0, 0, 3)
	returned := active
	returned.Status = model.StatusReturned
	returned.ReturnedAt = &returnedAt

	c = BorrowCursor(returned, "returned_at")
	assert.False(t, c.Null)
	assert.Equal(t, "2026-08-04 12:00:00", c.Value)

	// other fields never mark the cursor null, even for active records
	c = BorrowCursor(active, "due_date")
	assert.False(t, c.Null)
	assert.NotEmpty(t, c.Value)
}

func TestBorrowListResumesPastNullBoundary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewBorrowRepo(db)

	borrowed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	returnedAt := borrowed.AddDate(0, 0, 3)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
	// the page after a NULL boundary must come from the IS NULL / IS NOT
	// NULL predicate with only the row id bound, never a '' comparison
	mock.ExpectQuery("br.returned_at IS NULL AND br.id > (.+) OR br.returned_at IS NOT NULL").
		WithArgs(uint64(2), 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "book_id", "member_id", "borrowed_at", "due_date", "returned_at", "status", "title", "name"}).
			AddRow(5, 1, 1, borrowed, borrowed.AddDate(0, 0, 14), nil, model.StatusBorrowed, "Dune", "Ada").
			AddRow(3, 2, 1, borrowed, borrowed.AddDate(0, 0, 14), returnedAt, model.StatusReturned, "Emma", "Ada"))

	records, total, hasMore, err := repo.List(context.Background(), BorrowListQuery{
		Page: pagination.Page{
			Limit:     2,
			SortField: "returned_at",
			Cursor:    &pagination.Cursor{ID: 2, Sort: "returned_at", Null: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.False(t, hasMore)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].ReturnedAt, "the NULL block finishes before dated rows begin")
	assert.NotNil(t, records[1].ReturnedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
