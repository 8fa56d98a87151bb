package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylib/library-service/internal/database"
	"github.com/citylib/library-service/internal/pagination"
	"github.com/citylib/library-service/internal/repository"
)

func TestWriteDomainErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid cursor", pagination.ErrInvalidCursor, http.StatusBadRequest, "invalid_cursor"},
		{"book not found", repository.ErrBookNotFound, http.StatusNotFound, "book_not_found"},
		{"member not found", repository.ErrMemberNotFound, http.StatusNotFound, "member_not_found"},
		{"borrow not found", repository.ErrBorrowNotFound, http.StatusNotFound, "borrow_not_found"},
		{"borrow limit", repository.ErrBorrowLimitExceeded, http.StatusConflict, "borrow_limit_exceeded"},
		{"duplicate active", repository.ErrDuplicateActiveBorrow, http.StatusConflict, "duplicate_active_borrow"},
		{"no copies", repository.ErrInventoryUnavailable, http.StatusConflict, "no_copies_available"},
		{"already returned", repository.ErrAlreadyReturned, http.StatusConflict, "already_returned"},
		{"constraint", repository.ErrConstraintViolation, http.StatusConflict, "constraint_violation"},
		{"transient", database.ErrTransientFailure, http.StatusInternalServerError, "transient_failure"},
		{"unknown", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, writeDomainError(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error)
		})
	}
}

func TestBookListRejectsMalformedCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewBookHandler(repository.NewBookRepo(db), repository.NewBorrowRepo(db), 100)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/books?cursor=not-base64!!", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_cursor", body.Error)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query may run for a bad cursor")
}

func TestBookListPageFlow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewBookHandler(repository.NewBookRepo(db), repository.NewBorrowRepo(db), 100)

	created := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "title", "author", "isbn", "total_copies", "available_copies", "created_at", "updated_at"}).
		AddRow(1, "A Tale", "Dickens", "isbn-1", 3, 2, created, created).
		AddRow(2, "Beloved", "Morrison", "isbn-2", 2, 1, created, created).
		AddRow(3, "Carrie", "King", "isbn-3", 1, 1, created, created)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))
	mock.ExpectQuery("ORDER BY title ASC, id ASC LIMIT").WithArgs(3).
		WillReturnRows(rows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/books?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []json.RawMessage `json:"data"`
		Meta pagination.Meta   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 7, resp.Meta.Total)
	assert.True(t, resp.Meta.HasMore)
	require.NotNil(t, resp.Meta.NextCursor)

	// the cursor must decode back to the last row of the page
	cur, err := pagination.DecodeCursor(*resp.Meta.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "Beloved", cur.Value)
	assert.Equal(t, uint64(2), cur.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

func TestBorrowHandlerRejectsZeroIDs(t *testing.T) {
	h := &BorrowHandler{}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/borrows",
		jsonBody(`{"book_id": 0, "member_id": 3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Borrow(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
