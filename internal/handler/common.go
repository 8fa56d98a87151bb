// Package handler contains the HTTP handlers behind the /api/v1
// surface.  Handlers bind and validate input, delegate to repositories
// or services, and translate domain errors into the response taxonomy.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/citylib/library-service/internal/database"
	"github.com/citylib/library-service/internal/pagination"
	"github.com/citylib/library-service/internal/repository"
)

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func jsonError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, errorBody{Error: code, Message: message})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses:
// malformed input 400, missing entities 404, business rejections 409,
// exhausted transient retries and everything unknown 500.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, pagination.ErrInvalidCursor):
		return jsonError(c, http.StatusBadRequest, "invalid_cursor", "cursor is malformed or does not match this listing")
	case errors.Is(err, repository.ErrBookNotFound):
		return jsonError(c, http.StatusNotFound, "book_not_found", "book not found")
	case errors.Is(err, repository.ErrMemberNotFound):
		return jsonError(c, http.StatusNotFound, "member_not_found", "member not found")
	case errors.Is(err, repository.ErrBorrowNotFound):
		return jsonError(c, http.StatusNotFound, "borrow_not_found", "borrow record not found")
	case errors.Is(err, repository.ErrBorrowLimitExceeded):
		return jsonError(c, http.StatusConflict, "borrow_limit_exceeded", "member has reached the active borrow limit")
	case errors.Is(err, repository.ErrDuplicateActiveBorrow):
		return jsonError(c, http.StatusConflict, "duplicate_active_borrow", "member already has this book on loan")
	case errors.Is(err, repository.ErrInventoryUnavailable):
		return jsonError(c, http.StatusConflict, "no_copies_available", "no copies of this book are currently available")
	case errors.Is(err, repository.ErrAlreadyReturned):
		return jsonError(c, http.StatusConflict, "already_returned", "borrow record is not active")
	case errors.Is(err, repository.ErrConstraintViolation):
		return jsonError(c, http.StatusConflict, "constraint_violation", "the change conflicts with an existing record")
	case errors.Is(err, database.ErrTransientFailure):
		return jsonError(c, http.StatusInternalServerError, "transient_failure", "the operation could not complete under contention, retry later")
	default:
		c.Logger().Errorf("unhandled error: %v", err)
		return jsonError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// writePageError distinguishes a bad cursor, which has its own error
// code, from plain parameter validation failures.
func writePageError(c echo.Context, err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return writeDomainError(c, err)
	}
	return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
}

// pathID parses the :id route parameter.
func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// queryInt parses an optional integer query parameter, returning def
// when absent and an error when present but not numeric.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// parsePage reads the shared list parameters (limit, offset, sort,
// cursor) and normalizes them against the entity's sortable fields.
func parsePage(c echo.Context, allowedSorts []string, defaultSort string, maxLimit int) (pagination.Page, error) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return pagination.Page{}, errors.New("limit must be an integer")
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return pagination.Page{}, errors.New("offset must be an integer")
	}
	return pagination.ParsePage(limit, offset, c.QueryParam("sort"), c.QueryParam("cursor"),
		allowedSorts, defaultSort, maxLimit)
}
