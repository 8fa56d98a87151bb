package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/pagination"
	"github.com/citylib/library-service/internal/repository"
	"github.com/citylib/library-service/internal/service"
)

// BorrowHandler serves the lending endpoints.  Borrow and Return go
// through the transaction engine; reads hit the repository directly.
type BorrowHandler struct {
	Service     *service.BorrowService
	Borrows     *repository.BorrowRepo
	MaxPageSize int
}

// NewBorrowHandler returns a BorrowHandler over the engine and ledger.
func NewBorrowHandler(svc *service.BorrowService, borrows *repository.BorrowRepo, maxPageSize int) *BorrowHandler {
	return &BorrowHandler{Service: svc, Borrows: borrows, MaxPageSize: maxPageSize}
}

// Borrow handles POST /api/v1/borrows.
func (h *BorrowHandler) Borrow(c echo.Context) error {
	var body struct {
		BookID   uint64 `json:"book_id"`
		MemberID uint64 `json:"member_id"`
	}
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if body.BookID == 0 || body.MemberID == 0 {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "book_id and member_id are required")
	}
	rec, err := h.Service.Borrow(c.Request().Context(), body.BookID, body.MemberID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// Return handles POST /api/v1/borrows/:id/return.
func (h *BorrowHandler) Return(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	rec, err := h.Service.Return(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// Get handles GET /api/v1/borrows/:id.
func (h *BorrowHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	rec, err := h.Borrows.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// List handles GET /api/v1/borrows with member, status and overdue
// filters on top of the shared keyset pagination.
func (h *BorrowHandler) List(c echo.Context) error {
	page, err := parsePage(c, repository.BorrowSortFields, "-borrowed_at", h.MaxPageSize)
	if err != nil {
		return writePageError(c, err)
	}

	q := repository.BorrowListQuery{
		Search: strings.TrimSpace(c.QueryParam("q")),
		Page:   page,
	}
	if raw := c.QueryParam("member_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_request", "member_id must be an integer")
		}
		q.MemberID = &id
	}
	if status := strings.ToUpper(c.QueryParam("status")); status != "" {
		if status != model.StatusBorrowed && status != model.StatusReturned {
			return jsonError(c, http.StatusBadRequest, "invalid_request", "status must be BORROWED or RETURNED")
		}
		q.Status = status
	}
	if raw := c.QueryParam("overdue"); raw != "" {
		overdue, err := strconv.ParseBool(raw)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_request", "overdue must be a boolean")
		}
		q.Overdue = overdue
	}

	records, total, hasMore, err := h.Borrows.List(c.Request().Context(), q)
	if err != nil {
		return writeDomainError(c, err)
	}

	next := ""
	if hasMore && len(records) > 0 {
		next = repository.BorrowCursor(records[len(records)-1], page.SortField).Encode()
	}
	return c.JSON(http.StatusOK, pagination.Response{
		Data: records,
		Meta: pagination.NewMeta(total, page.Limit, hasMore, next),
	})
}
