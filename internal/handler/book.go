package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/pagination"
	"github.com/citylib/library-service/internal/repository"
)

// BookHandler serves the catalog endpoints.
type BookHandler struct {
	Books       *repository.BookRepo
	Borrows     *repository.BorrowRepo
	MaxPageSize int
}

// NewBookHandler returns a BookHandler over the given repositories.
func NewBookHandler(books *repository.BookRepo, borrows *repository.BorrowRepo, maxPageSize int) *BookHandler {
	return &BookHandler{Books: books, Borrows: borrows, MaxPageSize: maxPageSize}
}

type bookPayload struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies *int   `json:"available_copies"`
}

func (p *bookPayload) validate() string {
	p.Title = strings.TrimSpace(p.Title)
	p.Author = strings.TrimSpace(p.Author)
	p.ISBN = strings.TrimSpace(p.ISBN)
	switch {
	case p.Title == "":
		return "title is required"
	case p.Author == "":
		return "author is required"
	case p.ISBN == "":
		return "isbn is required"
	case p.TotalCopies < 0:
		return "total_copies cannot be negative"
	case p.AvailableCopies != nil && (*p.AvailableCopies < 0 || *p.AvailableCopies > p.TotalCopies):
		return "available_copies must be between 0 and total_copies"
	}
	return ""
}

// Create handles POST /api/v1/books.  available_copies defaults to
// total_copies for a freshly registered title.
func (h *BookHandler) Create(c echo.Context) error {
	var body bookPayload
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if msg := body.validate(); msg != "" {
		return jsonError(c, http.StatusBadRequest, "invalid_request", msg)
	}
	available := body.TotalCopies
	if body.AvailableCopies != nil {
		available = *body.AvailableCopies
	}
	book := &model.Book{
		Title:           body.Title,
		Author:          body.Author,
		ISBN:            body.ISBN,
		TotalCopies:     body.TotalCopies,
		AvailableCopies: available,
	}
	if err := h.Books.Create(c.Request().Context(), book); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, book)
}

// Get handles GET /api/v1/books/:id.
func (h *BookHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	book, err := h.Books.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// Update handles PUT /api/v1/books/:id.  Inventory counters may be
// edited here but available is clamped to the new total; lending only
// moves them through the borrow engine.
func (h *BookHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	var body bookPayload
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if msg := body.validate(); msg != "" {
		return jsonError(c, http.StatusBadRequest, "invalid_request", msg)
	}
	current, err := h.Books.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	current.Title = body.Title
	current.Author = body.Author
	current.ISBN = body.ISBN
	current.TotalCopies = body.TotalCopies
	if body.AvailableCopies != nil {
		current.AvailableCopies = *body.AvailableCopies
	}
	if err := h.Books.Update(c.Request().Context(), current); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, current)
}

// List handles GET /api/v1/books with search, sorting and keyset
// pagination.
func (h *BookHandler) List(c echo.Context) error {
	page, err := parsePage(c, repository.BookSortFields, "title", h.MaxPageSize)
	if err != nil {
		return writePageError(c, err)
	}
	books, total, hasMore, err := h.Books.List(c.Request().Context(), repository.BookListQuery{
		Search: strings.TrimSpace(c.QueryParam("q")),
		Page:   page,
	})
	if err != nil {
		return writeDomainError(c, err)
	}

	next := ""
	if hasMore && len(books) > 0 {
		last := books[len(books)-1]
		next = pagination.Cursor{Value: repository.BookSortValue(last, page.SortField), ID: last.ID, Sort: page.SortField}.Encode()
	}
	return c.JSON(http.StatusOK, pagination.Response{
		Data: books,
		Meta: pagination.NewMeta(total, page.Limit, hasMore, next),
	})
}

// bookDetails is the composite payload of the book detail view.
type bookDetails struct {
	Book             *model.Book               `json:"book"`
	CurrentBorrowers []repository.BorrowerInfo `json:"current_borrowers"`
	History          []repository.HistoryItem  `json:"borrow_history"`
	Totals           repository.BorrowTotals   `json:"totals"`
}

// Details handles GET /api/v1/books/:id/details: the book plus who has
// it now, its recent ledger and lifetime totals.
func (h *BookHandler) Details(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	limit, err := queryInt(c, "history_limit", 10)
	if err != nil || limit < 1 || limit > h.MaxPageSize {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "history_limit out of range")
	}
	offset, err := queryInt(c, "history_offset", 0)
	if err != nil || offset < 0 {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "history_offset out of range")
	}

	ctx := c.Request().Context()
	book, err := h.Books.GetByID(ctx, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	borrowers, err := h.Books.CurrentBorrowers(ctx, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	history, err := h.Borrows.History(ctx, id, 0, limit, offset)
	if err != nil {
		return writeDomainError(c, err)
	}
	totals, err := h.Books.Totals(ctx, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, bookDetails{
		Book:             book,
		CurrentBorrowers: borrowers,
		History:          history,
		Totals:           totals,
	})
}
