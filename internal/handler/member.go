package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/pagination"
	"github.com/citylib/library-service/internal/repository"
)

// MemberHandler serves the member registry endpoints.
type MemberHandler struct {
	Members     *repository.MemberRepo
	Borrows     *repository.BorrowRepo
	MaxPageSize int
}

// NewMemberHandler returns a MemberHandler over the given repositories.
func NewMemberHandler(members *repository.MemberRepo, borrows *repository.BorrowRepo, maxPageSize int) *MemberHandler {
	return &MemberHandler{Members: members, Borrows: borrows, MaxPageSize: maxPageSize}
}

type memberPayload struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone"`
}

func (p *memberPayload) validate() string {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	switch {
	case p.Name == "":
		return "name is required"
	case p.Email == "" || !strings.Contains(p.Email, "@"):
		return "a valid email is required"
	}
	return ""
}

// Create handles POST /api/v1/members.  A duplicate email surfaces as
// a conflict.
func (h *MemberHandler) Create(c echo.Context) error {
	var body memberPayload
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if msg := body.validate(); msg != "" {
		return jsonError(c, http.StatusBadRequest, "invalid_request", msg)
	}
	member := &model.Member{Name: body.Name, Email: body.Email, Phone: body.Phone}
	if err := h.Members.Create(c.Request().Context(), member); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, member)
}

// Get handles GET /api/v1/members/:id.
func (h *MemberHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	member, err := h.Members.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, member)
}

// Update handles PUT /api/v1/members/:id.
func (h *MemberHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid id")
	}
	var body memberPayload
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if msg := body.validate(); msg != "" {
		return jsonError(c, http.StatusBadRequest, "invalid_request", msg)
	}
	current, err := h.Members.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	current.Name = body.Name
	current.Email = body.Email
	current.Phone = body.Phone
	if err := h.Members.Update(c.Request().Context(), current); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, current)
}

// List handles GET /api/v1/members with search, sorting and keyset
// pagination.
func (h *MemberHandler) List(c echo.Context) error {
	page, err := parsePage(c, repository.MemberSortFields, "name", h.MaxPageSize)
	if err != nil {
		return writePageError(c, err)
	}
	members, total, hasMore, err := h.Members.List(c.Request().Context(), repository.MemberListQuery{
		Search: strings.TrimSpace(c.QueryParam("q")),
		Page:   page,
	})
	if err != nil {
		return writeDomainError(c, err)
	}

	next := ""
	if hasMore && len(members) > 0 {
		last := members[len(members)-1]
		next = pagination.Cursor{Value: repository.MemberSortValue(last, page.SortField), ID: last.ID, Sort: page.SortField}.Encode()
	}
	return c.JSON(http.StatusOK, pagination.Response{
		Data: members,
		Meta: pagination.NewMeta(total, page.Limit, hasMore, next),
	})
}

// memberDetails is the composite payload of the member detail view.
type memberDetails struct {
	Member        *model.Member             `json:"member"`
	ActiveBorrows []repository.ActiveBorrow `json:"active_borrows"`
	History       []repository.HistoryItem  `json:"borrow_history"`
	Totals        repository.BorrowTotals   `json:"totals"`
}

// Details handles GET /api/v1/members/:id/details: the member plus
// outstanding loans with overdue flags, recent history and totals.
func (h *MemberHandler) Details(c echo.Context) error {
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
	member, err := h.Members.GetByID(ctx, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	active, err := h.Members.ActiveBorrows(ctx, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	history, err := h.Borrows.History(ctx, 0, id, limit, offset)
	if err != nil {
		return writeDomainError(c, err)
	}
	totals, err := h.Members.Totals(ctx, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, memberDetails{
		Member:        member,
		ActiveBorrows: active,
		History:       history,
		Totals:        totals,
	})
}
