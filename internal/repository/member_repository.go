package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/citylib/library-service/internal/model"
	"github.com/citylib/library-service/internal/pagination"
)

// MemberRepo provides data access to the members table.
type MemberRepo struct {
	db *sql.DB
}

// NewMemberRepo returns a new MemberRepo bound to the given database.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

const memberColumns = `id, name, email, phone, created_at, updated_at`

func scanMember(row interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var phone sql.NullString
	err := row.Scan(&m.ID, &m.Name, &m.Email, &phone, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if phone.Valid {
		p := phone.String
		m.Phone = &p
	}
	return &m, nil
}

// Create registers a new member.  A duplicate email surfaces as
// ErrConstraintViolation.
func (r *MemberRepo) Create(ctx context.Context, m *model.Member) error {
	const q = `INSERT INTO members (name, email, phone) VALUES (?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, m.Name, m.Email, m.Phone)
	if err != nil {
		return asConstraintViolation(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	created, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *created
	return nil
}

// GetByID returns a single member or ErrMemberNotFound.
func (r *MemberRepo) GetByID(ctx context.Context, id uint64) (*model.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	return m, err
}

// Update applies a profile edit (name, email, phone).
func (r *MemberRepo) Update(ctx context.Context, m *model.Member) error {
	const q = `UPDATE members SET name = ?, email = ?, phone = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, m.Name, m.Email, m.Phone, m.ID); err != nil {
		return asConstraintViolation(err)
	}
	updated, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *updated
	return nil
}

// ExistsTx checks membership inside a running transaction; the borrow
// engine calls it before creating a record.
func (r *MemberRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM members WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemberListQuery defines filters and paging for the member listing.
type MemberListQuery struct {
	Search string
	Page   pagination.Page
}

// MemberSortFields enumerates the sortable columns of the listing.
var MemberSortFields = []string{"name", "email", "created_at"}

// List returns one page of members in the total order (sort field,
// direction, id tiebreak), fetching limit+1 rows for has_more.  The
// free-text search matches name and email.
func (r *MemberRepo) List(ctx context.Context, q MemberListQuery) ([]model.Member, int, bool, error) {
	where := []string{}
	args := []any{}

	if q.Search != "" {
		term := "%" + strings.ToLower(q.Search) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(email) LIKE ?)")
		args = append(args, term, term)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, false, err
	}

	pageCond, pageArgs := keysetPredicate(q.Page, "")
	if pageCond != "" {
		cond += " AND " + pageCond
		args = append(args, pageArgs...)
	}

	dataSQL := `SELECT ` + memberColumns + ` FROM members WHERE ` + cond +
		` ORDER BY ` + orderBy(q.Page, "") + ` LIMIT ?`
	args = append(args, q.Page.Limit+1)
	if q.Page.Cursor == nil && q.Page.Offset > 0 {
		dataSQL += ` OFFSET ?`
		args = append(args, q.Page.Offset)
	}

	rows, err := r.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, false, err
	}
	defer rows.Close()

	out := make([]model.Member, 0, q.Page.Limit)
	for rows.Next() {
		var m model.Member
		var phone sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &phone, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, false, err
		}
		if phone.Valid {
			p := phone.String
			m.Phone = &p
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}

	hasMore := len(out) > q.Page.Limit
	if hasMore {
		out = out[:q.Page.Limit]
	}
	return out, total, hasMore, nil
}

// MemberSortValue renders the sort-field value of a row for cursors.
func MemberSortValue(m model.Member, field string) string {
	switch field {
	case "name":
		return m.Name
	case "email":
		return m.Email
	default:
		return m.CreatedAt.UTC().Format(sqlTimeLayout)
	}
}

// ActiveBorrow describes one outstanding loan of a member, flagged when
// it is past due.
type ActiveBorrow struct {
	BorrowID   uint64    `json:"borrow_id"`
	BookID     uint64    `json:"book_id"`
	BookTitle  string    `json:"book_title"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueDate    time.Time `json:"due_date"`
	Overdue    bool      `json:"overdue"`
}

// ActiveBorrows lists the member's outstanding loans, due soonest first.
func (r *MemberRepo) ActiveBorrows(ctx context.Context, memberID uint64) ([]ActiveBorrow, error) {
	const q = `SELECT br.id, b.id, b.title, br.borrowed_at, br.due_date
	           FROM borrow_records br
	           JOIN books b ON b.id = br.book_id
	           WHERE br.member_id = ? AND br.status = 'BORROWED'
	           ORDER BY br.due_date ASC, br.id ASC`
	rows, err := r.db.QueryContext(ctx, q, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	now := time.Now().UTC()
	out := make([]ActiveBorrow, 0)
	for rows.Next() {
		var ab ActiveBorrow
		if err := rows.Scan(&ab.BorrowID, &ab.BookID, &ab.BookTitle, &ab.BorrowedAt, &ab.DueDate); err != nil {
			return nil, err
		}
		ab.Overdue = now.After(ab.DueDate)
		out = append(out, ab)
	}
	return out, rows.Err()
}

// Totals counts all and active borrows of a member in one round trip.
func (r *MemberRepo) Totals(ctx context.Context, memberID uint64) (BorrowTotals, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'BORROWED' THEN 1 ELSE 0 END), 0)
	           FROM borrow_records WHERE member_id = ?`
	var t BorrowTotals
	err := r.db.QueryRowContext(ctx, q, memberID).Scan(&t.TotalBorrows, &t.ActiveBorrows)
	return t, err
}
