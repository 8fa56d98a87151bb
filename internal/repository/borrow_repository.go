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

// BorrowRepo provides data access to the borrow_records ledger.  Rows
// are created by the borrow engine and flipped to RETURNED by the return
// engine; nothing ever deletes them.  All timestamp fields are stored in
// UTC.
type BorrowRepo struct {
	db *sql.DB
}

// NewBorrowRepo returns a new BorrowRepo bound to the given database.
func NewBorrowRepo(db *sql.DB) *BorrowRepo { return &BorrowRepo{db: db} }

// DB exposes the underlying handle so the borrow engine can open one
// transaction spanning the borrow, book and member repositories.
func (r *BorrowRepo) DB() *sql.DB { return r.db }

// CountActiveTx counts the member's BORROWED records inside tx; the
// engine compares it against the configured borrow limit.
func (r *BorrowRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, memberID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_records WHERE member_id = ? AND status = 'BORROWED'`,
		memberID,
	).Scan(&n)
	return n, err
}

// ActiveExistsTx reports whether the (book, member) pair already has an
// active record.  MySQL has no partial unique indexes, so running this
// check and the subsequent insert inside the transaction that holds the
// book row lock is what enforces the one-active-borrow-per-pair rule.
func (r *BorrowRepo) ActiveExistsTx(ctx context.Context, tx *sql.Tx, bookID, memberID uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM borrow_records WHERE book_id = ? AND member_id = ? AND status = 'BORROWED' LIMIT 1`,
		bookID, memberID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateTx inserts a new BORROWED record within the scope of an existing
// transaction and populates the generated ID.  The caller must commit or
// rollback the transaction.
func (r *BorrowRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec *model.BorrowRecord) error {
	const q = `INSERT INTO borrow_records (book_id, member_id, borrowed_at, due_date, status)
	           VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		rec.BookID, rec.MemberID,
		rec.BorrowedAt.UTC().Format(sqlTimeLayout),
		rec.DueDate.UTC().Format(sqlTimeLayout),
		rec.Status,
	)
	if err != nil {
		return asConstraintViolation(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	return nil
}

const borrowSelect = `SELECT br.id, br.book_id, br.member_id, br.borrowed_at, br.due_date,
	       br.returned_at, br.status, b.title, m.name
	FROM borrow_records br
	JOIN books b ON b.id = br.book_id
	JOIN members m ON m.id = br.member_id`

func scanBorrow(row interface{ Scan(...any) error }) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	var returnedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.BookID, &rec.MemberID, &rec.BorrowedAt, &rec.DueDate,
		&returnedAt, &rec.Status, &rec.BookTitle, &rec.MemberName)
	if err != nil {
		return nil, err
	}
	if returnedAt.Valid {
		t := returnedAt.Time
		rec.ReturnedAt = &t
	}
	return &rec, nil
}

// GetByID returns a single record joined with its book title and member
// name, or ErrBorrowNotFound.
func (r *BorrowRepo) GetByID(ctx context.Context, id uint64) (*model.BorrowRecord, error) {
	rec, err := scanBorrow(r.db.QueryRowContext(ctx, borrowSelect+` WHERE br.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowNotFound
	}
	return rec, err
}

// GetByIDTx is GetByID inside a running transaction, used to shape the
// response of a freshly committed borrow without a second round trip
// after commit.
func (r *BorrowRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.BorrowRecord, error) {
	rec, err := scanBorrow(tx.QueryRowContext(ctx, borrowSelect+` WHERE br.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowNotFound
	}
	return rec, err
}

// GetForUpdateTx fetches a record holding an exclusive row lock.  The
// select deliberately skips the joins: MySQL would otherwise lock the
// joined book and member rows too, and the return engine takes the book
// lock separately in its documented order.
func (r *BorrowRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.BorrowRecord, error) {
	const q = `SELECT id, book_id, member_id, borrowed_at, due_date, returned_at, status
	           FROM borrow_records WHERE id = ? FOR UPDATE`
	var rec model.BorrowRecord
	var returnedAt sql.NullTime
	err := tx.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.BookID, &rec.MemberID,
		&rec.BorrowedAt, &rec.DueDate, &returnedAt, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowNotFound
	}
	if err != nil {
		return nil, err
	}
	if returnedAt.Valid {
		t := returnedAt.Time
		rec.ReturnedAt = &t
	}
	return &rec, nil
}

// MarkReturnedTx flips a record to RETURNED at the given instant.  The
// status guard keeps the transition one-way even if a caller skipped the
// lock-and-check protocol.
func (r *BorrowRepo) MarkReturnedTx(ctx context.Context, tx *sql.Tx, id uint64, returnedAt time.Time) error {
	const q = `UPDATE borrow_records SET status = 'RETURNED', returned_at = ? WHERE id = ? AND status = 'BORROWED'`
	result, err := tx.ExecContext(ctx, q, returnedAt.UTC().Format(sqlTimeLayout), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyReturned
	}
	return nil
}

// BorrowListQuery defines filters and paging for the ledger listing.
type BorrowListQuery struct {
	MemberID *uint64
	Status   string
	Overdue  bool
	Search   string
	Page     pagination.Page
}

// BorrowSortFields enumerates the sortable columns of the listing.
var BorrowSortFields = []string{"borrowed_at", "due_date", "returned_at", "status"}

// List returns one page of borrow records joined with book and member
// names, in the total order (sort field, direction, id tiebreak).  The
// free-text search matches the member name and the book title; overdue
// restricts to active records past their due date.
func (r *BorrowRepo) List(ctx context.Context, q BorrowListQuery) ([]model.BorrowRecord, int, bool, error) {
	where := []string{}
	args := []any{}

	if q.MemberID != nil {
		where = append(where, "br.member_id = ?")
		args = append(args, *q.MemberID)
	}
	if q.Status != "" {
		where = append(where, "br.status = ?")
		args = append(args, q.Status)
	}
	if q.Overdue {
		where = append(where, "br.status = 'BORROWED' AND br.due_date < UTC_TIMESTAMP()")
	}
	if q.Search != "" {
		term := "%" + strings.ToLower(q.Search) + "%"
		where = append(where, "(LOWER(m.name) LIKE ? OR LOWER(b.title) LIKE ?)")
		args = append(args, term, term)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	countSQL := `SELECT COUNT(*)
		FROM borrow_records br
		JOIN books b ON b.id = br.book_id
		JOIN members m ON m.id = br.member_id
		WHERE ` + cond
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, false, err
	}

	pageCond, pageArgs := borrowKeysetPredicate(q.Page, "br.")
	if pageCond != "" {
		cond += " AND " + pageCond
		args = append(args, pageArgs...)
	}

	dataSQL := borrowSelect + ` WHERE ` + cond + ` ORDER BY ` + orderBy(q.Page, "br.") + ` LIMIT ?`
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

	out := make([]model.BorrowRecord, 0, q.Page.Limit)
	for rows.Next() {
		var rec model.BorrowRecord
		var returnedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.BookID, &rec.MemberID, &rec.BorrowedAt, &rec.DueDate,
			&returnedAt, &rec.Status, &rec.BookTitle, &rec.MemberName); err != nil {
			return nil, 0, false, err
		}
		if returnedAt.Valid {
			t := returnedAt.Time
			rec.ReturnedAt = &t
		}
		out = append(out, rec)
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

// borrowKeysetPredicate is keysetPredicate plus handling for the
// nullable returned_at column.  Comparing a DATETIME against the empty
// string evaluates to NULL in MySQL, so a boundary inside the NULL block
// must resume by row id with IS NULL / IS NOT NULL branches.  MySQL
// sorts NULLs before all values ascending and after them descending;
// the branches follow that order.
func borrowKeysetPredicate(p pagination.Page, prefix string) (string, []any) {
	if p.Cursor == nil || p.SortField != "returned_at" {
		return keysetPredicate(p, prefix)
	}
	col := prefix + "returned_at"
	idCol := prefix + "id"
	if !p.Desc {
		if p.Cursor.Null {
			// rest of the NULL block, then every dated row
			return "((" + col + " IS NULL AND " + idCol + " > ?) OR " + col + " IS NOT NULL)",
				[]any{p.Cursor.ID}
		}
		return "(" + col + " > ? OR (" + col + " = ? AND " + idCol + " > ?))",
			[]any{p.Cursor.Value, p.Cursor.Value, p.Cursor.ID}
	}
	if p.Cursor.Null {
		return "(" + col + " IS NULL AND " + idCol + " < ?)", []any{p.Cursor.ID}
	}
	// dated rows first descending; the NULL block follows them
	return "(" + col + " < ? OR (" + col + " = ? AND " + idCol + " < ?) OR " + col + " IS NULL)",
		[]any{p.Cursor.Value, p.Cursor.Value, p.Cursor.ID}
}

// BorrowCursor renders the keyset cursor pinning rec's position in the
// listing order.  A null returned_at is flagged on the cursor instead of
// being rendered as a comparable value.
func BorrowCursor(rec model.BorrowRecord, field string) pagination.Cursor {
	c := pagination.Cursor{Value: BorrowSortValue(rec, field), ID: rec.ID, Sort: field}
	if field == "returned_at" && rec.ReturnedAt == nil {
		c.Null = true
	}
	return c
}

// BorrowSortValue renders the sort-field value of a row for cursors.
// Null returned_at values have no rendering; BorrowCursor marks them on
// the cursor itself.
func BorrowSortValue(rec model.BorrowRecord, field string) string {
	switch field {
	case "due_date":
		return rec.DueDate.UTC().Format(sqlTimeLayout)
	case "returned_at":
		if rec.ReturnedAt == nil {
			return ""
		}
		return rec.ReturnedAt.UTC().Format(sqlTimeLayout)
	case "status":
		return rec.Status
	default:
		return rec.BorrowedAt.UTC().Format(sqlTimeLayout)
	}
}

// HistoryItem is one ledger entry in a book or member detail view.
type HistoryItem struct {
	BorrowID   uint64     `json:"borrow_id"`
	BookID     uint64     `json:"book_id"`
	BookTitle  string     `json:"book_title"`
	MemberID   uint64     `json:"member_id"`
	MemberName string     `json:"member_name"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueDate    time.Time  `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     string     `json:"status"`
}

// History returns a newest-first slice of the ledger filtered by book or
// member (exactly one of bookID/memberID should be non-zero).  Detail
// views page it with plain offsets; depth there is always shallow.
func (r *BorrowRepo) History(ctx context.Context, bookID, memberID uint64, limit, offset int) ([]HistoryItem, error) {
	where := "1=1"
	args := []any{}
	if bookID != 0 {
		where = "br.book_id = ?"
		args = append(args, bookID)
	}
	if memberID != 0 {
		where = "br.member_id = ?"
		args = append(args, memberID)
	}
	q := `SELECT br.id, b.id, b.title, m.id, m.name, br.borrowed_at, br.due_date, br.returned_at, br.status
	      FROM borrow_records br
	      JOIN books b ON b.id = br.book_id
	      JOIN members m ON m.id = br.member_id
	      WHERE ` + where + `
	      ORDER BY br.borrowed_at DESC, br.id DESC
	      LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]HistoryItem, 0, limit)
	for rows.Next() {
		var h HistoryItem
		var returnedAt sql.NullTime
		if err := rows.Scan(&h.BorrowID, &h.BookID, &h.BookTitle, &h.MemberID, &h.MemberName,
			&h.BorrowedAt, &h.DueDate, &returnedAt, &h.Status); err != nil {
			return nil, err
		}
		if returnedAt.Valid {
			t := returnedAt.Time
			h.ReturnedAt = &t
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
