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

// BookRepo provides data access to the books table.  Inventory counters
// are only ever adjusted through the *Tx methods so that every mutation
// happens under the row lock taken by the borrow/return engine.
type BookRepo struct {
	db *sql.DB
}

// NewBookRepo returns a new BookRepo bound to the given database.
func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

const bookColumns = `id, title, author, isbn, total_copies, available_copies, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (*model.Book, error) {
	var b model.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new catalog entry and populates the generated ID and
// timestamps on the provided record.  A duplicate ISBN surfaces as
// ErrConstraintViolation.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	const q = `INSERT INTO books (title, author, isbn, total_copies, available_copies) VALUES (?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies)
	if err != nil {
		return asConstraintViolation(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults
	created, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *created
	return nil
}

// GetByID returns a single book or ErrBookNotFound.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	return b, err
}

// Update applies a direct catalog edit.  AvailableCopies is clamped to
// the new TotalCopies; the borrow engine remains the only writer that
// moves available relative to total during lending.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	const q = `UPDATE books
	           SET title = ?, author = ?, isbn = ?, total_copies = ?,
	               available_copies = LEAST(?, total_copies)
	           WHERE id = ?`
	result, err := r.db.ExecContext(ctx, q, b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies, b.ID)
	if err != nil {
		return asConstraintViolation(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// RowsAffected is also zero for no-op updates; distinguish a
		// missing row with a lookup.
		if _, getErr := r.GetByID(ctx, b.ID); getErr != nil {
			return getErr
		}
	}
	updated, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *updated
	return nil
}

// GetForUpdateTx fetches a book inside tx holding an exclusive row lock.
// Concurrent borrowers of the same book block here until the owning
// transaction commits or rolls back; other books are unaffected.
func (r *BookRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Book, error) {
	b, err := scanBook(tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	return b, err
}

// DecrementAvailableTx takes one copy off the shelf.  The caller must
// already hold the row lock and have verified available_copies > 0; the
// WHERE guard is the last line of defense for the CHECK constraint.
func (r *BookRepo) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE books SET available_copies = available_copies - 1 WHERE id = ? AND available_copies > 0`
	result, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInventoryUnavailable
	}
	return nil
}

// IncrementAvailableTx puts one copy back, clamped so available never
// exceeds total even if the ledger and the counter ever disagree.
func (r *BookRepo) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE books SET available_copies = LEAST(available_copies + 1, total_copies) WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, id)
	return err
}

// BookListQuery defines filters and paging for the catalog listing.
type BookListQuery struct {
	Search string
	Page   pagination.Page
}

// BookSortFields enumerates the sortable columns of the listing.
var BookSortFields = []string{"title", "author", "isbn", "created_at"}

// List returns one page of books in the total order (sort field,
// direction, id tiebreak).  It fetches limit+1 rows to learn whether a
// further page exists, and reports the total of all rows matching the
// filters.  The free-text search matches title, author and isbn.
func (r *BookRepo) List(ctx context.Context, q BookListQuery) ([]model.Book, int, bool, error) {
	where := []string{}
	args := []any{}

	if q.Search != "" {
		term := "%" + strings.ToLower(q.Search) + "%"
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(isbn) LIKE ?)")
		args = append(args, term, term, term)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, false, err
	}

	pageCond, pageArgs := keysetPredicate(q.Page, "")
	if pageCond != "" {
		cond += " AND " + pageCond
		args = append(args, pageArgs...)
	}

	dataSQL := `SELECT ` + bookColumns + ` FROM books WHERE ` + cond +
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

	out := make([]model.Book, 0, q.Page.Limit)
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, false, err
		}
		out = append(out, b)
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

// BookSortValue renders the sort-field value of a row the way the keyset
// predicate expects to receive it back in a cursor.
func BookSortValue(b model.Book, field string) string {
	switch field {
	case "title":
		return b.Title
	case "author":
		return b.Author
	case "isbn":
		return b.ISBN
	default:
		return b.CreatedAt.UTC().Format(sqlTimeLayout)
	}
}

// sqlTimeLayout is how DATETIME values are rendered into cursors and
// back into query arguments.
const sqlTimeLayout = "2006-01-02 15:04:05"

// keysetPredicate builds the range predicate resuming after the cursor
// position: field > v OR (field = v AND id > last_id) ascending, with
// both comparisons mirrored for descending order.  prefix qualifies the
// column names when the listing joins other tables.
func keysetPredicate(p pagination.Page, prefix string) (string, []any) {
	if p.Cursor == nil {
		return "", nil
	}
	col := prefix + p.SortField
	idCol := prefix + "id"
	op := ">"
	if p.Desc {
		op = "<"
	}
	cond := "(" + col + " " + op + " ? OR (" + col + " = ? AND " + idCol + " " + op + " ?))"
	return cond, []any{p.Cursor.Value, p.Cursor.Value, p.Cursor.ID}
}

// orderBy renders the total order of a page: sort column then id, both
// following the requested direction so the keyset predicate and the sort
// agree in either direction.
func orderBy(p pagination.Page, prefix string) string {
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	return prefix + p.SortField + " " + dir + ", " + prefix + "id " + dir
}

// BorrowerInfo describes one member currently holding a copy of a book,
// ordered by soonest due date in detail views.
type BorrowerInfo struct {
	MemberID     uint64    `json:"member_id"`
	Name         string    `json:"name"`
	BorrowID     uint64    `json:"borrow_id"`
	BorrowedAt   time.Time `json:"borrowed_at"`
	DueDate      time.Time `json:"due_date"`
	DaysUntilDue int       `json:"days_until_due"`
}

// CurrentBorrowers lists the members with an active borrow of the book,
// due soonest first.
func (r *BookRepo) CurrentBorrowers(ctx context.Context, bookID uint64) ([]BorrowerInfo, error) {
	const q = `SELECT m.id, m.name, br.id, br.borrowed_at, br.due_date
	           FROM borrow_records br
	           JOIN members m ON m.id = br.member_id
	           WHERE br.book_id = ? AND br.status = 'BORROWED'
	           ORDER BY br.due_date ASC, br.id ASC`
	rows, err := r.db.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	now := time.Now().UTC()
	out := make([]BorrowerInfo, 0)
	for rows.Next() {
		var info BorrowerInfo
		if err := rows.Scan(&info.MemberID, &info.Name, &info.BorrowID, &info.BorrowedAt, &info.DueDate); err != nil {
			return nil, err
		}
		info.DaysUntilDue = int(info.DueDate.Sub(now).Hours() / 24)
		out = append(out, info)
	}
	return out, rows.Err()
}

// BorrowTotals summarizes the lending activity of a single book or
// member for detail views.
type BorrowTotals struct {
	TotalBorrows  int `json:"total_borrows"`
	ActiveBorrows int `json:"active_borrows"`
}

// Totals counts all and active borrows of a book in one round trip.
func (r *BookRepo) Totals(ctx context.Context, bookID uint64) (BorrowTotals, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'BORROWED' THEN 1 ELSE 0 END), 0)
	           FROM borrow_records WHERE book_id = ?`
	var t BorrowTotals
	err := r.db.QueryRowContext(ctx, q, bookID).Scan(&t.TotalBorrows, &t.ActiveBorrows)
	return t, err
}
