package repository

import (
	"context"
	"database/sql"
	"math"
	"time"
)

// AnalyticsRepo serves the read-only aggregation queries behind the
// analytics endpoints.  Every capability is a single SQL round trip with
// the partitioning done by conditional aggregation, never by iterating
// rows application-side.
type AnalyticsRepo struct {
	db *sql.DB
}

// NewAnalyticsRepo returns a new AnalyticsRepo bound to the given
// database.
func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

// dateLayout renders DATE values for range arguments and series keys.
const dateLayout = "2006-01-02"

// Overview is the headline snapshot: catalog size, outstanding and
// overdue loans, and how much of the total capacity is out on loan.
type Overview struct {
	TotalBooks      int     `json:"total_books"`
	ActiveBorrows   int     `json:"active_borrows"`
	OverdueBorrows  int     `json:"overdue_borrows"`
	UtilizationRate float64 `json:"utilization_rate"`
}

// Overview computes the snapshot in one statement of scalar subqueries.
func (r *AnalyticsRepo) Overview(ctx context.Context) (Overview, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM books),
		(SELECT COUNT(*) FROM borrow_records WHERE status = 'BORROWED'),
		(SELECT COUNT(*) FROM borrow_records WHERE status = 'BORROWED' AND due_date < UTC_TIMESTAMP()),
		(SELECT COALESCE(SUM(total_copies), 0) FROM books)`
	var o Overview
	var capacity int
	if err := r.db.QueryRowContext(ctx, q).Scan(&o.TotalBooks, &o.ActiveBorrows, &o.OverdueBorrows, &capacity); err != nil {
		return Overview{}, err
	}
	if capacity > 0 {
		o.UtilizationRate = math.Round(float64(o.ActiveBorrows)/float64(capacity)*100*100) / 100
	}
	return o, nil
}

// OverdueBreakdown buckets the overdue loans by how many days they are
// past due.
type OverdueBreakdown struct {
	Days1To3  int `json:"days_1_3"`
	Days4To7  int `json:"days_4_7"`
	Days7Plus int `json:"days_7_plus"`
}

// OverdueBreakdown partitions overdue borrows into day buckets with
// conditional sums over DATEDIFF(now, due_date).
func (r *AnalyticsRepo) OverdueBreakdown(ctx context.Context) (OverdueBreakdown, error) {
	const q = `SELECT
		COALESCE(SUM(CASE WHEN DATEDIFF(UTC_TIMESTAMP(), due_date) BETWEEN 1 AND 3 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN DATEDIFF(UTC_TIMESTAMP(), due_date) BETWEEN 4 AND 7 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN DATEDIFF(UTC_TIMESTAMP(), due_date) > 7 THEN 1 ELSE 0 END), 0)
	FROM borrow_records
	WHERE status = 'BORROWED' AND due_date < UTC_TIMESTAMP()`
	var b OverdueBreakdown
	err := r.db.QueryRowContext(ctx, q).Scan(&b.Days1To3, &b.Days4To7, &b.Days7Plus)
	return b, err
}

// InventoryHealth counts the problem corners of the catalog.
type InventoryHealth struct {
	LowStockBooks         int `json:"low_stock_books"`
	NeverBorrowedBooks    int `json:"never_borrowed_books"`
	FullyUnavailableBooks int `json:"fully_unavailable_books"`
}

// InventoryHealth combines the three predicates in one pass over books.
// Low stock means available has fallen below the given fraction of
// total; never borrowed is an anti-join on the ledger.
func (r *AnalyticsRepo) InventoryHealth(ctx context.Context, lowStockRatio float64) (InventoryHealth, error) {
	const q = `SELECT
		COALESCE(SUM(CASE WHEN available_copies < total_copies * ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT EXISTS (
			SELECT 1 FROM borrow_records br WHERE br.book_id = books.id
		) THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN available_copies = 0 THEN 1 ELSE 0 END), 0)
	FROM books`
	var h InventoryHealth
	err := r.db.QueryRowContext(ctx, q, lowStockRatio).Scan(&h.LowStockBooks, &h.NeverBorrowedBooks, &h.FullyUnavailableBooks)
	return h, err
}

// TopBook is one leaderboard row of the most borrowed titles.
type TopBook struct {
	BookID      uint64 `json:"book_id"`
	Title       string `json:"title"`
	BorrowCount int    `json:"borrow_count"`
}

// TopBooks returns the n most borrowed books within the date range,
// ties broken by book id for a deterministic order.
func (r *AnalyticsRepo) TopBooks(ctx context.Context, from, to time.Time, n int) ([]TopBook, error) {
	const q = `SELECT b.id, b.title, COUNT(br.id) AS borrow_count
	           FROM books b
	           JOIN borrow_records br ON br.book_id = b.id
	           WHERE DATE(br.borrowed_at) >= ? AND DATE(br.borrowed_at) <= ?
	           GROUP BY b.id, b.title
	           ORDER BY borrow_count DESC, b.id ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, from.Format(dateLayout), to.Format(dateLayout), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TopBook, 0, n)
	for rows.Next() {
		var t TopBook
		if err := rows.Scan(&t.BookID, &t.Title, &t.BorrowCount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TopMember is one leaderboard row of the most active members.
type TopMember struct {
	MemberID    uint64 `json:"member_id"`
	Name        string `json:"name"`
	BorrowCount int    `json:"borrow_count"`
}

// TopMembers returns the n most active members within the date range,
// ties broken by member id.
func (r *AnalyticsRepo) TopMembers(ctx context.Context, from, to time.Time, n int) ([]TopMember, error) {
	const q = `SELECT m.id, m.name, COUNT(br.id) AS borrow_count
	           FROM members m
	           JOIN borrow_records br ON br.member_id = m.id
	           WHERE DATE(br.borrowed_at) >= ? AND DATE(br.borrowed_at) <= ?
	           GROUP BY m.id, m.name
	           ORDER BY borrow_count DESC, m.id ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, from.Format(dateLayout), to.Format(dateLayout), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TopMember, 0, n)
	for rows.Next() {
		var t TopMember
		if err := rows.Scan(&t.MemberID, &t.Name, &t.BorrowCount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DailyBorrowCounts returns borrow counts per day within the range,
// keyed by "2006-01-02".  Days without activity are absent; the service
// layer zero-fills them.
func (r *AnalyticsRepo) DailyBorrowCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	const q = `SELECT DATE(borrowed_at), COUNT(*)
	           FROM borrow_records
	           WHERE DATE(borrowed_at) >= ? AND DATE(borrowed_at) <= ?
	           GROUP BY DATE(borrowed_at)`
	return r.dailyCounts(ctx, q, from, to)
}

// DailyActiveMembers returns the number of distinct members who
// borrowed per day within the range.
func (r *AnalyticsRepo) DailyActiveMembers(ctx context.Context, from, to time.Time) (map[string]int, error) {
	const q = `SELECT DATE(borrowed_at), COUNT(DISTINCT member_id)
	           FROM borrow_records
	           WHERE DATE(borrowed_at) >= ? AND DATE(borrowed_at) <= ?
	           GROUP BY DATE(borrowed_at)`
	return r.dailyCounts(ctx, q, from, to)
}

func (r *AnalyticsRepo) dailyCounts(ctx context.Context, q string, from, to time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, q, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out[day.Format(dateLayout)] = n
	}
	return out, rows.Err()
}
