package service

import (
	"context"
	"math"
	"time"

	"github.com/citylib/library-service/internal/repository"
)

// AnalyticsService assembles the read-only reporting summary.  It owns
// the date-range defaulting, the zero-fill of the daily series and the
// trailing-average forecast; all heavy lifting stays in SQL inside the
// analytics repository.
type AnalyticsService struct {
	repo          *repository.AnalyticsRepo
	lowStockRatio float64
	now           func() time.Time
}

// NewAnalyticsService wires the reporting layer.  lowStockRatio is the
// available/total fraction below which a book counts as low stock.
func NewAnalyticsService(repo *repository.AnalyticsRepo, lowStockRatio float64) *AnalyticsService {
	return &AnalyticsService{
		repo:          repo,
		lowStockRatio: lowStockRatio,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SeriesPoint is one day of a daily time series; zero-activity days are
// present with Count 0.
type SeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Forecast extrapolates the trailing seven days of borrow activity over
// the next seven.
type Forecast struct {
	ProjectedDailyBorrows int `json:"projected_daily_borrows"`
	ProjectedWeeklyTotal  int `json:"projected_weekly_total"`
}

// Summary is the full analytics payload served in one response.
type Summary struct {
	RangeStart         string                      `json:"range_start"`
	RangeEnd           string                      `json:"range_end"`
	Overview           repository.Overview         `json:"overview"`
	Overdue            repository.OverdueBreakdown `json:"overdue"`
	Inventory          repository.InventoryHealth  `json:"inventory"`
	TopBooks           []repository.TopBook        `json:"top_books"`
	TopMembers         []repository.TopMember      `json:"top_members"`
	DailyBorrows       []SeriesPoint               `json:"daily_borrows"`
	DailyActiveMembers []SeriesPoint               `json:"daily_active_members"`
	Forecast           Forecast                    `json:"forecast"`
}

// leaderboardSize caps the top-books and top-members lists.
const leaderboardSize = 10

// Summary builds the full report for the given range.  A zero from/to
// defaults to the trailing 30 days ending today.
func (s *AnalyticsService) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	from, to = s.normalizeRange(from, to)

	overview, err := s.repo.Overview(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.repo.OverdueBreakdown(ctx)
	if err != nil {
		return nil, err
	}
	inventory, err := s.repo.InventoryHealth(ctx, s.lowStockRatio)
	if err != nil {
		return nil, err
	}
	topBooks, err := s.repo.TopBooks(ctx, from, to, leaderboardSize)
	if err != nil {
		return nil, err
	}
	topMembers, err := s.repo.TopMembers(ctx, from, to, leaderboardSize)
	if err != nil {
		return nil, err
	}
	borrowsByDay, err := s.repo.DailyBorrowCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	membersByDay, err := s.repo.DailyActiveMembers(ctx, from, to)
	if err != nil {
		return nil, err
	}

	dailyBorrows := fillSeries(from, to, borrowsByDay)
	return &Summary{
		RangeStart:         from.Format("2006-01-02"),
		RangeEnd:           to.Format("2006-01-02"),
		Overview:           overview,
		Overdue:            overdue,
		Inventory:          inventory,
		TopBooks:           topBooks,
		TopMembers:         topMembers,
		DailyBorrows:       dailyBorrows,
		DailyActiveMembers: fillSeries(from, to, membersByDay),
		Forecast:           forecastFrom(dailyBorrows),
	}, nil
}

// normalizeRange defaults a missing range to the trailing 30 days and
// swaps inverted bounds.
func (s *AnalyticsService) normalizeRange(from, to time.Time) (time.Time, time.Time) {
	today := s.now().Truncate(24 * time.Hour)
	if to.IsZero() {
		to = today
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -29)
	}
	if from.After(to) {
		from, to = to, from
	}
	return from, to
}

// fillSeries expands a sparse day→count map into a dense, ordered slice
// covering every day of [from, to].
func fillSeries(from, to time.Time, counts map[string]int) []SeriesPoint {
	days := int(to.Sub(from).Hours()/24) + 1
	out := make([]SeriesPoint, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		out = append(out, SeriesPoint{Date: key, Count: counts[key]})
	}
	return out
}

// forecastFrom averages the trailing seven points of the dense borrow
// series and projects that rate over the next week.
func forecastFrom(series []SeriesPoint) Forecast {
	window := series
	if len(window) > 7 {
		window = window[len(window)-7:]
	}
	if len(window) == 0 {
		return Forecast{}
	}
	total := 0
	for _, p := range window {
		total += p.Count
	}
	daily := int(math.Round(float64(total) / float64(len(window))))
	return Forecast{
		ProjectedDailyBorrows: daily,
		ProjectedWeeklyTotal:  daily * 7,
	}
}
