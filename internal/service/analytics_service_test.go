package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citylib/library-service/internal/repository"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFillSeriesZeroFillsGaps(t *testing.T) {
	counts := map[string]int{
		"2026-08-01": 3,
		"2026-08-03": 1,
	}
	got := fillSeries(day("2026-08-01"), day("2026-08-04"), counts)
	assert.Equal(t, []SeriesPoint{
		{Date: "2026-08-01", Count: 3},
		{Date: "2026-08-02", Count: 0},
		{Date: "2026-08-03", Count: 1},
		{Date: "2026-08-04", Count: 0},
	}, got)
}

func TestFillSeriesSingleDay(t *testing.T) {
	got := fillSeries(day("2026-08-01"), day("2026-08-01"), nil)
	assert.Equal(t, []SeriesPoint{{Date: "2026-08-01", Count: 0}}, got)
}

func TestForecastAveragesTrailingWeek(t *testing.T) {
	series := []SeriesPoint{
		{Date: "2026-08-01", Count: 100}, // outside the trailing window
		{Date: "2026-08-02", Count: 2},
		{Date: "2026-08-03", Count: 4},
		{Date: "2026-08-04", Count: 3},
		{Date: "2026-08-05", Count: 0},
		{Date: "2026-08-06", Count: 5},
		{Date: "2026-08-07", Count: 4},
		{Date: "2026-08-08", Count: 3},
	}
	f := forecastFrom(series)
	// trailing 7 sum = 21, average 3
	assert.Equal(t, 3, f.ProjectedDailyBorrows)
	assert.Equal(t, 21, f.ProjectedWeeklyTotal)
}

func TestForecastShortSeriesUsesWhatExists(t *testing.T) {
	f := forecastFrom([]SeriesPoint{{Count: 5}, {Count: 6}})
	// average 5.5 rounds up
	assert.Equal(t, 6, f.ProjectedDailyBorrows)
	assert.Equal(t, 42, f.ProjectedWeeklyTotal)
}

func TestForecastEmptySeries(t *testing.T) {
	assert.Equal(t, Forecast{}, forecastFrom(nil))
}

func TestNormalizeRangeDefaultsToTrailing30Days(t *testing.T) {
	s := &AnalyticsService{now: func() time.Time { return day("2026-08-31") }}
	from, to := s.normalizeRange(time.Time{}, time.Time{})
	assert.Equal(t, "2026-08-02", from.Format("2006-01-02"))
	assert.Equal(t, "2026-08-31", to.Format("2006-01-02"))
}

func TestNormalizeRangeSwapsInvertedBounds(t *testing.T) {
	s := &AnalyticsService{now: func() time.Time { return day("2026-08-31") }}
	from, to := s.normalizeRange(day("2026-08-20"), day("2026-08-10"))
	assert.True(t, from.Before(to))
}

func TestSummaryAssemblesAllSections(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewAnalyticsService(repository.NewAnalyticsRepo(db), 0.25)
	s.now = func() time.Time { return day("2026-08-07") }

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"books", "active", "overdue", "capacity"}).AddRow(50, 20, 4, 100))
	mock.ExpectQuery("FROM borrow_records").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c"}).AddRow(2, 1, 1))
	mock.ExpectQuery("FROM books").WithArgs(0.25).
		WillReturnRows(sqlmock.NewRows([]string{"low", "never", "unavailable"}).AddRow(3, 7, 1))
	mock.ExpectQuery("JOIN borrow_records br ON br.book_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "borrow_count"}).AddRow(7, "Dune", 12))
	mock.ExpectQuery("JOIN borrow_records br ON br.member_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "borrow_count"}).AddRow(3, "Ada Lovelace", 9))
	mock.ExpectQuery("GROUP BY DATE").
		WillReturnRows(sqlmock.NewRows([]string{"day", "n"}).
			AddRow(day("2026-08-06"), 2).
			AddRow(day("2026-08-07"), 5))
	mock.ExpectQuery("GROUP BY DATE").
		WillReturnRows(sqlmock.NewRows([]string{"day", "n"}).
			AddRow(day("2026-08-07"), 3))

	sum, err := s.Summary(context.Background(), day("2026-08-01"), day("2026-08-07"))
	require.NoError(t, err)

	assert.Equal(t, "2026-08-01", sum.RangeStart)
	assert.Equal(t, "2026-08-07", sum.RangeEnd)
	assert.Equal(t, 20, sum.Overview.ActiveBorrows)
	assert.Equal(t, 20.0, sum.Overview.UtilizationRate)
	assert.Equal(t, 7, sum.Inventory.NeverBorrowedBooks)
	require.Len(t, sum.TopBooks, 1)
	assert.Equal(t, "Dune", sum.TopBooks[0].Title)
	require.Len(t, sum.DailyBorrows, 7)
	assert.Equal(t, 0, sum.DailyBorrows[0].Count)
	assert.Equal(t, 5, sum.DailyBorrows[6].Count)
	// 7 borrows over 7 days averages to 1 per day
	assert.Equal(t, 1, sum.Forecast.ProjectedDailyBorrows)
	assert.Equal(t, 7, sum.Forecast.ProjectedWeeklyTotal)
	require.Len(t, sum.DailyActiveMembers, 7)
	assert.Equal(t, 3, sum.DailyActiveMembers[6].Count)

	assert.NoError(t, mock.ExpectationsWereMet())
}
