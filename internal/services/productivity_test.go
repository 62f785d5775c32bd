package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tempo-backend/internal/models"
	"tempo-backend/internal/productivity"
)

type stubRows struct {
	rows     []productivity.SessionRow
	err      error
	calls    int
	from, to time.Time
}

func (s *stubRows) ListSessionRows(_ context.Context, _ int64, from, to time.Time) ([]productivity.SessionRow, error) {
	s.calls++
	s.from, s.to = from, to
	return s.rows, s.err
}

type mapCache struct {
	data    map[string][]byte
	version int64
	readErr error
	// beforeSet runs between the scan and the write-back.
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) key(version int64, name string) string {
	return fmt.Sprintf("v%d:%s", version, name)
}

func (c *mapCache) Get(_ context.Context, _ int64, name string) ([]byte, int64, bool, error) {
	if c.readErr != nil {
		return nil, 0, false, c.readErr
	}
	d, ok := c.data[c.key(c.version, name)]
	return d, c.version, ok, nil
}

func (c *mapCache) Set(_ context.Context, _, version int64, name string, data []byte) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.data[c.key(version, name)] = data
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, _ int64) error {
	c.version++
	return nil
}

var reportNow = time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)

func newProductivityFixture(rows *stubRows, cache reportCache) (*ProductivityService, *memStore) {
	store := newMemStore()
	svc := NewProductivityService(rows, store, store, cache, time.UTC).
		WithClock(func() time.Time { return reportNow })
	return svc, store
}

func TestProductivity_DailyDefaultsToLastYear(t *testing.T) {
	rows := &stubRows{rows: []productivity.SessionRow{
		{Item: models.ItemRef{Kind: models.KindTask, ID: 1}, StartTime: reportNow.Add(-time.Hour), PomodoroCycles: 4, WorkDuration: 14400, BreakDuration: 1800, ItemCompleted: true},
	}}
	svc, _ := newProductivityFixture(rows, nil)

	report, err := svc.Daily(context.Background(), owner, "", "")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}

	if !rows.from.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) || !rows.to.Equal(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected query window %v - %v", rows.from, rows.to)
	}
	if report.StartDate != "2025-03-15" || report.EndDate != "2026-03-15" {
		t.Errorf("unexpected range %s - %s", report.StartDate, report.EndDate)
	}
	if len(report.DailyData) != 1 || report.DailyData[0].EfficiencyScore != 3.47 {
		t.Errorf("unexpected daily data %+v", report.DailyData)
	}
}

func TestProductivity_WeeklyIsDense(t *testing.T) {
	svc, _ := newProductivityFixture(&stubRows{}, nil)

	report, err := svc.Weekly(context.Background(), owner, "", "")
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(report.Periods) != 7 {
		t.Fatalf("expected 7 days, got %d", len(report.Periods))
	}
	if report.Periods[0].Period != "2026-03-09" || report.Periods[6].Period != "2026-03-15" {
		t.Errorf("unexpected periods %s .. %s", report.Periods[0].Period, report.Periods[6].Period)
	}
}

func TestProductivity_MonthlyGroupsByISOWeek(t *testing.T) {
	svc, _ := newProductivityFixture(&stubRows{}, nil)

	report, err := svc.Monthly(context.Background(), owner, "", "")
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if report.Granularity != productivity.Week {
		t.Errorf("expected week granularity, got %s", report.Granularity)
	}
	if len(report.Periods) != 5 {
		t.Fatalf("expected 5 weeks between 2026-02-15 and 2026-03-15, got %d", len(report.Periods))
	}
	if report.Periods[0].Period != "2026-W07" {
		t.Errorf("expected first week 2026-W07, got %s", report.Periods[0].Period)
	}
}

func TestProductivity_ReportByMonth(t *testing.T) {
	rows := &stubRows{rows: []productivity.SessionRow{
		{Item: models.ItemRef{Kind: models.KindTask, ID: 1}, StartTime: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), WorkDuration: 3600},
		{Item: models.ItemRef{Kind: models.KindTask, ID: 2}, StartTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), WorkDuration: 1800},
	}}
	svc, _ := newProductivityFixture(rows, nil)

	report, series, err := svc.Report(context.Background(), owner, "2026-01-01", "2026-03-31")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(series.Buckets) != 2 || len(report.Periods) != 2 {
		t.Fatalf("expected 2 months with data, got %d", len(report.Periods))
	}
	if report.Periods[0].Period != "2026-01" || report.Periods[1].Period != "2026-03" {
		t.Errorf("unexpected months %+v", report.Periods)
	}
	if report.GeneratedAt == nil || !report.GeneratedAt.Equal(reportNow) {
		t.Errorf("expected generated_at %v, got %v", reportNow, report.GeneratedAt)
	}
}

func TestProductivity_InvalidDates(t *testing.T) {
	svc, _ := newProductivityFixture(&stubRows{}, nil)

	_, err := svc.Daily(context.Background(), owner, "yesterday", "")

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["date_range"]; !ok {
		t.Errorf("expected date_range field, got %v", ve.Fields)
	}
}

func TestProductivity_StorageFailure(t *testing.T) {
	svc, _ := newProductivityFixture(&stubRows{err: errors.New("timeout")}, nil)

	_, err := svc.Weekly(context.Background(), owner, "", "")

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestProductivity_UsesCache(t *testing.T) {
	rows := &stubRows{rows: []productivity.SessionRow{
		{Item: models.ItemRef{Kind: models.KindTask, ID: 1}, StartTime: reportNow.Add(-time.Hour), WorkDuration: 60},
	}}
	cache := newMapCache()
	svc, _ := newProductivityFixture(rows, cache)
	ctx := context.Background()

	first, err := svc.Daily(ctx, owner, "", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Daily(ctx, owner, "", "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if rows.calls != 1 {
		t.Fatalf("expected one storage read, got %d", rows.calls)
	}
	if second.Metrics.TotalWorkDuration != first.Metrics.TotalWorkDuration || len(second.DailyData) != 1 {
		t.Errorf("cached report differs: %+v vs %+v", second, first)
	}
	if second.DailyData[0].Day != first.DailyData[0].Day {
		t.Errorf("cached day key %s, expected %s", second.DailyData[0].Day, first.DailyData[0].Day)
	}

	if _, err := svc.Weekly(ctx, owner, "", ""); err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if rows.calls != 2 {
		t.Fatalf("a different view must not share the cache entry, got %d reads", rows.calls)
	}
}

func TestProductivity_InvalidationDuringScanIsNotServed(t *testing.T) {
	rows := &stubRows{rows: []productivity.SessionRow{
		{Item: models.ItemRef{Kind: models.KindTask, ID: 1}, StartTime: reportNow.Add(-time.Hour), WorkDuration: 60},
	}}
	cache := newMapCache()
	ctx := context.Background()
	// A timer event is delivered while the first report is being computed.
	cache.beforeSet = func() {
		cache.beforeSet = nil
		cache.Invalidate(ctx, owner)
	}
	svc, _ := newProductivityFixture(rows, cache)

	if _, err := svc.Daily(ctx, owner, "", ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, ok := cache.data[cache.key(0, cacheName(productivity.DefaultRange(reportNow, time.UTC), productivity.Day, false))]; !ok {
		t.Fatal("expected the report stored under the version it was read at")
	}

	rows.rows = append(rows.rows, productivity.SessionRow{
		Item: models.ItemRef{Kind: models.KindTask, ID: 1}, StartTime: reportNow.Add(-30 * time.Minute), WorkDuration: 120,
	})
	report, err := svc.Daily(ctx, owner, "", "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if rows.calls != 2 {
		t.Fatalf("expected the stale entry to be skipped, got %d storage reads", rows.calls)
	}
	if report.Metrics.TotalWorkDuration != 180 {
		t.Errorf("expected fresh work total 180, got %d", report.Metrics.TotalWorkDuration)
	}
}

func TestProductivity_RangeTooWide(t *testing.T) {
	rows := &stubRows{}
	svc, _ := newProductivityFixture(rows, nil)

	_, err := svc.Weekly(context.Background(), owner, "0001-01-01", "9999-12-31")

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["date_range"]; !ok {
		t.Errorf("expected date_range field, got %v", ve.Fields)
	}
	if rows.calls != 0 {
		t.Errorf("expected no storage read, got %d", rows.calls)
	}
}

func TestProductivity_CacheFailureFallsThrough(t *testing.T) {
	rows := &stubRows{}
	cache := newMapCache()
	cache.readErr = errors.New("redis down")
	svc, _ := newProductivityFixture(rows, cache)

	if _, err := svc.Daily(context.Background(), owner, "", ""); err != nil {
		t.Fatalf("expected the report despite the cache failure, got %v", err)
	}
	if rows.calls != 1 {
		t.Fatalf("expected a storage read, got %d", rows.calls)
	}
}

func TestProductivity_ItemStats(t *testing.T) {
	svc, store := newProductivityFixture(&stubRows{}, nil)
	ref := store.addTask(5, owner, models.StatusCompleted)
	estimate := 60
	store.items[ref].EstimatedDuration = &estimate
	end := reportNow
	store.sessions = append(store.sessions,
		&models.TimerSession{ID: 1, TaskID: 5, UserID: owner, StartTime: reportNow.Add(-2 * time.Hour), EndTime: &end, WorkDuration: 1800, PomodoroCycles: 1},
		&models.TimerSession{ID: 2, TaskID: 5, UserID: owner, StartTime: reportNow.Add(-time.Hour), EndTime: &end, WorkDuration: 900},
	)

	report, err := svc.ItemStats(context.Background(), ref, owner)
	if err != nil {
		t.Fatalf("item stats: %v", err)
	}
	if report.Stats.Sessions != 2 || report.Stats.WorkDuration != 2700 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
	if report.Stats.EfficiencyPercent != 75 {
		t.Errorf("expected 75%%, got %v", report.Stats.EfficiencyPercent)
	}

	_, err = svc.ItemStats(context.Background(), ref, owner+1)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for a foreign item, got %v", err)
	}
}
