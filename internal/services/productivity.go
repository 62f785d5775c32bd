package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tempo-backend/internal/models"
	"tempo-backend/internal/productivity"
)

type sessionRowSource interface {
	ListSessionRows(ctx context.Context, userID int64, from, to time.Time) ([]productivity.SessionRow, error)
}

type itemLoader interface {
	Get(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error)
}

type itemTotalsSource interface {
	ItemTotals(ctx context.Context, ref models.ItemRef, userID int64) (models.ItemSessionTotals, error)
}

type reportCache interface {
	Get(ctx context.Context, userID int64, name string) ([]byte, int64, bool, error)
	Set(ctx context.Context, userID, version int64, name string, data []byte) error
}

type ProductivityService struct {
	rows   sessionRowSource
	items  itemLoader
	totals itemTotalsSource
	cache  reportCache
	loc    *time.Location
	now    func() time.Time
}

func NewProductivityService(rows sessionRowSource, items itemLoader, totals itemTotalsSource, cache reportCache, loc *time.Location) *ProductivityService {
	if loc == nil {
		loc = time.UTC
	}
	return &ProductivityService{
		rows:   rows,
		items:  items,
		totals: totals,
		cache:  cache,
		loc:    loc,
		now:    time.Now,
	}
}

func (s *ProductivityService) WithClock(now func() time.Time) *ProductivityService {
	s.now = now
	return s
}

// Daily is the sparse per-day summary over the last year by default.
func (s *ProductivityService) Daily(ctx context.Context, userID int64, start, end string) (*productivity.DailyReport, error) {
	rng, err := s.parseRange(start, end, productivity.DefaultRange(s.now(), s.loc), productivity.Day)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, userID, rng, productivity.Day, false)
	if err != nil {
		return nil, err
	}
	report := productivity.NewDailyReport(series)
	return &report, nil
}

// Weekly has one row per day of the last seven days by default.
func (s *ProductivityService) Weekly(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, error) {
	return s.period(ctx, userID, start, end, productivity.LastDays(s.now(), s.loc, 7), productivity.Day)
}

// Monthly has one row per ISO week of the last month by default.
func (s *ProductivityService) Monthly(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, error) {
	return s.period(ctx, userID, start, end, productivity.LastMonth(s.now(), s.loc), productivity.Week)
}

// Report is the month-by-month export. The series is returned as well for
// callers rendering CSV.
func (s *ProductivityService) Report(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, productivity.Series, error) {
	rng, err := s.parseRange(start, end, productivity.DefaultRange(s.now(), s.loc), productivity.Month)
	if err != nil {
		return nil, productivity.Series{}, err
	}
	series, err := s.series(ctx, userID, rng, productivity.Month, false)
	if err != nil {
		return nil, productivity.Series{}, err
	}
	report := productivity.NewJSONReport(series, s.now())
	return &report, series, nil
}

func (s *ProductivityService) ItemStats(ctx context.Context, ref models.ItemRef, userID int64) (*productivity.ItemStatsReport, error) {
	item, err := s.items.Get(ctx, ref, userID)
	if err != nil {
		return nil, storageErr("load "+string(ref.Kind), err)
	}
	if item == nil {
		return nil, notFound(ref)
	}

	totals, err := s.totals.ItemTotals(ctx, ref, userID)
	if err != nil {
		return nil, storageErr("item totals", err)
	}

	report := productivity.NewItemStatsReport(item, totals)
	return &report, nil
}

func (s *ProductivityService) period(ctx context.Context, userID int64, start, end string, def productivity.DateRange, g productivity.Granularity) (*productivity.PeriodReport, error) {
	rng, err := s.parseRange(start, end, def, g)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, userID, rng, g, true)
	if err != nil {
		return nil, err
	}
	report := productivity.NewPeriodReport(series)
	return &report, nil
}

func (s *ProductivityService) parseRange(start, end string, def productivity.DateRange, g productivity.Granularity) (productivity.DateRange, error) {
	rng, err := productivity.ParseRange(start, end, def, g, s.loc)
	if err != nil {
		return productivity.DateRange{}, &ValidationError{Fields: map[string]string{"date_range": err.Error()}}
	}
	return rng, nil
}

// series aggregates the user's sessions, going through the cache when one is
// configured. Cache failures only cost a database round trip. The result is
// written back under the version read before the scan, so an invalidation
// racing the scan leaves the stale result unreachable.
func (s *ProductivityService) series(ctx context.Context, userID int64, rng productivity.DateRange, g productivity.Granularity, dense bool) (productivity.Series, error) {
	name := cacheName(rng, g, dense)

	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		data, v, ok, err := s.cache.Get(ctx, userID, name)
		if err != nil {
			log.Printf("productivity cache read failed for user %d: %v", userID, err)
		} else {
			version, cacheable = v, true
			if ok {
				var cached productivity.Series
				if err := json.Unmarshal(data, &cached); err == nil {
					return cached, nil
				}
			}
		}
	}

	from, to := rng.Bounds()
	rows, err := s.rows.ListSessionRows(ctx, userID, from, to)
	if err != nil {
		return productivity.Series{}, storageErr("list sessions", err)
	}
	series := productivity.Aggregate(rows, rng, g, dense, s.loc)

	if cacheable {
		if data, err := json.Marshal(series); err == nil {
			if err := s.cache.Set(ctx, userID, version, name, data); err != nil {
				log.Printf("productivity cache write failed for user %d: %v", userID, err)
			}
		}
	}
	return series, nil
}

func cacheName(rng productivity.DateRange, g productivity.Granularity, dense bool) string {
	layout := "sparse"
	if dense {
		layout = "dense"
	}
	return fmt.Sprintf("%s:%s:%s:%s", g, layout, rng.StartDate(), rng.EndDate())
}
