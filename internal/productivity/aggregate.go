package productivity

import (
	"fmt"
	"sort"
	"time"

	"tempo-backend/internal/models"
	"tempo-backend/internal/timecalc"
)

type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

const dateLayout = "2006-01-02"

// SessionRow is one timer session as the aggregator needs it.
type SessionRow struct {
	Item           models.ItemRef
	StartTime      time.Time
	PomodoroCycles int64
	WorkDuration   int64
	BreakDuration  int64
	ItemCompleted  bool
}

// DateRange is an inclusive range of calendar days. Start and End are
// midnights in the reporting location.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// StartOfDay truncates t to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DefaultRange covers the year up to and including today.
func DefaultRange(now time.Time, loc *time.Location) DateRange {
	end := StartOfDay(now, loc)
	return DateRange{Start: end.AddDate(-1, 0, 0), End: end}
}

// LastDays covers n days ending today.
func LastDays(now time.Time, loc *time.Location, n int) DateRange {
	end := StartOfDay(now, loc)
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// LastMonth covers the month up to and including today.
func LastMonth(now time.Time, loc *time.Location) DateRange {
	end := StartOfDay(now, loc)
	return DateRange{Start: end.AddDate(0, -1, 0), End: end}
}

// maxSpanYears bounds how far apart a range's ends may be per granularity.
var maxSpanYears = map[Granularity]int{
	Day:   1,
	Week:  5,
	Month: 5,
}

// ParseRange parses optional YYYY-MM-DD bounds. Missing bounds come from def.
// The range may span at most one year of days, or five years of weeks or months.
func ParseRange(start, end string, def DateRange, g Granularity, loc *time.Location) (DateRange, error) {
	rng := def
	if start != "" {
		t, err := time.ParseInLocation(dateLayout, start, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("start_date must be YYYY-MM-DD")
		}
		rng.Start = t
	}
	if end != "" {
		t, err := time.ParseInLocation(dateLayout, end, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("end_date must be YYYY-MM-DD")
		}
		rng.End = t
	}
	if rng.End.Before(rng.Start) {
		return DateRange{}, fmt.Errorf("end_date must not be before start_date")
	}
	if years, ok := maxSpanYears[g]; ok && rng.End.After(rng.Start.AddDate(years, 0, 0)) {
		return DateRange{}, fmt.Errorf("date range may span at most %d year(s) for %s granularity", years, g)
	}
	return rng, nil
}

// Bounds returns the half-open instant interval [from, to) covering the range.
func (r DateRange) Bounds() (from, to time.Time) {
	return r.Start, r.End.AddDate(0, 0, 1)
}

func (r DateRange) StartDate() string { return r.Start.Format(dateLayout) }
func (r DateRange) EndDate() string   { return r.End.Format(dateLayout) }

// BucketStart returns the first instant of the bucket holding t.
func BucketStart(t time.Time, g Granularity, loc *time.Location) time.Time {
	d := StartOfDay(t, loc)
	switch g {
	case Week:
		offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
		return d.AddDate(0, 0, -offset)
	case Month:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return d
	}
}

// BucketKey formats the bucket holding t: 2006-01-02, 2006-W01 or 2006-01.
func BucketKey(t time.Time, g Granularity, loc *time.Location) string {
	t = t.In(loc)
	switch g {
	case Week:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Month:
		return t.Format("2006-01")
	default:
		return t.Format(dateLayout)
	}
}

func nextBucket(start time.Time, g Granularity) time.Time {
	switch g {
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

type Bucket struct {
	Key             string
	Start           time.Time
	Sessions        int
	TasksCompleted  int
	PomodoroCycles  int64
	WorkDuration    int64
	BreakDuration   int64
	EfficiencyScore float64
}

type Totals struct {
	TasksCompleted   int
	PomodoroCycles   int64
	WorkDuration     int64
	BreakDuration    int64
	BucketsWithData  int
	AvgTasks         float64
	AvgPomodoro      float64
	AvgWorkDuration  float64
	AvgBreakDuration float64
	BreakToWorkRatio float64
}

type Series struct {
	Granularity Granularity
	Range       DateRange
	Buckets     []Bucket
	Totals      Totals
}

// Aggregate groups rows into buckets of granularity g. A dense series has one
// bucket for every period overlapping rng; a sparse one only has buckets that
// received at least one session. Rows starting outside rng are ignored.
func Aggregate(rows []SessionRow, rng DateRange, g Granularity, dense bool, loc *time.Location) Series {
	from, to := rng.Bounds()

	buckets := make(map[string]*Bucket)
	completed := make(map[string]map[models.ItemRef]struct{})

	if dense {
		for s := BucketStart(rng.Start, g, loc); !s.After(rng.End); s = nextBucket(s, g) {
			key := BucketKey(s, g, loc)
			buckets[key] = &Bucket{Key: key, Start: s}
		}
	}

	for _, row := range rows {
		if row.StartTime.Before(from) || !row.StartTime.Before(to) {
			continue
		}

		key := BucketKey(row.StartTime, g, loc)
		b, ok := buckets[key]
		if !ok {
			b = &Bucket{Key: key, Start: BucketStart(row.StartTime, g, loc)}
			buckets[key] = b
		}

		b.Sessions++
		b.PomodoroCycles += row.PomodoroCycles
		b.WorkDuration += row.WorkDuration
		b.BreakDuration += row.BreakDuration

		if row.ItemCompleted {
			if completed[key] == nil {
				completed[key] = make(map[models.ItemRef]struct{})
			}
			completed[key][row.Item] = struct{}{}
		}
	}

	series := Series{Granularity: g, Range: rng, Buckets: make([]Bucket, 0, len(buckets))}
	for key, b := range buckets {
		b.TasksCompleted = len(completed[key])
		b.EfficiencyScore = EfficiencyScore(b.TasksCompleted, b.PomodoroCycles, b.WorkDuration, b.BreakDuration)
		series.Buckets = append(series.Buckets, *b)
	}
	sort.Slice(series.Buckets, func(i, j int) bool {
		return series.Buckets[i].Start.Before(series.Buckets[j].Start)
	})

	series.Totals = totalsOf(series.Buckets)
	return series
}

func totalsOf(buckets []Bucket) Totals {
	var t Totals
	for _, b := range buckets {
		t.TasksCompleted += b.TasksCompleted
		t.PomodoroCycles += b.PomodoroCycles
		t.WorkDuration += b.WorkDuration
		t.BreakDuration += b.BreakDuration
		if b.Sessions > 0 {
			t.BucketsWithData++
		}
	}

	if t.BucketsWithData > 0 {
		n := float64(t.BucketsWithData)
		t.AvgTasks = timecalc.Round2(float64(t.TasksCompleted) / n)
		t.AvgPomodoro = timecalc.Round2(float64(t.PomodoroCycles) / n)
		t.AvgWorkDuration = timecalc.Round2(float64(t.WorkDuration) / n)
		t.AvgBreakDuration = timecalc.Round2(float64(t.BreakDuration) / n)
	}
	if t.WorkDuration > 0 {
		t.BreakToWorkRatio = timecalc.Round2(float64(t.BreakDuration) / float64(t.WorkDuration))
	}
	return t
}

// EfficiencyScore weighs completed items, cycles and work against break time,
// normalising durations to an 8-hour day.
func EfficiencyScore(tasks int, cycles, workSeconds, breakSeconds int64) float64 {
	day := float64(timecalc.ReferenceDaySeconds)
	score := float64(tasks) +
		0.5*float64(cycles) +
		float64(workSeconds)/day -
		0.5*float64(breakSeconds)/day
	return timecalc.Round2(score)
}

// ItemEfficiency is the share of the estimate actually worked, as a percentage.
func ItemEfficiency(workSeconds int64, estimateMinutes *int) float64 {
	if estimateMinutes == nil || *estimateMinutes <= 0 || workSeconds <= 0 {
		return 0
	}
	return timecalc.Round2(float64(workSeconds) / float64(*estimateMinutes*60) * 100)
}
