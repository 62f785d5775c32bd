package productivity

import (
	"time"

	"tempo-backend/internal/models"
	"tempo-backend/internal/timecalc"
)

// DailyRow keeps the raw seconds; the daily summary predates the hours views.
type DailyRow struct {
	Day             string  `json:"day"`
	TasksCompleted  int     `json:"tasks_completed"`
	PomodoroCycles  int64   `json:"pomodoro_cycles"`
	WorkDuration    int64   `json:"work_duration"`
	BreakDuration   int64   `json:"break_duration"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

type DailyMetrics struct {
	TotalTasksCompleted         int     `json:"total_tasks_completed"`
	TotalPomodoroCycles         int64   `json:"total_pomodoro_cycles"`
	TotalWorkDuration           int64   `json:"total_work_duration"`
	TotalBreakDuration          int64   `json:"total_break_duration"`
	AverageTasksPerDay          float64 `json:"average_tasks_per_day"`
	AveragePomodoroCyclesPerDay float64 `json:"average_pomodoro_cycles_per_day"`
	BreakToWorkRatio            float64 `json:"break_to_work_ratio"`
}

type DailyReport struct {
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	DailyData []DailyRow   `json:"daily_data"`
	Metrics   DailyMetrics `json:"metrics"`
}

func NewDailyReport(s Series) DailyReport {
	rows := make([]DailyRow, 0, len(s.Buckets))
	for _, b := range s.Buckets {
		rows = append(rows, DailyRow{
			Day:             b.Key,
			TasksCompleted:  b.TasksCompleted,
			PomodoroCycles:  b.PomodoroCycles,
			WorkDuration:    b.WorkDuration,
			BreakDuration:   b.BreakDuration,
			EfficiencyScore: b.EfficiencyScore,
		})
	}

	return DailyReport{
		StartDate: s.Range.StartDate(),
		EndDate:   s.Range.EndDate(),
		DailyData: rows,
		Metrics: DailyMetrics{
			TotalTasksCompleted:         s.Totals.TasksCompleted,
			TotalPomodoroCycles:         s.Totals.PomodoroCycles,
			TotalWorkDuration:           s.Totals.WorkDuration,
			TotalBreakDuration:          s.Totals.BreakDuration,
			AverageTasksPerDay:          s.Totals.AvgTasks,
			AveragePomodoroCyclesPerDay: s.Totals.AvgPomodoro,
			BreakToWorkRatio:            s.Totals.BreakToWorkRatio,
		},
	}
}

type PeriodRow struct {
	Period          string  `json:"period"`
	StartDate       string  `json:"start_date"`
	TasksCompleted  int     `json:"tasks_completed"`
	PomodoroCycles  int64   `json:"pomodoro_cycles"`
	WorkHours       float64 `json:"work_hours"`
	BreakHours      float64 `json:"break_hours"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

type PeriodTotals struct {
	TasksCompleted    int     `json:"tasks_completed"`
	PomodoroCycles    int64   `json:"pomodoro_cycles"`
	WorkHours         float64 `json:"work_hours"`
	BreakHours        float64 `json:"break_hours"`
	ActivePeriods     int     `json:"active_periods"`
	AverageTasks      float64 `json:"average_tasks"`
	AveragePomodoro   float64 `json:"average_pomodoro_cycles"`
	AverageWorkHours  float64 `json:"average_work_hours"`
	AverageBreakHours float64 `json:"average_break_hours"`
	BreakToWorkRatio  float64 `json:"break_to_work_ratio"`
	AverageEfficiency float64 `json:"average_efficiency_score"`
}

// PeriodReport backs the weekly, monthly and JSON report views.
type PeriodReport struct {
	Granularity Granularity  `json:"granularity"`
	StartDate   string       `json:"start_date"`
	EndDate     string       `json:"end_date"`
	GeneratedAt *time.Time   `json:"generated_at,omitempty"`
	Periods     []PeriodRow  `json:"periods"`
	Totals      PeriodTotals `json:"totals"`
}

func NewPeriodReport(s Series) PeriodReport {
	rows := make([]PeriodRow, 0, len(s.Buckets))
	var scoreSum float64
	for _, b := range s.Buckets {
		rows = append(rows, PeriodRow{
			Period:          b.Key,
			StartDate:       b.Start.Format(dateLayout),
			TasksCompleted:  b.TasksCompleted,
			PomodoroCycles:  b.PomodoroCycles,
			WorkHours:       timecalc.SecondsToHours(b.WorkDuration),
			BreakHours:      timecalc.SecondsToHours(b.BreakDuration),
			EfficiencyScore: b.EfficiencyScore,
		})
		if b.Sessions > 0 {
			scoreSum += b.EfficiencyScore
		}
	}

	t := s.Totals
	totals := PeriodTotals{
		TasksCompleted:    t.TasksCompleted,
		PomodoroCycles:    t.PomodoroCycles,
		WorkHours:         timecalc.SecondsToHours(t.WorkDuration),
		BreakHours:        timecalc.SecondsToHours(t.BreakDuration),
		ActivePeriods:     t.BucketsWithData,
		AverageTasks:      t.AvgTasks,
		AveragePomodoro:   t.AvgPomodoro,
		AverageWorkHours:  timecalc.Round2(t.AvgWorkDuration / 3600),
		AverageBreakHours: timecalc.Round2(t.AvgBreakDuration / 3600),
		BreakToWorkRatio:  t.BreakToWorkRatio,
	}
	if t.BucketsWithData > 0 {
		totals.AverageEfficiency = timecalc.Round2(scoreSum / float64(t.BucketsWithData))
	}

	return PeriodReport{
		Granularity: s.Granularity,
		StartDate:   s.Range.StartDate(),
		EndDate:     s.Range.EndDate(),
		Periods:     rows,
		Totals:      totals,
	}
}

// NewJSONReport is the exportable month-by-month report.
func NewJSONReport(s Series, generatedAt time.Time) PeriodReport {
	r := NewPeriodReport(s)
	at := generatedAt.UTC()
	r.GeneratedAt = &at
	return r
}

type ItemStats struct {
	Sessions          int     `json:"sessions"`
	PomodoroCycles    int64   `json:"pomodoro_cycles"`
	WorkDuration      int64   `json:"work_duration"`
	BreakDuration     int64   `json:"break_duration"`
	WorkHours         float64 `json:"work_hours"`
	BreakHours        float64 `json:"break_hours"`
	PausedHours       float64 `json:"paused_hours"`
	BackgroundHours   float64 `json:"background_hours"`
	EfficiencyPercent float64 `json:"efficiency_percent"`
}

type ItemStatsReport struct {
	Item  *models.TrackableItem `json:"item"`
	Stats ItemStats             `json:"stats"`
}

func NewItemStatsReport(item *models.TrackableItem, totals models.ItemSessionTotals) ItemStatsReport {
	return ItemStatsReport{
		Item: item,
		Stats: ItemStats{
			Sessions:          totals.Sessions,
			PomodoroCycles:    totals.PomodoroCycles,
			WorkDuration:      totals.WorkDuration,
			BreakDuration:     totals.BreakDuration,
			WorkHours:         timecalc.SecondsToHours(totals.WorkDuration),
			BreakHours:        timecalc.SecondsToHours(totals.BreakDuration),
			PausedHours:       timecalc.SecondsToHours(totals.PausedDuration),
			BackgroundHours:   timecalc.SecondsToHours(totals.BackgroundTime),
			EfficiencyPercent: ItemEfficiency(totals.WorkDuration, item.EstimatedDuration),
		},
	}
}
