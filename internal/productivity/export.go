package productivity

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV renders a series as one row per bucket followed by a totals row.
func WriteCSV(out io.Writer, s Series) error {
	w := csv.NewWriter(out)

	header := []string{"Period", "Start", "Tasks completed", "Pomodoro cycles",
		"Work (s)", "Work", "Break (s)", "Break", "Efficiency score"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, b := range s.Buckets {
		row := []string{
			b.Key,
			b.Start.Format(dateLayout),
			fmt.Sprintf("%d", b.TasksCompleted),
			fmt.Sprintf("%d", b.PomodoroCycles),
			fmt.Sprintf("%d", b.WorkDuration),
			formatDuration(b.WorkDuration),
			fmt.Sprintf("%d", b.BreakDuration),
			formatDuration(b.BreakDuration),
			fmt.Sprintf("%.2f", b.EfficiencyScore),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", b.Key, err)
		}
	}

	t := s.Totals
	total := []string{
		"Total",
		s.Range.StartDate(),
		fmt.Sprintf("%d", t.TasksCompleted),
		fmt.Sprintf("%d", t.PomodoroCycles),
		fmt.Sprintf("%d", t.WorkDuration),
		formatDuration(t.WorkDuration),
		fmt.Sprintf("%d", t.BreakDuration),
		formatDuration(t.BreakDuration),
		"",
	}
	if err := w.Write(total); err != nil {
		return fmt.Errorf("write csv totals: %w", err)
	}

	w.Flush()
	return w.Error()
}

func formatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
