package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tempo-backend/internal/models"
	"tempo-backend/internal/productivity"
)

type ProductivityRepo struct {
	pool *pgxpool.Pool
}

func NewProductivityRepo(pool *pgxpool.Pool) *ProductivityRepo {
	return &ProductivityRepo{pool: pool}
}

// ListSessionRows returns every session of userID that started in [from, to),
// ordered by start time, together with the completion state of its item.
func (r *ProductivityRepo) ListSessionRows(ctx context.Context, userID int64, from, to time.Time) ([]productivity.SessionRow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT s.task_id, s.sub_task_id, s.start_time, s.pomodoro_cycles, s.work_duration, s.break_duration,
			CASE WHEN s.sub_task_id IS NULL THEN t.status ELSE st.status END
		FROM task_timer_sessions s
		JOIN tasks t ON t.id = s.task_id
		LEFT JOIN sub_tasks st ON st.id = s.sub_task_id
		WHERE t.user_id = $1 AND s.start_time >= $2 AND s.start_time < $3
		ORDER BY s.start_time, s.id`,
		userID, from, to,
	)
	if err != nil {
		return nil, wrap("list productivity sessions", err)
	}
	defer rows.Close()

	var out []productivity.SessionRow
	for rows.Next() {
		var (
			taskID    int64
			subTaskID *int64
			status    models.Status
			row       productivity.SessionRow
		)
		if err := rows.Scan(&taskID, &subTaskID, &row.StartTime, &row.PomodoroCycles,
			&row.WorkDuration, &row.BreakDuration, &status); err != nil {
			return nil, wrap("scan productivity session", err)
		}

		row.Item = models.ItemRef{Kind: models.KindTask, ID: taskID}
		if subTaskID != nil {
			row.Item = models.ItemRef{Kind: models.KindSubTask, ID: *subTaskID}
		}
		row.ItemCompleted = status == models.StatusCompleted
		out = append(out, row)
	}
	return out, wrap("list productivity sessions", rows.Err())
}
