package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tempo-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, task_id, sub_task_id, user_id, start_time, end_time, paused_duration,
	work_duration, break_duration, background_time, pomodoro_cycles, last_paused_time`

// itemFilter matches the sessions of one item for one user. Task sessions are
// the ones without a sub-task.
func itemFilter(ref models.ItemRef) string {
	if ref.Kind == models.KindSubTask {
		return "sub_task_id = $1 AND user_id = $2"
	}
	return "task_id = $1 AND sub_task_id IS NULL AND user_id = $2"
}

func scanSession(row pgx.Row) (*models.TimerSession, error) {
	s := &models.TimerSession{}
	err := row.Scan(
		&s.ID, &s.TaskID, &s.SubTaskID, &s.UserID, &s.StartTime, &s.EndTime, &s.PausedDuration,
		&s.WorkDuration, &s.BreakDuration, &s.BackgroundTime, &s.PomodoroCycles, &s.LastPausedTime,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindOpenSession returns the running session for the item, or nil when none is open.
func (r *SessionRepo) FindOpenSession(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		"SELECT "+sessionColumns+" FROM task_timer_sessions WHERE "+itemFilter(ref)+
			" AND end_time IS NULL ORDER BY start_time DESC LIMIT 2",
		ref.ID, userID,
	)
	if err != nil {
		return nil, wrap("find open session", err)
	}
	defer rows.Close()

	var found []*models.TimerSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrap("scan open session", err)
		}
		found = append(found, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("find open session", err)
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%s %d for user %d: %w", ref.Kind, ref.ID, userID, ErrDuplicateOpenSession)
	}
}

// FindLatestSession returns the most recently started session, open or closed.
func (r *SessionRepo) FindLatestSession(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	s, err := scanSession(conn(ctx, r.pool).QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM task_timer_sessions WHERE "+itemFilter(ref)+
			" ORDER BY start_time DESC, id DESC LIMIT 1",
		ref.ID, userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find latest session", err)
	}
	return s, nil
}

// CreateSession opens a session for item with all counters at zero.
func (r *SessionRepo) CreateSession(ctx context.Context, item *models.TrackableItem, userID int64, startedAt time.Time) (*models.TimerSession, error) {
	var subTaskID *int64
	if item.Ref.Kind == models.KindSubTask {
		id := item.Ref.ID
		subTaskID = &id
	}

	s, err := scanSession(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO task_timer_sessions
			(task_id, sub_task_id, user_id, start_time, paused_duration, work_duration, break_duration, background_time, pomodoro_cycles)
		VALUES ($1, $2, $3, $4, 0, 0, 0, 0, 0)
		RETURNING `+sessionColumns,
		item.TaskID, subTaskID, userID, startedAt,
	))
	if isUniqueViolation(err) {
		return nil, ErrOpenSessionExists
	}
	if err != nil {
		return nil, wrap("create session", err)
	}
	return s, nil
}

// UpdateSession replaces the mutable counters of an existing session.
func (r *SessionRepo) UpdateSession(ctx context.Context, s *models.TimerSession) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE task_timer_sessions
		SET paused_duration = $1,
			work_duration = $2,
			break_duration = $3,
			background_time = $4,
			pomodoro_cycles = $5,
			last_paused_time = $6
		WHERE id = $7`,
		s.PausedDuration, s.WorkDuration, s.BreakDuration, s.BackgroundTime, s.PomodoroCycles, s.LastPausedTime, s.ID,
	)
	return wrap("update session", err)
}

// CloseSession sets the terminal fields; a session can only be closed once.
func (r *SessionRepo) CloseSession(ctx context.Context, s *models.TimerSession, endTime time.Time, backgroundTime, breakDuration int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE task_timer_sessions
		SET end_time = $1, background_time = $2, break_duration = $3
		WHERE id = $4 AND end_time IS NULL`,
		endTime, backgroundTime, breakDuration, s.ID,
	)
	if err != nil {
		return wrap("close session", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionClosed
	}

	s.EndTime = &endTime
	s.BackgroundTime = backgroundTime
	s.BreakDuration = breakDuration
	return nil
}

// ItemTotals sums every session of the item for the user.
func (r *SessionRepo) ItemTotals(ctx context.Context, ref models.ItemRef, userID int64) (models.ItemSessionTotals, error) {
	var t models.ItemSessionTotals
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(work_duration), 0)::BIGINT,
			COALESCE(SUM(break_duration), 0)::BIGINT,
			COALESCE(SUM(paused_duration), 0)::BIGINT,
			COALESCE(SUM(background_time), 0)::BIGINT,
			COALESCE(SUM(pomodoro_cycles), 0)::BIGINT
		FROM task_timer_sessions WHERE `+itemFilter(ref),
		ref.ID, userID,
	).Scan(&t.Sessions, &t.WorkDuration, &t.BreakDuration, &t.PausedDuration, &t.BackgroundTime, &t.PomodoroCycles)
	return t, wrap("item totals", err)
}
