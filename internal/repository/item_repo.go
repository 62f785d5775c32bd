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

type ItemRepo struct {
	pool *pgxpool.Pool
}

func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

const (
	taskItemQuery = `SELECT id, id, user_id, title, status, duration, start_time, end_time, subtasks_count
		FROM tasks WHERE id = $1 AND user_id = $2`

	subTaskItemQuery = `SELECT st.id, st.task_id, t.user_id, st.title, st.status, st.duration, st.start_time, st.end_time, 0
		FROM sub_tasks st
		JOIN tasks t ON t.id = st.task_id
		WHERE st.id = $1 AND t.user_id = $2`
)

// Get loads an item owned by userID. A missing or foreign item yields (nil, nil).
func (r *ItemRepo) Get(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error) {
	return r.find(ctx, ref, userID, false)
}

// Lock is Get plus a row lock held until the surrounding transaction ends.
func (r *ItemRepo) Lock(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error) {
	return r.find(ctx, ref, userID, true)
}

func (r *ItemRepo) find(ctx context.Context, ref models.ItemRef, userID int64, forUpdate bool) (*models.TrackableItem, error) {
	var query string
	switch ref.Kind {
	case models.KindTask:
		query = taskItemQuery
		if forUpdate {
			query += " FOR UPDATE"
		}
	case models.KindSubTask:
		query = subTaskItemQuery
		if forUpdate {
			query += " FOR UPDATE OF st"
		}
	default:
		return nil, fmt.Errorf("unknown item kind %q", ref.Kind)
	}

	item := &models.TrackableItem{Ref: ref}
	err := conn(ctx, r.pool).QueryRow(ctx, query, ref.ID, userID).Scan(
		&item.Ref.ID, &item.TaskID, &item.OwnerUserID, &item.Title, &item.Status,
		&item.EstimatedDuration, &item.StartTime, &item.EndTime, &item.SubtasksCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("load "+string(ref.Kind), err)
	}
	return item, nil
}

func (r *ItemRepo) MarkStarted(ctx context.Context, ref models.ItemRef, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		"UPDATE "+tableFor(ref.Kind)+" SET status = $1, start_time = $2, updated_at = $3 WHERE id = $4",
		models.StatusInProgress, at, at, ref.ID,
	)
	return wrap("mark started", err)
}

func (r *ItemRepo) SetStatus(ctx context.Context, ref models.ItemRef, status models.Status, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		"UPDATE "+tableFor(ref.Kind)+" SET status = $1, updated_at = $2 WHERE id = $3",
		status, at, ref.ID,
	)
	return wrap("set status", err)
}

func (r *ItemRepo) MarkCompleted(ctx context.Context, ref models.ItemRef, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		"UPDATE "+tableFor(ref.Kind)+" SET status = $1, end_time = $2, updated_at = $3 WHERE id = $4",
		models.StatusCompleted, at, at, ref.ID,
	)
	return wrap("mark completed", err)
}

// InsertSubTasks creates sub-tasks under taskID. The caller adjusts the parent
// count in the same transaction.
func (r *ItemRepo) InsertSubTasks(ctx context.Context, taskID int64, reqs []models.NewSubTaskRequest) ([]*models.SubTask, error) {
	db := conn(ctx, r.pool)
	created := make([]*models.SubTask, 0, len(reqs))

	for _, req := range reqs {
		status := req.Status
		if status == "" {
			status = models.StatusPending
		}

		st := &models.SubTask{
			TaskID:            taskID,
			Title:             req.Title,
			Description:       req.Description,
			Status:            status,
			EstimatedDuration: req.EstimatedDuration,
		}
		err := db.QueryRow(ctx, `
			INSERT INTO sub_tasks (task_id, title, description, status, duration)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`,
			taskID, st.Title, st.Description, st.Status, st.EstimatedDuration,
		).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
		if err != nil {
			return nil, wrap("insert sub-task", err)
		}
		created = append(created, st)
	}

	return created, nil
}

// DeleteSubTask removes one sub-task; sessions go with it by cascade.
func (r *ItemRepo) DeleteSubTask(ctx context.Context, id int64) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, "DELETE FROM sub_tasks WHERE id = $1", id)
	if err != nil {
		return false, wrap("delete sub-task", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ItemRepo) AdjustSubtaskCount(ctx context.Context, taskID int64, delta int) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		"UPDATE tasks SET subtasks_count = GREATEST(subtasks_count + $1, 0) WHERE id = $2",
		delta, taskID,
	)
	return wrap("adjust subtasks_count", err)
}

func tableFor(kind models.ItemKind) string {
	if kind == models.KindSubTask {
		return "sub_tasks"
	}
	return "tasks"
}
