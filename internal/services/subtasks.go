package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tempo-backend/internal/models"
)

const maxSubTasksPerRequest = 100

type subTaskRepository interface {
	Lock(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error)
	InsertSubTasks(ctx context.Context, taskID int64, reqs []models.NewSubTaskRequest) ([]*models.SubTask, error)
	DeleteSubTask(ctx context.Context, id int64) (bool, error)
	AdjustSubtaskCount(ctx context.Context, taskID int64, delta int) error
}

type reportInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// SubTaskService keeps tasks.subtasks_count equal to the number of live
// sub-tasks by changing both in one transaction.
type SubTaskService struct {
	repo    subTaskRepository
	tx      transactor
	reports reportInvalidator
}

// NewSubTaskService builds the service. reports may be nil.
func NewSubTaskService(repo subTaskRepository, tx transactor, reports reportInvalidator) *SubTaskService {
	return &SubTaskService{repo: repo, tx: tx, reports: reports}
}

func (s *SubTaskService) Create(ctx context.Context, taskID, userID int64, reqs []models.NewSubTaskRequest) ([]*models.SubTask, error) {
	if err := validateSubTasks(reqs); err != nil {
		return nil, err
	}

	var created []*models.SubTask
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref := models.ItemRef{Kind: models.KindTask, ID: taskID}
		task, err := s.repo.Lock(ctx, ref, userID)
		if err != nil {
			return storageErr("lock task", err)
		}
		if task == nil {
			return notFound(ref)
		}

		created, err = s.repo.InsertSubTasks(ctx, taskID, reqs)
		if err != nil {
			return storageErr("insert sub-tasks", err)
		}
		if err := s.repo.AdjustSubtaskCount(ctx, taskID, len(created)); err != nil {
			return storageErr("adjust sub-task count", err)
		}
		return nil
	})
	if err != nil {
		return nil, serviceErr("create sub-tasks", err)
	}
	return created, nil
}

// Delete removes the sub-task along with its sessions, so the user's cached
// reports are dropped once the transaction commits.
func (s *SubTaskService) Delete(ctx context.Context, subTaskID, userID int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref := models.ItemRef{Kind: models.KindSubTask, ID: subTaskID}
		item, err := s.repo.Lock(ctx, ref, userID)
		if err != nil {
			return storageErr("lock sub-task", err)
		}
		if item == nil {
			return notFound(ref)
		}

		deleted, err := s.repo.DeleteSubTask(ctx, subTaskID)
		if err != nil {
			return storageErr("delete sub-task", err)
		}
		if !deleted {
			return notFound(ref)
		}
		if err := s.repo.AdjustSubtaskCount(ctx, item.TaskID, -1); err != nil {
			return storageErr("adjust sub-task count", err)
		}
		return nil
	})
	if err != nil {
		return serviceErr("delete sub-task", err)
	}

	if s.reports != nil {
		if err := s.reports.Invalidate(ctx, userID); err != nil {
			log.Printf("failed to invalidate reports for user %d: %v", userID, err)
		}
	}
	return nil
}

func validateSubTasks(reqs []models.NewSubTaskRequest) error {
	fieldErrors := make(map[string]string)

	if len(reqs) == 0 {
		fieldErrors["subtasks"] = "At least one sub-task is required"
	}
	if len(reqs) > maxSubTasksPerRequest {
		fieldErrors["subtasks"] = fmt.Sprintf("At most %d sub-tasks can be created at once", maxSubTasksPerRequest)
	}

	for i := range reqs {
		reqs[i].Title = strings.TrimSpace(reqs[i].Title)
		if reqs[i].Title == "" {
			fieldErrors[fmt.Sprintf("subtasks[%d].title", i)] = "Title is required"
		}
		if reqs[i].Status != "" && reqs[i].Status != models.StatusPending {
			fieldErrors[fmt.Sprintf("subtasks[%d].status", i)] = "New sub-tasks start as Pending"
		}
		if d := reqs[i].EstimatedDuration; d != nil && *d < 0 {
			fieldErrors[fmt.Sprintf("subtasks[%d].duration", i)] = "Duration cannot be negative"
		}
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{Fields: fieldErrors}
	}
	return nil
}
