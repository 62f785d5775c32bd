package models

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusPaused     Status = "Paused"
	StatusCompleted  Status = "Completed"
)

// ItemKind distinguishes tasks from sub-tasks; both share the timer lifecycle.
type ItemKind string

const (
	KindTask    ItemKind = "task"
	KindSubTask ItemKind = "subtask"
)

// ItemRef identifies a trackable item.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   int64    `json:"id"`
}

type SubTask struct {
	ID                int64      `json:"id"`
	TaskID            int64      `json:"task_id"`
	Title             string     `json:"title"`
	Description       *string    `json:"description"`
	Status            Status     `json:"status"`
	EstimatedDuration *int       `json:"duration"` // minutes
	StartTime         *time.Time `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TrackableItem is the lifecycle view of a task or sub-task used by the timer.
// For a task TaskID equals Ref.ID; for a sub-task it is the parent task.
type TrackableItem struct {
	Ref               ItemRef    `json:"ref"`
	TaskID            int64      `json:"task_id"`
	OwnerUserID       int64      `json:"owner_user_id"`
	Title             string     `json:"title"`
	Status            Status     `json:"status"`
	EstimatedDuration *int       `json:"estimated_duration_minutes"`
	StartTime         *time.Time `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	SubtasksCount     int        `json:"subtasks_count,omitempty"`
}

type NewSubTaskRequest struct {
	Title             string  `json:"title"`
	Description       *string `json:"description"`
	Status            Status  `json:"status"`
	EstimatedDuration *int    `json:"duration"`
}
