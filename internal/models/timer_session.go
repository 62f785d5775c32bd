package models

import "time"

// TimerSession is one contiguous, possibly paused, block of timer activity.
// EndTime is nil while the session is open.
type TimerSession struct {
	ID             int64      `json:"id"`
	TaskID         int64      `json:"task_id"`
	SubTaskID      *int64     `json:"sub_task_id"`
	UserID         int64      `json:"user_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	PausedDuration int64      `json:"paused_duration"`
	WorkDuration   int64      `json:"work_duration"`
	BreakDuration  int64      `json:"break_duration"`
	BackgroundTime int64      `json:"background_time"`
	PomodoroCycles int64      `json:"pomodoro_cycles"`
	LastPausedTime *time.Time `json:"last_paused_time"`
}

func (s *TimerSession) IsOpen() bool {
	return s.EndTime == nil
}

// Ref returns the item the session is tracked against.
func (s *TimerSession) Ref() ItemRef {
	if s.SubTaskID != nil {
		return ItemRef{Kind: KindSubTask, ID: *s.SubTaskID}
	}
	return ItemRef{Kind: KindTask, ID: s.TaskID}
}

type StartResult struct {
	SessionID int64 `json:"sessionId"`
}

type FinishResult struct {
	BackgroundTime int64 `json:"backgroundTime"`
	BreakTime      int64 `json:"breakTime"`
	Cycles         int64 `json:"cycles"`
}

type StartedStatus struct {
	IsStarted bool          `json:"isStarted"`
	Session   *TimerSession `json:"session,omitempty"`
}

// ItemSessionTotals aggregates every session recorded against one item.
type ItemSessionTotals struct {
	Sessions       int   `json:"sessions"`
	WorkDuration   int64 `json:"work_duration"`
	BreakDuration  int64 `json:"break_duration"`
	PausedDuration int64 `json:"paused_duration"`
	BackgroundTime int64 `json:"background_time"`
	PomodoroCycles int64 `json:"pomodoro_cycles"`
}
