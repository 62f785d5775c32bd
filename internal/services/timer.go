package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tempo-backend/internal/models"
	"tempo-backend/internal/repository"
	"tempo-backend/internal/timecalc"
)

type itemRepository interface {
	Get(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error)
	Lock(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error)
	MarkStarted(ctx context.Context, ref models.ItemRef, at time.Time) error
	SetStatus(ctx context.Context, ref models.ItemRef, status models.Status, at time.Time) error
	MarkCompleted(ctx context.Context, ref models.ItemRef, at time.Time) error
}

type sessionRepository interface {
	FindOpenSession(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error)
	FindLatestSession(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error)
	CreateSession(ctx context.Context, item *models.TrackableItem, userID int64, startedAt time.Time) (*models.TimerSession, error)
	UpdateSession(ctx context.Context, s *models.TimerSession) error
	CloseSession(ctx context.Context, s *models.TimerSession, endTime time.Time, backgroundTime, breakDuration int64) error
}

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type eventQueue interface {
	Enqueue(ctx context.Context, ev models.TimerEvent) error
}

// TimerService drives the Pending → In Progress ⇄ Paused → Completed lifecycle
// of tasks and sub-tasks. Every transition runs in one transaction holding the
// item's row lock.
type TimerService struct {
	items    itemRepository
	sessions sessionRepository
	tx       transactor
	events   eventQueue
	now      func() time.Time
}

func NewTimerService(items itemRepository, sessions sessionRepository, tx transactor, events eventQueue) *TimerService {
	return &TimerService{
		items:    items,
		sessions: sessions,
		tx:       tx,
		events:   events,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *TimerService) WithClock(now func() time.Time) *TimerService {
	s.now = now
	return s
}

func (s *TimerService) Start(ctx context.Context, ref models.ItemRef, userID int64) (*models.StartResult, error) {
	var session *models.TimerSession

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.lockItem(ctx, ref, userID)
		if err != nil {
			return err
		}

		switch item.Status {
		case models.StatusPending:
		case models.StatusPaused:
			return &InvalidStateError{Message: fmt.Sprintf("%s is paused; resume it instead", itemLabel(ref))}
		default:
			return invalidTransition(ref, "start", item.Status)
		}

		open, err := s.sessions.FindOpenSession(ctx, ref, userID)
		if err != nil {
			return storeErr("find open session", err)
		}
		if open != nil {
			return &ConflictError{Message: fmt.Sprintf("A timer is already running for this %s", ref.Kind)}
		}

		now := s.now()
		if err := s.items.MarkStarted(ctx, ref, now); err != nil {
			return storeErr("mark item started", err)
		}
		session, err = s.sessions.CreateSession(ctx, item, userID, now)
		if err != nil {
			return storeErr("create session", err)
		}
		return nil
	})
	if err != nil {
		return nil, serviceErr("start timer", err)
	}

	s.notify(ctx, userID, ref, "started", models.StatusInProgress, session.ID, session.StartTime)
	return &models.StartResult{SessionID: session.ID}, nil
}

// Pause checkpoints the open session. Work is measured from last_paused_time
// when set, else from start_time, so repeated pause/resume cycles never
// count a stretch twice.
func (s *TimerService) Pause(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	var session *models.TimerSession
	var now time.Time

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.lockItem(ctx, ref, userID)
		if err != nil {
			return err
		}

		session, err = s.sessions.FindOpenSession(ctx, ref, userID)
		if err != nil {
			return storeErr("find open session", err)
		}
		if session == nil {
			return &NotFoundError{Message: fmt.Sprintf("No running timer for this %s", ref.Kind)}
		}
		if item.Status != models.StatusInProgress {
			return invalidTransition(ref, "pause", item.Status)
		}

		now = s.now()
		checkpoint := session.StartTime
		if session.LastPausedTime != nil {
			checkpoint = *session.LastPausedTime
		}
		elapsed := timecalc.ElapsedSeconds(checkpoint, now)

		session.WorkDuration += elapsed
		session.PomodoroCycles += timecalc.IncrementIfThreshold(elapsed)
		session.LastPausedTime = &now

		if err := s.sessions.UpdateSession(ctx, session); err != nil {
			return storeErr("update session", err)
		}
		if err := s.items.SetStatus(ctx, ref, models.StatusPaused, now); err != nil {
			return storeErr("set item status", err)
		}
		return nil
	})
	if err != nil {
		return nil, serviceErr("pause timer", err)
	}

	s.notify(ctx, userID, ref, "paused", models.StatusPaused, session.ID, now)
	return session, nil
}

func (s *TimerService) Resume(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	var session *models.TimerSession
	var now time.Time

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.lockItem(ctx, ref, userID)
		if err != nil {
			return err
		}
		if item.Status != models.StatusPaused {
			return invalidTransition(ref, "resume", item.Status)
		}

		session, err = s.latestOpenSession(ctx, ref, userID)
		if err != nil {
			return err
		}

		now = s.now()
		if session.LastPausedTime != nil {
			session.PausedDuration += timecalc.ElapsedSeconds(*session.LastPausedTime, now)
		}
		session.LastPausedTime = &now

		if err := s.sessions.UpdateSession(ctx, session); err != nil {
			return storeErr("update session", err)
		}
		if err := s.items.SetStatus(ctx, ref, models.StatusInProgress, now); err != nil {
			return storeErr("set item status", err)
		}
		return nil
	})
	if err != nil {
		return nil, serviceErr("resume timer", err)
	}

	s.notify(ctx, userID, ref, "resumed", models.StatusInProgress, session.ID, now)
	return session, nil
}

func (s *TimerService) Finish(ctx context.Context, ref models.ItemRef, userID int64) (*models.FinishResult, error) {
	var result models.FinishResult
	var session *models.TimerSession
	var now time.Time

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := s.lockItem(ctx, ref, userID)
		if err != nil {
			return err
		}
		if item.Status != models.StatusInProgress && item.Status != models.StatusPaused {
			return invalidTransition(ref, "finish", item.Status)
		}

		session, err = s.latestOpenSession(ctx, ref, userID)
		if err != nil {
			return err
		}

		now = s.now()
		background := timecalc.ElapsedSeconds(session.StartTime, now)
		cycles := timecalc.PomodoroCyclesFromElapsed(background)
		breakTime := timecalc.BreakSecondsForCycles(cycles)

		if err := s.sessions.CloseSession(ctx, session, now, background, breakTime); err != nil {
			return storeErr("close session", err)
		}
		if err := s.items.MarkCompleted(ctx, ref, now); err != nil {
			return storeErr("mark item completed", err)
		}

		result = models.FinishResult{BackgroundTime: background, BreakTime: breakTime, Cycles: cycles}
		return nil
	})
	if err != nil {
		return nil, serviceErr("finish timer", err)
	}

	s.notify(ctx, userID, ref, "finished", models.StatusCompleted, session.ID, now)
	return &result, nil
}

// CheckStarted reports whether the item has an open session. It never writes.
func (s *TimerService) CheckStarted(ctx context.Context, ref models.ItemRef, userID int64) (*models.StartedStatus, error) {
	item, err := s.items.Get(ctx, ref, userID)
	if err != nil {
		return nil, storageErr("load "+string(ref.Kind), err)
	}
	if item == nil {
		return nil, notFound(ref)
	}

	open, err := s.sessions.FindOpenSession(ctx, ref, userID)
	if err != nil {
		return nil, storeErr("find open session", err)
	}
	return &models.StartedStatus{IsStarted: open != nil, Session: open}, nil
}

func (s *TimerService) lockItem(ctx context.Context, ref models.ItemRef, userID int64) (*models.TrackableItem, error) {
	item, err := s.items.Lock(ctx, ref, userID)
	if err != nil {
		return nil, storageErr("lock "+string(ref.Kind), err)
	}
	if item == nil {
		return nil, notFound(ref)
	}
	return item, nil
}

func (s *TimerService) latestOpenSession(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error) {
	session, err := s.sessions.FindLatestSession(ctx, ref, userID)
	if err != nil {
		return nil, storeErr("find latest session", err)
	}
	if session == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("No timer session found for this %s", ref.Kind)}
	}
	if !session.IsOpen() {
		return nil, &ConflictError{Message: "The latest timer session is already closed"}
	}
	return session, nil
}

// notify queues a live update. The transition is already committed, so a
// queueing failure is only logged.
func (s *TimerService) notify(ctx context.Context, userID int64, ref models.ItemRef, action string, status models.Status, sessionID int64, at time.Time) {
	if s.events == nil {
		return
	}
	ev := models.TimerEvent{
		UserID:    userID,
		Item:      ref,
		Action:    action,
		Status:    status,
		SessionID: sessionID,
		At:        at,
	}
	if err := s.events.Enqueue(ctx, ev); err != nil {
		log.Printf("failed to queue timer event for user %d: %v", userID, err)
	}
}

func itemLabel(ref models.ItemRef) string {
	if ref.Kind == models.KindSubTask {
		return "Sub-task"
	}
	return "Task"
}

func notFound(ref models.ItemRef) error {
	return &NotFoundError{Message: itemLabel(ref) + " not found"}
}

func invalidTransition(ref models.ItemRef, action string, status models.Status) error {
	return &InvalidStateError{Message: fmt.Sprintf("Cannot %s a %s that is %s", action, ref.Kind, status)}
}

// storeErr maps repository sentinels onto service errors.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateOpenSession), errors.Is(err, repository.ErrOpenSessionExists):
		return &ConflictError{Message: "A timer is already running for this item"}
	case errors.Is(err, repository.ErrSessionClosed):
		return &ConflictError{Message: "The timer session is already closed"}
	}
	return storageErr(op, err)
}

// serviceErr passes typed errors through and wraps anything else, such as a
// failed commit.
func serviceErr(op string, err error) error {
	switch err.(type) {
	case *NotFoundError, *InvalidStateError, *ConflictError, *ValidationError, *StorageError:
		return err
	}
	return storageErr(op, err)
}
