package handlers

import (
	"context"
	"net/http"

	"tempo-backend/internal/middleware"
	"tempo-backend/internal/models"
	"tempo-backend/internal/productivity"
)

type timerService interface {
	Start(ctx context.Context, ref models.ItemRef, userID int64) (*models.StartResult, error)
	Pause(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error)
	Resume(ctx context.Context, ref models.ItemRef, userID int64) (*models.TimerSession, error)
	Finish(ctx context.Context, ref models.ItemRef, userID int64) (*models.FinishResult, error)
	CheckStarted(ctx context.Context, ref models.ItemRef, userID int64) (*models.StartedStatus, error)
}

type itemStatsService interface {
	ItemStats(ctx context.Context, ref models.ItemRef, userID int64) (*productivity.ItemStatsReport, error)
}

// TimerHandler serves the timer routes for one item kind; tasks and sub-tasks
// each get their own instance.
type TimerHandler struct {
	kind  models.ItemKind
	timer timerService
	stats itemStatsService
}

func NewTimerHandler(kind models.ItemKind, timer timerService, stats itemStatsService) *TimerHandler {
	return &TimerHandler{kind: kind, timer: timer, stats: stats}
}

func (h *TimerHandler) ref(w http.ResponseWriter, r *http.Request) (models.ItemRef, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return models.ItemRef{}, false
	}
	return models.ItemRef{Kind: h.kind, ID: id}, true
}

func (h *TimerHandler) noun() string {
	if h.kind == models.KindSubTask {
		return "Sub-task"
	}
	return "Task"
}

func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	res, err := h.timer.Start(r.Context(), ref, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   h.noun() + " started successfully",
		"sessionId": res.SessionID,
	})
}

func (h *TimerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	session, err := h.timer.Pause(r.Context(), ref, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        h.noun() + " paused successfully",
		"workDuration":   session.WorkDuration,
		"pausedDuration": session.PausedDuration,
		"session":        session,
	})
}

func (h *TimerHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	session, err := h.timer.Resume(r.Context(), ref, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        h.noun() + " resumed successfully",
		"pausedDuration": session.PausedDuration,
		"session":        session,
	})
}

func (h *TimerHandler) Finish(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	res, err := h.timer.Finish(r.Context(), ref, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        h.noun() + " finished successfully",
		"backgroundTime": res.BackgroundTime,
		"breakTime":      res.BreakTime,
		"cycles":         res.Cycles,
	})
}

func (h *TimerHandler) Started(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	status, err := h.timer.CheckStarted(r.Context(), ref, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *TimerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	report, err := h.stats.ItemStats(r.Context(), ref, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
