package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"tempo-backend/internal/middleware"
	"tempo-backend/internal/models"
)

const maxSubTaskBody = 1 << 20

type subTaskService interface {
	Create(ctx context.Context, taskID, userID int64, reqs []models.NewSubTaskRequest) ([]*models.SubTask, error)
	Delete(ctx context.Context, subTaskID, userID int64) error
}

type SubTaskHandler struct {
	service subTaskService
}

func NewSubTaskHandler(service subTaskService) *SubTaskHandler {
	return &SubTaskHandler{service: service}
}

// Create accepts a single sub-task object or an array of them.
func (h *SubTaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}

	reqs, err := decodeSubTasks(http.MaxBytesReader(w, r.Body, maxSubTaskBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	created, err := h.service.Create(r.Context(), taskID, middleware.GetUserID(r.Context()), reqs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Sub-task created successfully",
		"subTasks": created,
	})
}

func (h *SubTaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Sub-task deleted successfully"})
}

func decodeSubTasks(body io.Reader) ([]models.NewSubTaskRequest, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []models.NewSubTaskRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, err
		}
		return reqs, nil
	}

	var req models.NewSubTaskRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}
	return []models.NewSubTaskRequest{req}, nil
}
