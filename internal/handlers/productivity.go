package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"tempo-backend/internal/middleware"
	"tempo-backend/internal/productivity"
)

type productivityService interface {
	Daily(ctx context.Context, userID int64, start, end string) (*productivity.DailyReport, error)
	Weekly(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, error)
	Monthly(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, error)
	Report(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, productivity.Series, error)
}

type ProductivityHandler struct {
	service productivityService
}

func NewProductivityHandler(service productivityService) *ProductivityHandler {
	return &ProductivityHandler{service: service}
}

func dateParams(r *http.Request) (string, string) {
	q := r.URL.Query()
	return q.Get("start_date"), q.Get("end_date")
}

func (h *ProductivityHandler) Daily(w http.ResponseWriter, r *http.Request) {
	start, end := dateParams(r)
	report, err := h.service.Daily(r.Context(), middleware.GetUserID(r.Context()), start, end)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ProductivityHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	start, end := dateParams(r)
	report, err := h.service.Weekly(r.Context(), middleware.GetUserID(r.Context()), start, end)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ProductivityHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	start, end := dateParams(r)
	report, err := h.service.Monthly(r.Context(), middleware.GetUserID(r.Context()), start, end)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Report answers with JSON, or with a CSV attachment when format=csv.
func (h *ProductivityHandler) Report(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"format": "must be json or csv"}, r))
		return
	}

	start, end := dateParams(r)
	report, series, err := h.service.Report(r.Context(), middleware.GetUserID(r.Context()), start, end)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if format != "csv" {
		writeJSON(w, http.StatusOK, report)
		return
	}

	filename := fmt.Sprintf("productivity_%s_%s.csv", report.StartDate, report.EndDate)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := productivity.WriteCSV(w, series); err != nil {
		log.Printf("✗ write productivity csv: %v", err)
	}
}
