package handlers

import (
	"errors"
	"net/http"

	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/report"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// ReportHandler serves the history of finished replays.
type ReportHandler struct {
	store  report.Store
	logger logger.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(store report.Store, log logger.Logger) *ReportHandler {
	return &ReportHandler{
		store:  store,
		logger: log,
	}
}

// ReportDetail is a stored report with its decoded summary.
type ReportDetail struct {
	*report.Report
	Summary summary.Report `json:"summary"`
}

// List handles listing reports, optionally filtered by story, flow and status.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	q := r.URL.Query()
	filter := report.Filter{
		StoryName: q.Get("story"),
		FlowName:  q.Get("flow"),
		Status:    report.Status(q.Get("status")),
	}
	if filter.Status != "" && filter.Status != report.StatusPassed && filter.Status != report.StatusFailed {
		respondError(w, http.StatusBadRequest, "status must be passed or failed")
		return
	}

	reports, err := h.store.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list reports", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(reports, len(reports), limit, offset))
}

// GetByID handles getting a single report with its artifacts.
func (h *ReportHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "report")
	if !ok {
		return
	}

	rep, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, report.ErrReportNotFound) {
			respondError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get report", map[string]interface{}{
			"error":     err.Error(),
			"report_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get report")
		return
	}

	sum, err := rep.Decode()
	if err != nil {
		h.logger.Warn(r.Context(), "failed to decode report summary", map[string]interface{}{
			"error":     err.Error(),
			"report_id": id,
		})
	}
	respondJSON(w, http.StatusOK, ReportDetail{Report: rep, Summary: sum})
}

// Delete handles removing a report.
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDOrRespond(w, r, "id", "report")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, report.ErrReportNotFound) {
			respondError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.Error(r.Context(), "failed to delete report", map[string]interface{}{
			"error":     err.Error(),
			"report_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to delete report")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
