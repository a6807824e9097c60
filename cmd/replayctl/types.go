package main

import (
	"github.com/hairizuan-noorazman/ui-replay/report"
	"github.com/hairizuan-noorazman/ui-replay/session"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// PaginatedResponse matches handlers.PaginatedResponse.
type PaginatedResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorResponse matches handlers.ErrorResponse.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReportResponse matches handlers.ReportDetail.
type ReportResponse struct {
	report.Report
	Summary summary.Report `json:"summary"`
}

// SessionResponse matches session.Info.
type SessionResponse = session.Info
