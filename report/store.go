package report

import (
	"context"

	"github.com/google/uuid"

	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// Filter narrows a report listing. Empty fields match everything.
type Filter struct {
	StoryName string
	FlowName  string
	Status    Status
}

// Store defines the interface for report persistence operations.
type Store interface {
	// Save stores a finalized summary as a report with its artifacts.
	Save(ctx context.Context, s summary.Report) error

	// Create inserts a report and its artifacts.
	Create(ctx context.Context, r *Report) error

	// GetByID retrieves a report and its artifacts.
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)

	// List retrieves a page of reports, newest first, without artifacts.
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Report, error)

	// Delete removes a report and its artifacts.
	Delete(ctx context.Context, id uuid.UUID) error
}
