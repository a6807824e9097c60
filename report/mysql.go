package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// DefaultListLimit caps a listing when the caller passes no limit.
const DefaultListLimit = 50

// MySQLStore implements the Store interface using GORM and MySQL.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new MySQL-backed report store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Save stores a finalized summary.
func (s *MySQLStore) Save(ctx context.Context, sum summary.Report) error {
	r, err := FromSummary(sum)
	if err != nil {
		return err
	}
	return s.Create(ctx, r)
}

// Create inserts a report and its artifacts in one transaction.
func (s *MySQLStore) Create(ctx context.Context, r *Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for i := range r.Artifacts {
		if err := r.Artifacts[i].Validate(); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error(ctx, "failed to create report", map[string]interface{}{
			"error":      err.Error(),
			"story_name": r.StoryName,
			"flow_name":  r.FlowName,
		})
		return err
	}

	s.logger.Info(ctx, "report created", map[string]interface{}{
		"report_id":  r.ID,
		"story_name": r.StoryName,
		"flow_name":  r.FlowName,
		"status":     r.Status,
		"artifacts":  len(r.Artifacts),
	})

	return nil
}

// GetByID retrieves a report by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	var r Report
	err := s.db.WithContext(ctx).
		Preload("Artifacts", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC")
		}).
		Where("id = ?", id).
		First(&r).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		s.logger.Error(ctx, "failed to get report by ID", map[string]interface{}{
			"error":     err.Error(),
			"report_id": id,
		})
		return nil, err
	}

	sortArtifacts(r.Artifacts)
	return &r, nil
}

// List retrieves a paginated list of reports.
func (s *MySQLStore) List(ctx context.Context, filter Filter, limit, offset int) ([]*Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	q := s.db.WithContext(ctx).Model(&Report{})
	if filter.StoryName != "" {
		q = q.Where("story_name = ?", filter.StoryName)
	}
	if filter.FlowName != "" {
		q = q.Where("flow_name = ?", filter.FlowName)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var reports []*Report
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list reports", map[string]interface{}{
			"error":  err.Error(),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return reports, nil
}

// Delete removes a report and its artifacts.
func (s *MySQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", id).Delete(&Artifact{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&Report{})
		if result.Error != nil {
			s.logger.Error(ctx, "failed to delete report", map[string]interface{}{
				"error":     result.Error.Error(),
				"report_id": id,
			})
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrReportNotFound
		}

		s.logger.Info(ctx, "report deleted", map[string]interface{}{
			"report_id": id,
		})
		return nil
	})
}
