// Package report persists the finalized summaries of replay sessions.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/ui-replay/summary"
)

var (
	// ErrReportNotFound is returned when a report is not found.
	ErrReportNotFound = errors.New("report not found")

	// ErrInvalidStoryName is returned when story_name is not set.
	ErrInvalidStoryName = errors.New("story_name is required")

	// ErrInvalidFlowName is returned when flow_name is not set.
	ErrInvalidFlowName = errors.New("flow_name is required")
)

// Status is the overall outcome of a replay.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Report is one finalized replay session.
type Report struct {
	ID                 uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	StoryName          string     `json:"story_name" gorm:"type:varchar(255);not null;index:idx_story_flow"`
	FlowName           string     `json:"flow_name" gorm:"type:varchar(255);not null;index:idx_story_flow"`
	Status             Status     `json:"status" gorm:"type:varchar(20);not null;index:idx_status"`
	NumberOfStep       int        `json:"number_of_step" gorm:"not null"`
	NumberOfUIBehavior int        `json:"number_of_ui_behavior" gorm:"not null"`
	NumberOfSuccess    int        `json:"number_of_success" gorm:"not null"`
	NumberOfFailed     int        `json:"number_of_failed" gorm:"not null"`
	NumberOfAjax       int        `json:"number_of_ajax" gorm:"not null"`
	NumberOfAjaxFailed int        `json:"number_of_ajax_failed" gorm:"not null"`
	AjaxP95Millis      int64      `json:"ajax_p95_millis" gorm:"not null"`
	Summary            string     `json:"-" gorm:"type:text"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at" gorm:"index:idx_created_at"`

	Artifacts []Artifact `json:"artifacts,omitempty" gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table created by the migrations.
func (Report) TableName() string {
	return "replay_reports"
}

// BeforeCreate hook to generate UUID before creating a new report
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Validate checks if the report has valid required fields.
func (r *Report) Validate() error {
	if r.StoryName == "" {
		return ErrInvalidStoryName
	}
	if r.FlowName == "" {
		return ErrInvalidFlowName
	}
	return nil
}

// Decode returns the full summary stored with the report.
func (r *Report) Decode() (summary.Report, error) {
	var out summary.Report
	if r.Summary == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Summary), &out); err != nil {
		return out, fmt.Errorf("failed to decode summary: %w", err)
	}
	return out, nil
}

// FromSummary builds a report row, with its artifacts, from a finalized summary.
func FromSummary(s summary.Report) (*Report, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}

	status := StatusPassed
	if !s.Passed() {
		status = StatusFailed
	}

	r := &Report{
		StoryName:          s.StoryName,
		FlowName:           s.FlowName,
		Status:             status,
		NumberOfStep:       s.NumberOfStep,
		NumberOfUIBehavior: s.NumberOfUIBehavior,
		NumberOfSuccess:    s.NumberOfSuccess,
		NumberOfFailed:     s.NumberOfFailed,
		NumberOfAjax:       s.NumberOfAjax,
		NumberOfAjaxFailed: s.NumberOfAjaxFailed,
		AjaxP95Millis:      s.AjaxP95,
		Summary:            string(raw),
		StartedAt:          s.StartedAt,
		FinishedAt:         s.FinishedAt,
	}

	for _, shot := range s.ScreenshotTest {
		for kind, p := range map[ArtifactKind]string{
			ArtifactBaseline: shot.Baseline,
			ArtifactReplay:   shot.Replay,
			ArtifactDiff:     shot.Diff,
		} {
			if p == "" {
				continue
			}
			r.Artifacts = append(r.Artifacts, Artifact{
				StepIndex:  shot.StepIndex,
				StepUUID:   shot.StepUUID,
				Kind:       kind,
				Path:       p,
				Similarity: shot.Similarity,
			})
		}
	}
	sortArtifacts(r.Artifacts)
	return r, nil
}
