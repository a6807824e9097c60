package report

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrInvalidArtifactKind is returned when an artifact kind is unknown.
	ErrInvalidArtifactKind = errors.New("invalid artifact kind")

	// ErrInvalidArtifactPath is returned when path is empty.
	ErrInvalidArtifactPath = errors.New("artifact path is required")
)

// ArtifactKind is the role of a stored screenshot.
type ArtifactKind string

const (
	ArtifactBaseline ArtifactKind = "baseline"
	ArtifactReplay   ArtifactKind = "replay"
	ArtifactDiff     ArtifactKind = "diff"
)

// IsValid checks if the artifact kind is valid.
func (k ArtifactKind) IsValid() bool {
	switch k {
	case ArtifactBaseline, ArtifactReplay, ArtifactDiff:
		return true
	default:
		return false
	}
}

// Artifact is a screenshot kept for a failed comparison.
type Artifact struct {
	ID         uuid.UUID    `json:"id" gorm:"type:char(36);primaryKey"`
	ReportID   uuid.UUID    `json:"report_id" gorm:"type:char(36);not null;index:idx_report_id"`
	StepIndex  int          `json:"step_index" gorm:"not null"`
	StepUUID   string       `json:"step_uuid" gorm:"type:varchar(64);not null"`
	Kind       ArtifactKind `json:"kind" gorm:"type:varchar(20);not null"`
	Path       string       `json:"path" gorm:"type:varchar(512);not null"`
	Similarity float64      `json:"similarity"`
}

// TableName pins the table created by the migrations.
func (Artifact) TableName() string {
	return "replay_artifacts"
}

// BeforeCreate hook to generate UUID before creating a new artifact
func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Validate checks if the artifact has valid required fields.
func (a *Artifact) Validate() error {
	if !a.Kind.IsValid() {
		return ErrInvalidArtifactKind
	}
	if a.Path == "" {
		return ErrInvalidArtifactPath
	}
	return nil
}

var kindOrder = map[ArtifactKind]int{
	ArtifactBaseline: 0,
	ArtifactReplay:   1,
	ArtifactDiff:     2,
}

func sortArtifacts(artifacts []Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].StepIndex != artifacts[j].StepIndex {
			return artifacts[i].StepIndex < artifacts[j].StepIndex
		}
		return kindOrder[artifacts[i].Kind] < kindOrder[artifacts[j].Kind]
	})
}
