package testutil

import (
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// CreateFixture creates a fixture in the database.
func CreateFixture(t *testing.T, db *gorm.DB, model interface{}) {
	t.Helper()
	if err := db.Create(model).Error; err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
}

// CreateFixtures creates multiple fixtures in the database.
func CreateFixtures(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()
	for _, model := range models {
		CreateFixture(t, db, model)
	}
}

// NewFlow builds a valid flow on the "main" page: a start step opening url,
// one click per xpath, and an end step.
func NewFlow(name, url string, clicks ...string) flow.Flow {
	steps := []flow.Step{{Type: flow.StepStart, UUID: "main", StepUUID: "start", URL: url}}
	for i, path := range clicks {
		steps = append(steps, flow.Step{
			Type:     flow.StepClick,
			UUID:     "main",
			StepUUID: fmt.Sprintf("click-%d", i+1),
			Path:     path,
		})
	}
	steps = append(steps, flow.Step{Type: flow.StepEnd, UUID: "main", StepUUID: "end"})
	return flow.Flow{Name: name, Steps: steps}
}
