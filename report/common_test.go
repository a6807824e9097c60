package report

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/summary"
	"github.com/hairizuan-noorazman/ui-replay/testutil"
)

// setupTestStore creates a test database and report store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, *MySQLStore, *logger.TestLogger) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Report{}, &Artifact{})

	log := logger.NewTestLogger()
	return db, NewMySQLStore(db, log), log
}

// createSummary builds a finalized summary with default values.
func createSummary(story, flow string, failed int, shots ...summary.Screenshot) summary.Report {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := started.Add(time.Minute)
	if shots == nil {
		shots = []summary.Screenshot{}
	}
	return summary.Report{
		StoryName:          story,
		FlowName:           flow,
		NumberOfStep:       5,
		NumberOfUIBehavior: 3,
		NumberOfSuccess:    5 - failed,
		NumberOfFailed:     failed,
		NumberOfAjax:       4,
		AjaxP95:            120,
		SlowAjaxRequest:    []summary.SlowAjax{},
		ScreenshotTest:     shots,
		Errors:             []summary.StepFailure{},
		StartedAt:          started,
		FinishedAt:         &finished,
	}
}
