package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/summary"
	"github.com/hairizuan-noorazman/ui-replay/testutil"
)

func TestMySQLStore_Save(t *testing.T) {
	_, store, log := setupTestStore(t)
	ctx := context.Background()

	shot := summary.Screenshot{
		StepIndex: 1,
		StepUUID:  "s1",
		Baseline:  "shop/checkout/s1_baseline.png",
		Replay:    "shop/checkout/s1_replay.png",
		Diff:      "shop/checkout/s1_diff.png",
	}
	require.NoError(t, store.Save(ctx, createSummary("shop", "checkout", 1, shot)))
	assert.True(t, log.HasMessage("info", "report created"))

	reports, err := store.List(ctx, Filter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	got, err := store.GetByID(ctx, reports[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.Len(t, got.Artifacts, 3)
	for _, a := range got.Artifacts {
		assert.Equal(t, got.ID, a.ReportID)
	}
	assert.Equal(t, ArtifactBaseline, got.Artifacts[0].Kind)

	decoded, err := got.Decode()
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.NumberOfAjax)
}

func TestMySQLStore_CreateValidates(t *testing.T) {
	_, store, _ := setupTestStore(t)
	ctx := context.Background()

	err := store.Create(ctx, &Report{FlowName: "checkout"})
	assert.ErrorIs(t, err, ErrInvalidStoryName)

	err = store.Create(ctx, &Report{
		StoryName: "shop",
		FlowName:  "checkout",
		Status:    StatusPassed,
		Artifacts: []Artifact{{Kind: "video", Path: "a.mp4"}},
	})
	assert.ErrorIs(t, err, ErrInvalidArtifactKind)
}

func TestMySQLStore_GetByIDNotFound(t *testing.T) {
	_, store, _ := setupTestStore(t)

	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestMySQLStore_List(t *testing.T) {
	db, store, _ := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*Report{
		{StoryName: "shop", FlowName: "checkout", Status: StatusPassed, CreatedAt: base},
		{StoryName: "shop", FlowName: "checkout", Status: StatusFailed, CreatedAt: base.Add(time.Hour)},
		{StoryName: "shop", FlowName: "login", Status: StatusPassed, CreatedAt: base.Add(2 * time.Hour)},
		{StoryName: "blog", FlowName: "post", Status: StatusPassed, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, r := range rows {
		testutil.CreateFixture(t, db, r)
	}

	tests := []struct {
		name   string
		filter Filter
		limit  int
		offset int
		want   []uuid.UUID
	}{
		{
			name: "all newest first",
			want: []uuid.UUID{rows[3].ID, rows[2].ID, rows[1].ID, rows[0].ID},
		},
		{
			name:   "by story",
			filter: Filter{StoryName: "shop"},
			want:   []uuid.UUID{rows[2].ID, rows[1].ID, rows[0].ID},
		},
		{
			name:   "by story and flow",
			filter: Filter{StoryName: "shop", FlowName: "checkout"},
			want:   []uuid.UUID{rows[1].ID, rows[0].ID},
		},
		{
			name:   "by status",
			filter: Filter{Status: StatusFailed},
			want:   []uuid.UUID{rows[1].ID},
		},
		{
			name:   "paginated",
			limit:  2,
			offset: 1,
			want:   []uuid.UUID{rows[2].ID, rows[1].ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter, tt.limit, tt.offset)
			require.NoError(t, err)

			ids := make([]uuid.UUID, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMySQLStore_Delete(t *testing.T) {
	db, store, _ := setupTestStore(t)
	ctx := context.Background()

	shot := summary.Screenshot{StepIndex: 1, StepUUID: "s1", Diff: "shop/checkout/s1_diff.png"}
	require.NoError(t, store.Save(ctx, createSummary("shop", "checkout", 1, shot)))
	reports, err := store.List(ctx, Filter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	id := reports[0].ID

	require.NoError(t, store.Delete(ctx, id))

	var artifacts int64
	require.NoError(t, db.Model(&Artifact{}).Where("report_id = ?", id).Count(&artifacts).Error)
	assert.Zero(t, artifacts)

	assert.ErrorIs(t, store.Delete(ctx, id), ErrReportNotFound)
}

func TestMySQLStore_AgainstMigratedSchema(t *testing.T) {
	db := testutil.SetupMigratedDB(t)
	store := NewMySQLStore(db, logger.NewTestLogger())
	ctx := context.Background()

	shot := summary.Screenshot{StepIndex: 3, StepUUID: "s3", Replay: "shop/checkout/s3_replay.png", Diff: "shop/checkout/s3_diff.png"}
	require.NoError(t, store.Save(ctx, createSummary("shop", "checkout", 1, shot)))

	reports, err := store.List(ctx, Filter{StoryName: "shop"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	got, err := store.GetByID(ctx, reports[0].ID)
	require.NoError(t, err)
	assert.Len(t, got.Artifacts, 2)
	require.NotNil(t, got.FinishedAt)
}
