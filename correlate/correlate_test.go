package correlate

import (
	"testing"

	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPopup(t *testing.T) {
	steps := []flow.Step{
		{Type: flow.StepStart, UUID: "main", URL: "http://app/"},
		{Type: flow.StepPageCreated, UUID: "old", URL: "http://app/help"},
		{Type: flow.StepClick, UUID: "main"},
		{Type: flow.StepPageCreated, UUID: "help", URL: "http://app/help/"},
		{Type: flow.StepPageCreated, UUID: "help-2", URL: "http://app/help"},
		{Type: flow.StepEnd, UUID: "main"},
	}

	tests := []struct {
		name    string
		cursor  int
		url     string
		want    int
		wantErr error
	}{
		{name: "nearest after cursor", cursor: 2, url: "http://app/help", want: 3},
		{name: "skips steps at or before cursor", cursor: 3, url: "http://app/help", want: 4},
		{name: "earliest forward match", cursor: 0, url: "http://app/help/", want: 1},
		{name: "no match", cursor: 0, url: "http://app/other", want: -1, wantErr: ErrBrokenFlow},
		{name: "nothing forward", cursor: 4, url: "http://app/help", want: -1, wantErr: ErrBrokenFlow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchPopup(steps, tt.cursor, tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameURL(t *testing.T) {
	assert.True(t, SameURL("http://a/b", "http://a/b"))
	assert.True(t, SameURL("http://a/b/", "http://a/b"))
	assert.False(t, SameURL("http://a/b", "http://a/c"))
	assert.False(t, SameURL("http://a/b?x=1", "http://a/b"))
}

func TestResolveDialog(t *testing.T) {
	steps := []flow.Step{
		{Type: flow.StepStart, UUID: "main"},
		{Type: flow.StepClick, UUID: "main"},
		{Type: flow.StepDialogOpen, UUID: "main", Dialog: flow.DialogConfirm},
		{Type: flow.StepDialogClose, UUID: "other", Dialog: flow.DialogConfirm, ReturnValue: false},
		{Type: flow.StepDialogClose, UUID: "main", Dialog: flow.DialogConfirm, ReturnValue: true},
		{Type: flow.StepDialogClose, UUID: "main", Dialog: flow.DialogPrompt, ReturnValue: "Ada"},
		{Type: flow.StepDialogClose, UUID: "main", Dialog: flow.DialogPrompt, ReturnValue: nil},
		{Type: flow.StepEnd, UUID: "main"},
	}

	tests := []struct {
		name    string
		cursor  int
		uuid    string
		kind    flow.DialogType
		want    DialogAction
		wantErr error
	}{
		{
			name:   "alert accepted",
			cursor: 1, uuid: "main", kind: flow.DialogAlert,
			want: DialogAction{Accept: true, Index: -1},
		},
		{
			name:   "confirm accepted by truthy return",
			cursor: 1, uuid: "main", kind: flow.DialogConfirm,
			want: DialogAction{Accept: true, Index: 4},
		},
		{
			name:   "confirm on other page dismissed by false return",
			cursor: 1, uuid: "other", kind: flow.DialogConfirm,
			want: DialogAction{Accept: false, Index: 3},
		},
		{
			name:   "prompt answered with recorded text",
			cursor: 4, uuid: "main", kind: flow.DialogPrompt,
			want: DialogAction{Accept: true, PromptText: "Ada", Index: 5},
		},
		{
			name:   "prompt cancelled",
			cursor: 5, uuid: "main", kind: flow.DialogPrompt,
			want: DialogAction{Accept: false, Index: 6},
		},
		{
			name:   "kind mismatch",
			cursor: 1, uuid: "main", kind: flow.DialogPrompt,
			want:    DialogAction{Accept: false, Index: 4},
			wantErr: ErrDialogMismatch,
		},
		{
			name:   "no forward close",
			cursor: 6, uuid: "main", kind: flow.DialogConfirm,
			want:    DialogAction{Accept: false, Index: -1},
			wantErr: ErrBrokenFlow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDialog(steps, tt.cursor, tt.uuid, tt.kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDialog_BeforeUnload(t *testing.T) {
	tests := []struct {
		name  string
		steps []flow.Step
		want  DialogAction
	}{
		{
			name: "page closed next",
			steps: []flow.Step{
				{Type: flow.StepStart, UUID: "main"},
				{Type: flow.StepUnload, UUID: "main"},
				{Type: flow.StepPageClosed, UUID: "main"},
			},
			want: DialogAction{Accept: true, Index: 2},
		},
		{
			name: "page switched next",
			steps: []flow.Step{
				{Type: flow.StepStart, UUID: "main"},
				{Type: flow.StepClick, UUID: "side"},
				{Type: flow.StepPageSwitched, UUID: "main"},
			},
			want: DialogAction{Accept: true, Index: 2},
		},
		{
			name: "user stayed on page",
			steps: []flow.Step{
				{Type: flow.StepStart, UUID: "main"},
				{Type: flow.StepUnload, UUID: "main"},
				{Type: flow.StepClick, UUID: "main"},
				{Type: flow.StepPageClosed, UUID: "main"},
			},
			want: DialogAction{Accept: false, Index: 2},
		},
		{
			name: "nothing forward",
			steps: []flow.Step{
				{Type: flow.StepStart, UUID: "main"},
			},
			want: DialogAction{Accept: false, Index: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDialog(tt.steps, 0, "main", flow.DialogBeforeUnload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
