package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/replay"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

type fakeReplayer struct {
	mu        sync.Mutex
	flow      flow.Flow
	summary   *summary.Summary
	cursor    int
	state     replay.State
	failAt    map[int]error
	calls     []string
	startErr  error
	nextDelay time.Duration
}

func newFakeReplayer(story string, f flow.Flow) *fakeReplayer {
	return &fakeReplayer{
		flow:    f,
		summary: summary.New(story, f.Name),
		state:   replay.StateIdle,
		failAt:  map[int]error{},
	}
}

func (r *fakeReplayer) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeReplayer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeReplayer) Start(ctx context.Context) (replay.Result, error) {
	r.record("start")
	if r.startErr != nil {
		r.summary.RecordStep(0, r.flow.Steps[0], r.startErr)
		return replay.Result{}, r.startErr
	}
	return r.Next(ctx, flow.Flow{}, 0)
}

func (r *fakeReplayer) Next(ctx context.Context, f flow.Flow, index int) (replay.Result, error) {
	r.record(fmt.Sprintf("next:%d", index))
	if r.nextDelay > 0 {
		time.Sleep(r.nextDelay)
	}
	r.mu.Lock()
	if r.state == replay.StateEnded {
		r.mu.Unlock()
		return replay.Result{Index: index}, replay.ErrSessionClosed
	}
	if len(f.Steps) > 0 {
		r.flow = f
	}
	if index < 0 || index >= len(r.flow.Steps) {
		r.mu.Unlock()
		return replay.Result{Index: index}, replay.ErrIndexOutOfRange
	}
	r.cursor = index
	step := r.flow.Steps[index]
	err := r.failAt[index]
	r.mu.Unlock()

	if err != nil {
		err = &replay.StepError{Index: index, StepUUID: step.StepUUID, Type: step.Type, Err: err}
	}
	r.summary.RecordStep(index, step, err)
	return replay.Result{Index: index}, err
}

func (r *fakeReplayer) end(call string) summary.Report {
	r.record(call)
	r.mu.Lock()
	r.state = replay.StateEnded
	r.mu.Unlock()
	return r.summary.Finalize()
}

func (r *fakeReplayer) Disconnect(ctx context.Context) summary.Report { return r.end("disconnect") }
func (r *fakeReplayer) Abolish(ctx context.Context) summary.Report    { return r.end("abolish") }

func (r *fakeReplayer) SwitchToRecord(ctx context.Context) {
	r.record("switch")
	r.mu.Lock()
	r.state = replay.StateRecording
	r.mu.Unlock()
}

func (r *fakeReplayer) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *fakeReplayer) State() replay.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeReplayer) Summary() *summary.Summary { return r.summary }

type memSink struct {
	mu      sync.Mutex
	reports []summary.Report
	err     error
}

func (s *memSink) Save(ctx context.Context, report summary.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}

func (s *memSink) Reports() []summary.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]summary.Report(nil), s.reports...)
}

type managerFixture struct {
	mgr       *Manager
	sink      *memSink
	log       *logger.TestLogger
	replayers []*fakeReplayer
	configure func(*fakeReplayer)
	mu        sync.Mutex
}

func newManagerFixture(t *testing.T, idle time.Duration) *managerFixture {
	t.Helper()
	fx := &managerFixture{sink: &memSink{}, log: logger.NewTestLogger()}
	factory := func(ctx context.Context, storyName string, f flow.Flow) (Replayer, error) {
		r := newFakeReplayer(storyName, f)
		fx.mu.Lock()
		defer fx.mu.Unlock()
		if fx.configure != nil {
			fx.configure(r)
		}
		fx.replayers = append(fx.replayers, r)
		return r, nil
	}
	fx.mgr = NewManager(factory, fx.sink, idle, metrics.New(), fx.log)
	t.Cleanup(fx.mgr.StopCleanup)
	return fx
}

func (fx *managerFixture) replayer(i int) *fakeReplayer {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.replayers[i]
}

func testFlow(name string) flow.Flow {
	return flow.Flow{
		Name: name,
		Steps: []flow.Step{
			{Type: flow.StepStart, UUID: "main", StepUUID: "s0", URL: "http://app.local/"},
			{Type: flow.StepClick, UUID: "main", StepUUID: "s1", Path: "//button"},
			{Type: flow.StepEnd, UUID: "main", StepUUID: "s2"},
		},
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		raw     string
		want    Command
		wantErr bool
	}{
		{raw: "", want: CommandNone},
		{raw: "disconnect", want: CommandDisconnect},
		{raw: "abolish", want: CommandAbolish},
		{raw: "switch-to-record", want: CommandSwitchToRecord},
		{raw: "explode", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCommand(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_IsIdle(t *testing.T) {
	tests := []struct {
		name       string
		lastActive time.Time
		busy       int
		want       bool
	}{
		{name: "recently active", lastActive: time.Now(), want: false},
		{name: "idle", lastActive: time.Now().Add(-time.Hour), want: true},
		{name: "busy but old", lastActive: time.Now().Add(-time.Hour), busy: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{lastActive: tt.lastActive, busy: tt.busy}
			assert.Equal(t, tt.want, s.IsIdle(time.Minute))
		})
	}
}

func TestStore_SetGetTake(t *testing.T) {
	store := NewStore()
	key := Key{Story: "story", Flow: "login"}
	first := newSession(key, newFakeReplayer("story", testFlow("login")))

	assert.Nil(t, store.Set(first))
	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Same(t, first, got)

	second := newSession(key, newFakeReplayer("story", testFlow("login")))
	assert.Same(t, first, store.Set(second))
	assert.Equal(t, 1, store.Len())

	assert.False(t, store.TakeIf(first))
	taken, err := store.Take(key)
	require.NoError(t, err)
	assert.Same(t, second, taken)

	_, err = store.Get(key)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Take(key)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_ListOrderedByKey(t *testing.T) {
	store := NewStore()
	for _, name := range []string{"c", "a", "b"} {
		store.Set(newSession(Key{Story: "s", Flow: name}, newFakeReplayer("s", testFlow(name))))
	}

	var names []string
	for _, s := range store.List() {
		names = append(names, s.Key.Flow)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{Story: "s", Flow: fmt.Sprintf("f-%d", i)}
			store.Set(newSession(key, newFakeReplayer("s", testFlow(key.Flow))))
			_, _ = store.Get(key)
			store.List()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, store.Len())
}

func TestManager_LaunchRunsStartStep(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	reply, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	assert.Equal(t, ReplyStepEnd, reply.Type)
	assert.Equal(t, "story", reply.StoryName)
	assert.Equal(t, "login", reply.FlowName)
	assert.Equal(t, 0, reply.Index)
	assert.Empty(t, reply.Error)
	require.NotNil(t, reply.Summary)
	assert.Equal(t, 1, reply.Summary.NumberOfSuccess)

	assert.Equal(t, []string{"start", "next:0"}, fx.replayer(0).Calls())
	assert.True(t, fx.log.HasMessage("info", "Session launched"))
	assert.Len(t, fx.mgr.List(), 1)
}

func TestManager_LaunchReplacesStaleSession(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)
	_, err = fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "next:0", "disconnect"}, fx.replayer(0).Calls())
	assert.Len(t, fx.mgr.List(), 1)
	assert.Len(t, fx.sink.Reports(), 1)
	assert.True(t, fx.log.HasMessage("warn", "Replacing existing session"))

	s, err := fx.mgr.Get(Key{Story: "story", Flow: "login"})
	require.NoError(t, err)
	assert.Same(t, fx.replayer(1), s.Replayer)
}

func TestManager_ContinueStep(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	fx.configure = func(r *fakeReplayer) {
		r.failAt[1] = fmt.Errorf("%w: //button", replay.ErrElementNotFound)
	}
	ctx := context.Background()
	key := Key{Story: "story", Flow: "login"}

	_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	reply, err := fx.mgr.Continue(ctx, key, flow.Flow{}, 1, CommandNone)
	require.NoError(t, err)
	assert.Equal(t, ReplyStepEnd, reply.Type)
	assert.Equal(t, 1, reply.Index)
	assert.Contains(t, reply.Error, "element not found")
	assert.Equal(t, "ElementNotFound", reply.ErrorKind)
	assert.Equal(t, 1, reply.Summary.NumberOfFailed)

	reply, err = fx.mgr.Continue(ctx, key, flow.Flow{}, 2, CommandNone)
	require.NoError(t, err)
	assert.Empty(t, reply.Error)
	assert.Equal(t, 2, reply.Summary.NumberOfSuccess)
}

func TestManager_ContinueErrors(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	ctx := context.Background()
	key := Key{Story: "story", Flow: "login"}

	_, err := fx.mgr.Continue(ctx, key, flow.Flow{}, 1, CommandNone)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	_, err = fx.mgr.Continue(ctx, key, flow.Flow{}, 9, CommandNone)
	assert.ErrorIs(t, err, replay.ErrIndexOutOfRange)

	_, err = fx.mgr.Continue(ctx, key, flow.Flow{}, 1, Command("explode"))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestManager_Terminate(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		wantType string
		wantCall string
	}{
		{name: "disconnect", cmd: CommandDisconnect, wantType: ReplyDisconnected, wantCall: "disconnect"},
		{name: "abolish", cmd: CommandAbolish, wantType: ReplyAbolished, wantCall: "abolish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newManagerFixture(t, time.Hour)
			ctx := context.Background()
			key := Key{Story: "story", Flow: "login"}

			_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
			require.NoError(t, err)

			reply, err := fx.mgr.Continue(ctx, key, flow.Flow{}, 0, tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, reply.Type)
			require.NotNil(t, reply.Summary)
			assert.NotNil(t, reply.Summary.FinishedAt)
			assert.Contains(t, fx.replayer(0).Calls(), tt.wantCall)

			assert.Empty(t, fx.mgr.List())
			assert.Len(t, fx.sink.Reports(), 1)

			_, err = fx.mgr.Continue(ctx, key, flow.Flow{}, 0, tt.cmd)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestManager_SinkFailureIsLogged(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	fx.sink.err = errors.New("db down")
	ctx := context.Background()

	_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	_, err = fx.mgr.Terminate(ctx, Key{Story: "story", Flow: "login"}, CommandDisconnect)
	require.NoError(t, err)
	assert.True(t, fx.log.HasMessage("error", "Failed to save replay report"))
}

func TestManager_SwitchToRecord(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	ctx := context.Background()
	key := Key{Story: "story", Flow: "login"}

	_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	reply, err := fx.mgr.Continue(ctx, key, flow.Flow{}, 0, CommandSwitchToRecord)
	require.NoError(t, err)
	assert.Equal(t, ReplyReadyToSwitch, reply.Type)
	assert.Equal(t, replay.StateRecording, fx.replayer(0).State())

	// The session stays registered so the controller can still end it.
	assert.Len(t, fx.mgr.List(), 1)
}

func TestManager_ReapIdle(t *testing.T) {
	fx := newManagerFixture(t, 10*time.Millisecond)
	ctx := context.Background()

	_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)
	_, err = fx.mgr.Launch(ctx, "story", testFlow("checkout"))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, fx.mgr.ReapIdle(ctx))
	assert.Empty(t, fx.mgr.List())
	assert.Len(t, fx.sink.Reports(), 2)
}

func TestManager_CleanupLoop(t *testing.T) {
	fx := newManagerFixture(t, 10*time.Millisecond)
	ctx := context.Background()

	_, err := fx.mgr.Launch(ctx, "story", testFlow("login"))
	require.NoError(t, err)

	fx.mgr.StartCleanup(5 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(fx.mgr.List()) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return fx.log.HasMessage("info", "Reaped idle sessions")
	}, time.Second, 5*time.Millisecond)
}

func TestManager_Shutdown(t *testing.T) {
	fx := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := fx.mgr.Launch(ctx, "story", testFlow(name))
		require.NoError(t, err)
	}

	fx.mgr.Shutdown(ctx)
	assert.Empty(t, fx.mgr.List())
	assert.Len(t, fx.sink.Reports(), 2)
	for i := 0; i < 2; i++ {
		assert.Contains(t, fx.replayer(i).Calls(), "disconnect")
	}
}

func TestSession_Info(t *testing.T) {
	r := newFakeReplayer("story", testFlow("login"))
	s := newSession(Key{Story: "story", Flow: "login"}, r)
	_, err := r.Start(context.Background())
	require.NoError(t, err)

	info := s.Info()
	assert.Equal(t, s.ID.String(), info.ID)
	assert.Equal(t, "story", info.StoryName)
	assert.Equal(t, "login", info.FlowName)
	assert.Equal(t, replay.StateIdle, info.State)
	assert.Equal(t, 1, info.Summary.NumberOfStep)
}
