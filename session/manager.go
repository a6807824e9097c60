package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/replay"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// DefaultIdleTimeout is how long a session may sit untouched before it is reaped.
const DefaultIdleTimeout = 30 * time.Minute

// Reply types sent back to the controller.
const (
	ReplyStepEnd       = "step-end"
	ReplyDisconnected  = "browser-disconnected"
	ReplyAbolished     = "browser-abolished"
	ReplyReadyToSwitch = "ready-to-switch"
)

// Factory creates the replayer for a newly launched session.
type Factory func(ctx context.Context, storyName string, f flow.Flow) (Replayer, error)

// ReportSink persists finalized summaries.
type ReportSink interface {
	Save(ctx context.Context, report summary.Report) error
}

// Reply is the answer to a controller request.
type Reply struct {
	Type      string `json:"-"`
	StoryName string `json:"storyName"`
	FlowName  string `json:"flowName"`

	// Index, Error and ErrorKind are set for step-end replies.
	Index     int    `json:"index"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`

	Screenshot *summary.Screenshot `json:"screenshot,omitempty"`
	Summary    *summary.Report     `json:"summary,omitempty"`
}

// Manager owns every live replay session of the process.
type Manager struct {
	store       *Store
	factory     Factory
	sink        ReportSink
	idleTimeout time.Duration
	metrics     *metrics.Metrics
	logger      logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a session manager. sink and m may be nil.
func NewManager(factory Factory, sink ReportSink, idleTimeout time.Duration, m *metrics.Metrics, log logger.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		store:       NewStore(),
		factory:     factory,
		sink:        sink,
		idleTimeout: idleTimeout,
		metrics:     m,
		logger:      log,
		stopCh:      make(chan struct{}),
	}
}

// Launch creates a session for the flow and executes its start step. A
// session already registered under the same key is disconnected first.
func (m *Manager) Launch(ctx context.Context, storyName string, f flow.Flow) (Reply, error) {
	key := Key{Story: storyName, Flow: f.Name}
	r, err := m.factory(ctx, storyName, f)
	if err != nil {
		return Reply{}, err
	}
	s := newSession(key, r)
	if prev := m.store.Set(s); prev != nil {
		m.logger.Warn(ctx, "Replacing existing session", map[string]interface{}{
			"story": key.Story,
			"flow":  key.Flow,
		})
		m.finish(ctx, prev, CommandDisconnect)
	} else {
		m.metrics.SessionOpened()
	}

	m.logger.Info(ctx, "Session launched", map[string]interface{}{
		"session_id": s.ID.String(),
		"story":      key.Story,
		"flow":       key.Flow,
	})

	s.begin()
	defer s.done()
	res, err := r.Start(ctx)
	return m.stepEnd(s, res, err), nil
}

// Continue applies a controller request to the session for key.
func (m *Manager) Continue(ctx context.Context, key Key, f flow.Flow, index int, cmd Command) (Reply, error) {
	switch cmd {
	case CommandDisconnect, CommandAbolish:
		report, err := m.Terminate(ctx, key, cmd)
		if err != nil {
			return Reply{}, err
		}
		typ := ReplyDisconnected
		if cmd == CommandAbolish {
			typ = ReplyAbolished
		}
		return Reply{Type: typ, StoryName: key.Story, FlowName: key.Flow, Summary: &report}, nil

	case CommandSwitchToRecord:
		s, err := m.store.Get(key)
		if err != nil {
			return Reply{}, err
		}
		s.Replayer.SwitchToRecord(ctx)
		return Reply{Type: ReplyReadyToSwitch, StoryName: key.Story, FlowName: key.Flow}, nil

	case CommandNone:
		s, err := m.store.Get(key)
		if err != nil {
			return Reply{}, err
		}
		s.begin()
		defer s.done()
		res, err := s.Replayer.Next(ctx, f, index)
		if errors.Is(err, replay.ErrSessionClosed) || errors.Is(err, replay.ErrRecording) ||
			errors.Is(err, replay.ErrIndexOutOfRange) || errors.Is(err, replay.ErrInvalidFlow) {
			return Reply{}, err
		}
		return m.stepEnd(s, res, err), nil

	default:
		return Reply{}, ErrInvalidCommand
	}
}

// Terminate removes the session for key and disconnects or abolishes its
// browser. Teardown problems are logged, never returned.
func (m *Manager) Terminate(ctx context.Context, key Key, cmd Command) (summary.Report, error) {
	s, err := m.store.Take(key)
	if err != nil {
		return summary.Report{}, err
	}
	m.metrics.SessionClosed()
	return m.finish(ctx, s, cmd), nil
}

func (m *Manager) finish(ctx context.Context, s *Session, cmd Command) summary.Report {
	var report summary.Report
	if cmd == CommandAbolish {
		report = s.Replayer.Abolish(ctx)
	} else {
		report = s.Replayer.Disconnect(ctx)
	}

	m.logger.Info(ctx, "Session finished", map[string]interface{}{
		"session_id": s.ID.String(),
		"story":      s.Key.Story,
		"flow":       s.Key.Flow,
		"command":    string(cmd),
		"failed":     report.NumberOfFailed,
	})

	if m.sink != nil {
		if err := m.sink.Save(ctx, report); err != nil {
			m.logger.Error(ctx, "Failed to save replay report", map[string]interface{}{
				"story": s.Key.Story,
				"flow":  s.Key.Flow,
				"error": err.Error(),
			})
		}
	}
	return report
}

func (m *Manager) stepEnd(s *Session, res replay.Result, err error) Reply {
	report := s.Replayer.Summary().Snapshot()
	reply := Reply{
		Type:       ReplyStepEnd,
		StoryName:  s.Key.Story,
		FlowName:   s.Key.Flow,
		Index:      res.Index,
		Screenshot: res.Screenshot,
		Summary:    &report,
	}
	if err != nil {
		reply.Error = err.Error()
		reply.ErrorKind = replay.Kind(err)
	}
	return reply
}

// Get returns the session for key.
func (m *Manager) Get(key Key) (*Session, error) {
	return m.store.Get(key)
}

// List describes every live session.
func (m *Manager) List() []Info {
	sessions := m.store.List()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.store.Len()
}

// ReapIdle disconnects sessions idle longer than the idle timeout and
// returns how many were removed.
func (m *Manager) ReapIdle(ctx context.Context) int {
	removed := 0
	for _, s := range m.store.Idle(m.idleTimeout) {
		if !m.store.TakeIf(s) {
			continue
		}
		m.metrics.SessionClosed()
		m.finish(ctx, s, CommandDisconnect)
		removed++
	}
	return removed
}

// StartCleanup starts a background goroutine that periodically reaps idle sessions.
func (m *Manager) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				removed := m.ReapIdle(context.Background())
				if removed > 0 {
					m.logger.Info(context.Background(), "Reaped idle sessions", map[string]interface{}{
						"removed_count": removed,
					})
				}
			case <-m.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine.
func (m *Manager) StopCleanup() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Shutdown stops the reaper and disconnects every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.StopCleanup()
	for _, s := range m.store.List() {
		if m.store.TakeIf(s) {
			m.metrics.SessionClosed()
			m.finish(ctx, s, CommandDisconnect)
		}
	}
}
