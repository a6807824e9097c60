package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/ui-replay/browser/browsertest"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/replay"
	"github.com/hairizuan-noorazman/ui-replay/session"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

type memSink struct {
	reports chan summary.Report
}

func (s *memSink) Save(ctx context.Context, r summary.Report) error {
	s.reports <- r
	return nil
}

func fastReplayConfig() replay.Config {
	return replay.Config{
		QuickSettle:        time.Millisecond,
		AnimationDelay:     time.Millisecond,
		PopupSettleTimeout: 100 * time.Millisecond,
		PopupWait:          10 * time.Millisecond,
		Settle: ledger.Config{
			PollInterval: 5 * time.Millisecond,
			Timeout:      100 * time.Millisecond,
		},
	}
}

// newTestManager builds a session manager whose replayers drive in-memory
// browsers.
func newTestManager(t *testing.T) (*session.Manager, *memSink) {
	t.Helper()
	log := logger.NewTestLogger()
	sink := &memSink{reports: make(chan summary.Report, 16)}
	factory := func(ctx context.Context, storyName string, f flow.Flow) (session.Replayer, error) {
		return replay.New(storyName, f, replay.Options{
			Config:  fastReplayConfig(),
			Browser: browsertest.NewBrowser(),
			Logger:  log,
		})
	}
	mgr := session.NewManager(factory, sink, time.Hour, nil, log)
	t.Cleanup(func() { mgr.Shutdown(context.Background()) })
	return mgr, sink
}

// dialReplay starts a server for h and connects a client to its socket.
func dialReplay(t *testing.T, h *ReplayHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewRouter(Routes{Replay: h}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/replay/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}
