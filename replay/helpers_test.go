package replay

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hairizuan-noorazman/ui-replay/browser/browsertest"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/ledger"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/screenshot"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Upload(ctx context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = data
	return nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type harness struct {
	t       *testing.T
	r       *Replayer
	browser *browsertest.Browser
	store   *memStore
	log     *logger.TestLogger
}

func testConfig() Config {
	return Config{
		QuickSettle:        time.Millisecond,
		AnimationDelay:     5 * time.Millisecond,
		PopupSettleTimeout: 200 * time.Millisecond,
		PopupWait:          20 * time.Millisecond,
		Settle: ledger.Config{
			PollInterval: 5 * time.Millisecond,
			Timeout:      200 * time.Millisecond,
		},
	}
}

func newHarness(t *testing.T, steps []flow.Step, opts ...func(*Options)) *harness {
	t.Helper()
	b := browsertest.NewBrowser()
	store := newMemStore()
	log := logger.NewTestLogger()

	o := Options{
		Config:     testConfig(),
		Browser:    b,
		Artifacts:  store,
		Comparator: screenshot.NewComparator(store, 0, log),
		Logger:     log,
	}
	for _, fn := range opts {
		fn(&o)
	}

	r, err := New("story", flow.Flow{Name: "login", Steps: steps}, o)
	require.NoError(t, err)
	return &harness{t: t, r: r, browser: b, store: store, log: log}
}

// start executes the start step and returns the main page.
func (h *harness) start() *browsertest.Page {
	h.t.Helper()
	_, err := h.r.Start(context.Background())
	require.NoError(h.t, err)
	return h.page("main")
}

func (h *harness) page(uuid string) *browsertest.Page {
	h.t.Helper()
	p, err := h.r.Registry().Page(uuid)
	require.NoError(h.t, err)
	return p.(*browsertest.Page)
}

func (h *harness) next(index int) (Result, error) {
	return h.r.Next(context.Background(), flow.Flow{}, index)
}

// runAll executes every step after start and fails on the first error.
func (h *harness) runAll() {
	h.t.Helper()
	for i := 1; i < len(h.r.Flow().Steps); i++ {
		_, err := h.next(i)
		require.NoError(h.t, err, "step %d", i)
	}
}

func startStep() flow.Step {
	return flow.Step{Type: flow.StepStart, UUID: "main", StepUUID: "s0", URL: "http://app.local/"}
}

func endStep() flow.Step {
	return flow.Step{Type: flow.StepEnd, UUID: "main", StepUUID: "end"}
}

func boolPtr(b bool) *bool {
	return &b
}
