package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/ui-replay/database"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/report"
	"github.com/hairizuan-noorazman/ui-replay/session"
	"github.com/hairizuan-noorazman/ui-replay/storage"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

// ErrFlowsFailed is returned when at least one replayed flow reported a step error.
var ErrFlowsFailed = errors.New("one or more flows failed")

var (
	runFlowsPattern string
	runStoryName    string
	runPersist      bool
	runCloseBrowser bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay flow files end to end and print their summaries",
	RunE:  runLocal,
}

func init() {
	runCmd.Flags().StringVar(&runFlowsPattern, "flows", "flows/**/*.{json,yaml,yml}", "glob of flow files to replay")
	runCmd.Flags().StringVar(&runStoryName, "story", "local", "story name the flows are replayed under")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "save reports to the configured database")
	runCmd.Flags().BoolVar(&runCloseBrowser, "close", true, "close the browser after each flow instead of leaving it open")
	rootCmd.AddCommand(runCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogrusLoggerWithConfig(cfg.Log)
	defer log.Close()

	flows, err := loadFlows(runFlowsPattern)
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var sink session.ReportSink
	if runPersist {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		defer sqlDB.Close()
		if err := database.RunMigrations(sqlDB, cfg.Database.Driver, ""); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		sink = report.NewMySQLStore(db, log)
	}

	m := metrics.New()
	factory, err := newReplayerFactory(cfg, store, nil, m, log)
	if err != nil {
		return err
	}
	mgr := session.NewManager(factory.New, sink, cfg.Session.IdleTimeout, m, log)
	defer mgr.Shutdown(ctx)

	end := session.CommandDisconnect
	if runCloseBrowser {
		end = session.CommandAbolish
	}
	reports, err := replayFlows(ctx, mgr, runStoryName, flows, end)
	if werr := writeReports(cmd.OutOrStdout(), reports); werr != nil {
		return werr
	}
	return err
}

// loadFlows expands pattern and loads every matching flow file in path order.
func loadFlows(pattern string) ([]flow.Flow, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid flow pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no flow files match %q", pattern)
	}
	sort.Strings(paths)

	flows := make([]flow.Flow, 0, len(paths))
	for _, p := range paths {
		f, err := flow.Load(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		flows = append(flows, f)
	}
	return flows, nil
}

// flowController is the subset of the session manager the runner drives.
type flowController interface {
	Launch(ctx context.Context, storyName string, f flow.Flow) (session.Reply, error)
	Continue(ctx context.Context, key session.Key, f flow.Flow, index int, cmd session.Command) (session.Reply, error)
}

// replayFlows plays each flow to its end, or to its first failing step, and
// ends the session with end. Flows run one after another.
func replayFlows(ctx context.Context, ctrl flowController, storyName string, flows []flow.Flow, end session.Command) ([]summary.Report, error) {
	reports := make([]summary.Report, 0, len(flows))
	failed := false
	for _, f := range flows {
		rep, ok, err := replayFlow(ctx, ctrl, storyName, f, end)
		if err != nil {
			return reports, fmt.Errorf("flow %s: %w", f.Name, err)
		}
		reports = append(reports, rep)
		if !ok {
			failed = true
		}
	}
	if failed {
		return reports, ErrFlowsFailed
	}
	return reports, nil
}

func replayFlow(ctx context.Context, ctrl flowController, storyName string, f flow.Flow, end session.Command) (summary.Report, bool, error) {
	key := session.Key{Story: storyName, Flow: f.Name}

	reply, err := ctrl.Launch(ctx, storyName, f)
	if err != nil {
		return summary.Report{}, false, err
	}
	ok := reply.Error == ""
	for i := 1; ok && i < len(f.Steps); i++ {
		reply, err = ctrl.Continue(ctx, key, f, i, session.CommandNone)
		if err != nil {
			return summary.Report{}, false, err
		}
		ok = reply.Error == ""
	}

	reply, err = ctrl.Continue(ctx, key, f, 0, end)
	if err != nil {
		return summary.Report{}, false, err
	}
	if reply.Summary == nil {
		return summary.Report{}, ok, nil
	}
	return *reply.Summary, ok, nil
}

func writeReports(w io.Writer, reports []summary.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	return nil
}
