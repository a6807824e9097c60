package main

import (
	"context"
	"fmt"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/metrics"
	"github.com/hairizuan-noorazman/ui-replay/replay"
	"github.com/hairizuan-noorazman/ui-replay/screenshot"
	"github.com/hairizuan-noorazman/ui-replay/session"
	"github.com/hairizuan-noorazman/ui-replay/storage"
)

// launchFunc obtains a browser for a new session.
type launchFunc func(ctx context.Context, cfg browser.LaunchConfig) (browser.Browser, error)

func launchRod(ctx context.Context, cfg browser.LaunchConfig) (browser.Browser, error) {
	b, err := browser.Launch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// replayerFactory builds one replay session per launch request.
type replayerFactory struct {
	cfg        *Config
	env        *flow.Environment
	launch     launchFunc
	store      storage.BlobStorage
	comparator *screenshot.Comparator
	links      replay.LinkSigner
	metrics    *metrics.Metrics
	logger     logger.Logger
}

func newReplayerFactory(cfg *Config, store storage.BlobStorage, links replay.LinkSigner, m *metrics.Metrics, log logger.Logger) (*replayerFactory, error) {
	env, err := flow.NewEnvironment(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return &replayerFactory{
		cfg:        cfg,
		env:        env,
		launch:     launchRod,
		store:      store,
		comparator: screenshot.NewComparator(store, cfg.Replay.SimilarityThreshold, log),
		links:      links,
		metrics:    m,
		logger:     log,
	}, nil
}

// New satisfies session.Factory.
func (f *replayerFactory) New(ctx context.Context, storyName string, fl flow.Flow) (session.Replayer, error) {
	b, err := f.launch(ctx, f.cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	r, err := replay.New(storyName, fl, replay.Options{
		Config:      f.cfg.Replay.Engine,
		Environment: f.env,
		Browser:     b,
		ArtifactDir: storage.ArtifactDir(storyName, fl.Name),
		Artifacts:   f.store,
		Comparator:  f.comparator,
		Links:       f.links,
		Metrics:     f.metrics,
		Logger:      logger.ForSession(f.logger, storyName, fl.Name),
	})
	if err != nil {
		if cerr := b.Close(); cerr != nil {
			f.logger.Warn(ctx, "Failed to close browser", map[string]interface{}{
				"error": cerr.Error(),
			})
		}
		return nil, err
	}
	return r, nil
}
