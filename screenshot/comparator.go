// Package screenshot compares replay screenshots against recorded baselines.
package screenshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"path"
	"strings"

	"github.com/hairizuan-noorazman/ui-replay/logger"
)

// DefaultThreshold is the similarity below which a screenshot fails.
const DefaultThreshold = 0.96

// ErrInvalidImage is returned when a baseline or capture cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

// Uploader persists artifacts.
type Uploader interface {
	Upload(ctx context.Context, path string, reader io.Reader) error
}

// Result is the outcome of one comparison.
type Result struct {
	Similarity Similarity
	Passed     bool

	Baseline string
	Replay   string

	// Diff is empty when the comparison passed.
	Diff          string
	ChangedPixels int
}

// Comparator writes comparison artifacts under a per-flow directory.
type Comparator struct {
	store     Uploader
	threshold float64
	logger    logger.Logger
}

// NewComparator creates a comparator. A non-positive threshold uses DefaultThreshold.
func NewComparator(store Uploader, threshold float64, log logger.Logger) *Comparator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Comparator{store: store, threshold: threshold, logger: log}
}

// Threshold returns the pass threshold.
func (c *Comparator) Threshold() float64 {
	return c.threshold
}

// Compare stores baseline and replay under dir and scores them. A diff image
// is generated only when either score falls below the threshold.
func (c *Comparator) Compare(ctx context.Context, dir, stepUUID string, baseline, replay []byte) (Result, error) {
	res := Result{
		Baseline: path.Join(dir, stepUUID+"_baseline.png"),
		Replay:   path.Join(dir, stepUUID+"_replay.png"),
	}

	if err := c.store.Upload(ctx, res.Baseline, bytes.NewReader(baseline)); err != nil {
		return res, fmt.Errorf("failed to store baseline: %w", err)
	}
	if err := c.store.Upload(ctx, res.Replay, bytes.NewReader(replay)); err != nil {
		return res, fmt.Errorf("failed to store replay screenshot: %w", err)
	}

	baseImg, _, err := image.Decode(bytes.NewReader(baseline))
	if err != nil {
		return res, fmt.Errorf("%w: baseline: %v", ErrInvalidImage, err)
	}
	replayImg, _, err := image.Decode(bytes.NewReader(replay))
	if err != nil {
		return res, fmt.Errorf("%w: replay: %v", ErrInvalidImage, err)
	}

	res.Similarity = Measure(baseImg, replayImg)
	res.Passed = res.Similarity.Structural >= c.threshold && res.Similarity.Channels >= c.threshold
	if res.Passed {
		return res, nil
	}

	diff, changed := Diff(baseImg, replayImg)
	res.ChangedPixels = changed

	var buf bytes.Buffer
	if err := png.Encode(&buf, diff); err != nil {
		return res, fmt.Errorf("failed to encode diff: %w", err)
	}
	diffPath := path.Join(dir, stepUUID+"_diff.png")
	if err := c.store.Upload(ctx, diffPath, &buf); err != nil {
		return res, fmt.Errorf("failed to store diff: %w", err)
	}
	res.Diff = diffPath

	c.logger.Info(ctx, "Screenshot differs from baseline", map[string]interface{}{
		"step_uuid":  stepUUID,
		"structural": res.Similarity.Structural,
		"channels":   res.Similarity.Channels,
		"changed":    changed,
	})
	return res, nil
}

// DecodeBaseline decodes a recorded baseline, accepting raw base64 or a
// data URL.
func DecodeBaseline(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline is not base64: %v", ErrInvalidImage, err)
	}
	return data, nil
}
