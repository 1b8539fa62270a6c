package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DefaultSceneThreshold is the scene score above which ffmpeg reports a cut
const DefaultSceneThreshold = 0.3

// ReferenceCuts runs ffmpeg's built-in scene change filter over the whole
// video. The result is a baseline for comparing against detected shots and
// plays no part in segmentation. A non-nil progress receives ffmpeg's
// periodic progress reports.
func (e *Executor) ReferenceCuts(ctx context.Context, input string, threshold float64, progress func(*Progress)) ([]ReferenceCut, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSceneThreshold
	}

	e.logger.Info().
		Str("input", input).
		Float64("threshold", threshold).
		Msg("detecting reference scene changes")

	var (
		mu    sync.Mutex
		lines []string
	)

	opts := RunOptions{
		Args: []string{
			"-i", input,
			"-an",
			"-vf", NewFilterBuilder().SceneSelect(threshold).Build(),
			"-f", "null",
			"-",
		},
		ProgressHandler: progress,
		LogHandler: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}

	mu.Lock()
	cuts := parseSceneOutput(lines)
	mu.Unlock()

	e.logger.Info().Int("cuts", len(cuts)).Msg("reference scene detection complete")
	return cuts, nil
}

// parseSceneOutput pairs each pts_time line printed by the metadata filter
// with the scene score that follows it
func parseSceneOutput(lines []string) []ReferenceCut {
	var cuts []ReferenceCut

	for _, line := range lines {
		if _, rest, ok := strings.Cut(line, "pts_time:"); ok {
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				continue
			}
			if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
				cuts = append(cuts, ReferenceCut{TimeSec: seconds})
			}
			continue
		}

		if _, rest, ok := strings.Cut(line, "lavfi.scene_score="); ok && len(cuts) > 0 {
			if score, err := strconv.ParseFloat(strings.TrimSpace(rest), 64); err == nil {
				cuts[len(cuts)-1].Score = score
			}
		}
	}

	return cuts
}
