package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/ffmpeg"
	"github.com/kikiluvv/cutrhythm/internal/sampler"
	"github.com/kikiluvv/cutrhythm/internal/scenes"
	"github.com/kikiluvv/cutrhythm/internal/shots"
	"github.com/kikiluvv/cutrhythm/internal/summary"
	"github.com/rs/zerolog"
)

// Recorder persists completed sessions
type Recorder interface {
	Save(ctx context.Context, s *Session) error
}

// Pipeline orchestrates sampling, segmentation and summarization
type Pipeline struct {
	logger     zerolog.Logger
	ffmpeg     *ffmpeg.Executor
	opts       Options
	summarizer *summary.Summarizer
	recorder   Recorder
}

// New creates a pipeline. exec may be nil when only Run is used.
func New(logger zerolog.Logger, exec *ffmpeg.Executor, opts Options) *Pipeline {
	return &Pipeline{
		logger:     logger.With().Str("component", "pipeline").Logger(),
		ffmpeg:     exec,
		opts:       opts,
		summarizer: summary.New(opts.Inferencer),
	}
}

// FromConfig creates a pipeline backed by the ffmpeg binaries on PATH
func FromConfig(logger zerolog.Logger, appCfg *config.Config) (*Pipeline, error) {
	exec, err := ffmpeg.New(logger, ffmpeg.Config{
		BinaryPath: appCfg.FFmpeg.BinaryPath,
		ProbePath:  appCfg.FFmpeg.ProbePath,
		Threads:    appCfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	return New(logger, exec, Options{
		Workers:       appCfg.Analysis.Workers,
		MaxFrameWidth: appCfg.Analysis.MaxFrameWidth,
		DecodeWidth:   appCfg.FFmpeg.DecodeWidth,
	}), nil
}

// WithRecorder makes Analyze persist every completed session
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// WithProgress sets the per-frame progress callback
func (p *Pipeline) WithProgress(fn sampler.ProgressFunc) *Pipeline {
	p.opts.Progress = fn
	return p
}

// Executor exposes the ffmpeg executor backing Analyze
func (p *Pipeline) Executor() *ffmpeg.Executor {
	return p.ffmpeg
}

// Analyze probes a video file, runs the full analysis and records the session.
//
// When recording fails the completed session is still returned together
// with the error.
func (p *Pipeline) Analyze(ctx context.Context, input string, cfg Config) (*Session, error) {
	p.logger.Info().
		Str("input", input).
		Float64("interval", cfg.IntervalSec).
		Float64("sensitivity", cfg.Sensitivity).
		Msg("starting analysis pipeline")

	if input == "" {
		return nil, fmt.Errorf("%w: input path cannot be empty", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.ffmpeg == nil {
		return nil, fmt.Errorf("no ffmpeg executor configured")
	}

	info, err := p.ffmpeg.ProbeVideo(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	p.logger.Info().
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("video metadata extracted")

	meta := NewVideoMeta(filepath.Base(input), info.Duration.Seconds(), info.Width, info.Height, info.FPS)
	reader := p.ffmpeg.NewFrameReader(input, info, p.opts.DecodeWidth)

	session, err := p.Run(ctx, reader, meta, cfg)
	if err != nil {
		return nil, err
	}

	if p.recorder != nil {
		if err := p.recorder.Save(ctx, session); err != nil {
			p.logger.Error().Err(err).Str("session", session.ID).Msg("failed to record session")
			return session, fmt.Errorf("failed to record session: %w", err)
		}
	}

	return session, nil
}

// Run analyzes frames from provider and returns a new session.
// Nothing is returned unless every stage completes.
func (p *Pipeline) Run(ctx context.Context, provider sampler.FrameProvider, meta VideoMeta, cfg Config) (*Session, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: no frame provider", ErrInvalidInput)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()

	// Stage 1: sample frames
	smp := sampler.New(p.logger, provider, sampler.Config{
		IntervalSec:   cfg.IntervalSec,
		Workers:       p.opts.Workers,
		MaxFrameWidth: p.opts.MaxFrameWidth,
	})
	samples, err := smp.Sample(ctx, meta.DurationSec, p.opts.Progress)
	if err != nil {
		return nil, fmt.Errorf("failed to sample frames: %w", err)
	}

	// Stage 2: shots
	shotList := shots.Detect(samples, meta.DurationSec, cfg.Sensitivity)
	p.logger.Info().Int("shots", len(shotList)).Msg("shot detection complete")

	// Stage 3: scenes
	sceneList := scenes.Group(shotList, meta.DurationSec, cfg.Sensitivity)
	p.logger.Info().Int("scenes", len(sceneList)).Msg("scene grouping complete")

	// Stage 4: summaries
	summaries := p.summarizer.Summarize(sceneList, shotList)

	session := &Session{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Meta:           meta,
		Config:         cfg,
		PropInferencer: p.summarizer.Inferencer().Name(),
		Result: Result{
			Samples: samples,
			Shots:   shotList,
			Scenes:  summaries,
			Global:  summary.ComputeGlobal(shotList, summaries),
		},
	}

	p.logger.Info().
		Str("session", session.ID).
		Int("samples", len(samples)).
		Int("shots", session.Result.Global.ShotCount).
		Int("scenes", session.Result.Global.SceneCount).
		Dur("elapsed", time.Since(started)).
		Msg("analysis pipeline complete")

	return session, nil
}
