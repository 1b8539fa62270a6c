package sampler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/stats"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sentinel errors a FrameProvider wraps when it cannot deliver a frame
var (
	ErrSeek   = errors.New("seek failed")
	ErrDecode = errors.New("decode failed")
)

const (
	// tailGap is how far the last regular sample may fall short of the end
	tailGap = 0.25
	// tailOffset places the extra tail sample just before the end
	tailOffset = 0.02
)

// FrameProvider delivers the decoded frame shown at a given time.
// Implementations must accept seeks in any order and, when used with more
// than one worker, be safe for concurrent use.
type FrameProvider interface {
	Frame(ctx context.Context, timeSec float64) (features.PixelBuffer, error)
}

// FrameError reports which sample time failed
type FrameError struct {
	TimeSec float64
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame at %.3fs: %v", e.TimeSec, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Config controls a sampling pass
type Config struct {
	IntervalSec   float64
	Workers       int
	MaxFrameWidth int
}

// ProgressFunc is called after each frame with the number of frames done.
// It may be called from several goroutines at once.
type ProgressFunc func(done, total int)

// Sampler turns a video into an ordered sequence of frame samples
type Sampler struct {
	logger   zerolog.Logger
	provider FrameProvider
	config   Config
}

// New creates a sampler reading frames from provider
func New(logger zerolog.Logger, provider FrameProvider, cfg Config) *Sampler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Sampler{
		logger:   logger.With().Str("component", "sampler").Logger(),
		provider: provider,
		config:   cfg,
	}
}

// Timestamps returns the ascending sample times for a video of durationSec,
// rounded to the millisecond. When the regular grid stops more than 250ms
// short of the end, one extra sample just before the end is appended.
func Timestamps(durationSec, intervalSec float64) []float64 {
	if durationSec <= 0 || intervalSec <= 0 {
		return nil
	}

	var times []float64
	for i := 0; ; i++ {
		t := float64(i) * intervalSec
		if t >= durationSec {
			break
		}
		t = stats.Millis(t)
		if n := len(times); n > 0 && times[n-1] == t {
			continue
		}
		times = append(times, t)
	}

	if len(times) == 0 || times[len(times)-1] < durationSec-tailGap {
		tail := max(0, stats.Millis(durationSec-tailOffset))
		if len(times) == 0 || tail > times[len(times)-1] {
			times = append(times, tail)
		}
	}

	return times
}

// Sample acquires and extracts every frame on the timestamp grid.
//
// Frames are processed on a bounded worker pool and written back by grid
// position, so the result is ordered by time regardless of completion order.
// The first failure cancels the remaining work and no samples are returned.
func (s *Sampler) Sample(ctx context.Context, durationSec float64, progress ProgressFunc) ([]features.Sample, error) {
	times := Timestamps(durationSec, s.config.IntervalSec)
	total := len(times)

	s.logger.Info().
		Float64("duration", durationSec).
		Float64("interval", s.config.IntervalSec).
		Int("frames", total).
		Int("workers", s.config.Workers).
		Msg("sampling frames")

	samples := make([]features.Sample, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	for i, t := range times {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			f, err := s.sampleAt(gctx, t)
			if err != nil {
				return err
			}
			samples[i] = features.Sample{TimeSec: t, Features: f}

			n := int(done.Add(1))
			if progress != nil {
				progress(n, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Msg("sampling aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug().Int("samples", total).Msg("sampling complete")
	return samples, nil
}

func (s *Sampler) sampleAt(ctx context.Context, t float64) (features.Features, error) {
	buf, err := s.provider.Frame(ctx, t)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return features.Features{}, ctxErr
		}
		if !errors.Is(err, ErrSeek) && !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return features.Features{}, &FrameError{TimeSec: t, Err: err}
	}

	if err := buf.Validate(); err != nil {
		return features.Features{}, &FrameError{TimeSec: t, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	return features.Extract(s.downscale(buf)), nil
}

// downscale shrinks frames wider than MaxFrameWidth, keeping the aspect ratio
func (s *Sampler) downscale(buf features.PixelBuffer) features.PixelBuffer {
	maxW := s.config.MaxFrameWidth
	if maxW <= 0 || buf.Width <= maxW {
		return buf
	}

	h := buf.Height * maxW / buf.Width
	if h < 1 {
		h = 1
	}

	scaled := resize.Resize(uint(maxW), uint(h), buf.Image(), resize.Bilinear)
	return features.FromImage(scaled)
}
