package pipeline

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/sampler"
	"github.com/kikiluvv/cutrhythm/internal/shots"
	"github.com/kikiluvv/cutrhythm/internal/summary"
	"github.com/kikiluvv/cutrhythm/pkg/util"
)

// ErrInvalidInput is returned before any sampling when the video or the
// configuration cannot be analyzed
var ErrInvalidInput = errors.New("invalid input")

// Config holds the user-facing analysis parameters recorded with a session
type Config struct {
	IntervalSec float64 `json:"intervalSec"`
	Sensitivity float64 `json:"sensitivity"`
}

// DefaultConfig returns the recommended analysis parameters
func DefaultConfig() Config {
	return Config{
		IntervalSec: 1.0,
		Sensitivity: 6,
	}
}

// Validate rejects intervals that are not positive and finite.
// Sensitivity is not clamped; out-of-range values extrapolate.
func (c Config) Validate() error {
	if c.IntervalSec <= 0 || math.IsNaN(c.IntervalSec) || math.IsInf(c.IntervalSec, 0) {
		return fmt.Errorf("%w: sample interval must be a positive number, got %v", ErrInvalidInput, c.IntervalSec)
	}
	if math.IsNaN(c.Sensitivity) || math.IsInf(c.Sensitivity, 0) {
		return fmt.Errorf("%w: sensitivity must be finite, got %v", ErrInvalidInput, c.Sensitivity)
	}
	return nil
}

// VideoMeta describes the analyzed video
type VideoMeta struct {
	ID                  string  `json:"id"`
	Filename            string  `json:"filename"`
	DurationSec         float64 `json:"durationSec"`
	Width               int     `json:"width"`
	Height              int     `json:"height"`
	FPSEstimated        float64 `json:"fpsEstimated"`
	FrameCountEstimated int     `json:"frameCountEstimated"`
}

// NewVideoMeta builds metadata for a video. A non-positive fps is replaced
// by an estimate derived from the duration.
func NewVideoMeta(filename string, durationSec float64, width, height int, fps float64) VideoMeta {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = EstimateFPS(durationSec)
	}
	return VideoMeta{
		ID:                  util.SafeStem(filename),
		Filename:            filename,
		DurationSec:         durationSec,
		Width:               width,
		Height:              height,
		FPSEstimated:        fps,
		FrameCountEstimated: int(math.Round(durationSec * fps)),
	}
}

// Validate rejects durations that are not positive and finite
func (m VideoMeta) Validate() error {
	d := m.DurationSec
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return fmt.Errorf("%w: duration must be a positive number, got %v", ErrInvalidInput, d)
	}
	return nil
}

// EstimateFPS guesses a frame rate from the duration when the container has none
func EstimateFPS(durationSec float64) float64 {
	switch {
	case durationSec < 30:
		return 30
	case durationSec < 600:
		return 24
	default:
		return 23.976
	}
}

// Result is everything one analysis run derives from the sampled frames
type Result struct {
	Samples []features.Sample      `json:"samples"`
	Shots   []shots.Shot           `json:"shots"`
	Scenes  []summary.SceneSummary `json:"scenes"`
	Global  summary.Global         `json:"global"`
}

// Session is the outcome of one successful analysis run.
// It is never modified after Run returns it.
type Session struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Meta           VideoMeta `json:"videoMeta"`
	Config         Config    `json:"config"`
	PropInferencer string    `json:"propInferencer"`
	Result         Result    `json:"result"`
}

// Options configures how a pipeline acquires and labels frames
type Options struct {
	Workers       int
	MaxFrameWidth int
	// DecodeWidth asks the decoder to scale frames before handing them over.
	// Zero keeps the native resolution.
	DecodeWidth int
	Inferencer  summary.PropInferencer
	Progress    sampler.ProgressFunc
}
