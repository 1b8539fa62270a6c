package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solidProvider returns a flat frame whose gray level depends on time
type solidProvider struct {
	width, height int
	calls         atomic.Int64
	failAt        float64
	failErr       error
}

func (p *solidProvider) Frame(ctx context.Context, t float64) (features.PixelBuffer, error) {
	p.calls.Add(1)
	if p.failErr != nil && t == p.failAt {
		return features.PixelBuffer{}, p.failErr
	}
	lum := byte(int(t*10) % 256)
	pix := make([]byte, p.width*p.height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = lum, lum, lum, 255
	}
	return features.PixelBuffer{Width: p.width, Height: p.height, Pix: pix}, nil
}

func TestTimestamps(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		interval float64
		want     []float64
	}{
		{"exact grid", 3, 1, []float64{0, 1, 2, 2.98}},
		{"tail within gap", 3.2, 1, []float64{0, 1, 2, 3}},
		{"tail appended", 3.5, 1, []float64{0, 1, 2, 3, 3.48}},
		{"short clip", 0.1, 1, []float64{0}},
		{"fractional interval", 1, 0.3, []float64{0, 0.3, 0.6, 0.9}},
		{"invalid duration", 0, 1, nil},
		{"invalid interval", 5, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Timestamps(tt.duration, tt.interval))
		})
	}
}

func TestTimestamps_StrictlyIncreasing(t *testing.T) {
	times := Timestamps(2, 0.0004)
	require.NotEmpty(t, times)
	for i := 1; i < len(times); i++ {
		assert.Greater(t, times[i], times[i-1])
	}
}

func TestSample_OrderedAcrossWorkers(t *testing.T) {
	provider := &solidProvider{width: 8, height: 6}
	s := New(zerolog.Nop(), provider, Config{IntervalSec: 0.5, Workers: 4})

	var mu sync.Mutex
	var seen []int
	samples, err := s.Sample(context.Background(), 10, func(done, total int) {
		mu.Lock()
		seen = append(seen, done)
		mu.Unlock()
		assert.Equal(t, 21, total)
	})
	require.NoError(t, err)

	require.Len(t, samples, 21)
	assert.Equal(t, int64(21), provider.calls.Load())
	assert.Len(t, seen, 21)

	for i, smp := range samples {
		if i > 0 {
			assert.Greater(t, smp.TimeSec, samples[i-1].TimeSec)
		}
		want := float64(int(smp.TimeSec*10) % 256)
		assert.InDelta(t, want, smp.AvgRGB[0], 1e-9, "sample %d carries its own frame", i)
	}
}

func TestSample_ProviderFailureAbortsPass(t *testing.T) {
	tests := []struct {
		name    string
		failErr error
		want    error
	}{
		{"seek", ErrSeek, ErrSeek},
		{"decode", ErrDecode, ErrDecode},
		{"unclassified", errors.New("pipe closed"), ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &solidProvider{width: 4, height: 4, failAt: 2, failErr: tt.failErr}
			s := New(zerolog.Nop(), provider, Config{IntervalSec: 1, Workers: 2})

			samples, err := s.Sample(context.Background(), 5, nil)
			assert.Nil(t, samples)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var frameErr *FrameError
			require.ErrorAs(t, err, &frameErr)
			assert.Equal(t, 2.0, frameErr.TimeSec)
		})
	}
}

type badBufferProvider struct{}

func (badBufferProvider) Frame(ctx context.Context, t float64) (features.PixelBuffer, error) {
	return features.PixelBuffer{Width: 10, Height: 10, Pix: make([]byte, 12)}, nil
}

func TestSample_TruncatedFrameIsDecodeError(t *testing.T) {
	s := New(zerolog.Nop(), badBufferProvider{}, Config{IntervalSec: 1, Workers: 1})

	_, err := s.Sample(context.Background(), 2, nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSample_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(zerolog.Nop(), &solidProvider{width: 4, height: 4}, Config{IntervalSec: 1, Workers: 1})
	samples, err := s.Sample(ctx, 5, nil)
	assert.Nil(t, samples)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSample_DownscalesWideFrames(t *testing.T) {
	s := New(zerolog.Nop(), &solidProvider{width: 640, height: 360}, Config{IntervalSec: 1, Workers: 1, MaxFrameWidth: 64})

	buf, err := s.provider.Frame(context.Background(), 3)
	require.NoError(t, err)

	small := s.downscale(buf)
	assert.Equal(t, 64, small.Width)
	assert.Equal(t, 36, small.Height)
	require.NoError(t, small.Validate())

	// A flat frame keeps its color through bilinear resampling.
	f := features.Extract(small)
	assert.InDelta(t, 30, f.AvgRGB[1], 1)
	assert.InDelta(t, 0, f.Texture, 1)
}

func TestNew_DefaultsWorkers(t *testing.T) {
	s := New(zerolog.Nop(), &solidProvider{width: 1, height: 1}, Config{IntervalSec: 1})
	assert.Positive(t, s.config.Workers)
}
