package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/sampler"
)

// FrameReader decodes single frames from a video file on demand.
// Every call spawns its own ffmpeg process, so a reader is safe for
// concurrent use.
type FrameReader struct {
	exec     *Executor
	input    string
	duration float64
	width    int
	height   int
	filter   string

	pool sync.Pool
}

// NewFrameReader creates a reader for input. A positive decodeWidth smaller
// than the native width makes ffmpeg scale frames before they are piped out.
func (e *Executor) NewFrameReader(input string, info *VideoInfo, decodeWidth int) *FrameReader {
	w, h := info.Width, info.Height
	fb := NewFilterBuilder()
	if decodeWidth > 0 && w > decodeWidth && h > 0 {
		h = max(1, int(math.Round(float64(h)*float64(decodeWidth)/float64(w))))
		w = decodeWidth
		fb.Scale(w, h)
	}

	r := &FrameReader{
		exec:     e,
		input:    input,
		duration: info.Duration.Seconds(),
		width:    w,
		height:   h,
		filter:   fb.Build(),
	}
	r.pool.New = func() any {
		return new(bytes.Buffer)
	}
	return r
}

// Size returns the dimensions of decoded frames
func (r *FrameReader) Size() (width, height int) {
	return r.width, r.height
}

// Frame decodes the frame shown at timeSec as packed RGBA
func (r *FrameReader) Frame(ctx context.Context, timeSec float64) (features.PixelBuffer, error) {
	if timeSec < 0 || (r.duration > 0 && timeSec >= r.duration) {
		return features.PixelBuffer{}, fmt.Errorf("%w: %.3fs is outside [0, %.3f)", sampler.ErrSeek, timeSec, r.duration)
	}
	if r.width <= 0 || r.height <= 0 {
		return features.PixelBuffer{}, fmt.Errorf("%w: unknown frame size %dx%d", sampler.ErrDecode, r.width, r.height)
	}

	frameSize := r.width * r.height * 4

	buf := r.pool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(frameSize)
	defer r.pool.Put(buf)

	args := []string{
		"-ss", strconv.FormatFloat(timeSec, 'f', 3, 64),
		"-i", r.input,
		"-an",
		"-frames:v", "1",
	}
	if r.filter != "" {
		args = append(args, "-vf", r.filter)
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")

	err := r.exec.Run(ctx, RunOptions{
		Args:   args,
		Stdout: buf,
		Quiet:  true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return features.PixelBuffer{}, ctx.Err()
		}
		return features.PixelBuffer{}, fmt.Errorf("%w: %w", sampler.ErrDecode, err)
	}

	switch n := buf.Len(); {
	case n == 0:
		// ffmpeg exits cleanly without output when the seek lands past the last frame
		return features.PixelBuffer{}, fmt.Errorf("%w: no frame at %.3fs", sampler.ErrSeek, timeSec)
	case n < frameSize:
		return features.PixelBuffer{}, fmt.Errorf("%w: short frame at %.3fs (%d of %d bytes)", sampler.ErrDecode, timeSec, n, frameSize)
	}

	pix := make([]byte, frameSize)
	copy(pix, buf.Bytes())

	return features.PixelBuffer{
		Width:  r.width,
		Height: r.height,
		Pix:    pix,
	}, nil
}
