package ffmpeg

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/sampler"
	"github.com/rs/zerolog"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

// makeTwoColorVideo renders 2s of red followed by 2s of blue at 160x120
func makeTwoColorVideo(t *testing.T) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "red_blue.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=red:s=160x120:r=25:d=2",
		"-f", "lavfi", "-i", "color=c=blue:s=160x120:r=25:d=2",
		"-filter_complex", "[0:v][1:v]concat=n=2:v=1:a=0",
		"-c:v", "mpeg4", "-q:v", "2", "-pix_fmt", "yuv420p",
		out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to generate test video: %v\n%s", err, output)
	}
	return out
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).Level(zerolog.InfoLevel)
	e, err := New(logger, Config{Threads: 2})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	return e
}

func TestExecutorCreation(t *testing.T) {
	skipIfNoFFmpeg(t)

	e := newTestExecutor(t)
	ffmpegPath, ffprobePath := e.Paths()
	if ffmpegPath == "" {
		t.Error("ffmpeg path is empty")
	}
	if ffprobePath == "" {
		t.Error("ffprobe path is empty")
	}
	t.Logf("ffmpeg: %s", ffmpegPath)
	t.Logf("ffprobe: %s", ffprobePath)
}

func TestExecutorMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), Config{BinaryPath: "cutrhythm-no-such-ffmpeg"})
	if err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
	if !strings.Contains(err.Error(), "ffmpeg not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunRequiresArgs(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	if err := e.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected error for empty args")
	}
}

func TestFilterBuilder(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Scale(1920, 1080).Build()

	expected := "scale=1920:1080"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderEmpty(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Build()

	if filter != "" {
		t.Errorf("expected empty string, got %q", filter)
	}
}

func TestFilterBuilderChaining(t *testing.T) {
	filter := NewFilterBuilder().
		Scale(320, -2).
		Scale(0, 10).
		SceneSelect(1.5).
		SceneSelect(0.4).
		Build()

	expected := "scale=320:-2,select='gt(scene,0.400000)',metadata=print:key=lavfi.scene_score"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderSceneSelect(t *testing.T) {
	filter := NewFilterBuilder().SceneSelect(0.3).Build()

	expected := "select='gt(scene,0.300000)',metadata=print:key=lavfi.scene_score"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}

	for _, th := range []float64{0, -1, 1, 2} {
		if got := NewFilterBuilder().SceneSelect(th).Build(); got != "" {
			t.Errorf("threshold %v: expected no filter, got %q", th, got)
		}
	}
}

func TestStreamOutputProgress(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}

	output := strings.Join([]string{
		"[Parsed_metadata_1 @ 0x1] frame:0    pts:50      pts_time:2",
		"frame=12",
		"fps=24.50",
		"out_time=00:00:00.480000",
		"speed=1.02x",
		"progress=continue",
		"frame=0",
		"progress=continue",
		"frame=100",
		"fps=25",
		"out_time=00:00:04.000000",
		"speed=2x",
		"progress=end",
	}, "\n")

	var reports []Progress
	var lines int
	e.streamOutput(strings.NewReader(output), func(p *Progress) {
		reports = append(reports, *p)
	}, func(string) {
		lines++
	})

	if lines != 13 {
		t.Errorf("expected every line logged, got %d", lines)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 progress reports (empty block skipped), got %d: %+v", len(reports), reports)
	}
	want := Progress{Frame: 12, FPS: 24.5, Time: "00:00:00.480000", Speed: "1.02x"}
	if reports[0] != want {
		t.Errorf("expected %+v, got %+v", want, reports[0])
	}
	if reports[1].Frame != 100 || reports[1].Speed != "2x" {
		t.Errorf("unexpected final report %+v", reports[1])
	}
}

func TestParseProbeOutput(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
			 "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "nb_frames": "300"}
		],
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "10.010000", "bit_rate": "800000", "size": "1001000"}
	}`

	info, err := parseProbeOutput([]byte(raw))
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", info.Width, info.Height)
	}
	if math.Abs(info.FPS-29.97) > 0.01 {
		t.Errorf("expected avg frame rate 29.97, got %f", info.FPS)
	}
	if info.Duration != 10010*time.Millisecond {
		t.Errorf("expected duration 10.01s, got %v", info.Duration)
	}
	if info.FrameCount != 300 {
		t.Errorf("expected 300 frames, got %d", info.FrameCount)
	}
	if !info.HasAudio || info.AudioCodec != "aac" {
		t.Errorf("expected aac audio, got %v %q", info.HasAudio, info.AudioCodec)
	}
	if info.Size != 1001000 || info.Bitrate != 800000 {
		t.Errorf("unexpected size/bitrate %d/%d", info.Size, info.Bitrate)
	}
}

func TestParseProbeOutputStreamDuration(t *testing.T) {
	raw := `{"streams": [{"codec_type": "video", "width": 64, "height": 48, "r_frame_rate": "25/1", "avg_frame_rate": "0/0", "duration": "4.0"}], "format": {}}`

	info, err := parseProbeOutput([]byte(raw))
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}
	if info.Duration != 4*time.Second {
		t.Errorf("expected stream duration 4s, got %v", info.Duration)
	}
	if info.FPS != 25 {
		t.Errorf("expected fallback to r_frame_rate 25, got %f", info.FPS)
	}
	if info.FrameCount != 100 {
		t.Errorf("expected estimated 100 frames, got %d", info.FrameCount)
	}
}

func TestParseProbeOutputNoVideo(t *testing.T) {
	raw := `{"streams": [{"codec_type": "audio", "codec_name": "mp3"}], "format": {"duration": "3.0"}}`
	if _, err := parseProbeOutput([]byte(raw)); err == nil {
		t.Fatal("expected error for audio-only input")
	}
	if _, err := parseProbeOutput([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed output")
	}
}

func TestParseSceneOutput(t *testing.T) {
	lines := []string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"[Parsed_metadata_1 @ 0x600] frame:0    pts:51200   pts_time:2       ",
		"[Parsed_metadata_1 @ 0x600] lavfi.scene_score=0.912345",
		"[Parsed_metadata_1 @ 0x600] frame:1    pts:97280   pts_time:3.8     ",
		"[Parsed_metadata_1 @ 0x600] lavfi.scene_score=0.410000",
		"[Parsed_metadata_1 @ 0x600] frame:2    pts:0       pts_time:garbage",
	}

	cuts := parseSceneOutput(lines)
	if len(cuts) != 2 {
		t.Fatalf("expected 2 cuts, got %d: %+v", len(cuts), cuts)
	}
	if cuts[0].TimeSec != 2 || math.Abs(cuts[0].Score-0.912345) > 1e-9 {
		t.Errorf("unexpected first cut %+v", cuts[0])
	}
	if cuts[1].TimeSec != 3.8 || math.Abs(cuts[1].Score-0.41) > 1e-9 {
		t.Errorf("unexpected second cut %+v", cuts[1])
	}

	if got := parseSceneOutput(nil); len(got) != 0 {
		t.Errorf("expected no cuts, got %+v", got)
	}
}

func TestProbeVideo(t *testing.T) {
	skipIfNoFFmpeg(t)

	video := makeTwoColorVideo(t)
	e := newTestExecutor(t)

	info, err := e.ProbeVideo(context.Background(), video)
	if err != nil {
		t.Fatalf("ProbeVideo failed: %v", err)
	}

	if info.Width != 160 {
		t.Errorf("expected width 160, got %d", info.Width)
	}
	if info.Height != 120 {
		t.Errorf("expected height 120, got %d", info.Height)
	}
	if math.Abs(info.Duration.Seconds()-4) > 0.1 {
		t.Errorf("expected ~4s duration, got %v", info.Duration)
	}
	if math.Abs(info.FPS-25) > 0.5 {
		t.Errorf("expected ~25 fps, got %f", info.FPS)
	}

	t.Logf("Video info: %dx%d, %.2f fps, duration: %v", info.Width, info.Height, info.FPS, info.Duration)
}

func TestProbeVideoInvalidFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	e := newTestExecutor(t)

	bogus := filepath.Join(t.TempDir(), "not_a_video.mp4")
	if err := os.WriteFile(bogus, []byte("definitely not a video"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := e.ProbeVideo(context.Background(), bogus); err == nil {
		t.Error("expected error for invalid file")
	}
	if _, err := e.ProbeVideo(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestFrameReader(t *testing.T) {
	skipIfNoFFmpeg(t)

	video := makeTwoColorVideo(t)
	e := newTestExecutor(t)
	ctx := context.Background()

	info, err := e.ProbeVideo(ctx, video)
	if err != nil {
		t.Fatalf("ProbeVideo failed: %v", err)
	}

	r := e.NewFrameReader(video, info, 0)

	red, err := r.Frame(ctx, 0.5)
	if err != nil {
		t.Fatalf("Frame(0.5) failed: %v", err)
	}
	if red.Width != 160 || red.Height != 120 || len(red.Pix) != 160*120*4 {
		t.Fatalf("unexpected frame %dx%d (%d bytes)", red.Width, red.Height, len(red.Pix))
	}
	center := (60*160 + 80) * 4
	if red.Pix[center] < 200 || red.Pix[center+2] > 60 {
		t.Errorf("expected red pixel, got %v", red.Pix[center:center+4])
	}

	blue, err := r.Frame(ctx, 3.0)
	if err != nil {
		t.Fatalf("Frame(3.0) failed: %v", err)
	}
	if blue.Pix[center+2] < 200 || blue.Pix[center] > 60 {
		t.Errorf("expected blue pixel, got %v", blue.Pix[center:center+4])
	}
}

func TestFrameReaderDecodeWidth(t *testing.T) {
	skipIfNoFFmpeg(t)

	video := makeTwoColorVideo(t)
	e := newTestExecutor(t)
	ctx := context.Background()

	info, err := e.ProbeVideo(ctx, video)
	if err != nil {
		t.Fatalf("ProbeVideo failed: %v", err)
	}

	r := e.NewFrameReader(video, info, 80)
	if w, h := r.Size(); w != 80 || h != 60 {
		t.Fatalf("expected 80x60 reader, got %dx%d", w, h)
	}

	buf, err := r.Frame(ctx, 1.0)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if err := buf.Validate(); err != nil {
		t.Fatalf("invalid buffer: %v", err)
	}
	if buf.Width != 80 || buf.Height != 60 {
		t.Errorf("expected 80x60 frame, got %dx%d", buf.Width, buf.Height)
	}
}

func TestFrameReaderOutOfRange(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	r := e.NewFrameReader("unused.mp4", &VideoInfo{Width: 64, Height: 48, Duration: 4 * time.Second}, 0)

	// the end of the video is exclusive
	for _, ts := range []float64{-0.5, 4, 4.5} {
		_, err := r.Frame(context.Background(), ts)
		if !errors.Is(err, sampler.ErrSeek) {
			t.Errorf("Frame(%v): expected ErrSeek, got %v", ts, err)
		}
	}
}

func TestFrameReaderUnknownSize(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	r := e.NewFrameReader("unused.mp4", &VideoInfo{Duration: 4 * time.Second}, 0)

	if _, err := r.Frame(context.Background(), 1); !errors.Is(err, sampler.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestFrameReaderMissingFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	e := newTestExecutor(t)
	missing := filepath.Join(t.TempDir(), "missing.mp4")
	r := e.NewFrameReader(missing, &VideoInfo{Width: 64, Height: 48, Duration: 4 * time.Second}, 0)

	if _, err := r.Frame(context.Background(), 1); !errors.Is(err, sampler.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestReferenceCuts(t *testing.T) {
	skipIfNoFFmpeg(t)

	video := makeTwoColorVideo(t)
	e := newTestExecutor(t)

	start := time.Now()
	var reports atomic.Int32
	cuts, err := e.ReferenceCuts(context.Background(), video, 0.3, func(p *Progress) {
		reports.Add(1)
	})
	if err != nil {
		t.Fatalf("ReferenceCuts failed: %v", err)
	}
	t.Logf("received %d progress reports", reports.Load())

	if len(cuts) != 1 {
		t.Fatalf("expected 1 cut, got %d: %+v", len(cuts), cuts)
	}
	if math.Abs(cuts[0].TimeSec-2) > 0.1 {
		t.Errorf("expected cut near 2s, got %v", cuts[0].TimeSec)
	}
	if cuts[0].Score <= 0.3 {
		t.Errorf("expected score above threshold, got %v", cuts[0].Score)
	}

	t.Logf("Found %d reference cuts in %v", len(cuts), time.Since(start))
}
