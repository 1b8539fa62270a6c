package ffmpeg

import (
	"io"
	"time"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Format     string
	Size       int64
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame int
	FPS   float64
	Time  string
	Speed string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
	// Stdout receives the raw output stream, e.g. for pipe:1 outputs
	Stdout io.Writer
	// Quiet lowers ffmpeg's log level to errors only
	Quiet bool
}

// ReferenceCut is a scene change reported by ffmpeg's own scene filter
type ReferenceCut struct {
	TimeSec float64 `json:"timeSec"`
	Score   float64 `json:"score"`
}
