package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/ffmpeg"
	"github.com/kikiluvv/cutrhythm/internal/logging"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/pkg/util"
	"github.com/spf13/cobra"
)

var probeFlags struct {
	cuts      bool
	threshold float64
}

var probeCmd = &cobra.Command{
	Use:   "probe [input video]",
	Short: "Print video metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		logger := logging.WithComponent("probe")

		pipe, err := pipeline.FromConfig(logger, cfg)
		if err != nil {
			return err
		}
		exec := pipe.Executor()

		info, err := exec.ProbeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := os.Stdout
		fmt.Fprintf(w, "file:      %s\n", info.FilePath)
		fmt.Fprintf(w, "format:    %s (%s)\n", info.Format, humanize.Bytes(uint64(max(info.Size, 0))))
		fmt.Fprintf(w, "duration:  %s\n", util.FormatDuration(info.Duration))
		fmt.Fprintf(w, "video:     %s %dx%d @ %.3f fps, %s frames\n",
			info.VideoCodec, info.Width, info.Height, info.FPS, humanize.Comma(int64(info.FrameCount)))
		if info.Bitrate > 0 {
			fmt.Fprintf(w, "bitrate:   %s/s\n", humanize.Bytes(uint64(info.Bitrate/8)))
		}
		if info.HasAudio {
			fmt.Fprintf(w, "audio:     %s\n", info.AudioCodec)
		}

		if !probeFlags.cuts {
			return nil
		}

		cuts, err := exec.ReferenceCuts(cmd.Context(), args[0], probeFlags.threshold, func(p *ffmpeg.Progress) {
			logger.Info().
				Int("frame", p.Frame).
				Str("time", p.Time).
				Str("speed", p.Speed).
				Msg("scanning for scene changes")
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "reference cuts (ffmpeg scene > %.2f): %d\n", probeFlags.threshold, len(cuts))
		for _, c := range cuts {
			fmt.Fprintf(w, "  %s  score %.3f\n", util.FormatClock(c.TimeSec), c.Score)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeFlags.cuts, "cuts", false, "also list ffmpeg's own scene changes for comparison")
	probeCmd.Flags().Float64Var(&probeFlags.threshold, "threshold", ffmpeg.DefaultSceneThreshold, "ffmpeg scene score threshold for --cuts")
}
