package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/export"
	"github.com/kikiluvv/cutrhythm/internal/logging"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/store"
	"github.com/kikiluvv/cutrhythm/pkg/util"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var analyzeFlags struct {
	interval    float64
	sensitivity float64
	workers     int
	out         string
	format      string
	noStore     bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Segment a video into shots and scenes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		analysisCfg := pipeline.Config{
			IntervalSec: cfg.Analysis.IntervalSec,
			Sensitivity: cfg.Analysis.Sensitivity,
		}
		if cmd.Flags().Changed("interval") {
			analysisCfg.IntervalSec = analyzeFlags.interval
		}
		if cmd.Flags().Changed("sensitivity") {
			analysisCfg.Sensitivity = analyzeFlags.sensitivity
		}
		if cmd.Flags().Changed("workers") {
			cfg.Analysis.Workers = analyzeFlags.workers
		}

		formatList := strings.Join(cfg.Export.Formats, ",")
		if cmd.Flags().Changed("format") {
			formatList = analyzeFlags.format
		}
		var formats []export.Format
		if formatList != "none" {
			var err error
			if formats, err = export.ParseFormats(formatList); err != nil {
				return err
			}
		}

		logger := logging.WithComponent("analyze")

		// Create pipeline
		pipe, err := pipeline.FromConfig(logger, cfg)
		if err != nil {
			return err
		}
		pipe.WithProgress(progressLogger(logger, args[0]))

		if !analyzeFlags.noStore {
			st, err := store.Open(cmd.Context(), cfg.Store, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			pipe.WithRecorder(st)
		}

		// Run analysis
		session, err := pipe.Analyze(cmd.Context(), args[0], analysisCfg)
		if err != nil {
			if session == nil {
				return err
			}
			logger.Warn().Err(err).Msg("analysis finished but the session was not stored")
		}

		outDir := cfg.Export.Dir
		if cmd.Flags().Changed("out") {
			outDir = analyzeFlags.out
		}
		if len(formats) > 0 && outDir != "" {
			paths, err := export.WriteFiles(outDir, session, formats)
			if err != nil {
				return err
			}
			for _, p := range paths {
				logger.Info().Str("file", p).Msg("export written")
			}
		}

		printSummary(os.Stdout, session)
		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.Float64Var(&analyzeFlags.interval, "interval", 1.0, "seconds between sampled frames")
	f.Float64Var(&analyzeFlags.sensitivity, "sensitivity", 6, "scene sensitivity, higher splits more (recommended 0-10)")
	f.IntVar(&analyzeFlags.workers, "workers", 0, "concurrent frame decoders (0 = number of CPUs)")
	f.StringVar(&analyzeFlags.out, "out", "", "export directory (default from config)")
	f.StringVar(&analyzeFlags.format, "format", "json,scenes-csv,shots-csv", "comma separated export formats, or none")
	f.BoolVar(&analyzeFlags.noStore, "no-store", false, "do not record the session in the store")
}

// progressLogger reports sampling progress at every 10%
func progressLogger(logger zerolog.Logger, input string) func(done, total int) {
	var last atomic.Int64
	return func(done, total int) {
		if total == 0 {
			return
		}
		decile := int64(done * 10 / total)
		prev := last.Load()
		if decile > prev && last.CompareAndSwap(prev, decile) {
			logger.Info().Str("input", input).Int("done", done).Int("total", total).Msgf("sampling %d%%", decile*10)
		}
	}
}

func printSummary(w io.Writer, s *pipeline.Session) {
	g := s.Result.Global
	fmt.Fprintf(w, "%s  %s  %dx%d  ~%.2f fps\n",
		s.Meta.Filename, util.FormatClock(s.Meta.DurationSec), s.Meta.Width, s.Meta.Height, s.Meta.FPSEstimated)
	fmt.Fprintf(w, "session %s  interval %.2fs  sensitivity %g\n", s.ID, s.Config.IntervalSec, s.Config.Sensitivity)
	fmt.Fprintf(w, "%s samples, %d shots (avg %.2fs), %d scenes (avg %.2fs, %.1f shots/scene)\n\n",
		humanize.Comma(int64(len(s.Result.Samples))), g.ShotCount, g.AverageShotLengthSec,
		g.SceneCount, g.AverageSceneLengthSec, g.AverageShotsPerScene)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENE\tSTART\tEND\tSHOTS\tASL\tL/M/C %\tHUE\tCOLOR\tPROPS")
	for _, sc := range export.NewPayload(s).Scenes {
		labels := make([]string, 0, len(sc.Props))
		for _, p := range sc.Props {
			labels = append(labels, p.Label)
		}
		c := sc.ShotScaleComposition
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2fs\t%d/%d/%d\t%.0f\t#%02x%02x%02x\t%s\n",
			sc.SceneID, util.FormatClock(sc.StartSec), util.FormatClock(sc.EndSec), sc.ShotCount,
			sc.AverageShotLengthSec, c.LongPct, c.MediumPct, c.ClosePct, sc.DominantHue,
			sc.DominantRGB[0], sc.DominantRGB[1], sc.DominantRGB[2], strings.Join(labels, ", "))
	}
	tw.Flush()
}
