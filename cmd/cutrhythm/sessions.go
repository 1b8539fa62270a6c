package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/export"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/store"
	"github.com/kikiluvv/cutrhythm/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	defaultListLimit    = 20
	defaultSimilarLimit = 10
)

var sessionsFlags struct {
	listLimit    int
	similarLimit int
	format       string
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored analysis sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		headers, err := st.List(cmd.Context(), sessionsFlags.listLimit)
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			fmt.Println("no sessions recorded")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFILE\tDURATION\tINTERVAL\tSENS\tSHOTS\tSCENES\tCREATED")
		for _, h := range headers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2fs\t%g\t%d\t%d\t%s\n",
				h.ID, h.Filename, util.FormatClock(h.DurationSec), h.IntervalSec, h.Sensitivity,
				h.ShotCount, h.SceneCount, humanize.Time(h.CreatedAt))
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session id]",
	Short: "Print a stored session as JSON or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		session, err := getSession(cmd, st, args[0])
		if err != nil {
			return err
		}

		switch export.Format(sessionsFlags.format) {
		case export.FormatJSON:
			return export.WriteJSON(os.Stdout, session)
		case export.FormatScenesCSV:
			return export.WriteScenesCSV(os.Stdout, session)
		case export.FormatShotsCSV:
			return export.WriteShotsCSV(os.Stdout, session)
		case "summary":
			printSummary(os.Stdout, session)
			return nil
		default:
			return fmt.Errorf("unknown format %q", sessionsFlags.format)
		}
	},
}

var sessionsSimilarCmd = &cobra.Command{
	Use:   "similar [session id] [scene id]",
	Short: "Find stored scenes with a palette close to the given scene",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sceneID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("scene id must be an integer: %w", err)
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		matches, err := st.SimilarScenes(cmd.Context(), args[0], sceneID, sessionsFlags.similarLimit)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("scene %d of session %s not found", sceneID, args[0])
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tFILE\tSCENE\tCOLOR\tHUE\tDISTANCE")
		for _, m := range matches {
			c := m.DominantRGB
			fmt.Fprintf(tw, "%s\t%s\t%d\tRGB(%.0f, %.0f, %.0f)\t%.0f\t%.2f\n",
				m.SessionID, m.Filename, m.SceneID, c[0], c[1], c[2], m.DominantHue, m.Distance)
		}
		return tw.Flush()
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsFlags.listLimit, "limit", defaultListLimit, "maximum sessions to list")
	sessionsShowCmd.Flags().StringVar(&sessionsFlags.format, "format", "summary", "summary, json, scenes-csv or shots-csv")
	sessionsSimilarCmd.Flags().IntVar(&sessionsFlags.similarLimit, "limit", defaultSimilarLimit, "maximum scenes to return")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsSimilarCmd)
}

func openStore(cmd *cobra.Command) (store.Store, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg.Store.Driver == config.DriverNone || cfg.Store.Driver == "" {
		return nil, errors.New("no session store configured (store.driver is none)")
	}
	return store.Open(cmd.Context(), cfg.Store, log.Logger)
}

func getSession(cmd *cobra.Command, st store.Store, id string) (*pipeline.Session, error) {
	session, err := st.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return session, nil
}
