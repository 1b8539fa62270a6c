package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/shots"
	"github.com/kikiluvv/cutrhythm/internal/stats"
	"github.com/kikiluvv/cutrhythm/internal/summary"
	"github.com/kikiluvv/cutrhythm/pkg/util"
)

// Format names an export file type
type Format string

const (
	FormatJSON      Format = "json"
	FormatScenesCSV Format = "scenes-csv"
	FormatShotsCSV  Format = "shots-csv"
)

// AllFormats lists every supported format in write order
var AllFormats = []Format{FormatJSON, FormatScenesCSV, FormatShotsCSV}

var (
	scenesHeader = []string{
		"scene_id", "start_sec", "end_sec", "duration_sec", "shot_count",
		"avg_shot_length_sec", "long_pct", "medium_pct", "close_pct",
		"dominant_hue_deg", "dominant_rgb", "notable_props",
	}
	shotsHeader = []string{
		"scene_id", "shot_id", "start_sec", "end_sec", "duration_sec", "shot_scale", "avg_rgb",
	}
)

// Payload is the document served by the API and written as JSON
type Payload struct {
	SessionID      string             `json:"sessionId"`
	CreatedAt      time.Time          `json:"createdAt"`
	PropInferencer string             `json:"propInferencer"`
	VideoMeta      pipeline.VideoMeta `json:"videoMeta"`
	Config         pipeline.Config    `json:"config"`
	Global         summary.Global     `json:"global"`
	Scenes         []ScenePayload     `json:"scenes"`
	Shots          []ShotPayload      `json:"shots"`
}

type ScenePayload struct {
	SceneID              int                 `json:"sceneId"`
	ShotIDs              []int               `json:"shotIds"`
	StartSec             float64             `json:"startSec"`
	EndSec               float64             `json:"endSec"`
	DurationSec          float64             `json:"durationSec"`
	ShotCount            int                 `json:"shotCount"`
	AverageShotLengthSec float64             `json:"averageShotLengthSec"`
	ShotScaleComposition summary.Composition `json:"shotScaleComposition"`
	DominantRGB          [3]int              `json:"dominantRgb"`
	DominantHue          float64             `json:"dominantHue"`
	MotionProxy          float64             `json:"motionProxy"`
	Props                []summary.Prop      `json:"props"`
}

type ShotPayload struct {
	SceneID     int         `json:"sceneId"`
	ShotID      int         `json:"shotId"`
	StartSec    float64     `json:"startSec"`
	EndSec      float64     `json:"endSec"`
	DurationSec float64     `json:"durationSec"`
	ShotScale   shots.Scale `json:"shotScale"`
	AvgRGB      [3]int      `json:"avgRgb"`
}

// ParseFormats parses a comma separated format list. An empty list selects
// every format.
func ParseFormats(s string) ([]Format, error) {
	if strings.TrimSpace(s) == "" {
		return AllFormats, nil
	}

	var out []Format
	seen := map[Format]bool{}
	for _, part := range strings.Split(s, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case FormatJSON, FormatScenesCSV, FormatShotsCSV:
		case "":
			continue
		default:
			return nil, fmt.Errorf("unknown export format %q", part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// NewPayload flattens a session into its exported shape
func NewPayload(s *pipeline.Session) Payload {
	p := Payload{
		SessionID:      s.ID,
		CreatedAt:      s.CreatedAt,
		PropInferencer: s.PropInferencer,
		VideoMeta:      s.Meta,
		Config:         s.Config,
		Global:         s.Result.Global,
		Scenes:         make([]ScenePayload, 0, len(s.Result.Scenes)),
		Shots:          make([]ShotPayload, 0, len(s.Result.Shots)),
	}

	for _, sc := range s.Result.Scenes {
		props := sc.Props
		if props == nil {
			props = []summary.Prop{}
		}
		shotIDs := sc.ShotIDs
		if shotIDs == nil {
			shotIDs = []int{}
		}
		p.Scenes = append(p.Scenes, ScenePayload{
			SceneID:              sc.ID,
			ShotIDs:              shotIDs,
			StartSec:             sc.StartSec,
			EndSec:               sc.EndSec,
			DurationSec:          sc.DurationSec,
			ShotCount:            sc.ShotCount,
			AverageShotLengthSec: sc.AverageShotLengthSec,
			ShotScaleComposition: sc.Composition,
			DominantRGB:          sc.DominantRGB.Rounded(),
			DominantHue:          sc.DominantHue,
			MotionProxy:          sc.MotionProxy,
			Props:                props,
		})

		for _, sh := range sc.Shots {
			p.Shots = append(p.Shots, ShotPayload{
				SceneID:     sc.ID,
				ShotID:      sh.ID,
				StartSec:    sh.StartSec,
				EndSec:      sh.EndSec,
				DurationSec: sh.DurationSec,
				ShotScale:   sh.Scale,
				AvgRGB:      sh.AvgRGB.Rounded(),
			})
		}
	}

	return p
}

// WriteJSON writes the indented payload
func WriteJSON(w io.Writer, s *pipeline.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewPayload(s)); err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return nil
}

// WriteScenesCSV writes one row per scene
func WriteScenesCSV(w io.Writer, s *pipeline.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scenesHeader); err != nil {
		return err
	}

	for _, sc := range NewPayload(s).Scenes {
		labels := make([]string, 0, len(sc.Props))
		for _, p := range sc.Props {
			labels = append(labels, p.Label)
		}

		row := []string{
			strconv.Itoa(sc.SceneID),
			seconds(sc.StartSec),
			seconds(sc.EndSec),
			seconds(sc.DurationSec),
			strconv.Itoa(sc.ShotCount),
			seconds(sc.AverageShotLengthSec),
			strconv.Itoa(sc.ShotScaleComposition.LongPct),
			strconv.Itoa(sc.ShotScaleComposition.MediumPct),
			strconv.Itoa(sc.ShotScaleComposition.ClosePct),
			strconv.Itoa(int(stats.RoundHalfUp(sc.DominantHue))),
			rgb(sc.DominantRGB),
			strings.Join(labels, " | "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteShotsCSV writes one row per shot, grouped by scene
func WriteShotsCSV(w io.Writer, s *pipeline.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(shotsHeader); err != nil {
		return err
	}

	for _, sh := range NewPayload(s).Shots {
		row := []string{
			strconv.Itoa(sh.SceneID),
			strconv.Itoa(sh.ShotID),
			seconds(sh.StartSec),
			seconds(sh.EndSec),
			seconds(sh.DurationSec),
			string(sh.ShotScale),
			rgb(sh.AvgRGB),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName returns the export file name for a video stem and format
func FileName(stem string, f Format) string {
	stem = util.SafeStem(stem)
	switch f {
	case FormatScenesCSV:
		return stem + "_scenes.csv"
	case FormatShotsCSV:
		return stem + "_shots.csv"
	default:
		return stem + "_analysis.json"
	}
}

// WriteFiles writes the requested formats into dir and returns the paths
func WriteFiles(dir string, s *pipeline.Session, formats []Format) ([]string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}

	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		path := filepath.Join(dir, FileName(s.Meta.Filename, f))
		if err := writeFile(path, s, f); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, s *pipeline.Session, f Format) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	switch f {
	case FormatJSON:
		err = WriteJSON(file, s)
	case FormatScenesCSV:
		err = WriteScenesCSV(file, s)
	case FormatShotsCSV:
		err = WriteShotsCSV(file, s)
	default:
		err = fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func rgb(c [3]int) string {
	return fmt.Sprintf("RGB(%d, %d, %d)", c[0], c[1], c[2])
}
