package summary

import (
	"math"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/scenes"
	"github.com/kikiluvv/cutrhythm/internal/shots"
	"github.com/kikiluvv/cutrhythm/internal/stats"
)

// Composition is the share of each framing class in a scene, in whole
// percent. Each value is rounded on its own so the sum may differ from 100.
type Composition struct {
	LongPct   int `json:"longPct"`
	MediumPct int `json:"mediumPct"`
	ClosePct  int `json:"closePct"`
}

// SceneSummary is a scene enriched with color, framing and label statistics
type SceneSummary struct {
	scenes.Scene
	DurationSec          float64      `json:"durationSec"`
	ShotCount            int          `json:"shotCount"`
	AverageShotLengthSec float64      `json:"averageShotLengthSec"`
	Composition          Composition  `json:"shotScaleComposition"`
	DominantRGB          features.RGB `json:"dominantRgb"`
	DominantHue          float64      `json:"dominantHue"`
	MotionProxy          float64      `json:"motionProxy"`
	Props                []Prop       `json:"props"`
	Shots                []shots.Shot `json:"shots"`
}

// Global holds whole-video statistics
type Global struct {
	ShotCount             int     `json:"shotCount"`
	SceneCount            int     `json:"sceneCount"`
	AverageShotLengthSec  float64 `json:"averageShotLengthSec"`
	AverageSceneLengthSec float64 `json:"averageSceneLengthSec"`
	AverageShotsPerScene  float64 `json:"averageShotsPerScene"`
}

// Summarizer derives scene summaries using a pluggable PropInferencer
type Summarizer struct {
	inferencer PropInferencer
}

// New creates a summarizer; a nil inferencer selects the heuristic rules
func New(inferencer PropInferencer) *Summarizer {
	if inferencer == nil {
		inferencer = NewHeuristicInferencer()
	}
	return &Summarizer{inferencer: inferencer}
}

// Inferencer returns the label source in use
func (s *Summarizer) Inferencer() PropInferencer {
	return s.inferencer
}

// Summarize enriches every scene with statistics over its member shots
func (s *Summarizer) Summarize(sceneList []scenes.Scene, shotList []shots.Shot) []SceneSummary {
	byID := make(map[int]shots.Shot, len(shotList))
	for _, sh := range shotList {
		byID[sh.ID] = sh
	}

	out := make([]SceneSummary, 0, len(sceneList))
	for _, sc := range sceneList {
		members := make([]shots.Shot, 0, len(sc.ShotIDs))
		for _, id := range sc.ShotIDs {
			if sh, ok := byID[id]; ok {
				members = append(members, sh)
			}
		}
		out = append(out, s.summarize(sc, members))
	}
	return out
}

func (s *Summarizer) summarize(sc scenes.Scene, members []shots.Shot) SceneSummary {
	duration := sc.EndSec - sc.StartSec
	n := len(members)

	colors := make([]features.RGB, n)
	textures := make([]float64, n)
	focus := make([]float64, n)
	counts := map[shots.Scale]int{}
	for i, sh := range members {
		colors[i] = sh.AvgRGB
		textures[i] = sh.Texture
		focus[i] = sh.Focus
		counts[sh.Scale]++
	}

	asl := 0.0
	if n > 0 {
		asl = duration / float64(n)
	}

	dominant := features.MeanRGB(colors)
	motion := stats.Mean(textures)

	props := Normalize(s.inferencer.Infer(PropInput{
		DominantRGB: dominant,
		MotionProxy: motion,
		MeanFocus:   stats.Mean(focus),
	}))

	return SceneSummary{
		Scene:                sc,
		DurationSec:          duration,
		ShotCount:            n,
		AverageShotLengthSec: asl,
		Composition: Composition{
			LongPct:   percent(counts[shots.ScaleLong], n),
			MediumPct: percent(counts[shots.ScaleMedium], n),
			ClosePct:  percent(counts[shots.ScaleCloseUp], n),
		},
		DominantRGB: dominant,
		DominantHue: Hue(dominant),
		MotionProxy: motion,
		Props:       props,
		Shots:       members,
	}
}

// ComputeGlobal aggregates shot and scene statistics for the whole video
func ComputeGlobal(shotList []shots.Shot, summaries []SceneSummary) Global {
	shotDurations := make([]float64, len(shotList))
	for i, sh := range shotList {
		shotDurations[i] = sh.DurationSec
	}
	sceneDurations := make([]float64, len(summaries))
	for i, sc := range summaries {
		sceneDurations[i] = sc.DurationSec
	}

	g := Global{
		ShotCount:             len(shotList),
		SceneCount:            len(summaries),
		AverageShotLengthSec:  stats.Mean(shotDurations),
		AverageSceneLengthSec: stats.Mean(sceneDurations),
	}
	if g.SceneCount > 0 {
		g.AverageShotsPerScene = float64(g.ShotCount) / float64(g.SceneCount)
	}
	return g
}

// Hue converts a color to its hue angle in degrees, [0, 360).
// Achromatic colors have hue 0.
func Hue(c features.RGB) float64 {
	r, g, b := c[0]/255, c[1]/255, c[2]/255
	hi := max(r, g, b)
	lo := min(r, g, b)
	diff := hi - lo
	if diff == 0 {
		return 0
	}

	var h float64
	switch hi {
	case r:
		h = math.Mod((g-b)/diff, 6)
	case g:
		h = (b-r)/diff + 2
	default:
		h = (r-g)/diff + 4
	}

	deg := h * 60
	if deg < 0 {
		deg += 360
	}
	return deg
}

func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(stats.RoundHalfUp(float64(count) / float64(total) * 100))
}
