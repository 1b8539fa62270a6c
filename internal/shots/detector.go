package shots

import (
	"math"
	"sort"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/stats"
)

// Scale is the framing class of a shot
type Scale string

const (
	ScaleLong    Scale = "Long"
	ScaleMedium  Scale = "Medium"
	ScaleCloseUp Scale = "Close-Up"
)

// Transition score weights and scale factors
const (
	colorWeight   = 0.72
	histWeight    = 0.22
	textureWeight = 0.06

	histScale    = 100
	textureScale = 18
)

const (
	// MinShotSec is the shortest interval kept as a shot; shorter ones are dropped
	MinShotSec = 0.15

	closeUpFocus = 0.62
	mediumFocus  = 0.49

	factorBase  = 1.35
	factorSlope = 0.08
	factorFloor = 0.45

	// spreadTolerance is the relative deviation below which scores count as equal
	spreadTolerance = 1e-9
)

// Shot is a time interval with no detected cut
type Shot struct {
	ID          int          `json:"shotId"`
	StartSec    float64      `json:"startSec"`
	EndSec      float64      `json:"endSec"`
	DurationSec float64      `json:"durationSec"`
	AvgRGB      features.RGB `json:"avgRgb"`
	Focus       float64      `json:"focus"`
	Texture     float64      `json:"texture"`
	Scale       Scale        `json:"shotScale"`
}

// Transition is the change score between a sample and its predecessor
type Transition struct {
	TimeSec float64
	Score   float64
}

// Score fuses color, histogram and texture change between two samples
func Score(prev, cur features.Sample) float64 {
	colorDiff := prev.AvgRGB.Distance(cur.AvgRGB)
	histDiff := prev.Histogram.L1(cur.Histogram) * histScale
	textureDiff := math.Abs(prev.Texture-cur.Texture) * textureScale
	return colorWeight*colorDiff + histWeight*histDiff + textureWeight*textureDiff
}

// Transitions scores every adjacent sample pair, stamped with the later time
func Transitions(samples []features.Sample) []Transition {
	if len(samples) < 2 {
		return nil
	}
	out := make([]Transition, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		out = append(out, Transition{
			TimeSec: samples[i].TimeSec,
			Score:   Score(samples[i-1], samples[i]),
		})
	}
	return out
}

// Threshold is the adaptive cut threshold for a score population.
// Higher sensitivity lowers the multiplier down to a fixed floor.
func Threshold(scores []float64, sensitivity float64) float64 {
	factor := math.Max(factorFloor, factorBase-sensitivity*factorSlope)
	return stats.Mean(scores) + stats.PopStdDev(scores)*factor
}

// Classify maps a mean center-focus ratio to a framing class
func Classify(focus float64) Scale {
	switch {
	case focus >= closeUpFocus:
		return ScaleCloseUp
	case focus >= mediumFocus:
		return ScaleMedium
	default:
		return ScaleLong
	}
}

// Detect splits the sampled timeline into shots.
//
// Boundaries are 0, every transition scoring at or above the threshold and
// the duration itself. A score population with no spread has no outliers
// and therefore no cuts. Intervals shorter than MinShotSec are discarded, not
// merged into a neighbour. Each shot averages the samples in [start, end).
func Detect(samples []features.Sample, durationSec, sensitivity float64) []Shot {
	if len(samples) == 0 {
		return []Shot{}
	}

	transitions := Transitions(samples)
	scores := make([]float64, len(transitions))
	for i, tr := range transitions {
		scores[i] = tr.Score
	}
	threshold := Threshold(scores, sensitivity)
	spread := hasSpread(scores)

	boundaries := []float64{0}
	for _, tr := range transitions {
		if spread && tr.Score >= threshold {
			boundaries = append(boundaries, tr.TimeSec)
		}
	}
	boundaries = dedupe(boundaries)
	if boundaries[len(boundaries)-1] < durationSec {
		boundaries = append(boundaries, durationSec)
	}

	shots := make([]Shot, 0, len(boundaries)-1)
	for i := 0; i+1 < len(boundaries); i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end-start < MinShotSec {
			continue
		}

		var colors []features.RGB
		var focus, texture []float64
		for _, s := range samples {
			if s.TimeSec >= start && s.TimeSec < end {
				colors = append(colors, s.AvgRGB)
				focus = append(focus, s.CenterFocusRatio)
				texture = append(texture, s.Texture)
			}
		}

		meanFocus := stats.Mean(focus)
		shots = append(shots, Shot{
			ID:          len(shots) + 1,
			StartSec:    start,
			EndSec:      end,
			DurationSec: end - start,
			AvgRGB:      features.MeanRGB(colors),
			Focus:       meanFocus,
			Texture:     stats.Mean(texture),
			Scale:       Classify(meanFocus),
		})
	}

	return shots
}

// hasSpread reports whether scores vary by more than rounding noise.
// Equal scores can still produce a standard deviation around 1e-16.
func hasSpread(scores []float64) bool {
	sd := stats.PopStdDev(scores)
	return sd > spreadTolerance*math.Max(1, math.Abs(stats.Mean(scores)))
}

// dedupe rounds boundaries to the millisecond, sorts them and drops repeats
func dedupe(times []float64) []float64 {
	rounded := make([]float64, len(times))
	for i, t := range times {
		rounded[i] = stats.Millis(t)
	}
	sort.Float64s(rounded)

	out := rounded[:1]
	for _, t := range rounded[1:] {
		if t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}
