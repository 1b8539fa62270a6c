package summary

import (
	"sort"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/stats"
)

// MaxProps caps the number of labels attached to a scene
const MaxProps = 4

// Prop is a heuristic content label with a confidence in [0, 1]
type Prop struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// PropInput carries the scene statistics a PropInferencer may look at
type PropInput struct {
	DominantRGB features.RGB
	MotionProxy float64
	MeanFocus   float64
}

// PropInferencer labels a scene from its aggregate statistics.
// Results are normalized by the summarizer, so implementations may return
// duplicates or more than MaxProps entries.
type PropInferencer interface {
	Infer(in PropInput) []Prop
	Name() string
}

type propRule struct {
	match func(in PropInput) bool
	props []Prop
}

// HeuristicInferencer applies a fixed rule table over color, motion and focus
type HeuristicInferencer struct {
	rules    []propRule
	fallback []Prop
}

// NewHeuristicInferencer creates the default rule-based inferencer
func NewHeuristicInferencer() *HeuristicInferencer {
	return &HeuristicInferencer{
		rules: []propRule{
			{
				match: func(in PropInput) bool {
					r, g, b := in.DominantRGB[0], in.DominantRGB[1], in.DominantRGB[2]
					return r > g+15 && r > b+15
				},
				props: []Prop{{"interior furniture", 0.76}, {"wooden surfaces", 0.68}},
			},
			{
				match: func(in PropInput) bool {
					r, g, b := in.DominantRGB[0], in.DominantRGB[1], in.DominantRGB[2]
					return g > r+12 && g > b+12
				},
				props: []Prop{{"foliage / plants", 0.78}, {"textile details", 0.61}},
			},
			{
				match: func(in PropInput) bool {
					r, g, b := in.DominantRGB[0], in.DominantRGB[1], in.DominantRGB[2]
					return b > r+10 && b > g+10
				},
				props: []Prop{{"screens / sky / water", 0.74}, {"metal props", 0.57}},
			},
			{
				match: func(in PropInput) bool { return in.DominantRGB.Luma() < 72 },
				props: []Prop{{"lamps / practical lights", 0.64}},
			},
			{
				match: func(in PropInput) bool { return in.MotionProxy > 55 },
				props: []Prop{{"vehicles / moving crowd", 0.63}},
			},
			{
				match: func(in PropInput) bool { return in.MeanFocus >= 0.62 },
				props: []Prop{{"hand props / facial accessories", 0.58}},
			},
		},
		fallback: []Prop{{"set decoration", 0.55}, {"background signage", 0.49}},
	}
}

// Infer returns the labels of every matching rule, or the fallback set
func (h *HeuristicInferencer) Infer(in PropInput) []Prop {
	var picks []Prop
	for _, rule := range h.rules {
		if rule.match(in) {
			picks = append(picks, rule.props...)
		}
	}
	if len(picks) == 0 {
		picks = append(picks, h.fallback...)
	}
	return picks
}

// Name identifies the inferencer in logs and exports
func (h *HeuristicInferencer) Name() string {
	return "heuristic"
}

// CompositeInferencer pools the labels of several inferencers
type CompositeInferencer struct {
	inferencers []PropInferencer
}

// NewCompositeInferencer creates an inferencer that concatenates results in order
func NewCompositeInferencer(inferencers ...PropInferencer) *CompositeInferencer {
	return &CompositeInferencer{inferencers: inferencers}
}

// Infer runs every inferencer; earlier ones win on duplicate labels
func (c *CompositeInferencer) Infer(in PropInput) []Prop {
	var out []Prop
	for _, inf := range c.inferencers {
		out = append(out, inf.Infer(in)...)
	}
	return out
}

// Name joins the names of the pooled inferencers
func (c *CompositeInferencer) Name() string {
	name := "composite"
	for _, inf := range c.inferencers {
		name += "+" + inf.Name()
	}
	return name
}

// Normalize dedupes by label keeping the first occurrence, sorts by score
// descending (stable), keeps MaxProps entries and rounds scores to 2 decimals
func Normalize(props []Prop) []Prop {
	seen := make(map[string]bool, len(props))
	out := make([]Prop, 0, len(props))
	for _, p := range props {
		if seen[p.Label] {
			continue
		}
		seen[p.Label] = true
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if len(out) > MaxProps {
		out = out[:MaxProps]
	}
	for i := range out {
		out[i].Score = stats.RoundTo(out[i].Score, 2)
	}
	return out
}
