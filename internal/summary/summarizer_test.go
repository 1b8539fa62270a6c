package summary

import (
	"testing"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/scenes"
	"github.com/kikiluvv/cutrhythm/internal/shots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHue(t *testing.T) {
	tests := []struct {
		name string
		rgb  features.RGB
		want float64
	}{
		{"red", features.RGB{200, 50, 50}, 0},
		{"green", features.RGB{50, 200, 50}, 120},
		{"blue", features.RGB{50, 50, 200}, 240},
		{"magenta wraps", features.RGB{200, 50, 150}, 320},
		{"yellow", features.RGB{200, 200, 50}, 60},
		{"gray", features.RGB{90, 90, 90}, 0},
		{"black", features.RGB{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Hue(tt.rgb)
			assert.InDelta(t, tt.want, h, 2)
			assert.GreaterOrEqual(t, h, 0.0)
			assert.Less(t, h, 360.0)
		})
	}
}

func TestHeuristicInferencer_Rules(t *testing.T) {
	inf := NewHeuristicInferencer()

	tests := []struct {
		name string
		in   PropInput
		want []string
	}{
		{
			name: "warm dark scene",
			in:   PropInput{DominantRGB: features.RGB{120, 40, 30}},
			want: []string{"interior furniture", "wooden surfaces", "lamps / practical lights"},
		},
		{
			name: "green bright scene",
			in:   PropInput{DominantRGB: features.RGB{80, 200, 90}},
			want: []string{"foliage / plants", "textile details"},
		},
		{
			name: "blue busy close scene",
			in:   PropInput{DominantRGB: features.RGB{90, 140, 220}, MotionProxy: 60, MeanFocus: 0.7},
			want: []string{"screens / sky / water", "metal props", "vehicles / moving crowd", "hand props / facial accessories"},
		},
		{
			name: "neutral scene falls back",
			in:   PropInput{DominantRGB: features.RGB{128, 128, 128}, MotionProxy: 10, MeanFocus: 0.3},
			want: []string{"set decoration", "background signage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var labels []string
			for _, p := range inf.Infer(tt.in) {
				labels = append(labels, p.Label)
			}
			assert.Equal(t, tt.want, labels)
		})
	}
}

func TestNormalize(t *testing.T) {
	in := []Prop{
		{"b", 0.5},
		{"a", 0.611},
		{"b", 0.9},
		{"c", 0.7},
		{"d", 0.5},
		{"e", 0.2},
	}

	got := Normalize(in)
	assert.Equal(t, []Prop{
		{"c", 0.7},
		{"a", 0.61},
		{"b", 0.5},
		{"d", 0.5},
	}, got)

	assert.Empty(t, Normalize(nil))
}

type fixedInferencer struct{ props []Prop }

func (f fixedInferencer) Infer(PropInput) []Prop { return f.props }
func (f fixedInferencer) Name() string           { return "fixed" }

func TestCompositeInferencer(t *testing.T) {
	c := NewCompositeInferencer(
		fixedInferencer{[]Prop{{"lamp", 0.4}}},
		fixedInferencer{[]Prop{{"lamp", 0.9}, {"car", 0.8}}},
	)

	assert.Equal(t, "composite+fixed+fixed", c.Name())
	assert.Equal(t, []Prop{{"car", 0.8}, {"lamp", 0.4}}, Normalize(c.Infer(PropInput{})))
}

func sampleShots() []shots.Shot {
	return []shots.Shot{
		{ID: 1, StartSec: 0, EndSec: 2, DurationSec: 2, AvgRGB: features.RGB{200, 40, 40}, Focus: 0.7, Texture: 10, Scale: shots.ScaleCloseUp},
		{ID: 2, StartSec: 2, EndSec: 5, DurationSec: 3, AvgRGB: features.RGB{180, 60, 40}, Focus: 0.5, Texture: 20, Scale: shots.ScaleMedium},
		{ID: 3, StartSec: 5, EndSec: 6, DurationSec: 1, AvgRGB: features.RGB{190, 50, 40}, Focus: 0.2, Texture: 30, Scale: shots.ScaleLong},
		{ID: 4, StartSec: 6, EndSec: 10, DurationSec: 4, AvgRGB: features.RGB{40, 60, 200}, Focus: 0.3, Texture: 80, Scale: shots.ScaleLong},
	}
}

func TestSummarize(t *testing.T) {
	shotList := sampleShots()
	sceneList := []scenes.Scene{
		{ID: 1, ShotIDs: []int{1, 2, 3}, StartSec: 0, EndSec: 6},
		{ID: 2, ShotIDs: []int{4}, StartSec: 6, EndSec: 10},
	}

	summaries := New(nil).Summarize(sceneList, shotList)
	require.Len(t, summaries, 2)

	first := summaries[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 6.0, first.DurationSec)
	assert.Equal(t, 3, first.ShotCount)
	assert.InDelta(t, 2, first.AverageShotLengthSec, 1e-12)
	assert.Equal(t, Composition{LongPct: 33, MediumPct: 33, ClosePct: 33}, first.Composition, "rounding is not corrected to 100")
	assert.InDelta(t, 190, first.DominantRGB[0], 1e-9)
	assert.InDelta(t, 50, first.DominantRGB[1], 1e-9)
	assert.InDelta(t, 40, first.DominantRGB[2], 1e-9)
	assert.InDelta(t, 4, first.DominantHue, 1)
	assert.InDelta(t, 20, first.MotionProxy, 1e-9)
	assert.Len(t, first.Shots, 3)
	assert.Equal(t, "interior furniture", first.Props[0].Label)

	second := summaries[1]
	assert.Equal(t, Composition{LongPct: 100}, second.Composition)
	assert.InDelta(t, 4, second.AverageShotLengthSec, 1e-12)
	assert.InDelta(t, 80, second.MotionProxy, 1e-9)

	labels := map[string]bool{}
	for _, p := range second.Props {
		labels[p.Label] = true
	}
	assert.True(t, labels["screens / sky / water"])
	assert.True(t, labels["vehicles / moving crowd"])
}

func TestSummarize_PropsInvariants(t *testing.T) {
	noisy := fixedInferencer{[]Prop{
		{"a", 0.1}, {"b", 0.9}, {"a", 0.95}, {"c", 0.333}, {"d", 0.4}, {"e", 0.7},
	}}

	summaries := New(noisy).Summarize([]scenes.Scene{{ID: 1, ShotIDs: []int{1}, StartSec: 0, EndSec: 2}}, sampleShots())
	require.Len(t, summaries, 1)

	props := summaries[0].Props
	assert.LessOrEqual(t, len(props), MaxProps)
	seen := map[string]bool{}
	for i, p := range props {
		assert.False(t, seen[p.Label], "duplicate label %q", p.Label)
		seen[p.Label] = true
		if i > 0 {
			assert.LessOrEqual(t, p.Score, props[i-1].Score)
		}
	}
}

func TestSummarize_EmptyScene(t *testing.T) {
	summaries := New(nil).Summarize([]scenes.Scene{{ID: 1, ShotIDs: []int{}, StartSec: 0, EndSec: 8}}, nil)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, 8.0, s.DurationSec)
	assert.Equal(t, 0, s.ShotCount)
	assert.Equal(t, 0.0, s.AverageShotLengthSec)
	assert.Equal(t, Composition{}, s.Composition)
	assert.Equal(t, 0.0, s.DominantHue)
	assert.NotEmpty(t, s.Props)
}

func TestComputeGlobal(t *testing.T) {
	shotList := sampleShots()
	summaries := []SceneSummary{
		{Scene: scenes.Scene{ID: 1}, DurationSec: 6},
		{Scene: scenes.Scene{ID: 2}, DurationSec: 4},
	}

	g := ComputeGlobal(shotList, summaries)
	assert.Equal(t, 4, g.ShotCount)
	assert.Equal(t, 2, g.SceneCount)
	assert.InDelta(t, 2.5, g.AverageShotLengthSec, 1e-12)
	assert.InDelta(t, 5, g.AverageSceneLengthSec, 1e-12)
	assert.InDelta(t, 2, g.AverageShotsPerScene, 1e-12)

	assert.Equal(t, Global{}, ComputeGlobal(nil, nil))
}
