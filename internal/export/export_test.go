package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/features"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/scenes"
	"github.com/kikiluvv/cutrhythm/internal/shots"
	"github.com/kikiluvv/cutrhythm/internal/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *pipeline.Session {
	shotList := []shots.Shot{
		{ID: 1, StartSec: 0, EndSec: 2.5, DurationSec: 2.5, AvgRGB: features.RGB{200.4, 40.5, 39.6}, Focus: 0.7, Scale: shots.ScaleCloseUp},
		{ID: 2, StartSec: 2.5, EndSec: 6, DurationSec: 3.5, AvgRGB: features.RGB{10, 20, 30}, Focus: 0.3, Scale: shots.ScaleLong},
		{ID: 3, StartSec: 6, EndSec: 10, DurationSec: 4, AvgRGB: features.RGB{30, 140, 40}, Focus: 0.5, Scale: shots.ScaleMedium},
	}
	sceneList := []summary.SceneSummary{
		{
			Scene:                scenes.Scene{ID: 1, ShotIDs: []int{1, 2}, StartSec: 0, EndSec: 6},
			DurationSec:          6,
			ShotCount:            2,
			AverageShotLengthSec: 3,
			Composition:          summary.Composition{LongPct: 50, ClosePct: 50},
			DominantRGB:          features.RGB{105.2, 30.25, 34.8},
			DominantHue:          356.6,
			MotionProxy:          12.5,
			Props:                []summary.Prop{{Label: "interior furniture", Score: 0.78}, {Label: "wooden surfaces", Score: 0.66}},
			Shots:                shotList[:2],
		},
		{
			Scene:                scenes.Scene{ID: 2, ShotIDs: []int{3}, StartSec: 6, EndSec: 10},
			DurationSec:          4,
			ShotCount:            1,
			AverageShotLengthSec: 4,
			Composition:          summary.Composition{MediumPct: 100},
			DominantRGB:          features.RGB{30, 140, 40},
			DominantHue:          125.45,
			Shots:                shotList[2:],
		},
	}

	return &pipeline.Session{
		ID:             "5f0c7b8e-0000-4000-8000-000000000001",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Meta:           pipeline.NewVideoMeta("My Clip.final.mp4", 10, 1920, 1080, 25),
		Config:         pipeline.Config{IntervalSec: 0.5, Sensitivity: 6},
		PropInferencer: "heuristic",
		Result: pipeline.Result{
			Shots:  shotList,
			Scenes: sceneList,
			Global: summary.ComputeGlobal(shotList, sceneList),
		},
	}
}

func TestNewPayload(t *testing.T) {
	p := NewPayload(testSession())

	assert.Equal(t, "My_Clip_final", p.VideoMeta.ID)
	require.Len(t, p.Scenes, 2)
	require.Len(t, p.Shots, 3)

	assert.Equal(t, [3]int{105, 30, 35}, p.Scenes[0].DominantRGB)
	assert.Equal(t, []summary.Prop{}, p.Scenes[1].Props, "missing props export as an empty list")
	assert.Equal(t, []int{1, 2}, p.Scenes[0].ShotIDs)
	assert.Equal(t, []int{3}, p.Scenes[1].ShotIDs)
	assert.Equal(t, 12.5, p.Scenes[0].MotionProxy)

	assert.Equal(t, ShotPayload{
		SceneID: 1, ShotID: 1, StartSec: 0, EndSec: 2.5, DurationSec: 2.5,
		ShotScale: shots.ScaleCloseUp, AvgRGB: [3]int{200, 41, 40},
	}, p.Shots[0])
	assert.Equal(t, 2, p.Shots[2].SceneID)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testSession()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{"videoMeta", "config", "global", "scenes", "shots"} {
		assert.Contains(t, doc, key)
	}

	cfg := doc["config"].(map[string]any)
	assert.Equal(t, 0.5, cfg["intervalSec"])

	scene := doc["scenes"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{105.0, 30.0, 35.0}, scene["dominantRgb"])
	assert.Contains(t, scene, "shotScaleComposition")
	assert.NotContains(t, scene, "shots", "shots are flattened at the top level")
	assert.Equal(t, []any{1.0, 2.0}, scene["shotIds"])
	assert.Equal(t, 12.5, scene["motionProxy"])
}

func TestWriteScenesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScenesCSV(&buf, testSession()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, scenesHeader, rows[0])
	assert.Equal(t, []string{
		"1", "0.000", "6.000", "6.000", "2", "3.000", "50", "0", "50", "357",
		"RGB(105, 30, 35)", "interior furniture | wooden surfaces",
	}, rows[1])
	assert.Equal(t, "125", rows[2][9])
	assert.Equal(t, "", rows[2][11])
}

func TestWriteShotsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteShotsCSV(&buf, testSession()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "scene_id,shot_id,start_sec,end_sec,duration_sec,shot_scale,avg_rgb", lines[0])
	assert.Equal(t, `1,1,0.000,2.500,2.500,Close-Up,"RGB(200, 41, 40)"`, lines[1])
	assert.Equal(t, `2,3,6.000,10.000,4.000,Medium,"RGB(30, 140, 40)"`, lines[3])
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats("")
	require.NoError(t, err)
	assert.Equal(t, AllFormats, got)

	got, err = ParseFormats(" shots-csv, JSON,shots-csv,")
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatShotsCSV, FormatJSON}, got)

	_, err = ParseFormats("json,xml")
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteFiles(dir, testSession(), AllFormats)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "My_Clip_final_analysis.json"),
		filepath.Join(dir, "My_Clip_final_scenes.csv"),
		filepath.Join(dir, "My_Clip_final_shots.csv"),
	}, paths)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
