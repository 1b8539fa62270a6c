package scenes

import (
	"math"

	"github.com/kikiluvv/cutrhythm/internal/shots"
)

const (
	// MinShotsBetweenCuts keeps cue-driven cuts from producing single-shot scenes
	MinShotsBetweenCuts = 2
	// MaxShotsPerScene forces a cut regardless of visual similarity
	MaxShotsPerScene = 8

	rhythmWeight  = 7
	thresholdBase = 45
	thresholdStep = 1.6
)

// Scene is a contiguous run of shots
type Scene struct {
	ID       int     `json:"sceneId"`
	ShotIDs  []int   `json:"shotIds"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// Cue measures the color drift plus rhythm change between adjacent shots
func Cue(prev, cur shots.Shot) float64 {
	drift := prev.AvgRGB.Distance(cur.AvgRGB)
	rhythm := math.Abs(prev.DurationSec-cur.DurationSec) * rhythmWeight
	return drift + rhythm
}

// Threshold returns the cue threshold; it goes negative at high sensitivity
func Threshold(sensitivity float64) float64 {
	return thresholdBase - sensitivity*thresholdStep
}

// Group partitions the shot sequence into scenes.
//
// A new scene starts at shot i when its cue exceeds the threshold and at
// least MinShotsBetweenCuts shots passed since the last cut, or when the
// current scene already holds MaxShotsPerScene shots. With no shots a single
// empty scene covering the whole duration is returned.
func Group(shotList []shots.Shot, durationSec, sensitivity float64) []Scene {
	if len(shotList) == 0 {
		return []Scene{{ID: 1, ShotIDs: []int{}, StartSec: 0, EndSec: durationSec}}
	}

	threshold := Threshold(sensitivity)
	cuts := []int{0}

	for i := 1; i < len(shotList); i++ {
		since := i - cuts[len(cuts)-1]
		cue := Cue(shotList[i-1], shotList[i])
		if (cue > threshold && since >= MinShotsBetweenCuts) || since >= MaxShotsPerScene {
			cuts = append(cuts, i)
		}
	}
	cuts = append(cuts, len(shotList))

	scenes := make([]Scene, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		members := shotList[cuts[i]:cuts[i+1]]
		ids := make([]int, len(members))
		for j, s := range members {
			ids[j] = s.ID
		}
		scenes = append(scenes, Scene{
			ID:       len(scenes) + 1,
			ShotIDs:  ids,
			StartSec: members[0].StartSec,
			EndSec:   members[len(members)-1].EndSec,
		})
	}

	return scenes
}
