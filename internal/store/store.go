package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by lookups that need an existing session or scene
var ErrNotFound = errors.New("not found")

// Header is the listing view of a stored session
type Header struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	VideoID        string    `json:"videoId"`
	DurationSec    float64   `json:"durationSec"`
	IntervalSec    float64   `json:"intervalSec"`
	Sensitivity    float64   `json:"sensitivity"`
	ShotCount      int       `json:"shotCount"`
	SceneCount     int       `json:"sceneCount"`
	PropInferencer string    `json:"propInferencer"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SimilarScene is a stored scene ranked by palette distance to a reference scene
type SimilarScene struct {
	SessionID   string     `json:"sessionId"`
	Filename    string     `json:"filename"`
	SceneID     int        `json:"sceneId"`
	DominantRGB [3]float64 `json:"dominantRgb"`
	DominantHue float64    `json:"dominantHue"`
	Distance    float64    `json:"distance"`
}

// Store persists completed analysis sessions.
// Get returns nil, nil when the session does not exist.
type Store interface {
	Save(ctx context.Context, s *pipeline.Session) error
	Get(ctx context.Context, id string) (*pipeline.Session, error)
	List(ctx context.Context, limit int) ([]Header, error)
	SimilarScenes(ctx context.Context, sessionID string, sceneID, limit int) ([]SimilarScene, error)
	Close() error
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Path, logger)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.Postgres, logger)
	case config.DriverNone, "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// HeaderOf extracts the listing columns from a session
func HeaderOf(s *pipeline.Session) Header {
	return Header{
		ID:             s.ID,
		Filename:       s.Meta.Filename,
		VideoID:        s.Meta.ID,
		DurationSec:    s.Meta.DurationSec,
		IntervalSec:    s.Config.IntervalSec,
		Sensitivity:    s.Config.Sensitivity,
		ShotCount:      s.Result.Global.ShotCount,
		SceneCount:     s.Result.Global.SceneCount,
		PropInferencer: s.PropInferencer,
		CreatedAt:      s.CreatedAt,
	}
}

func validateSession(s *pipeline.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session must have an id")
	}
	return nil
}

func encodeSession(s *pipeline.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*pipeline.Session, error) {
	var s pipeline.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// NopStore discards sessions
type NopStore struct{}

func (NopStore) Save(context.Context, *pipeline.Session) error { return nil }

func (NopStore) Get(context.Context, string) (*pipeline.Session, error) { return nil, nil }

func (NopStore) List(context.Context, int) ([]Header, error) { return []Header{}, nil }

func (NopStore) SimilarScenes(context.Context, string, int, int) ([]SimilarScene, error) {
	return nil, ErrNotFound
}

func (NopStore) Close() error { return nil }
