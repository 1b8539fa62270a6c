package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps sessions in a local SQLite database
type SQLiteStore struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		conn:   conn,
		logger: logger.With().Str("component", "store").Str("driver", "sqlite").Logger(),
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s.logger.Debug().Str("path", dbPath).Msg("session store ready")
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying database handle
func (s *SQLiteStore) Conn() *sql.DB {
	return s.conn
}

func (s *SQLiteStore) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}

		name := m.Name()

		if s.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}

		s.logger.Info().Str("name", name).Msg("applied migration")
	}

	return nil
}

func (s *SQLiteStore) isMigrationApplied(name string) bool {
	var exists int
	err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err != nil {
		return false
	}

	var applied int
	err = s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// Save writes the session and its scene palettes in one transaction
func (s *SQLiteStore) Save(ctx context.Context, session *pipeline.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	payload, err := encodeSession(session)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	h := HeaderOf(session)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, filename, video_id, duration_sec, interval_sec, sensitivity,
			shot_count, scene_count, prop_inferencer, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.Filename, h.VideoID, h.DurationSec, h.IntervalSec, h.Sensitivity,
		h.ShotCount, h.SceneCount, h.PropInferencer, h.CreatedAt.UTC().Format(timeLayout), string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", h.ID, err)
	}

	for _, sc := range session.Result.Scenes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scene_palettes (session_id, scene_id, r, g, b, dominant_hue)
			VALUES (?, ?, ?, ?, ?, ?)
		`, h.ID, sc.ID, sc.DominantRGB[0], sc.DominantRGB[1], sc.DominantRGB[2], sc.DominantHue)
		if err != nil {
			return fmt.Errorf("failed to insert palette for scene %d: %w", sc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", h.ID, err)
	}

	s.logger.Debug().Str("session", h.ID).Int("scenes", h.SceneCount).Msg("session saved")
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*pipeline.Session, error) {
	var payload string
	err := s.conn.QueryRowContext(ctx, "SELECT payload FROM sessions WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return decodeSession([]byte(payload))
}

// List returns the newest sessions first
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Header, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, filename, video_id, duration_sec, interval_sec, sensitivity,
			shot_count, scene_count, prop_inferencer, created_at
		FROM sessions ORDER BY created_at DESC, id LIMIT ?
	`, clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	headers := []Header{}
	for rows.Next() {
		var h Header
		var createdAt string
		if err := rows.Scan(&h.ID, &h.Filename, &h.VideoID, &h.DurationSec, &h.IntervalSec, &h.Sensitivity,
			&h.ShotCount, &h.SceneCount, &h.PropInferencer, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		h.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// SimilarScenes ranks stored scenes by Euclidean distance between dominant colors
func (s *SQLiteStore) SimilarScenes(ctx context.Context, sessionID string, sceneID, limit int) ([]SimilarScene, error) {
	var r, g, b float64
	err := s.conn.QueryRowContext(ctx,
		"SELECT r, g, b FROM scene_palettes WHERE session_id = ? AND scene_id = ?",
		sessionID, sceneID).Scan(&r, &g, &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scene %d of session %s: %w", sceneID, sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference scene: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT p.session_id, s.filename, p.scene_id, p.r, p.g, p.b, p.dominant_hue,
			(p.r - ?1) * (p.r - ?1) + (p.g - ?2) * (p.g - ?2) + (p.b - ?3) * (p.b - ?3) AS d2
		FROM scene_palettes p
		JOIN sessions s ON s.id = p.session_id
		WHERE NOT (p.session_id = ?4 AND p.scene_id = ?5)
		ORDER BY d2, p.session_id, p.scene_id
		LIMIT ?6
	`, r, g, b, sessionID, sceneID, clampLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to search similar scenes: %w", err)
	}
	defer rows.Close()

	results := []SimilarScene{}
	for rows.Next() {
		var sc SimilarScene
		var d2 float64
		if err := rows.Scan(&sc.SessionID, &sc.Filename, &sc.SceneID,
			&sc.DominantRGB[0], &sc.DominantRGB[1], &sc.DominantRGB[2], &sc.DominantHue, &d2); err != nil {
			return nil, fmt.Errorf("failed to scan similar scene: %w", err)
		}
		sc.Distance = math.Sqrt(d2)
		results = append(results, sc)
	}
	return results, rows.Err()
}
