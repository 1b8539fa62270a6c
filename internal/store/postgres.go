package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kikiluvv/cutrhythm/internal/config"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

// PostgresStore keeps sessions in PostgreSQL with scene palettes indexed by pgvector
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects using cfg and makes sure the schema exists
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, logger zerolog.Logger) (*PostgresStore, error) {
	return NewPostgresStoreDSN(ctx, cfg.DSN(), logger)
}

// NewPostgresStoreDSN connects using a connection string
func NewPostgresStoreDSN(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "store").Str("driver", "postgres").Logger(),
	}, nil
}

// InitSchema creates the vector extension, tables and indexes if they don't exist
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			video_id TEXT NOT NULL,
			duration_sec DOUBLE PRECISION NOT NULL,
			interval_sec DOUBLE PRECISION NOT NULL,
			sensitivity DOUBLE PRECISION NOT NULL,
			shot_count INTEGER NOT NULL,
			scene_count INTEGER NOT NULL,
			prop_inferencer TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scene_palettes (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			scene_id INTEGER NOT NULL,
			dominant vector(3) NOT NULL,
			dominant_hue DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (session_id, scene_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
		CREATE INDEX IF NOT EXISTS idx_palettes_dominant ON scene_palettes USING ivfflat (dominant vector_l2_ops) WITH (lists = 100);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Save writes the session and its scene palettes in one transaction
func (s *PostgresStore) Save(ctx context.Context, session *pipeline.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	payload, err := encodeSession(session)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	h := HeaderOf(session)
	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, filename, video_id, duration_sec, interval_sec, sensitivity,
			shot_count, scene_count, prop_inferencer, created_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, h.ID, h.Filename, h.VideoID, h.DurationSec, h.IntervalSec, h.Sensitivity,
		h.ShotCount, h.SceneCount, h.PropInferencer, h.CreatedAt, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", h.ID, err)
	}

	batch := &pgx.Batch{}
	for _, sc := range session.Result.Scenes {
		vec := pgvector.NewVector([]float32{
			float32(sc.DominantRGB[0]),
			float32(sc.DominantRGB[1]),
			float32(sc.DominantRGB[2]),
		})
		batch.Queue(`
			INSERT INTO scene_palettes (session_id, scene_id, dominant, dominant_hue)
			VALUES ($1, $2, $3, $4)
		`, h.ID, sc.ID, vec, sc.DominantHue)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert scene palettes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", h.ID, err)
	}

	s.logger.Debug().Str("session", h.ID).Int("scenes", h.SceneCount).Msg("session saved")
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*pipeline.Session, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, "SELECT payload::text FROM sessions WHERE id = $1", id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return decodeSession(payload)
}

// List returns the newest sessions first
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Header, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, video_id, duration_sec, interval_sec, sensitivity,
			shot_count, scene_count, prop_inferencer, created_at
		FROM sessions ORDER BY created_at DESC, id LIMIT $1
	`, clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	headers := []Header{}
	for rows.Next() {
		var h Header
		if err := rows.Scan(&h.ID, &h.Filename, &h.VideoID, &h.DurationSec, &h.IntervalSec, &h.Sensitivity,
			&h.ShotCount, &h.SceneCount, &h.PropInferencer, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		h.CreatedAt = h.CreatedAt.UTC()
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// SimilarScenes ranks stored scenes by L2 distance between dominant colors
func (s *PostgresStore) SimilarScenes(ctx context.Context, sessionID string, sceneID, limit int) ([]SimilarScene, error) {
	var ref pgvector.Vector
	err := s.pool.QueryRow(ctx,
		"SELECT dominant FROM scene_palettes WHERE session_id = $1 AND scene_id = $2",
		sessionID, sceneID).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scene %d of session %s: %w", sceneID, sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference scene: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.session_id, s.filename, p.scene_id, p.dominant, p.dominant_hue,
			p.dominant <-> $1 AS distance
		FROM scene_palettes p
		JOIN sessions s ON s.id = p.session_id
		WHERE NOT (p.session_id = $2 AND p.scene_id = $3)
		ORDER BY p.dominant <-> $1, p.session_id, p.scene_id
		LIMIT $4
	`, ref, sessionID, sceneID, clampLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to search similar scenes: %w", err)
	}
	defer rows.Close()

	results := []SimilarScene{}
	for rows.Next() {
		var sc SimilarScene
		var dominant pgvector.Vector
		if err := rows.Scan(&sc.SessionID, &sc.Filename, &sc.SceneID, &dominant, &sc.DominantHue, &sc.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan similar scene: %w", err)
		}
		for i, v := range dominant.Slice() {
			if i < 3 {
				sc.DominantRGB[i] = float64(v)
			}
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}
