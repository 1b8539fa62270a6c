package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/store"
	"github.com/rs/zerolog"
)

// Version is reported by /api/health
const Version = "0.1.0"

// Analyzer runs a complete analysis of a local video file
type Analyzer interface {
	Analyze(ctx context.Context, path string, cfg pipeline.Config) (*pipeline.Session, error)
}

// SessionStore is the read side of the session store used by the API
type SessionStore interface {
	Get(ctx context.Context, id string) (*pipeline.Session, error)
	List(ctx context.Context, limit int) ([]store.Header, error)
	SimilarScenes(ctx context.Context, sessionID string, sceneID, limit int) ([]store.SimilarScene, error)
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

type ServerConfig struct {
	Addr      string
	Analyzer  Analyzer
	Store     SessionStore
	StoreName string
	Defaults  pipeline.Config
	// CacheSize bounds the in-memory session cache
	CacheSize int
	// MaxUploadBytes caps multipart uploads; zero means 2 GiB
	MaxUploadBytes int64
	// MaxConcurrent bounds simultaneous analyses; zero means 1
	MaxConcurrent int
	// UploadDir receives uploaded videos while they are analyzed
	UploadDir string
	Logger    zerolog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Minute,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger.With().Str("component", "api").Logger(),
	}
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
