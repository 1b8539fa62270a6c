package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kikiluvv/cutrhythm/internal/export"
	"github.com/kikiluvv/cutrhythm/internal/pipeline"
	"github.com/kikiluvv/cutrhythm/internal/sampler"
	"github.com/kikiluvv/cutrhythm/internal/store"
	"github.com/kikiluvv/cutrhythm/pkg/util"
	"golang.org/x/sync/semaphore"
)

const defaultMaxUpload = 2 << 30

// Multipart fields accepted by POST /api/analyze
const (
	formVideo       = "video"
	formInterval    = "interval_sec"
	formSensitivity = "scene_sensitivity"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	logger := cfg.Logger.With().Str("component", "api").Logger()
	cfg.Logger = logger

	cache := newSessionCache(cfg.CacheSize, cfg.Store)
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	busy := semaphore.NewWeighted(maxConcurrent)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(cfg))
		r.Get("/contract", contractHandler(cfg))
		r.Post("/analyze", analyzeHandler(cfg, cache, busy))
		r.Get("/sessions", listSessionsHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cache))
		r.Get("/sessions/{id}/scenes.csv", csvHandler(cfg, cache, export.FormatScenesCSV))
		r.Get("/sessions/{id}/shots.csv", csvHandler(cfg, cache, export.FormatShotsCSV))
		r.Get("/sessions/{id}/scenes/{sceneId}/similar", similarScenesHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeName := cfg.StoreName
		if storeName == "" {
			storeName = "none"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Store:   storeName,
		})
	}
}

func contractHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, ContractResponse{
			Endpoint: "POST /api/analyze",
			Request: map[string]any{
				"application/json": map[string]string{
					"path":        "string, local video path",
					"intervalSec": fmt.Sprintf("float > 0, default %v", cfg.Defaults.IntervalSec),
					"sensitivity": fmt.Sprintf("float, recommended 0..10, default %v", cfg.Defaults.Sensitivity),
				},
				"multipart/form-data": map[string]string{
					formVideo:       "binary file",
					formInterval:    "float > 0",
					formSensitivity: "float, recommended 0..10",
				},
			},
			ResponseKeys: []string{"sessionId", "videoMeta", "config", "global", "scenes", "shots"},
		})
	}
}

func analyzeHandler(cfg ServerConfig, cache *sessionCache, busy *semaphore.Weighted) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Analyzer == nil {
			WriteError(w, http.StatusServiceUnavailable, "analysis is not available", "UNAVAILABLE")
			return
		}

		path, analysisCfg, cleanup, err := parseAnalyzeRequest(cfg, w, r)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
			return
		}

		if !busy.TryAcquire(1) {
			WriteError(w, http.StatusTooManyRequests, "an analysis is already running", "BUSY")
			return
		}
		defer busy.Release(1)

		session, err := cfg.Analyzer.Analyze(r.Context(), path, analysisCfg)
		if err != nil && session != nil {
			// The run completed; only persisting it failed
			cfg.Logger.Warn().Err(err).Str("session", session.ID).Msg("session not stored")
			err = nil
		}
		if err != nil {
			status, code := errorStatus(err)
			cfg.Logger.Error().Err(err).Str("path", path).Int("status", status).Msg("analysis failed")
			WriteError(w, status, err.Error(), code)
			return
		}

		cache.add(session)
		WriteJSON(w, http.StatusCreated, export.NewPayload(session))
	}
}

// parseAnalyzeRequest accepts either a JSON body naming a local path or a
// multipart upload. Uploaded files are written to a temporary directory that
// cleanup removes.
func parseAnalyzeRequest(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (string, pipeline.Config, func(), error) {
	analysisCfg := cfg.Defaults
	if analysisCfg.IntervalSec == 0 {
		analysisCfg = pipeline.DefaultConfig()
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req AnalyzeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			return "", analysisCfg, nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		if req.Path == "" {
			return "", analysisCfg, nil, fmt.Errorf("path is required")
		}
		if req.IntervalSec != nil {
			analysisCfg.IntervalSec = *req.IntervalSec
		}
		if req.Sensitivity != nil {
			analysisCfg.Sensitivity = *req.Sensitivity
		}
		return req.Path, analysisCfg, nil, nil
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", analysisCfg, nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	for field, dst := range map[string]*float64{
		formInterval:    &analysisCfg.IntervalSec,
		formSensitivity: &analysisCfg.Sensitivity,
	} {
		if v := r.FormValue(field); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return "", analysisCfg, nil, fmt.Errorf("%s must be a number", field)
			}
			*dst = f
		}
	}

	file, header, err := r.FormFile(formVideo)
	if err != nil {
		return "", analysisCfg, nil, fmt.Errorf("video file is required")
	}
	defer file.Close()
	if header.Filename == "" {
		return "", analysisCfg, nil, fmt.Errorf("missing video filename")
	}

	dir, err := os.MkdirTemp(cfg.UploadDir, "cutrhythm-upload-")
	if err != nil {
		return "", analysisCfg, nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	dst := filepath.Join(dir, util.SafeStem(header.Filename)+ext)

	out, err := os.Create(dst)
	if err != nil {
		return "", analysisCfg, cleanup, fmt.Errorf("failed to stage upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", analysisCfg, cleanup, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", analysisCfg, cleanup, fmt.Errorf("failed to stage upload: %w", err)
	}

	return dst, analysisCfg, cleanup, nil
}

// errorStatus maps analysis failures onto HTTP statuses
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, sampler.ErrSeek), errors.Is(err, sampler.ErrDecode):
		return http.StatusUnprocessableEntity, "UNREADABLE_VIDEO"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Store == nil {
			WriteJSON(w, http.StatusOK, SessionListResponse{Sessions: []store.Header{}})
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		headers, err := cfg.Store.List(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error().Err(err).Msg("failed to list sessions")
			WriteError(w, http.StatusInternalServerError, "failed to list sessions", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, SessionListResponse{Sessions: headers})
	}
}

func lookupSession(cache *sessionCache, w http.ResponseWriter, r *http.Request) *pipeline.Session {
	id := chi.URLParam(r, "id")
	session, err := cache.get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load session", "INTERNAL_ERROR")
		return nil
	}
	if session == nil {
		WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
		return nil
	}
	return session
}

func getSessionHandler(cache *sessionCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session := lookupSession(cache, w, r); session != nil {
			WriteJSON(w, http.StatusOK, export.NewPayload(session))
		}
	}
}

func csvHandler(cfg ServerConfig, cache *sessionCache, format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := lookupSession(cache, w, r)
		if session == nil {
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", export.FileName(session.Meta.Filename, format)))

		var err error
		if format == export.FormatShotsCSV {
			err = export.WriteShotsCSV(w, session)
		} else {
			err = export.WriteScenesCSV(w, session)
		}
		if err != nil {
			// headers are already sent
			cfg.Logger.Error().Err(err).Str("session", session.ID).Msg("failed to write csv")
		}
	}
}

func similarScenesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Store == nil {
			WriteError(w, http.StatusNotFound, "no session store configured", "NOT_FOUND")
			return
		}

		id := chi.URLParam(r, "id")
		sceneID, err := strconv.Atoi(chi.URLParam(r, "sceneId"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "sceneId must be an integer", "INVALID_REQUEST")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		matches, err := cfg.Store.SimilarScenes(r.Context(), id, sceneID, limit)
		if err != nil {
			status, code := errorStatus(err)
			WriteError(w, status, err.Error(), code)
			return
		}
		WriteJSON(w, http.StatusOK, SimilarScenesResponse{SessionID: id, SceneID: sceneID, Matches: matches})
	}
}
