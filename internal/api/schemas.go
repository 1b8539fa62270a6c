package api

import (
	"github.com/kikiluvv/cutrhythm/internal/store"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Store   string `json:"store"`
}

type ContractResponse struct {
	Endpoint     string         `json:"endpoint"`
	Request      map[string]any `json:"request"`
	ResponseKeys []string       `json:"response_keys"`
}

// AnalyzeRequest is the JSON body of POST /api/analyze.
// Nil fields fall back to the server defaults.
type AnalyzeRequest struct {
	Path        string   `json:"path"`
	IntervalSec *float64 `json:"intervalSec,omitempty"`
	Sensitivity *float64 `json:"sensitivity,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type SessionListResponse struct {
	Sessions []store.Header `json:"sessions"`
}

type SimilarScenesResponse struct {
	SessionID string               `json:"sessionId"`
	SceneID   int                  `json:"sceneId"`
	Matches   []store.SimilarScene `json:"matches"`
}
