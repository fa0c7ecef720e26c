package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/listenlab/internal/lesson"
)

// Pinger is a dependency that can report its own health.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnStatus reports whether a long-lived connection is up.
type ConnStatus interface {
	IsConnected() bool
}

// WatcherStatus reports the state of the watch-folder ingest.
type WatcherStatus interface {
	Status() string
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	STTProvider   string            `json:"stt_provider"`
	Queue         lesson.QueueStats `json:"queue"`
}

// HealthDeps are the optional dependencies the health check reports on.
// Nil fields report "not_configured".
type HealthDeps struct {
	DB       Pinger
	MQTT     ConnStatus
	Watcher  WatcherStatus
	Lessons  Lessons
	FFmpeg   func() bool
	Provider string
}

type HealthHandler struct {
	deps      HealthDeps
	version   string
	startTime time.Time
}

func NewHealthHandler(deps HealthDeps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{deps: deps, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK
	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// The archive is optional; losing it degrades but does not stop lessons.
	if h.deps.DB != nil {
		if err := h.deps.DB.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			degrade()
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	if h.deps.MQTT != nil {
		if h.deps.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.deps.Watcher != nil {
		checks["file_watcher"] = h.deps.Watcher.Status()
	} else {
		checks["file_watcher"] = "not_configured"
	}

	if h.deps.FFmpeg != nil {
		if h.deps.FFmpeg() {
			checks["ffmpeg"] = "ok"
		} else {
			checks["ffmpeg"] = "missing"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		STTProvider:   h.deps.Provider,
	}
	if h.deps.Lessons != nil {
		resp.Queue = h.deps.Lessons.Stats()
	}

	WriteJSON(w, httpStatus, resp)
}
