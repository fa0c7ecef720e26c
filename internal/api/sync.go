package api

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/listenlab/internal/karaoke"
	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/metrics"
)

const (
	syncReadLimit  = 1024
	syncPongWait   = 60 * time.Second
	syncPingPeriod = 25 * time.Second
	syncWriteWait  = 5 * time.Second
)

// syncMessage is what the page sends: a playback time update, a token click,
// or a reset after the page reloads its transcript.
type syncMessage struct {
	Type  string  `json:"type"`
	Now   float64 `json:"now"`
	Index int     `json:"index"`
}

type transcriptFrame struct {
	Type     string          `json:"type"`
	LessonID string          `json:"lesson_id"`
	Text     string          `json:"text"`
	Tokens   []karaoke.Token `json:"tokens"`
}

type statesFrame struct {
	Type string `json:"type"`
	karaoke.Frame
}

type seekFrame struct {
	Type  string  `json:"type"`
	Index int     `json:"index"`
	Time  float64 `json:"time"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// SyncHandler binds a browser audio element to a transcript over a
// websocket. Each connection owns one karaoke.Tracker and handles its
// messages in order.
type SyncHandler struct {
	registry *lesson.Registry
	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewSyncHandler(registry *lesson.Registry, origins []string) *SyncHandler {
	return &SyncHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originAllowed(origins),
		},
	}
}

// SessionCount returns the number of open sync connections.
func (h *SyncHandler) SessionCount() int {
	return int(h.sessions.Load())
}

// Sync handles GET /lessons/{id}/sync.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	l, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLessonError(w, err)
		return
	}
	if l.Status != lesson.StatusReady || l.Transcript == nil {
		WriteErrorWithCode(w, http.StatusConflict, ErrNotReady, "lesson is "+string(l.Status))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	h.sessions.Add(1)
	defer h.sessions.Add(-1)

	log := hlog.FromRequest(r).With().Str("lesson_id", l.ID).Logger()
	log.Info().Msg("sync session opened")
	defer log.Info().Msg("sync session closed")

	conn.SetReadLimit(syncReadLimit)
	conn.SetReadDeadline(time.Now().Add(syncPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(syncPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(syncPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(syncWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	write := func(v any) bool {
		conn.SetWriteDeadline(time.Now().Add(syncWriteWait))
		if err := conn.WriteJSON(v); err != nil {
			log.Debug().Err(err).Msg("sync write failed")
			return false
		}
		return true
	}

	if !write(transcriptFrame{
		Type:     "transcript",
		LessonID: l.ID,
		Text:     l.Transcript.Text(),
		Tokens:   l.Transcript.Tokens(),
	}) {
		return
	}

	tracker := karaoke.NewTracker(l.Transcript)
	for {
		var msg syncMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Msg("sync read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(syncPongWait))
		metrics.SyncMessagesTotal.WithLabelValues(msg.Type).Inc()

		if reply := handleSyncMessage(tracker, msg); reply != nil {
			if !write(reply) {
				return
			}
		}
	}
}

// handleSyncMessage applies one client message to the tracker and returns the
// frame to send back, or nil when nothing changed.
func handleSyncMessage(tracker *karaoke.Tracker, msg syncMessage) any {
	switch msg.Type {
	case "time":
		if math.IsNaN(msg.Now) || math.IsInf(msg.Now, 0) {
			return errorFrame{Type: "error", Error: "now must be a finite number"}
		}
		f := tracker.Update(msg.Now)
		if len(f.Changes) == 0 && f.ScrollTo < 0 {
			return nil
		}
		if f.Active == nil {
			f.Active = []int{}
		}
		return statesFrame{Type: "states", Frame: f}
	case "click":
		t, err := tracker.Click(msg.Index)
		if err != nil {
			return errorFrame{Type: "error", Error: err.Error()}
		}
		return seekFrame{Type: "seek", Index: msg.Index, Time: t}
	case "reset":
		tracker.Reset()
		return nil
	default:
		return errorFrame{Type: "error", Error: "unknown message type " + msg.Type}
	}
}

// Routes registers the sync route on the given router.
func (h *SyncHandler) Routes(r chi.Router) {
	r.Get("/lessons/{id}/sync", h.Sync)
}
