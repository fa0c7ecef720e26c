package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/listenlab/internal/config"
	"github.com/snarg/listenlab/internal/database"
	"github.com/snarg/listenlab/internal/karaoke"
	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/source"
	"github.com/snarg/listenlab/internal/storage"
)

// Lessons is the lesson pipeline as seen by the HTTP layer.
type Lessons interface {
	Submit(req lesson.Request) (lesson.Lesson, error)
	Discard(ctx context.Context, id string) error
	Stats() lesson.QueueStats
}

// Archive is the read side of the lesson archive.
type Archive interface {
	ListLessons(ctx context.Context, f database.LessonFilter) ([]database.LessonRow, int, error)
	GetLesson(ctx context.Context, id string) (*database.LessonRow, error)
}

// LessonsOptions holds request defaults and limits.
type LessonsOptions struct {
	DefaultSpeed    float64
	DefaultLanguage string
	MaxUploadBytes  int64
	UploadDir       string
}

type LessonsHandler struct {
	registry *lesson.Registry
	lessons  Lessons
	events   *lesson.EventBus
	store    storage.AudioStore
	archive  Archive
	opts     LessonsOptions
	log      zerolog.Logger
}

// NewLessonsHandler creates the lesson handler. events and archive may be nil.
func NewLessonsHandler(registry *lesson.Registry, lessons Lessons, events *lesson.EventBus, store storage.AudioStore, archive Archive, opts LessonsOptions, log zerolog.Logger) *LessonsHandler {
	if opts.DefaultSpeed == 0 {
		opts.DefaultSpeed = 1
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	return &LessonsHandler{
		registry: registry,
		lessons:  lessons,
		events:   events,
		store:    store,
		archive:  archive,
		opts:     opts,
		log:      log.With().Str("handler", "lessons").Logger(),
	}
}

// lessonView is a lesson plus, once ready, its transcript.
type lessonView struct {
	lesson.Lesson
	Text   string          `json:"text,omitempty"`
	Tokens []karaoke.Token `json:"tokens,omitempty"`
}

func viewOf(l lesson.Lesson) lessonView {
	v := lessonView{Lesson: l}
	if l.Transcript != nil {
		v.Text = l.Transcript.Text()
		v.Tokens = l.Transcript.Tokens()
	}
	return v
}

// Create handles POST /lessons. JSON bodies carry a URL; multipart bodies
// carry an uploaded file. With ?wait=true the request blocks until the lesson
// is ready or failed and fetch failures map to 502/400.
func (h *LessonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req lesson.Request
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = h.parseUpload(w, r)
	} else {
		req, err = h.parseURLRequest(r)
	}
	if err != nil {
		writeLessonError(w, err)
		return
	}

	if req.Speed == 0 {
		req.Speed = h.opts.DefaultSpeed
	}
	if req.Language == "" {
		req.Language = h.opts.DefaultLanguage
	}
	if !(req.Speed >= config.MinSpeed && req.Speed <= config.MaxSpeed) {
		if req.File != "" {
			os.Remove(req.File)
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest,
			fmt.Sprintf("speed must be between %.2f and %.2f", config.MinSpeed, config.MaxSpeed))
		return
	}

	wait, _ := QueryBool(r, "wait")
	var updates <-chan lesson.Event
	if wait && h.events != nil {
		ch, cancel := h.events.Subscribe(lesson.Filter{Types: []string{lesson.EventLesson}})
		defer cancel()
		updates = ch
	}

	l, err := h.lessons.Submit(req)
	if err != nil {
		if req.File != "" {
			os.Remove(req.File)
		}
		writeLessonError(w, err)
		return
	}
	hlog.FromRequest(r).Info().Str("lesson_id", l.ID).Str("source", l.Source).Float64("speed", l.Speed).Msg("lesson submitted")

	w.Header().Set("Location", "/api/v1/lessons/"+l.ID)
	if updates == nil {
		WriteJSON(w, http.StatusAccepted, viewOf(l))
		return
	}

	l = h.waitTerminal(r.Context(), l.ID, updates)
	switch {
	case !l.Status.Terminal():
		WriteJSON(w, http.StatusAccepted, viewOf(l))
	case l.ErrorKind == "download":
		WriteErrorDetail(w, http.StatusBadGateway, ErrDownloadFailed, "audio download failed", l.Error)
	case l.ErrorKind == "unsupported_input":
		WriteErrorDetail(w, http.StatusBadRequest, ErrUnsupportedInput, "unsupported input", l.Error)
	default:
		// Recognition failures are reported through the lesson status.
		WriteJSON(w, http.StatusOK, viewOf(l))
	}
}

// waitTerminal blocks until the lesson is ready or failed, the lesson
// disappears, or ctx ends, and returns the latest snapshot.
func (h *LessonsHandler) waitTerminal(ctx context.Context, id string, updates <-chan lesson.Event) lesson.Lesson {
	for {
		l, err := h.registry.Get(id)
		if err != nil || l.Status.Terminal() {
			return l
		}
		select {
		case <-ctx.Done():
			return l
		case <-updates:
		}
	}
}

// List handles GET /lessons.
func (h *LessonsHandler) List(w http.ResponseWriter, r *http.Request) {
	status, _ := QueryString(r, "status")
	p := ParsePagination(r)

	all := h.registry.List()
	filtered := make([]lesson.Lesson, 0, len(all))
	for _, l := range all {
		if status == "" || string(l.Status) == status {
			filtered = append(filtered, l)
		}
	}

	total := len(filtered)
	start := min(p.Offset, total)
	end := min(start+p.Limit, total)
	WriteJSON(w, http.StatusOK, map[string]any{
		"lessons": filtered[start:end],
		"total":   total,
		"queue":   h.lessons.Stats(),
	})
}

// Get handles GET /lessons/{id}.
func (h *LessonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(l))
}

// Delete handles DELETE /lessons/{id}.
func (h *LessonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.lessons.Discard(r.Context(), id); err != nil {
		writeLessonError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audio handles GET /lessons/{id}/audio. Local files are served with range
// support so the player can seek; S3-only audio redirects to a presigned URL.
func (h *LessonsHandler) Audio(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if l.AudioKey == "" {
		WriteErrorWithCode(w, http.StatusConflict, ErrNotReady, "audio is not available yet (status "+string(l.Status)+")")
		return
	}

	contentType := l.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	if path := h.store.LocalPath(l.AudioKey); path != "" {
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
		return
	}
	if url, err := h.store.URL(r.Context(), l.AudioKey); err == nil && url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.store.Open(r.Context(), l.AudioKey)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("lesson_id", l.ID).Msg("audio open failed")
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "audio file not found")
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType)
	io.Copy(w, rc)
}

// Transcript handles GET /lessons/{id}/transcript.txt.
func (h *LessonsHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookupReady(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lesson.txt"`)
	io.WriteString(w, l.Transcript.Text())
}

type statesResponse struct {
	Now    float64              `json:"now"`
	States []karaoke.TokenState `json:"states"`
	Active []int                `json:"active"`
}

// States handles GET /lessons/{id}/states?t=<seconds>.
func (h *LessonsHandler) States(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookupReady(w, r)
	if !ok {
		return
	}
	now, ok := QueryFloat(r, "t")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "query parameter t (seconds) is required")
		return
	}

	states := l.Transcript.Classify(now)
	active := []int{}
	for i, s := range states {
		if s == karaoke.Active {
			active = append(active, i)
		}
	}
	WriteJSON(w, http.StatusOK, statesResponse{Now: now, States: states, Active: active})
}

// Seek handles GET /lessons/{id}/tokens/{index}/seek.
func (h *LessonsHandler) Seek(w http.ResponseWriter, r *http.Request) {
	l, ok := h.lookupReady(w, r)
	if !ok {
		return
	}
	index, err := PathInt(r, "index")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid token index")
		return
	}
	tok, ok := l.Transcript.At(index)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound,
			fmt.Sprintf("token %d out of range (%d tokens)", index, l.Transcript.Len()))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"index": index,
		"time":  karaoke.SeekTarget(tok),
		"token": tok,
	})
}

// ListArchive handles GET /archive.
func (h *LessonsHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	f := database.LessonFilter{Limit: p.Limit, Offset: p.Offset}
	f.Language, _ = QueryString(r, "language")
	f.Query, _ = QueryString(r, "q")

	rows, total, err := h.archive.ListLessons(r.Context(), f)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("archive list failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "archive query failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"lessons": rows, "total": total})
}

// GetArchive handles GET /archive/{id}.
func (h *LessonsHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	row, err := h.archive.GetLesson(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNoLesson) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "archived lesson not found")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("archive get failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "archive query failed")
		return
	}
	WriteJSON(w, http.StatusOK, row)
}

func (h *LessonsHandler) lookup(w http.ResponseWriter, r *http.Request) (lesson.Lesson, bool) {
	l, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeLessonError(w, err)
		return lesson.Lesson{}, false
	}
	return l, true
}

func (h *LessonsHandler) lookupReady(w http.ResponseWriter, r *http.Request) (lesson.Lesson, bool) {
	l, ok := h.lookup(w, r)
	if !ok {
		return l, false
	}
	if l.Status != lesson.StatusReady || l.Transcript == nil {
		WriteErrorWithCode(w, http.StatusConflict, ErrNotReady, "lesson is "+string(l.Status))
		return l, false
	}
	return l, true
}

// writeLessonError maps typed lesson and fetch errors to HTTP responses.
func writeLessonError(w http.ResponseWriter, err error) {
	var de *source.DownloadError
	var ue *source.UnsupportedInputError
	switch {
	case errors.Is(err, lesson.ErrNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "lesson not found")
	case errors.Is(err, lesson.ErrQueueFull):
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrQueueFull, "too many lessons in progress, try again later")
	case errors.Is(err, lesson.ErrStopped):
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrInternal, "server is shutting down")
	case errors.As(err, &de):
		WriteErrorDetail(w, http.StatusBadGateway, ErrDownloadFailed, "audio download failed", err.Error())
	case errors.As(err, &ue):
		WriteErrorDetail(w, http.StatusBadRequest, ErrUnsupportedInput, "unsupported input", ue.Reason)
	default:
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, err.Error())
	}
}

// Routes registers lesson routes on the given router.
func (h *LessonsHandler) Routes(r chi.Router) {
	r.Post("/lessons", h.Create)
	r.Get("/lessons", h.List)
	r.Get("/lessons/{id}", h.Get)
	r.Delete("/lessons/{id}", h.Delete)
	r.Get("/lessons/{id}/audio", h.Audio)
	r.Get("/lessons/{id}/transcript.txt", h.Transcript)
	r.Get("/lessons/{id}/states", h.States)
	r.Get("/lessons/{id}/tokens/{index}/seek", h.Seek)
	if h.archive != nil {
		r.Get("/archive", h.ListArchive)
		r.Get("/archive/{id}", h.GetArchive)
	}
}
