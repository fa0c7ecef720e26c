package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/karaoke"
	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/storage"
)

// fakeLessons registers submissions without running a pipeline.
type fakeLessons struct {
	registry  *lesson.Registry
	err       error
	submitted []lesson.Request
	onSubmit  func(l lesson.Lesson)
}

func (f *fakeLessons) Submit(req lesson.Request) (lesson.Lesson, error) {
	if f.err != nil {
		return lesson.Lesson{}, f.err
	}
	f.submitted = append(f.submitted, req)
	l := f.registry.Create(req)
	if f.onSubmit != nil {
		go f.onSubmit(l)
	}
	return l, nil
}

func (f *fakeLessons) Discard(ctx context.Context, id string) error {
	return f.registry.Delete(ctx, id)
}

func (f *fakeLessons) Stats() lesson.QueueStats { return lesson.QueueStats{} }

type lessonsFixture struct {
	router   chi.Router
	registry *lesson.Registry
	lessons  *fakeLessons
	events   *lesson.EventBus
	store    *storage.LocalStore
}

func newLessonsFixture(t *testing.T) *lessonsFixture {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	registry := lesson.NewRegistry(0, store, zerolog.Nop())
	lessons := &fakeLessons{registry: registry}
	events := lesson.NewEventBus(16)
	h := NewLessonsHandler(registry, lessons, events, store, nil, LessonsOptions{
		DefaultSpeed:    0.85,
		DefaultLanguage: "en",
		MaxUploadBytes:  1 << 20,
		UploadDir:       t.TempDir(),
	}, zerolog.Nop())

	r := chi.NewRouter()
	h.Routes(r)
	return &lessonsFixture{router: r, registry: registry, lessons: lessons, events: events, store: store}
}

// readyLesson registers a ready lesson with two tokens and stored audio.
func (fx *lessonsFixture) readyLesson(t *testing.T) lesson.Lesson {
	t.Helper()
	l := fx.registry.Create(lesson.Request{URL: "https://www.youtube.com/watch?v=abcdefghijk", Speed: 1, Language: "en"})
	key := storage.LessonKey(l.ID)
	if err := fx.store.Save(context.Background(), key, strings.NewReader("ID3fakeaudio"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}
	l, err := fx.registry.Update(l.ID, func(l *lesson.Lesson) {
		l.Status = lesson.StatusReady
		l.AudioKey = key
		l.ContentType = "audio/mpeg"
		l.Transcript = karaoke.NewTranscript([]karaoke.Token{
			{Text: "Hello", Start: 0, End: 0.5},
			{Text: "world", Start: 0.6, End: 1.0},
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func (fx *lessonsFixture) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestCreateLessonFromURL(t *testing.T) {
	fx := newLessonsFixture(t)
	rec := fx.do("POST", "/lessons", strings.NewReader(`{"url":"https://youtu.be/abcdefghijk"}`), "application/json")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "/api/v1/lessons/") {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if len(fx.lessons.submitted) != 1 {
		t.Fatalf("submitted %d lessons, want 1", len(fx.lessons.submitted))
	}
	req := fx.lessons.submitted[0]
	if req.URL != "https://www.youtube.com/watch?v=abcdefghijk" {
		t.Errorf("URL = %q, want normalized watch URL", req.URL)
	}
	if req.Speed != 0.85 || req.Language != "en" {
		t.Errorf("defaults not applied: speed=%v language=%q", req.Speed, req.Language)
	}
}

func TestCreateLessonRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unsupported_host", `{"url":"https://vimeo.com/12345"}`, ErrUnsupportedInput},
		{"empty_url", `{"url":""}`, ErrUnsupportedInput},
		{"malformed_json", `{"url":`, ErrUnsupportedInput},
		{"speed_too_high", `{"url":"abcdefghijk","speed":3}`, ErrBadRequest},
		{"speed_too_low", `{"url":"abcdefghijk","speed":0.1}`, ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newLessonsFixture(t)
			rec := fx.do("POST", "/lessons", strings.NewReader(tt.body), "application/json")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if body := decodeError(t, rec); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if len(fx.lessons.submitted) != 0 {
				t.Error("nothing should be submitted")
			}
		})
	}
}

func TestCreateLessonQueueFull(t *testing.T) {
	fx := newLessonsFixture(t)
	fx.lessons.err = lesson.ErrQueueFull
	rec := fx.do("POST", "/lessons", strings.NewReader(`{"url":"abcdefghijk"}`), "application/json")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCreateLessonWhileStopping(t *testing.T) {
	fx := newLessonsFixture(t)
	fx.lessons.err = lesson.ErrStopped
	rec := fx.do("POST", "/lessons", strings.NewReader(`{"url":"abcdefghijk"}`), "application/json")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestCreateLessonFromUpload(t *testing.T) {
	fx := newLessonsFixture(t)
	body, ct := multipartBody(t, "talk.mp3", "ID3data", map[string]string{"speed": "1.25", "language": "de"})
	rec := fx.do("POST", "/lessons", body, ct)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	req := fx.lessons.submitted[0]
	if req.Name != "talk.mp3" || req.Speed != 1.25 || req.Language != "de" {
		t.Errorf("request = %+v", req)
	}
	data, err := os.ReadFile(req.File)
	if err != nil {
		t.Fatalf("upload file missing: %v", err)
	}
	if string(data) != "ID3data" {
		t.Errorf("upload content = %q", data)
	}
}

func TestCreateLessonRejectsUnsupportedUpload(t *testing.T) {
	fx := newLessonsFixture(t)
	body, ct := multipartBody(t, "notes.txt", "hello", nil)
	rec := fx.do("POST", "/lessons", body, ct)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != ErrUnsupportedInput {
		t.Errorf("code = %q", got.Code)
	}
}

func TestCreateLessonRejectsNonFiniteUploadSpeed(t *testing.T) {
	for _, speed := range []string{"NaN", "nan", "Inf", "-Inf"} {
		t.Run(speed, func(t *testing.T) {
			fx := newLessonsFixture(t)
			body, ct := multipartBody(t, "clip.mp3", "ID3data", map[string]string{"speed": speed})
			rec := fx.do("POST", "/lessons", body, ct)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != ErrUnsupportedInput {
				t.Errorf("code = %q", got.Code)
			}
			if len(fx.lessons.submitted) != 0 {
				t.Errorf("submitted %d lessons, want none", len(fx.lessons.submitted))
			}

			list := fx.do("GET", "/lessons", nil, "")
			if list.Code != http.StatusOK || !json.Valid(list.Body.Bytes()) {
				t.Errorf("list: status=%d body=%q", list.Code, list.Body.String())
			}
		})
	}
}

func TestCreateLessonWaitMapsDownloadFailure(t *testing.T) {
	fx := newLessonsFixture(t)
	fx.lessons.onSubmit = func(l lesson.Lesson) {
		time.Sleep(10 * time.Millisecond)
		failed, _ := fx.registry.Update(l.ID, func(l *lesson.Lesson) {
			l.Status = lesson.StatusFailed
			l.ErrorKind = "download"
			l.Error = "download https://www.youtube.com/watch?v=abcdefghijk: HTTP 403"
		})
		fx.events.Publish(lesson.EventLesson, l.ID, failed)
	}

	rec := fx.do("POST", "/lessons?wait=true", strings.NewReader(`{"url":"abcdefghijk"}`), "application/json")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (%s)", rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec); got.Code != ErrDownloadFailed || !strings.Contains(got.Detail, "403") {
		t.Errorf("body = %+v", got)
	}
}

func TestGetLesson(t *testing.T) {
	fx := newLessonsFixture(t)
	l := fx.readyLesson(t)

	rec := fx.do("GET", "/lessons/"+l.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		ID     string          `json:"id"`
		Status string          `json:"status"`
		Text   string          `json:"text"`
		Tokens []karaoke.Token `json:"tokens"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "ready" || body.Text != "Hello world" || len(body.Tokens) != 2 {
		t.Errorf("body = %+v", body)
	}

	if rec := fx.do("GET", "/lessons/nope", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing lesson status = %d, want 404", rec.Code)
	}
}

func TestListLessons(t *testing.T) {
	fx := newLessonsFixture(t)
	fx.readyLesson(t)
	fx.registry.Create(lesson.Request{URL: "pending"})

	rec := fx.do("GET", "/lessons?status=ready", nil, "")
	var body struct {
		Lessons []lesson.Lesson `json:"lessons"`
		Total   int             `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Lessons) != 1 || body.Lessons[0].Status != lesson.StatusReady {
		t.Errorf("body = %+v", body)
	}
}

func TestLessonStates(t *testing.T) {
	fx := newLessonsFixture(t)
	l := fx.readyLesson(t)

	tests := []struct {
		t      string
		states []string
		active []int
	}{
		{"0.3", []string{"active", "upcoming"}, []int{0}},
		{"0.55", []string{"past", "upcoming"}, []int{}},
		{"1.0", []string{"past", "active"}, []int{1}},
		{"5", []string{"past", "past"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.t, func(t *testing.T) {
			rec := fx.do("GET", "/lessons/"+l.ID+"/states?t="+tt.t, nil, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				States []string `json:"states"`
				Active []int    `json:"active"`
			}
			json.Unmarshal(rec.Body.Bytes(), &body)
			if strings.Join(body.States, ",") != strings.Join(tt.states, ",") {
				t.Errorf("states = %v, want %v", body.States, tt.states)
			}
			if len(body.Active) != len(tt.active) {
				t.Errorf("active = %v, want %v", body.Active, tt.active)
			}
		})
	}

	if rec := fx.do("GET", "/lessons/"+l.ID+"/states", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing t status = %d, want 400", rec.Code)
	}
}

func TestLessonNotReady(t *testing.T) {
	fx := newLessonsFixture(t)
	l := fx.registry.Create(lesson.Request{URL: "x"})

	for _, path := range []string{"/states?t=1", "/tokens/0/seek", "/transcript.txt", "/audio"} {
		rec := fx.do("GET", "/lessons/"+l.ID+path, nil, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("%s status = %d, want 409", path, rec.Code)
		}
	}
}

func TestLessonSeek(t *testing.T) {
	fx := newLessonsFixture(t)
	l := fx.readyLesson(t)

	rec := fx.do("GET", "/lessons/"+l.ID+"/tokens/1/seek", nil, "")
	var body struct {
		Index int     `json:"index"`
		Time  float64 `json:"time"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusOK || body.Index != 1 || body.Time != 0.6 {
		t.Errorf("status = %d body = %+v, want time 0.6", rec.Code, body)
	}

	if rec := fx.do("GET", "/lessons/"+l.ID+"/tokens/7/seek", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("out of range status = %d, want 404", rec.Code)
	}
	if rec := fx.do("GET", "/lessons/"+l.ID+"/tokens/x/seek", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad index status = %d, want 400", rec.Code)
	}
}

func TestLessonTranscriptAndAudio(t *testing.T) {
	fx := newLessonsFixture(t)
	l := fx.readyLesson(t)

	rec := fx.do("GET", "/lessons/"+l.ID+"/transcript.txt", nil, "")
	if rec.Body.String() != "Hello world" {
		t.Errorf("transcript = %q", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "lesson.txt") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}

	rec = fx.do("GET", "/lessons/"+l.ID+"/audio", nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ID3fakeaudio" {
		t.Errorf("audio status = %d body = %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("audio Content-Type = %q", ct)
	}
}

func TestDeleteLesson(t *testing.T) {
	fx := newLessonsFixture(t)
	l := fx.readyLesson(t)

	if rec := fx.do("DELETE", "/lessons/"+l.ID, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if fx.store.Exists(context.Background(), l.AudioKey) {
		t.Error("audio should be deleted")
	}
	if rec := fx.do("DELETE", "/lessons/"+l.ID, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}
