package api

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snarg/listenlab/internal/audio"
	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/source"
)

// createLessonRequest is the JSON body of POST /lessons.
type createLessonRequest struct {
	URL      string  `json:"url"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
}

// parseUpload reads a multipart lesson upload ("file", "speed", "language")
// into a temp file. The returned request owns that file.
func (h *LessonsHandler) parseUpload(w http.ResponseWriter, r *http.Request) (lesson.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return lesson.Request{}, &source.UnsupportedInputError{Reason: "invalid multipart form: " + err.Error()}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return lesson.Request{}, &source.UnsupportedInputError{Reason: "missing form file \"file\""}
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !audio.Supported(name) {
		return lesson.Request{}, &source.UnsupportedInputError{
			Input:  name,
			Reason: "accepted formats: " + strings.Join(audio.Extensions(), " "),
		}
	}

	speed := 0.0
	if v := r.FormValue("speed"); v != "" {
		speed, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(speed) || math.IsInf(speed, 0) {
			return lesson.Request{}, &source.UnsupportedInputError{Input: v, Reason: "speed must be a finite number"}
		}
	}

	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		return lesson.Request{}, fmt.Errorf("mkdir upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(h.opts.UploadDir, "upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return lesson.Request{}, fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return lesson.Request{}, fmt.Errorf("write upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return lesson.Request{}, fmt.Errorf("close upload file: %w", err)
	}

	return lesson.Request{
		File:     tmp.Name(),
		Name:     name,
		Speed:    speed,
		Language: r.FormValue("language"),
	}, nil
}

// parseURLRequest decodes the JSON body and normalizes the URL up front so a
// bad link fails the request instead of the lesson.
func (h *LessonsHandler) parseURLRequest(r *http.Request) (lesson.Request, error) {
	var body createLessonRequest
	if err := DecodeJSON(r, &body); err != nil {
		return lesson.Request{}, &source.UnsupportedInputError{Reason: "invalid JSON body: " + err.Error()}
	}
	videoURL, err := source.NormalizeURL(body.URL)
	if err != nil {
		return lesson.Request{}, err
	}
	return lesson.Request{
		URL:      videoURL,
		Speed:    body.Speed,
		Language: body.Language,
	}, nil
}
