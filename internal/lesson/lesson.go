package lesson

import (
	"errors"
	"time"

	"github.com/snarg/listenlab/internal/karaoke"
)

// ErrNotFound is returned for unknown or evicted lesson IDs.
var ErrNotFound = errors.New("lesson not found")

// ErrQueueFull is returned by Submit when no worker slot is free.
var ErrQueueFull = errors.New("lesson queue is full")

// ErrStopped is returned by Submit once the pipeline is shutting down.
var ErrStopped = errors.New("lesson pipeline stopped")

// Status is the lifecycle stage of a lesson.
type Status string

const (
	StatusPending      Status = "pending"
	StatusFetching     Status = "fetching"
	StatusTranscribing Status = "transcribing"
	StatusReady        Status = "ready"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no worker will touch the lesson again.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Lesson is one listening session: a fetched audio file and, once ready, its
// timed transcript. Values handed out by the Registry are snapshots; the
// Transcript pointer is shared but never mutated.
type Lesson struct {
	ID          string  `json:"id"`
	Status      Status  `json:"status"`
	Source      string  `json:"source"`
	Title       string  `json:"title,omitempty"`
	Speed       float64 `json:"speed"`
	Language    string  `json:"language"`
	AudioKey    string  `json:"-"`
	ContentType string  `json:"-"`
	Duration    float64 `json:"duration,omitempty"`
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	WordCount   int     `json:"word_count"`
	IssueCount  int     `json:"issue_count,omitempty"`
	Error       string  `json:"error,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`

	Transcript *karaoke.Transcript `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request asks for a new lesson. Exactly one of URL or File is set.
type Request struct {
	URL      string
	File     string // local path, removed by the pipeline once consumed
	Name     string // display name for uploads
	Speed    float64
	Language string

	// KeepFile leaves File in place when shutdown interrupts the lesson, so
	// its owner can submit it again after a restart.
	KeepFile bool
}

func (r Request) source() string {
	switch {
	case r.URL != "":
		return r.URL
	case r.Name != "":
		return r.Name
	default:
		return r.File
	}
}
