package lesson

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/audio"
	"github.com/snarg/listenlab/internal/metrics"
	"github.com/snarg/listenlab/internal/source"
	"github.com/snarg/listenlab/internal/storage"
	"github.com/snarg/listenlab/internal/transcribe"
)

// Recognizer turns a local audio file into a transcript.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, language string) (*transcribe.Result, error)
}

// ArchiveFunc persists a ready lesson. Archive failures are logged only.
type ArchiveFunc func(ctx context.Context, l Lesson) error

// Event types published on the bus.
const (
	EventLesson  = "lesson"
	EventDeleted = "lesson_deleted"
)

// QueueStats reports the current state of the lesson queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// PipelineOptions configures the lesson worker pool.
type PipelineOptions struct {
	Registry   *Registry
	Source     source.Provider
	Recognizer Recognizer
	Store      storage.AudioStore
	Events     *EventBus // may be nil
	Archive    ArchiveFunc
	Workers    int
	QueueSize  int
	Timeout    time.Duration // per lesson, covers fetch and recognition
	Log        zerolog.Logger
}

type job struct {
	lessonID string
	req      Request
	queued   chan struct{} // closed once the pending event is published
}

// Pipeline runs fetch then recognition for submitted lessons on a fixed
// pool of workers.
type Pipeline struct {
	jobs   chan job
	opts   PipelineOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// submitMu orders Submit against Stop closing the jobs channel.
	submitMu sync.RWMutex
	stopped  bool

	mu      sync.Mutex
	running map[string]context.CancelFunc

	completed atomic.Int64
	failed    atomic.Int64
}

// NewPipeline creates a lesson pipeline. Call Start before Submit.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		jobs:    make(chan job, opts.QueueSize),
		opts:    opts,
		log:     opts.Log.With().Str("component", "lesson").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]context.CancelFunc),
	}
}

// Start launches the worker goroutines.
func (p *Pipeline) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.opts.Workers).Int("queue_size", p.opts.QueueSize).Msg("lesson pipeline started")
}

// Stop cancels in-flight lessons and waits for the workers to exit.
// Queued lessons are marked failed. Submit returns ErrStopped afterwards.
func (p *Pipeline) Stop() {
	p.submitMu.Lock()
	if p.stopped {
		p.submitMu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.jobs)
	p.submitMu.Unlock()

	p.wg.Wait()
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("lesson pipeline stopped")
}

// Submit registers a pending lesson and queues it. When the queue is full the
// lesson is discarded and ErrQueueFull is returned.
func (p *Pipeline) Submit(req Request) (Lesson, error) {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if p.stopped {
		return Lesson{}, ErrStopped
	}

	l := p.opts.Registry.Create(req)
	j := job{lessonID: l.ID, req: req, queued: make(chan struct{})}
	select {
	case p.jobs <- j:
		// The worker waits on queued, so pending is always the first event.
		p.publish(l)
		close(j.queued)
		return l, nil
	default:
		p.opts.Registry.Delete(context.Background(), l.ID)
		return Lesson{}, ErrQueueFull
	}
}

// Discard cancels any in-flight work for the lesson and removes it.
func (p *Pipeline) Discard(ctx context.Context, id string) error {
	p.mu.Lock()
	if cancel, ok := p.running[id]; ok {
		cancel()
	}
	p.mu.Unlock()

	if err := p.opts.Registry.Delete(ctx, id); err != nil {
		return err
	}
	if p.opts.Events != nil {
		p.opts.Events.Publish(EventDeleted, id, map[string]string{"id": id})
	}
	return nil
}

// Stats returns current queue statistics.
func (p *Pipeline) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// QueuePending returns the number of lessons waiting for a worker.
func (p *Pipeline) QueuePending() int { return len(p.jobs) }

// Workers returns the number of worker goroutines.
func (p *Pipeline) Workers() int { return p.opts.Workers }

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for j := range p.jobs {
		<-j.queued
		err := p.process(log, j)
		if j.req.File != "" && !(err != nil && j.req.KeepFile && p.ctx.Err() != nil) {
			os.Remove(j.req.File)
		}
		switch {
		case errors.Is(err, ErrNotFound):
			log.Debug().Str("lesson_id", j.lessonID).Msg("lesson discarded while processing")
		case err != nil:
			p.failed.Add(1)
			p.fail(log, j.lessonID, err)
		default:
			p.completed.Add(1)
		}
	}
}

func (p *Pipeline) process(log zerolog.Logger, j job) error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("pipeline stopped: %w", err)
	}

	ctx := p.ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.running[j.lessonID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, j.lessonID)
		p.mu.Unlock()
	}()

	// 1. Fetch and convert
	if err := p.setStatus(j.lessonID, StatusFetching); err != nil {
		return err
	}
	start := time.Now()
	fetched, err := p.opts.Source.Fetch(ctx, source.Request{
		URL:   j.req.URL,
		File:  j.req.File,
		Speed: j.req.Speed,
		Name:  j.lessonID,
	})
	if err != nil {
		return err
	}
	defer os.Remove(fetched.Path)
	metrics.StageDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())

	// 2. Store the served copy
	key := storage.LessonKey(j.lessonID)
	if err := p.saveAudio(ctx, key, fetched); err != nil {
		return fmt.Errorf("store audio: %w", err)
	}
	var duration float64
	if d, err := audio.Duration(fetched.Path); err != nil {
		log.Debug().Err(err).Str("lesson_id", j.lessonID).Msg("duration probe failed")
	} else {
		duration = d.Seconds()
	}

	l, err := p.opts.Registry.Update(j.lessonID, func(l *Lesson) {
		l.Status = StatusTranscribing
		l.AudioKey = key
		l.ContentType = fetched.ContentType
		l.Duration = duration
		if fetched.Title != "" {
			l.Title = fetched.Title
		}
	})
	if err != nil {
		p.opts.Store.Delete(context.Background(), key)
		return err
	}
	p.publish(l)

	// 3. Recognize
	start = time.Now()
	res, err := p.opts.Recognizer.Transcribe(ctx, fetched.Path, j.req.Language)
	if err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	metrics.TranscriptWords.Observe(float64(res.Transcript.Len()))
	metrics.MalformedTokensTotal.Add(float64(len(res.Issues)))

	l, err = p.opts.Registry.Update(j.lessonID, func(l *Lesson) {
		l.Status = StatusReady
		l.Transcript = res.Transcript
		l.Language = res.Language
		l.Provider = res.Provider
		l.Model = res.Model
		l.WordCount = res.Transcript.Len()
		l.IssueCount = len(res.Issues)
		if l.Duration == 0 {
			l.Duration = res.Duration
		}
	})
	if err != nil {
		return err
	}
	metrics.LessonsTotal.WithLabelValues(string(StatusReady)).Inc()
	p.publish(l)

	// 4. Archive
	if p.opts.Archive != nil {
		actx, acancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.opts.Archive(actx, l); err != nil {
			log.Warn().Err(err).Str("lesson_id", l.ID).Msg("lesson archive failed")
		}
		acancel()
	}

	log.Info().
		Str("lesson_id", l.ID).
		Str("source", l.Source).
		Int("words", l.WordCount).
		Int("issues", l.IssueCount).
		Dur("recognition", res.Elapsed).
		Msg("lesson ready")
	return nil
}

func (p *Pipeline) saveAudio(ctx context.Context, key string, fetched *source.Result) error {
	f, err := os.Open(fetched.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.opts.Store.Save(ctx, key, f, fetched.ContentType)
}

func (p *Pipeline) setStatus(id string, s Status) error {
	l, err := p.opts.Registry.Update(id, func(l *Lesson) { l.Status = s })
	if err != nil {
		return err
	}
	p.publish(l)
	return nil
}

// fail records err on the lesson and drops any stored audio.
func (p *Pipeline) fail(log zerolog.Logger, id string, err error) {
	kind := ErrorKind(err)
	l, uerr := p.opts.Registry.Update(id, func(l *Lesson) {
		l.Status = StatusFailed
		l.Error = err.Error()
		l.ErrorKind = kind
	})
	if uerr != nil {
		return
	}
	if l.AudioKey != "" {
		if derr := p.opts.Store.Delete(context.Background(), l.AudioKey); derr != nil {
			log.Warn().Err(derr).Str("lesson_id", id).Msg("failed to delete audio of failed lesson")
		}
	}
	metrics.LessonsTotal.WithLabelValues(string(StatusFailed)).Inc()
	metrics.LessonFailuresTotal.WithLabelValues(kind).Inc()
	log.Warn().Err(err).Str("lesson_id", id).Str("kind", kind).Msg("lesson failed")
	p.publish(l)
}

func (p *Pipeline) publish(l Lesson) {
	if p.opts.Events == nil {
		return
	}
	p.opts.Events.Publish(EventLesson, l.ID, l)
}

// ErrorKind classifies a pipeline error for clients and metrics.
func ErrorKind(err error) string {
	var de *source.DownloadError
	var ue *source.UnsupportedInputError
	var re *transcribe.RecognitionError
	switch {
	case errors.As(err, &de):
		return "download"
	case errors.As(err, &ue):
		return "unsupported_input"
	case errors.As(err, &re):
		return "recognition"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
