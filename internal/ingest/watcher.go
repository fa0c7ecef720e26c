package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/listenlab/internal/audio"
	"github.com/snarg/listenlab/internal/lesson"
)

// claimPrefix marks a dropped file that has been handed to the pipeline. The
// pipeline removes the file once the lesson is processed; a claimed file that
// survives a restart is resubmitted by the backfill scan.
const claimPrefix = ".claimed-"

type WatcherOptions struct {
	Dir        string
	Defaults   Defaults
	Submitter  Submitter
	Debounce   time.Duration // default 500ms
	RetryDelay time.Duration // wait before resubmitting after ErrQueueFull, default 30s
	Log        zerolog.Logger
}

// FileWatcher turns audio files dropped into a directory into lessons. It is
// an alternative to the upload endpoint for batch or scripted use.
type FileWatcher struct {
	opts WatcherOptions
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesSubmitted atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

func NewFileWatcher(opts WatcherOptions) *FileWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	fw := &FileWatcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start creates the watch directory if needed, watches it and every
// subdirectory, and submits files that were already present.
func (fw *FileWatcher) Start() error {
	if err := os.MkdirAll(fw.opts.Dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(fw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.opts.Dir && isHidden(path) {
			return filepath.SkipDir
		}
		if addErr := w.Add(path); addErr != nil {
			fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
		} else {
			dirCount++
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.opts.Dir).
		Msg("file watcher initialized")

	fw.ctx, fw.cancel = context.WithCancel(context.Background())

	fw.wg.Add(2)
	go fw.watchLoop()
	go fw.backfill()
	return nil
}

// Stop closes the fsnotify watcher and cancels pending submissions.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.wg.Wait()

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.log.Info().
		Int64("files_submitted", fw.filesSubmitted.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher state for the health endpoint.
func (fw *FileWatcher) Status() string {
	s, _ := fw.status.Load().(string)
	return s
}

func (fw *FileWatcher) FilesSubmitted() int64 { return fw.filesSubmitted.Load() }

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if isHidden(event.Name) {
				continue
			}

			// New directory: watch it so files dropped inside are seen.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !audio.Supported(event.Name) {
				fw.filesSkipped.Add(1)
				fw.log.Debug().Str("path", event.Name).Msg("ignoring unsupported file")
				continue
			}

			fw.schedule(event.Name, fw.opts.Debounce)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule debounces processing of path. Each new event on the same path
// pushes the deadline back, so the file is read only after writes settle.
func (fw *FileWatcher) schedule(path string, delay time.Duration) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(delay)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(delay, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		if fw.ctx.Err() != nil {
			return
		}
		fw.processFile(path)
	})
}

// processFile claims a dropped file by renaming it, then submits the claimed
// path. Already-claimed paths are submitted as they are.
func (fw *FileWatcher) processFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Already claimed or removed between the event and now.
		return
	}
	if info.IsDir() {
		return
	}
	if info.Size() == 0 {
		fw.filesSkipped.Add(1)
		fw.log.Warn().Str("path", path).Msg("skipping empty file")
		return
	}

	claimed := claimPath(path)
	if claimed != path {
		if err := os.Rename(path, claimed); err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("failed to claim file")
			return
		}
	}
	fw.submit(claimed)
}

func (fw *FileWatcher) submit(claimed string) {
	name := strings.TrimPrefix(filepath.Base(claimed), claimPrefix)
	req := lesson.Request{File: claimed, Name: name, KeepFile: true}
	if err := fw.opts.Defaults.apply(&req); err != nil {
		fw.filesSkipped.Add(1)
		fw.log.Error().Err(err).Str("file", name).Msg("invalid watch-folder defaults")
		return
	}

	l, err := fw.opts.Submitter.Submit(req)
	if errors.Is(err, lesson.ErrQueueFull) {
		fw.log.Warn().
			Str("file", name).
			Dur("retry_in", fw.opts.RetryDelay).
			Msg("lesson queue full, will retry")
		fw.schedule(claimed, fw.opts.RetryDelay)
		return
	}
	if errors.Is(err, lesson.ErrStopped) {
		// Still claimed; the next start picks it up again.
		fw.log.Debug().Str("file", name).Msg("pipeline stopped, leaving file claimed")
		return
	}
	if err != nil {
		fw.filesSkipped.Add(1)
		fw.log.Warn().Err(err).Str("file", name).Msg("failed to submit watched file")
		return
	}

	fw.filesSubmitted.Add(1)
	fw.log.Info().
		Str("lesson_id", l.ID).
		Str("file", name).
		Msg("watched file submitted")
}

// backfill submits audio already sitting in the watch directory, including
// files claimed by a previous run that never finished.
func (fw *FileWatcher) backfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")

	var files []string
	_ = filepath.WalkDir(fw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != fw.opts.Dir && isHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		if strings.HasPrefix(base, ".") && !strings.HasPrefix(base, claimPrefix) {
			return nil
		}
		if !audio.Supported(base) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	for _, path := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Msg("backfill interrupted by shutdown")
			return
		}
		fw.processFile(path)
	}

	if fw.ctx.Err() == nil {
		fw.status.Store("watching")
	}
	if len(files) > 0 {
		fw.log.Info().Int("files", len(files)).Msg("backfill complete")
	}
}

func claimPath(path string) string {
	base := filepath.Base(path)
	if strings.HasPrefix(base, claimPrefix) {
		return path
	}
	return filepath.Join(filepath.Dir(path), claimPrefix+base)
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
