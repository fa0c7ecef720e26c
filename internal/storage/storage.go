package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/config"
)

// AudioStore abstracts where lesson audio lives.
type AudioStore interface {
	// Save stores audio read from r. r is rewound before use.
	Save(ctx context.Context, key string, r io.ReadSeeker, contentType string) error

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// URL returns a presigned URL for the audio file.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the audio file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an audio file exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Delete removes the audio file from every backend. Missing files are
	// not an error.
	Delete(ctx context.Context, key string) error

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// LessonKey is the storage key of a lesson's converted audio.
func LessonKey(lessonID string) string {
	return "lessons/" + lessonID + ".mp3"
}

// New creates an AudioStore based on config. Returns the store and optional
// background services that the caller must Start/Stop.
// Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, audioDir string, retention time.Duration, log zerolog.Logger) (AudioStore, []BackgroundService, error) {
	if !cfg.Enabled() {
		local := NewLocalStore(audioDir)
		var services []BackgroundService
		if retention > 0 {
			services = append(services, NewCachePruner(audioDir, retention, nil, log))
		}
		return local, services, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil, nil
	}

	// Tiered mode: local cache + S3 copy. The pruner only evicts local files
	// that S3 already holds.
	local := NewLocalStore(audioDir)
	tiered := NewTieredStore(s3store, local, log)

	var services []BackgroundService
	if cfg.CacheRetention > 0 {
		services = append(services, NewCachePruner(audioDir, cfg.CacheRetention, s3store, log))
	}
	return tiered, services, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}
