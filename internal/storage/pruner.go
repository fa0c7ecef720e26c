package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CachePruner deletes local audio older than the retention window. Lessons
// normally delete their own audio on eviction; the pruner catches files
// orphaned by a restart. When s3 is set, a file is only removed if S3 has it.
type CachePruner struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	s3        *S3Store
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewCachePruner creates a pruner over dir. s3 may be nil.
func NewCachePruner(dir string, retention time.Duration, s3 *S3Store, log zerolog.Logger) *CachePruner {
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	return &CachePruner{
		dir:       dir,
		retention: retention,
		interval:  interval,
		s3:        s3,
		log:       log.With().Str("component", "cache-pruner").Logger(),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

func (p *CachePruner) Start() {
	go p.loop()
}

func (p *CachePruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *CachePruner) loop() {
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

// prune returns the number of files removed and bytes freed.
func (p *CachePruner) prune() (int, int64) {
	if p.retention <= 0 {
		return 0, 0
	}
	cutoff := p.now().Add(-p.retention)

	var pruned int
	var freed int64
	var skippedNotInS3 int

	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		// Skip in-flight atomic writes.
		if strings.HasPrefix(d.Name(), ".audio-") {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if p.s3 != nil {
			rel, relErr := filepath.Rel(p.dir, path)
			if relErr != nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			inS3 := p.s3.Exists(ctx, filepath.ToSlash(rel))
			cancel()
			if !inS3 {
				skippedNotInS3++
				return nil
			}
		}
		if err := os.Remove(path); err == nil {
			pruned++
			freed += info.Size()
		}
		return nil
	})

	if pruned > 0 || skippedNotInS3 > 0 {
		p.log.Info().
			Int("pruned", pruned).
			Str("freed", humanizeBytes(freed)).
			Int("skipped_not_in_s3", skippedNotInS3).
			Msg("cache prune complete")
	}
	return pruned, freed
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
