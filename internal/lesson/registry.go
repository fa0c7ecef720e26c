package lesson

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/storage"
)

// Registry holds lessons in memory and evicts finished ones after a TTL.
// Eviction also deletes the lesson's stored audio.
type Registry struct {
	mu      sync.RWMutex
	lessons map[string]*Lesson

	ttl      time.Duration
	store    storage.AudioStore
	log      zerolog.Logger
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool
}

// NewRegistry creates a registry. ttl <= 0 disables eviction. store may be nil.
func NewRegistry(ttl time.Duration, store storage.AudioStore, log zerolog.Logger) *Registry {
	return &Registry{
		lessons: make(map[string]*Lesson),
		ttl:     ttl,
		store:   store,
		log:     log.With().Str("component", "registry").Logger(),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Create registers a pending lesson for req.
func (r *Registry) Create(req Request) Lesson {
	now := r.now().UTC()
	l := &Lesson{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Source:    req.source(),
		Speed:     req.Speed,
		Language:  req.Language,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.lessons[l.ID] = l
	r.mu.Unlock()
	return *l
}

// Get returns a snapshot of the lesson.
func (r *Registry) Get(id string) (Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return *l, nil
}

// List returns all lessons, newest first.
func (r *Registry) List() []Lesson {
	r.mu.RLock()
	out := make([]Lesson, 0, len(r.lessons))
	for _, l := range r.lessons {
		out = append(out, *l)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// StatusCounts returns the number of lessons per status.
func (r *Registry) StatusCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, l := range r.lessons {
		counts[string(l.Status)]++
	}
	return counts
}

// Update applies fn to the stored lesson under the lock and returns the result.
func (r *Registry) Update(id string, fn func(*Lesson)) (Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	fn(l)
	l.UpdatedAt = r.now().UTC()
	return *l, nil
}

// Delete discards a lesson and its stored audio. A lesson still being
// processed is removed from the registry; its worker notices and stops.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	l, ok := r.lessons[id]
	if ok {
		delete(r.lessons, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.deleteAudio(ctx, l)
	return nil
}

// Sweep evicts terminal lessons not updated within the TTL and returns how
// many were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	var expired []*Lesson
	r.mu.Lock()
	for id, l := range r.lessons {
		if l.Status.Terminal() && l.UpdatedAt.Before(cutoff) {
			expired = append(expired, l)
			delete(r.lessons, id)
		}
	}
	r.mu.Unlock()

	for _, l := range expired {
		r.deleteAudio(ctx, l)
	}
	if len(expired) > 0 {
		r.log.Info().Int("evicted", len(expired)).Msg("expired lessons evicted")
	}
	return len(expired)
}

func (r *Registry) deleteAudio(ctx context.Context, l *Lesson) {
	if r.store == nil || l.AudioKey == "" {
		return
	}
	if err := r.store.Delete(ctx, l.AudioKey); err != nil {
		r.log.Warn().Err(err).Str("lesson_id", l.ID).Str("key", l.AudioKey).Msg("failed to delete lesson audio")
	}
}

// Start runs periodic eviction until Stop.
func (r *Registry) Start() {
	if r.ttl <= 0 {
		return
	}
	r.started = true
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Sweep(context.Background())
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.started {
		<-r.done
	}
}
