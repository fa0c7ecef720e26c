package lesson

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/storage"
)

func TestRegistryCreateGetList(t *testing.T) {
	r := NewRegistry(time.Hour, nil, zerolog.Nop())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	a := r.Create(Request{URL: "https://youtu.be/abcdefghijk", Speed: 0.85, Language: "en"})
	clock = clock.Add(time.Second)
	b := r.Create(Request{File: "/tmp/x.mp3", Name: "x.mp3", Speed: 1, Language: "de"})

	if a.Status != StatusPending {
		t.Errorf("Status = %q, want pending", a.Status)
	}
	if a.Source != "https://youtu.be/abcdefghijk" || b.Source != "x.mp3" {
		t.Errorf("sources = %q, %q", a.Source, b.Source)
	}

	got, err := r.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("Get returned %q", got.ID)
	}

	list := r.List()
	if len(list) != 2 || list[0].ID != b.ID {
		t.Errorf("List should be newest first, got %+v", list)
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestRegistryUpdateReturnsSnapshot(t *testing.T) {
	r := NewRegistry(0, nil, zerolog.Nop())
	l := r.Create(Request{URL: "u"})

	snap, err := r.Update(l.ID, func(l *Lesson) { l.Status = StatusReady })
	if err != nil {
		t.Fatal(err)
	}
	snap.Status = StatusFailed

	got, _ := r.Get(l.ID)
	if got.Status != StatusReady {
		t.Errorf("mutating a snapshot changed the registry: %q", got.Status)
	}

	counts := r.StatusCounts()
	if counts["ready"] != 1 {
		t.Errorf("StatusCounts = %v", counts)
	}
}

func TestRegistryDeleteRemovesAudio(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStore(t.TempDir())
	r := NewRegistry(0, store, zerolog.Nop())

	l := r.Create(Request{URL: "u"})
	key := storage.LessonKey(l.ID)
	store.Save(ctx, key, strings.NewReader("mp3"), "audio/mpeg")
	r.Update(l.ID, func(l *Lesson) { l.AudioKey = key })

	if err := r.Delete(ctx, l.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists(ctx, key) {
		t.Error("audio should be deleted with the lesson")
	}
	if err := r.Delete(ctx, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(time.Hour, nil, zerolog.Nop())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	done := r.Create(Request{URL: "a"})
	r.Update(done.ID, func(l *Lesson) { l.Status = StatusReady })
	busy := r.Create(Request{URL: "b"})
	r.Update(busy.ID, func(l *Lesson) { l.Status = StatusTranscribing })

	clock = clock.Add(30 * time.Minute)
	if n := r.Sweep(context.Background()); n != 0 {
		t.Fatalf("Sweep before TTL evicted %d", n)
	}

	clock = clock.Add(time.Hour)
	if n := r.Sweep(context.Background()); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if _, err := r.Get(done.ID); !errors.Is(err, ErrNotFound) {
		t.Error("ready lesson should be evicted")
	}
	if _, err := r.Get(busy.ID); err != nil {
		t.Error("in-flight lesson must not be evicted")
	}
}

func TestRegistryStopWithoutStart(t *testing.T) {
	r := NewRegistry(time.Hour, nil, zerolog.Nop())
	r.Stop()
}
