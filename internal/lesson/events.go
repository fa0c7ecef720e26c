package lesson

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/listenlab/internal/metrics"
)

// Event is a server-sent event ready for transmission.
type Event struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	LessonID  string `json:"lesson_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      []byte `json:"-"` // pre-serialized JSON payload
}

// Filter selects events for a subscriber. Empty fields match everything.
type Filter struct {
	Types   []string
	Lessons []string
}

// EventBus provides pub-sub event distribution for SSE subscribers.
// It keeps a ring buffer for replay on reconnect.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewEventBus creates an event bus with the given ring buffer size.
func NewEventBus(ringSize int) *EventBus {
	if ringSize < 1 {
		ringSize = 1
	}
	return &EventBus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (eb *EventBus) Subscribe(filter Filter) (<-chan Event, func()) {
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	ch := make(chan Event, 64)
	eb.subscribers[id] = subscriber{ch: ch, filter: filter}
	eb.mu.Unlock()

	cancel := func() {
		eb.mu.Lock()
		delete(eb.subscribers, id)
		eb.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// ReplaySince returns buffered events published after lastEventID, oldest
// first. An unknown ID (already overwritten) replays nothing.
func (eb *EventBus) ReplaySince(lastEventID string, filter Filter) []Event {
	eb.ringMu.RLock()
	defer eb.ringMu.RUnlock()

	var events []Event
	found := lastEventID == ""

	for i := 0; i < eb.ringSize; i++ {
		e := eb.ring[(eb.ringHead+i)%eb.ringSize]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if filter.matches(e) {
			events = append(events, e)
		}
	}
	return events
}

// Publish sends an event to all matching subscribers and adds it to the ring
// buffer. Slow subscribers miss events rather than block the publisher.
func (eb *EventBus) Publish(eventType, lessonID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	now := time.Now()
	event := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), eb.seq.Add(1)),
		Type:      eventType,
		LessonID:  lessonID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}

	eb.ringMu.Lock()
	eb.ring[eb.ringHead] = event
	eb.ringHead = (eb.ringHead + 1) % eb.ringSize
	eb.ringMu.Unlock()

	eb.mu.RLock()
	for _, sub := range eb.subscribers {
		if sub.filter.matches(event) {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	eb.mu.RUnlock()
	metrics.SSEEventsPublishedTotal.Inc()
}

func (f Filter) matches(e Event) bool {
	if len(f.Types) > 0 && !containsTrimmed(f.Types, e.Type) {
		return false
	}
	if len(f.Lessons) > 0 && !containsTrimmed(f.Lessons, e.LessonID) {
		return false
	}
	return true
}

func containsTrimmed(list []string, v string) bool {
	for _, s := range list {
		if strings.TrimSpace(s) == v {
			return true
		}
	}
	return false
}
