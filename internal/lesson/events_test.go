package lesson

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(Filter{})
		defer cancel()

		eb.Publish(EventLesson, "l1", map[string]string{"status": "ready"})

		select {
		case evt := <-ch:
			if evt.Type != EventLesson {
				t.Errorf("Type = %q, want lesson", evt.Type)
			}
			if evt.LessonID != "l1" {
				t.Errorf("LessonID = %q, want l1", evt.LessonID)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["status"] != "ready" {
				t.Errorf("payload status = %q, want ready", payload["status"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("lesson_filter_skips_other_lessons", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(Filter{Lessons: []string{"l2"}})
		defer cancel()

		eb.Publish(EventLesson, "l1", "x")

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(Filter{})
		cancel()
		if eb.SubscriberCount() != 0 {
			t.Errorf("SubscriberCount = %d after cancel", eb.SubscriberCount())
		}

		eb.Publish(EventLesson, "l1", "x")

		select {
		case <-ch:
			t.Fatal("should not receive event after cancel")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestEventBusReplaySince(t *testing.T) {
	t.Run("replay_all_when_empty_lastID", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventLesson, "a", 1)
		eb.Publish(EventDeleted, "a", 2)

		if events := eb.ReplaySince("", Filter{}); len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
	})

	t.Run("replay_after_specific_id", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventLesson, "a", 1)
		firstID := eb.ReplaySince("", Filter{})[0].ID
		eb.Publish(EventDeleted, "a", 2)

		events := eb.ReplaySince(firstID, Filter{})
		if len(events) != 1 || events[0].Type != EventDeleted {
			t.Fatalf("got %+v, want the single later event", events)
		}
	})

	t.Run("replay_with_type_filter", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventLesson, "a", 1)
		eb.Publish(EventDeleted, "a", 2)

		events := eb.ReplaySince("", Filter{Types: []string{" lesson_deleted "}})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (filtered)", len(events))
		}
	})

	t.Run("ring_wraps", func(t *testing.T) {
		eb := NewEventBus(2)
		eb.Publish(EventLesson, "a", 1)
		eb.Publish(EventLesson, "b", 2)
		eb.Publish(EventLesson, "c", 3)

		events := eb.ReplaySince("", Filter{})
		if len(events) != 2 || events[0].LessonID != "b" || events[1].LessonID != "c" {
			t.Fatalf("got %+v, want b then c", events)
		}
	})
}
