package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStats struct{}

func (fakeStats) StatusCounts() map[string]int { return map[string]int{"ready": 2, "failed": 1} }
func (fakeStats) QueuePending() int             { return 3 }
func (fakeStats) SSESubscriberCount() int       { return 1 }
func (fakeStats) SyncSessionCount() int         { return 4 }

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(nil, fakeStats{}))

	expected := `
# HELP listenlab_lesson_queue_pending Lessons waiting for a worker.
# TYPE listenlab_lesson_queue_pending gauge
listenlab_lesson_queue_pending 3
# HELP listenlab_lessons Lessons held in memory by status.
# TYPE listenlab_lessons gauge
listenlab_lessons{status="failed"} 1
listenlab_lessons{status="ready"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"listenlab_lesson_queue_pending", "listenlab_lessons"); err != nil {
		t.Error(err)
	}
}

func TestInstrumentHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/lessons/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/lessons/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/lessons/abc", nil))

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/lessons/{id}", "418"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}
