package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/metrics"
	"github.com/snarg/listenlab/internal/mqttclient"
	"github.com/snarg/listenlab/internal/source"
)

// Publisher sends MQTT messages. *mqttclient.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// LessonRequest is the payload accepted on <prefix>/lessons/request.
type LessonRequest struct {
	RequestID string  `json:"request_id,omitempty"`
	URL       string  `json:"url"`
	Speed     float64 `json:"speed,omitempty"`
	Language  string  `json:"language,omitempty"`
}

// requestReply is published on <prefix>/lessons/replies for every request.
type requestReply struct {
	RequestID string         `json:"request_id,omitempty"`
	Accepted  bool           `json:"accepted"`
	Lesson    *lesson.Lesson `json:"lesson,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type BridgeOptions struct {
	Prefix    string
	Defaults  Defaults
	Submitter Submitter
	Publisher Publisher
	Events    *lesson.EventBus
	Log       zerolog.Logger
}

// MQTTBridge accepts lesson requests from MQTT and republishes lesson
// progress events to per-lesson status topics.
type MQTTBridge struct {
	opts BridgeOptions
	log  zerolog.Logger

	cancel func()
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewMQTTBridge(opts BridgeOptions) *MQTTBridge {
	return &MQTTBridge{
		opts: opts,
		log:  opts.Log.With().Str("component", "mqtt").Logger(),
	}
}

// RequestTopic is the topic the bridge expects to be subscribed to.
func (b *MQTTBridge) RequestTopic() string {
	return mqttclient.Topic(b.opts.Prefix, "lessons", "request")
}

func (b *MQTTBridge) statusTopic(lessonID string) string {
	return mqttclient.Topic(b.opts.Prefix, "lessons", lessonID, "status")
}

func (b *MQTTBridge) replyTopic() string {
	return mqttclient.Topic(b.opts.Prefix, "lessons", "replies")
}

// Start forwards lesson events from the bus until Stop is called.
func (b *MQTTBridge) Start() {
	if b.opts.Events == nil {
		return
	}
	ch, cancel := b.opts.Events.Subscribe(lesson.Filter{
		Types: []string{lesson.EventLesson, lesson.EventDeleted},
	})
	b.cancel = cancel
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		for {
			select {
			case <-b.stop:
				return
			case evt := <-ch:
				b.forward(evt)
			}
		}
	}()
}

func (b *MQTTBridge) Stop() {
	b.once.Do(func() {
		if b.cancel == nil {
			return
		}
		b.cancel()
		close(b.stop)
		<-b.done
	})
}

func (b *MQTTBridge) forward(evt lesson.Event) {
	if evt.LessonID == "" {
		return
	}
	// Status topics are retained so a late subscriber sees the latest state;
	// a deletion clears the retained message with an empty payload.
	payload := evt.Data
	if evt.Type == lesson.EventDeleted {
		payload = nil
	}
	if err := b.opts.Publisher.Publish(b.statusTopic(evt.LessonID), payload, true); err != nil {
		b.log.Warn().Err(err).Str("lesson_id", evt.LessonID).Msg("failed to publish lesson status")
	}
}

// HandleMessage is installed as the MQTT client's message handler.
func (b *MQTTBridge) HandleMessage(topic string, payload []byte) {
	if topic != b.RequestTopic() {
		b.log.Debug().Str("topic", topic).Msg("ignoring message on unexpected topic")
		return
	}

	req, err := parseLessonRequest(payload)
	if err != nil {
		metrics.MQTTRequestsTotal.WithLabelValues("invalid").Inc()
		b.log.Warn().Err(err).Msg("invalid mqtt lesson request")
		b.reply(requestReply{RequestID: req.RequestID, Error: err.Error()})
		return
	}

	lreq := lesson.Request{URL: req.URL, Speed: req.Speed, Language: req.Language}
	if err := b.opts.Defaults.apply(&lreq); err != nil {
		metrics.MQTTRequestsTotal.WithLabelValues("invalid").Inc()
		b.reply(requestReply{RequestID: req.RequestID, Error: err.Error()})
		return
	}

	l, err := b.opts.Submitter.Submit(lreq)
	if err != nil {
		result := "error"
		if errors.Is(err, lesson.ErrQueueFull) {
			result = "queue_full"
		}
		metrics.MQTTRequestsTotal.WithLabelValues(result).Inc()
		b.log.Warn().Err(err).Str("url", lreq.URL).Msg("mqtt lesson request rejected")
		b.reply(requestReply{RequestID: req.RequestID, Error: err.Error()})
		return
	}

	metrics.MQTTRequestsTotal.WithLabelValues("accepted").Inc()
	b.log.Info().
		Str("lesson_id", l.ID).
		Str("request_id", req.RequestID).
		Str("source", l.Source).
		Msg("mqtt lesson request accepted")
	b.reply(requestReply{RequestID: req.RequestID, Accepted: true, Lesson: &l})
}

func (b *MQTTBridge) reply(r requestReply) {
	data, err := json.Marshal(r)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to encode mqtt reply")
		return
	}
	if err := b.opts.Publisher.Publish(b.replyTopic(), data, false); err != nil {
		b.log.Warn().Err(err).Msg("failed to publish mqtt reply")
	}
}

// parseLessonRequest decodes and checks a request payload. The URL is
// normalized here so unsupported hosts are rejected before queueing. The
// returned request carries the RequestID even on error, for the reply.
func parseLessonRequest(payload []byte) (LessonRequest, error) {
	var req LessonRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return req, errors.New("url is required")
	}
	normalized, err := source.NormalizeURL(req.URL)
	if err != nil {
		return req, err
	}
	req.URL = normalized
	req.Language = strings.TrimSpace(req.Language)
	return req, nil
}
