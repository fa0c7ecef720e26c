// Package ingest feeds lesson requests into the pipeline from sources other
// than the HTTP API: a watched drop folder and an MQTT request topic.
package ingest

import (
	"fmt"

	"github.com/snarg/listenlab/internal/config"
	"github.com/snarg/listenlab/internal/lesson"
)

// Submitter queues lesson requests. *lesson.Pipeline satisfies it.
type Submitter interface {
	Submit(req lesson.Request) (lesson.Lesson, error)
}

// Defaults fill in speed and language for requests that leave them empty.
type Defaults struct {
	Speed    float64
	Language string
}

func (d Defaults) apply(req *lesson.Request) error {
	if req.Speed == 0 {
		req.Speed = d.Speed
	}
	if req.Speed == 0 {
		req.Speed = 1
	}
	if req.Language == "" {
		req.Language = d.Language
	}
	if req.Language == "" {
		req.Language = "en"
	}
	// Written so NaN fails too.
	if !(req.Speed >= config.MinSpeed && req.Speed <= config.MaxSpeed) {
		return fmt.Errorf("speed %.2f outside [%.2f, %.2f]", req.Speed, config.MinSpeed, config.MaxSpeed)
	}
	return nil
}
