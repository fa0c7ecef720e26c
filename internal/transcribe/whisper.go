package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (speaches, faster-whisper-server, OpenAI). Implements Provider.
type WhisperClient struct {
	url    string
	model  string
	client *http.Client
}

// whisperResponse is the verbose_json response body.
type whisperResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Words    []whisperWord `json:"words"`
	Segments []struct {
		Words []whisperWord `json:"words"`
	} `json:"segments"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (wc *WhisperClient) Name() string  { return "whisper" }
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe requests verbose_json with word granularity.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Response, error) {
	fields := []formField{
		{"language", opts.language()},
		{"temperature", fmt.Sprintf("%.2f", opts.Temperature)},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
	}
	if wc.model != "" {
		fields = append(fields, formField{"model", wc.model})
	}
	if opts.Prompt != "" {
		fields = append(fields, formField{"prompt", opts.Prompt})
	}

	body, err := postAudio(ctx, wc.client, uploadRequest{
		provider:  "whisper",
		url:       wc.url,
		fileField: "file",
		audioPath: audioPath,
		fields:    fields,
	})
	if err != nil {
		return nil, err
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Top-level words are the OpenAI shape; some servers only nest them
	// inside segments.
	src := result.Words
	if len(src) == 0 {
		for _, seg := range result.Segments {
			src = append(src, seg.Words...)
		}
	}
	words := make([]Word, 0, len(src))
	for _, w := range src {
		words = append(words, Word{Word: w.Word, Start: w.Start, End: w.End})
	}

	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    words,
	}, nil
}
