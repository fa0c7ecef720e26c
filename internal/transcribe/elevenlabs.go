package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
// Implements the Provider interface.
type ElevenLabsClient struct {
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	endpoint string
	client   *http.Client
}

// elevenlabsResponse is the JSON response from the ElevenLabs STT API.
type elevenlabsResponse struct {
	LanguageCode string           `json:"language_code"`
	Text         string           `json:"text"`
	Words        []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word or spacing entry from ElevenLabs.
type elevenlabsWord struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"` // "word", "spacing" or "audio_event"
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewElevenLabsClient creates a new ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: elevenLabsSTTEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabsClient) Name() string  { return "elevenlabs" }
func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe sends an audio file to the ElevenLabs STT API.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Response, error) {
	body, err := postAudio(ctx, el.client, uploadRequest{
		provider:  "elevenlabs",
		url:       el.endpoint,
		fileField: "file",
		audioPath: audioPath,
		fields: []formField{
			{"model_id", el.model},
			{"language_code", opts.language()},
			{"timestamps_granularity", "word"},
			{"tag_audio_events", "false"},
		},
		header: http.Header{"Xi-Api-Key": []string{el.apiKey}},
	})
	if err != nil {
		return nil, err
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Spacing and audio events carry no text to highlight.
	var words []Word
	var end float64
	for _, ew := range result.Words {
		if ew.End > end {
			end = ew.End
		}
		if ew.Type != "word" || strings.TrimSpace(ew.Text) == "" {
			continue
		}
		words = append(words, Word{Word: ew.Text, Start: ew.Start, End: ew.End})
	}

	return &Response{
		Text:     result.Text,
		Language: result.LanguageCode,
		Duration: end,
		Words:    words,
	}, nil
}
