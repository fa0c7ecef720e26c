package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper models.
// Implements the Provider interface.
type DeepInfraClient struct {
	apiKey  string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	baseURL string
	client  *http.Client
}

// deepInfraResponse is the JSON response from the DeepInfra inference API.
type deepInfraResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Words    []deepInfraWord    `json:"words"`
	Segments []deepInfraSegment `json:"segments"`
}

// deepInfraWord uses "text" for the word field, not "word" like OpenAI.
type deepInfraWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type deepInfraSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewDeepInfraClient creates a new DeepInfra inference client.
func NewDeepInfraClient(apiKey, model string, timeout time.Duration) *DeepInfraClient {
	return &DeepInfraClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: deepInfraBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (di *DeepInfraClient) Name() string  { return "deepinfra" }
func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe posts to {baseURL}{model} with the audio in the "audio" field.
func (di *DeepInfraClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Response, error) {
	body, err := postAudio(ctx, di.client, uploadRequest{
		provider:  "deepinfra",
		url:       di.baseURL + di.model,
		fileField: "audio",
		audioPath: audioPath,
		fields: []formField{
			{"language", opts.language()},
			{"task", "transcribe"},
		},
		header: http.Header{"Authorization": []string{"Bearer " + di.apiKey}},
	})
	if err != nil {
		return nil, err
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var words []Word
	if len(result.Words) > 0 {
		words = make([]Word, len(result.Words))
		for i, dw := range result.Words {
			words[i] = Word{Word: dw.Text, Start: dw.Start, End: dw.End}
		}
	} else {
		words = wordsFromSegments(result.Segments)
	}

	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    words,
	}, nil
}

// wordsFromSegments splits each segment's text into words and spreads the
// segment's time range evenly across them. The highlight is approximate but
// still monotonic.
func wordsFromSegments(segments []deepInfraSegment) []Word {
	var words []Word
	for _, seg := range segments {
		fields := strings.Fields(seg.Text)
		if len(fields) == 0 {
			continue
		}
		step := (seg.End - seg.Start) / float64(len(fields))
		for i, f := range fields {
			words = append(words, Word{
				Word:  f,
				Start: seg.Start + float64(i)*step,
				End:   seg.Start + float64(i+1)*step,
			})
		}
	}
	return words
}
