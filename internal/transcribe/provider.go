package transcribe

import "context"

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Response, error)
	Name() string  // "whisper", "elevenlabs", "deepinfra"
	Model() string // model identifier for logs and the lesson archive
}

// Options are per-request recognition options. Zero values are omitted from
// the request so servers fall back to their own defaults.
type Options struct {
	Language    string // ISO-639-1 hint, default "en"
	Prompt      string // initial prompt / domain vocabulary
	Temperature float64
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds
	Words    []Word  // nil if provider doesn't support word timestamps
}

// Word is a timestamped word from any STT provider.
type Word struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}

func (o Options) language() string {
	if o.Language == "" {
		return "en"
	}
	return o.Language
}
