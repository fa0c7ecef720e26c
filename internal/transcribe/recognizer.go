package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/karaoke"
)

// RecognitionError means the audio was unreadable or the provider failed.
// It is fatal for the lesson that produced it.
type RecognitionError struct {
	Provider string
	Path     string
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed (%s): %v", e.Provider, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Result is a finished recognition turned into a transcript.
type Result struct {
	Transcript *karaoke.Transcript
	Language   string
	Duration   float64 // seconds, as reported by the provider
	Provider   string
	Model      string
	Elapsed    time.Duration
	Issues     []karaoke.Issue
}

// Recognizer wraps a Provider, constructed once at startup and shared by all
// lessons.
type Recognizer struct {
	provider Provider
	log      zerolog.Logger
}

// NewRecognizer creates a Recognizer over p.
func NewRecognizer(p Provider, log zerolog.Logger) *Recognizer {
	return &Recognizer{
		provider: p,
		log:      log.With().Str("provider", p.Name()).Str("model", p.Model()).Logger(),
	}
}

// Provider returns the underlying provider.
func (r *Recognizer) Provider() Provider { return r.provider }

// Transcribe recognizes audioPath with a language hint. Any provider failure
// is returned as a *RecognitionError.
func (r *Recognizer) Transcribe(ctx context.Context, audioPath, language string) (*Result, error) {
	start := time.Now()
	resp, err := r.provider.Transcribe(ctx, audioPath, Options{Language: language})
	if err != nil {
		return nil, &RecognitionError{Provider: r.provider.Name(), Path: audioPath, Err: err}
	}

	tokens := Tokens(resp.Words)
	issues := karaoke.Validate(tokens)
	if len(issues) > 0 {
		r.log.Warn().
			Str("path", audioPath).
			Int("issues", len(issues)).
			Str("first", issues[0].String()).
			Msg("recognizer returned malformed word timings")
	}

	res := &Result{
		Transcript: karaoke.NewTranscript(tokens),
		Language:   lessonLanguage(language, resp.Language),
		Duration:   resp.Duration,
		Provider:   r.provider.Name(),
		Model:      r.provider.Model(),
		Elapsed:    time.Since(start),
		Issues:     issues,
	}
	r.log.Debug().
		Str("path", audioPath).
		Int("words", res.Transcript.Len()).
		Dur("elapsed", res.Elapsed).
		Msg("recognition complete")
	return res, nil
}

// lessonLanguage picks the language recorded on a lesson. The hint was sent
// to the provider and wins; otherwise the detected language is reduced to its
// ISO-639-1 code.
func lessonLanguage(hint, detected string) string {
	if hint != "" {
		return hint
	}
	return languageCode(detected)
}

// languageNames maps the names and ISO-639-2 codes providers report.
var languageNames = map[string]string{
	"english": "en", "eng": "en",
	"german": "de", "deu": "de", "ger": "de",
	"french": "fr", "fra": "fr", "fre": "fr",
	"spanish": "es", "spa": "es",
	"italian": "it", "ita": "it",
	"portuguese": "pt", "por": "pt",
	"dutch": "nl", "nld": "nl", "dut": "nl",
	"russian": "ru", "rus": "ru",
	"polish": "pl", "pol": "pl",
	"japanese": "ja", "jpn": "ja",
	"chinese": "zh", "zho": "zh", "chi": "zh",
	"korean": "ko", "kor": "ko",
	"arabic": "ar", "ara": "ar",
	"turkish": "tr", "tur": "tr",
	"ukrainian": "uk", "ukr": "uk",
	"swedish": "sv", "swe": "sv",
	"hindi": "hi", "hin": "hi",
}

func languageCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageNames[lang]; ok {
		return code
	}
	return lang
}

// Tokens converts provider words to karaoke tokens: text is trimmed, empty
// words are dropped and offsets are rounded to milliseconds.
func Tokens(words []Word) []karaoke.Token {
	tokens := make([]karaoke.Token, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		tokens = append(tokens, karaoke.Token{
			Text:  text,
			Start: karaoke.RoundOffset(w.Start),
			End:   karaoke.RoundOffset(w.End),
		})
	}
	return tokens
}
