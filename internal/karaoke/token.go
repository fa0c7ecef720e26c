package karaoke

import (
	"fmt"
	"math"
	"strings"
)

// Token is a single recognized word with its time span in the source audio.
type Token struct {
	Text  string  `json:"w"`
	Start float64 `json:"s"` // seconds
	End   float64 `json:"e"` // seconds
}

// Transcript is the full ordered token sequence for one audio clip.
// It is read-only after construction.
type Transcript struct {
	tokens []Token
	text   string
}

// NewTranscript copies tokens into a transcript and derives its text.
func NewTranscript(tokens []Token) *Transcript {
	cp := make([]Token, len(tokens))
	copy(cp, tokens)

	parts := make([]string, 0, len(cp))
	for _, t := range cp {
		if s := strings.TrimSpace(t.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return &Transcript{
		tokens: cp,
		text:   strings.TrimSpace(strings.Join(parts, " ")),
	}
}

// Tokens returns a copy of the token sequence.
func (t *Transcript) Tokens() []Token {
	cp := make([]Token, len(t.tokens))
	copy(cp, t.tokens)
	return cp
}

// Len returns the number of tokens.
func (t *Transcript) Len() int { return len(t.tokens) }

// At returns the token at index i.
func (t *Transcript) At(i int) (Token, bool) {
	if i < 0 || i >= len(t.tokens) {
		return Token{}, false
	}
	return t.tokens[i], true
}

// Text returns the tokens joined by single spaces.
func (t *Transcript) Text() string { return t.text }

// Classify classifies every token of the transcript at now.
func (t *Transcript) Classify(now float64) []TokenState {
	return Classify(t.tokens, now)
}

// RoundOffset rounds a recognizer offset to millisecond precision.
func RoundOffset(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}

// Issue describes a token that breaks the ordering or span invariant.
type Issue struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("token %d: %s", i.Index, i.Reason)
}

// Validate reports malformed tokens without correcting them.
// Classification stays permissive for every reported token.
func Validate(tokens []Token) []Issue {
	var issues []Issue
	for i, t := range tokens {
		if t.Start > t.End {
			issues = append(issues, Issue{Index: i, Reason: fmt.Sprintf("start %.3f after end %.3f", t.Start, t.End)})
		}
		if i > 0 && t.Start < tokens[i-1].Start {
			issues = append(issues, Issue{Index: i, Reason: fmt.Sprintf("start %.3f before previous start %.3f", t.Start, tokens[i-1].Start)})
		}
	}
	return issues
}
