package karaoke

import "fmt"

// TokenState is a token's position relative to the playback cursor.
type TokenState uint8

const (
	Upcoming TokenState = iota
	Active
	Past
)

func (s TokenState) String() string {
	switch s {
	case Upcoming:
		return "upcoming"
	case Active:
		return "active"
	case Past:
		return "past"
	}
	return fmt.Sprintf("TokenState(%d)", uint8(s))
}

// MarshalText encodes the state as its lowercase name.
func (s TokenState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase state name.
func (s *TokenState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "upcoming":
		*s = Upcoming
	case "active":
		*s = Active
	case "past":
		*s = Past
	default:
		return fmt.Errorf("unknown token state %q", b)
	}
	return nil
}

// StateAt classifies a single token at now. First match wins:
// active when start <= now <= end, past when now > end, upcoming otherwise.
func StateAt(t Token, now float64) TokenState {
	switch {
	case t.Start <= now && now <= t.End:
		return Active
	case now > t.End:
		return Past
	default:
		return Upcoming
	}
}

// Classify returns one state per token. Overlapping tokens may be active at
// the same time.
func Classify(tokens []Token, now float64) []TokenState {
	states := make([]TokenState, len(tokens))
	for i, t := range tokens {
		states[i] = StateAt(t, now)
	}
	return states
}

// SeekTarget returns the playback position to jump to when t is clicked.
func SeekTarget(t Token) float64 {
	return t.Start
}
