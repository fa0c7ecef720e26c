package karaoke

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hiThere = []Token{
	{Text: "hi", Start: 0.0, End: 0.5},
	{Text: "there", Start: 0.6, End: 1.0},
}

func TestClassify_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		tokens []Token
		now    float64
		want   []TokenState
	}{
		{"first_word_active", hiThere, 0.3, []TokenState{Active, Upcoming}},
		{"gap_between_words", hiThere, 0.55, []TokenState{Past, Upcoming}},
		{"after_last_word", hiThere, 1.5, []TokenState{Past, Past}},
		{"before_first_word", []Token{{"a", 1, 2}, {"b", 3, 4}}, 0.2, []TokenState{Upcoming, Upcoming}},
		{"inclusive_start", hiThere, 0.6, []TokenState{Past, Active}},
		{"inclusive_end", hiThere, 1.0, []TokenState{Past, Active}},
		{"zero_duration_exact", []Token{{"um", 2.0, 2.0}}, 2.0, []TokenState{Active}},
		{"zero_duration_after", []Token{{"um", 2.0, 2.0}}, 2.0001, []TokenState{Past}},
		{"zero_duration_before", []Token{{"um", 2.0, 2.0}}, 1.9999, []TokenState{Upcoming}},
		{"overlap_both_active", []Token{{"a", 0, 1}, {"b", 0.5, 1.5}}, 0.75, []TokenState{Active, Active}},
		// start > end never matches the active rule
		{"inverted_span", []Token{{"x", 2, 1}}, 1.5, []TokenState{Past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tokens, tt.now))
		})
	}
}

func TestClassify_Empty(t *testing.T) {
	for _, now := range []float64{0, 1, 1e9} {
		got := Classify(nil, now)
		require.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestClassify_Bounds(t *testing.T) {
	tokens := []Token{
		{"one", 0.12, 0.48},
		{"two", 0.48, 0.48},
		{"three", 0.9, 1.75},
		{"four", 1.75, 3.2},
	}
	for now := 0.0; now < 4; now += 0.01 {
		states := Classify(tokens, now)
		require.Len(t, states, len(tokens))
		for i, tok := range tokens {
			switch {
			case now < tok.Start:
				assert.Equal(t, Upcoming, states[i], "token %d at %.2f", i, now)
			case now > tok.End:
				assert.Equal(t, Past, states[i], "token %d at %.2f", i, now)
			default:
				assert.Equal(t, Active, states[i], "token %d at %.2f", i, now)
			}
		}
	}
}

func TestClassify_Pure(t *testing.T) {
	first := Classify(hiThere, 0.7)
	second := Classify(hiThere, 0.7)
	assert.Equal(t, first, second)
	assert.Equal(t, []Token{{"hi", 0.0, 0.5}, {"there", 0.6, 1.0}}, hiThere, "input must not be mutated")
}

func TestSeekTarget(t *testing.T) {
	for _, tok := range append(hiThere, Token{"um", 2, 2}) {
		assert.Equal(t, tok.Start, SeekTarget(tok))
	}
}

func TestTokenState_JSON(t *testing.T) {
	b, err := json.Marshal(Change{Index: 3, State: Active})
	require.NoError(t, err)
	assert.JSONEq(t, `{"i":3,"state":"active"}`, string(b))
	assert.Equal(t, "TokenState(9)", TokenState(9).String())
}

func TestTokenState_UnmarshalText(t *testing.T) {
	var c Change
	require.NoError(t, json.Unmarshal([]byte(`{"i":1,"state":"past"}`), &c))
	assert.Equal(t, Change{Index: 1, State: Past}, c)

	assert.Error(t, json.Unmarshal([]byte(`{"i":1,"state":"soon"}`), &c))
}
