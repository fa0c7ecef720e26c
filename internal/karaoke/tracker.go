package karaoke

import (
	"errors"
	"fmt"
)

// ErrNoToken is returned by Tracker.Click for an index outside the transcript.
var ErrNoToken = errors.New("no such token")

// Change is a single token whose state differs from the previous tick.
type Change struct {
	Index int        `json:"i"`
	State TokenState `json:"state"`
}

// Frame is what a display binding needs to apply after one tick.
// ScrollTo is -1 when the scroll position should not change.
type Frame struct {
	Now      float64  `json:"now"`
	Changes  []Change `json:"changes"`
	Active   []int    `json:"active"`
	ScrollTo int      `json:"scroll_to"`
}

// Tracker follows one playback session. It keeps the last classification so
// each tick only reports transitions, and it suppresses repeated scroll
// requests while the leading active token is unchanged.
//
// A Tracker is not safe for concurrent use; each session owns its own.
type Tracker struct {
	transcript *Transcript
	states     []TokenState
	primed     bool
	scrolled   int
}

// NewTracker creates a tracker over a transcript.
func NewTracker(t *Transcript) *Tracker {
	return &Tracker{
		transcript: t,
		states:     make([]TokenState, t.Len()),
		scrolled:   -1,
	}
}

// Update classifies the transcript at now and returns the differences from
// the previous call. The first call reports every token.
func (tr *Tracker) Update(now float64) Frame {
	next := tr.transcript.Classify(now)
	f := Frame{Now: now, ScrollTo: -1}

	lead := -1
	for i, s := range next {
		if !tr.primed || s != tr.states[i] {
			f.Changes = append(f.Changes, Change{Index: i, State: s})
		}
		if s == Active {
			f.Active = append(f.Active, i)
			if lead < 0 {
				lead = i
			}
		}
	}
	if lead >= 0 && lead != tr.scrolled {
		f.ScrollTo = lead
		tr.scrolled = lead
	}

	tr.states = next
	tr.primed = true
	return f
}

// Click returns the seek target for the token at index.
func (tr *Tracker) Click(index int) (float64, error) {
	t, ok := tr.transcript.At(index)
	if !ok {
		return 0, fmt.Errorf("%w: index %d of %d", ErrNoToken, index, tr.transcript.Len())
	}
	return SeekTarget(t), nil
}

// Reset forgets the previous classification, e.g. after the page reloads.
func (tr *Tracker) Reset() {
	tr.primed = false
	tr.scrolled = -1
}
