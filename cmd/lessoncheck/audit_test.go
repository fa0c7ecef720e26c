package main

import (
	"testing"

	"github.com/snarg/listenlab/internal/database"
	"github.com/snarg/listenlab/internal/karaoke"
)

func TestAuditRow(t *testing.T) {
	clean := []karaoke.Token{
		{Text: "hello", Start: 0, End: 0.4},
		{Text: "world", Start: 0.5, End: 0.9},
	}
	broken := []karaoke.Token{
		{Text: "a", Start: 1.0, End: 0.5},
		{Text: "b", Start: 0.2, End: 0.3},
	}

	tests := []struct {
		name        string
		row         database.LessonRow
		wantFound   int
		wantChanged bool
	}{
		{"clean and current", database.LessonRow{ID: "a", Tokens: clean}, 0, false},
		{"clean but stale", database.LessonRow{ID: "b", Tokens: clean, IssueCount: 3}, 0, true},
		{"broken and unrecorded", database.LessonRow{ID: "c", Tokens: broken}, 2, true},
		{"broken and recorded", database.LessonRow{ID: "d", Tokens: broken, IssueCount: 2}, 2, false},
		{"empty", database.LessonRow{ID: "e"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := auditRow(&tt.row)
			if len(res.found) != tt.wantFound {
				t.Errorf("found %d issues, want %d", len(res.found), tt.wantFound)
			}
			if res.changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", res.changed, tt.wantChanged)
			}
			if res.id != tt.row.ID {
				t.Errorf("id = %q, want %q", res.id, tt.row.ID)
			}
		})
	}
}

func TestParseDays(t *testing.T) {
	for _, s := range []string{"0", "-3", "x", ""} {
		if _, err := parseDays(s); err == nil {
			t.Errorf("parseDays(%q) = nil error, want error", s)
		}
	}
	if d, err := parseDays("30"); err != nil || d != 30 {
		t.Errorf("parseDays(30) = %d, %v", d, err)
	}
}
