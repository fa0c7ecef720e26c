package source

import "testing"

func TestAtempoFilter(t *testing.T) {
	tests := []struct {
		speed float64
		want  string
	}{
		{1.0, ""},
		{0, ""},
		{-1, ""},
		{0.85, "atempo=0.85"},
		{0.5, "atempo=0.5"},
		{0.75, "atempo=0.75"},
		{2.0, "atempo=2"},
		{0.25, "atempo=0.5,atempo=0.5"},
		{0.3, "atempo=0.5,atempo=0.6"},
		{4.0, "atempo=2.0,atempo=2"},
	}
	for _, tt := range tests {
		if got := AtempoFilter(tt.speed); got != tt.want {
			t.Errorf("AtempoFilter(%v) = %q, want %q", tt.speed, got, tt.want)
		}
	}
}
