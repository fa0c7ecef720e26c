package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

// Duration decodes the header of an mp3 or wav file and returns its length.
// Other formats return an error; callers fall back to the recognizer's
// reported duration.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audio: %w", err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		f.Close()
		return 0, fmt.Errorf("duration probe: unsupported format %q", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer s.Close()

	return format.SampleRate.D(s.Len()), nil
}
