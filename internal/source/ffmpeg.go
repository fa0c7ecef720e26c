package source

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder converts an input audio/video file to an mp3 at out,
// time-stretched by speed.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string, speed float64) error
}

// FFmpeg shells out to ffmpeg for extraction and time-stretching.
type FFmpeg struct {
	Path    string // binary, default "ffmpeg"
	Bitrate string // default "192k"
}

// Available reports whether the ffmpeg binary can be found.
func (f FFmpeg) Available() bool {
	_, err := exec.LookPath(f.bin())
	return err == nil
}

func (f FFmpeg) bin() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

// Transcode runs: ffmpeg -y -i in -vn [-af atempo=...] -c:a libmp3lame -b:a 192k out
func (f FFmpeg) Transcode(ctx context.Context, in, out string, speed float64) error {
	bitrate := f.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in, "-vn"}
	if filter := AtempoFilter(speed); filter != "" {
		args = append(args, "-af", filter)
	}
	args = append(args, "-c:a", "libmp3lame", "-b:a", bitrate, out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.bin(), args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// AtempoFilter builds an ffmpeg audio filter that changes tempo by speed.
// A single atempo stage accepts [0.5, 2.0]; values outside are split into a
// chain whose product equals speed. Returns "" for speed 1 (or <= 0).
func AtempoFilter(speed float64) string {
	if speed <= 0 || math.Abs(speed-1) < 1e-9 {
		return ""
	}
	var stages []string
	for speed < 0.5 {
		stages = append(stages, "atempo=0.5")
		speed /= 0.5
	}
	for speed > 2.0 {
		stages = append(stages, "atempo=2.0")
		speed /= 2.0
	}
	if math.Abs(speed-1) >= 1e-9 {
		stages = append(stages, "atempo="+strconv.FormatFloat(speed, 'f', -1, 64))
	}
	return strings.Join(stages, ",")
}
