package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// Downloader writes the best available audio stream of a video to w.
type Downloader interface {
	Download(ctx context.Context, videoURL string, w io.Writer) (*VideoInfo, error)
}

// VideoInfo describes a downloaded video.
type VideoInfo struct {
	ID       string
	Title    string
	Author   string
	MimeType string
}

// YouTube downloads audio streams with the kkdai/youtube client.
type YouTube struct {
	client youtube.Client
}

// NewYouTube creates a YouTube downloader.
func NewYouTube() *YouTube {
	return &YouTube{}
}

// Download fetches video metadata, picks the highest-bitrate audio-only
// format (falling back to any format with audio) and copies the stream to w.
func (y *YouTube) Download(ctx context.Context, videoURL string, w io.Writer) (*VideoInfo, error) {
	video, err := y.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, &DownloadError{URL: videoURL, Err: err}
	}

	format, err := pickAudioFormat(video.Formats)
	if err != nil {
		return nil, &DownloadError{URL: videoURL, Err: err}
	}

	stream, _, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, &DownloadError{URL: videoURL, Err: fmt.Errorf("open stream: %w", err)}
	}
	defer stream.Close()

	if _, err := io.Copy(w, stream); err != nil {
		return nil, &DownloadError{URL: videoURL, Err: fmt.Errorf("copy stream: %w", err)}
	}

	return &VideoInfo{
		ID:       video.ID,
		Title:    video.Title,
		Author:   video.Author,
		MimeType: format.MimeType,
	}, nil
}

var errNoAudio = errors.New("no format with audio")

func pickAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best != nil {
		return best, nil
	}

	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		return nil, errNoAudio
	}
	return &withAudio[0], nil
}
