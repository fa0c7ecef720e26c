package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeDownloader struct {
	data   string
	err    error
	gotURL string
}

func (d *fakeDownloader) Download(ctx context.Context, videoURL string, w io.Writer) (*VideoInfo, error) {
	d.gotURL = videoURL
	if d.err != nil {
		return nil, d.err
	}
	io.WriteString(w, d.data)
	return &VideoInfo{ID: "dQw4w9WgXcQ", Title: "Lesson one", MimeType: "audio/webm"}, nil
}

// copyTranscoder copies in to out and records the speed.
type copyTranscoder struct {
	speed float64
	empty bool
	err   error
}

func (c *copyTranscoder) Transcode(ctx context.Context, in, out string, speed float64) error {
	c.speed = speed
	if c.err != nil {
		return c.err
	}
	if c.empty {
		return os.WriteFile(out, nil, 0o644)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func newTestFetcher(t *testing.T, d Downloader, tc Transcoder) *Fetcher {
	t.Helper()
	return NewFetcher(FetcherOptions{
		Downloader: d,
		Transcoder: tc,
		WorkDir:    t.TempDir(),
		Log:        zerolog.Nop(),
	})
}

func TestFetcher_URL(t *testing.T) {
	d := &fakeDownloader{data: "audio-bytes"}
	tc := &copyTranscoder{}
	f := newTestFetcher(t, d, tc)

	res, err := f.Fetch(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ", Speed: 0.85, Name: "abc"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d.gotURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("downloader got %q", d.gotURL)
	}
	if tc.speed != 0.85 {
		t.Errorf("speed = %v, want 0.85", tc.speed)
	}
	if filepath.Base(res.Path) != "abc.mp3" {
		t.Errorf("path = %q, want abc.mp3", res.Path)
	}
	if res.Title != "Lesson one" {
		t.Errorf("title = %q", res.Title)
	}
	data, _ := os.ReadFile(res.Path)
	if string(data) != "audio-bytes" {
		t.Errorf("output = %q", data)
	}

	// The temp download must be cleaned up.
	entries, _ := os.ReadDir(filepath.Dir(res.Path))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".download-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFetcher_DownloadError(t *testing.T) {
	d := &fakeDownloader{err: &DownloadError{URL: "x", Err: errors.New("403 forbidden")}}
	f := newTestFetcher(t, d, &copyTranscoder{})

	_, err := f.Fetch(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ"})
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DownloadError", err)
	}
}

func TestFetcher_EmptyOutputIsDownloadError(t *testing.T) {
	f := newTestFetcher(t, &fakeDownloader{data: "x"}, &copyTranscoder{empty: true})

	_, err := f.Fetch(context.Background(), Request{URL: "dQw4w9WgXcQ"})
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DownloadError", err)
	}
}

func TestFetcher_UnsupportedURL(t *testing.T) {
	f := newTestFetcher(t, &fakeDownloader{}, &copyTranscoder{})

	_, err := f.Fetch(context.Background(), Request{URL: "https://example.com/podcast.mp3"})
	var ue *UnsupportedInputError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnsupportedInputError", err)
	}
}

func TestFetcher_File(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "My Talk.mp3")
	os.WriteFile(in, []byte("mp3"), 0o644)

	tc := &copyTranscoder{}
	f := newTestFetcher(t, &fakeDownloader{}, tc)
	res, err := f.Fetch(context.Background(), Request{File: in, Speed: 1, Name: "l1"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "My Talk" {
		t.Errorf("title = %q, want My Talk", res.Title)
	}
	if res.ContentType != "audio/mpeg" {
		t.Errorf("content type = %q", res.ContentType)
	}
}

func TestFetcher_FileRejected(t *testing.T) {
	dir := t.TempDir()
	f := newTestFetcher(t, &fakeDownloader{}, &copyTranscoder{})

	tests := []struct {
		name string
		req  Request
	}{
		{"bad_extension", Request{File: filepath.Join(dir, "notes.txt")}},
		{"missing_file", Request{File: filepath.Join(dir, "gone.mp3")}},
		{"nothing", Request{}},
		{"both", Request{URL: "dQw4w9WgXcQ", File: filepath.Join(dir, "a.mp3")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.req)
			var ue *UnsupportedInputError
			if !errors.As(err, &ue) {
				t.Errorf("err = %v, want UnsupportedInputError", err)
			}
		})
	}
}
