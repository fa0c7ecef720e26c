package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/audio"
)

// Request describes the audio to fetch. Exactly one of URL or File is set.
type Request struct {
	URL   string
	File  string // local path of an uploaded or dropped file
	Speed float64
	// Name is the output base name (without extension).
	Name string
}

// Result is a successfully fetched audio file. The caller owns Path and must
// remove it when done.
type Result struct {
	Path        string
	ContentType string
	Title       string
	SourceURL   string
}

// Provider resolves a URL or local file into a decodable mp3.
type Provider interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// Fetcher is the default Provider: YouTube download plus ffmpeg conversion.
type Fetcher struct {
	downloader Downloader
	transcoder Transcoder
	workDir    string
	log        zerolog.Logger
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Downloader Downloader
	Transcoder Transcoder
	WorkDir    string // scratch directory, default os.TempDir()
	Log        zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Fetcher{
		downloader: opts.Downloader,
		transcoder: opts.Transcoder,
		workDir:    opts.WorkDir,
		log:        opts.Log.With().Str("component", "source").Logger(),
	}
}

// Fetch downloads (for URLs) and converts the input to an mp3 at the
// requested speed.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", f.workDir, err)
	}
	name := req.Name
	if name == "" {
		name = "lesson"
	}
	out := filepath.Join(f.workDir, name+".mp3")

	switch {
	case req.URL != "" && req.File != "":
		return nil, &UnsupportedInputError{Input: req.URL, Reason: "give either a url or a file, not both"}
	case req.URL != "":
		return f.fetchURL(ctx, req, out)
	case req.File != "":
		return f.fetchFile(ctx, req, out)
	default:
		return nil, &UnsupportedInputError{Reason: "no url or file"}
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, req Request, out string) (*Result, error) {
	videoURL, err := NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(f.workDir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	info, err := f.downloader.Download(ctx, videoURL, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close temp: %w", cerr)
	}
	if err != nil {
		var de *DownloadError
		if !errors.As(err, &de) {
			err = &DownloadError{URL: videoURL, Err: err}
		}
		return nil, err
	}

	f.log.Debug().Str("url", videoURL).Str("title", info.Title).Str("mime", info.MimeType).Msg("audio downloaded")

	if err := f.transcoder.Transcode(ctx, tmpPath, out, req.Speed); err != nil {
		os.Remove(out)
		return nil, &DownloadError{URL: videoURL, Err: err}
	}
	if err := checkOutput(out); err != nil {
		return nil, &DownloadError{URL: videoURL, Err: err}
	}

	return &Result{
		Path:        out,
		ContentType: "audio/mpeg",
		Title:       info.Title,
		SourceURL:   videoURL,
	}, nil
}

func (f *Fetcher) fetchFile(ctx context.Context, req Request, out string) (*Result, error) {
	if !audio.Supported(req.File) {
		return nil, &UnsupportedInputError{
			Input:  filepath.Base(req.File),
			Reason: "accepted formats: " + strings.Join(audio.Extensions(), " "),
		}
	}
	if _, err := os.Stat(req.File); err != nil {
		return nil, &UnsupportedInputError{Input: filepath.Base(req.File), Reason: err.Error()}
	}

	if err := f.transcoder.Transcode(ctx, req.File, out, req.Speed); err != nil {
		os.Remove(out)
		return nil, &UnsupportedInputError{Input: filepath.Base(req.File), Reason: err.Error()}
	}
	if err := checkOutput(out); err != nil {
		return nil, &UnsupportedInputError{Input: filepath.Base(req.File), Reason: err.Error()}
	}

	return &Result{
		Path:        out,
		ContentType: "audio/mpeg",
		Title:       strings.TrimSuffix(filepath.Base(req.File), filepath.Ext(req.File)),
	}, nil
}

// checkOutput verifies the converter actually produced a non-empty file.
func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("no output file: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return fmt.Errorf("output file is empty")
	}
	return nil
}
