package source

import "fmt"

// DownloadError means the audio could not be fetched (network failure, video
// unavailable, blocked). The user may retry or upload the file directly.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UnsupportedInputError means the URL or file is not something we can fetch.
type UnsupportedInputError struct {
	Input  string
	Reason string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported input %q: %s", e.Input, e.Reason)
}
