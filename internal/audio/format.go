package audio

import (
	"path/filepath"
	"strings"
)

// contentTypes maps accepted upload extensions to their MIME type.
var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

// Supported reports whether filename has an accepted audio extension.
func Supported(filename string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ContentType returns the MIME type for filename, or
// application/octet-stream when the extension is unknown.
func ContentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Extensions lists the accepted extensions for error messages.
func Extensions() []string {
	return []string{".mp3", ".wav", ".m4a", ".ogg", ".webm", ".flac"}
}
