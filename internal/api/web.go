package api

import (
	"io/fs"
	"net/http"
)

// WebHandler serves the embedded karaoke page and its assets.
func WebHandler(webFS fs.FS) http.Handler {
	return http.FileServer(http.FS(webFS))
}

// OpenAPIHandler serves the API description.
func OpenAPIHandler(spec []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(spec)
	}
}
