package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// APIError is a non-200 response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// formField is an ordered multipart form value.
type formField struct {
	name, value string
}

// uploadRequest describes a multipart POST carrying one audio file.
type uploadRequest struct {
	provider  string
	url       string
	fileField string
	audioPath string
	fields    []formField
	header    http.Header
}

// postAudio sends the audio file and form fields as multipart/form-data and
// returns the response body of a 200 reply.
func postAudio(ctx context.Context, client *http.Client, ur uploadRequest) ([]byte, error) {
	f, err := os.Open(ur.audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(ur.fileField, filepath.Base(ur.audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	for _, fld := range ur.fields {
		if err := w.WriteField(fld.name, fld.value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", fld.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ur.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range ur.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", ur.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: ur.provider, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
