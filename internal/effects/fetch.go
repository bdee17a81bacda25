package effects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrCueNotFound is returned when the cue service has no audio for a key.
var ErrCueNotFound = errors.New("effect cue not found")

// ErrCueTooLarge is returned when a cue body exceeds the fetcher's size limit.
var ErrCueTooLarge = errors.New("effect cue too large")

const maxCueBytes = 16 << 20

// HTTPOptions configures optional HTTPFetcher behavior.
type HTTPOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// MaxBytes caps a cue body. Zero means 16 MiB.
	MaxBytes int64
}

// HTTPFetcher resolves cue keys against the cue service.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
}

// NewHTTPFetcher creates a fetcher for baseURL, requesting {baseURL}/{key}.
func NewHTTPFetcher(baseURL string, opts *HTTPOptions) *HTTPFetcher {
	if opts == nil {
		opts = &HTTPOptions{}
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = maxCueBytes
	}
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		maxBytes:   maxBytes,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string) (Payload, error) {
	endpoint := f.baseURL + "/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to build cue request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg, audio/wav")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to fetch cue %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Payload{}, fmt.Errorf("%w: %s", ErrCueNotFound, key)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Payload{}, fmt.Errorf("cue service returned status %d for %s: %s", resp.StatusCode, key, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read cue %s: %w", key, err)
	}
	if int64(len(data)) > f.maxBytes {
		return Payload{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrCueTooLarge, key, f.maxBytes)
	}
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("cue service returned empty audio for %s", key)
	}
	return Payload{Data: data, Format: formatFromContentType(resp.Header.Get("Content-Type"))}, nil
}

func formatFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "wav"):
		return "wav"
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	}
	return ""
}
