package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/photosmith/photosmith/internal/common"
)

// SourceFetcher retrieves the original image bytes for a photo.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches source images over HTTP.
type HTTPFetcher struct {
	client *http.Client
	// maxBytes caps the downloaded body; the photo host occasionally
	// serves full-resolution originals of several hundred MB.
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 256 * 1024 * 1024
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.Permanentf(err, "build image request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, common.Transientf(err, "fetch image")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, common.Transientf(nil, "fetch image: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, common.Permanentf(nil, "fetch image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, common.Transientf(err, "read image body")
	}
	if int64(len(body)) > f.maxBytes {
		return nil, common.NewProcessingError(common.KindImageTooLarge,
			fmt.Sprintf("source exceeds %d bytes", f.maxBytes), nil)
	}
	return body, nil
}
