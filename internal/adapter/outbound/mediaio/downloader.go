package mediaio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// Downloader implements DownloaderPort with a plain GET.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader creates a downloader. maxBytes <= 0 means 512 MiB.
func NewDownloader(client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = 512 << 20
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// Download fetches a provider result URL. Any non-2xx status fails fast.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*model.LoadedMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", model.ErrDownloadFailed, rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", model.ErrDownloadFailed, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", model.ErrDownloadFailed, rawURL, d.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty body", model.ErrDownloadFailed, rawURL)
	}
	return &model.LoadedMedia{Data: data, MimeType: mimeOr(resp.Header.Get("Content-Type"), data)}, nil
}

// Compile-time interface check
var _ outbound.DownloaderPort = (*Downloader)(nil)
