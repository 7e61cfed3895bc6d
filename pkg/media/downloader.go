// Package media fetches message attachments to local storage.
package media

import (
	"context"
	"fmt"
	"os"

	"github.com/cavaliercoder/grab"

	"github.com/vibgyor/rtc/pkg/api"
	"github.com/vibgyor/rtc/pkg/logger"
)

// Downloader pulls attachments into one destination directory.
type Downloader struct {
	client *grab.Client
	dest   string
	log    *logger.Logger
}

func NewDownloader(dest string, log *logger.Logger) (*Downloader, error) {
	if dest == "" {
		dest = "."
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("attachment dir %v: %w", dest, err)
	}
	return &Downloader{client: grab.NewClient(), dest: dest, log: log}, nil
}

// Download fetches one attachment and returns the local file path.
func (d *Downloader) Download(ctx context.Context, att api.Attachment) (string, error) {
	req, err := grab.NewRequest(d.dest, att.URL)
	if err != nil {
		return "", fmt.Errorf("attachment request %v: %w", att.URL, err)
	}
	req = req.WithContext(ctx)
	if att.Name != "" {
		req.Filename = d.dest + string(os.PathSeparator) + att.Name
	}

	resp := d.client.Do(req)
	<-resp.Done
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("download %v: %w", att.URL, err)
	}
	d.log.Debug().Msgf("downloaded [%v] %s", resp.HTTPResponse.Status, resp.Filename)
	return resp.Filename, nil
}
